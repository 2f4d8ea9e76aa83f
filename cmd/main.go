package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/YelzhanWeb/burger-queue/internal/adapter/badgerdb"
	"github.com/YelzhanWeb/burger-queue/internal/adapter/logger"
	"github.com/YelzhanWeb/burger-queue/internal/adapter/metrics"
	"github.com/YelzhanWeb/burger-queue/internal/adapter/mqtt"
	"github.com/YelzhanWeb/burger-queue/internal/adapter/postgres"
	"github.com/YelzhanWeb/burger-queue/internal/adapter/rabbitmq"
	"github.com/YelzhanWeb/burger-queue/internal/app/kitchen"
	"github.com/YelzhanWeb/burger-queue/internal/app/scheduler"
	"github.com/YelzhanWeb/burger-queue/internal/config"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"

	amqpAdapter "github.com/YelzhanWeb/burger-queue/internal/adapter/amqp"
	httpAdapter "github.com/YelzhanWeb/burger-queue/internal/adapter/http"
)

const (
	shutdownTimeout   = 10 * time.Second
	heartbeatInterval = 5 * time.Second
)

func main() {
	// Parse command-line flags
	mode := flag.String("mode", "scheduler", "Service mode: scheduler, notification-subscriber")
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	port := flag.Int("port", 3000, "HTTP port")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	lgr, err := logger.New(*mode, cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync(lgr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to RabbitMQ
	mqConn, err := rabbitmq.Connect(cfg.RabbitMQ)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer mqConn.Close()

	lgr.Info("rabbitmq_connected", "Connected to RabbitMQ", "startup", map[string]interface{}{
		"host": cfg.RabbitMQ.Host,
	})

	// Route to appropriate service
	switch *mode {
	case "scheduler":
		runScheduler(ctx, cfg, mqConn, lgr, *port)

	case "notification-subscriber":
		runNotificationSubscriber(ctx, mqConn, lgr)

	default:
		log.Fatalf("Invalid mode: %s", *mode)
	}
}

func runScheduler(ctx context.Context, cfg *config.Config, mqConn rabbitmq.Connection, lgr logger.Logger, port int) {
	// Connect to PostgreSQL
	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	lgr.Info("db_connected", "Connected to PostgreSQL database", "startup", map[string]interface{}{
		"host": cfg.Database.Host,
		"db":   cfg.Database.Database,
	})

	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
	}

	// Initialize messaging; the publisher outlives ctx so shutdown events are flushed
	publishCtx, stopPublishing := context.WithCancel(context.Background())
	publisher := rabbitmq.NewPublisher(mqConn, lgr, 0)
	go publisher.Run(publishCtx)
	events := metrics.NewPublisher(publisher)

	// Machine link: MQTT controller or the in-process simulator
	var (
		machine   interfaces.Machine
		bind      func(interfaces.ProcessingReporter) error
		simulator *kitchen.Simulator
		bridge    *mqtt.Machine
	)
	if cfg.MQTT.Broker != "" {
		bridge, err = mqtt.Connect(cfg.MQTT, lgr)
		if err != nil {
			log.Fatalf("Failed to connect to machine controller: %v", err)
		}
		machine = bridge
		bind = func(r interfaces.ProcessingReporter) error { return bridge.Listen(ctx, r) }
	} else {
		simulator = kitchen.NewSimulator(lgr, cfg.Simulator.Speedup, heartbeatInterval)
		machine = simulator
		bind = func(r interfaces.ProcessingReporter) error {
			simulator.Bind(r)
			go simulator.Run(ctx)
			return nil
		}
	}

	opts := []scheduler.Option{}
	var snapshots *badgerdb.SnapshotStore
	if cfg.Snapshot.Path != "" {
		snapshots, err = badgerdb.Open(cfg.Snapshot.Path)
		if err != nil {
			log.Fatalf("Failed to open snapshot store: %v", err)
		}
		opts = append(opts, scheduler.WithSnapshotStore(snapshots, *cfg.Snapshot.RestoreOnStart))
	}

	// Initialize scheduler
	sched := scheduler.New(cfg.Scheduler, postgres.NewOrderRepository(db), events, machine, lgr, opts...)
	if err := bind(sched); err != nil {
		log.Fatalf("Failed to listen for machine reports: %v", err)
	}
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Start consuming intake and inventory queues
	consumer := rabbitmq.NewConsumer(mqConn, lgr)
	orderHandler := amqpAdapter.NewOrderHandler(sched, lgr)
	inventoryHandler := amqpAdapter.NewInventoryHandler(sched, lgr)

	var consumers sync.WaitGroup
	consume := func(binding interfaces.QueueBinding, handler interfaces.MessageHandler) {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			if err := consumer.Consume(ctx, binding, handler); err != nil && ctx.Err() == nil {
				lgr.Error("consumer_error", "Error consuming queue", "runtime", map[string]interface{}{
					"queue": binding.Queue,
				}, err)
			}
		}()
	}
	consume(rabbitmq.OrdersBinding, orderHandler.HandleOrder)
	consume(rabbitmq.InventoryBinding, inventoryHandler.HandleShortage)

	// Setup HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      httpAdapter.NewRouter(sched, events.Handler(), lgr),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lgr.Error("server_error", "Server error", "runtime", nil, err)
		}
	}()

	lgr.Info("service_started", fmt.Sprintf("Scheduler started on port %d", port), "startup", map[string]interface{}{
		"port":           port,
		"max_queue_size": cfg.Scheduler.MaxQueueSize,
		"batching":       cfg.Scheduler.BatchingEnabled(),
		"simulator":      simulator != nil,
	})

	// Graceful shutdown
	<-ctx.Done()
	lgr.Info("shutdown_initiated", "Shutting down Scheduler", "shutdown", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		lgr.Error("shutdown_error", "Error stopping HTTP server", "shutdown", nil, err)
	}
	consumers.Wait()

	if err := sched.Shutdown(shutdownCtx); err != nil {
		lgr.Error("shutdown_error", "Error stopping scheduler", "shutdown", nil, err)
	}
	if simulator != nil {
		simulator.Stop()
		simulator.Wait()
	}
	if bridge != nil {
		bridge.Close()
	}
	if snapshots != nil {
		if err := snapshots.Close(); err != nil {
			lgr.Error("shutdown_error", "Error closing snapshot store", "shutdown", nil, err)
		}
	}

	stopPublishing()
	publisher.Close()

	lgr.Info("graceful_shutdown", "Scheduler stopped", "shutdown", nil)
}

func runNotificationSubscriber(ctx context.Context, mqConn rabbitmq.Connection, lgr logger.Logger) {
	// Initialize consumer
	consumer := rabbitmq.NewConsumer(mqConn, lgr)

	// Initialize handler
	notificationHandler := amqpAdapter.NewNotificationHandler(lgr)

	lgr.Info("service_started", "Notification Subscriber started", "startup", nil)

	// Consume notifications until a shutdown signal arrives
	if err := consumer.Subscribe(ctx, rabbitmq.EventsExchange, "#", notificationHandler.HandleNotification); err != nil && ctx.Err() == nil {
		lgr.Error("consumer_error", "Error consuming notifications", "runtime", nil, err)
	}

	lgr.Info("shutdown_initiated", "Shutting down Notification Subscriber", "shutdown", nil)
}
