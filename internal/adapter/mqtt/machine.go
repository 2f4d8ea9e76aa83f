package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/YelzhanWeb/burger-queue/internal/adapter/logger"
	"github.com/YelzhanWeb/burger-queue/internal/config"
	"github.com/YelzhanWeb/burger-queue/internal/domain"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	reportBuffer   = 64
)

// Client is the part of paho's client the bridge uses.
type Client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
	Disconnect(quiesce uint)
}

// StartCommand is sent to the controller when an order is dispatched.
type StartCommand struct {
	OrderID          string             `json:"order_id"`
	Items            []domain.OrderItem `json:"items"`
	EstimatedSeconds int                `json:"estimated_time"`
	Priority         domain.Priority    `json:"priority"`
}

// Outcome is the optional body of a completed or failed report.
type Outcome struct {
	Reason string `json:"reason,omitempty"`
}

type reportKind int

const (
	reportSlotReady reportKind = iota
	reportCompleted
	reportFailed
)

// report is a parsed controller message waiting to reach the scheduler.
type report struct {
	kind    reportKind
	orderID string
	reason  string
}

// Machine links the scheduler to the machine controller over MQTT.
type Machine struct {
	client Client
	prefix string
	qos    byte
	logger logger.Logger
}

func Connect(cfg config.MQTTConfig, logger logger.Logger) (*Machine, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Warn("mqtt_connection_lost", "Connection to machine controller lost, reconnecting", "", map[string]interface{}{
			"broker": cfg.Broker,
			"error":  err.Error(),
		})
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	return NewMachine(client, cfg.TopicPrefix, cfg.QoS, logger), nil
}

func NewMachine(client Client, prefix string, qos byte, logger logger.Logger) *Machine {
	return &Machine{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		qos:    qos,
		logger: logger,
	}
}

func (m *Machine) Start(_ context.Context, order *domain.Order) error {
	payload, err := json.Marshal(StartCommand{
		OrderID:          order.ID,
		Items:            order.Items,
		EstimatedSeconds: order.EstimatedSeconds,
		Priority:         order.Priority,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal start command: %w", err)
	}

	return m.publish(fmt.Sprintf("%s/orders/%s/start", m.prefix, order.ID), payload)
}

// Abandon tells the controller to drop an order the scheduler already
// finalized. The controller must not report on it afterwards.
func (m *Machine) Abandon(_ context.Context, orderID string) error {
	return m.publish(fmt.Sprintf("%s/orders/%s/abandon", m.prefix, orderID), []byte{})
}

func (m *Machine) publish(topic string, payload []byte) error {
	token := m.client.Publish(topic, m.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Listen subscribes to controller reports and forwards them to reporter.
// Handlers only queue the parsed report; a separate goroutine calls the
// reporter. Subscriptions are dropped when ctx is done.
func (m *Machine) Listen(ctx context.Context, reporter interfaces.ProcessingReporter) error {
	reports := make(chan report, reportBuffer)

	topics := map[string]paho.MessageHandler{
		m.prefix + "/slot/ready": func(_ paho.Client, _ paho.Message) {
			m.enqueue(reports, report{kind: reportSlotReady})
		},
		m.prefix + "/orders/+/completed": func(_ paho.Client, msg paho.Message) {
			id, ok := m.orderID(msg.Topic())
			if !ok {
				return
			}
			m.enqueue(reports, report{kind: reportCompleted, orderID: id})
		},
		m.prefix + "/orders/+/failed": func(_ paho.Client, msg paho.Message) {
			id, ok := m.orderID(msg.Topic())
			if !ok {
				return
			}
			var outcome Outcome
			if len(msg.Payload()) > 0 {
				_ = json.Unmarshal(msg.Payload(), &outcome)
			}
			if outcome.Reason == "" {
				outcome.Reason = "machine_error"
			}
			m.enqueue(reports, report{kind: reportFailed, orderID: id, reason: outcome.Reason})
		},
	}

	go m.forward(ctx, reports, reporter)

	subscribed := make([]string, 0, len(topics))
	for topic, handler := range topics {
		token := m.client.Subscribe(topic, m.qos, handler)
		if !token.WaitTimeout(connectTimeout) {
			return fmt.Errorf("subscription timeout on %s", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		subscribed = append(subscribed, topic)
	}

	m.logger.Info("mqtt_listening", "Listening for machine reports", "", map[string]interface{}{
		"prefix": m.prefix,
	})

	go func() {
		<-ctx.Done()
		if m.client.IsConnected() {
			m.client.Unsubscribe(subscribed...).WaitTimeout(publishTimeout)
		}
	}()
	return nil
}

func (m *Machine) enqueue(reports chan<- report, r report) {
	select {
	case reports <- r:
	default:
		m.logger.Error("machine_report_dropped", "Report queue full, dropping machine report", r.orderID, map[string]interface{}{
			"kind": int(r.kind),
		}, fmt.Errorf("report buffer of %d exhausted", reportBuffer))
	}
}

// forward delivers queued reports to the scheduler until ctx is done.
func (m *Machine) forward(ctx context.Context, reports <-chan report, reporter interfaces.ProcessingReporter) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-reports:
			rctx := context.WithoutCancel(ctx)
			switch r.kind {
			case reportSlotReady:
				reporter.SlotReady(rctx)
			case reportCompleted:
				if !reporter.Complete(rctx, r.orderID) {
					m.logger.Debug("machine_report_ignored", "Completion for an order not in the slot", r.orderID, nil)
				}
			case reportFailed:
				if !reporter.Fail(rctx, r.orderID, r.reason) {
					m.logger.Debug("machine_report_ignored", "Failure for an order not in the slot", r.orderID, nil)
				}
			}
		}
	}
}

func (m *Machine) Close() {
	m.client.Disconnect(250)
}

// orderID extracts the id from <prefix>/orders/<id>/<outcome>.
func (m *Machine) orderID(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, m.prefix+"/orders/")
	if !ok {
		return "", false
	}
	id, _, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		m.logger.Warn("machine_report_invalid", "Unexpected report topic", "", map[string]interface{}{"topic": topic})
		return "", false
	}
	return id, true
}

var _ interfaces.Machine = (*Machine)(nil)
