// accolade/pkg/transport/mqtt.go

package transport

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"rgehrsitz/accolade/pkg/logging"
)

type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topics   []string
	QoS      byte

	// Timeout bounds connect, subscribe and publish acknowledgements.
	Timeout time.Duration
	// Quiesce is how long Close waits for in-flight work, in milliseconds.
	Quiesce uint
}

// MQTT consumes events from an MQTT broker.
type MQTT struct {
	client  mqtt.Client
	topics  []string
	qos     byte
	timeout time.Duration
	quiesce uint
}

// NewMQTT connects to the broker.
func NewMQTT(o MQTTOptions) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	opts.SetUsername(o.Username)
	opts.SetPassword(o.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.Logger.Warn().Err(err).Str("broker", o.Broker).Msg("MQTT connection lost")
	})

	m := newMQTT(mqtt.NewClient(opts), o)
	logging.Logger.Info().Str("broker", o.Broker).Str("client_id", o.ClientID).Msg("Connecting to MQTT broker")
	if err := m.wait(m.client.Connect(), "connect"); err != nil {
		return nil, logging.NewError(logging.ErrorTypeConfig, "failed to connect to MQTT broker", err,
			map[string]interface{}{"broker": o.Broker})
	}
	return m, nil
}

func newMQTT(client mqtt.Client, o MQTTOptions) *MQTT {
	if o.Timeout == 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Quiesce == 0 {
		o.Quiesce = 250
	}
	return &MQTT{client: client, topics: o.Topics, qos: o.QoS, timeout: o.Timeout, quiesce: o.Quiesce}
}

func (m *MQTT) wait(token mqtt.Token, op string) error {
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("mqtt %s: timed out after %s", op, m.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt %s: %w", op, err)
	}
	return nil
}

func (m *MQTT) Subscribe(ctx context.Context, handler Handler) error {
	filters := make(map[string]byte, len(m.topics))
	for _, t := range m.topics {
		filters[t] = m.qos
	}

	err := m.wait(m.client.SubscribeMultiple(filters, func(_ mqtt.Client, msg mqtt.Message) {
		deliver(ctx, handler, msg.Topic(), msg.Payload())
	}), "subscribe")
	if err != nil {
		return logging.NewError(logging.ErrorTypeTransient, "failed to subscribe to MQTT topics", err,
			map[string]interface{}{"topics": m.topics})
	}
	logging.Logger.Info().Strs("topics", m.topics).Msg("Subscribed to MQTT topics")

	<-ctx.Done()
	if err := m.wait(m.client.Unsubscribe(m.topics...), "unsubscribe"); err != nil {
		logging.Logger.Warn().Err(err).Msg("Could not unsubscribe")
	}
	return nil
}

func (m *MQTT) Publish(_ context.Context, topic string, payload []byte) error {
	return m.wait(m.client.Publish(topic, m.qos, false, payload), "publish")
}

func (m *MQTT) Close() error {
	m.client.Disconnect(m.quiesce)
	return nil
}
