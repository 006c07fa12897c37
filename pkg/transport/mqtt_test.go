// accolade/pkg/transport/mqtt_test.go

package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	mqtt.Token
	err     error
	timeout bool
}

func (t fakeToken) Wait() bool                     { return !t.timeout }
func (t fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t fakeToken) Error() error                   { return t.err }

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

// fakeClient records calls and hands subscriptions back to the test.
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	published    []string
	filters      map[string]byte
	callback     mqtt.MessageHandler
	unsubscribed []string
	disconnected bool
	publishErr   error
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, topic+"="+string(payload.([]byte)))
	return fakeToken{err: c.publishErr}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = filters
	c.callback = callback
	return fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = topics
	return fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) subscribed() mqtt.MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callback
}

func TestMQTTSubscribe(t *testing.T) {
	client := &fakeClient{}
	m := newMQTT(client, MQTTOptions{Topics: []string{"org/example/#", "other"}, QoS: 1})

	ctx, cancel := context.WithCancel(context.Background())
	handler, got := collect()
	done := make(chan error, 1)
	go func() { done <- m.Subscribe(ctx, handler) }()

	require.Eventually(t, func() bool { return client.subscribed() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, map[string]byte{"org/example/#": 1, "other": 1}, client.filters)

	cb := client.subscribed()
	cb(client, fakeMessage{topic: "org/example/git", payload: []byte("one")})
	cb(client, fakeMessage{topic: "other", payload: []byte("bad")})
	assert.Equal(t, []received{{"org/example/git", "one"}, {"other", "bad"}}, got())

	cancel()
	require.NoError(t, <-done)
	assert.ElementsMatch(t, []string{"org/example/#", "other"}, client.unsubscribed)

	require.NoError(t, m.Close())
	assert.True(t, client.disconnected)
}

func TestMQTTPublish(t *testing.T) {
	client := &fakeClient{}
	m := newMQTT(client, MQTTOptions{})

	require.NoError(t, m.Publish(context.Background(), "badges/award", []byte("{}")))
	assert.Equal(t, []string{"badges/award={}"}, client.published)

	client.publishErr = errors.New("not connected")
	assert.ErrorContains(t, m.Publish(context.Background(), "badges/award", []byte("{}")), "not connected")
}

func TestMQTTWaitTimeout(t *testing.T) {
	m := newMQTT(&fakeClient{}, MQTTOptions{Timeout: time.Millisecond})
	err := m.wait(fakeToken{timeout: true}, "connect")
	assert.ErrorContains(t, err, "timed out")
}
