package mqttlink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogctl/ogctl/internal/controller"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeClient struct {
	mu           sync.Mutex
	connectErr   error
	subscribeErr map[string]error
	published    []string
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	disconnected bool
	connectToken mqtt.Token
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: map[string]mqtt.MessageHandler{}, subscribeErr: map[string]error{}}
}

func (c *fakeClient) Connect() mqtt.Token {
	if c.connectToken != nil {
		return c.connectToken
	}
	return doneToken(c.connectErr)
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, topic+" "+payload.(string))
	return doneToken(nil)
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.subscribeErr[topic]; err != nil {
		return doneToken(err)
	}
	c.handlers[topic] = callback
	return doneToken(nil)
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	return doneToken(nil)
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) deliver(topic, payload string) {
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()
	if h != nil {
		h(nil, fakeMessage{topic: topic, payload: []byte(payload)})
	}
}

func (c *fakeClient) subscribed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

func connectedLink(t *testing.T, client *fakeClient) *Link {
	t.Helper()
	l := NewWithClient(client, Config{Topic: "Garage", Timeout: time.Second})
	require.NoError(t, l.Connect(context.Background()))
	return l
}

func TestTopicsFor(t *testing.T) {
	topics := TopicsFor("Garage")
	assert.Equal(t, "Garage/OUT/STATUS", topics.Status)
	assert.Equal(t, "Garage/OUT/JSON", topics.JSON)
	assert.Equal(t, "Garage/IN/STATE", topics.State)
}

func TestConfig_BrokerURL(t *testing.T) {
	tests := []struct {
		broker  string
		want    string
		wantErr bool
	}{
		{"192.168.1.2", "tcp://192.168.1.2:1883", false},
		{"broker.local:1884", "tcp://broker.local:1884", false},
		{"ssl://broker.local:8883", "ssl://broker.local:8883", false},
		{"  ", "", true},
	}
	for _, tt := range tests {
		got, err := Config{Broker: tt.broker}.BrokerURL()
		if tt.wantErr {
			assert.Error(t, err, tt.broker)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Broker: "localhost"})
	assert.Error(t, err, "topic is required")

	_, err = New(Config{Topic: "Garage"})
	assert.Error(t, err, "broker is required")

	l, err := New(Config{Broker: "localhost", Topic: "Garage"})
	require.NoError(t, err)
	assert.Equal(t, "Garage/IN/STATE", l.Topics().State)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("Garage/OUT/STATUS", []byte("OPEN"))
	require.NoError(t, err)
	assert.True(t, s.IsOpen())
	assert.False(t, s.Full)
	assert.Equal(t, "door open", s.String())

	s, err = ParseStatus("Garage/OUT/STATUS", []byte("closed\n"))
	require.NoError(t, err)
	assert.Equal(t, controller.DoorClosed, s.Door)

	_, err = ParseStatus("Garage/OUT/STATUS", []byte("AJAR"))
	assert.Error(t, err)

	s, err = ParseStatus("Garage/OUT/JSON", []byte(`{"door":1,"vehicle":0,"dist":31}`))
	require.NoError(t, err)
	assert.True(t, s.Full)
	assert.Equal(t, "door open, vehicle 0, 31 cm", s.String())

	s, err = ParseStatus("Garage/OUT/JSON", []byte(`{"door":0}`))
	require.NoError(t, err)
	assert.Equal(t, -1, s.Distance)

	_, err = ParseStatus("Garage/OUT/JSON", []byte(`not json`))
	assert.Error(t, err)
}

func TestLink_Connect(t *testing.T) {
	client := newFakeClient()
	client.connectErr = errors.New("bad credentials")
	l := NewWithClient(client, Config{Topic: "Garage"})
	err := l.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad credentials")
	assert.ErrorIs(t, l.Send(context.Background(), controller.CommandClick), ErrNotConnected)
}

func TestLink_ConnectTimeout(t *testing.T) {
	client := newFakeClient()
	client.connectToken = pendingToken()
	l := NewWithClient(client, Config{Topic: "Garage", Timeout: 20 * time.Millisecond})
	err := l.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestLink_Send(t *testing.T) {
	client := newFakeClient()
	l := connectedLink(t, client)

	require.NoError(t, l.Send(context.Background(), controller.CommandOpen))
	require.NoError(t, l.Send(context.Background(), controller.CommandClick))
	assert.Equal(t, []string{"Garage/IN/STATE open", "Garage/IN/STATE click"}, client.published)

	assert.Error(t, l.Send(context.Background(), controller.CommandReboot))
	assert.Len(t, client.published, 2)
}

func TestLink_Watch(t *testing.T) {
	client := newFakeClient()
	l := connectedLink(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var got []Status
	done := make(chan error, 1)
	go func() {
		done <- l.Watch(ctx, func(s Status) {
			mu.Lock()
			got = append(got, s)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool { return client.subscribed() == 2 }, time.Second, 5*time.Millisecond)
	client.deliver("Garage/OUT/STATUS", "OPEN")
	client.deliver("Garage/OUT/STATUS", "garbage")
	client.deliver("Garage/OUT/JSON", `{"door":0,"vehicle":1,"dist":180}`)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.True(t, got[0].IsOpen())
	assert.Equal(t, 180, got[1].Distance)
	assert.ElementsMatch(t, []string{"Garage/OUT/STATUS", "Garage/OUT/JSON"}, client.unsubscribed)
}

func TestLink_WatchSubscribeFailure(t *testing.T) {
	client := newFakeClient()
	client.subscribeErr["Garage/OUT/JSON"] = errors.New("not authorised")
	l := connectedLink(t, client)

	err := l.Watch(context.Background(), func(Status) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Garage/OUT/JSON")
	assert.Equal(t, []string{"Garage/OUT/STATUS"}, client.unsubscribed)
}

func TestLink_Close(t *testing.T) {
	client := newFakeClient()
	l := connectedLink(t, client)
	l.Close()
	assert.True(t, client.disconnected)
	assert.ErrorIs(t, l.Watch(context.Background(), func(Status) {}), ErrNotConnected)
}
