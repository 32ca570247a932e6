// Package mqttlink talks to a controller through its MQTT integration.
//
// A controller with an MQTT broker configured publishes its door state to
// "{topic}/OUT/STATUS" ("OPEN" or "CLOSED") and a JSON status document to
// "{topic}/OUT/JSON", and accepts "click", "open" and "close" on
// "{topic}/IN/STATE". The topic is the controller's device name.
package mqttlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ogctl/ogctl/internal/controller"
	"github.com/ogctl/ogctl/internal/logging"
)

const (
	DefaultPort    = 1883
	DefaultTimeout = 10 * time.Second
	DefaultQoS     = 0

	clientIDPrefix = "ogctl-"
)

// ErrNotConnected is returned when an operation needs a broker connection.
var ErrNotConnected = errors.New("mqtt: not connected")

// Client is the subset of the paho client used by Link.
type Client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// Config describes the broker and the controller topic.
type Config struct {
	Broker   string // host, host:port or tcp://host:port
	Username string
	Password string
	ClientID string // random when empty
	Topic    string // controller device name
	QoS      byte
	Timeout  time.Duration
}

// BrokerURL normalises Broker into a paho server URL.
func (c Config) BrokerURL() (string, error) {
	b := strings.TrimSpace(c.Broker)
	if b == "" {
		return "", errors.New("mqtt: broker is required")
	}
	if strings.Contains(b, "://") {
		return b, nil
	}
	if _, _, err := net.SplitHostPort(b); err != nil {
		b = net.JoinHostPort(b, strconv.Itoa(DefaultPort))
	}
	return "tcp://" + b, nil
}

// Topics for one controller.
type Topics struct {
	Status string
	JSON   string
	State  string
}

// TopicsFor returns the topics a controller named name uses.
func TopicsFor(name string) Topics {
	return Topics{
		Status: name + "/OUT/STATUS",
		JSON:   name + "/OUT/JSON",
		State:  name + "/IN/STATE",
	}
}

// Status is one state report received from the controller.
type Status struct {
	Door     int  // controller.DoorOpen or controller.DoorClosed, -1 when unknown
	Vehicle  int  // -1 when not reported
	Distance int  // -1 when not reported
	Full     bool // true when decoded from the JSON topic
	Received time.Time
}

// IsOpen reports whether the door is open.
func (s Status) IsOpen() bool {
	return s.Door == controller.DoorOpen
}

func (s Status) String() string {
	door := "unknown"
	switch s.Door {
	case controller.DoorOpen:
		door = "open"
	case controller.DoorClosed:
		door = "closed"
	}
	if !s.Full {
		return "door " + door
	}
	return fmt.Sprintf("door %s, vehicle %d, %d cm", door, s.Vehicle, s.Distance)
}

// ParseStatus decodes a payload received on topic.
func ParseStatus(topic string, payload []byte) (Status, error) {
	s := Status{Door: -1, Vehicle: -1, Distance: -1, Received: time.Now()}

	if strings.HasSuffix(topic, "/OUT/JSON") {
		var doc struct {
			Door     *int `json:"door"`
			Vehicle  *int `json:"vehicle"`
			Distance *int `json:"dist"`
		}
		if err := json.Unmarshal(payload, &doc); err != nil {
			return s, fmt.Errorf("mqtt: decoding status json: %w", err)
		}
		if doc.Door != nil {
			s.Door = *doc.Door
		}
		if doc.Vehicle != nil {
			s.Vehicle = *doc.Vehicle
		}
		if doc.Distance != nil {
			s.Distance = *doc.Distance
		}
		s.Full = true
		return s, nil
	}

	switch strings.ToUpper(strings.TrimSpace(string(payload))) {
	case "OPEN":
		s.Door = controller.DoorOpen
	case "CLOSED":
		s.Door = controller.DoorClosed
	default:
		return s, fmt.Errorf("mqtt: unexpected status %q", payload)
	}
	return s, nil
}

// Link is a connection to a broker scoped to one controller.
type Link struct {
	client  Client
	topics  Topics
	qos     byte
	timeout time.Duration

	mu        sync.Mutex
	connected bool
}

// New builds a paho client from cfg. Call Connect before use.
func New(cfg Config) (*Link, error) {
	if cfg.Topic == "" {
		return nil, errors.New("mqtt: controller topic is required")
	}
	broker, err := cfg.BrokerURL()
	if err != nil {
		return nil, err
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = clientIDPrefix + uuid.NewString()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(timeoutOrDefault(cfg.Timeout))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.Warn("MQTT connection lost", zap.String("broker", broker), zap.Error(err))
	})

	logging.Debug("MQTT client configured", zap.String("broker", broker), zap.String("client_id", clientID))
	return NewWithClient(mqtt.NewClient(opts), cfg), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client Client, cfg Config) *Link {
	return &Link{
		client:  client,
		topics:  TopicsFor(cfg.Topic),
		qos:     cfg.QoS,
		timeout: timeoutOrDefault(cfg.Timeout),
	}
}

// Topics returns the controller topics.
func (l *Link) Topics() Topics {
	return l.topics
}

// Connect connects to the broker.
func (l *Link) Connect(ctx context.Context) error {
	if err := l.wait(ctx, l.client.Connect()); err != nil {
		return fmt.Errorf("mqtt: connect: %w", err)
	}
	l.mu.Lock()
	l.connected = true
	l.mu.Unlock()
	return nil
}

// Send publishes a door command. Only click, open and close are accepted.
func (l *Link) Send(ctx context.Context, cmd controller.Command) error {
	switch cmd {
	case controller.CommandClick, controller.CommandOpen, controller.CommandClose:
	default:
		return fmt.Errorf("mqtt: command %q is not available over MQTT", cmd)
	}
	if !l.isConnected() {
		return ErrNotConnected
	}

	logging.Debug("MQTT publish", zap.String("topic", l.topics.State), zap.String("command", string(cmd)))
	if err := l.wait(ctx, l.client.Publish(l.topics.State, l.qos, false, string(cmd))); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", cmd, err)
	}
	return nil
}

// Watch subscribes to the status topics and calls handle for every report
// until ctx is cancelled. handle is never called concurrently. Malformed
// payloads are logged and skipped.
func (l *Link) Watch(ctx context.Context, handle func(Status)) error {
	if !l.isConnected() {
		return ErrNotConnected
	}

	var handleMu sync.Mutex
	callback := func(_ mqtt.Client, msg mqtt.Message) {
		status, err := ParseStatus(msg.Topic(), msg.Payload())
		if err != nil {
			logging.Debug("Ignoring MQTT message", zap.String("topic", msg.Topic()), zap.Error(err))
			return
		}
		handleMu.Lock()
		defer handleMu.Unlock()
		if ctx.Err() != nil {
			return
		}
		handle(status)
	}

	subscribed := make([]string, 0, 2)
	for _, topic := range []string{l.topics.Status, l.topics.JSON} {
		if err := l.wait(ctx, l.client.Subscribe(topic, l.qos, callback)); err != nil {
			l.unsubscribe(subscribed)
			return fmt.Errorf("mqtt: subscribe %s: %w", topic, err)
		}
		subscribed = append(subscribed, topic)
	}
	logging.Info("Watching controller over MQTT", zap.Strings("topics", subscribed))

	<-ctx.Done()
	l.unsubscribe(subscribed)
	return nil
}

// Close disconnects from the broker.
func (l *Link) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connected {
		l.client.Disconnect(250)
		l.connected = false
	}
}

func (l *Link) isConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *Link) unsubscribe(topics []string) {
	if len(topics) == 0 {
		return
	}
	token := l.client.Unsubscribe(topics...)
	if !token.WaitTimeout(l.timeout) {
		logging.Debug("MQTT unsubscribe timed out", zap.Strings("topics", topics))
	}
}

// wait blocks until token completes, ctx ends or the link timeout passes.
func (l *Link) wait(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", l.timeout)
	}
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}
