package mqtt

import (
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultBrokerURL is used when no broker is configured.
const DefaultBrokerURL = "tcp://localhost:1883"

const opTimeout = 10 * time.Second

// Subscriber subscribes a handler to a topic. Client implements it; tests
// substitute a mock.
type Subscriber interface {
	Subscribe(topic string, handler paho.MessageHandler) error
}

// Publisher publishes a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Client wraps the Paho MQTT client. Subscriptions made through it are
// restored after every reconnect.
type Client struct {
	client    paho.Client
	brokerURL string

	mu     sync.Mutex
	topics map[string]paho.MessageHandler
}

// NewClient creates a client for brokerURL but does not connect.
func NewClient(brokerURL, clientID string) *Client {
	if brokerURL == "" {
		brokerURL = DefaultBrokerURL
	}
	c := &Client{brokerURL: brokerURL, topics: make(map[string]paho.MessageHandler)}

	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(c.resubscribe)

	c.client = paho.NewClient(opts)
	return c
}

// BrokerURL returns the broker the client connects to.
func (c *Client) BrokerURL() string {
	return c.brokerURL
}

// Connect attempts to connect to the broker.
// Returns an error if connection fails, but does not block indefinitely.
func (c *Client) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(opTimeout) {
		return &ConnectTimeoutError{}
	}
	return token.Error()
}

// Subscribe subscribes to a topic at QoS 1 and remembers it for reconnects.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	c.topics[topic] = handler
	c.mu.Unlock()

	token := c.client.Subscribe(topic, 1, handler)
	if !token.WaitTimeout(opTimeout) {
		return &SubscribeTimeoutError{Topic: topic}
	}
	return token.Error()
}

// Publish sends payload to topic at QoS 1.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(opTimeout) {
		return &PublishTimeoutError{Topic: topic}
	}
	return token.Error()
}

func (c *Client) resubscribe(pc paho.Client) {
	c.mu.Lock()
	topics := make(map[string]paho.MessageHandler, len(c.topics))
	for t, h := range c.topics {
		topics[t] = h
	}
	c.mu.Unlock()

	for topic, handler := range topics {
		token := pc.Subscribe(topic, 1, handler)
		if !token.WaitTimeout(opTimeout) || token.Error() != nil {
			log.Printf("mqtt: failed to resubscribe to %s", topic)
		}
	}
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct{}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout"
}

// SubscribeTimeoutError indicates subscription timed out.
type SubscribeTimeoutError struct {
	Topic string
}

func (e *SubscribeTimeoutError) Error() string {
	return "mqtt subscribe timeout: " + e.Topic
}

// PublishTimeoutError indicates a publish was not acknowledged in time.
type PublishTimeoutError struct {
	Topic string
}

func (e *PublishTimeoutError) Error() string {
	return "mqtt publish timeout: " + e.Topic
}

// ConnectWithRetry attempts to connect, logging failure but not crashing.
// Paho keeps retrying in the background either way.
func (c *Client) ConnectWithRetry() bool {
	if err := c.Connect(); err != nil {
		log.Printf("mqtt: failed to connect to %s: %v", c.brokerURL, err)
		return false
	}
	log.Printf("mqtt: connected to %s", c.brokerURL)
	return true
}
