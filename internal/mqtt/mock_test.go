package mqtt

import (
	"errors"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// MockMQTTClient records subscriptions and publishes in memory.
type MockMQTTClient struct {
	mu            sync.Mutex
	subscriptions map[string]paho.MessageHandler
	published     []published
	failPublish   bool
	failSubscribe bool
}

type published struct {
	topic   string
	payload []byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{subscriptions: make(map[string]paho.MessageHandler)}
}

func (m *MockMQTTClient) Subscribe(topic string, handler paho.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSubscribe {
		return &SubscribeTimeoutError{Topic: topic}
	}
	m.subscriptions[topic] = handler
	return nil
}

func (m *MockMQTTClient) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPublish {
		return errors.New("broker unavailable")
	}
	m.published = append(m.published, published{topic: topic, payload: payload})
	return nil
}

func (m *MockMQTTClient) Published() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.published...)
}

func (m *MockMQTTClient) Subscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscriptions)
}

func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.subscriptions[topic]
	m.mu.Unlock()
	if ok {
		handler(nil, &mockMessage{topic: topic, payload: payload})
	}
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}
