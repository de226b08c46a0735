package mqtt

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient records publishes and subscriptions; unimplemented methods panic
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	published    []published
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	err          error

	// gates hold publishes to a topic until closed; started receives the topic first
	gates   map[string]chan struct{}
	started chan string
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	gate := c.gates[topic]
	c.mu.Unlock()
	if gate != nil {
		c.started <- topic
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = p
	case string:
		body = []byte(p)
	}
	c.published = append(c.published, published{topic: topic, qos: qos, retained: retained, payload: body})
	return &fakeToken{err: c.err}
}

func (c *fakeClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.handlers[topic] = handler
	}
	return &fakeToken{err: c.err}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.handlers, topic)
		c.unsubscribed = append(c.unsubscribed, topic)
	}
	return &fakeToken{err: c.err}
}

// holdPublishes blocks publishes to topic until the returned func is called
func (c *fakeClient) holdPublishes(topic string) func() {
	gate := make(chan struct{})
	c.mu.Lock()
	if c.gates == nil {
		c.gates = make(map[string]chan struct{})
	}
	c.gates[topic] = gate
	c.started = make(chan string, 8)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.gates, topic)
		c.mu.Unlock()
		close(gate)
	}
}

// dropSubscriptions mimics a clean-session reconnect
func (c *fakeClient) dropSubscriptions() {
	c.mu.Lock()
	c.handlers = make(map[string]mqtt.MessageHandler)
	c.mu.Unlock()
}

func (c *fakeClient) deliver(topic string, payload string) bool {
	c.mu.Lock()
	handler, ok := c.handlers[topic]
	c.mu.Unlock()
	if !ok {
		return false
	}
	handler(c, &fakeMessage{topic: topic, payload: []byte(payload)})
	return true
}

func (c *fakeClient) publishedTo(topic string) []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []published
	for _, p := range c.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }
