// Package mock provides an in-memory transport.Client for testing.
package mock

import (
	"sync"

	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/transport"
)

// Publication records a single publish made through the mock client.
type Publication struct {
	Topic     string
	Payload   []byte
	QoS       byte
	Retain    bool
	UserProps map[string]string
}

// Subscription records a single subscribe made through the mock client.
type Subscription struct {
	Filter  string
	QoS     byte
	NoLocal bool
}

// Client implements transport.Client for tests. It records every
// subscribe, unsubscribe and publish, and delivers inbound messages
// synchronously to the registered handler via Deliver.
type Client struct {
	mu sync.Mutex

	connected bool
	clientID  string

	subscriptions []Subscription
	unsubscribes  []string
	publications  []Publication

	handler     transport.Handler
	lostHandler transport.ConnectionLostHandler

	// FailSubscribe and FailPublish force the corresponding calls to
	// report failure.
	FailSubscribe bool
	FailPublish   bool
}

// NewClient creates a connected mock client.
func NewClient(clientID string) *Client {
	return &Client{connected: true, clientID: clientID}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SetConnected toggles the reported connectivity.
func (c *Client) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

func (c *Client) Subscribe(filter string, qos byte, noLocal bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailSubscribe {
		return false
	}
	c.subscriptions = append(c.subscriptions, Subscription{Filter: filter, QoS: qos, NoLocal: noLocal})
	return true
}

func (c *Client) Unsubscribe(filter string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribes = append(c.unsubscribes, filter)
	return true
}

func (c *Client) Publish(topic string, payload []byte, qos byte, retain bool, userProps map[string]string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailPublish {
		return false
	}
	c.publications = append(c.publications, Publication{
		Topic:     topic,
		Payload:   append([]byte(nil), payload...),
		QoS:       qos,
		Retain:    retain,
		UserProps: userProps,
	})
	return true
}

func (c *Client) ClientID() string {
	return c.clientID
}

func (c *Client) SetMessageHandler(handler transport.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *Client) SetConnectionLostHandler(handler transport.ConnectionLostHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lostHandler = handler
}

// Deliver feeds msg to the registered message handler, synchronously on
// the calling goroutine, the way a broker delivery would.
func (c *Client) Deliver(msg transport.Message) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

// LoseConnection invokes the registered connection-lost handler.
func (c *Client) LoseConnection(reason string) {
	c.mu.Lock()
	c.connected = false
	handler := c.lostHandler
	c.mu.Unlock()
	if handler != nil {
		handler(reason)
	}
}

// Subscriptions returns a snapshot of recorded subscriptions.
func (c *Client) Subscriptions() []Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Subscription(nil), c.subscriptions...)
}

// Unsubscribes returns a snapshot of recorded unsubscribe filters.
func (c *Client) Unsubscribes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.unsubscribes...)
}

// Publications returns a snapshot of recorded publications.
func (c *Client) Publications() []Publication {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Publication(nil), c.publications...)
}

// PublicationsTo returns recorded publications on the given topic.
func (c *Client) PublicationsTo(topic string) []Publication {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Publication
	for _, p := range c.publications {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}
