// Package pahomqtt adapts an eclipse/paho.golang MQTT 5 connection to the
// transport.Client contract. The MCP server needs MQTT 5 for the No Local
// subscription option and for user properties, both of which this adapter
// wires through.
package pahomqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/transport"
)

const defaultOpTimeout = 10 * time.Second

// Options configures the adapter.
type Options struct {
	username  string
	password  []byte
	keepAlive uint16
	tlsConfig *tls.Config
	will      *paho.WillMessage
	opTimeout time.Duration
}

// Option is a function that configures Options
type Option func(*Options)

// WithCredentials sets the username and password for the connection.
func WithCredentials(username, password string) Option {
	return func(o *Options) {
		o.username = username
		o.password = []byte(password)
	}
}

// WithKeepAlive sets the keep-alive interval in seconds.
func WithKeepAlive(seconds uint16) Option {
	return func(o *Options) {
		o.keepAlive = seconds
	}
}

// WithTLSConfig sets the TLS configuration for the connection.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *Options) {
		o.tlsConfig = cfg
	}
}

// WithWill registers a will message. Pointing it at the server's presence
// topic with an empty retained payload makes the broker clear the
// presence when the process dies without a clean Stop.
func WithWill(topic string, payload []byte, qos byte, retain bool) Option {
	return func(o *Options) {
		o.will = &paho.WillMessage{
			Topic:   topic,
			Payload: payload,
			QoS:     qos,
			Retain:  retain,
		}
	}
}

// WithOperationTimeout bounds individual subscribe/publish calls.
func WithOperationTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.opTimeout = d
	}
}

// Client implements transport.Client over autopaho.
type Client struct {
	cm        *autopaho.ConnectionManager
	clientID  string
	opTimeout time.Duration

	connected atomic.Bool

	mu          sync.Mutex
	handler     transport.Handler
	lostHandler transport.ConnectionLostHandler
}

// Connect dials the broker and waits for the first successful connection.
// The returned client reconnects automatically; the caller owns its
// lifecycle and must Disconnect it after stopping the MCP server.
func Connect(ctx context.Context, brokerURL, clientID string, opts ...Option) (*Client, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker url: %w", err)
	}

	options := &Options{
		keepAlive: 60,
		opTimeout: defaultOpTimeout,
	}
	for _, opt := range opts {
		opt(options)
	}

	c := &Client{
		clientID:  clientID,
		opTimeout: options.opTimeout,
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		TlsCfg:                        options.tlsConfig,
		KeepAlive:                     options.keepAlive,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         0,
		ConnectUsername:               options.username,
		ConnectPassword:               options.password,
		WillMessage:                   options.will,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
			c.connected.Store(true)
		},
		OnConnectError: func(err error) {
			c.notifyLost(err.Error())
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.onPublishReceived,
			},
			OnClientError: func(err error) {
				c.notifyLost(err.Error())
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				reason := fmt.Sprintf("server disconnect, reason code %d", d.ReasonCode)
				if d.Properties != nil && d.Properties.ReasonString != "" {
					reason = d.Properties.ReasonString
				}
				c.notifyLost(reason)
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	if err := cm.AwaitConnection(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	c.cm = cm
	return c, nil
}

// Disconnect closes the connection to the broker.
func (c *Client) Disconnect(ctx context.Context) error {
	c.connected.Store(false)
	return c.cm.Disconnect(ctx)
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Subscribe(filter string, qos byte, noLocal bool) bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
	defer cancel()

	_, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{
			Topic:   filter,
			QoS:     qos,
			NoLocal: noLocal,
		}},
	})
	return err == nil
}

func (c *Client) Unsubscribe(filter string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
	defer cancel()

	_, err := c.cm.Unsubscribe(ctx, &paho.Unsubscribe{
		Topics: []string{filter},
	})
	return err == nil
}

func (c *Client) Publish(topic string, payload []byte, qos byte, retain bool, userProps map[string]string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
	defer cancel()

	pub := &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     qos,
		Retain:  retain,
	}
	if len(userProps) > 0 {
		props := &paho.PublishProperties{}
		for k, v := range userProps {
			props.User = append(props.User, paho.UserProperty{Key: k, Value: v})
		}
		pub.Properties = props
	}

	_, err := c.cm.Publish(ctx, pub)
	return err == nil
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

func (c *Client) onPublishReceived(pr paho.PublishReceived) (bool, error) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler == nil {
		return false, nil
	}

	msg := transport.Message{
		Topic:    pr.Packet.Topic,
		Payload:  pr.Packet.Payload,
		QoS:      pr.Packet.QoS,
		Retained: pr.Packet.Retain,
	}
	if pr.Packet.Properties != nil && len(pr.Packet.Properties.User) > 0 {
		msg.UserProperties = make(map[string]string, len(pr.Packet.Properties.User))
		for _, p := range pr.Packet.Properties.User {
			msg.UserProperties[p.Key] = p.Value
		}
	}

	handler(msg)
	return true, nil
}

func (c *Client) notifyLost(reason string) {
	// Only report a transition, not every failed reconnect attempt.
	if !c.connected.Swap(false) {
		return
	}
	c.mu.Lock()
	handler := c.lostHandler
	c.mu.Unlock()
	if handler != nil {
		handler(reason)
	}
}
