// Package mqtt is the station's broker transport and the ingest
// subscriber, both on top of the Eclipse Paho client.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/wilot/weather-station/internal/config"
)

var ErrStopped = errors.New("mqtt: client stopped")

const (
	publishTimeout = 5 * time.Second
	pollInterval   = 200 * time.Millisecond
)

// Client is the station transport. Reconnection is driven by the caller
// (one attempt per cycle), so Paho's own retry and auto-reconnect are off.
type Client struct {
	client         paho.Client
	broker         string
	connectTimeout time.Duration
	logger         *slog.Logger

	mu        sync.RWMutex
	connected bool
	state     State

	stopCh   chan struct{}
	stopOnce sync.Once
}

func newOptions(broker, clientID string, connectTimeout time.Duration) *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker("tcp://" + broker)
	opts.SetClientID(clientID)
	// 3.1.1 only. Left at 0, Paho retries a refused CONNECT as 3.1 and
	// the broker's return code is lost.
	opts.SetProtocolVersion(4)

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(connectTimeout)

	opts.SetKeepAlive(15 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	return opts
}

func NewClient(cfg config.Config, logger *slog.Logger) *Client {
	c := &Client{
		broker:         cfg.BrokerAddr(),
		connectTimeout: cfg.MQTTConnectTimeout,
		logger:         logger,
		state:          StateDisconnected,
		stopCh:         make(chan struct{}),
	}

	opts := newOptions(c.broker, cfg.MQTTClientID, cfg.MQTTConnectTimeout)
	opts.SetOnConnectHandler(func(_ paho.Client) {
		c.setState(StateConnected)
		logger.Info("mqtt connected", "broker", c.broker)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.setState(StateConnectionLost)
		logger.Warn("mqtt connection lost", "broker", c.broker, "error", err)
	})

	c.client = paho.NewClient(opts)
	return c
}

// Connect makes a single connection attempt and waits for its outcome,
// bounded by ctx and the configured connect timeout. The resulting State is
// available from State.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrStopped
	default:
	}

	if c.IsConnected() {
		return nil
	}

	token := c.client.Connect()

	var deadline <-chan time.Time
	if c.connectTimeout > 0 {
		// Paho's own timeout covers the TCP dial; this one covers the CONNACK.
		timer := time.NewTimer(c.connectTimeout + pollInterval)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		if token.WaitTimeout(pollInterval) {
			break
		}
		select {
		case <-ctx.Done():
			c.client.Disconnect(0)
			c.setState(StateDisconnected)
			return ctx.Err()
		case <-c.stopCh:
			c.client.Disconnect(0)
			return ErrStopped
		case <-deadline:
			c.client.Disconnect(0)
			c.setState(StateConnectionTimeout)
			return fmt.Errorf("mqtt connect %s: timed out", c.broker)
		default:
		}
	}

	if err := token.Error(); err != nil {
		state := StateConnectFailed
		if ct, ok := token.(*paho.ConnectToken); ok && ct.ReturnCode() != 0 {
			state = stateFromReturnCode(ct.ReturnCode())
		}
		c.setState(state)
		return fmt.Errorf("mqtt connect %s (%s): %w", c.broker, state, err)
	}
	// The OnConnect handler normally got here first.
	c.setState(StateConnected)
	return nil
}

// Publish sends payload at QoS 0, unretained.
func (c *Client) Publish(topic string, payload []byte) error {
	if !c.IsConnected() {
		return fmt.Errorf("mqtt publish %s: not connected", topic)
	}

	token := c.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}

	c.logger.Debug("published", "topic", topic, "bytes", len(payload))
	return nil
}

// Loop services the connection once and reports whether it is still up.
// Paho handles keepalive on its own goroutines, so this only reconciles
// the reported state with the socket.
func (c *Client) Loop() bool {
	if c.IsConnected() {
		return true
	}
	c.mu.Lock()
	if c.connected {
		c.connected = false
		c.state = StateConnectionLost
	}
	c.mu.Unlock()
	return false
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Disconnect stops the client. It is idempotent; Connect returns
// ErrStopped afterwards.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	if c.client != nil {
		c.client.Disconnect(250)
	}

	c.setState(StateDisconnected)
	c.logger.Info("mqtt disconnected", "broker", c.broker)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.connected = s == StateConnected
	c.mu.Unlock()
}
