package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/google/uuid"

	"github.com/mbrazalez/CEP4Pollution/internal/config"
)

const publishTimeout = 5 * time.Second

var errStopped = errors.New("client stopped")

// NoReturnCode marks a connect failure that never got a CONNACK (dial error, timeout).
const NoReturnCode = -1

// ConnectError reports a failed broker handshake. ReturnCode is the CONNACK
// return code (1-5), or NoReturnCode when no CONNACK arrived.
type ConnectError struct {
	ReturnCode int
	Err        error
}

func (e *ConnectError) Error() string {
	if e.ReturnCode == NoReturnCode {
		return fmt.Sprintf("mqtt connect (no connack): %v", e.Err)
	}
	return fmt.Sprintf("mqtt connect (return code %d): %v", e.ReturnCode, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

type Client struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewClient builds a client for tcp://MQTTBroker:MQTTPort. Nothing is dialed until Connect.
func NewClient(cfg config.Config, logger *slog.Logger) *Client {
	c := &Client{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	clientID := cfg.MQTTClientID
	if clientID == "" {
		clientID = "cep4pollution-simulator-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(clientID)

	opts.SetCleanSession(true)

	// A failed handshake must surface to Connect instead of retrying in the background.
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(cfg.MQTTConnectTimeout)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort, "client_id", clientID)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c
}

func newClientWith(cfg config.Config, logger *slog.Logger, pc mqtt.Client) *Client {
	return &Client{
		client: pc,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

func brokerURL(cfg config.Config) string {
	return fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort)
}

// Connect performs the broker handshake, retrying up to MQTTConnectRetries
// extra times with exponential backoff. The last failure is returned as a
// *ConnectError.
func (c *Client) Connect(ctx context.Context) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.MQTTConnectRetryInterval
	eb.MaxInterval = 30 * time.Second
	eb.MaxElapsedTime = 0
	eb.Reset()

	policy := backoff.WithContext(
		backoff.WithMaxRetries(eb, uint64(c.cfg.MQTTConnectRetries)),
		ctx,
	)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := c.connectOnce(ctx)
		if err == nil {
			return nil
		}
		var ce *ConnectError
		if !errors.As(err, &ce) {
			// Cancellation or Disconnect: retrying cannot help.
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, next time.Duration) {
		c.logger.Warn("mqtt connect attempt failed, retrying",
			"attempt", attempt,
			"retry_in", next,
			"error", err,
		)
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Client) connectOnce(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return errStopped
	default:
	}

	if c.IsConnected() {
		return nil
	}

	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return &ConnectError{ReturnCode: returnCode(token), Err: err}
			}
			c.setConnected(true)
			return nil
		}

		select {
		case <-ctx.Done():
			c.client.Disconnect(0)
			return ctx.Err()
		case <-c.stopCh:
			c.client.Disconnect(0)
			return errStopped
		default:
		}
	}
}

// returnCode extracts the broker's CONNACK code. Paho reports dial and
// protocol failures with its own codes above the MQTT 3.1.1 range
// (packets.ErrNetworkError is 254); those did not come from a broker.
func returnCode(token mqtt.Token) int {
	ct, ok := token.(*mqtt.ConnectToken)
	if !ok {
		return NoReturnCode
	}
	rc := ct.ReturnCode()
	if rc == packets.Accepted || rc > packets.ErrRefusedNotAuthorised {
		return NoReturnCode
	}
	return int(rc)
}

// Publish sends payload to topic and waits for the library to accept it.
// There is no connection check: on a dead connection the library error is returned.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, c.cfg.MQTTQoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	c.logger.Debug("published", "topic", topic, "bytes", len(payload))
	return nil
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect stops the client and closes the MQTT connection.
// Idempotent; after Disconnect, Connect fails with "client stopped".
func (c *Client) Disconnect() {
	first := false
	c.stopOnce.Do(func() {
		close(c.stopCh)
		first = true
	})
	if !first {
		return
	}

	// Paho Disconnect quiesces in-flight work for the given ms.
	c.client.Disconnect(250)

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
