package device

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/seantiz/bambubridge/internal/model"
)

// Retry defaults for the initial broker connection.
const (
	connectMaxRetries  = 5
	connectBaseBackoff = 500 * time.Millisecond

	disconnectQuiesceMS = 250
)

var errTokenTimeout = errors.New("mqtt operation timed out")

// Compile-time interface satisfaction check.
var _ Client = (*MQTTClient)(nil)

// MQTTClient implements Client over the printer's LAN MQTT broker. Reports
// arrive on paho's goroutines and are merged into a telemetry snapshot that
// Telemetry returns. It is safe for concurrent use.
type MQTTClient struct {
	cfg     Config
	logger  *slog.Logger
	client  mqtt.Client
	backoff time.Duration

	mu        sync.RWMutex
	telemetry model.Telemetry
	listeners []func()
}

// NewMQTTClient creates a client for the configured printer. It does not
// connect; call Connect.
func NewMQTTClient(cfg Config, logger *slog.Logger) *MQTTClient {
	c := &MQTTClient{
		cfg:     cfg,
		logger:  logger,
		backoff: connectBaseBackoff,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID("bambubridge-" + uuid.NewString()).
		SetUsername(DefaultUsername).
		SetPassword(cfg.AccessCode).
		SetTLSConfig(&tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // printers present self-signed certificates
		}).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	c.client = mqtt.NewClient(opts)
	return c
}

// OnUpdate registers fn to be called after every merged print report.
// Callbacks run on the transport's goroutine and must not block.
func (c *MQTTClient) OnUpdate(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Connect opens the broker connection, retrying with exponential backoff.
// Subscription and the initial pushall happen in the on-connect handler, so
// they are repeated after every automatic reconnect.
func (c *MQTTClient) Connect(ctx context.Context) error {
	var lastErr error
	backoff := c.backoff

	for attempt := 0; attempt < connectMaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("connect printer: %w", ctx.Err())
		default:
		}

		err := waitToken(ctx, c.client.Connect(), c.cfg.ConnectTimeout)
		if err == nil {
			return nil
		}

		lastErr = err
		c.logger.Warn("printer connection attempt failed",
			"broker", c.cfg.BrokerURL(),
			"attempt", attempt+1,
			"error", err,
		)
		if attempt < connectMaxRetries-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("connect printer: %w", ctx.Err())
			}
			backoff *= 2
		}
	}

	return fmt.Errorf("connect printer after %d attempts: %w", connectMaxRetries, lastErr)
}

// Close disconnects from the broker.
func (c *MQTTClient) Close() {
	c.client.Disconnect(disconnectQuiesceMS)
	connectedGauge.Set(0)
}

// Connected reports whether the broker connection is open.
func (c *MQTTClient) Connected() bool {
	return c.client.IsConnectionOpen()
}

// Publish sends cmd to the printer's request topic and waits for the broker
// to accept it.
func (c *MQTTClient) Publish(cmd Command) bool {
	if !c.Connected() {
		commandsTotal.WithLabelValues(string(cmd), resultDisconnected).Inc()
		return false
	}

	payload, err := cmd.Payload()
	if err != nil {
		c.logger.Error("encode command", "command", cmd, "error", err)
		commandsTotal.WithLabelValues(string(cmd), resultFailed).Inc()
		return false
	}

	token := c.client.Publish(c.cfg.RequestTopic(), 1, false, payload)
	if !token.WaitTimeout(c.cfg.PublishTimeout) {
		c.logger.Error("publish command", "command", cmd, "error", errTokenTimeout)
		commandsTotal.WithLabelValues(string(cmd), resultFailed).Inc()
		return false
	}
	if err := token.Error(); err != nil {
		c.logger.Error("publish command", "command", cmd, "error", err)
		commandsTotal.WithLabelValues(string(cmd), resultFailed).Inc()
		return false
	}

	commandsTotal.WithLabelValues(string(cmd), resultOK).Inc()
	return true
}

// Telemetry returns the last merged print telemetry.
func (c *MQTTClient) Telemetry() (model.Telemetry, error) {
	if !c.Connected() {
		return model.Telemetry{}, ErrNotConnected
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.telemetry, nil
}

func (c *MQTTClient) onConnect(client mqtt.Client) {
	connectedGauge.Set(1)
	c.logger.Info("printer connected", "broker", c.cfg.BrokerURL(), "serial", c.cfg.Serial)

	token := client.Subscribe(c.cfg.ReportTopic(), 0, c.handleMessage)
	if !token.WaitTimeout(c.cfg.ConnectTimeout) || token.Error() != nil {
		c.logger.Error("subscribe to reports", "topic", c.cfg.ReportTopic(), "error", token.Error())
		return
	}

	// Ask for a full status report so the first telemetry is complete.
	if !c.Publish(CommandPushAll) {
		c.logger.Warn("request full status failed")
	}
}

func (c *MQTTClient) onConnectionLost(_ mqtt.Client, err error) {
	connectedGauge.Set(0)
	c.logger.Warn("printer connection lost", "error", err)
}

func (c *MQTTClient) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	c.ingest(msg.Payload())
}

// ingest merges one report payload and notifies listeners.
func (c *MQTTClient) ingest(payload []byte) {
	c.mu.Lock()
	next, ok, err := MergeReport(c.telemetry, payload)
	if err != nil {
		c.mu.Unlock()
		reportDecodeErrorsTotal.Inc()
		c.logger.Debug("discard undecodable report", "error", err)
		return
	}
	if !ok {
		c.mu.Unlock()
		return
	}
	c.telemetry = next
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	reportsTotal.Inc()
	for _, fn := range listeners {
		fn()
	}
}

// waitToken waits for a paho token, a timeout or context cancellation.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errTokenTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
