// internal/mqtt/publisher.go
package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"dataexplorer-comm/internal/config"
	"dataexplorer-comm/internal/model"
)

const publishTimeout = 5 * time.Second

// client is the part of the paho client the publisher uses
type client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// StatusMessage is the retained port status
type StatusMessage struct {
	Connected    bool      `json:"connected"`
	Transmitting bool      `json:"transmitting"`
	Receiving    bool      `json:"receiving"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TelegramMessage is published for every received telegram
type TelegramMessage struct {
	SessionID  string    `json:"session_id"`
	Sequence   int64     `json:"sequence"`
	Size       int       `json:"size"`
	Data       string    `json:"data"`
	ReadMode   string    `json:"read_mode"`
	DurationMs int       `json:"duration_ms"`
	ReceivedAt time.Time `json:"received_at"`
}

// Publisher mirrors the port status and the received telegrams to an MQTT
// broker. Status is published retained on <prefix>/status, telegrams on
// <prefix>/telegram.
type Publisher struct {
	config config.MQTTConfig
	client client
	logger *zap.Logger

	mu     sync.Mutex
	status StatusMessage
}

// NewPublisher creates a publisher for cfg; Connect has to be called before use
func NewPublisher(cfg config.MQTTConfig, logger *zap.Logger) *Publisher {
	p := &Publisher{
		config: cfg,
		logger: logger.With(zap.String("component", "mqtt"), zap.String("broker", cfg.Broker)),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetKeepAlive(30 * time.Second).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	offline, _ := json.Marshal(StatusMessage{})
	opts.SetWill(p.topic("status"), string(offline), cfg.QoS, true)

	opts.SetOnConnectHandler(func(paho.Client) {
		p.logger.Info("Connected to MQTT broker")
		p.publishStatus()
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.logger.Warn("MQTT connection lost", zap.Error(err))
	})

	p.client = paho.NewClient(opts)
	return p
}

// Connect connects to the broker within the configured timeout
func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(p.config.ConnectTimeout) {
		return fmt.Errorf("mqtt connect timeout after %s", p.config.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect failed: %w", err)
	}
	return nil
}

// Disconnect publishes the offline status and disconnects
func (p *Publisher) Disconnect() {
	p.SetConnected(false)
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	p.logger.Info("Disconnected from MQTT broker")
}

// SetTransmitActive implements comm.StatusListener
func (p *Publisher) SetTransmitActive(active bool) {
	p.update(func(s *StatusMessage) bool {
		changed := s.Transmitting != active
		s.Transmitting = active
		return changed
	})
}

// SetReceiveActive implements comm.StatusListener
func (p *Publisher) SetReceiveActive(active bool) {
	p.update(func(s *StatusMessage) bool {
		changed := s.Receiving != active
		s.Receiving = active
		return changed
	})
}

// SetConnected implements comm.StatusListener
func (p *Publisher) SetConnected(connected bool) {
	p.update(func(s *StatusMessage) bool {
		changed := s.Connected != connected
		s.Connected = connected
		if !connected {
			s.Transmitting, s.Receiving = false, false
		}
		return changed
	})
}

// PublishTelegram publishes a received telegram
func (p *Publisher) PublishTelegram(telegram *model.Telegram) {
	payload, err := json.Marshal(TelegramMessage{
		SessionID:  telegram.SessionID.String(),
		Sequence:   telegram.Sequence,
		Size:       telegram.Size,
		Data:       telegram.Hex,
		ReadMode:   string(telegram.ReadMode),
		DurationMs: telegram.DurationMs,
		ReceivedAt: telegram.ReceivedAt,
	})
	if err != nil {
		p.logger.Error("Failed to encode telegram", zap.Error(err))
		return
	}
	p.publish(p.topic("telegram"), false, payload)
}

func (p *Publisher) update(apply func(*StatusMessage) bool) {
	p.mu.Lock()
	changed := apply(&p.status)
	if changed {
		p.status.UpdatedAt = time.Now()
	}
	p.mu.Unlock()

	if changed {
		p.publishStatus()
	}
}

func (p *Publisher) publishStatus() {
	p.mu.Lock()
	payload, err := json.Marshal(p.status)
	p.mu.Unlock()
	if err != nil {
		p.logger.Error("Failed to encode status", zap.Error(err))
		return
	}
	p.publish(p.topic("status"), true, payload)
}

// publish never blocks the caller; delivery errors are logged
func (p *Publisher) publish(topic string, retained bool, payload []byte) {
	if !p.client.IsConnected() {
		return
	}
	token := p.client.Publish(topic, p.config.QoS, retained, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			p.logger.Warn("MQTT publish timed out", zap.String("topic", topic))
			return
		}
		if err := token.Error(); err != nil {
			p.logger.Warn("MQTT publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}()
}

func (p *Publisher) topic(name string) string {
	return fmt.Sprintf("%s/%s", p.config.TopicPrefix, name)
}
