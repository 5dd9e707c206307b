package mqtt

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dataexplorer-comm/internal/config"
	"dataexplorer-comm/internal/model"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type message struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu        sync.Mutex
	connected bool
	messages  []message
}

func (c *fakeClient) Connect() paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return doneToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message{topic: topic, retained: retained, payload: payload.([]byte)})
	return doneToken{}
}

func (c *fakeClient) published() []message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message(nil), c.messages...)
}

func newTestPublisher(t *testing.T) (*Publisher, *fakeClient) {
	t.Helper()
	p := NewPublisher(config.MQTTConfig{
		Broker:         "tcp://localhost:1883",
		ClientID:       "test",
		TopicPrefix:    "dataexplorer",
		ConnectTimeout: time.Second,
	}, zap.NewNop())
	fake := &fakeClient{}
	p.client = fake
	if err := p.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return p, fake
}

func TestPublisherStatusChanges(t *testing.T) {
	p, fake := newTestPublisher(t)

	p.SetConnected(true)
	p.SetConnected(true)
	p.SetReceiveActive(true)
	p.SetReceiveActive(false)
	p.SetConnected(false)

	msgs := fake.published()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 status messages for 4 changes, got %d", len(msgs))
	}
	for _, m := range msgs {
		if m.topic != "dataexplorer/status" || !m.retained {
			t.Errorf("unexpected message %+v", m)
		}
	}

	var status StatusMessage
	if err := json.Unmarshal(msgs[1].payload, &status); err != nil {
		t.Fatal(err)
	}
	if !status.Connected || !status.Receiving {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestPublisherTelegram(t *testing.T) {
	p, fake := newTestPublisher(t)

	telegram := model.NewTelegram(uuid.New(), 7, []byte{0x0F, 0x04}, model.ReadModeStable, 12*time.Millisecond)
	telegram.Hex = "0F 04"
	p.PublishTelegram(telegram)

	msgs := fake.published()
	if len(msgs) != 1 || msgs[0].topic != "dataexplorer/telegram" || msgs[0].retained {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	var got TelegramMessage
	if err := json.Unmarshal(msgs[0].payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.Sequence != 7 || got.Data != "0F 04" || got.Size != 2 || got.ReadMode != "stable" || got.DurationMs != 12 {
		t.Errorf("unexpected telegram message %+v", got)
	}
}

func TestPublisherSkipsWhenDisconnected(t *testing.T) {
	p, fake := newTestPublisher(t)
	p.Disconnect()
	before := len(fake.published())

	p.SetConnected(true)
	p.PublishTelegram(model.NewTelegram(uuid.New(), 1, []byte{1}, model.ReadModeFixed, 0))

	if after := len(fake.published()); after != before {
		t.Errorf("published %d messages while disconnected", after-before)
	}
}
