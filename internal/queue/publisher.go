package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"pkt.systems/pslog"

	"github.com/roomshare/roomd/internal/model"
)

// dialCooldown is the minimum gap between dial attempts after a failure,
// so a down broker does not get hammered once per chat line.
const dialCooldown = 5 * time.Second

// Publisher maintains one AMQP connection and publishes events over it,
// redialing lazily when the connection drops. All publish errors are
// returned to the caller; the reconcile loops treat them as
// fire-and-forget and only log.
type Publisher struct {
	url    string
	logger pslog.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	lastFail time.Time
}

// NewPublisher returns a Publisher for the given broker URL. No
// connection is made until the first publish.
func NewPublisher(url string, logger pslog.Logger) *Publisher {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Publisher{url: url, logger: logger}
}

// PublishStop enqueues a durable stop request for the session provider.
func (p *Publisher) PublishStop(ctx context.Context, ev VBrowserStopEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal stop event: %w", err)
	}
	return p.publish(ctx, StopQueue, body, true)
}

// PublishChat enqueues a chat line for the realtime layer.
func (p *Publisher) PublishChat(ctx context.Context, ev ChatEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal chat event: %w", err)
	}
	return p.publish(ctx, ChatQueue, body, false)
}

// EmitChat implements model.ChatEmitter. Rooms call it as they append
// system messages; failures are logged and swallowed because a missed
// chat line must never stall room bookkeeping.
func (p *Publisher) EmitChat(roomID string, msg model.ChatMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.PublishChat(ctx, ChatEvent{RoomID: roomID, Message: msg}); err != nil {
		p.logger.Warn("queue.chat.publish.failed", "room", roomID, "error", err)
	}
}

// Close tears down the connection. Safe to call with no connection open.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropLocked()
}

func (p *Publisher) publish(ctx context.Context, queueName string, body []byte, durable bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(queueName, durable, false, false, false, nil); err != nil {
		_ = p.dropLocked()
		return fmt.Errorf("queue declare %s: %w", queueName, err)
	}
	pub := amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Body:        body,
	}
	if durable {
		pub.DeliveryMode = amqp.Persistent
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		_ = p.dropLocked()
		return fmt.Errorf("publish %s: %w", queueName, err)
	}
	return nil
}

// channelLocked returns the open channel, dialing first when needed.
// Caller holds p.mu.
func (p *Publisher) channelLocked() (*amqp.Channel, error) {
	if p.ch != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	_ = p.dropLocked()
	if since := time.Since(p.lastFail); since < dialCooldown {
		return nil, fmt.Errorf("broker unavailable, retry in %s", dialCooldown-since)
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.lastFail = time.Now()
		p.logger.Warn("queue.dial.failed", "error", err)
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		p.lastFail = time.Now()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p.conn = conn
	p.ch = ch
	return ch, nil
}

// dropLocked closes and forgets the current connection so the next
// publish redials. Caller holds p.mu.
func (p *Publisher) dropLocked() error {
	var err error
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err = p.conn.Close()
		p.conn = nil
	}
	return err
}
