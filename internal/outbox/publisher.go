package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/memohai/chatrelay/internal/inbound"
)

// Publisher writes continuations to a durable topic exchange and waits for
// the broker's confirmation.
type Publisher struct {
	exchange string
	logger   *slog.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

// NewPublisher declares the exchange and puts a channel into confirm mode.
func NewPublisher(log *slog.Logger, conn *amqp.Connection, exchange string) (*Publisher, error) {
	if log == nil {
		log = slog.Default()
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &Publisher{
		exchange: exchange,
		logger:   log.With(slog.String("component", "outbox_publisher")),
		ch:       ch,
	}, nil
}

// Schedule publishes task persistently. run is executed by the Consumer that
// receives the message, not here.
func (p *Publisher) Schedule(ctx context.Context, task inbound.Continuation, _ inbound.RunFunc) error {
	body, err := EncodeTask(task)
	if err != nil {
		return err
	}
	key := RoutingKey(task.DialogueID)

	p.mu.Lock()
	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: task.MessageID,
		Timestamp:     time.Now().UTC(),
		Body:          body,
	})
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish continuation: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm: %w", err)
	}
	if !acked {
		return ErrNotConfirmed
	}
	p.logger.Debug("continuation published", slog.String("key", key), slog.String("message_id", task.MessageID))
	return nil
}

// Close closes the publishing channel.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}
