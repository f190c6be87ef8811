// Package outbox persists continuations in RabbitMQ so an acknowledged inbound
// message survives a restart. A Publisher is an inbound.Scheduler; a Consumer
// drains the queue into the pipeline.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/memohai/chatrelay/internal/inbound"
)

const (
	routingKeyPrefix = "continuation."
	bindingKey       = "continuation.#"
	maxDialDelay     = 60 * time.Second
)

// ErrNotConfirmed is returned when the broker nacks a published continuation.
var ErrNotConfirmed = errors.New("continuation not confirmed by broker")

// RoutingKey returns the routing key of a continuation for dialogueID.
func RoutingKey(dialogueID string) string {
	return routingKeyPrefix + strings.TrimSpace(dialogueID)
}

// EncodeTask serialises a continuation as a message body.
func EncodeTask(task inbound.Continuation) ([]byte, error) {
	return json.Marshal(task)
}

// DecodeTask parses a message body. A task without a dialogue id is rejected.
func DecodeTask(body []byte) (inbound.Continuation, error) {
	var task inbound.Continuation
	if err := json.Unmarshal(body, &task); err != nil {
		return inbound.Continuation{}, fmt.Errorf("decode continuation: %w", err)
	}
	if strings.TrimSpace(task.DialogueID) == "" {
		return inbound.Continuation{}, fmt.Errorf("decode continuation: missing dialogue_id")
	}
	return task, nil
}

// DialOptions controls connection retries.
type DialOptions struct {
	URL           string
	RetryAttempts int
	Delay         time.Duration
	Logger        *slog.Logger
}

// Dial connects to the broker with exponential backoff until ctx is done.
func Dial(ctx context.Context, opts DialOptions) (*amqp.Connection, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 5
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}
	var lastErr error
	sleep := opts.Delay
	for i := 1; i <= opts.RetryAttempts; i++ {
		conn, err := amqp.Dial(opts.URL)
		if err == nil {
			if i > 1 {
				opts.Logger.Info("amqp connected", slog.Int("attempt", i))
			}
			return conn, nil
		}
		lastErr = err
		if i == opts.RetryAttempts {
			break
		}
		opts.Logger.Warn("amqp dial failed",
			slog.Int("attempt", i),
			slog.Duration("sleep", sleep),
			slog.Any("error", err),
		)
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("amqp dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
		sleep *= 2
		if sleep > maxDialDelay {
			sleep = maxDialDelay
		}
	}
	return nil, fmt.Errorf("amqp connect failed after %d attempts: %w", opts.RetryAttempts, lastErr)
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
}
