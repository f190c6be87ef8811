package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/memohai/chatrelay/internal/inbound"
	"github.com/memohai/chatrelay/internal/workerpool"
)

// ConsumerOptions names the queue and its flow control. RequeueDelay is how
// long a delivery the pool has no room for is held before it is requeued.
type ConsumerOptions struct {
	Exchange     string
	Queue        string
	Prefetch     int
	RequeueDelay time.Duration
}

// Consumer delivers queued continuations to run on a worker pool. A message is
// acked after run returns and dropped if run panics; a pool that cannot take it
// puts it back on the queue.
type Consumer struct {
	conn   *amqp.Connection
	opts   ConsumerOptions
	pool   *workerpool.Pool
	run    inbound.RunFunc
	logger *slog.Logger

	mu   sync.Mutex
	ch   *amqp.Channel
	tag  string
	done chan struct{}
}

func NewConsumer(log *slog.Logger, conn *amqp.Connection, opts ConsumerOptions, pool *workerpool.Pool, run inbound.RunFunc) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 8
	}
	if opts.RequeueDelay <= 0 {
		opts.RequeueDelay = 500 * time.Millisecond
	}
	return &Consumer{
		conn:   conn,
		opts:   opts,
		pool:   pool,
		run:    run,
		logger: log.With(slog.String("component", "outbox_consumer")),
		tag:    "chatrelay-continuations",
	}
}

// Start declares the queue, binds it to every continuation key and begins consuming.
func (c *Consumer) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		return nil
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	if err := c.setup(ch); err != nil {
		_ = ch.Close()
		return err
	}
	deliveries, err := ch.Consume(c.opts.Queue, c.tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume: %w", err)
	}
	c.ch = ch
	c.done = make(chan struct{})
	go c.loop(deliveries, c.done)
	c.logger.Info("consumer started", slog.String("queue", c.opts.Queue), slog.Int("prefetch", c.opts.Prefetch))
	return nil
}

func (c *Consumer) setup(ch *amqp.Channel) error {
	if err := declareExchange(ch, c.opts.Exchange); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.Qos(c.opts.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	q, err := ch.QueueDeclare(c.opts.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, bindingKey, c.opts.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

func (c *Consumer) loop(deliveries <-chan amqp.Delivery, done chan struct{}) {
	defer close(done)
	for d := range deliveries {
		c.handle(d)
	}
}

func (c *Consumer) handle(d amqp.Delivery) {
	task, err := DecodeTask(d.Body)
	if err != nil {
		c.logger.Error("drop undecodable continuation", slog.String("routing_key", d.RoutingKey), slog.Any("error", err))
		_ = d.Nack(false, false)
		return
	}
	err = c.pool.Submit(c.job(d, task))
	if err == nil {
		return
	}
	if errors.Is(err, workerpool.ErrQueueFull) {
		c.logger.Warn("requeue continuation", slog.String("dialogue_id", task.DialogueID), slog.Any("error", err))
		time.Sleep(c.opts.RequeueDelay)
	}
	_ = d.Nack(false, true)
}

// job settles d exactly once after run finishes.
func (c *Consumer) job(d amqp.Delivery, task inbound.Continuation) workerpool.Job {
	return func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("continuation panicked, dropping delivery",
					slog.String("dialogue_id", task.DialogueID), slog.Any("panic", r))
				_ = d.Nack(false, false)
				return
			}
			if err := d.Ack(false); err != nil {
				c.logger.Warn("ack failed", slog.String("dialogue_id", task.DialogueID), slog.Any("error", err))
			}
		}()
		c.run(ctx, task)
	}
}

// Shutdown stops consuming and waits for the delivery loop to exit. Deliveries
// not yet acked are redelivered by the broker.
func (c *Consumer) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	ch, done := c.ch, c.done
	c.ch = nil
	c.mu.Unlock()
	if ch == nil {
		return nil
	}
	if err := ch.Cancel(c.tag, false); err != nil {
		c.logger.Warn("cancel consumer failed", slog.Any("error", err))
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
	return ch.Close()
}
