package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/chatrelay/internal/dialogue"
	"github.com/memohai/chatrelay/internal/event"
	"github.com/memohai/chatrelay/internal/reply"
	"github.com/memohai/chatrelay/internal/webhook"
)

// Options tunes a Pipeline.
type Options struct {
	Dedup               DedupPolicy
	DedupWindow         int
	ContinuationTimeout time.Duration
}

// Pipeline processes new_message calls: a synchronous accept phase and an
// asynchronous continuation that generates, stores and dispatches the reply.
type Pipeline struct {
	store     dialogue.Store
	generator reply.Generator
	sender    webhook.Sender
	scheduler Scheduler
	events    event.Publisher
	logger    *slog.Logger
	opts      Options
}

// NewPipeline wires a pipeline. events may be nil.
func NewPipeline(log *slog.Logger, store dialogue.Store, generator reply.Generator, sender webhook.Sender, scheduler Scheduler, events event.Publisher, opts Options) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if opts.Dedup == "" {
		opts.Dedup = DedupBoth
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = defaultDedupWindow
	}
	if opts.ContinuationTimeout <= 0 {
		opts.ContinuationTimeout = 2 * time.Minute
	}
	return &Pipeline{
		store:     store,
		generator: generator,
		sender:    sender,
		scheduler: scheduler,
		events:    events,
		logger:    log.With(slog.String("service", "inbound")),
		opts:      opts,
	}
}

// HandleNewMessage authenticates the call by its Authorization header value,
// stores the user message and schedules the reply. A duplicate is a silent
// success. Errors are ErrUnauthenticated, dialogue.ErrDialogueNotFound or a
// storage failure.
func (p *Pipeline) HandleNewMessage(ctx context.Context, authorization string, msg IncomingMessage) error {
	token, ok := BearerToken(authorization)
	if !ok {
		return ErrUnauthenticated
	}
	d, err := p.store.Get(ctx, token)
	if err != nil {
		return err
	}

	if p.opts.Dedup.IsDuplicate(d, msg.MessageID, p.opts.DedupWindow) {
		p.logger.Debug("duplicate message suppressed",
			slog.String("dialogue_id", d.ID),
			slog.String("message_id", msg.MessageID),
		)
		return nil
	}

	userMsg := dialogue.Message{Role: dialogue.RoleUser, Text: msg.Text, MessageID: msg.MessageID}
	d.Append(userMsg)
	if err := p.store.Save(ctx, d); err != nil {
		return fmt.Errorf("save inbound message: %w", err)
	}
	p.publish(d.ID, userMsg)

	task := Continuation{
		DialogueID: d.ID,
		ChatID:     msg.ChatID,
		Sender:     msg.MessageSender,
		MessageID:  msg.MessageID,
	}
	if err := p.scheduler.Schedule(ctx, task, p.Continue); err != nil {
		p.logger.Error("schedule continuation failed",
			slog.String("dialogue_id", d.ID),
			slog.String("message_id", msg.MessageID),
			slog.Any("error", err),
		)
	}
	return nil
}

// Continue runs the reply step of one accepted message. It never returns an
// error: every failure is logged and the turn ends without a reply.
func (p *Pipeline) Continue(ctx context.Context, task Continuation) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ContinuationTimeout)
	defer cancel()

	log := p.logger.With(
		slog.String("dialogue_id", task.DialogueID),
		slog.String("message_id", task.MessageID),
	)

	d, err := p.store.Get(ctx, task.DialogueID)
	if err != nil {
		if errors.Is(err, dialogue.ErrDialogueNotFound) {
			log.Warn("dialogue gone before reply")
		} else {
			log.Error("load dialogue failed", slog.Any("error", err))
		}
		return
	}
	if d.HasReplyTo(task.MessageID) {
		log.Info("reply already stored, skipping")
		return
	}

	text, err := p.generator.Generate(ctx, d.Clone().Messages)
	if err != nil {
		log.Error("reply generation failed", slog.Any("error", err))
		return
	}

	// Reload so messages accepted while generating are kept.
	d, err = p.store.Get(ctx, task.DialogueID)
	if err != nil {
		log.Error("reload dialogue failed", slog.Any("error", err))
		return
	}
	if d.HasReplyTo(task.MessageID) {
		log.Info("reply stored concurrently, skipping")
		return
	}
	assistantMsg := dialogue.Message{Role: dialogue.RoleAssistant, Text: text, ReplyTo: task.MessageID}
	d.Append(assistantMsg)
	if err := p.store.Save(ctx, d); err != nil {
		log.Error("save reply failed", slog.Any("error", err))
		return
	}
	p.publish(d.ID, assistantMsg)

	if task.Sender != dialogue.SenderCustomer {
		return
	}
	if strings.TrimSpace(d.WebhookURL) == "" {
		log.Warn("no webhook configured, reply not dispatched")
		return
	}
	if err := p.sender.Dispatch(ctx, d.WebhookURL, d.ID, task.ChatID, text); err != nil {
		log.Warn("webhook dispatch failed", slog.String("url", d.WebhookURL), slog.Any("error", err))
	}
}

func (p *Pipeline) publish(dialogueID string, msg dialogue.Message) {
	if p.events == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Warn("encode message event failed", slog.Any("error", err))
		return
	}
	p.events.Publish(event.Event{
		Type:       event.EventTypeMessageCreated,
		DialogueID: dialogueID,
		Data:       data,
	})
}
