package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service provisions and administers channels (dialogues).
type Service struct {
	store  Store
	bots   BotChecker
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a channel service. bots may be nil to skip the owner check.
func NewService(log *slog.Logger, store Store, bots BotChecker) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		bots:   bots,
		logger: log.With(slog.String("service", "dialogue")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create provisions a new channel owned by chatBotID.
func (s *Service) Create(ctx context.Context, chatBotID string, req CreateRequest) (Dialogue, error) {
	chatBotID = strings.TrimSpace(chatBotID)
	if chatBotID == "" {
		return Dialogue{}, fmt.Errorf("chat bot id is required")
	}
	webhookURL := strings.TrimSpace(req.WebhookURL)
	if webhookURL == "" {
		return Dialogue{}, fmt.Errorf("webhook url is required")
	}
	if s.bots != nil {
		ok, err := s.bots.Exists(ctx, chatBotID)
		if err != nil {
			return Dialogue{}, fmt.Errorf("check chat bot: %w", err)
		}
		if !ok {
			return Dialogue{}, ErrChatBotNotFound
		}
	}
	now := s.now()
	d := Dialogue{
		ID:         uuid.NewString(),
		ChatBotID:  chatBotID,
		WebhookURL: webhookURL,
		Messages:   []Message{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Save(ctx, d); err != nil {
		return Dialogue{}, err
	}
	s.logger.Info("channel created", slog.String("dialogue_id", d.ID), slog.String("chat_bot_id", chatBotID))
	return d, nil
}

// Get returns one channel.
func (s *Service) Get(ctx context.Context, id string) (Dialogue, error) {
	return s.store.Get(ctx, strings.TrimSpace(id))
}

// UpdateWebhook replaces the channel's destination webhook.
func (s *Service) UpdateWebhook(ctx context.Context, id string, req UpdateRequest) (Dialogue, error) {
	webhookURL := strings.TrimSpace(req.WebhookURL)
	if webhookURL == "" {
		return Dialogue{}, fmt.Errorf("webhook url is required")
	}
	d, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return Dialogue{}, err
	}
	d.WebhookURL = webhookURL
	d.UpdatedAt = s.now()
	if err := s.store.Save(ctx, d); err != nil {
		return Dialogue{}, err
	}
	return d, nil
}

// Delete removes a channel and its history.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("channel deleted", slog.String("dialogue_id", id))
	return nil
}

// List returns all channels ordered by creation time.
func (s *Service) List(ctx context.Context) ([]Dialogue, error) {
	items, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if items == nil {
		items = []Dialogue{}
	}
	return items, nil
}

// Messages returns a channel's ordered history.
func (s *Service) Messages(ctx context.Context, id string) ([]Message, error) {
	d, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if d.Messages == nil {
		return []Message{}, nil
	}
	return d.Messages, nil
}
