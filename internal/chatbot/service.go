package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service provides chat bot CRUD.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new chat bot service.
func NewService(log *slog.Logger, store Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "chatbot")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new chat bot.
func (s *Service) Create(ctx context.Context, req CreateRequest) (ChatBot, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return ChatBot{}, fmt.Errorf("%w: name must not be blank", ErrInvalidInput)
	}
	if strings.TrimSpace(req.SecretToken) == "" {
		return ChatBot{}, fmt.Errorf("%w: secret_token must not be blank", ErrInvalidInput)
	}
	now := s.now()
	bot := ChatBot{
		ID:          uuid.NewString(),
		Name:        name,
		SecretToken: req.SecretToken,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Save(ctx, bot); err != nil {
		return ChatBot{}, err
	}
	s.logger.Info("chat bot created", slog.String("chat_bot_id", bot.ID))
	return bot, nil
}

// Get returns a chat bot by ID.
func (s *Service) Get(ctx context.Context, id string) (ChatBot, error) {
	return s.store.Get(ctx, strings.TrimSpace(id))
}

// Exists reports whether a chat bot with id is stored.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.store.Get(ctx, strings.TrimSpace(id))
	if errors.Is(err, ErrChatBotNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns all chat bots ordered by creation time.
func (s *Service) List(ctx context.Context) ([]ChatBot, error) {
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
		items = []ChatBot{}
	}
	return items, nil
}

// Update applies the fields present in req and leaves the rest untouched.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (ChatBot, error) {
	bot, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return ChatBot{}, err
	}
	fields := req.Fields()
	if len(fields) == 0 {
		return bot, nil
	}
	if err := req.Apply(&bot); err != nil {
		return ChatBot{}, err
	}
	bot.UpdatedAt = s.now()
	if err := s.store.Save(ctx, bot); err != nil {
		return ChatBot{}, err
	}
	s.logger.Info("chat bot updated", slog.String("chat_bot_id", bot.ID), slog.Any("fields", fields))
	return bot, nil
}

// Delete removes a chat bot. Its channels are kept.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("chat bot deleted", slog.String("chat_bot_id", id))
	return nil
}
