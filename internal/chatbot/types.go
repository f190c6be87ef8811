package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrChatBotNotFound = errors.New("chat bot not found")
	ErrInvalidInput    = errors.New("invalid chat bot input")
)

// ChatBot is a named bot configuration that owns channels.
type ChatBot struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SecretToken string    `json:"secret_token"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists chat bots. Save is a full-document upsert keyed by ID.
type Store interface {
	Get(ctx context.Context, id string) (ChatBot, error)
	Save(ctx context.Context, bot ChatBot) error
	List(ctx context.Context) ([]ChatBot, error)
	Delete(ctx context.Context, id string) error
}

// CreateRequest is the input for creating a chat bot.
type CreateRequest struct {
	Name        string `json:"name" validate:"required,notblank"`
	SecretToken string `json:"secret_token" validate:"required,notblank"`
}

// UpdateRequest carries only the fields present in the request body.
type UpdateRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,notblank"`
	SecretToken *string `json:"secret_token,omitempty" validate:"omitempty,notblank"`
}

// Fields lists the names of the fields present in the request.
func (r UpdateRequest) Fields() []string {
	fields := make([]string, 0, 2)
	if r.Name != nil {
		fields = append(fields, "name")
	}
	if r.SecretToken != nil {
		fields = append(fields, "secret_token")
	}
	return fields
}

// Apply copies the present fields onto bot. Names are trimmed; a field that
// is present but blank yields ErrInvalidInput and leaves bot untouched.
func (r UpdateRequest) Apply(bot *ChatBot) error {
	name, token := bot.Name, bot.SecretToken
	if r.Name != nil {
		name = strings.TrimSpace(*r.Name)
		if name == "" {
			return fmt.Errorf("%w: name must not be blank", ErrInvalidInput)
		}
	}
	if r.SecretToken != nil {
		token = *r.SecretToken
		if strings.TrimSpace(token) == "" {
			return fmt.Errorf("%w: secret_token must not be blank", ErrInvalidInput)
		}
	}
	bot.Name, bot.SecretToken = name, token
	return nil
}
