// Package inbound accepts messages from external chat channels and turns each
// accepted message into a stored user turn plus an asynchronously generated reply.
package inbound

import (
	"context"
	"errors"
	"strings"

	"github.com/memohai/chatrelay/internal/dialogue"
)

// ErrUnauthenticated means the request carried no usable bearer credential.
var ErrUnauthenticated = errors.New("unauthenticated")

// IncomingMessage is the body of a new_message webhook call.
type IncomingMessage struct {
	MessageID     string          `json:"message_id" validate:"required"`
	ChatID        string          `json:"chat_id" validate:"required"`
	Text          string          `json:"text"`
	MessageSender dialogue.Sender `json:"message_sender" validate:"required,oneof=customer employee"`
}

// Continuation identifies the reply step of one accepted message.
type Continuation struct {
	DialogueID string          `json:"dialogue_id"`
	ChatID     string          `json:"chat_id"`
	Sender     dialogue.Sender `json:"sender"`
	MessageID  string          `json:"message_id"`
}

// RunFunc executes a continuation.
type RunFunc func(ctx context.Context, task Continuation)

// Scheduler runs continuations outside the request that produced them.
type Scheduler interface {
	Schedule(ctx context.Context, task Continuation, run RunFunc) error
}

// BearerToken extracts the credential from an Authorization header value.
// The scheme match is case-insensitive.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
