// Package reply produces assistant replies from dialogue history.
package reply

import (
	"context"
	"errors"
	"time"

	"github.com/memohai/chatrelay/internal/dialogue"
)

// ErrEmptyReply is returned when a generator produced no text.
var ErrEmptyReply = errors.New("empty reply")

// Generator maps ordered history to a reply. Implementations may be slow or fail.
type Generator interface {
	Generate(ctx context.Context, history []dialogue.Message) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, history []dialogue.Message) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, history []dialogue.Message) (string, error) {
	return f(ctx, history)
}

// WithTimeout bounds every Generate call on g. A non-positive timeout returns g unchanged.
func WithTimeout(g Generator, timeout time.Duration) Generator {
	if timeout <= 0 {
		return g
	}
	return GeneratorFunc(func(ctx context.Context, history []dialogue.Message) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return g.Generate(ctx, history)
	})
}

func lastUserText(history []dialogue.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == dialogue.RoleUser {
			return history[i].Text
		}
	}
	return ""
}
