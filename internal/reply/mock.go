package reply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/memohai/chatrelay/internal/dialogue"
)

// Mock answers deterministically from the last user message.
type Mock struct {
	// Delay simulates a slow backend.
	Delay time.Duration
}

func (m Mock) Generate(ctx context.Context, history []dialogue.Message) (string, error) {
	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	text := strings.TrimSpace(lastUserText(history))
	if text == "" {
		return "Hello! How can I help you?", nil
	}
	return fmt.Sprintf("You said: %s", text), nil
}
