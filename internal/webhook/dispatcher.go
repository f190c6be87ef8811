// Package webhook delivers generated replies to a channel's destination webhook.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// EventNewMessage is the only outbound event type.
const EventNewMessage = "new_message"

// OutgoingPayload is the JSON body posted to a webhook.
type OutgoingPayload struct {
	EventType string `json:"event_type"`
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
}

// Sender delivers one reply.
type Sender interface {
	Dispatch(ctx context.Context, url, token, chatID, text string) error
}

// Dispatcher posts replies with bearer authentication. It never retries.
type Dispatcher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher whose requests are bounded by timeout.
func NewDispatcher(log *slog.Logger, timeout time.Duration) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("service", "webhook_dispatcher")),
	}
}

// Dispatch performs a single POST and reports transport errors and non-2xx statuses.
func (d *Dispatcher) Dispatch(ctx context.Context, url, token, chatID, text string) error {
	body, err := json.Marshal(OutgoingPayload{EventType: EventNewMessage, ChatID: chatID, Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	d.logger.Debug("webhook dispatched", slog.String("url", url), slog.String("chat_id", chatID))
	return nil
}
