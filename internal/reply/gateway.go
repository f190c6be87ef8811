package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/memohai/chatrelay/internal/dialogue"
)

type gatewayMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type gatewayRequest struct {
	Messages []gatewayMessage `json:"messages"`
}

type gatewayResponse struct {
	Text string `json:"text"`
}

// Gateway asks an HTTP reply backend for the next assistant message.
type Gateway struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGateway creates a generator posting history to url.
func NewGateway(log *slog.Logger, url string, timeout time.Duration) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Gateway{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("service", "reply_gateway")),
	}
}

func (g *Gateway) Generate(ctx context.Context, history []dialogue.Message) (string, error) {
	payload := gatewayRequest{Messages: make([]gatewayMessage, 0, len(history))}
	for _, m := range history {
		payload.Messages = append(payload.Messages, gatewayMessage{Role: string(m.Role), Text: m.Text})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.Error("gateway error", slog.String("url", g.url), slog.Int("status", resp.StatusCode), slog.String("body_prefix", truncate(string(respBody), 300)))
		return "", fmt.Errorf("reply gateway error: status %d", resp.StatusCode)
	}

	var parsed gatewayResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse gateway response: %w", err)
	}
	if strings.TrimSpace(parsed.Text) == "" {
		return "", ErrEmptyReply
	}
	return parsed.Text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
