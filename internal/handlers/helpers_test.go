package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/memohai/chatrelay/internal/chatbot"
	"github.com/memohai/chatrelay/internal/dialogue"
	"github.com/memohai/chatrelay/internal/event"
	"github.com/memohai/chatrelay/internal/inbound"
	"github.com/memohai/chatrelay/internal/reply"
	"github.com/memohai/chatrelay/internal/storage/memory"
	"github.com/memohai/chatrelay/internal/webhook"
)

// inlineScheduler runs the continuation before Schedule returns.
type inlineScheduler struct{}

func (inlineScheduler) Schedule(ctx context.Context, task inbound.Continuation, run inbound.RunFunc) error {
	run(context.WithoutCancel(ctx), task)
	return nil
}

type testApp struct {
	echo      *echo.Echo
	dialogues *memory.DialogueStore
	bots      *chatbot.Service
	channels  *dialogue.Service
	hub       *event.Hub
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	dialogues := memory.NewDialogueStore()
	bots := chatbot.NewService(nil, memory.NewChatBotStore())
	channels := dialogue.NewService(nil, dialogues, bots)
	hub := event.NewHub()
	pipeline := inbound.NewPipeline(nil, dialogues, reply.Mock{}, webhook.NewDispatcher(nil, 0), inlineScheduler{}, hub, inbound.Options{})

	e := echo.New()
	e.HTTPErrorHandler = NewHTTPErrorHandler(nil)
	e.Validator = NewRequestValidator()
	NewPingHandler(nil, nil).Register(e)
	NewChatBotHandler(nil, bots).Register(e)
	NewChannelHandler(nil, channels, hub).Register(e)
	NewWebhookHandler(nil, pipeline).Register(e)

	return &testApp{echo: e, dialogues: dialogues, bots: bots, channels: channels, hub: hub}
}

func (a *testApp) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func (a *testApp) createBot(t *testing.T, name string) chatbot.ChatBot {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/chatbots/", map[string]string{"name": name, "secret_token": name + "-secret"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create bot: status %d body %s", rec.Code, rec.Body.String())
	}
	return decode[chatbot.ChatBot](t, rec)
}

func (a *testApp) createChannel(t *testing.T, botID, webhookURL string) dialogue.Dialogue {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/channel/?chat_bot_id="+botID, map[string]string{"webhook_url": webhookURL}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create channel: status %d body %s", rec.Code, rec.Body.String())
	}
	return decode[dialogue.Dialogue](t, rec)
}
