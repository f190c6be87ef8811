package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/memohai/chatrelay/internal/chatbot"
	"github.com/memohai/chatrelay/internal/dialogue"
)

// testDB opens an in-memory SQLite database with the store tables.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return db
}

func TestDialogueStoreUpsertAndHistory(t *testing.T) {
	t.Parallel()

	store := NewDialogueStore(testDB(t))
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d := dialogue.Dialogue{ID: "d1", ChatBotID: "b1", WebhookURL: "https://x.test/hook", CreatedAt: created}
	if err := store.Save(ctx, d); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Messages == nil || len(got.Messages) != 0 {
		t.Fatalf("expected empty history, got %#v", got.Messages)
	}

	got.Append(dialogue.Message{Role: dialogue.RoleUser, Text: "hello", MessageID: "m1"})
	got.Append(dialogue.Message{Role: dialogue.RoleAssistant, Text: "hi there", ReplyTo: "m1"})
	got.WebhookURL = "https://y.test/hook"
	if err := store.Save(ctx, got); err != nil {
		t.Fatalf("second save: %v", err)
	}

	again, err := store.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.WebhookURL != "https://y.test/hook" {
		t.Fatalf("webhook not updated: %q", again.WebhookURL)
	}
	if len(again.Messages) != 2 || again.Messages[0].Text != "hello" || again.Messages[1].ReplyTo != "m1" {
		t.Fatalf("unexpected history: %#v", again.Messages)
	}
	if !again.CreatedAt.Equal(created) {
		t.Fatalf("created_at changed: %v", again.CreatedAt)
	}
}

func TestDialogueStoreListAndDelete(t *testing.T) {
	t.Parallel()

	store := NewDialogueStore(testDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, dialogue.Dialogue{ID: id, ChatBotID: "b", WebhookURL: "https://x.test", CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 3 || items[0].ID != "a" || items[2].ID != "c" {
		t.Fatalf("unexpected list: %#v", items)
	}
	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "b"); !errors.Is(err, dialogue.ErrDialogueNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.Get(ctx, "b"); !errors.Is(err, dialogue.ErrDialogueNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestChatBotStore(t *testing.T) {
	t.Parallel()

	store := NewChatBotStore(testDB(t))
	ctx := context.Background()
	bot := chatbot.ChatBot{ID: "b1", Name: "Bot", SecretToken: "s", CreatedAt: time.Now().UTC()}
	if err := store.Save(ctx, bot); err != nil {
		t.Fatalf("save: %v", err)
	}
	bot.Name = "Renamed"
	if err := store.Save(ctx, bot); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Renamed" || got.SecretToken != "s" {
		t.Fatalf("unexpected bot: %#v", got)
	}
	items, err := store.List(ctx)
	if err != nil || len(items) != 1 {
		t.Fatalf("unexpected list: %#v %v", items, err)
	}
	if err := store.Delete(ctx, "b1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "b1"); !errors.Is(err, chatbot.ErrChatBotNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
