package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/memohai/chatrelay/internal/chatbot"
	"github.com/memohai/chatrelay/internal/dialogue"
)

func TestDialogueStoreRoundTripIsolatesCopies(t *testing.T) {
	t.Parallel()

	store := NewDialogueStore()
	ctx := context.Background()
	d := dialogue.Dialogue{ID: "d1", ChatBotID: "b1", WebhookURL: "https://x.test/hook"}
	d.Append(dialogue.Message{Role: dialogue.RoleUser, Text: "hello"})
	if err := store.Save(ctx, d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d.Messages[0].Text = "mutated after save"

	got, err := store.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Messages[0].Text != "hello" {
		t.Fatalf("store aliased caller slice: %q", got.Messages[0].Text)
	}
	got.Messages[0].Text = "mutated after get"
	again, _ := store.Get(ctx, "d1")
	if again.Messages[0].Text != "hello" {
		t.Fatalf("store aliased returned slice: %q", again.Messages[0].Text)
	}
}

func TestDialogueStoreNotFound(t *testing.T) {
	t.Parallel()

	store := NewDialogueStore()
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, dialogue.ErrDialogueNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Delete(context.Background(), "nope"); !errors.Is(err, dialogue.ErrDialogueNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDialogueStoreConcurrentDistinctIDs(t *testing.T) {
	t.Parallel()

	store := NewDialogueStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("d-%d", i)
			d := dialogue.Dialogue{ID: id}
			for j := 0; j < 10; j++ {
				d.Append(dialogue.Message{Role: dialogue.RoleUser, Text: fmt.Sprint(j)})
				if err := store.Save(ctx, d); err != nil {
					t.Errorf("save: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 32 {
		t.Fatalf("expected 32 dialogues, got %d", len(items))
	}
	for _, d := range items {
		if len(d.Messages) != 10 {
			t.Fatalf("dialogue %s has %d messages", d.ID, len(d.Messages))
		}
	}
}

func TestChatBotStore(t *testing.T) {
	t.Parallel()

	store := NewChatBotStore()
	ctx := context.Background()
	if err := store.Save(ctx, chatbot.ChatBot{ID: "b1", Name: "bot"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := store.Get(ctx, "b1")
	if err != nil || got.Name != "bot" {
		t.Fatalf("unexpected get: %#v %v", got, err)
	}
	items, _ := store.List(ctx)
	if len(items) != 1 {
		t.Fatalf("expected 1 bot, got %d", len(items))
	}
	if err := store.Delete(ctx, "b1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Get(ctx, "b1"); !errors.Is(err, chatbot.ErrChatBotNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
