package dialogue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu      sync.Mutex
	items   map[string]Dialogue
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: map[string]Dialogue{}}
}

func (f *fakeStore) Get(_ context.Context, id string) (Dialogue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.items[id]
	if !ok {
		return Dialogue{}, ErrDialogueNotFound
	}
	return d.Clone(), nil
}

func (f *fakeStore) Save(_ context.Context, d Dialogue) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[d.ID] = d.Clone()
	return nil
}

func (f *fakeStore) List(_ context.Context) ([]Dialogue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Dialogue, 0, len(f.items))
	for _, d := range f.items {
		out = append(out, d.Clone())
	}
	return out, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return ErrDialogueNotFound
	}
	delete(f.items, id)
	return nil
}

type fakeBots struct {
	existsFunc func(ctx context.Context, id string) (bool, error)
}

func (f fakeBots) Exists(ctx context.Context, id string) (bool, error) {
	if f.existsFunc == nil {
		return true, nil
	}
	return f.existsFunc(ctx, id)
}

func TestServiceCreateAndList(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(nil, store, fakeBots{})
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	first, err := svc.Create(context.Background(), "bot-1", CreateRequest{WebhookURL: "https://a.test/hook"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Create(context.Background(), "bot-1", CreateRequest{WebhookURL: "https://b.test/hook"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID == "" || first.ID == second.ID {
		t.Fatalf("expected distinct ids, got %q and %q", first.ID, second.ID)
	}
	if first.Messages == nil || len(first.Messages) != 0 {
		t.Fatalf("expected empty history, got %#v", first.Messages)
	}

	items, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[0].ID != first.ID || items[1].ID != second.ID {
		t.Fatalf("unexpected list order: %#v", items)
	}
}

func TestServiceCreateRequiresExistingBot(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, newFakeStore(), fakeBots{existsFunc: func(context.Context, string) (bool, error) {
		return false, nil
	}})
	_, err := svc.Create(context.Background(), "missing", CreateRequest{WebhookURL: "https://a.test"})
	if !errors.Is(err, ErrChatBotNotFound) {
		t.Fatalf("expected ErrChatBotNotFound, got %v", err)
	}
	if _, err := svc.Create(context.Background(), " ", CreateRequest{WebhookURL: "https://a.test"}); err == nil {
		t.Fatalf("expected error for empty chat bot id")
	}
}

func TestServiceUpdateWebhookKeepsHistory(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.items["d1"] = Dialogue{ID: "d1", ChatBotID: "b", WebhookURL: "https://old.test", Messages: []Message{{Role: RoleUser, Text: "hi"}}}
	svc := NewService(nil, store, nil)

	updated, err := svc.UpdateWebhook(context.Background(), "d1", UpdateRequest{WebhookURL: "https://new.test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.WebhookURL != "https://new.test" {
		t.Fatalf("unexpected webhook: %q", updated.WebhookURL)
	}
	msgs, err := svc.Messages(context.Background(), "d1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "hi" {
		t.Fatalf("history changed: %#v", msgs)
	}
}

func TestServiceNotFound(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, newFakeStore(), nil)
	ctx := context.Background()
	if _, err := svc.UpdateWebhook(ctx, "nope", UpdateRequest{WebhookURL: "https://x.test"}); !errors.Is(err, ErrDialogueNotFound) {
		t.Fatalf("update: expected not found, got %v", err)
	}
	if err := svc.Delete(ctx, "nope"); !errors.Is(err, ErrDialogueNotFound) {
		t.Fatalf("delete: expected not found, got %v", err)
	}
	if _, err := svc.Messages(ctx, "nope"); !errors.Is(err, ErrDialogueNotFound) {
		t.Fatalf("messages: expected not found, got %v", err)
	}
}

func TestDialogueHelpers(t *testing.T) {
	t.Parallel()

	var d Dialogue
	if _, ok := d.Last(); ok {
		t.Fatalf("empty dialogue has no last message")
	}
	d.Append(Message{Role: RoleUser, Text: "q", MessageID: "m1"})
	d.Append(Message{Role: RoleAssistant, Text: "a", ReplyTo: "m1"})
	last, ok := d.Last()
	if !ok || last.Text != "a" {
		t.Fatalf("unexpected last: %#v", last)
	}
	if !d.HasReplyTo("m1") || d.HasReplyTo("m2") || d.HasReplyTo("") {
		t.Fatalf("unexpected HasReplyTo results")
	}
	clone := d.Clone()
	clone.Messages[0].Text = "changed"
	if d.Messages[0].Text != "q" {
		t.Fatalf("clone shares memory with original")
	}
}
