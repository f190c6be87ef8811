package chatbot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	items map[string]ChatBot
}

func (m *mapStore) Get(_ context.Context, id string) (ChatBot, error) {
	bot, ok := m.items[id]
	if !ok {
		return ChatBot{}, ErrChatBotNotFound
	}
	return bot, nil
}

func (m *mapStore) Save(_ context.Context, bot ChatBot) error {
	m.items[bot.ID] = bot
	return nil
}

func (m *mapStore) List(_ context.Context) ([]ChatBot, error) {
	out := make([]ChatBot, 0, len(m.items))
	for _, bot := range m.items {
		out = append(out, bot)
	}
	return out, nil
}

func (m *mapStore) Delete(_ context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return ErrChatBotNotFound
	}
	delete(m.items, id)
	return nil
}

func strPtr(s string) *string { return &s }

func TestServiceCreateGet(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, &mapStore{items: map[string]ChatBot{}})
	bot, err := svc.Create(context.Background(), CreateRequest{Name: "TestBot", SecretToken: "s3cr3t"})
	require.NoError(t, err)
	assert.NotEmpty(t, bot.ID)

	got, err := svc.Get(context.Background(), bot.ID)
	require.NoError(t, err)
	assert.Equal(t, "TestBot", got.Name)
	assert.Equal(t, "s3cr3t", got.SecretToken)

	ok, err := svc.Exists(context.Background(), bot.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.Exists(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServiceCreateValidates(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, &mapStore{items: map[string]ChatBot{}})
	_, err := svc.Create(context.Background(), CreateRequest{Name: " ", SecretToken: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Create(context.Background(), CreateRequest{Name: "n"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Create(context.Background(), CreateRequest{Name: "n", SecretToken: "\t "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestServiceUpdateTrimsAndRejectsBlankName(t *testing.T) {
	t.Parallel()

	store := &mapStore{items: map[string]ChatBot{}}
	svc := NewService(nil, store)
	bot, err := svc.Create(context.Background(), CreateRequest{Name: "orig", SecretToken: "s"})
	require.NoError(t, err)

	got, err := svc.Update(context.Background(), bot.ID, UpdateRequest{Name: strPtr("  renamed  ")})
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	_, err = svc.Update(context.Background(), bot.ID, UpdateRequest{Name: strPtr("   "), SecretToken: strPtr("new")})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "renamed", store.items[bot.ID].Name)
	assert.Equal(t, "s", store.items[bot.ID].SecretToken)
}

func TestServicePartialUpdate(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, &mapStore{items: map[string]ChatBot{}})
	bot, err := svc.Create(context.Background(), CreateRequest{Name: "Original", SecretToken: "orig"})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), bot.ID, UpdateRequest{Name: strPtr("Updated"), SecretToken: strPtr("upd")})
	require.NoError(t, err)
	assert.Equal(t, "Updated", updated.Name)
	assert.Equal(t, "upd", updated.SecretToken)

	partial, err := svc.Update(context.Background(), bot.ID, UpdateRequest{Name: strPtr("PartialOnly")})
	require.NoError(t, err)
	assert.Equal(t, "PartialOnly", partial.Name)
	assert.Equal(t, "upd", partial.SecretToken)

	unchanged, err := svc.Update(context.Background(), bot.ID, UpdateRequest{})
	require.NoError(t, err)
	assert.Equal(t, partial, unchanged)
}

func TestServiceDeleteAndNotFound(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, &mapStore{items: map[string]ChatBot{}})
	bot, err := svc.Create(context.Background(), CreateRequest{Name: "ToDelete", SecretToken: "t"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), bot.ID))

	_, err = svc.Get(context.Background(), bot.ID)
	assert.True(t, errors.Is(err, ErrChatBotNotFound))
	_, err = svc.Update(context.Background(), bot.ID, UpdateRequest{Name: strPtr("X")})
	assert.True(t, errors.Is(err, ErrChatBotNotFound))
	assert.True(t, errors.Is(svc.Delete(context.Background(), bot.ID), ErrChatBotNotFound))
}

func TestUpdateRequestFields(t *testing.T) {
	t.Parallel()

	assert.Empty(t, UpdateRequest{}.Fields())
	assert.Equal(t, []string{"secret_token"}, UpdateRequest{SecretToken: strPtr("x")}.Fields())
	assert.Equal(t, []string{"name", "secret_token"}, UpdateRequest{Name: strPtr("n"), SecretToken: strPtr("x")}.Fields())
}

func TestServiceListEmptyIsNotNil(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, &mapStore{items: map[string]ChatBot{}})
	items, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Len(t, items, 0)
}
