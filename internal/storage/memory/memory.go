// Package memory keeps dialogues and chat bots in process memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/memohai/chatrelay/internal/chatbot"
	"github.com/memohai/chatrelay/internal/dialogue"
)

// DialogueStore is a dialogue.Store backed by a sync.Map so distinct
// dialogues never contend on a shared lock.
type DialogueStore struct {
	items sync.Map
}

func NewDialogueStore() *DialogueStore {
	return &DialogueStore{}
}

func (s *DialogueStore) Get(_ context.Context, id string) (dialogue.Dialogue, error) {
	v, ok := s.items.Load(id)
	if !ok {
		return dialogue.Dialogue{}, dialogue.ErrDialogueNotFound
	}
	return v.(dialogue.Dialogue).Clone(), nil
}

func (s *DialogueStore) Save(_ context.Context, d dialogue.Dialogue) error {
	d = d.Clone()
	if d.Messages == nil {
		d.Messages = []dialogue.Message{}
	}
	d.UpdatedAt = time.Now().UTC()
	s.items.Store(d.ID, d)
	return nil
}

func (s *DialogueStore) List(_ context.Context) ([]dialogue.Dialogue, error) {
	out := []dialogue.Dialogue{}
	s.items.Range(func(_, v any) bool {
		out = append(out, v.(dialogue.Dialogue).Clone())
		return true
	})
	return out, nil
}

func (s *DialogueStore) Delete(_ context.Context, id string) error {
	if _, ok := s.items.LoadAndDelete(id); !ok {
		return dialogue.ErrDialogueNotFound
	}
	return nil
}

// ChatBotStore is a chatbot.Store held in memory.
type ChatBotStore struct {
	mu    sync.RWMutex
	items map[string]chatbot.ChatBot
}

func NewChatBotStore() *ChatBotStore {
	return &ChatBotStore{items: map[string]chatbot.ChatBot{}}
}

func (s *ChatBotStore) Get(_ context.Context, id string) (chatbot.ChatBot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bot, ok := s.items[id]
	if !ok {
		return chatbot.ChatBot{}, chatbot.ErrChatBotNotFound
	}
	return bot, nil
}

func (s *ChatBotStore) Save(_ context.Context, bot chatbot.ChatBot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[bot.ID] = bot
	return nil
}

func (s *ChatBotStore) List(_ context.Context) ([]chatbot.ChatBot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chatbot.ChatBot, 0, len(s.items))
	for _, bot := range s.items {
		out = append(out, bot)
	}
	return out, nil
}

func (s *ChatBotStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return chatbot.ErrChatBotNotFound
	}
	delete(s.items, id)
	return nil
}
