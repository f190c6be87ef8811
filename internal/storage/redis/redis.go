// Package redis stores dialogues and chat bots as JSON documents in Redis hashes.
// Each collection is one hash keyed by "<prefix>:<collection>" with the record ID as field.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/memohai/chatrelay/internal/chatbot"
	"github.com/memohai/chatrelay/internal/config"
	"github.com/memohai/chatrelay/internal/dialogue"
)

// Open connects a client and verifies it with PING.
func Open(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func hashKey(prefix, collection string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = config.DefaultRedisKeyPrefix
	}
	return prefix + ":" + collection
}

// DialogueStore is a dialogue.Store over one Redis hash.
type DialogueStore struct {
	client goredis.Cmdable
	key    string
}

func NewDialogueStore(client goredis.Cmdable, prefix string) *DialogueStore {
	return &DialogueStore{client: client, key: hashKey(prefix, "dialogues")}
}

func (s *DialogueStore) Get(ctx context.Context, id string) (dialogue.Dialogue, error) {
	raw, err := s.client.HGet(ctx, s.key, id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return dialogue.Dialogue{}, dialogue.ErrDialogueNotFound
	}
	if err != nil {
		return dialogue.Dialogue{}, err
	}
	return decodeDialogue(raw)
}

func (s *DialogueStore) Save(ctx context.Context, d dialogue.Dialogue) error {
	if d.Messages == nil {
		d.Messages = []dialogue.Message{}
	}
	d.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.key, d.ID, raw).Err()
}

func (s *DialogueStore) List(ctx context.Context) ([]dialogue.Dialogue, error) {
	values, err := s.client.HVals(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}
	items := make([]dialogue.Dialogue, 0, len(values))
	for _, v := range values {
		d, err := decodeDialogue([]byte(v))
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, nil
}

func (s *DialogueStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.HDel(ctx, s.key, id).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return dialogue.ErrDialogueNotFound
	}
	return nil
}

func decodeDialogue(raw []byte) (dialogue.Dialogue, error) {
	var d dialogue.Dialogue
	if err := json.Unmarshal(raw, &d); err != nil {
		return dialogue.Dialogue{}, fmt.Errorf("decode dialogue: %w", err)
	}
	if d.Messages == nil {
		d.Messages = []dialogue.Message{}
	}
	return d, nil
}

// ChatBotStore is a chatbot.Store over one Redis hash.
type ChatBotStore struct {
	client goredis.Cmdable
	key    string
}

func NewChatBotStore(client goredis.Cmdable, prefix string) *ChatBotStore {
	return &ChatBotStore{client: client, key: hashKey(prefix, "chatbots")}
}

func (s *ChatBotStore) Get(ctx context.Context, id string) (chatbot.ChatBot, error) {
	raw, err := s.client.HGet(ctx, s.key, id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return chatbot.ChatBot{}, chatbot.ErrChatBotNotFound
	}
	if err != nil {
		return chatbot.ChatBot{}, err
	}
	var bot chatbot.ChatBot
	if err := json.Unmarshal(raw, &bot); err != nil {
		return chatbot.ChatBot{}, fmt.Errorf("decode chat bot: %w", err)
	}
	return bot, nil
}

func (s *ChatBotStore) Save(ctx context.Context, bot chatbot.ChatBot) error {
	raw, err := json.Marshal(bot)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.key, bot.ID, raw).Err()
}

func (s *ChatBotStore) List(ctx context.Context) ([]chatbot.ChatBot, error) {
	values, err := s.client.HVals(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}
	items := make([]chatbot.ChatBot, 0, len(values))
	for _, v := range values {
		var bot chatbot.ChatBot
		if err := json.Unmarshal([]byte(v), &bot); err != nil {
			return nil, fmt.Errorf("decode chat bot: %w", err)
		}
		items = append(items, bot)
	}
	return items, nil
}

func (s *ChatBotStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.HDel(ctx, s.key, id).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return chatbot.ErrChatBotNotFound
	}
	return nil
}
