// Package postgres stores dialogues and chat bots in PostgreSQL through pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/memohai/chatrelay/internal/chatbot"
	"github.com/memohai/chatrelay/internal/dialogue"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	getDialogue = `SELECT id, chat_bot_id, webhook_url, message_list, created_at, updated_at
FROM dialogues WHERE id = $1`

	listDialogues = `SELECT id, chat_bot_id, webhook_url, message_list, created_at, updated_at
FROM dialogues ORDER BY created_at, id`

	upsertDialogue = `INSERT INTO dialogues (id, chat_bot_id, webhook_url, message_list, created_at, updated_at)
VALUES ($1, $2, $3, $4::jsonb, $5, now())
ON CONFLICT (id) DO UPDATE SET
  chat_bot_id = EXCLUDED.chat_bot_id,
  webhook_url = EXCLUDED.webhook_url,
  message_list = EXCLUDED.message_list,
  updated_at = now()`

	deleteDialogue = `DELETE FROM dialogues WHERE id = $1`

	getChatBot   = `SELECT id, name, secret_token, created_at, updated_at FROM chat_bots WHERE id = $1`
	listChatBots = `SELECT id, name, secret_token, created_at, updated_at FROM chat_bots ORDER BY created_at, id`

	upsertChatBot = `INSERT INTO chat_bots (id, name, secret_token, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  secret_token = EXCLUDED.secret_token,
  updated_at = EXCLUDED.updated_at`

	deleteChatBot = `DELETE FROM chat_bots WHERE id = $1`
)

// DialogueStore is a dialogue.Store over the dialogues table.
// The history is kept as one JSONB document per row.
type DialogueStore struct {
	db DBTX
}

func NewDialogueStore(db DBTX) *DialogueStore {
	return &DialogueStore{db: db}
}

func (s *DialogueStore) Get(ctx context.Context, id string) (dialogue.Dialogue, error) {
	d, err := scanDialogue(s.db.QueryRow(ctx, getDialogue, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return dialogue.Dialogue{}, dialogue.ErrDialogueNotFound
	}
	return d, err
}

func (s *DialogueStore) Save(ctx context.Context, d dialogue.Dialogue) error {
	messages := d.Messages
	if messages == nil {
		messages = []dialogue.Message{}
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode message list: %w", err)
	}
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := s.db.Exec(ctx, upsertDialogue, d.ID, d.ChatBotID, d.WebhookURL, string(raw), createdAt); err != nil {
		return fmt.Errorf("save dialogue: %w", err)
	}
	return nil
}

func (s *DialogueStore) List(ctx context.Context) ([]dialogue.Dialogue, error) {
	rows, err := s.db.Query(ctx, listDialogues)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []dialogue.Dialogue{}
	for rows.Next() {
		d, err := scanDialogue(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (s *DialogueStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, deleteDialogue, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return dialogue.ErrDialogueNotFound
	}
	return nil
}

func scanDialogue(row pgx.Row) (dialogue.Dialogue, error) {
	var (
		d   dialogue.Dialogue
		raw []byte
	)
	if err := row.Scan(&d.ID, &d.ChatBotID, &d.WebhookURL, &raw, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return dialogue.Dialogue{}, err
	}
	d.Messages = []dialogue.Message{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &d.Messages); err != nil {
			return dialogue.Dialogue{}, fmt.Errorf("decode message list: %w", err)
		}
	}
	return d, nil
}

// ChatBotStore is a chatbot.Store over the chat_bots table.
type ChatBotStore struct {
	db DBTX
}

func NewChatBotStore(db DBTX) *ChatBotStore {
	return &ChatBotStore{db: db}
}

func (s *ChatBotStore) Get(ctx context.Context, id string) (chatbot.ChatBot, error) {
	bot, err := scanChatBot(s.db.QueryRow(ctx, getChatBot, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return chatbot.ChatBot{}, chatbot.ErrChatBotNotFound
	}
	return bot, err
}

func (s *ChatBotStore) Save(ctx context.Context, bot chatbot.ChatBot) error {
	now := time.Now().UTC()
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = now
	}
	if bot.UpdatedAt.IsZero() {
		bot.UpdatedAt = now
	}
	if _, err := s.db.Exec(ctx, upsertChatBot, bot.ID, bot.Name, bot.SecretToken, bot.CreatedAt, bot.UpdatedAt); err != nil {
		return fmt.Errorf("save chat bot: %w", err)
	}
	return nil
}

func (s *ChatBotStore) List(ctx context.Context) ([]chatbot.ChatBot, error) {
	rows, err := s.db.Query(ctx, listChatBots)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []chatbot.ChatBot{}
	for rows.Next() {
		bot, err := scanChatBot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, bot)
	}
	return items, rows.Err()
}

func (s *ChatBotStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, deleteChatBot, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return chatbot.ErrChatBotNotFound
	}
	return nil
}

func scanChatBot(row pgx.Row) (chatbot.ChatBot, error) {
	var bot chatbot.ChatBot
	if err := row.Scan(&bot.ID, &bot.Name, &bot.SecretToken, &bot.CreatedAt, &bot.UpdatedAt); err != nil {
		return chatbot.ChatBot{}, err
	}
	return bot, nil
}
