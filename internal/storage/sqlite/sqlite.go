// Package sqlite stores dialogues and chat bots in SQLite through gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/memohai/chatrelay/internal/chatbot"
	"github.com/memohai/chatrelay/internal/dialogue"
)

type dialogueRow struct {
	ID         string             `gorm:"primaryKey"`
	ChatBotID  string             `gorm:"index;not null"`
	WebhookURL string             `gorm:"not null"`
	Messages   []dialogue.Message `gorm:"serializer:json"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (dialogueRow) TableName() string { return "dialogues" }

type chatBotRow struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	SecretToken string `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (chatBotRow) TableName() string { return "chat_bots" }

// Open opens (creating if needed) the database file at path and migrates the schema.
// ":memory:" opens a private in-memory database.
func Open(path string) (*gorm.DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate creates or updates the tables used by the stores.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&chatBotRow{}, &dialogueRow{}); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}

// DialogueStore is a dialogue.Store over the dialogues table.
type DialogueStore struct {
	db *gorm.DB
}

func NewDialogueStore(db *gorm.DB) *DialogueStore {
	return &DialogueStore{db: db}
}

func (s *DialogueStore) Get(ctx context.Context, id string) (dialogue.Dialogue, error) {
	var row dialogueRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dialogue.Dialogue{}, dialogue.ErrDialogueNotFound
	}
	if err != nil {
		return dialogue.Dialogue{}, err
	}
	return row.toDialogue(), nil
}

func (s *DialogueStore) Save(ctx context.Context, d dialogue.Dialogue) error {
	row := dialogueRow{
		ID:         d.ID,
		ChatBotID:  d.ChatBotID,
		WebhookURL: d.WebhookURL,
		Messages:   d.Messages,
		CreatedAt:  d.CreatedAt,
	}
	if row.Messages == nil {
		row.Messages = []dialogue.Message{}
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *DialogueStore) List(ctx context.Context) ([]dialogue.Dialogue, error) {
	var rows []dialogueRow
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]dialogue.Dialogue, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDialogue())
	}
	return items, nil
}

func (s *DialogueStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&dialogueRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return dialogue.ErrDialogueNotFound
	}
	return nil
}

func (r dialogueRow) toDialogue() dialogue.Dialogue {
	messages := r.Messages
	if messages == nil {
		messages = []dialogue.Message{}
	}
	return dialogue.Dialogue{
		ID:         r.ID,
		ChatBotID:  r.ChatBotID,
		WebhookURL: r.WebhookURL,
		Messages:   messages,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// ChatBotStore is a chatbot.Store over the chat_bots table.
type ChatBotStore struct {
	db *gorm.DB
}

func NewChatBotStore(db *gorm.DB) *ChatBotStore {
	return &ChatBotStore{db: db}
}

func (s *ChatBotStore) Get(ctx context.Context, id string) (chatbot.ChatBot, error) {
	var row chatBotRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return chatbot.ChatBot{}, chatbot.ErrChatBotNotFound
	}
	if err != nil {
		return chatbot.ChatBot{}, err
	}
	return chatbot.ChatBot(row), nil
}

func (s *ChatBotStore) Save(ctx context.Context, bot chatbot.ChatBot) error {
	row := chatBotRow(bot)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *ChatBotStore) List(ctx context.Context) ([]chatbot.ChatBot, error) {
	var rows []chatBotRow
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]chatbot.ChatBot, 0, len(rows))
	for _, row := range rows {
		items = append(items, chatbot.ChatBot(row))
	}
	return items, nil
}

func (s *ChatBotStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&chatBotRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return chatbot.ErrChatBotNotFound
	}
	return nil
}
