package dialogue

import (
	"context"
	"errors"
	"time"
)

// Role identifies the author of a dialogue message.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
)

// Sender identifies who wrote an inbound message on the external channel.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderEmployee Sender = "employee"
)

// Valid reports whether s is a known sender.
func (s Sender) Valid() bool {
	return s == SenderCustomer || s == SenderEmployee
}

var (
	ErrDialogueNotFound = errors.New("dialogue not found")
	ErrChatBotNotFound  = errors.New("chat bot not found")
)

// Message is one entry of a dialogue history.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
	// MessageID is the inbound idempotency token of a user message.
	MessageID string `json:"message_id,omitempty"`
	// ReplyTo is the MessageID an assistant message answers.
	ReplyTo string `json:"reply_to,omitempty"`
}

// Dialogue is the persisted conversation of one external chat channel.
// Its ID doubles as the channel's bearer credential.
type Dialogue struct {
	ID         string    `json:"id"`
	ChatBotID  string    `json:"chat_bot_id"`
	WebhookURL string    `json:"webhook_url"`
	Messages   []Message `json:"message_list"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Last returns the most recent message.
func (d Dialogue) Last() (Message, bool) {
	if len(d.Messages) == 0 {
		return Message{}, false
	}
	return d.Messages[len(d.Messages)-1], true
}

// Append adds m at the end of the history.
func (d *Dialogue) Append(m Message) {
	d.Messages = append(d.Messages, m)
}

// HasReplyTo reports whether an assistant message already answers messageID.
func (d Dialogue) HasReplyTo(messageID string) bool {
	if messageID == "" {
		return false
	}
	for i := len(d.Messages) - 1; i >= 0; i-- {
		m := d.Messages[i]
		if m.Role == RoleAssistant && m.ReplyTo == messageID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slice memory with d.
func (d Dialogue) Clone() Dialogue {
	out := d
	if d.Messages != nil {
		out.Messages = make([]Message, len(d.Messages))
		copy(out.Messages, d.Messages)
	}
	return out
}

// Store persists dialogues. Save is a full-document upsert keyed by ID.
type Store interface {
	Get(ctx context.Context, id string) (Dialogue, error)
	Save(ctx context.Context, d Dialogue) error
	List(ctx context.Context) ([]Dialogue, error)
	Delete(ctx context.Context, id string) error
}

// BotChecker reports whether a chat bot exists.
type BotChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// CreateRequest is the input for provisioning a channel.
type CreateRequest struct {
	WebhookURL string `json:"webhook_url" validate:"required,http_url"`
}

// UpdateRequest is the input for changing a channel's webhook.
type UpdateRequest struct {
	WebhookURL string `json:"webhook_url" validate:"required,http_url"`
}
