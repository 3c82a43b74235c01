package store

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type ChatKind string

const (
	ChatDirect ChatKind = "direct"
	ChatGroup  ChatKind = "group"
)

func (k ChatKind) Valid() bool {
	return k == ChatDirect || k == ChatGroup
}

type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportText ExportFormat = "text"
)

// ParseExportFormat normalizes user-supplied format names.
func ParseExportFormat(s string) (ExportFormat, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return ExportJSON, true
	case "text", "txt", "plain", "plaintext":
		return ExportText, true
	}
	return "", false
}

// User is a chat participant keyed by its platform identifier.
type User struct {
	ID          int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	DisplayName string    `gorm:"type:varchar(128);not null" json:"display_name"`
	FirstSeenAt time.Time `gorm:"not null" json:"first_seen_at"`
	LastSeenAt  time.Time `gorm:"not null" json:"last_seen_at"`
}

func (User) TableName() string { return "users" }

// Chat is a conversation surface, direct or group, keyed by its platform
// identifier.
type Chat struct {
	ID          int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Kind        ChatKind  `gorm:"type:varchar(16);not null" json:"kind"`
	Title       string    `gorm:"type:varchar(255)" json:"title"`
	FirstSeenAt time.Time `gorm:"not null" json:"first_seen_at"`
	LastSeenAt  time.Time `gorm:"not null" json:"last_seen_at"`
}

func (Chat) TableName() string { return "chats" }

// Message is one immutable utterance. Assistant messages carry a NULL
// UserID. The unique (interaction_id, role) index holds the pairing
// invariant: one user message and one assistant reply per interaction.
type Message struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID        int64     `gorm:"not null;index:idx_messages_chat_created,priority:1" json:"chat_id"`
	UserID        *int64    `gorm:"index:idx_messages_user_created,priority:1" json:"user_id,omitempty"`
	Role          Role      `gorm:"type:varchar(16);not null;index:uniq_messages_interaction_role,unique,priority:2" json:"role"`
	Body          string    `gorm:"type:text;not null" json:"body"`
	InteractionID string    `gorm:"type:varchar(26);not null;index:uniq_messages_interaction_role,unique,priority:1" json:"interaction_id"`
	CreatedAt     time.Time `gorm:"not null;index:idx_messages_chat_created,priority:2;index:idx_messages_user_created,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// TokenUsage is the per-interaction accounting record. The interaction
// identifier is the primary key, so double-accounting is a constraint
// violation rather than a second row.
type TokenUsage struct {
	InteractionID    string    `gorm:"primaryKey;type:varchar(26)" json:"interaction_id"`
	PromptTokens     int       `gorm:"not null" json:"prompt_tokens"`
	CompletionTokens int       `gorm:"not null" json:"completion_tokens"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
}

func (TokenUsage) TableName() string { return "token_usage" }

// Turn is one context-window entry handed to the AI collaborator.
type Turn struct {
	Role Role   `json:"role"`
	Body string `json:"body"`
}
