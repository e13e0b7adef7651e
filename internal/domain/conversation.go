package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// IsValid returns true if the role is a recognized value.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// MessageType classifies an assistant response so callers can render the
// structured payload that accompanies it.
type MessageType string

const (
	MessageTypeText          MessageType = "text"
	MessageTypeImageAnalysis MessageType = "image_analysis"
	MessageTypeOAuth         MessageType = "oauth"
	MessageTypeReport        MessageType = "report"
)

// IsValid returns true if the message type is a recognized value.
func (t MessageType) IsValid() bool {
	switch t {
	case MessageTypeText, MessageTypeImageAnalysis, MessageTypeOAuth, MessageTypeReport:
		return true
	}
	return false
}

// ConversationTurn is one entry in the append-only transcript of a session.
// Turns are never mutated after creation.
type ConversationTurn struct {
	ID           uuid.UUID
	SessionID    string
	Role         Role
	Content      string
	MessageType  MessageType
	AttachedData json.RawMessage // Optional structured payload
	Timestamp    time.Time
}
