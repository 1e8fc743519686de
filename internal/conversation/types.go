// Package conversation owns the conversation and message records that voice
// transcripts are appended to.
package conversation

import (
	"context"
	"errors"
	"time"
)

// MessageTypeVoiceTranscription marks messages produced by the voice
// transcript flush, as opposed to typed chat messages.
const MessageTypeVoiceTranscription = "voice_transcription"

var ErrNotFound = errors.New("conversation not found")

// Conversation groups the messages of one chat thread.
type Conversation struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Title     string         `json:"title"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Message is one persisted conversation entry.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	MessageType    string         `json:"message_type"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Store persists conversations and their messages.
type Store interface {
	Create(ctx context.Context, c Conversation) (Conversation, error)
	Get(ctx context.Context, id string) (Conversation, error)
	// AppendMessages writes a batch of messages to one conversation. The
	// batch is all-or-nothing on the postgres backend.
	AppendMessages(ctx context.Context, conversationID string, msgs []Message) error
	Messages(ctx context.Context, conversationID string) ([]Message, error)
	Close() error
}
