// Package session is the server-side registry of voice call sessions. A
// session records who started a call, which conversation its transcript
// lands in, the room-scoped access token, and the lifecycle status.
package session

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
	StatusError   Status = "error"
)

var (
	ErrNotFound          = errors.New("session not found")
	ErrNotOwner          = errors.New("caller does not own this session")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// CanTransition reports whether a status change is allowed. Re-applying the
// current status is permitted and treated as a no-op by the registry.
func (s Status) CanTransition(to Status) bool {
	if s == to {
		return true
	}
	switch s {
	case StatusPending:
		return to == StatusActive || to == StatusEnded || to == StatusError
	case StatusActive:
		return to == StatusEnded || to == StatusError
	default:
		return false
	}
}

// VoiceSettings configures the speech synthesis side of a call.
type VoiceSettings struct {
	VoiceID         string  `json:"voice_id"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`
}

// TranscriptionSettings configures speech recognition for a call.
type TranscriptionSettings struct {
	Language string `json:"language"`
	Model    string `json:"model"`
}

// CallConfig is the recognized configuration for one call. Extension fields
// the gateway does not interpret ride along in Extra untouched.
type CallConfig struct {
	Instructions  string                `json:"instructions"`
	Voice         VoiceSettings         `json:"voice_settings"`
	Transcription TranscriptionSettings `json:"transcription_settings"`
	Extra         map[string]any        `json:"extra,omitempty"`
}

// Session is one voice call attempt.
type Session struct {
	ID             string     `json:"session_id"`
	UserID         string     `json:"user_id"`
	ConversationID string     `json:"conversation_id"`
	RoomName       string     `json:"room_name"`
	Identity       string     `json:"identity"`
	Token          string     `json:"token"`
	ServerURL      string     `json:"server_url"`
	Status         Status     `json:"status"`
	Config         CallConfig `json:"config"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// Duration reports how long the call has been (or was) live.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.CreatedAt)
	}
	return now.Sub(s.CreatedAt)
}
