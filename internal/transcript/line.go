// Package transcript decodes speech-to-text events arriving on the realtime
// transport's text stream and maintains the interim/final transcript
// buffers for display and persistence.
package transcript

import "time"

// Speaker identifies which side of the call produced an utterance.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Line is one utterance fragment. Interim lines are superseded in place
// until a final arrives; only final lines are ever persisted.
type Line struct {
	UtteranceID string    `json:"utterance_id"`
	Speaker     Speaker   `json:"speaker"`
	Text        string    `json:"text"`
	Final       bool      `json:"final"`
	CapturedAt  time.Time `json:"captured_at"`
}
