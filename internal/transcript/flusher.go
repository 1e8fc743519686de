package transcript

import (
	"context"
	"time"

	"github.com/dterzis/voicegate/internal/conversation"
	"github.com/dterzis/voicegate/internal/fault"
)

// Flusher writes a call's final transcript lines to its conversation as one
// message batch at teardown.
type Flusher struct {
	store conversation.Store
}

func NewFlusher(store conversation.Store) *Flusher {
	return &Flusher{store: store}
}

// Flush appends lines as voice_transcription messages. Interim lines are
// skipped defensively; callers should pass final lines only. Callers own
// at-most-once semantics: re-invoking with the same lines after a success
// duplicates messages.
func (f *Flusher) Flush(ctx context.Context, conversationID string, lines []Line) error {
	msgs := make([]conversation.Message, 0, len(lines))
	for _, l := range lines {
		if !l.Final {
			continue
		}
		msgs = append(msgs, conversation.Message{
			Role:        string(l.Speaker),
			Content:     l.Text,
			MessageType: conversation.MessageTypeVoiceTranscription,
			Metadata: map[string]any{
				"captured_at":  l.CapturedAt.UTC().Format(time.RFC3339Nano),
				"source":       "voice",
				"utterance_id": l.UtteranceID,
			},
		})
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := f.store.AppendMessages(ctx, conversationID, msgs); err != nil {
		return fault.Wrap(fault.CodeSaveTranscriptFailed, "append transcript batch", err)
	}
	return nil
}
