package transcript

import (
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// StreamTopic is the text stream that carries speech-to-text output.
const StreamTopic = "lk.transcription"

// Attribute keys set by the transport on transcription stream messages.
const (
	attrTrackID = "lk.transcribed_track_id"
	attrFinal   = "lk.transcription_final"
	attrSegment = "lk.segment_id"
)

var errEmptyPayload = errors.New("empty text stream payload")

// Packet is one inbound delivery from the transport's text stream channel.
type Packet struct {
	Topic               string
	ParticipantIdentity string
	Payload             []byte
	ReceivedAt          time.Time
}

// Event is a decoded transcription event.
type Event struct {
	UtteranceID string
	TrackID     string
	Speaker     Speaker
	Text        string
	Final       bool
	Timestamp   time.Time
}

type streamMessage struct {
	Message    string            `json:"message"`
	Attributes map[string]string `json:"attributes"`
}

// Decode parses a text stream packet. The second return is false for
// packets that are not transcription events (wrong topic, or no track
// association attribute) — callers ignore those. A non-nil error means the
// payload was malformed; callers log and drop it.
//
// Finality comes from an explicit attribute; when the attribute is absent
// the fragment is treated as interim, so partial text is never committed.
func Decode(pkt Packet, localIdentity string) (Event, bool, error) {
	if pkt.Topic != "" && pkt.Topic != StreamTopic {
		return Event{}, false, nil
	}
	if len(pkt.Payload) == 0 {
		return Event{}, false, errEmptyPayload
	}

	var msg streamMessage
	if err := json.Unmarshal(pkt.Payload, &msg); err != nil {
		return Event{}, false, err
	}

	trackID := msg.Attributes[attrTrackID]
	if trackID == "" {
		// A data message without a track association is not speech-to-text
		// output; other features share the data channel.
		return Event{}, false, nil
	}

	speaker := SpeakerAssistant
	if pkt.ParticipantIdentity == localIdentity {
		speaker = SpeakerUser
	}

	utteranceID := msg.Attributes[attrSegment]
	if utteranceID == "" {
		utteranceID = trackID
	}

	ts := pkt.ReceivedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return Event{
		UtteranceID: utteranceID,
		TrackID:     trackID,
		Speaker:     speaker,
		Text:        msg.Message,
		Final:       strings.EqualFold(msg.Attributes[attrFinal], "true"),
		Timestamp:   ts,
	}, true, nil
}
