package transcript

import (
	"testing"
	"time"
)

func packet(identity, text string, attrs map[string]string) Packet {
	payload := `{"message":"` + text + `","attributes":{`
	first := true
	for k, v := range attrs {
		if !first {
			payload += ","
		}
		payload += `"` + k + `":"` + v + `"`
		first = false
	}
	payload += `}}`
	return Packet{
		Topic:               StreamTopic,
		ParticipantIdentity: identity,
		Payload:             []byte(payload),
		ReceivedAt:          time.Now().UTC(),
	}
}

func TestDecodeInterimAndFinal(t *testing.T) {
	interim := packet("me", "hel", map[string]string{
		"lk.transcribed_track_id": "tr-1",
		"lk.segment_id":           "seg-1",
	})
	ev, ok, err := Decode(interim, "me")
	if err != nil || !ok {
		t.Fatalf("Decode() = (%v, %v), want event", ok, err)
	}
	if ev.Final {
		t.Fatalf("fragment without finality attribute must be interim")
	}
	if ev.Speaker != SpeakerUser {
		t.Fatalf("Speaker = %q, want %q", ev.Speaker, SpeakerUser)
	}
	if ev.UtteranceID != "seg-1" {
		t.Fatalf("UtteranceID = %q, want seg-1", ev.UtteranceID)
	}

	final := packet("agent", "hello there", map[string]string{
		"lk.transcribed_track_id": "tr-2",
		"lk.segment_id":           "seg-2",
		"lk.transcription_final":  "true",
	})
	ev, ok, err = Decode(final, "me")
	if err != nil || !ok {
		t.Fatalf("Decode() = (%v, %v), want event", ok, err)
	}
	if !ev.Final {
		t.Fatalf("final attribute set, expected Final = true")
	}
	if ev.Speaker != SpeakerAssistant {
		t.Fatalf("Speaker = %q, want %q", ev.Speaker, SpeakerAssistant)
	}
}

func TestDecodeIgnoresNonTranscription(t *testing.T) {
	// Data message without a track association shares the channel but is not
	// speech-to-text output.
	pkt := packet("me", "chat ping", map[string]string{"custom": "x"})
	if _, ok, err := Decode(pkt, "me"); ok || err != nil {
		t.Fatalf("Decode() = (%v, %v), want skip without error", ok, err)
	}

	pkt = packet("me", "hi", map[string]string{"lk.transcribed_track_id": "tr-1"})
	pkt.Topic = "other.topic"
	if _, ok, err := Decode(pkt, "me"); ok || err != nil {
		t.Fatalf("wrong topic: Decode() = (%v, %v), want skip without error", ok, err)
	}
}

func TestDecodeUtteranceFallsBackToTrack(t *testing.T) {
	pkt := packet("me", "hi", map[string]string{"lk.transcribed_track_id": "tr-9"})
	ev, ok, err := Decode(pkt, "me")
	if err != nil || !ok {
		t.Fatalf("Decode() = (%v, %v), want event", ok, err)
	}
	if ev.UtteranceID != "tr-9" {
		t.Fatalf("UtteranceID = %q, want track fallback tr-9", ev.UtteranceID)
	}
}

func TestRelayInterimUpsertThenFinal(t *testing.T) {
	r := NewRelay("me")
	for _, text := range []string{"h", "he", "hel", "hell"} {
		r.Ingest(packet("me", text, map[string]string{
			"lk.transcribed_track_id": "tr-1",
			"lk.segment_id":           "seg-1",
		}))
	}
	if got := r.InFlightCount(); got != 1 {
		t.Fatalf("InFlightCount = %d, want 1 (interims upsert)", got)
	}

	r.Ingest(packet("me", "hello", map[string]string{
		"lk.transcribed_track_id": "tr-1",
		"lk.segment_id":           "seg-1",
		"lk.transcription_final":  "true",
	}))

	if got := r.CommittedCount(); got != 1 {
		t.Fatalf("CommittedCount = %d, want exactly 1", got)
	}
	if got := r.InFlightCount(); got != 0 {
		t.Fatalf("InFlightCount = %d, want 0 after final", got)
	}
	lines := r.Lines()
	if len(lines) != 1 || lines[0].Text != "hello" || !lines[0].Final {
		t.Fatalf("Lines() = %+v, want single final 'hello'", lines)
	}
}

func TestRelayDuplicateFinalAppends(t *testing.T) {
	r := NewRelay("me")
	final := packet("me", "done", map[string]string{
		"lk.transcribed_track_id": "tr-1",
		"lk.segment_id":           "seg-1",
		"lk.transcription_final":  "true",
	})
	r.Ingest(final)
	r.Ingest(final)
	if got := r.CommittedCount(); got != 2 {
		t.Fatalf("CommittedCount = %d, want 2 (no dedup across finals)", got)
	}
}

func TestRelayDropsMalformed(t *testing.T) {
	r := NewRelay("me")
	r.Ingest(Packet{Topic: StreamTopic, ParticipantIdentity: "me"})
	r.Ingest(Packet{Topic: StreamTopic, ParticipantIdentity: "me", Payload: []byte("{not json")})
	if got := r.DroppedCount(); got != 2 {
		t.Fatalf("DroppedCount = %d, want 2", got)
	}
	if got := r.CommittedCount() + r.InFlightCount(); got != 0 {
		t.Fatalf("malformed payloads must not create lines, got %d", got)
	}
}

func TestRelayLinesOrder(t *testing.T) {
	r := NewRelay("me")
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	r.Apply(Event{UtteranceID: "a", Speaker: SpeakerUser, Text: "first", Final: true, Timestamp: base})
	r.Apply(Event{UtteranceID: "b", Speaker: SpeakerAssistant, Text: "second", Final: true, Timestamp: base.Add(time.Second)})
	r.Apply(Event{UtteranceID: "d", Speaker: SpeakerUser, Text: "later interim", Timestamp: base.Add(3 * time.Second)})
	r.Apply(Event{UtteranceID: "c", Speaker: SpeakerAssistant, Text: "earlier interim", Timestamp: base.Add(2 * time.Second)})

	lines := r.Lines()
	want := []string{"first", "second", "earlier interim", "later interim"}
	if len(lines) != len(want) {
		t.Fatalf("len(Lines()) = %d, want %d", len(lines), len(want))
	}
	for i, w := range want {
		if lines[i].Text != w {
			t.Fatalf("Lines()[%d] = %q, want %q", i, lines[i].Text, w)
		}
	}
}

func TestRelayDrainFinalClearsBuffer(t *testing.T) {
	r := NewRelay("me")
	r.Apply(Event{UtteranceID: "a", Speaker: SpeakerUser, Text: "hi", Final: true, Timestamp: time.Now()})
	r.Apply(Event{UtteranceID: "b", Speaker: SpeakerUser, Text: "still talking", Timestamp: time.Now()})

	lines := r.DrainFinal()
	if len(lines) != 1 {
		t.Fatalf("DrainFinal() returned %d lines, want 1", len(lines))
	}
	if got := r.CommittedCount(); got != 0 {
		t.Fatalf("CommittedCount after drain = %d, want 0", got)
	}
	if len(r.DrainFinal()) != 0 {
		t.Fatalf("second drain must return nothing")
	}
}
