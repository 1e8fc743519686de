package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dterzis/voicegate/internal/conversation"
	"github.com/dterzis/voicegate/internal/fault"
	"github.com/dterzis/voicegate/internal/rtc"
	"github.com/dterzis/voicegate/internal/transcript"
)

const (
	testAPIKey    = "APIabcdef1234567"
	testAPISecret = "secret-secret-secret-secret-1234"
)

func mintToken(t *testing.T, roomName string) string {
	t.Helper()
	issuer := rtc.NewTokenIssuer(testAPIKey, testAPISecret, "wss://rtc.example.com", time.Minute)
	token, err := issuer.Issue("user-1-ab12cd34", "user-1", roomName)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return token
}

func testConfig(t *testing.T, roomName string) Config {
	t.Helper()
	return Config{
		ServerURL:      "wss://rtc.example.com",
		Token:          mintToken(t, roomName),
		RoomName:       roomName,
		Identity:       "user-1-ab12cd34",
		ConversationID: "conv-1",
	}
}

type recordingFlusher struct {
	mu      sync.Mutex
	err     error
	flushes [][]transcript.Line
}

func (f *recordingFlusher) Flush(_ context.Context, _ string, lines []transcript.Line) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes = append(f.flushes, lines)
	return f.err
}

func (f *recordingFlusher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.flushes)
}

func textPacket(identity, text, segment string, final bool) transcript.Packet {
	payload := `{"message":"` + text + `","attributes":{"lk.transcribed_track_id":"tr-1","lk.segment_id":"` + segment + `"`
	if final {
		payload += `,"lk.transcription_final":"true"`
	}
	payload += `}}`
	return transcript.Packet{
		Topic:               transcript.StreamTopic,
		ParticipantIdentity: identity,
		Payload:             []byte(payload),
		ReceivedAt:          time.Now().UTC(),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBridgeCallRoundTrip(t *testing.T) {
	ctx := context.Background()
	transport := &MockTransport{}
	devices := &MockDevices{}

	store := conversation.NewInMemoryStore()
	conv, err := store.Create(ctx, conversation.Conversation{ID: "conv-1", UserID: "u1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	b := New(testConfig(t, "voice-session-conv-1"), transport, devices, transcript.NewFlusher(store))
	if err := b.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got := b.State(); got != StateConnected {
		t.Fatalf("state = %q, want %q", got, StateConnected)
	}

	room := transport.LastRoom()
	if !room.Published() {
		t.Fatalf("microphone was not published")
	}

	room.DeliverText(textPacket("user-1-ab12cd34", "I have a head", "seg-1", false))
	room.DeliverText(textPacket("user-1-ab12cd34", "I have a headache", "seg-1", true))
	room.DeliverText(textPacket("agent", "How long has it lasted?", "seg-2", true))

	waitFor(t, "relay commit", func() bool { return len(b.Lines()) >= 2 })

	b.End(ctx)
	if got := b.State(); got != StateDisconnected {
		t.Fatalf("state after End = %q, want %q", got, StateDisconnected)
	}
	if !room.Left() {
		t.Fatalf("room was not left")
	}
	if !devices.AllReleased() {
		t.Fatalf("microphone was not released")
	}

	msgs, err := store.Messages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("flushed %d messages, want 2 finals", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("roles = %q/%q", msgs[0].Role, msgs[1].Role)
	}
}

func TestBridgeEndWhileConnecting(t *testing.T) {
	ctx := context.Background()
	hold := make(chan struct{})
	transport := &MockTransport{JoinHold: hold}
	devices := &MockDevices{}
	flusher := &recordingFlusher{}

	b := New(testConfig(t, "voice-session-conv-1"), transport, devices, flusher)

	connectErr := make(chan error, 1)
	go func() { connectErr <- b.Connect(ctx) }()

	waitFor(t, "connecting state", func() bool { return b.State() == StateConnecting })
	b.End(ctx)
	close(hold)

	if err := <-connectErr; err != nil {
		t.Fatalf("Connect() after End error = %v, want nil", err)
	}
	if got := b.State(); got != StateDisconnected {
		t.Fatalf("state = %q, want %q", got, StateDisconnected)
	}
	if !devices.AllReleased() {
		t.Fatalf("microphone leaked after End during connect")
	}
	if room := transport.LastRoom(); room != nil && !room.Left() {
		t.Fatalf("raced join must leave the room")
	}
}

func TestBridgeEndWhilePublishing(t *testing.T) {
	ctx := context.Background()
	hold := make(chan struct{})
	transport := &MockTransport{PublishHold: hold}
	devices := &MockDevices{}

	b := New(testConfig(t, "voice-session-conv-1"), transport, devices, &recordingFlusher{})

	connectErr := make(chan error, 1)
	go func() { connectErr <- b.Connect(ctx) }()

	waitFor(t, "join", func() bool { return transport.LastRoom() != nil })
	b.End(ctx)
	close(hold)

	if err := <-connectErr; err != nil {
		t.Fatalf("Connect() after End error = %v, want nil", err)
	}
	// Connect finishing after teardown must not resurrect the bridge.
	if got := b.State(); got != StateDisconnected {
		t.Fatalf("state = %q, want %q", got, StateDisconnected)
	}
	if !devices.AllReleased() {
		t.Fatalf("devices leaked after End during publish")
	}
	if !transport.LastRoom().Left() {
		t.Fatalf("room was not left")
	}
}

func TestBridgeConnectingWatchdog(t *testing.T) {
	transport := &MockTransport{JoinHold: make(chan struct{})}
	devices := &MockDevices{}

	cfg := testConfig(t, "voice-session-conv-1")
	cfg.ConnectingTimeout = 30 * time.Millisecond
	b := New(cfg, transport, devices, &recordingFlusher{})

	err := b.Connect(context.Background())
	if err == nil {
		t.Fatalf("Connect() should fail when the join stalls")
	}
	if fault.CodeOf(err) != fault.CodeConnectionError {
		t.Fatalf("code = %q, want %q", fault.CodeOf(err), fault.CodeConnectionError)
	}
	if got := b.State(); got != StateError {
		t.Fatalf("state = %q, want %q", got, StateError)
	}
	if !devices.AllReleased() {
		t.Fatalf("microphone leaked after watchdog timeout")
	}
}

func TestBridgeRejectsMismatchedRoomClaim(t *testing.T) {
	cfg := testConfig(t, "voice-session-conv-1")
	cfg.Token = mintToken(t, "voice-session-other")
	transport := &MockTransport{}
	b := New(cfg, transport, &MockDevices{}, &recordingFlusher{})

	if err := b.Connect(context.Background()); err == nil {
		t.Fatalf("Connect() accepted a token scoped to another room")
	}
	if got := b.State(); got != StateError {
		t.Fatalf("state = %q, want %q", got, StateError)
	}
	if transport.LastRoom() != nil {
		t.Fatalf("join must not be attempted on claim mismatch")
	}
}

func TestBridgeEndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	transport := &MockTransport{}
	devices := &MockDevices{}
	flusher := &recordingFlusher{}

	b := New(testConfig(t, "voice-session-conv-1"), transport, devices, flusher)
	if err := b.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	transport.LastRoom().DeliverText(textPacket("agent", "bye", "seg-1", true))
	waitFor(t, "relay commit", func() bool { return len(b.Lines()) == 1 })

	b.End(ctx)
	b.End(ctx)

	if got := flusher.count(); got != 1 {
		t.Fatalf("flush count = %d, want exactly 1", got)
	}
	if got := b.State(); got != StateDisconnected {
		t.Fatalf("state = %q, want %q", got, StateDisconnected)
	}
}

func TestBridgeFlushFailureStillDisconnects(t *testing.T) {
	ctx := context.Background()
	transport := &MockTransport{}
	devices := &MockDevices{}
	flusher := &recordingFlusher{err: errors.New("db down")}

	b := New(testConfig(t, "voice-session-conv-1"), transport, devices, flusher)
	if err := b.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	transport.LastRoom().DeliverText(textPacket("agent", "bye", "seg-1", true))
	waitFor(t, "relay commit", func() bool { return len(b.Lines()) == 1 })

	b.End(ctx)
	if got := b.State(); got != StateDisconnected {
		t.Fatalf("state = %q, want %q even when flush fails", got, StateDisconnected)
	}
	if !devices.AllReleased() {
		t.Fatalf("microphone leaked on flush failure")
	}
}

func TestBridgeRemoteDropSetsError(t *testing.T) {
	ctx := context.Background()
	transport := &MockTransport{}
	devices := &MockDevices{}

	b := New(testConfig(t, "voice-session-conv-1"), transport, devices, &recordingFlusher{})
	if err := b.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	transport.LastRoom().Deliver(RoomEvent{Type: RoomEventDisconnected, Err: errors.New("ice failure")})
	waitFor(t, "error state", func() bool { return b.State() == StateError })
	if !devices.AllReleased() {
		t.Fatalf("microphone leaked on connection drop")
	}
}

func TestBridgeRemoteCloseDisconnectsCleanly(t *testing.T) {
	ctx := context.Background()
	transport := &MockTransport{}
	devices := &MockDevices{}

	b := New(testConfig(t, "voice-session-conv-1"), transport, devices, &recordingFlusher{})
	if err := b.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	transport.LastRoom().Deliver(RoomEvent{Type: RoomEventClosed})
	waitFor(t, "disconnected state", func() bool { return b.State() == StateDisconnected })
	if !devices.AllReleased() {
		t.Fatalf("microphone leaked on remote close")
	}
}

func TestBridgeDeviceToggles(t *testing.T) {
	ctx := context.Background()
	transport := &MockTransport{}
	devices := &MockDevices{}

	b := New(testConfig(t, "voice-session-conv-1"), transport, devices, &recordingFlusher{})

	// Toggles before a call are no-ops.
	b.SetMicrophoneMuted(true)
	b.SetSpeakerEnabled(false)

	if err := b.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	b.SetMicrophoneMuted(true)
	b.SetSpeakerEnabled(false)

	devices.mu.Lock()
	mic := devices.mics[0]
	spk := devices.speakers[0]
	devices.mu.Unlock()
	if !mic.Muted() {
		t.Fatalf("microphone not muted")
	}
	if spk.Enabled() {
		t.Fatalf("speaker still enabled")
	}

	b.End(ctx)
	if !devices.AllReleased() {
		t.Fatalf("devices leaked after End")
	}
}

func TestBridgeRejectsReuse(t *testing.T) {
	ctx := context.Background()
	transport := &MockTransport{}
	b := New(testConfig(t, "voice-session-conv-1"), transport, &MockDevices{}, &recordingFlusher{})
	if err := b.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := b.Connect(ctx); err == nil {
		t.Fatalf("second Connect() on the same bridge should fail")
	}
	b.End(ctx)
	if err := b.Connect(ctx); err == nil {
		t.Fatalf("Connect() after End should fail")
	}
}
