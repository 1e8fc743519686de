package bridge

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dterzis/voicegate/internal/fault"
	"github.com/dterzis/voicegate/internal/rtc"
	"github.com/dterzis/voicegate/internal/transcript"
)

// State is the bridge's connection state for one session attempt.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Flusher persists final transcript lines at teardown.
type Flusher interface {
	Flush(ctx context.Context, conversationID string, lines []transcript.Line) error
}

// Config is everything one call attempt needs, passed explicitly by the
// caller — the bridge reads no ambient session state.
type Config struct {
	ServerURL      string
	Token          string
	RoomName       string
	Identity       string
	ConversationID string
	// ConnectingTimeout bounds the join call. Zero means no watchdog.
	ConnectingTimeout time.Duration
}

// Bridge is the per-call state machine
// disconnected -> connecting -> connected -> disconnected|error.
type Bridge struct {
	cfg       Config
	transport Transport
	devices   Devices
	flusher   Flusher
	relay     *transcript.Relay

	mu       sync.Mutex
	state    State
	room     Room
	mic      Microphone
	spk      Speaker
	ended    bool
	loopDone chan struct{}
	onState  func(State)
}

func New(cfg Config, transport Transport, devices Devices, flusher Flusher) *Bridge {
	return &Bridge{
		cfg:       cfg,
		transport: transport,
		devices:   devices,
		flusher:   flusher,
		relay:     transcript.NewRelay(cfg.Identity),
		state:     StateDisconnected,
	}
}

// OnStateChange registers an observer for state transitions. Must be set
// before Connect.
func (b *Bridge) OnStateChange(fn func(State)) { b.onState = fn }

// State returns the current connection state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Lines exposes the relay's deterministic rendering order for the UI.
func (b *Bridge) Lines() []transcript.Line { return b.relay.Lines() }

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	b.state = s
	fn := b.onState
	b.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Connect verifies the token's room claim, acquires the microphone, joins
// the room and publishes the mic. The join is the only network-bound
// suspension; it is bounded by ConnectingTimeout when configured.
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateDisconnected || b.ended {
		b.mu.Unlock()
		return fault.New(fault.CodeConnectionError, "bridge already used for a call attempt")
	}
	b.state = StateConnecting
	b.mu.Unlock()
	if b.onState != nil {
		b.onState(StateConnecting)
	}

	// Fatal authorization error at join time: the token must be scoped to
	// exactly the room we are about to join.
	if err := rtc.VerifyRoomClaim(b.cfg.Token, b.cfg.RoomName); err != nil {
		b.setState(StateError)
		return err
	}

	mic, err := b.devices.AcquireMicrophone(ctx)
	if err != nil {
		b.setState(StateError)
		return fault.Wrap(fault.CodeConnectionError, "acquire microphone", err)
	}
	spk, err := b.devices.AcquireSpeaker(ctx)
	if err != nil {
		mic.Release()
		b.setState(StateError)
		return fault.Wrap(fault.CodeConnectionError, "acquire speaker", err)
	}
	b.mu.Lock()
	b.mic = mic
	b.spk = spk
	b.mu.Unlock()

	joinCtx := ctx
	if b.cfg.ConnectingTimeout > 0 {
		var cancel context.CancelFunc
		joinCtx, cancel = context.WithTimeout(ctx, b.cfg.ConnectingTimeout)
		defer cancel()
	}

	room, err := b.transport.Join(joinCtx, JoinParams{
		ServerURL: b.cfg.ServerURL,
		Token:     b.cfg.Token,
		RoomName:  b.cfg.RoomName,
	})
	if err != nil {
		b.releaseDevices()
		b.mu.Lock()
		raced := b.ended
		b.mu.Unlock()
		if !raced {
			b.setState(StateError)
		}
		return fault.Wrap(fault.CodeConnectionError, "join room", err)
	}

	b.mu.Lock()
	if b.ended {
		// End raced the join; tear the room down and stay disconnected.
		b.mu.Unlock()
		_ = room.Leave()
		b.releaseDevices()
		return nil
	}
	b.room = room
	b.mu.Unlock()

	if err := room.PublishMicrophone(ctx, mic); err != nil {
		_ = room.Leave()
		b.releaseDevices()
		b.mu.Lock()
		raced := b.ended
		b.mu.Unlock()
		if !raced {
			b.setState(StateError)
		}
		return fault.Wrap(fault.CodeConnectionError, "publish microphone", err)
	}

	// The ended re-check and the connected transition share one critical
	// section: once teardown has run, nothing may overwrite its final state.
	done := make(chan struct{})
	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		_ = room.Leave()
		b.releaseDevices()
		return nil
	}
	b.loopDone = done
	b.state = StateConnected
	fn := b.onState
	b.mu.Unlock()
	if fn != nil {
		fn(StateConnected)
	}

	go b.eventLoop(room, done)
	return nil
}

func (b *Bridge) eventLoop(room Room, done chan struct{}) {
	defer close(done)
	for ev := range room.Events() {
		switch ev.Type {
		case RoomEventTextStream:
			b.relay.Ingest(ev.Packet)
		case RoomEventClosed:
			// Remote-initiated closure ends the call cleanly.
			b.teardown(context.Background(), StateDisconnected, false)
			return
		case RoomEventDisconnected:
			if ev.Err != nil {
				log.Printf("[bridge] connection dropped: %v", ev.Err)
			}
			b.teardown(context.Background(), StateError, false)
			return
		}
	}
}

// End terminates the call. Safe to invoke from any state, including
// connecting, and idempotent: ending an ended bridge is a no-op. The
// microphone is always released and the final transcript flushed
// best-effort; a flush failure never prevents a clean disconnect.
func (b *Bridge) End(ctx context.Context) {
	b.teardown(ctx, StateDisconnected, true)
}

// teardown releases resources and flushes the transcript exactly once.
// waitLoop is false when called from the event loop itself, which cannot
// wait on its own completion.
func (b *Bridge) teardown(ctx context.Context, final State, waitLoop bool) {
	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return
	}
	b.ended = true
	room := b.room
	b.room = nil
	done := b.loopDone
	b.loopDone = nil
	b.mu.Unlock()

	if room != nil {
		if err := room.Leave(); err != nil {
			log.Printf("[bridge] leave room failed: %v", err)
		}
	}
	b.releaseDevices()
	if waitLoop && done != nil {
		<-done
	}

	// Drain before flushing so a retry can never duplicate messages. Lines
	// lost to a failed flush are accepted in exchange.
	lines := b.relay.DrainFinal()
	if len(lines) > 0 && b.flusher != nil {
		if err := b.flusher.Flush(ctx, b.cfg.ConversationID, lines); err != nil {
			log.Printf("[bridge] transcript flush failed for conversation %s: %v", b.cfg.ConversationID, err)
		}
	}

	b.setState(final)
}

// SetMicrophoneMuted toggles local capture. A no-op when no call is live.
func (b *Bridge) SetMicrophoneMuted(muted bool) {
	b.mu.Lock()
	mic := b.mic
	b.mu.Unlock()
	if mic != nil {
		mic.SetMuted(muted)
	}
}

// SetSpeakerEnabled toggles remote audio playback. Independent of the
// microphone handle, so the two toggles never block each other.
func (b *Bridge) SetSpeakerEnabled(enabled bool) {
	b.mu.Lock()
	spk := b.spk
	b.mu.Unlock()
	if spk != nil {
		spk.SetEnabled(enabled)
	}
}

func (b *Bridge) releaseDevices() {
	b.mu.Lock()
	mic := b.mic
	spk := b.spk
	b.mic = nil
	b.spk = nil
	b.mu.Unlock()
	if mic != nil {
		mic.Release()
	}
	if spk != nil {
		spk.Release()
	}
}
