package bridge

import (
	"context"
	"sync"

	"github.com/dterzis/voicegate/internal/transcript"
)

// MockTransport is an in-process transport for tests and local development.
type MockTransport struct {
	JoinErr     error
	JoinHold    chan struct{} // when set, Join blocks until closed or ctx done
	PublishHold chan struct{} // propagated to created rooms

	mu    sync.Mutex
	rooms []*MockRoom
}

func (t *MockTransport) Join(ctx context.Context, p JoinParams) (Room, error) {
	if t.JoinHold != nil {
		select {
		case <-t.JoinHold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if t.JoinErr != nil {
		return nil, t.JoinErr
	}
	r := NewMockRoom(p)
	r.PublishHold = t.PublishHold
	t.mu.Lock()
	t.rooms = append(t.rooms, r)
	t.mu.Unlock()
	return r, nil
}

// LastRoom returns the most recently joined mock room, or nil.
func (t *MockTransport) LastRoom() *MockRoom {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.rooms) == 0 {
		return nil
	}
	return t.rooms[len(t.rooms)-1]
}

// MockRoom delivers scripted events.
type MockRoom struct {
	params      JoinParams
	identity    string
	PublishErr  error
	PublishHold chan struct{} // when set, PublishMicrophone blocks until closed or ctx done

	mu        sync.Mutex
	events    chan RoomEvent
	left      bool
	published bool
}

func NewMockRoom(p JoinParams) *MockRoom {
	return &MockRoom{
		params: p,
		events: make(chan RoomEvent, 64),
	}
}

func (r *MockRoom) SetLocalIdentity(id string) { r.identity = id }

func (r *MockRoom) LocalIdentity() string { return r.identity }

func (r *MockRoom) PublishMicrophone(ctx context.Context, _ Microphone) error {
	if r.PublishHold != nil {
		select {
		case <-r.PublishHold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.PublishErr != nil {
		return r.PublishErr
	}
	r.mu.Lock()
	r.published = true
	r.mu.Unlock()
	return nil
}

func (r *MockRoom) Published() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.published
}

func (r *MockRoom) Events() <-chan RoomEvent { return r.events }

func (r *MockRoom) Leave() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.left {
		return nil
	}
	r.left = true
	close(r.events)
	return nil
}

func (r *MockRoom) Left() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.left
}

// Deliver pushes an event to the room's consumers. No-op after Leave.
func (r *MockRoom) Deliver(ev RoomEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.left {
		return
	}
	r.events <- ev
}

// DeliverText pushes one text stream packet.
func (r *MockRoom) DeliverText(pkt transcript.Packet) {
	r.Deliver(RoomEvent{Type: RoomEventTextStream, Packet: pkt})
}

// MockDevices hands out mock audio devices and tracks release.
type MockDevices struct {
	AcquireErr        error
	AcquireSpeakerErr error

	mu       sync.Mutex
	mics     []*MockMicrophone
	speakers []*MockSpeaker
}

func (d *MockDevices) AcquireMicrophone(context.Context) (Microphone, error) {
	if d.AcquireErr != nil {
		return nil, d.AcquireErr
	}
	m := &MockMicrophone{}
	d.mu.Lock()
	d.mics = append(d.mics, m)
	d.mu.Unlock()
	return m, nil
}

func (d *MockDevices) AcquireSpeaker(context.Context) (Speaker, error) {
	if d.AcquireSpeakerErr != nil {
		return nil, d.AcquireSpeakerErr
	}
	s := &MockSpeaker{enabled: true}
	d.mu.Lock()
	d.speakers = append(d.speakers, s)
	d.mu.Unlock()
	return s, nil
}

// AllReleased reports whether every acquired device was released.
func (d *MockDevices) AllReleased() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.mics {
		if !m.Released() {
			return false
		}
	}
	for _, s := range d.speakers {
		if !s.Released() {
			return false
		}
	}
	return true
}

type MockMicrophone struct {
	mu       sync.Mutex
	muted    bool
	released bool
}

func (m *MockMicrophone) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
}

func (m *MockMicrophone) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *MockMicrophone) Release() {
	m.mu.Lock()
	m.released = true
	m.mu.Unlock()
}

func (m *MockMicrophone) Released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

type MockSpeaker struct {
	mu       sync.Mutex
	enabled  bool
	released bool
}

func (s *MockSpeaker) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

func (s *MockSpeaker) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *MockSpeaker) Release() {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
}

func (s *MockSpeaker) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
