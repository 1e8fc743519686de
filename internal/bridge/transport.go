// Package bridge drives one client-side voice call: it joins the realtime
// room, publishes the local microphone, feeds inbound text-stream packets to
// the transcription relay, and guarantees device release and transcript
// flush at teardown.
package bridge

import (
	"context"

	"github.com/dterzis/voicegate/internal/transcript"
)

// JoinParams carries everything the transport needs to join a room.
type JoinParams struct {
	ServerURL string
	Token     string
	RoomName  string
}

type RoomEventType string

const (
	// RoomEventTextStream delivers one text stream packet.
	RoomEventTextStream RoomEventType = "text_stream"
	// RoomEventClosed signals remote-initiated room closure (clean).
	RoomEventClosed RoomEventType = "closed"
	// RoomEventDisconnected signals an abnormal connection drop.
	RoomEventDisconnected RoomEventType = "disconnected"
)

// RoomEvent is one event delivered by a joined room.
type RoomEvent struct {
	Type   RoomEventType
	Packet transcript.Packet
	Err    error
}

// Room is a joined realtime room. Events terminates when the room is left
// or the connection is lost.
type Room interface {
	LocalIdentity() string
	PublishMicrophone(ctx context.Context, mic Microphone) error
	Events() <-chan RoomEvent
	Leave() error
}

// Transport abstracts the managed realtime SDK's join call. Join blocks
// until the transport confirms room membership or fails; it honors ctx
// cancellation and deadlines.
type Transport interface {
	Join(ctx context.Context, p JoinParams) (Room, error)
}

// Microphone is an exclusively owned local capture device.
type Microphone interface {
	SetMuted(muted bool)
	Release()
}

// Speaker is the local playback device rendering the remote audio track.
type Speaker interface {
	SetEnabled(enabled bool)
	Release()
}

// Devices acquires local audio devices. At most one bridge owns them at a
// time; the UI layer guarantees single instantiation. Microphone and speaker
// are independent handles, so toggling one never blocks the other.
type Devices interface {
	AcquireMicrophone(ctx context.Context) (Microphone, error)
	AcquireSpeaker(ctx context.Context) (Speaker, error)
}
