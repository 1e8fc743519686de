package transcript

import (
	"log"
	"sort"
	"sync"
)

// Relay accumulates transcript lines for one call. Interim fragments are
// upserted under their utterance key so the display never shows duplicate
// fragments of the same in-progress utterance; finals append to the
// committed list in arrival order. Arrival order is trusted as-is: the
// transport delivers per-speaker events in speaking order and the relay
// does not correct cross-speaker interleaving.
type Relay struct {
	mu            sync.Mutex
	localIdentity string
	inflight      map[string]Line
	committed     []Line
	dropped       int
}

func NewRelay(localIdentity string) *Relay {
	return &Relay{
		localIdentity: localIdentity,
		inflight:      make(map[string]Line),
	}
}

// Ingest decodes one transport packet and applies it. Malformed payloads
// are logged and dropped; they never fail the relay.
func (r *Relay) Ingest(pkt Packet) {
	ev, ok, err := Decode(pkt, r.localIdentity)
	if err != nil {
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		log.Printf("[transcript] dropping malformed stream payload from %q: %v", pkt.ParticipantIdentity, err)
		return
	}
	if !ok {
		return
	}
	r.Apply(ev)
}

// Apply folds one decoded event into the relay state.
func (r *Relay) Apply(ev Event) {
	line := Line{
		UtteranceID: ev.UtteranceID,
		Speaker:     ev.Speaker,
		Text:        ev.Text,
		Final:       ev.Final,
		CapturedAt:  ev.Timestamp,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !ev.Final {
		r.inflight[ev.UtteranceID] = line
		return
	}

	// A duplicate final for the same utterance appends again; the relay
	// performs no dedup across finals.
	r.committed = append(r.committed, line)
	delete(r.inflight, ev.UtteranceID)
}

// Lines returns the deterministic rendering order: committed lines in
// arrival order, then in-flight lines sorted by capture time.
func (r *Relay) Lines() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Line, 0, len(r.committed)+len(r.inflight))
	out = append(out, r.committed...)

	pending := make([]Line, 0, len(r.inflight))
	for _, l := range r.inflight {
		pending = append(pending, l)
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CapturedAt.Equal(pending[j].CapturedAt) {
			return pending[i].UtteranceID < pending[j].UtteranceID
		}
		return pending[i].CapturedAt.Before(pending[j].CapturedAt)
	})
	return append(out, pending...)
}

// CommittedCount reports how many final lines are buffered.
func (r *Relay) CommittedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

// InFlightCount reports how many interim utterances are pending.
func (r *Relay) InFlightCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// DroppedCount reports how many malformed payloads were discarded.
func (r *Relay) DroppedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// DrainFinal returns the committed lines and clears the buffer. The buffer
// clears regardless of what the caller does with the result, which keeps
// transcript persistence at-most-once.
func (r *Relay) DrainFinal() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.committed
	r.committed = nil
	return out
}
