package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Stages of a net-scout invocation.
const (
	StageScan   = "scan"
	StageEnrich = "enrich"
	StageTrace  = "trace"
)

// Event is one structured progress update emitted by the pipeline. This
// replaces deriving run state from process log text: consumers subscribe
// to the stream or read the latest snapshot per stage.
type Event struct {
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message,omitempty"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Finished  bool      `json:"finished"`
	Timestamp time.Time `json:"timestamp"`
}

// Percent derives completion from processed/total; a finished run is
// always 100.
func (e Event) Percent() int {
	if e.Finished {
		return 100
	}
	if e.Total <= 0 {
		return 0
	}
	p := e.Processed * 100 / e.Total
	if p > 100 {
		p = 100
	}
	return p
}

type Subscriber struct {
	ID      string
	Channel chan Event
}

// Broadcaster fans progress events out to subscribers and keeps the last
// event per stage for status queries. Slow subscribers drop events rather
// than block the pipeline.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]bool
	latest map[string]Event
	logger *logrus.Logger
}

func NewBroadcaster(logger *logrus.Logger) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[*Subscriber]bool),
		latest: make(map[string]Event),
		logger: logger,
	}
}

// NewRunID mints an identifier tying a run's events together.
func NewRunID() string {
	return uuid.NewString()
}

func (b *Broadcaster) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID:      uuid.NewString(),
		Channel: make(chan Event, 64),
	}
	b.mu.Lock()
	b.subs[sub] = true
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscriber from the fan-out. The channel is
// never closed: a publish racing the removal may still be holding it,
// and sending on a closed channel panics. An in-flight event at most
// lands in the abandoned buffer.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
}

// Publish stamps and distributes an event. Full subscriber channels are
// skipped.
func (b *Broadcaster) Publish(evt Event) {
	evt.Timestamp = time.Now().UTC()

	b.mu.Lock()
	b.latest[evt.Stage] = evt
	subs := make([]*Subscriber, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.Channel <- evt:
		default:
			b.logger.Debugf("Progress subscriber %s is full, dropping event", sub.ID)
		}
	}
}

// Snapshot returns the latest event per stage.
func (b *Broadcaster) Snapshot() map[string]Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]Event, len(b.latest))
	for stage, evt := range b.latest {
		out[stage] = evt
	}
	return out
}
