package progress

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"cognivoice/internal/logging"
)

// Bus fans progress events out to the live subscribers of each job. Events are
// serialized once at publish time; a job with no subscribers drops the event
// (no buffering, no replay). The registry is the only shared mutable state and
// is guarded by a single mutex that is never held while waiting on a
// subscriber queue.
type Bus struct {
	mu     sync.Mutex
	subs   map[string][]*Subscriber
	logger *slog.Logger

	heartbeatInterval time.Duration
}

// NewBus constructs a progress bus. The heartbeat loop is not started until
// Run is called.
func NewBus(heartbeatInterval time.Duration, logger *slog.Logger) *Bus {
	if heartbeatInterval <= 0 {
		heartbeatInterval = 10 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bus{
		subs:              make(map[string][]*Subscriber),
		logger:            logger.With(logging.String(logging.FieldComponent, "progress-bus")),
		heartbeatInterval: heartbeatInterval,
	}
}

// Subscribe registers a new queue under jobID. It never fails and returns
// immediately; the caller must Unsubscribe when done.
func (b *Bus) Subscribe(jobID string) *Subscriber {
	sub := newSubscriber()
	b.mu.Lock()
	b.subs[jobID] = append(b.subs[jobID], sub)
	count := len(b.subs[jobID])
	b.mu.Unlock()
	b.logger.Debug("subscriber added",
		logging.String(logging.FieldJobID, jobID),
		logging.Int("listeners", count),
	)
	return sub
}

// Unsubscribe removes the handle. The job's registry entry is deleted when the
// last handle goes away.
func (b *Bus) Unsubscribe(jobID string, sub *Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	handles := b.subs[jobID]
	for i, candidate := range handles {
		if candidate == sub {
			handles = append(handles[:i], handles[i+1:]...)
			break
		}
	}
	if len(handles) == 0 {
		delete(b.subs, jobID)
	} else {
		b.subs[jobID] = handles
	}
	remaining := len(handles)
	b.mu.Unlock()

	sub.close()
	b.logger.Debug("subscriber removed",
		logging.String(logging.FieldJobID, jobID),
		logging.Int("listeners", remaining),
	)
}

// Publish serializes the event and enqueues it to every current subscriber of
// jobID. Enqueueing never blocks, so a slow subscriber cannot stall the
// publisher or its peers.
func (b *Bus) Publish(jobID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("marshal progress event", logging.Error(err), logging.String(logging.FieldJobID, jobID))
		return
	}
	b.publishRaw(jobID, data)
}

func (b *Bus) publishRaw(jobID string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[jobID] {
		sub.push(data)
	}
}

// Run drives the heartbeat sweep until ctx is cancelled. Every interval each
// live subscriber receives a synthetic keepalive payload so idle transport
// connections are not reaped. Heartbeats carry no step and are outside the
// event ordering guarantee.
func (b *Bus) Run(ctx context.Context) {
	ticker := time.NewTicker(b.heartbeatInterval)
	defer ticker.Stop()

	b.logger.Debug("heartbeat loop started", logging.Duration("interval", b.heartbeatInterval))
	for {
		select {
		case <-ctx.Done():
			b.logger.Debug("heartbeat loop stopped")
			return
		case <-ticker.C:
			b.sweepHeartbeats()
		}
	}
}

func (b *Bus) sweepHeartbeats() {
	payload, err := json.Marshal(map[string]any{
		"heartbeat": true,
		"timestamp": time.Now().UTC().Unix(),
	})
	if err != nil {
		b.logger.Error("marshal heartbeat", logging.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, handles := range b.subs {
		for _, sub := range handles {
			sub.push(payload)
		}
	}
}

// Listeners reports the number of live subscribers for a job.
func (b *Bus) Listeners(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}
