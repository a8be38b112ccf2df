// Package monitor aggregates MonitoringMessage health transitions across
// every producer in the engine — feed adapters and the OMS session — into
// a snapshot the status endpoint can read. It is the engine-wide reading
// of §3's MonitoringMessage contract: "an Error MUST eventually be
// followed by a matching Ok from the same (Entity, EntityID) pair".
//
// This is a direct repurposing of the teacher's risk.Manager: the same
// report-channel-in, snapshot-out shape, with position/PnL limits swapped
// out for Ok/Error health pairing.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/arbprotocol/triarb/pkg/types"
)

// EntityStatus is the latest known health of one (entity, entity_id) pair.
type EntityStatus struct {
	Entity       types.MonitoringEntity
	EntityID     int
	Status       types.MonitoringStatus
	Since        time.Time
	Transitions  int // count of status changes since startup; the first report counts as one
}

// Aggregator tracks the latest status per producer and exposes a snapshot.
type Aggregator struct {
	mu       sync.RWMutex
	byKey    map[string]EntityStatus
	reportCh chan types.MonitoringMessage
}

// New creates an Aggregator with a modestly buffered report channel — the
// fan-in bus has already absorbed the real backpressure by the time a
// message reaches here, so this is a second, smaller cushion against
// burst delivery from the orchestrator's dispatch loop.
func New() *Aggregator {
	return &Aggregator{
		byKey:    make(map[string]EntityStatus),
		reportCh: make(chan types.MonitoringMessage, 256),
	}
}

// Run drains the report channel until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.reportCh:
			a.apply(msg)
		}
	}
}

// Report submits a monitoring message (non-blocking; a full channel here
// just means the snapshot lags, not a fatal condition — the bus upstream
// already enforces the fatal-on-full policy).
func (a *Aggregator) Report(msg types.MonitoringMessage) {
	select {
	case a.reportCh <- msg:
	default:
	}
}

func (a *Aggregator) apply(msg types.MonitoringMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := msg.Key()
	prior, existed := a.byKey[key]

	transitions := prior.Transitions
	if !existed || prior.Status != msg.Status {
		transitions++
	}

	a.byKey[key] = EntityStatus{
		Entity:      msg.Entity,
		EntityID:    msg.EntityID,
		Status:      msg.Status,
		Since:       msg.Timestamp,
		Transitions: transitions,
	}
}

// Snapshot returns every tracked entity's current status, for the HTTP
// status surface.
func (a *Aggregator) Snapshot() []EntityStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]EntityStatus, 0, len(a.byKey))
	for _, s := range a.byKey {
		out = append(out, s)
	}
	return out
}

// AnyError reports whether any tracked entity is currently in Error.
func (a *Aggregator) AnyError() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, s := range a.byKey {
		if s.Status == types.MonitoringError {
			return true
		}
	}
	return false
}
