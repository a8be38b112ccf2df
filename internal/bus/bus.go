// Package bus implements the fan-in message bus (§4.2): a bounded,
// multi-producer single-consumer queue of Event records. It is the
// dominant backpressure point in the system — a full queue means the
// consumer is presumed dead, which is a fatal condition, not something to
// silently drop and move on from.
package bus

import (
	"fmt"
	"time"

	"github.com/arbprotocol/triarb/pkg/types"
)

// Kind tags which variant of Event is populated.
type Kind int

const (
	KindPriceTicker Kind = iota
	KindOrder
	KindBalance
	KindMonitoring
)

// Event is the tagged union the fan-in bus carries (§4.2). Exactly one of
// the payload fields is populated, selected by Kind.
type Event struct {
	Kind Kind

	Ticker     types.PriceTicker
	Order      types.Order
	Balance    types.Balance
	Monitoring types.MonitoringMessage
}

// NewTickerEvent wraps a PriceTicker as an Event.
func NewTickerEvent(t types.PriceTicker) Event { return Event{Kind: KindPriceTicker, Ticker: t} }

// NewOrderEvent wraps an Order as an Event.
func NewOrderEvent(o types.Order) Event { return Event{Kind: KindOrder, Order: o} }

// NewBalanceEvent wraps a Balance as an Event.
func NewBalanceEvent(b types.Balance) Event { return Event{Kind: KindBalance, Balance: b} }

// NewMonitoringEvent wraps a MonitoringMessage as an Event.
func NewMonitoringEvent(m types.MonitoringMessage) Event {
	return Event{Kind: KindMonitoring, Monitoring: m}
}

// ErrBusFull is returned by Push when the queue is at capacity. Per §4.2 and
// §7, callers MUST treat this as fatal: at capacity, the consumer is
// presumed dead.
var ErrBusFull = fmt.Errorf("bus: queue at capacity, consumer presumed dead")

// Bus is a bounded, non-blocking, ordering-preserving fan-in queue. A
// buffered Go channel gives exactly the semantics the spec calls for: FIFO
// push order, a hard capacity, and a non-blocking Push that fails instead
// of backing up producers.
type Bus struct {
	events chan Event
}

// New creates a Bus with the given capacity (§4.2 default ≈2,000,000).
func New(capacity int) *Bus {
	return &Bus{events: make(chan Event, capacity)}
}

// Push enqueues an event. Non-blocking: returns ErrBusFull immediately if
// the queue is at capacity rather than backing up the caller.
func (b *Bus) Push(e Event) error {
	select {
	case b.events <- e:
		return nil
	default:
		return ErrBusFull
	}
}

// Pop removes and returns one event, or reports empty=false if none is
// available right now. The orchestrator (§4.2) sleeps ~1ms on empty rather
// than blocking, so that it can also observe its own shutdown signal.
func (b *Bus) Pop() (Event, bool) {
	select {
	case e := <-b.events:
		return e, true
	default:
		return Event{}, false
	}
}

// EmptyPollInterval is how long the orchestrator sleeps when Pop finds
// nothing (§4.2).
const EmptyPollInterval = time.Millisecond

// Len reports the number of events currently queued (for monitoring/dashboards).
func (b *Bus) Len() int {
	return len(b.events)
}

// Cap reports the configured capacity.
func (b *Bus) Cap() int {
	return cap(b.events)
}
