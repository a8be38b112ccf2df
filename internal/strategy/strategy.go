// Package strategy implements the arbitrage strategy state machine (§4.6):
// one instance is bound to a single venue and reference currency. It
// consumes tickers, order updates, and monitoring messages, drives graph
// updates and cycle detection, sizes the result via the chain sizer, and
// dispatches orders one at a time as the chain advances.
package strategy

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arbprotocol/triarb/internal/config"
	"github.com/arbprotocol/triarb/internal/graph"
	"github.com/arbprotocol/triarb/internal/sizing"
	"github.com/arbprotocol/triarb/internal/ticker"
	"github.com/arbprotocol/triarb/pkg/types"
)

// runState is the chain-activity half of the state machine (§4.6). Monitor
// health is tracked orthogonally via brokenEntities: a strategy can be
// Idle-and-broken or Pending-and-broken, but it never dispatches while
// broken.
type runState int

const (
	stateIdle runState = iota
	statePending
)

// Dispatcher is how the strategy hands a built order off towards the OMS.
// The engine wires this to push onto the outbound order queue (§4.2).
type Dispatcher interface {
	Dispatch(order types.Order)
}

// Strategy is bound to one venue and one reference currency.
type Strategy struct {
	venue             types.Venue
	referenceCurrency string

	graph      *graph.Graph
	cfg        config.StrategyConfig
	sizingCfg  config.SizingConfig
	dispatcher Dispatcher
	log        *slog.Logger
	now        func() time.Time

	monitoringOnly bool

	snapshot ticker.Snapshot

	state runState
	path  []sizing.Leg // remaining legs; path[0] is the in-flight or next-to-dispatch leg

	brokenEntities map[string]bool

	skipCount int
	nextCheck time.Time

	// statusMu guards cachedStatus only: every other field above is
	// touched exclusively by the orchestrator's single dispatch goroutine
	// (§4.2, §9 "no async runtime"). The status endpoint reads from a
	// second goroutine, so it gets its own small guarded snapshot instead
	// of a lock around the whole struct — the same RWMutex-for-reads shape
	// the teacher uses for its order book mirror.
	statusMu     sync.RWMutex
	cachedStatus Status
}

// Status is a point-in-time, concurrency-safe snapshot of a Strategy for
// the read-only HTTP status surface.
type Status struct {
	Venue          types.Venue
	State          string
	Broken         bool
	SkipCount      int
	PathLength     int
	MonitoringOnly bool
}

// Status returns the last snapshot taken. Safe to call from any goroutine.
func (s *Strategy) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.cachedStatus
}

func (s *Strategy) refreshStatus() {
	state := "idle"
	if s.state == statePending {
		state = "pending"
	}
	st := Status{
		Venue:          s.venue,
		State:          state,
		Broken:         s.broken(),
		SkipCount:      s.skipCount,
		PathLength:     len(s.path),
		MonitoringOnly: s.monitoringOnly,
	}
	s.statusMu.Lock()
	s.cachedStatus = st
	s.statusMu.Unlock()
}

// New creates a Strategy for one venue bound to the given reference
// currency. dispatcher receives orders unless monitoringOnly is set, in
// which case detection and logging still run but nothing is dispatched
// (§4.6 "monitoring-only mode", used to shadow-run a venue).
func New(venue types.Venue, referenceCurrency string, cfg config.StrategyConfig, sizingCfg config.SizingConfig, dispatcher Dispatcher, monitoringOnly bool, log *slog.Logger) *Strategy {
	s := &Strategy{
		venue:             venue,
		referenceCurrency: referenceCurrency,
		graph:             graph.New(),
		cfg:               cfg,
		sizingCfg:         sizingCfg,
		dispatcher:        dispatcher,
		log:               log,
		now:               time.Now,
		monitoringOnly:    monitoringOnly,
		brokenEntities:    make(map[string]bool),
	}
	s.refreshStatus()
	return s
}

// broken reports whether any monitored entity is currently in error (§4.6,
// testable property #7: no output while broken).
func (s *Strategy) broken() bool {
	return len(s.brokenEntities) > 0
}

// OnPriceTicker implements ticker.Listener. Tickers for other venues are
// ignored; ticks for this venue feed the graph and, in Idle state once the
// cooldown has elapsed, trigger detection.
func (s *Strategy) OnPriceTicker(venue types.Venue, tick types.PriceTicker, snap ticker.Snapshot) {
	if venue != s.venue {
		return
	}
	defer s.refreshStatus()
	s.snapshot = snap

	if s.brokenEntities[entityString(types.EntityPriceTicker)+"*"] {
		// graph was reset on PriceTicker error; skip updates until recovery
		// is observed (an explicit Ok clears the flag below, §4.6 table).
	} else {
		s.graph.Update(tick)
	}

	switch s.state {
	case stateIdle:
		if s.broken() {
			return
		}
		if s.now().Before(s.nextCheck) {
			return
		}
		s.attemptDetection()

	case statePending:
		// nothing further to do: the tick is already folded into the graph
		// and the snapshot above; the next leg is sized from the prior leg's
		// fill (buildOrder), not from the snapshot.
	}
}

// OnOrder handles an Order update pushed by the OMS.
func (s *Strategy) OnOrder(order types.Order) {
	if order.Instrument == nil || order.Instrument.Venue != s.venue {
		return
	}
	defer s.refreshStatus()

	switch order.Status {
	case types.StatusFilled:
		s.onFilled(order)
	case types.StatusError:
		s.onOrderError(order)
	}
}

// onFilled pops the filled leg and, if legs remain, builds and dispatches
// the next order (§4.6 table, testable property #6).
func (s *Strategy) onFilled(order types.Order) {
	if s.state != statePending || len(s.path) == 0 {
		return
	}
	head := s.path[0]
	if head.Instrument.Key() != order.Instrument.Key() || head.Side != order.Side {
		return
	}

	s.path = s.path[1:]
	if len(s.path) == 0 {
		s.state = stateIdle
		s.cooldown(s.cfg.ShortCooldown)
		return
	}

	next := s.path[0]
	nextOrder := s.buildOrder(next, order)
	s.dispatchOrder(nextOrder)
}

// onOrderError abandons the in-flight chain. "Fail loud" is the safer
// default per the spec's own open question on this transition: we clear
// strategy state and return to Idle rather than silently retrying, and log
// at error level so the operator sees it; the process itself is not
// terminated by an order error alone (unlike a bus-full or panic
// condition), since a single rejected/errored order is a recoverable
// trading event, not a structural failure of the engine.
func (s *Strategy) onOrderError(order types.Order) {
	s.log.Error("order entered error state, abandoning chain",
		"venue", s.venue, "instrument", order.Instrument.Symbol, "client_order_id", order.ClientOrderID, "error", order.Error)
	s.path = nil
	s.state = stateIdle
	s.cooldown(s.cfg.ShortCooldown)
}

// OnMonitoring handles a MonitoringMessage (§4.6 table).
func (s *Strategy) OnMonitoring(msg types.MonitoringMessage) {
	defer s.refreshStatus()
	key := msg.Key()

	switch msg.Status {
	case types.MonitoringError:
		s.brokenEntities[key] = true
		if msg.Entity == types.EntityPriceTicker {
			s.graph.Reset()
			s.brokenEntities[entityString(types.EntityPriceTicker)+"*"] = true
		}
		if msg.Entity == types.EntityOrderManagementSystem {
			s.path = nil
			s.state = stateIdle
		}

	case types.MonitoringOk:
		delete(s.brokenEntities, key)
		if msg.Entity == types.EntityPriceTicker {
			delete(s.brokenEntities, entityString(types.EntityPriceTicker)+"*")
		}
	}
}

// attemptDetection runs one cycle of graph detection, direction resolution,
// and sizing (§4.6 table, Idle row). A failure at any stage counts as a
// "skip" and applies the cooldown policy.
func (s *Strategy) attemptDetection() {
	cycle, found := s.graph.FindArbPath(s.referenceCurrency)
	if !found {
		s.skip()
		return
	}

	legs, ok := s.buildChain(cycle)
	if !ok {
		s.log.Debug("detection skipped: missing direction mapping for a leg", "venue", s.venue, "cycle", cycle)
		s.skip()
		return
	}

	amount, ok := sizing.ChainAmountQuote(legs, s.snapshot, s.sizingCfg)
	if !ok {
		s.skip()
		return
	}

	s.skipCount = 0
	s.cooldown(s.cfg.ShortCooldown)

	first := legs[0]
	order := s.seedOrder(first, amount)
	s.path = legs
	s.dispatchOrder(order)
}

// buildChain resolves each consecutive pair in cycle into a (instrument,
// side) leg via the graph's direction table.
func (s *Strategy) buildChain(cycle []string) ([]sizing.Leg, bool) {
	legs := make([]sizing.Leg, 0, len(cycle)-1)
	for i := 0; i < len(cycle)-1; i++ {
		instrument, side, ok := s.graph.GetDirection(cycle[i], cycle[i+1])
		if !ok {
			return nil, false
		}
		legs = append(legs, sizing.Leg{Instrument: instrument, Side: side})
	}
	return legs, true
}

// skip applies the skip/cooldown policy (§4.6): after skip_threshold
// consecutive skips, a long cooldown; otherwise a short one.
func (s *Strategy) skip() {
	s.skipCount++
	if s.skipCount >= s.cfg.SkipThreshold {
		s.cooldown(s.cfg.LongCooldown)
		s.skipCount = 0
		return
	}
	s.cooldown(s.cfg.ShortCooldown)
}

func (s *Strategy) cooldown(d time.Duration) {
	s.nextCheck = s.now().Add(d)
}

// seedOrder builds the first order of a freshly detected chain, quantizing
// the amount down to the instrument's precision (§4.6: order amount
// quantization, towards-zero rounding, to never exceed the sized amount).
func (s *Strategy) seedOrder(leg sizing.Leg, enterAmountQuote float64) types.Order {
	quantized := decimal.NewFromFloat(enterAmountQuote).Truncate(int32(leg.Instrument.AmountPrecision))

	order := types.Order{
		Timestamp:     s.now(),
		Instrument:    leg.Instrument,
		ClientOrderID: uuid.NewString(),
		Type:          types.OrderTypeMarket,
		Side:          leg.Side,
		Status:        types.StatusScheduled,
	}
	if leg.Side == types.Buy {
		order.AmountQuote = quantized
	} else {
		order.Amount = quantized
	}
	return order
}

// buildOrder constructs the order for the next leg once the prior leg's
// fill is known. Per §4.6 (and S6), a base-currency output feeds the next
// leg's Amount field when the currencies chain directly; a quote-currency
// output feeds AmountQuote when the prior leg's base differs from the next
// leg's base (a bridging hop).
func (s *Strategy) buildOrder(leg sizing.Leg, filled types.Order) types.Order {
	order := types.Order{
		Timestamp:     s.now(),
		Instrument:    leg.Instrument,
		ClientOrderID: uuid.NewString(),
		Type:          types.OrderTypeMarket,
		Side:          leg.Side,
		Status:        types.StatusScheduled,
	}

	if filled.Instrument.Base == leg.Instrument.Base {
		order.Amount = filled.AmountFilled
	} else {
		order.AmountQuote = filled.AmountQuote
	}
	return order
}

// dispatchOrder hands order to the OMS, or, in monitoring-only mode, just
// logs it as a found opportunity (§4.6 "detection and logging fire as
// normal"). Monitoring-only never dispatches, so it must stay Idle rather
// than entering Pending — nothing will ever fill to advance it out again.
func (s *Strategy) dispatchOrder(order types.Order) {
	if s.monitoringOnly {
		s.log.Info("arb found (monitoring-only, not dispatched)",
			"venue", s.venue, "instrument", order.Instrument.Symbol, "side", order.Side,
			"amount", order.Amount, "amount_quote", order.AmountQuote)
		s.path = nil
		s.state = stateIdle
		return
	}
	s.state = statePending
	order.Status = types.StatusScheduled
	s.dispatcher.Dispatch(order)
}

// entityString renders a MonitoringEntity for use as a map key; defined here
// rather than on types.MonitoringEntity to keep pkg/types free of any
// strategy-specific conventions (the "*" suffix used for the PriceTicker
// graph-reset flag is strategy-internal bookkeeping, not part of the wire
// vocabulary).
func entityString(e types.MonitoringEntity) string { return string(e) }
