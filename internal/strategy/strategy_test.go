package strategy

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbprotocol/triarb/internal/config"
	"github.com/arbprotocol/triarb/internal/ticker"
	"github.com/arbprotocol/triarb/pkg/types"
)

type fakeDispatcher struct {
	orders []types.Order
}

func (f *fakeDispatcher) Dispatch(o types.Order) { f.orders = append(f.orders, o) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func triangleInstruments() (usdEur, eurGbp, gbpUsd *types.Instrument) {
	usdEur = &types.Instrument{Venue: "binance", Symbol: "USDEUR", Base: "USD", Quote: "EUR", AmountPrecision: 8}
	eurGbp = &types.Instrument{Venue: "binance", Symbol: "EURGBP", Base: "EUR", Quote: "GBP", AmountPrecision: 8}
	gbpUsd = &types.Instrument{Venue: "binance", Symbol: "GBPUSD", Base: "GBP", Quote: "USD", AmountPrecision: 8}
	return
}

func triangleSnapshot(usdEur, eurGbp, gbpUsd *types.Instrument) ticker.Snapshot {
	return ticker.Snapshot{
		usdEur.Key(): {Instrument: usdEur, Bid: 2, BidSize: 100, Ask: 2.1, AskSize: 100},
		eurGbp.Key(): {Instrument: eurGbp, Bid: 2, BidSize: 100, Ask: 2.1, AskSize: 100},
		gbpUsd.Key(): {Instrument: gbpUsd, Bid: 2, BidSize: 100, Ask: 2.1, AskSize: 100},
	}
}

func feedTriangle(s *Strategy, snap ticker.Snapshot) {
	for _, tick := range snap {
		s.OnPriceTicker("binance", tick, snap)
	}
}

func newTestStrategy(d Dispatcher, monitoringOnly bool) *Strategy {
	cfg := config.StrategyConfig{SkipThreshold: 3, ShortCooldown: 0, LongCooldown: 0}
	sizingCfg := config.SizingConfig{ReferenceCurrency: "USD", MinOrderSize: 1, MaxOrderSize: 1_000_000}
	return New("binance", "USD", cfg, sizingCfg, d, monitoringOnly, discardLogger())
}

func TestDetectionDispatchesFirstLeg(t *testing.T) {
	t.Parallel()
	usdEur, eurGbp, gbpUsd := triangleInstruments()
	snap := triangleSnapshot(usdEur, eurGbp, gbpUsd)

	d := &fakeDispatcher{}
	s := newTestStrategy(d, false)

	feedTriangle(s, snap)

	if len(d.orders) != 1 {
		t.Fatalf("dispatched orders = %d, want 1", len(d.orders))
	}
	if d.orders[0].Instrument.Symbol != usdEur.Symbol || d.orders[0].Side != types.Sell {
		t.Errorf("first order = (%s,%s), want (%s,Sell)", d.orders[0].Instrument.Symbol, d.orders[0].Side, usdEur.Symbol)
	}
	if s.state != statePending {
		t.Errorf("state = %v, want Pending", s.state)
	}
}

// TestOrderSequencingNeverMoreThanOnePending covers property #6: the
// strategy never has more than one pending order, and further ticks while
// Pending never add a second one.
func TestOrderSequencingNeverMoreThanOnePending(t *testing.T) {
	t.Parallel()
	usdEur, eurGbp, gbpUsd := triangleInstruments()
	snap := triangleSnapshot(usdEur, eurGbp, gbpUsd)

	d := &fakeDispatcher{}
	s := newTestStrategy(d, false)

	feedTriangle(s, snap)
	feedTriangle(s, snap)
	feedTriangle(s, snap)

	if len(d.orders) != 1 {
		t.Fatalf("dispatched orders = %d, want exactly 1 while Pending", len(d.orders))
	}
}

// TestChainAdvancementOnFill covers S6: a Filled order pops the head and
// dispatches exactly one new order whose instrument/side equal path[1],
// sized from the filled order's resulting balance.
func TestChainAdvancementOnFill(t *testing.T) {
	t.Parallel()
	usdEur, eurGbp, gbpUsd := triangleInstruments()
	snap := triangleSnapshot(usdEur, eurGbp, gbpUsd)

	d := &fakeDispatcher{}
	s := newTestStrategy(d, false)
	feedTriangle(s, snap)

	if len(d.orders) != 1 {
		t.Fatalf("setup: dispatched orders = %d, want 1", len(d.orders))
	}
	first := d.orders[0]

	filled := types.Order{
		Instrument:   first.Instrument,
		Side:         first.Side,
		Status:       types.StatusFilled,
		AmountFilled: decimal.NewFromFloat(0.001),
		AmountQuote:  decimal.NewFromFloat(80),
	}
	s.OnOrder(filled)

	if len(d.orders) != 2 {
		t.Fatalf("dispatched orders after fill = %d, want 2", len(d.orders))
	}
	next := d.orders[1]
	if next.Instrument.Symbol != eurGbp.Symbol || next.Side != types.Sell {
		t.Errorf("next order = (%s,%s), want (%s,Sell)", next.Instrument.Symbol, next.Side, eurGbp.Symbol)
	}
	// usdEur.Base ("USD") != eurGbp.Base ("EUR"): a bridging hop, so the
	// quote-denominated output feeds AmountQuote.
	if !next.AmountQuote.Equal(decimal.NewFromFloat(80)) {
		t.Errorf("next order AmountQuote = %v, want 80", next.AmountQuote)
	}
	if s.state != statePending {
		t.Errorf("state = %v, want still Pending with one leg remaining", s.state)
	}
}

// TestChainCompletesReturnsToIdle checks that popping the last leg returns
// the strategy to Idle.
func TestChainCompletesReturnsToIdle(t *testing.T) {
	t.Parallel()
	usdEur, eurGbp, gbpUsd := triangleInstruments()
	snap := triangleSnapshot(usdEur, eurGbp, gbpUsd)

	d := &fakeDispatcher{}
	s := newTestStrategy(d, false)
	feedTriangle(s, snap)

	leg1 := d.orders[0]
	s.OnOrder(types.Order{Instrument: leg1.Instrument, Side: leg1.Side, Status: types.StatusFilled,
		AmountFilled: decimal.NewFromFloat(0.001), AmountQuote: decimal.NewFromFloat(80)})

	leg2 := d.orders[1]
	s.OnOrder(types.Order{Instrument: leg2.Instrument, Side: leg2.Side, Status: types.StatusFilled,
		AmountFilled: decimal.NewFromFloat(0.002), AmountQuote: decimal.NewFromFloat(160)})

	leg3 := d.orders[2]
	s.OnOrder(types.Order{Instrument: leg3.Instrument, Side: leg3.Side, Status: types.StatusFilled,
		AmountFilled: decimal.NewFromFloat(0.003), AmountQuote: decimal.NewFromFloat(320)})

	if s.state != stateIdle {
		t.Errorf("state = %v, want Idle once the chain is exhausted", s.state)
	}
	if len(s.path) != 0 {
		t.Errorf("path = %v, want empty", s.path)
	}
}

// TestMonitoringGateBlocksDispatch covers property #7 and S5: no order is
// produced while an entity is broken, and detection resumes once the
// matching Ok arrives.
func TestMonitoringGateBlocksDispatch(t *testing.T) {
	t.Parallel()
	usdEur, eurGbp, gbpUsd := triangleInstruments()
	snap := triangleSnapshot(usdEur, eurGbp, gbpUsd)

	d := &fakeDispatcher{}
	s := newTestStrategy(d, false)

	s.OnMonitoring(types.MonitoringMessage{Status: types.MonitoringError, Entity: types.EntityOrderManagementSystem, EntityID: 1})
	feedTriangle(s, snap)

	if len(d.orders) != 0 {
		t.Fatalf("dispatched orders while broken = %d, want 0", len(d.orders))
	}

	s.OnMonitoring(types.MonitoringMessage{Status: types.MonitoringOk, Entity: types.EntityOrderManagementSystem, EntityID: 1})
	feedTriangle(s, snap)

	if len(d.orders) != 1 {
		t.Fatalf("dispatched orders after recovery = %d, want 1", len(d.orders))
	}
}

// TestPriceTickerMonitoringErrorResetsGraph covers S4's effect inside the
// strategy: a PriceTicker error resets the graph and subsequent detection
// does not fire until fresh ticks rebuild it.
func TestPriceTickerMonitoringErrorResetsGraph(t *testing.T) {
	t.Parallel()
	usdEur, eurGbp, gbpUsd := triangleInstruments()
	snap := triangleSnapshot(usdEur, eurGbp, gbpUsd)

	d := &fakeDispatcher{}
	s := newTestStrategy(d, false)

	s.OnPriceTicker("binance", snap[usdEur.Key()], snap)
	s.OnPriceTicker("binance", snap[eurGbp.Key()], snap)

	s.OnMonitoring(types.MonitoringMessage{Status: types.MonitoringError, Entity: types.EntityPriceTicker, EntityID: 7})

	if s.graph.ContainsCurrency("USD") {
		t.Error("expected graph to be cleared after a PriceTicker monitoring error")
	}

	// Further ticks are ignored by the graph until an Ok is observed.
	s.OnPriceTicker("binance", snap[usdEur.Key()], snap)
	if s.graph.ContainsCurrency("USD") {
		t.Error("expected graph updates to stay suppressed until recovery")
	}

	s.OnMonitoring(types.MonitoringMessage{Status: types.MonitoringOk, Entity: types.EntityPriceTicker, EntityID: 7})
	s.OnPriceTicker("binance", snap[usdEur.Key()], snap)
	if !s.graph.ContainsCurrency("USD") {
		t.Error("expected graph updates to resume after recovery")
	}
}

// TestMonitoringOnlyModeNeverDispatches checks the shadow-run mode: the
// dispatcher never receives anything even with a clean detection, and
// detection keeps firing on every subsequent tick rather than freezing —
// monitoring-only never dispatches, so nothing will ever fill to advance
// it out of a Pending state, and it must not enter one (§4.6 "detection
// and logging fire as normal").
func TestMonitoringOnlyModeNeverDispatches(t *testing.T) {
	t.Parallel()
	usdEur, eurGbp, gbpUsd := triangleInstruments()
	snap := triangleSnapshot(usdEur, eurGbp, gbpUsd)

	d := &fakeDispatcher{}
	s := newTestStrategy(d, true)

	feedTriangle(s, snap)

	if len(d.orders) != 0 {
		t.Errorf("monitoring-only dispatched %d orders, want 0", len(d.orders))
	}
	if s.state != stateIdle {
		t.Errorf("state = %v, want Idle so detection keeps firing in monitoring-only mode", s.state)
	}

	// A second full round of ticks must detect again, not sit frozen.
	feedTriangle(s, snap)
	if len(d.orders) != 0 {
		t.Errorf("monitoring-only dispatched %d orders after second round, want 0", len(d.orders))
	}
	if s.state != stateIdle {
		t.Errorf("state after second round = %v, want Idle", s.state)
	}
}

func TestSkipThresholdAppliesLongCooldown(t *testing.T) {
	t.Parallel()
	cfg := config.StrategyConfig{SkipThreshold: 2, ShortCooldown: time.Millisecond, LongCooldown: time.Hour}
	sizingCfg := config.SizingConfig{ReferenceCurrency: "USD", MinOrderSize: 1, MaxOrderSize: 1_000_000}
	d := &fakeDispatcher{}
	s := New("binance", "USD", cfg, sizingCfg, d, false, discardLogger())

	// Only a single USD/ZZZ pair ever reaches the graph: it has no cycle, so
	// every detection attempt skips (find_arb_path never succeeds).
	empty := ticker.Snapshot{}
	noop := types.PriceTicker{Instrument: &types.Instrument{Venue: "binance", Symbol: "X", Base: "USD", Quote: "ZZZ"}, Bid: 1, Ask: 1.01}

	fixedNow := time.Now()
	s.now = func() time.Time { return fixedNow }

	s.OnPriceTicker("binance", noop, empty)
	if s.skipCount != 1 {
		t.Fatalf("skipCount = %d, want 1", s.skipCount)
	}

	fixedNow = fixedNow.Add(time.Hour) // clear the short cooldown from skip 1
	s.OnPriceTicker("binance", noop, empty)
	if s.skipCount != 0 {
		t.Errorf("skipCount after hitting threshold = %d, want reset to 0", s.skipCount)
	}
}
