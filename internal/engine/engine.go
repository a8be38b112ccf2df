// Package engine is the central orchestrator (C9, §4.2, §4.9). It wires
// together the catalog, the fan-in bus, the ticker filter, one strategy
// per venue, the feed adapters, the OMS session, and the monitoring
// aggregator, then drives the single-threaded pop-route-sleep dispatch
// loop that is the only place events cross from "many producers" to "one
// consumer" in this system.
//
// Lifecycle: New() -> Start() -> [runs until the context is cancelled] ->
// Stop(), a near 1:1 structural match to the teacher's engine.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arbprotocol/triarb/internal/api"
	"github.com/arbprotocol/triarb/internal/bus"
	"github.com/arbprotocol/triarb/internal/catalog"
	"github.com/arbprotocol/triarb/internal/config"
	"github.com/arbprotocol/triarb/internal/failure"
	"github.com/arbprotocol/triarb/internal/feed"
	"github.com/arbprotocol/triarb/internal/monitor"
	"github.com/arbprotocol/triarb/internal/oms"
	"github.com/arbprotocol/triarb/internal/strategy"
	"github.com/arbprotocol/triarb/internal/ticker"
	"github.com/arbprotocol/triarb/pkg/types"
)

// venueSlot bundles the per-venue objects the engine wires together: the
// strategy (§4.6, one instance per venue) and the feed adapters feeding
// it. There's exactly one of these per entry in cfg.Venues.
type venueSlot struct {
	venue    types.Venue
	strategy *strategy.Strategy
	feeds    []*feed.Adapter
}

// Engine orchestrates every subsystem of the arbitrage engine.
type Engine struct {
	cfg     config.Config
	catalog *catalog.Catalog
	events  *bus.Bus
	filter  *ticker.Filter
	mon     *monitor.Aggregator
	oms     *oms.OMS
	api     *api.Server

	omsVenue types.Venue
	slots    []*venueSlot

	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds and wires every subsystem but starts nothing. Per-venue
// strategies dispatch through the OMS only for cfg.OMS.Venue; every other
// configured venue runs in forced monitoring-only mode, shadow-detecting
// arbitrage without an order route wired to it (§4.6 monitoring-only).
func New(cfg config.Config, log *slog.Logger) (*Engine, error) {
	var cat *catalog.Catalog
	var err error
	if cfg.Catalog.URL != "" {
		cat, err = catalog.LoadFromURL(context.Background(), cfg.Catalog.URL)
	} else {
		cat, err = catalog.Load(cfg.Catalog.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("engine: load catalog: %w", err)
	}

	events := bus.New(cfg.Bus.Capacity)
	mon := monitor.New()
	filter := ticker.New()

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:      cfg,
		catalog:  cat,
		events:   events,
		filter:   filter,
		mon:      mon,
		omsVenue: types.Venue(cfg.OMS.Venue),
		log:      log.With("component", "engine"),
		ctx:      ctx,
		cancel:   cancel,
	}

	session, err := oms.New(cfg.OMS, cat, e.omsVenue, 0, events, log)
	if err != nil {
		return nil, fmt.Errorf("engine: build oms: %w", err)
	}
	e.oms = session

	for _, vcfg := range cfg.Venues {
		slot, err := e.buildVenueSlot(vcfg, log)
		if err != nil {
			return nil, err
		}
		e.slots = append(e.slots, slot)
		e.filter.Register(slot.venue, slot.strategy)
	}

	if cfg.Dashboard.Enabled {
		e.api = api.NewServer(e, cfg.Dashboard.Port, log)
	}

	return e, nil
}

// Snapshot implements api.Provider: a point-in-time view of every venue's
// strategy status plus the monitoring aggregator, for the status
// endpoint and its WebSocket stream.
func (e *Engine) Snapshot() api.Snapshot {
	venues := make([]api.VenueStatus, 0, len(e.slots))
	for _, slot := range e.slots {
		st := slot.strategy.Status()
		venues = append(venues, api.VenueStatus{
			Venue:          string(st.Venue),
			State:          st.State,
			Broken:         st.Broken,
			SkipCount:      st.SkipCount,
			PathLength:     st.PathLength,
			MonitoringOnly: st.MonitoringOnly,
		})
	}
	return api.Snapshot{
		Timestamp:  time.Now(),
		OMSVenue:   string(e.omsVenue),
		Venues:     venues,
		Monitoring: e.mon.Snapshot(),
	}
}

func (e *Engine) buildVenueSlot(vcfg config.VenueConfig, log *slog.Logger) (*venueSlot, error) {
	venue := types.Venue(vcfg.Name)
	monitoringOnly := e.cfg.DryRun || vcfg.MonitoringOnly || venue != e.omsVenue

	var dispatcher strategy.Dispatcher
	if !monitoringOnly {
		dispatcher = e.oms
	}

	strat := strategy.New(venue, vcfg.ReferenceCurrency, e.cfg.Strategy, e.cfg.Sizing, dispatcher, monitoringOnly, log.With("venue", venue))

	spec, ok := feed.SpecFor(vcfg.Name)
	if !ok {
		return nil, fmt.Errorf("engine: no feed.VenueSpec registered for venue %q", vcfg.Name)
	}

	resolve := func(nativeSymbol string) (*types.Instrument, error) {
		return e.catalog.Get(venue, nativeSymbol)
	}

	slot := &venueSlot{venue: venue, strategy: strat}
	for i, group := range vcfg.SubscribeGroups {
		slot.feeds = append(slot.feeds, feed.New(venue, i, vcfg, spec, group, resolve, e.events, log))
	}
	return slot, nil
}

// Start launches every background goroutine: one per feed adapter, the
// OMS session, the monitoring aggregator, the optional status server, and
// the main dispatch loop.
func (e *Engine) Start() error {
	for _, slot := range e.slots {
		for _, f := range slot.feeds {
			e.spawn(func(ctx context.Context) { f.Run(ctx) })
		}
	}

	e.spawn(func(ctx context.Context) { e.oms.Run(ctx) })
	e.spawn(func(ctx context.Context) { e.mon.Run(ctx) })
	e.spawn(func(ctx context.Context) { e.dispatch(ctx) })

	if e.api != nil {
		e.spawn(func(ctx context.Context) { e.api.Run(ctx) })
	}

	e.log.Info("engine started", "venues", len(e.slots))
	return nil
}

// spawn runs fn on its own goroutine under failure.Guard: an unhandled
// panic in any subsystem terminates the process (§5, §9 "any unhandled
// error is fatal") rather than silently killing one goroutine.
func (e *Engine) spawn(fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer failure.Guard(e.log, "engine")
		fn(e.ctx)
	}()
}

// Stop cancels every goroutine and waits for them to exit.
func (e *Engine) Stop() {
	e.log.Info("shutting down...")
	e.cancel()
	e.wg.Wait()
	e.log.Info("shutdown complete")
}

// dispatch is the orchestrator loop (§4.2): pop one event, route by
// variant, sleep briefly on empty. Single-threaded and ordering-preserving
// by construction — there is exactly one goroutine reading from the bus.
func (e *Engine) dispatch(ctx context.Context) {
	for ctx.Err() == nil {
		event, ok := e.events.Pop()
		if !ok {
			time.Sleep(bus.EmptyPollInterval)
			continue
		}

		switch event.Kind {
		case bus.KindPriceTicker:
			e.filter.Ingest(event.Ticker.Instrument.Venue, event.Ticker)
		case bus.KindOrder:
			e.routeToVenue(event.Order.Instrument.Venue, func(s *strategy.Strategy) { s.OnOrder(event.Order) })
		case bus.KindMonitoring:
			e.mon.Report(event.Monitoring)
			if event.Monitoring.Entity == types.EntityPriceTicker && event.Monitoring.Status == types.MonitoringError {
				e.filter.ResetAll()
			}
			e.routeMonitoring(event.Monitoring)
		case bus.KindBalance:
			// no strategy in this engine consumes balances directly (§4.5
			// sizing works off visible depth); balance events are dropped here.
		}
	}
}

// routeMonitoring fans a MonitoringMessage out to every strategy, matching
// the teacher's polymorphic listener-union dispatch (§9 design note): every
// strategy observes every monitoring message and decides for itself
// whether the entity_id is one of its own feeds or its OMS.
func (e *Engine) routeMonitoring(msg types.MonitoringMessage) {
	for _, slot := range e.slots {
		slot.strategy.OnMonitoring(msg)
	}
}

func (e *Engine) routeToVenue(venue types.Venue, fn func(*strategy.Strategy)) {
	for _, slot := range e.slots {
		if slot.venue == venue {
			fn(slot.strategy)
			return
		}
	}
}
