// Package ticker implements the ticker filter/broadcaster (§4.3): it keeps
// the latest (bid, ask) per (venue, instrument), drops exact duplicates,
// and broadcasts genuine changes to registered listeners synchronously.
package ticker

import (
	"sync"

	"github.com/arbprotocol/triarb/pkg/types"
)

// Snapshot is a read-only view of one venue's instrument -> latest ticker
// map, handed to listeners alongside the triggering tick (§4.3).
type Snapshot map[string]types.PriceTicker

// Listener receives broadcasts. A strategy instance for a given venue
// implements this to observe that venue's ticks; the filter invokes
// listeners in registration order and synchronously (§4.3) — an
// implementation that might block is expected to offload internally, but
// per this spec none of ours do.
type Listener interface {
	OnPriceTicker(venue types.Venue, tick types.PriceTicker, snapshot Snapshot)
}

// Filter deduplicates and broadcasts tickers per venue.
type Filter struct {
	mu        sync.Mutex
	byVenue   map[types.Venue]map[string]types.PriceTicker // venue -> instrument key -> latest
	listeners map[types.Venue][]Listener
}

// New creates an empty Filter.
func New() *Filter {
	return &Filter{
		byVenue:   make(map[types.Venue]map[string]types.PriceTicker),
		listeners: make(map[types.Venue][]Listener),
	}
}

// Register adds a listener for a venue. Listeners are invoked in
// registration order on every broadcast for that venue.
func (f *Filter) Register(venue types.Venue, l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[venue] = append(f.listeners[venue], l)
}

// Ingest applies an incoming ticker (§4.3 steps 1-4): absent -> insert and
// broadcast; identical (bid, ask) -> drop; otherwise replace and broadcast.
func (f *Filter) Ingest(venue types.Venue, tick types.PriceTicker) {
	f.mu.Lock()

	venueMap, ok := f.byVenue[venue]
	if !ok {
		venueMap = make(map[string]types.PriceTicker)
		f.byVenue[venue] = venueMap
	}

	key := tick.Instrument.Key()
	prior, existed := venueMap[key]

	merged := mergeSentinel(prior, tick, existed)

	if existed && merged.Bid == prior.Bid && merged.Ask == prior.Ask {
		f.mu.Unlock()
		return
	}

	venueMap[key] = merged

	snapshot := make(Snapshot, len(venueMap))
	for k, v := range venueMap {
		snapshot[k] = v
	}
	listeners := append([]Listener(nil), f.listeners[venue]...)
	f.mu.Unlock()

	for _, l := range listeners {
		l.OnPriceTicker(venue, merged, snapshot)
	}
}

// mergeSentinel carries over the prior side's (price, size) wherever the
// incoming tick reports the "unchanged" sentinel (§6, §9 Open Questions).
func mergeSentinel(prior, incoming types.PriceTicker, havePrior bool) types.PriceTicker {
	merged := incoming
	if !havePrior {
		return merged
	}
	if types.IsUnchanged(incoming.Bid) {
		merged.Bid = prior.Bid
		merged.BidSize = prior.BidSize
	}
	if types.IsUnchanged(incoming.Ask) {
		merged.Ask = prior.Ask
		merged.AskSize = prior.AskSize
	}
	return merged
}

// Reset clears the cached map for a single venue.
func (f *Filter) Reset(venue types.Venue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byVenue, venue)
}

// ResetAll clears the cached map entirely (§4.3 step 5): the engine calls
// this on every MonitoringMessage{Error, PriceTicker}, regardless of which
// feed reported it, since the map is described as a single venue->
// instrument->ticker structure to be cleared as a whole, not per-producer.
// Every venue's map repopulates naturally from subsequent ticks once its
// feed recovers.
func (f *Filter) ResetAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byVenue = make(map[types.Venue]map[string]types.PriceTicker)
}

// Snapshot returns a copy of the current venue ticker map, for status
// reporting (e.g. the HTTP status surface).
func (f *Filter) Snapshot(venue types.Venue) Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	venueMap, ok := f.byVenue[venue]
	if !ok {
		return nil
	}
	snap := make(Snapshot, len(venueMap))
	for k, v := range venueMap {
		snap[k] = v
	}
	return snap
}
