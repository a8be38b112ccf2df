// Package graph implements the per-venue arbitrage graph (§4.4): a directed
// weighted graph of currencies with log-rate edge weights, plus a
// Bellman-Ford-based negative-cycle search anchored at a reference
// currency. A negative cycle in this graph is a net-of-fee profitable
// round trip at quoted top-of-book (before depth is considered — that is
// the chain sizer's job, §4.5).
//
// Per §9's design notes, the edge -> (instrument, side) lookup is kept as a
// side-table keyed by (from, to) node pair rather than as edge attributes,
// so the graph representation itself stays a plain adjacency map.
package graph

import (
	"math"
	"strings"
	"sync"

	"github.com/arbprotocol/triarb/pkg/types"
)

// direction records which instrument+side realizes a given (from, to) edge.
type direction struct {
	instrument *types.Instrument
	side       types.Side
}

// Graph is a directed weighted graph of currencies for a single venue.
// Nodes are canonicalized (upper-cased) currency codes. Safe for concurrent
// use, though in this engine it is only ever touched from the single
// orchestrator goroutine that owns a given venue's strategy (§5).
type Graph struct {
	mu sync.Mutex

	// adjacency: from -> to -> weight (-ln(effective rate))
	edges map[string]map[string]float64

	// side-table: (from,to) -> which instrument/side realizes that edge
	directions map[[2]string]direction
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		edges:      make(map[string]map[string]float64),
		directions: make(map[[2]string]direction),
	}
}

func canon(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// Update folds one ticker into the graph (§4.4). Both directed edges for
// the instrument's (base, quote) pair are (re)computed from the tick's
// top-of-book and the instrument's taker fee. Invalid (non-positive)
// prices are ignored — they cannot be represented as a log-rate and
// indicate the tick has not yet populated that side.
func (g *Graph) Update(tick types.PriceTicker) {
	if tick.Instrument == nil || tick.Bid <= 0 || tick.Ask <= 0 {
		return
	}

	base := canon(tick.Instrument.Base)
	quote := canon(tick.Instrument.Quote)
	fee, _ := tick.Instrument.TakerFee.Float64()

	effectiveBid := tick.Bid * (1 - fee)
	effectiveAskInv := 1 / (tick.Ask * (1 + fee))
	if effectiveBid <= 0 || effectiveAskInv <= 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.ensureNodeLocked(base)
	g.ensureNodeLocked(quote)

	_, alreadyRecorded := g.directions[[2]string{base, quote}]

	g.setEdgeLocked(base, quote, -math.Log(effectiveBid))
	g.setEdgeLocked(quote, base, -math.Log(effectiveAskInv))

	if !alreadyRecorded {
		g.directions[[2]string{base, quote}] = direction{instrument: tick.Instrument, side: types.Sell}
		g.directions[[2]string{quote, base}] = direction{instrument: tick.Instrument, side: types.Buy}
	}
}

func (g *Graph) ensureNodeLocked(node string) {
	if _, ok := g.edges[node]; !ok {
		g.edges[node] = make(map[string]float64)
	}
}

func (g *Graph) setEdgeLocked(from, to string, weight float64) {
	g.edges[from][to] = weight
}

// ContainsCurrency reports whether a node for this currency exists.
func (g *Graph) ContainsCurrency(currency string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.edges[canon(currency)]
	return ok
}

// GetDirection returns the (instrument, side) that realizes the from->to
// edge, if any.
func (g *Graph) GetDirection(from, to string) (*types.Instrument, types.Side, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.directions[[2]string{canon(from), canon(to)}]
	if !ok {
		return nil, "", false
	}
	return d.instrument, d.side, true
}

// Reset drops all nodes, edges, and direction mappings (§4.4, §4.3 step 5).
// Idempotent: calling it twice in a row leaves the graph empty both times.
func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges = make(map[string]map[string]float64)
	g.directions = make(map[[2]string]direction)
}

// FindArbPath runs Bellman-Ford negative-cycle detection seeded at the node
// for currency. If a negative cycle reachable from that node is found and
// it contains the node for currency, the cycle is rotated to start and end
// there (closing the loop explicitly) and returned. Otherwise it returns
// (nil, false). Ties are broken arbitrarily by the algorithm: callers MUST
// treat a returned path as non-unique (§4.4).
func (g *Graph) FindArbPath(currency string) ([]string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	source := canon(currency)
	if _, ok := g.edges[source]; !ok {
		return nil, false
	}

	dist := make(map[string]float64, len(g.edges))
	pred := make(map[string]string, len(g.edges))
	for node := range g.edges {
		dist[node] = math.Inf(1)
	}
	dist[source] = 0

	n := len(g.edges)

	// Relax all edges |V|-1 times.
	for i := 0; i < n-1; i++ {
		changed := false
		for from, neighbors := range g.edges {
			if math.IsInf(dist[from], 1) {
				continue
			}
			for to, weight := range neighbors {
				if nd := dist[from] + weight; nd < dist[to] {
					dist[to] = nd
					pred[to] = from
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}

	// One more pass: any edge that can still relax touches a negative cycle.
	var cycleEntry string
	found := false
	for from, neighbors := range g.edges {
		if math.IsInf(dist[from], 1) {
			continue
		}
		for to, weight := range neighbors {
			if dist[from]+weight < dist[to] {
				cycleEntry = to
				found = true
				break
			}
		}
		if found {
			break
		}
	}
	if !found {
		return nil, false
	}

	// Walk |V| predecessor steps to guarantee landing inside the cycle.
	walker := cycleEntry
	for i := 0; i < n; i++ {
		p, ok := pred[walker]
		if !ok {
			return nil, false
		}
		walker = p
	}

	// Collect the cycle by walking predecessors until we see walker again.
	cycle := []string{walker}
	seen := map[string]bool{walker: true}
	cur := pred[walker]
	for {
		cycle = append(cycle, cur)
		if cur == walker {
			break
		}
		if seen[cur] {
			// Safety net against malformed predecessor chains; should not
			// happen given the |V|-step walk above.
			return nil, false
		}
		seen[cur] = true
		next, ok := pred[cur]
		if !ok {
			return nil, false
		}
		cur = next
	}

	// cycle is currently [walker, ..., walker] but walked in predecessor
	// (reverse traversal) order; reverse it to forward edge order.
	reversed := make([]string, len(cycle))
	for i, v := range cycle {
		reversed[len(cycle)-1-i] = v
	}
	cycle = reversed

	if !containsNode(cycle, source) {
		return nil, false
	}

	return rotateToStart(cycle, source), true
}

func containsNode(cycle []string, node string) bool {
	for _, c := range cycle {
		if c == node {
			return true
		}
	}
	return false
}

// rotateToStart rotates a closed cycle (first element == last element) so
// it begins and ends at start.
func rotateToStart(cycle []string, start string) []string {
	// cycle = [c0, c1, ..., cn=c0]; drop the closing duplicate, find start,
	// rotate, then re-close.
	body := cycle[:len(cycle)-1]

	idx := -1
	for i, c := range body {
		if c == start {
			idx = i
			break
		}
	}
	if idx < 0 {
		return cycle
	}

	rotated := make([]string, 0, len(body)+1)
	rotated = append(rotated, body[idx:]...)
	rotated = append(rotated, body[:idx]...)
	rotated = append(rotated, start)
	return rotated
}
