package graph

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/arbprotocol/triarb/pkg/types"
)

func inst(base, quote string, fee float64) *types.Instrument {
	return &types.Instrument{
		Venue:    "binance",
		Symbol:   base + quote,
		Base:     base,
		Quote:    quote,
		TakerFee: decimal.NewFromFloat(fee),
	}
}

func TestUpdateCreatesSymmetricEdges(t *testing.T) {
	t.Parallel()
	g := New()
	g.Update(types.PriceTicker{Instrument: inst("ETH", "USD", 0), Bid: 100, Ask: 101})

	if !g.ContainsCurrency("ETH") || !g.ContainsCurrency("USD") {
		t.Fatal("expected both ETH and USD nodes to exist")
	}
	if _, _, ok := g.GetDirection("ETH", "USD"); !ok {
		t.Error("expected ETH->USD direction to be recorded")
	}
	if _, _, ok := g.GetDirection("USD", "ETH"); !ok {
		t.Error("expected USD->ETH direction to be recorded")
	}

	instr, side, _ := g.GetDirection("ETH", "USD")
	if side != types.Sell || instr.Symbol != "ETHUSD" {
		t.Errorf("ETH->USD direction = (%v,%v), want (Sell,ETHUSD)", instr.Symbol, side)
	}
	instr, side, _ = g.GetDirection("USD", "ETH")
	if side != types.Buy || instr.Symbol != "ETHUSD" {
		t.Errorf("USD->ETH direction = (%v,%v), want (Buy,ETHUSD)", instr.Symbol, side)
	}
}

// TestFindArbPathClosesLoop builds an obviously profitable triangle
// (USD -> EUR -> GBP -> USD, effective rate product 8 with zero fees) and
// checks that the returned cycle is closed at the seed currency.
func TestFindArbPathClosesLoop(t *testing.T) {
	t.Parallel()
	g := New()

	g.Update(types.PriceTicker{Instrument: inst("USD", "EUR", 0), Bid: 2, Ask: 2.1})
	g.Update(types.PriceTicker{Instrument: inst("EUR", "GBP", 0), Bid: 2, Ask: 2.1})
	g.Update(types.PriceTicker{Instrument: inst("GBP", "USD", 0), Bid: 2, Ask: 2.1})

	path, found := g.FindArbPath("USD")
	if !found {
		t.Fatal("expected a negative cycle to be found")
	}
	if len(path) < 2 {
		t.Fatalf("path too short: %v", path)
	}
	if path[0] != "USD" || path[len(path)-1] != "USD" {
		t.Errorf("path = %v, want closed loop starting/ending at USD", path)
	}
	for i := 0; i < len(path)-1; i++ {
		if _, _, ok := g.GetDirection(path[i], path[i+1]); !ok {
			t.Errorf("no direction recorded for leg %s->%s", path[i], path[i+1])
		}
	}
}

func TestFindArbPathNoneWhenFairlyPriced(t *testing.T) {
	t.Parallel()
	g := New()

	// Round-trip rate product is exactly 1 before fees; with a taker fee on
	// each leg the cycle is strictly unprofitable.
	g.Update(types.PriceTicker{Instrument: inst("USD", "EUR", 0.01), Bid: 1, Ask: 1.01})
	g.Update(types.PriceTicker{Instrument: inst("EUR", "GBP", 0.01), Bid: 1, Ask: 1.01})
	g.Update(types.PriceTicker{Instrument: inst("GBP", "USD", 0.01), Bid: 1, Ask: 1.01})

	if _, found := g.FindArbPath("USD"); found {
		t.Error("expected no negative cycle for a fee-adjusted fair market")
	}
}

func TestFindArbPathUnknownCurrency(t *testing.T) {
	t.Parallel()
	g := New()
	g.Update(types.PriceTicker{Instrument: inst("ETH", "USD", 0), Bid: 100, Ask: 101})

	if _, found := g.FindArbPath("JPY"); found {
		t.Error("expected no path for a currency with no node")
	}
}

func TestResetIsIdempotentAndClearsEverything(t *testing.T) {
	t.Parallel()
	g := New()
	g.Update(types.PriceTicker{Instrument: inst("ETH", "USD", 0), Bid: 100, Ask: 101})

	g.Reset()
	g.Reset()

	if g.ContainsCurrency("ETH") || g.ContainsCurrency("USD") {
		t.Error("expected no nodes after reset")
	}
	if _, _, ok := g.GetDirection("ETH", "USD"); ok {
		t.Error("expected no direction mapping after reset")
	}
	if _, found := g.FindArbPath("ETH"); found {
		t.Error("expected no path after reset")
	}
}
