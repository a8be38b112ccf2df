package sizing

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/arbprotocol/triarb/internal/config"
	"github.com/arbprotocol/triarb/internal/ticker"
	"github.com/arbprotocol/triarb/pkg/types"
)

func sizingInstrument(base, quote string) *types.Instrument {
	return &types.Instrument{Venue: "test", Symbol: base + quote, Base: base, Quote: quote}
}

func approxEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

// TestChainAmountQuoteS1 reproduces the straight-through single-chain
// scenario: BUY BTC/USDT, BUY ETH/BTC, SELL ETH/USDT.
func TestChainAmountQuoteS1(t *testing.T) {
	t.Parallel()

	btcUsdt := sizingInstrument("BTC", "USDT")
	ethBtc := sizingInstrument("ETH", "BTC")
	ethUsdt := sizingInstrument("ETH", "USDT")

	snap := ticker.Snapshot{
		btcUsdt.Key(): types.PriceTicker{Instrument: btcUsdt, Ask: 69681, AskSize: 4, Bid: 69680, BidSize: 2},
		ethBtc.Key():  types.PriceTicker{Instrument: ethBtc, Ask: 0.03591, AskSize: 7, Bid: 0.0359, BidSize: 8},
		ethUsdt.Key(): types.PriceTicker{Instrument: ethUsdt, Ask: 2501, AskSize: 7, Bid: 2500, BidSize: 10},
	}

	chain := []Leg{
		{Instrument: btcUsdt, Side: types.Buy},
		{Instrument: ethBtc, Side: types.Buy},
		{Instrument: ethUsdt, Side: types.Sell},
	}

	cfg := config.SizingConfig{ReferenceCurrency: "USDT", MinOrderSize: 10, MaxOrderSize: 1_000_000}

	got, ok := ChainAmountQuote(chain, snap, cfg)
	if !ok {
		t.Fatal("expected a sizing result")
	}
	want := 17515.71297
	if !approxEqual(got, want, 0.01) {
		t.Errorf("chain amount = %v, want ≈ %v", got, want)
	}
}

// TestChainAmountQuoteBridgingSell exercises the prev.base != current.base
// branch: a Sell leg whose base differs from the next leg's base requires
// dividing by the effective bid to re-express the running amount before
// clipping to depth. Reproduces test_complex_chain2's BTC/USDT, BTC/TRY,
// USDT/TRY ticker values and its expected ≈3484.05 result.
func TestChainAmountQuoteBridgingSell(t *testing.T) {
	t.Parallel()

	btcUsdt := sizingInstrument("BTC", "USDT")
	btcTry := sizingInstrument("BTC", "TRY")
	usdtTry := sizingInstrument("USDT", "TRY")

	snap := ticker.Snapshot{
		btcUsdt.Key(): types.PriceTicker{Instrument: btcUsdt, Ask: 69681, AskSize: 4, Bid: 69680, BidSize: 2},
		btcTry.Key():  types.PriceTicker{Instrument: btcTry, Ask: 2_403_845, AskSize: 0.02, Bid: 2_403_820, BidSize: 0.05},
		usdtTry.Key(): types.PriceTicker{Instrument: usdtTry, Ask: 34.58, AskSize: 500000, Bid: 34.57, BidSize: 100000},
	}

	chain := []Leg{
		{Instrument: btcUsdt, Side: types.Buy},
		{Instrument: btcTry, Side: types.Sell},
		{Instrument: usdtTry, Side: types.Buy},
	}

	cfg := config.SizingConfig{ReferenceCurrency: "USDT", MinOrderSize: 1, MaxOrderSize: 10_000_000}

	got, ok := ChainAmountQuote(chain, snap, cfg)
	if !ok {
		t.Fatal("expected a sizing result for the bridging chain")
	}
	want := 3484.05
	if !approxEqual(got, want, 0.01) {
		t.Errorf("chain amount = %v, want ≈ %v", got, want)
	}
}

func TestChainAmountQuoteMissingTickerReturnsNone(t *testing.T) {
	t.Parallel()

	btcUsdt := sizingInstrument("BTC", "USDT")
	chain := []Leg{{Instrument: btcUsdt, Side: types.Buy}}

	_, ok := ChainAmountQuote(chain, ticker.Snapshot{}, config.SizingConfig{MinOrderSize: 1, MaxOrderSize: 100})
	if ok {
		t.Error("expected no result when the venue snapshot has no tick for the leg's instrument")
	}
}

// TestChainAmountQuoteSizingSafety checks property #5: the result is
// never below a leg's notional floor and is reported as none when a floor
// is violated.
func TestChainAmountQuoteSizingSafety(t *testing.T) {
	t.Parallel()

	btcUsdt := sizingInstrument("BTC", "USDT")
	btcUsdt.OrderNotionalMin = decimal.NewFromFloat(100000) // far above any reachable amount

	snap := ticker.Snapshot{
		btcUsdt.Key(): types.PriceTicker{Instrument: btcUsdt, Ask: 69681, AskSize: 1, Bid: 69680, BidSize: 1},
	}
	chain := []Leg{{Instrument: btcUsdt, Side: types.Buy}}

	_, ok := ChainAmountQuote(chain, snap, config.SizingConfig{MinOrderSize: 1, MaxOrderSize: 1_000_000})
	if ok {
		t.Error("expected none when the last leg's notional floor is not met")
	}
}

func TestClampAboveMaxConservativelyReturnsMin(t *testing.T) {
	t.Parallel()
	cfg := config.SizingConfig{MinOrderSize: 50, MaxOrderSize: 100}

	got, ok := clamp(500, cfg)
	if !ok || got != 50 {
		t.Errorf("clamp(500) = (%v,%v), want (50,true)", got, ok)
	}
}

func TestClampBelowMinReturnsNone(t *testing.T) {
	t.Parallel()
	cfg := config.SizingConfig{MinOrderSize: 50, MaxOrderSize: 100}

	if _, ok := clamp(10, cfg); ok {
		t.Error("expected none below the configured minimum")
	}
}
