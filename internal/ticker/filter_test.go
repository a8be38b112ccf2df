package ticker

import (
	"testing"

	"github.com/arbprotocol/triarb/pkg/types"
)

type countingListener struct {
	calls int
	last  types.PriceTicker
}

func (c *countingListener) OnPriceTicker(venue types.Venue, tick types.PriceTicker, snap Snapshot) {
	c.calls++
	c.last = tick
}

func instrument(symbol string) *types.Instrument {
	return &types.Instrument{Venue: "binance", Symbol: symbol, Base: "ETH", Quote: "USDT"}
}

func TestIngestDedup(t *testing.T) {
	t.Parallel()
	f := New()
	l := &countingListener{}
	f.Register("binance", l)

	inst := instrument("ETHUSDT")
	tick := types.PriceTicker{Instrument: inst, Bid: 100, Ask: 101}

	f.Ingest("binance", tick)
	f.Ingest("binance", tick)

	if l.calls != 1 {
		t.Errorf("broadcast count = %d, want 1 (S3)", l.calls)
	}
}

func TestIngestChangeBroadcasts(t *testing.T) {
	t.Parallel()
	f := New()
	l := &countingListener{}
	f.Register("binance", l)

	inst := instrument("ETHUSDT")
	f.Ingest("binance", types.PriceTicker{Instrument: inst, Bid: 100, Ask: 101})
	f.Ingest("binance", types.PriceTicker{Instrument: inst, Bid: 100, Ask: 102})

	if l.calls != 2 {
		t.Errorf("broadcast count = %d, want 2", l.calls)
	}
}

func TestIngestSentinelCarriesOverPriorSide(t *testing.T) {
	t.Parallel()
	f := New()
	inst := instrument("ETHUSDT")

	f.Ingest("binance", types.PriceTicker{Instrument: inst, Bid: 100, BidSize: 5, Ask: 101, AskSize: 6})
	f.Ingest("binance", types.PriceTicker{Instrument: inst, Bid: types.TickerUnchanged, Ask: 103, AskSize: 9})

	snap := f.Snapshot("binance")
	got := snap[inst.Key()]
	if got.Bid != 100 || got.BidSize != 5 {
		t.Errorf("bid side = (%v,%v), want carried-over (100,5)", got.Bid, got.BidSize)
	}
	if got.Ask != 103 {
		t.Errorf("ask = %v, want 103", got.Ask)
	}
}

func TestResetClearsVenue(t *testing.T) {
	t.Parallel()
	f := New()
	inst := instrument("ETHUSDT")
	f.Ingest("binance", types.PriceTicker{Instrument: inst, Bid: 100, Ask: 101})

	f.Reset("binance")

	if snap := f.Snapshot("binance"); snap != nil {
		t.Errorf("snapshot after reset = %v, want nil", snap)
	}
}

func TestResetAllClearsEveryVenue(t *testing.T) {
	t.Parallel()
	f := New()
	inst := instrument("ETHUSDT")
	f.Ingest("binance", types.PriceTicker{Instrument: inst, Bid: 100, Ask: 101})
	f.Ingest("kraken", types.PriceTicker{Instrument: inst, Bid: 200, Ask: 201})

	f.ResetAll()

	if snap := f.Snapshot("binance"); snap != nil {
		t.Errorf("binance snapshot after ResetAll = %v, want nil", snap)
	}
	if snap := f.Snapshot("kraken"); snap != nil {
		t.Errorf("kraken snapshot after ResetAll = %v, want nil", snap)
	}
}
