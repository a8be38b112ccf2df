// Package sizing implements the chain sizer (§4.5): given a detected
// arbitrage cycle expressed as an ordered chain of (instrument, side) legs,
// compute the maximum amount — denominated in the chain's starting
// (reference) currency — that can fill every leg at once, respecting
// visible top-of-book depth, taker fees, and each instrument's notional
// floor.
package sizing

import (
	"github.com/arbprotocol/triarb/internal/config"
	"github.com/arbprotocol/triarb/internal/ticker"
	"github.com/arbprotocol/triarb/pkg/types"
)

// Leg is one step of a detected arbitrage chain.
type Leg struct {
	Instrument *types.Instrument
	Side       types.Side
}

// effectiveBid is the quote amount actually received per unit sold, net of
// taker fee (§4.5, Glossary).
func effectiveBid(bid, fee float64) float64 {
	return bid * (1 - fee)
}

// effectiveAsk is the quote amount actually paid per unit bought, gross of
// taker fee (§4.5, Glossary).
func effectiveAsk(ask, fee float64) float64 {
	return ask * (1 + fee)
}

// ChainAmountQuote runs the backward sizing pass over chain using the
// venue's latest ticker snapshot, then clamps the result per cfg (§4.5).
// The chain is traversed from its last leg to its first: the running
// amount starts out depth-limited at the last leg and is repeatedly
// re-expressed in each earlier leg's currency terms, clipped to that leg's
// own visible depth along the way. Returns (amount, true) on success, or
// (0, false) if any leg fails a depth/notional constraint, or the final
// clamped amount is below the configured minimum.
func ChainAmountQuote(chain []Leg, snap ticker.Snapshot, cfg config.SizingConfig) (float64, bool) {
	if len(chain) == 0 {
		return 0, false
	}

	last := chain[len(chain)-1]
	lastTick, ok := snap[last.Instrument.Key()]
	if !ok {
		return 0, false
	}
	lastFee, _ := last.Instrument.TakerFee.Float64()

	var amount float64
	switch last.Side {
	case types.Buy:
		amount = lastTick.AskSize * effectiveAsk(lastTick.Ask, lastFee)
	case types.Sell:
		amount = lastTick.BidSize
	default:
		return 0, false
	}

	if notionalMin, _ := last.Instrument.OrderNotionalMin.Float64(); amount < notionalMin {
		return 0, false
	}

	prev := last
	for i := len(chain) - 2; i >= 0; i-- {
		current := chain[i]
		tick, ok := snap[current.Instrument.Key()]
		if !ok {
			return 0, false
		}
		fee, _ := current.Instrument.TakerFee.Float64()

		switch current.Side {
		case types.Buy:
			if amount > tick.AskSize {
				amount = tick.AskSize
			}
			amount = effectiveAsk(tick.Ask, fee) * amount

		case types.Sell:
			if prev.Instrument.Base != current.Instrument.Base {
				amount = amount / effectiveBid(tick.Bid, fee)
			}
			if amount > tick.BidSize {
				amount = tick.BidSize
			}

		default:
			return 0, false
		}

		if notionalMin, _ := current.Instrument.OrderNotionalMin.Float64(); amount < notionalMin {
			return 0, false
		}

		prev = current
	}

	return clamp(amount, cfg)
}

// clamp applies the configured [min,max] enter-amount bounds (§4.5): below
// the minimum the chain is not actionable at all; above the maximum we
// conservatively re-clamp down to the minimum rather than sizing up to the
// cap, so a single detection never risks the full maximum on a borderline
// read.
func clamp(amount float64, cfg config.SizingConfig) (float64, bool) {
	if amount < cfg.MinOrderSize {
		return 0, false
	}
	if amount > cfg.MaxOrderSize {
		return cfg.MinOrderSize, true
	}
	return amount, true
}
