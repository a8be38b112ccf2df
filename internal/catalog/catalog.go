// Package catalog loads the static instruments catalog (§4.8, §6) and
// exposes it as a venue-scoped lookup. The catalog is built once at startup
// and shared immutably by reference across every goroutine; nothing in this
// package mutates an Instrument after Load returns.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/arbprotocol/triarb/pkg/types"
)

// ErrUnknownSymbol is wrapped into the error Get returns for a venue/symbol
// it doesn't recognize. Callers receiving a wire symbol from a venue feed
// must distinguish this from an ordinary decode error: it means the feed
// and the catalog have drifted apart, which is fatal (§4.1, §4.8, §7), not
// a malformed-frame condition to log and skip.
var ErrUnknownSymbol = errors.New("catalog: unknown symbol")

// record is the JSON shape of one catalog entry (§6).
type record struct {
	Exchange         string  `json:"exchange"`
	Symbol           string  `json:"symbol"`
	Base             string  `json:"base"`
	Quote            string  `json:"quote"`
	AmountPrecision  int     `json:"amount_precision"`
	PricePrecision   int     `json:"price_precision"`
	OrderAmountMin   float64 `json:"order_amount_min"`
	OrderAmountMax   float64 `json:"order_amount_max"`
	OrderNotionalMin float64 `json:"order_notional_min"`
	OrderNotionalMax float64 `json:"order_notional_max"`
	MakerFee         float64 `json:"maker_fee"`
	TakerFee         float64 `json:"taker_fee"`
}

// Catalog is the immutable venue -> (normalized key -> Instrument) map.
// Every instrument is keyed under SYMBOL, BASE/QUOTE, BASEQUOTE, and their
// lower-cased variants (§4.8), so lookups succeed regardless of which
// symbol convention a venue's wire payload happens to use.
type Catalog struct {
	byVenue map[types.Venue]map[string]*types.Instrument
}

// Load reads a catalog from a local file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return parse(data)
}

// LoadFromURL fetches a catalog over HTTP, retrying on 5xx responses the
// same way the teacher's market scanner retries Gamma API requests.
func LoadFromURL(ctx context.Context, url string) (*Catalog, error) {
	client := resty.New().
		SetTimeout(15 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	resp, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("fetch catalog: status %d", resp.StatusCode())
	}
	return parse(resp.Body())
}

func parse(data []byte) (*Catalog, error) {
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{byVenue: make(map[types.Venue]map[string]*types.Instrument)}

	for _, r := range records {
		if r.Exchange == "" || r.Symbol == "" || r.Base == "" || r.Quote == "" {
			return nil, fmt.Errorf("catalog record missing required field: %+v", r)
		}

		inst := &types.Instrument{
			Venue:            types.Venue(r.Exchange),
			Symbol:           r.Symbol,
			Base:             strings.ToUpper(r.Base),
			Quote:            strings.ToUpper(r.Quote),
			AmountPrecision:  r.AmountPrecision,
			PricePrecision:   r.PricePrecision,
			OrderAmountMin:   decimal.NewFromFloat(r.OrderAmountMin),
			OrderAmountMax:   decimal.NewFromFloat(r.OrderAmountMax),
			OrderNotionalMin: decimal.NewFromFloat(r.OrderNotionalMin),
			OrderNotionalMax: decimal.NewFromFloat(r.OrderNotionalMax),
			MakerFee:         decimal.NewFromFloat(r.MakerFee),
			TakerFee:         decimal.NewFromFloat(r.TakerFee),
		}

		venue := c.byVenue[inst.Venue]
		if venue == nil {
			venue = make(map[string]*types.Instrument)
			c.byVenue[inst.Venue] = venue
		}

		for _, key := range normalizedKeys(inst.Symbol, inst.Base, inst.Quote) {
			venue[key] = inst
		}
	}

	return c, nil
}

// normalizedKeys returns every normalization of a symbol the venues in the
// wild use: native SYMBOL, BASE/QUOTE, BASEQUOTE, and lower-cased variants.
func normalizedKeys(symbol, base, quote string) []string {
	baseQuoteSlash := base + "/" + quote
	baseQuote := base + quote

	keys := []string{symbol, baseQuoteSlash, baseQuote}
	lower := make([]string, len(keys))
	for i, k := range keys {
		lower[i] = strings.ToLower(k)
	}
	return append(keys, lower...)
}

// Get returns the shared Instrument for a venue+symbol. A missing lookup is
// a data-integrity error (§4.8, §7): the caller should treat it as fatal —
// it means the venue emitted a symbol the catalog doesn't know about.
func (c *Catalog) Get(venue types.Venue, symbol string) (*types.Instrument, error) {
	byKey, ok := c.byVenue[venue]
	if !ok {
		return nil, fmt.Errorf("%w: venue %q", ErrUnknownSymbol, venue)
	}
	inst, ok := byKey[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %q for venue %q", ErrUnknownSymbol, symbol, venue)
	}
	return inst, nil
}

// Instruments returns every distinct instrument known for a venue.
func (c *Catalog) Instruments(venue types.Venue) []*types.Instrument {
	byKey, ok := c.byVenue[venue]
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var out []*types.Instrument
	for _, inst := range byKey {
		if seen[inst.Symbol] {
			continue
		}
		seen[inst.Symbol] = true
		out = append(out, inst)
	}
	return out
}
