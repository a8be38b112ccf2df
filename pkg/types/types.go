// Package types defines the shared data vocabulary used across every layer
// of the arbitrage engine — instrument identity, top-of-book ticks, orders,
// and monitoring health signals. It has no dependencies on internal
// packages, so it can be imported by any layer without import cycles.
package types

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Venues
// ————————————————————————————————————————————————————————————————————————

// Venue identifies a spot exchange by its configured name. New venues are
// wired in by mapping that name to a feed.VenueSpec in feed.SpecFor;
// nothing else in the engine is venue-aware.
type Venue string

// Side represents the direction of an order: Buy or Sell.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderType enumerates the order lifecycles the OMS can submit.
// Only immediate-or-cancel market orders are in scope; Limit and
// LimitMaker are accepted on the wire (§6) but LimitMaker always
// encodes to Market on the OMS side (§4.7).
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeLimitMaker OrderType = "LIMIT_MAKER"
)

// OrderStatus is the FIX-derived lifecycle state of an Order (§3, §6).
type OrderStatus string

const (
	StatusScheduled       OrderStatus = "SCHEDULED"
	StatusScheduledSent   OrderStatus = "SCHEDULED_SENT"
	StatusNew             OrderStatus = "NEW"
	StatusOpen            OrderStatus = "OPEN"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceling       OrderStatus = "CANCELING"
	StatusCancelingSent   OrderStatus = "CANCELING_SENT"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusError           OrderStatus = "ERROR"
)

// MonitoringEntity names the kind of producer a MonitoringMessage describes.
type MonitoringEntity string

const (
	EntityPriceTicker           MonitoringEntity = "PRICE_TICKER"
	EntityOrderManagementSystem MonitoringEntity = "OMS"
	EntityAccountUpdate         MonitoringEntity = "ACCOUNT_UPDATE"
)

// MonitoringStatus is the health reported for a MonitoringEntity instance.
type MonitoringStatus string

const (
	MonitoringOk    MonitoringStatus = "OK"
	MonitoringError MonitoringStatus = "ERROR"
)

// ————————————————————————————————————————————————————————————————————————
// Instrument
// ————————————————————————————————————————————————————————————————————————

// Instrument is the identity of a tradable pair at a venue (§3). Instances
// are created once at startup by the catalog and shared by reference —
// equality and hashing are by Symbol, which is sufficient because symbols
// are scoped through the owning catalog (one venue, one symbol namespace).
type Instrument struct {
	Venue  Venue
	Symbol string // venue-native symbol, e.g. "BTCUSDT"

	Base  string // base currency, e.g. "BTC"
	Quote string // quote currency, e.g. "USDT"

	AmountPrecision int // decimal places for order amount
	PricePrecision  int // decimal places for order price

	OrderAmountMin decimal.Decimal
	OrderAmountMax decimal.Decimal

	OrderNotionalMin decimal.Decimal
	OrderNotionalMax decimal.Decimal

	MakerFee decimal.Decimal // fractional, e.g. 0.001 = 10bps
	TakerFee decimal.Decimal
}

// Key returns the catalog equality key for this instrument (venue + symbol).
func (i Instrument) Key() string {
	return string(i.Venue) + ":" + i.Symbol
}

// ————————————————————————————————————————————————————————————————————————
// PriceTicker
// ————————————————————————————————————————————————————————————————————————

// TickerUnchanged denotes "this side did not change" for venues that stream
// only one side of the book per message (§6, §9 Open Questions). The
// implementer's choice: negative magnitude, since bid/ask/size are never
// legitimately negative and NaN complicates equality comparisons in the
// filter's dedup check (§4.3).
const TickerUnchanged = -1.0

// PriceTicker is a top-of-book snapshot (§3). Bid <= Ask whenever both are
// present and not the unchanged sentinel; sizes are >= 0.
type PriceTicker struct {
	IngestTime time.Time // monotonic wall-clock ingest timestamp
	Instrument *Instrument

	Bid     float64
	BidSize float64
	Ask     float64
	AskSize float64
}

// IsUnchanged reports whether v is the "side unchanged" sentinel.
func IsUnchanged(v float64) bool {
	return v <= TickerUnchanged
}

// ————————————————————————————————————————————————————————————————————————
// Order
// ————————————————————————————————————————————————————————————————————————

// Fee is a single (currency, amount) fee line reported on an execution.
type Fee struct {
	Currency string
	Amount   decimal.Decimal
}

// Order is both the strategy's request and the OMS's reported lifecycle
// for it (§3). The strategy owns the pending sequence; the OMS owns the
// in-flight wire copy; the two communicate only by value through queues.
type Order struct {
	Timestamp       time.Time
	Instrument      *Instrument
	ExchangeOrderID string
	ClientOrderID   string // UUID, minted once per order by the strategy

	Type   OrderType
	Side   Side
	Status OrderStatus

	Price        decimal.Decimal
	Amount       decimal.Decimal // base currency
	AmountQuote  decimal.Decimal // quote currency
	AmountFilled decimal.Decimal

	Fees  []Fee
	Error string
}

// ————————————————————————————————————————————————————————————————————————
// Monitoring
// ————————————————————————————————————————————————————————————————————————

// MonitoringMessage is a health notification from a producer (§3). Every
// Error MUST eventually be followed by a matching Ok from the same
// (Entity, EntityID) pair once the source recovers.
type MonitoringMessage struct {
	Timestamp time.Time
	Status    MonitoringStatus
	Entity    MonitoringEntity
	EntityID  int // identifies a stream or session instance
}

// Key identifies the (entity, entity_id) pair an Ok/Error message pairs up on.
func (m MonitoringMessage) Key() string {
	return string(m.Entity) + "#" + strconv.Itoa(m.EntityID)
}

// ————————————————————————————————————————————————————————————————————————
// Balance (referenced by the Event tagged union, §4.2)
// ————————————————————————————————————————————————————————————————————————

// Balance is an account-level funds update. The core arbitrage logic in
// this engine does not consume balances directly (sizing works off visible
// depth, §4.5). The fan-in bus carries them as an Event variant, but the
// orchestrator does not route them to any strategy or other listener.
type Balance struct {
	Timestamp time.Time
	Venue     Venue
	Currency  string
	Available decimal.Decimal
	Total     decimal.Decimal
}
