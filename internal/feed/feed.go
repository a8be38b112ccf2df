// Package feed implements the price-ticker stream adapters (C1, §4.1): one
// goroutine per (venue, subscription group) that dials a WebSocket, sends
// the venue's subscription payload, reads frames, and pushes decoded
// PriceTickers onto the fan-in bus. Auto-reconnects with exponential
// backoff and re-subscribes on every reconnect, same shape as the
// teacher's WSFeed.Run/connectAndRead pair.
//
// Venue differences (URL, ping convention, channel naming, wire parsing)
// are injected as a VenueSpec rather than hardcoded, per §4.1's explicit
// call for venue knobs to be configuration/code-injected, not baked in.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arbprotocol/triarb/internal/bus"
	"github.com/arbprotocol/triarb/internal/catalog"
	"github.com/arbprotocol/triarb/internal/config"
	"github.com/arbprotocol/triarb/internal/failure"
	"github.com/arbprotocol/triarb/pkg/types"
)

const (
	writeTimeout   = 10 * time.Second
	initialBackoff = time.Second
	readTimeout    = 90 * time.Second // ~2 missed server pings before we reconnect
)

// VenueSpec supplies the parts of a feed adapter that are genuinely code,
// not configuration: how to name a channel for a symbol, how to build the
// subscribe payload for a batch of channels, and how to parse an inbound
// frame into zero or more PriceTickers. URL, batching limits, and the ping
// convention live in config.VenueConfig instead, since those are plain
// values a deployer tunes without touching Go.
type VenueSpec struct {
	// ChannelName returns the venue-native channel/stream name for a
	// catalog symbol, e.g. "btcusdt@bookTicker" or "ticker-BTC/USD".
	ChannelName func(symbol string) string

	// BuildSubscribe returns the wire payload to send for a batch of
	// channel names (already split to respect MaxChannelsPerReq).
	BuildSubscribe func(channels []string) (messageType int, payload []byte, err error)

	// ParseFrame decodes one inbound frame into zero or more tickers. A
	// frame that isn't a ticker update (e.g. a subscription ack, a
	// heartbeat envelope) returns nil, nil.
	ParseFrame func(raw []byte, resolve func(nativeSymbol string) (*types.Instrument, error)) ([]types.PriceTicker, error)
}

// Adapter runs one subscription group's worth of symbols for one venue
// over one WebSocket connection.
type Adapter struct {
	venue    types.Venue
	entityID int
	cfg      config.VenueConfig
	spec     VenueSpec
	symbols  []string
	resolve  func(nativeSymbol string) (*types.Instrument, error)

	events *bus.Bus
	log    *slog.Logger
}

// New constructs one adapter for a single subscribe group. entityID
// distinguishes this socket's MonitoringMessages from a sibling group's on
// the same venue (§3's MonitoringMessage.EntityID).
func New(venue types.Venue, entityID int, cfg config.VenueConfig, spec VenueSpec, symbols []string, resolve func(string) (*types.Instrument, error), events *bus.Bus, log *slog.Logger) *Adapter {
	return &Adapter{
		venue:    venue,
		entityID: entityID,
		cfg:      cfg,
		spec:     spec,
		symbols:  symbols,
		resolve:  resolve,
		events:   events,
		log:      log.With("component", "feed", "venue", venue, "entity_id", entityID),
	}
}

// Run drives the reconnect loop until ctx is cancelled (§4.1 step 6).
func (a *Adapter) Run(ctx context.Context) {
	backoff := initialBackoff

	for ctx.Err() == nil {
		err := a.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}

		a.log.Warn("feed disconnected, reconnecting", "error", err, "backoff", backoff)
		a.pushMonitoring(types.MonitoringError)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > a.cfg.MaxBackoff {
			backoff = a.cfg.MaxBackoff
		}
	}
}

func (a *Adapter) pushMonitoring(status types.MonitoringStatus) {
	if err := a.events.Push(bus.NewMonitoringEvent(types.MonitoringMessage{
		Timestamp: time.Now(),
		Status:    status,
		Entity:    types.EntityPriceTicker,
		EntityID:  a.entityID,
	})); err != nil {
		failure.Crash(a.log, "fan-in bus full pushing feed monitoring message, consumer presumed dead", "error", err)
	}
}

func (a *Adapter) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Some venues ping the client and expect a matching pong; gorilla
	// already answers control-frame pings with the same payload by
	// default, this handler just makes that explicit and logs it.
	conn.SetPingHandler(func(appData string) error {
		a.log.Debug("received server ping")
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
	})

	if err := a.subscribeAll(conn); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	a.log.Info("feed connected", "symbols", len(a.symbols))
	a.pushMonitoring(types.MonitoringOk)

	if a.cfg.PingConvention == "client_ping" {
		pingCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go a.clientPingLoop(pingCtx, conn)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		ticks, err := a.spec.ParseFrame(raw, a.resolve)
		if err != nil {
			if errors.Is(err, catalog.ErrUnknownSymbol) {
				failure.Crash(a.log, "unknown symbol in feed payload, catalog skew", "error", err)
			}
			a.log.Error("malformed feed frame", "error", err)
			continue
		}
		for _, t := range ticks {
			t.IngestTime = time.Now()
			if err := a.events.Push(bus.NewTickerEvent(t)); err != nil {
				failure.Crash(a.log, "fan-in bus full pushing ticker, consumer presumed dead", "error", err)
			}
		}
	}
}

// subscribeAll sends subscribe requests in batches no larger than
// MaxChannelsPerReq, per §4.1's "venue-specific knobs" requirement.
func (a *Adapter) subscribeAll(conn *websocket.Conn) error {
	channels := make([]string, len(a.symbols))
	for i, sym := range a.symbols {
		channels[i] = a.spec.ChannelName(sym)
	}

	batchSize := a.cfg.MaxChannelsPerReq
	if batchSize <= 0 {
		batchSize = len(channels)
	}

	for start := 0; start < len(channels); start += batchSize {
		end := start + batchSize
		if end > len(channels) {
			end = len(channels)
		}

		messageType, payload, err := a.spec.BuildSubscribe(channels[start:end])
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(messageType, payload); err != nil {
			return fmt.Errorf("write subscribe: %w", err)
		}
	}
	return nil
}

// clientPingLoop is for venues that expect the client to drive keepalive
// rather than the server (§4.1's ping_convention knob).
func (a *Adapter) clientPingLoop(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				a.log.Warn("client ping failed", "error", err)
				return
			}
		}
	}
}
