// Package oms implements the OMS session (C7, §4.7): a hand-rolled
// FIX-over-TLS client that logs on with an Ed25519-signed RawData blob,
// drives a sequenced heartbeat/test-request loop, dispatches
// NewOrderSingle requests, decodes ExecutionReports into types.Order, and
// reconnects on any read error, close, Reject, or Logout.
package oms

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbprotocol/triarb/internal/bus"
	"github.com/arbprotocol/triarb/internal/catalog"
	"github.com/arbprotocol/triarb/internal/config"
	"github.com/arbprotocol/triarb/internal/failure"
	"github.com/arbprotocol/triarb/pkg/types"
)

const (
	readTimeout        = time.Second
	sendingTimeLayout  = "20060102-15:04:05.000"
	transactTimeLayout = "20060102-15:04:05.999999"
)

// ordStatus maps inbound ORD_STATUS codes to types.OrderStatus (§6).
var ordStatus = map[string]types.OrderStatus{
	"0": types.StatusNew,
	"1": types.StatusPartiallyFilled,
	"2": types.StatusFilled,
	"4": types.StatusCanceled,
	"6": types.StatusCanceling,
	"8": types.StatusError, // Rejected
	"A": types.StatusScheduledSent, // PendingNew
	"C": types.StatusError, // Expired
}

// OMS is a single FIX-over-TLS session bound to one venue.
type OMS struct {
	cfg      config.OMSConfig
	catalog  *catalog.Catalog
	venue    types.Venue
	entityID int

	privKey ed25519.PrivateKey
	apiKey  string

	events *bus.Bus
	outbox chan types.Order

	log *slog.Logger
}

// New constructs an OMS session. The Ed25519 private key is loaded eagerly
// so a misconfigured key path is a fatal startup error, not a runtime
// surprise on first logon attempt.
func New(cfg config.OMSConfig, cat *catalog.Catalog, venue types.Venue, entityID int, events *bus.Bus, log *slog.Logger) (*OMS, error) {
	key, err := loadEd25519Key(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("oms: load private key: %w", err)
	}

	return &OMS{
		cfg:      cfg,
		catalog:  cat,
		venue:    venue,
		entityID: entityID,
		privKey:  key,
		apiKey:   cfg.APIKey(),
		events:   events,
		outbox:   make(chan types.Order, 16),
		log:      log.With("component", "oms", "venue", venue),
	}, nil
}

// Dispatch implements strategy.Dispatcher: it hands an order off to the
// session's outbound queue. Per §5 the strategy never has more than one
// order in flight, so a small buffer never backs up.
func (o *OMS) Dispatch(order types.Order) {
	o.outbox <- order
}

// Run drives the reconnect supervisor loop until ctx is cancelled (§4.7
// step 6, §9 "no async runtime" — a blocking socket with read timeouts on
// its own goroutine).
func (o *OMS) Run(ctx context.Context) {
	for ctx.Err() == nil {
		err := o.runSession(ctx)
		if ctx.Err() != nil {
			return
		}

		o.log.Warn("oms session ended, reconnecting", "error", err, "delay", o.cfg.ReconnectDelay)
		o.pushMonitoring(types.MonitoringError)

		select {
		case <-ctx.Done():
			return
		case <-time.After(o.cfg.ReconnectDelay):
		}
	}
}

func (o *OMS) pushMonitoring(status types.MonitoringStatus) {
	if err := o.events.Push(bus.NewMonitoringEvent(types.MonitoringMessage{
		Timestamp: time.Now(),
		Status:    status,
		Entity:    types.EntityOrderManagementSystem,
		EntityID:  o.entityID,
	})); err != nil {
		failure.Crash(o.log, "fan-in bus full pushing oms monitoring message, consumer presumed dead", "error", err)
	}
}

// runSession opens one TLS connection, logs on, and drives the
// request/response loop until an error, close, Reject, or Logout ends it.
func (o *OMS) runSession(ctx context.Context) error {
	dialer := &tls.Dialer{Config: &tls.Config{MinVersion: tls.VersionTLS12}}
	conn, err := dialer.DialContext(ctx, "tcp", o.cfg.Host)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	sess := &session{
		conn:   conn,
		reader: bufio.NewReader(conn),
		cfg:    o.cfg,
		seqNum: 1,
	}

	if err := sess.logon(o.privKey, o.apiKey); err != nil {
		return fmt.Errorf("logon: %w", err)
	}

	ready := false

	for ctx.Err() == nil {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		msg, err := sess.readMessage()
		if err != nil {
			if isTimeout(err) {
				o.drainOutbox(sess)
				continue
			}
			return fmt.Errorf("read: %w", err)
		}

		switch msg.msgType {
		case msgTypeTestRequest:
			testReqID, _ := msg.get(tagTestReqID)
			if err := sess.sendHeartbeat(testReqID); err != nil {
				return fmt.Errorf("heartbeat reply: %w", err)
			}

		case msgTypeHeartbeat:
			// server keepalive, nothing to do

		case msgTypeLimitResponse:
			if !ready {
				ready = true
				o.pushMonitoring(types.MonitoringOk)
			}

		case msgTypeExecutionReport:
			order, err := o.decodeExecutionReport(msg)
			if err != nil {
				if errors.Is(err, catalog.ErrUnknownSymbol) {
					failure.Crash(o.log, "unknown symbol in execution report, catalog skew", "error", err)
				}
				o.log.Error("malformed execution report", "error", err)
				continue
			}
			if err := o.events.Push(bus.NewOrderEvent(order)); err != nil {
				failure.Crash(o.log, "fan-in bus full pushing order update, consumer presumed dead", "error", err)
			}

		case msgTypeReject, msgTypeLogout:
			return fmt.Errorf("session ended by venue: %s", msg.msgType)
		}

		o.drainOutbox(sess)
	}
	return ctx.Err()
}

// drainOutbox sends every order queued via Dispatch since the last poll.
func (o *OMS) drainOutbox(sess *session) {
	for {
		select {
		case order := <-o.outbox:
			if err := sess.sendNewOrderSingle(order); err != nil {
				o.log.Error("failed to send order", "error", err, "client_order_id", order.ClientOrderID)
			}
		default:
			return
		}
	}
}

// decodeExecutionReport implements the §6 field-mapping table.
func (o *OMS) decodeExecutionReport(msg *message) (types.Order, error) {
	symbol, ok := msg.get(tagSymbol)
	if !ok {
		return types.Order{}, fmt.Errorf("execution report missing SYMBOL")
	}
	instrument, err := o.catalog.Get(o.venue, symbol)
	if err != nil {
		return types.Order{}, fmt.Errorf("execution report: %w", err)
	}

	order := types.Order{
		Instrument:      instrument,
		ExchangeOrderID: firstOr(msg, tagOrderID, ""),
		ClientOrderID:   firstOr(msg, tagOrigClOrdID, ""),
		Side:            decodeSide(firstOr(msg, tagSide, "")),
		Type:            decodeOrdType(firstOr(msg, tagOrdType, "")),
		Status:          decodeOrdStatus(firstOr(msg, tagOrdStatus, "")),
	}

	if v, ok := msg.get(tagOrderQty); ok {
		order.Amount = mustDecimal(v)
	}
	if v, ok := msg.get(tagCashOrderQty); ok {
		order.AmountQuote = mustDecimal(v)
	}
	if v, ok := msg.get(tagPrice); ok {
		order.Price = mustDecimal(v)
	}
	if v, ok := msg.get(tagCumQty); ok {
		order.AmountFilled = mustDecimal(v)
	}
	if v, ok := msg.get(tagTransactTime); ok {
		if ts, err := time.Parse(transactTimeLayout, v); err == nil {
			order.Timestamp = ts
		}
	}
	if order.Status == types.StatusError {
		order.Error, _ = msg.get(tagText)
	}

	currencies := msg.getAll(tagMiscFeeCurr)
	amounts := msg.getAll(tagMiscFeeAmt)
	for i := 0; i < len(currencies) && i < len(amounts); i++ {
		order.Fees = append(order.Fees, types.Fee{Currency: currencies[i], Amount: mustDecimal(amounts[i])})
	}

	return order, nil
}

func firstOr(msg *message, tag int, def string) string {
	if v, ok := msg.get(tag); ok {
		return v
	}
	return def
}

func mustDecimal(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decodeSide(v string) types.Side {
	if v == "2" {
		return types.Sell
	}
	return types.Buy
}

func decodeOrdType(v string) types.OrderType {
	if v == "2" {
		return types.OrderTypeLimit
	}
	return types.OrderTypeMarket
}

func decodeOrdStatus(v string) types.OrderStatus {
	if s, ok := ordStatus[v]; ok {
		return s
	}
	return types.StatusError
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// loadEd25519Key reads a PKCS#8 PEM-encoded Ed25519 private key (§4.7, §6).
func loadEd25519Key(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse PKCS8 key: %w", err)
	}
	ed, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key at %s is not Ed25519", path)
	}
	return ed, nil
}

// signLogon produces the base64 RawData signature for a Logon message
// (§4.7 step 2): Ed25519 over the canonical string
// "A\x01{sender}\x01{target}\x01{seq}\x01{sending_time}".
func signLogon(key ed25519.PrivateKey, sender, target string, seqNum int, sendingTime string) string {
	canonical := strings.Join([]string{msgTypeLogon, sender, target, strconv.Itoa(seqNum), sendingTime}, soh)
	sig := ed25519.Sign(key, []byte(canonical))
	return base64.StdEncoding.EncodeToString(sig)
}
