package oms

import (
	"bufio"
	"crypto/ed25519"
	"net"
	"strings"
	"time"

	"github.com/arbprotocol/triarb/internal/config"
	"github.com/arbprotocol/triarb/pkg/types"
)

// session is the wire-level state of one connected FIX leg: the raw
// socket, a buffered reader, and the monotonically increasing outbound
// sequence number (§4.7 "session guarantees" — reset per session, sends
// serialized within one session).
type session struct {
	conn         net.Conn
	reader       *bufio.Reader
	cfg          config.OMSConfig
	seqNum       int
	senderCompID string
	targetCompID string
}

func sendingTime() string {
	return time.Now().UTC().Format(sendingTimeLayout)
}

// logon sends the Logon message (§4.7 step 2): heartbeat interval,
// ResetSeqNumFlag=Y, API key as Username, the implementation-defined
// MessageHandling tag, and an Ed25519 RawData signature over the
// canonical logon string.
func (s *session) logon(key ed25519.PrivateKey, apiKey string) error {
	s.senderCompID = s.cfg.SenderCompID
	s.targetCompID = s.cfg.TargetCompID

	st := sendingTime()
	sig := signLogon(key, s.senderCompID, s.targetCompID, s.seqNum, st)

	msg := newMessage(msgTypeLogon).
		setInt(tagEncryptMethod, 0).
		setInt(tagHeartBtInt, int(s.cfg.HeartbeatInterval.Seconds())).
		set(tagResetSeqNumFlag, "Y").
		set(tagUsername, apiKey).
		setInt(tagMessageHandling, s.cfg.MessageHandling).
		setInt(tagRawDataLength, len(sig)).
		set(tagRawData, sig)

	return s.writeAt(msg, st)
}

// sendHeartbeat replies to a TestRequest (or sends an unsolicited
// keepalive when testReqID is empty) with a Heartbeat (§4.7 step 3).
func (s *session) sendHeartbeat(testReqID string) error {
	msg := newMessage(msgTypeHeartbeat)
	if testReqID != "" {
		msg.set(tagTestReqID, testReqID)
	}
	return s.write(msg)
}

// sendNewOrderSingle encodes order per §4.7 step 7.
func (s *session) sendNewOrderSingle(order types.Order) error {
	msg := newMessage(msgTypeNewOrderSingle).
		set(tagClOrdID, order.ClientOrderID).
		set(tagOrdType, encodeOrdType(order.Type)).
		set(tagSide, encodeSide(order.Side)).
		set(tagSymbol, order.Instrument.Symbol)

	if order.Amount.IsPositive() {
		msg.set(tagOrderQty, order.Amount.String())
	}
	if order.AmountQuote.IsPositive() {
		msg.set(tagCashOrderQty, order.AmountQuote.String())
	}
	if order.Type == types.OrderTypeLimit && order.Price.IsPositive() {
		msg.set(tagPrice, order.Price.String())
	}

	return s.write(msg)
}

func (s *session) write(msg *message) error {
	return s.writeAt(msg, sendingTime())
}

func (s *session) writeAt(msg *message, st string) error {
	data := msg.encode(s.senderCompID, s.targetCompID, s.seqNum, st)
	s.seqNum++
	_, err := s.conn.Write(data)
	return err
}

// readMessage reads one complete FIX message, terminated by its CheckSum
// field (tag 10), off the buffered socket reader.
func (s *session) readMessage() (*message, error) {
	var sb strings.Builder
	for {
		chunk, err := s.reader.ReadString('\x01')
		if err != nil {
			return nil, err
		}
		sb.WriteString(chunk)
		if strings.HasPrefix(chunk, "10=") {
			break
		}
	}
	return parseMessage([]byte(sb.String()))
}

func encodeSide(side types.Side) string {
	if side == types.Sell {
		return "2"
	}
	return "1"
}

func encodeOrdType(t types.OrderType) string {
	if t == types.OrderTypeLimit {
		return "2"
	}
	return "1" // Market; LimitMaker also encodes to Market (§4.7)
}
