package oms

import (
	"fmt"
	"strconv"
	"strings"
)

const soh = "\x01"

// FIX message types this session speaks (§6).
const (
	msgTypeLogon           = "A"
	msgTypeHeartbeat       = "0"
	msgTypeTestRequest     = "1"
	msgTypeReject          = "3"
	msgTypeLogout          = "5"
	msgTypeExecutionReport = "8"
	msgTypeNewOrderSingle  = "D"
	msgTypeLimitQuery      = "XLQ"
	msgTypeLimitResponse   = "XLR"
)

// Tag numbers for the wire subset this session speaks (§4.7, §6). Standard
// FIX 4.4 tags where one exists; 9400+ is this venue's implementation-
// defined range.
const (
	tagBeginString    = 8
	tagBodyLength     = 9
	tagMsgType        = 35
	tagSenderCompID   = 49
	tagTargetCompID   = 56
	tagMsgSeqNum      = 34
	tagSendingTime    = 52
	tagCheckSum       = 10
	tagEncryptMethod  = 98
	tagHeartBtInt     = 108
	tagResetSeqNumFlag = 141
	tagUsername       = 553
	tagRawDataLength  = 95
	tagRawData        = 96
	tagTestReqID      = 112
	tagText           = 58
	tagClOrdID        = 11
	tagOrigClOrdID    = 41
	tagOrderID        = 37
	tagOrderQty       = 38
	tagCashOrderQty   = 152
	tagOrdType        = 40
	tagSide           = 54
	tagPrice          = 44
	tagSymbol         = 55
	tagTransactTime   = 60
	tagOrdStatus      = 39
	tagCumQty         = 14
	tagNoMiscFees     = 136
	tagMiscFeeAmt     = 137
	tagMiscFeeCurr    = 138

	tagMessageHandling = 9400 // implementation-defined (§4.7 step 2)
)

const beginString = "FIX.4.4"

// field is one tag=value pair in wire order.
type field struct {
	tag   int
	value string
}

// message is an ordered, mutable FIX message body (header fields excluded
// — those are added by encode at send time).
type message struct {
	msgType string
	fields  []field
}

func newMessage(msgType string) *message {
	return &message{msgType: msgType}
}

func (m *message) set(tag int, value string) *message {
	m.fields = append(m.fields, field{tag, value})
	return m
}

func (m *message) setInt(tag int, value int) *message {
	return m.set(tag, strconv.Itoa(value))
}

// get returns the first value for tag, if present.
func (m *message) get(tag int) (string, bool) {
	for _, f := range m.fields {
		if f.tag == tag {
			return f.value, true
		}
	}
	return "", false
}

func (m *message) getAll(tag int) []string {
	var out []string
	for _, f := range m.fields {
		if f.tag == tag {
			out = append(out, f.value)
		}
	}
	return out
}

// encode serializes m into raw FIX wire bytes, computing BodyLength and the
// trailing modulo-256 CheckSum over the body + header (§4.7).
func (m *message) encode(senderCompID, targetCompID string, seqNum int, sendingTime string) []byte {
	var body strings.Builder
	fmt.Fprintf(&body, "%d=%s%s", tagMsgType, m.msgType, soh)
	fmt.Fprintf(&body, "%d=%s%s", tagSenderCompID, senderCompID, soh)
	fmt.Fprintf(&body, "%d=%s%s", tagTargetCompID, targetCompID, soh)
	fmt.Fprintf(&body, "%d=%d%s", tagMsgSeqNum, seqNum, soh)
	fmt.Fprintf(&body, "%d=%s%s", tagSendingTime, sendingTime, soh)
	for _, f := range m.fields {
		fmt.Fprintf(&body, "%d=%s%s", f.tag, f.value, soh)
	}

	header := fmt.Sprintf("%d=%s%s%d=%d%s", tagBeginString, beginString, soh, tagBodyLength, body.Len(), soh)
	full := header + body.String()

	checksum := 0
	for i := 0; i < len(full); i++ {
		checksum += int(full[i])
	}
	checksum %= 256

	return []byte(fmt.Sprintf("%s%d=%03d%s", full, tagCheckSum, checksum, soh))
}

// parseMessage splits a raw FIX message into tag=value fields in wire
// order. It does not validate the checksum or body length — the session
// treats a structurally malformed frame the same as a read error
// (reconnect), not as a data-integrity fatal, since it likely indicates a
// dropped byte on the wire rather than catalog skew.
func parseMessage(raw []byte) (*message, error) {
	parts := strings.Split(strings.Trim(string(raw), soh), soh)
	m := &message{}
	for _, part := range parts {
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			return nil, fmt.Errorf("fix: malformed field %q", part)
		}
		tag, err := strconv.Atoi(part[:eq])
		if err != nil {
			return nil, fmt.Errorf("fix: malformed tag in %q: %w", part, err)
		}
		value := part[eq+1:]
		if tag == tagMsgType {
			m.msgType = value
		}
		m.fields = append(m.fields, field{tag, value})
	}
	return m, nil
}
