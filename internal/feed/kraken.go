package feed

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/arbprotocol/triarb/pkg/types"
)

// krakenChannelName is the pair itself (e.g. "XBT/USD") — Kraken
// subscribes by pair name directly, there is no separate stream suffix.
func krakenChannelName(symbol string) string {
	return symbol
}

type krakenSubscription struct {
	Name string `json:"name"`
}

type krakenSubscribeMsg struct {
	Event        string             `json:"event"`
	Pair         []string           `json:"pair"`
	Subscription krakenSubscription `json:"subscription"`
}

func krakenBuildSubscribe(channels []string) (int, []byte, error) {
	payload, err := json.Marshal(krakenSubscribeMsg{
		Event:        "subscribe",
		Pair:         channels,
		Subscription: krakenSubscription{Name: "ticker"},
	})
	if err != nil {
		return 0, nil, fmt.Errorf("marshal kraken subscribe: %w", err)
	}
	return websocket.TextMessage, payload, nil
}

// krakenTickerPayload is the object in position 1 of a ticker push array.
// Kraken reports a, b, c etc as [price, ...] string arrays; only the top
// two levels matter here.
type krakenTickerPayload struct {
	Ask []string `json:"a"` // [price, wholeLotVolume, lotVolume]
	Bid []string `json:"b"`
}

// krakenParseFrame decodes Kraken's heterogeneous ticker array:
// [channelID, payload, "ticker", pairName]. Non-ticker pushes (subscribe
// acks are plain JSON objects, heartbeats are {"event":"heartbeat"}) fail
// the leading-array check and are skipped, not errors.
func krakenParseFrame(raw []byte, resolve func(string) (*types.Instrument, error)) ([]types.PriceTicker, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, nil // object frame (event/ack/heartbeat), not a ticker push
	}
	if len(frame) != 4 {
		return nil, nil
	}

	var channelName string
	if err := json.Unmarshal(frame[2], &channelName); err != nil || channelName != "ticker" {
		return nil, nil
	}

	var pair string
	if err := json.Unmarshal(frame[3], &pair); err != nil {
		return nil, fmt.Errorf("decode kraken pair name: %w", err)
	}

	var payload krakenTickerPayload
	if err := json.Unmarshal(frame[1], &payload); err != nil {
		return nil, fmt.Errorf("decode kraken ticker payload: %w", err)
	}
	if len(payload.Ask) < 2 || len(payload.Bid) < 2 {
		return nil, fmt.Errorf("kraken ticker payload missing price/size levels")
	}

	inst, err := resolve(pair)
	if err != nil {
		return nil, err
	}

	ask, err := strconv.ParseFloat(payload.Ask[0], 64)
	if err != nil {
		return nil, fmt.Errorf("decode kraken ask: %w", err)
	}
	askSize, err := strconv.ParseFloat(payload.Ask[1], 64)
	if err != nil {
		return nil, fmt.Errorf("decode kraken ask size: %w", err)
	}
	bid, err := strconv.ParseFloat(payload.Bid[0], 64)
	if err != nil {
		return nil, fmt.Errorf("decode kraken bid: %w", err)
	}
	bidSize, err := strconv.ParseFloat(payload.Bid[1], 64)
	if err != nil {
		return nil, fmt.Errorf("decode kraken bid size: %w", err)
	}

	return []types.PriceTicker{{
		Instrument: inst,
		Bid:        bid,
		BidSize:    bidSize,
		Ask:        ask,
		AskSize:    askSize,
	}}, nil
}

// KrakenSpec is the per-channel array-wire wiring: one ticker push carries
// both sides, client-initiated ping keepalive (§4.1's ping_convention).
var KrakenSpec = VenueSpec{
	ChannelName:    krakenChannelName,
	BuildSubscribe: krakenBuildSubscribe,
	ParseFrame:     krakenParseFrame,
}
