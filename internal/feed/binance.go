package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/arbprotocol/triarb/pkg/types"
)

// binanceChannelName lower-cases the symbol and appends the bookTicker
// stream suffix, e.g. "BTCUSDT" -> "btcusdt@bookTicker".
func binanceChannelName(symbol string) string {
	return strings.ToLower(symbol) + "@bookTicker"
}

type binanceSubscribeMsg struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

func binanceBuildSubscribe(channels []string) (int, []byte, error) {
	payload, err := json.Marshal(binanceSubscribeMsg{
		Method: "SUBSCRIBE",
		Params: channels,
		ID:     1,
	})
	if err != nil {
		return 0, nil, fmt.Errorf("marshal binance subscribe: %w", err)
	}
	return websocket.TextMessage, payload, nil
}

// binanceBookTickerFrame is the combined-stream envelope Binance wraps
// every bookTicker push in.
type binanceBookTickerFrame struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol  string `json:"s"`
		BidPx   string `json:"b"`
		BidSize string `json:"B"`
		AskPx   string `json:"a"`
		AskSize string `json:"A"`
	} `json:"data"`
}

// binanceParseFrame decodes one combined-stream bookTicker push. Frames
// that don't carry a "data" payload (subscription acks) are silently
// skipped, not errors.
func binanceParseFrame(raw []byte, resolve func(string) (*types.Instrument, error)) ([]types.PriceTicker, error) {
	var frame binanceBookTickerFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("decode binance frame: %w", err)
	}
	if frame.Data.Symbol == "" {
		return nil, nil
	}

	inst, err := resolve(frame.Data.Symbol)
	if err != nil {
		return nil, err
	}

	bid, err := strconv.ParseFloat(frame.Data.BidPx, 64)
	if err != nil {
		return nil, fmt.Errorf("decode binance bid: %w", err)
	}
	bidSize, err := strconv.ParseFloat(frame.Data.BidSize, 64)
	if err != nil {
		return nil, fmt.Errorf("decode binance bid size: %w", err)
	}
	ask, err := strconv.ParseFloat(frame.Data.AskPx, 64)
	if err != nil {
		return nil, fmt.Errorf("decode binance ask: %w", err)
	}
	askSize, err := strconv.ParseFloat(frame.Data.AskSize, 64)
	if err != nil {
		return nil, fmt.Errorf("decode binance ask size: %w", err)
	}

	return []types.PriceTicker{{
		Instrument: inst,
		Bid:        bid,
		BidSize:    bidSize,
		Ask:        ask,
		AskSize:    askSize,
	}}, nil
}

// BinanceSpec is the combined-stream bookTicker wiring: one message per
// side-refresh, both sides always present (no TickerUnchanged sentinel
// needed for this venue), server-initiated pings (§4.1's ping_convention).
var BinanceSpec = VenueSpec{
	ChannelName:    binanceChannelName,
	BuildSubscribe: binanceBuildSubscribe,
	ParseFrame:     binanceParseFrame,
}
