package feed

import "strings"

// SpecFor resolves a venue name from configuration to its VenueSpec. New
// venues are added here as the engine grows the set it trades or
// monitors; the rest of the engine never special-cases a venue name.
func SpecFor(venueName string) (VenueSpec, bool) {
	switch strings.ToLower(venueName) {
	case "binance":
		return BinanceSpec, true
	case "kraken":
		return KrakenSpec, true
	default:
		return VenueSpec{}, false
	}
}
