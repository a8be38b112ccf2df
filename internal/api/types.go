// Package api exposes a read-only HTTP status surface over the engine:
// per-venue strategy state, and recent monitoring transitions. It is
// modeled on the teacher's dashboard (provider interface + handlers +
// WebSocket hub), repurposed from quote-state telemetry to arbitrage
// engine ops status — the spec's Non-goals exclude trading features, not
// an ops status page.
package api

import (
	"time"

	"github.com/arbprotocol/triarb/internal/monitor"
)

// VenueStatus is one venue's strategy snapshot for the status endpoint.
type VenueStatus struct {
	Venue          string `json:"venue"`
	State          string `json:"state"`
	Broken         bool   `json:"broken"`
	SkipCount      int    `json:"skip_count"`
	PathLength     int    `json:"path_length"`
	MonitoringOnly bool   `json:"monitoring_only"`
}

// Snapshot is the full point-in-time status document served at
// /api/status and pushed to WebSocket clients.
type Snapshot struct {
	Timestamp  time.Time               `json:"timestamp"`
	OMSVenue   string                  `json:"oms_venue"`
	Venues     []VenueStatus           `json:"venues"`
	Monitoring []monitor.EntityStatus  `json:"monitoring"`
}

// Provider is how the engine hands the API server its current state
// without the api package importing the engine package back (the
// teacher's MarketSnapshotProvider interface, one level of indirection).
type Provider interface {
	Snapshot() Snapshot
}
