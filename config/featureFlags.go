package config

import (
	"os"
	"strings"
)

// Capability flags are decided once at startup from env, never by probing
// whether an optional collaborator happened to load.

// BatchTrackingEnabled controls whether receiving stock creates traceable lots.
// When disabled, receptions still update lines and the average cost, but no
// batch rows are written and FIFO consumption is unavailable.
//
// Set via env:
// - BATCH_TRACKING=off | false | 0   (default: on)
func BatchTrackingEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("BATCH_TRACKING")))
	return v != "off" && v != "false" && v != "0" && v != "no"
}

// ExpiryAlertsEnabled controls whether the expiring-soon query surface is
// exposed. Shops selling non-perishable product can turn it off.
//
// Set via env:
// - EXPIRY_ALERTS=off | false | 0    (default: on)
func ExpiryAlertsEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("EXPIRY_ALERTS")))
	return v != "off" && v != "false" && v != "0" && v != "no"
}
