package config

import (
	"os"
	"strings"
)

// StrictOverDelivery turns over-delivery (received > ordered on a PO line)
// from an advisory warning into a hard rejection. Business policy has not
// confirmed that hardening, so the default is off.
//
// Set via env:
// - STRICT_OVER_DELIVERY=true
func StrictOverDelivery() bool {
	return boolEnv("STRICT_OVER_DELIVERY")
}

// AutoRefreshMatchOnDelivery re-runs the three-way match of every invoice
// bound to a PO whenever a new delivery event for that PO is recorded.
// The match computation is idempotent, so re-running is always safe.
//
// Set via env:
// - MATCH_AUTO_REFRESH=true
func AutoRefreshMatchOnDelivery() bool {
	return boolEnv("MATCH_AUTO_REFRESH")
}

// RequireCleanImportApproval makes approve reject runs that still contain
// invalid lines. The default keeps the invalid-line block advisory (the UI
// warns, the server skips invalid lines).
//
// Set via env:
// - REQUIRE_CLEAN_IMPORT_APPROVAL=true
func RequireCleanImportApproval() bool {
	return boolEnv("REQUIRE_CLEAN_IMPORT_APPROVAL")
}

func boolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
