package models

import (
	"strings"
	"testing"
)

func TestReconcileAllocation(t *testing.T) {
	// balanced within a cent: quiet
	if msg := ReconcileAllocation(dec("900000"), dec("100000"), dec("1000000")); msg != "" {
		t.Fatalf("balanced budget must not warn, got %q", msg)
	}
	if msg := ReconcileAllocation(dec("900000.005"), dec("100000"), dec("1000000")); msg != "" {
		t.Fatalf("half-cent drift is within tolerance, got %q", msg)
	}

	// more than a cent off: advisory
	msg := ReconcileAllocation(dec("900000"), dec("100000"), dec("1000500"))
	if msg == "" {
		t.Fatal("expected a reconciliation warning")
	}
	if !strings.Contains(msg, "500") {
		t.Fatalf("warning should carry the difference, got %q", msg)
	}

	// a zero contract value means nothing to reconcile against
	if msg := ReconcileAllocation(dec("50000"), dec("0"), dec("0")); msg != "" {
		t.Fatalf("zero contract value must not warn, got %q", msg)
	}
}
