package workflow

import (
	"errors"
	"fmt"
	"testing"
)

func TestRefreshBoundInvoices_AllRefreshed(t *testing.T) {
	var refreshed []int
	warnings := refreshBoundInvoices([]int{3, 7, 12}, func(invoiceId int) error {
		refreshed = append(refreshed, invoiceId)
		return nil
	})
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if fmt.Sprint(refreshed) != "[3 7 12]" {
		t.Fatalf("expected every bound invoice refreshed in order, got %v", refreshed)
	}
}

func TestRefreshBoundInvoices_FailureDoesNotStopTheRest(t *testing.T) {
	var refreshed []int
	warnings := refreshBoundInvoices([]int{3, 7, 12}, func(invoiceId int) error {
		refreshed = append(refreshed, invoiceId)
		if invoiceId == 7 {
			return errors.New("tolerance lookup failed")
		}
		return nil
	})
	if len(refreshed) != 3 {
		t.Fatalf("one failure must not stop the remaining refreshes, got %v", refreshed)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one warning, got %v", warnings)
	}
}
