package models

import (
	"errors"
	"testing"

	"github.com/buildledger/procure_backend/utils"
)

func TestPurchaseOrderCheckVendor(t *testing.T) {
	po := PurchaseOrder{ID: 7, VendorId: 3}

	if err := po.CheckVendor(3); err != nil {
		t.Fatalf("same vendor must pass, got %v", err)
	}

	err := po.CheckVendor(9)
	var mismatch *utils.VendorMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected VendorMismatchError, got %v", err)
	}
	if mismatch.VendorId != 9 || mismatch.PoVendorId != 3 {
		t.Fatalf("mismatch must carry both vendors, got %+v", mismatch)
	}
}
