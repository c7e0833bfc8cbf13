package models

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDeriveDeliveryStatus(t *testing.T) {
	cases := []struct {
		name  string
		lines []DeliveryLine
		want  DeliveryStatus
	}{
		{
			name:  "no lines is pending",
			lines: nil,
			want:  DeliveryStatusPending,
		},
		{
			name: "nothing received is pending",
			lines: []DeliveryLine{
				{QuantityOrdered: dec("100"), QuantityReceived: dec("0")},
			},
			want: DeliveryStatusPending,
		},
		{
			name: "some received is partial",
			lines: []DeliveryLine{
				{QuantityOrdered: dec("100"), QuantityReceived: dec("40")},
			},
			want: DeliveryStatusPartial,
		},
		{
			name: "one full line one empty line is partial",
			lines: []DeliveryLine{
				{QuantityOrdered: dec("100"), QuantityReceived: dec("100")},
				{QuantityOrdered: dec("50"), QuantityReceived: dec("0")},
			},
			want: DeliveryStatusPartial,
		},
		{
			name: "all lines at ordered is complete",
			lines: []DeliveryLine{
				{QuantityOrdered: dec("100"), QuantityReceived: dec("100")},
				{QuantityOrdered: dec("50"), QuantityReceived: dec("50")},
			},
			want: DeliveryStatusComplete,
		},
		{
			name: "over-delivery is still complete",
			lines: []DeliveryLine{
				{QuantityOrdered: dec("100"), QuantityReceived: dec("110")},
			},
			want: DeliveryStatusComplete,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveDeliveryStatus(tc.lines); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestDeliveredSumIsGrossReceived(t *testing.T) {
	// ledger conservation: delivered is the running sum of quantityReceived.
	// A line received=10 damaged=4 still counts 10 delivered; damage rides
	// its own column and is never netted out of the aggregate.
	if strings.Contains(deliveredSumExpr, "quantity_damaged") {
		t.Fatalf("delivered aggregate must not net out damage: %s", deliveredSumExpr)
	}
	if !strings.Contains(deliveredSumExpr, "SUM(quantity_received)") {
		t.Fatalf("delivered aggregate must sum received quantity: %s", deliveredSumExpr)
	}
}

func TestComputeRemaining(t *testing.T) {
	// ordered=100; delivery A receives 40, delivery B receives 60, delivery C
	// receives 10 more. Remaining floors at zero while the true sum is kept.
	afterA := ComputeRemaining(1, dec("100"), dec("40"))
	if !afterA.Remaining.Equal(dec("60")) || afterA.OverDelivered {
		t.Fatalf("after A: unexpected %+v", afterA)
	}

	afterB := ComputeRemaining(1, dec("100"), dec("100"))
	if !afterB.Remaining.Equal(dec("0")) || afterB.OverDelivered {
		t.Fatalf("after B: unexpected %+v", afterB)
	}

	afterC := ComputeRemaining(1, dec("100"), dec("110"))
	if !afterC.Remaining.Equal(dec("0")) {
		t.Fatalf("after C: remaining should clamp to zero, got %s", afterC.Remaining)
	}
	if !afterC.OverDelivered {
		t.Fatal("after C: overage flag should be set")
	}
	if !afterC.Overage.Equal(dec("10")) {
		t.Fatalf("after C: expected overage 10, got %s", afterC.Overage)
	}
	if !afterC.QuantityDelivered.Equal(dec("110")) {
		t.Fatalf("after C: delivered sum must not be clamped, got %s", afterC.QuantityDelivered)
	}
}

func TestNewDeliveryEventValidation(t *testing.T) {
	poId := 1
	poLineId := 1
	base := NewDeliveryEvent{
		VendorId:        3,
		PurchaseOrderId: &poId,
		Lines: []NewDeliveryLine{
			{PurchaseOrderLineId: &poLineId, QuantityReceived: dec("10"), QuantityDamaged: dec("2")},
		},
	}
	if err := base.validate(); err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}

	damagedOverReceived := base
	damagedOverReceived.Lines = []NewDeliveryLine{
		{PurchaseOrderLineId: &poLineId, QuantityReceived: dec("5"), QuantityDamaged: dec("6")},
	}
	if err := damagedOverReceived.validate(); err == nil {
		t.Fatal("expected damaged > received to be rejected")
	}

	empty := base
	empty.Lines = nil
	if err := empty.validate(); err == nil {
		t.Fatal("expected empty lines to be rejected")
	}

	negative := base
	negative.Lines = []NewDeliveryLine{
		{PurchaseOrderLineId: &poLineId, QuantityReceived: dec("-1")},
	}
	if err := negative.validate(); err == nil {
		t.Fatal("expected negative received quantity to be rejected")
	}

	unbound := base
	unbound.Lines = []NewDeliveryLine{
		{QuantityReceived: dec("10")},
	}
	if err := unbound.validate(); err == nil {
		t.Fatal("expected a PO-bound event to require PO line references")
	}

	freeForm := base
	freeForm.PurchaseOrderId = nil
	freeForm.Lines = []NewDeliveryLine{
		{Description: "misc site materials", QuantityReceived: dec("10")},
	}
	if err := freeForm.validate(); err != nil {
		t.Fatalf("expected free-form event to be valid, got %v", err)
	}
}
