package workflow

import (
	"reflect"
	"testing"

	"github.com/buildledger/procure_backend/models"
	"github.com/buildledger/procure_backend/utils"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func defaultTolerance() models.ToleranceSetting {
	return models.ToleranceSetting{
		PricePercentage:    dec("0.02"),
		QuantityPercentage: dec("0"),
		TaxFreightCap:      dec("5"),
	}
}

func cleanSnapshot() MatchSnapshot {
	// one PO line: 100 delivered at 10.00, invoiced exactly
	return MatchSnapshot{
		InvoiceId: 1,
		HasPo:     true,
		PoId:      7,
		Subtotal:  dec("1000"),
		Lines: []MatchLineSnapshot{
			{PoLineId: 1, UnitPrice: dec("10"), DeliveredQty: dec("100")},
		},
	}
}

func TestComputeMatchResult_Matched(t *testing.T) {
	result := ComputeMatchResult(cleanSnapshot(), defaultTolerance())
	if result.Status != models.MatchStatusMatched {
		t.Fatalf("expected matched, got %s (%d exceptions)", result.Status, len(result.Exceptions))
	}
	if !result.ExpectedAmount.Equal(dec("1000")) {
		t.Fatalf("expected amount 1000, got %s", result.ExpectedAmount)
	}
	if !result.MatchedAmount.Equal(dec("1000")) {
		t.Fatalf("matched amount should be the invoiced total, got %s", result.MatchedAmount)
	}
}

func TestComputeMatchResult_MissingPo(t *testing.T) {
	snapshot := cleanSnapshot()
	snapshot.HasPo = false
	result := ComputeMatchResult(snapshot, defaultTolerance())
	if result.Status != models.MatchStatusMissingPo {
		t.Fatalf("expected missing_po, got %s", result.Status)
	}
	if len(result.Exceptions) != 1 || result.Exceptions[0].Type != models.ExceptionTypeMissingPo {
		t.Fatalf("expected a single missing_po exception, got %+v", result.Exceptions)
	}
}

func TestComputeMatchResult_MissingPoOutranksQty(t *testing.T) {
	claimed := dec("120")
	snapshot := cleanSnapshot()
	snapshot.HasPo = false
	snapshot.Lines[0].DeliveredQty = dec("0")
	snapshot.Lines[0].ClaimedQty = &claimed

	result := ComputeMatchResult(snapshot, defaultTolerance())
	if result.Status != models.MatchStatusMissingPo {
		t.Fatalf("missing_po must win the headline status, got %s", result.Status)
	}
	if len(result.Exceptions) != 2 {
		t.Fatalf("expected missing_po and qty_variance both recorded, got %+v", result.Exceptions)
	}
	if result.Exceptions[0].Type != models.ExceptionTypeMissingPo ||
		result.Exceptions[1].Type != models.ExceptionTypeQtyVariance {
		t.Fatalf("exceptions out of priority order: %+v", result.Exceptions)
	}
}

func TestComputeMatchResult_PriceToleranceBoundary(t *testing.T) {
	tolerance := defaultTolerance()

	// exactly 2% over expected: passes, strict comparison
	atBoundary := cleanSnapshot()
	atBoundary.Subtotal = dec("1020")
	result := ComputeMatchResult(atBoundary, tolerance)
	if result.Status != models.MatchStatusMatched {
		t.Fatalf("variance exactly at tolerance must pass, got %s", result.Status)
	}

	// one cent past the band: fails
	pastBoundary := cleanSnapshot()
	pastBoundary.Subtotal = dec("1020.01")
	result = ComputeMatchResult(pastBoundary, tolerance)
	if result.Status != models.MatchStatusPriceVariance {
		t.Fatalf("variance past tolerance must fail, got %s", result.Status)
	}
	if result.MatchedAmount.Sign() != 0 {
		t.Fatalf("a failed match must not carry a matched amount, got %s", result.MatchedAmount)
	}
}

func TestComputeMatchResult_QtyOutranksPrice(t *testing.T) {
	claimed := dec("120")
	snapshot := cleanSnapshot()
	snapshot.Subtotal = dec("1200")
	snapshot.Lines[0].ClaimedQty = &claimed

	result := ComputeMatchResult(snapshot, defaultTolerance())
	if result.Status != models.MatchStatusQtyVariance {
		t.Fatalf("qty variance must win the headline status, got %s", result.Status)
	}
	// both exceptions are still recorded, in priority order
	if len(result.Exceptions) != 2 {
		t.Fatalf("expected both exceptions recorded, got %+v", result.Exceptions)
	}
	if result.Exceptions[0].Type != models.ExceptionTypeQtyVariance ||
		result.Exceptions[1].Type != models.ExceptionTypePriceVariance {
		t.Fatalf("exceptions out of priority order: %+v", result.Exceptions)
	}
}

func TestComputeMatchResult_HeaderOnlyInvoiceSkipsQtyCheck(t *testing.T) {
	snapshot := cleanSnapshot()
	snapshot.Lines[0].ClaimedQty = nil
	result := ComputeMatchResult(snapshot, defaultTolerance())
	if result.Status != models.MatchStatusMatched {
		t.Fatalf("header-only invoice must skip the quantity check, got %s", result.Status)
	}
}

func TestComputeMatchResult_TaxAndFreightCap(t *testing.T) {
	tolerance := defaultTolerance()

	withTax := cleanSnapshot()
	withTax.TaxAmount = dec("5")
	result := ComputeMatchResult(withTax, tolerance)
	if result.Status != models.MatchStatusMatched {
		t.Fatalf("tax difference at the cap must pass, got %s", result.Status)
	}

	withTax.TaxAmount = dec("5.01")
	result = ComputeMatchResult(withTax, tolerance)
	if result.Status != models.MatchStatusTaxVariance {
		t.Fatalf("tax difference past the cap must fail, got %s", result.Status)
	}

	withFreight := cleanSnapshot()
	withFreight.FreightAmount = dec("12")
	withFreight.ExpectedFreight = dec("4")
	result = ComputeMatchResult(withFreight, tolerance)
	if result.Status != models.MatchStatusFreightVariance {
		t.Fatalf("freight difference past the cap must fail, got %s", result.Status)
	}
}

func TestComputeMatchResult_Idempotent(t *testing.T) {
	claimed := dec("150")
	snapshot := cleanSnapshot()
	snapshot.Subtotal = dec("1500")
	snapshot.TaxAmount = dec("90")
	snapshot.Lines[0].ClaimedQty = &claimed

	tolerance := defaultTolerance()
	first := ComputeMatchResult(snapshot, tolerance)
	for i := 0; i < 10; i++ {
		again := ComputeMatchResult(snapshot, tolerance)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\nfirst: %+v\nagain: %+v", i, first, again)
		}
	}
}

func TestManualMatch_OverrideClearsExceptions(t *testing.T) {
	// the declared amount differs from the total by far more than any
	// tolerance; a manual match is still clean
	computed := manualMatch(dec("10000"), dec("2500"))
	if computed.Status != models.MatchStatusMatched {
		t.Fatalf("manual match must be matched, got %s", computed.Status)
	}
	if len(computed.Exceptions) != 0 {
		t.Fatalf("manual match must carry no exceptions, got %+v", computed.Exceptions)
	}
	if !computed.MatchedAmount.Equal(dec("2500")) {
		t.Fatalf("matched amount must be the declared amount, got %s", computed.MatchedAmount)
	}
}

func TestSameMatchResult_ManualNeverComparesEqual(t *testing.T) {
	// a later automatic refresh must supersede a manual override, never
	// short-circuit as "unchanged"
	poId := 7
	computed := ComputeMatchResult(cleanSnapshot(), defaultTolerance())
	stored := &models.InvoiceMatchResult{
		PurchaseOrderId: &poId,
		MatchStatus:     computed.Status,
		ExpectedAmount:  computed.ExpectedAmount,
		InvoicedAmount:  computed.InvoicedAmount,
		MatchedAmount:   computed.MatchedAmount,
		Manual:          utils.NewTrue(),
	}
	if sameMatchResult(stored, computed, &poId) {
		t.Fatal("a manual result must not compare equal to an automatic one")
	}

	stored.Manual = utils.NewFalse()
	if !sameMatchResult(stored, computed, &poId) {
		t.Fatal("an identical automatic result must compare equal")
	}
}

func TestComputeMatchResult_PartialDeliveryExpectedAmount(t *testing.T) {
	// expected amount follows deliveries, not the full PO value
	snapshot := MatchSnapshot{
		InvoiceId: 2,
		HasPo:     true,
		PoId:      9,
		Subtotal:  dec("400"),
		Lines: []MatchLineSnapshot{
			{PoLineId: 1, UnitPrice: dec("10"), DeliveredQty: dec("40")},
		},
	}
	result := ComputeMatchResult(snapshot, defaultTolerance())
	if !result.ExpectedAmount.Equal(dec("400")) {
		t.Fatalf("expected amount must track delivered quantity, got %s", result.ExpectedAmount)
	}
	if result.Status != models.MatchStatusMatched {
		t.Fatalf("invoice for the delivered portion must match, got %s", result.Status)
	}
}
