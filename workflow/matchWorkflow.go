package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/buildledger/procure_backend/config"
	"github.com/buildledger/procure_backend/models"
	"github.com/buildledger/procure_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MatchSnapshot is the frozen input of one three-way-match evaluation:
// invoice header amounts, the PO-implied expectations and the delivered
// quantities at evaluation time. ComputeMatchResult is pure over this.
type MatchSnapshot struct {
	InvoiceId     int
	HasPo         bool
	PoId          int
	Subtotal      decimal.Decimal
	TaxAmount     decimal.Decimal
	FreightAmount decimal.Decimal
	// PO-implied expectations; zero when the PO carries none
	ExpectedTaxAmount decimal.Decimal
	ExpectedFreight   decimal.Decimal
	Lines             []MatchLineSnapshot
}

type MatchLineSnapshot struct {
	PoLineId     int
	UnitPrice    decimal.Decimal
	DeliveredQty decimal.Decimal
	// claimed quantity from the invoice detail; nil when the invoice is
	// header-only, which skips the quantity check for this line
	ClaimedQty *decimal.Decimal
}

type ComputedException struct {
	Type          models.ExceptionType
	Severity      models.ExceptionSeverity
	Detail        string
	ExpectedValue decimal.Decimal
	ActualValue   decimal.Decimal
}

type ComputedMatch struct {
	Status         models.MatchStatus
	ExpectedAmount decimal.Decimal
	InvoicedAmount decimal.Decimal
	MatchedAmount  decimal.Decimal
	Exceptions     []ComputedException
}

// ComputeMatchResult evaluates one snapshot against the tolerance policy.
// Deterministic: exceptions come out in fixed priority order and re-running
// on an unchanged snapshot yields an identical result. Comparisons are
// strict; a variance exactly at the tolerance boundary passes.
func ComputeMatchResult(snapshot MatchSnapshot, tolerance models.ToleranceSetting) ComputedMatch {
	invoicedTotal := snapshot.Subtotal.Add(snapshot.TaxAmount).Add(snapshot.FreightAmount)
	result := ComputedMatch{
		InvoicedAmount: invoicedTotal,
	}

	var expected decimal.Decimal
	for _, line := range snapshot.Lines {
		expected = expected.Add(line.UnitPrice.Mul(line.DeliveredQty))
	}
	result.ExpectedAmount = expected

	fired := map[models.ExceptionType]ComputedException{}

	if !snapshot.HasPo {
		fired[models.ExceptionTypeMissingPo] = ComputedException{
			Type:     models.ExceptionTypeMissingPo,
			Severity: models.ExceptionSeverityWarning,
			Detail:   "invoice is not linked to a purchase order",
		}
	}

	// the quantity check runs even without a PO (delivered is zero then);
	// claimed quantities with nothing received are a variance in their own
	// right, reported alongside missing_po
	for _, line := range snapshot.Lines {
		if line.ClaimedQty == nil {
			continue
		}
		allowed := line.DeliveredQty.Add(line.DeliveredQty.Mul(tolerance.QuantityPercentage))
		if line.ClaimedQty.GreaterThan(allowed) {
			existing, ok := fired[models.ExceptionTypeQtyVariance]
			exc := ComputedException{
				Type:     models.ExceptionTypeQtyVariance,
				Severity: models.ExceptionSeverityWarning,
				Detail: fmt.Sprintf("line %d claims %s against %s delivered",
					line.PoLineId, line.ClaimedQty.String(), line.DeliveredQty.String()),
				ExpectedValue: line.DeliveredQty,
				ActualValue:   *line.ClaimedQty,
			}
			if ok {
				exc.Detail = existing.Detail + "; " + exc.Detail
				exc.ExpectedValue = existing.ExpectedValue
				exc.ActualValue = existing.ActualValue
			}
			fired[models.ExceptionTypeQtyVariance] = exc
		}
	}

	// price/tax/freight compare against PO-implied expectations; without a
	// PO there is nothing meaningful to compare against
	if snapshot.HasPo {
		priceBand := expected.Mul(tolerance.PricePercentage)
		if snapshot.Subtotal.Sub(expected).Abs().GreaterThan(priceBand) {
			fired[models.ExceptionTypePriceVariance] = ComputedException{
				Type:     models.ExceptionTypePriceVariance,
				Severity: models.ExceptionSeverityWarning,
				Detail: fmt.Sprintf("invoiced %s against %s expected from deliveries",
					snapshot.Subtotal.String(), expected.String()),
				ExpectedValue: expected,
				ActualValue:   snapshot.Subtotal,
			}
		}

		if snapshot.TaxAmount.Sub(snapshot.ExpectedTaxAmount).Abs().GreaterThan(tolerance.TaxFreightCap) {
			fired[models.ExceptionTypeTaxVariance] = ComputedException{
				Type:     models.ExceptionTypeTaxVariance,
				Severity: models.ExceptionSeverityWarning,
				Detail: fmt.Sprintf("invoiced tax %s against %s expected",
					snapshot.TaxAmount.String(), snapshot.ExpectedTaxAmount.String()),
				ExpectedValue: snapshot.ExpectedTaxAmount,
				ActualValue:   snapshot.TaxAmount,
			}
		}

		if snapshot.FreightAmount.Sub(snapshot.ExpectedFreight).Abs().GreaterThan(tolerance.TaxFreightCap) {
			fired[models.ExceptionTypeFreightVariance] = ComputedException{
				Type:     models.ExceptionTypeFreightVariance,
				Severity: models.ExceptionSeverityWarning,
				Detail: fmt.Sprintf("invoiced freight %s against %s expected",
					snapshot.FreightAmount.String(), snapshot.ExpectedFreight.String()),
				ExpectedValue: snapshot.ExpectedFreight,
				ActualValue:   snapshot.FreightAmount,
			}
		}
	}

	if len(fired) == 0 {
		result.Status = models.MatchStatusMatched
		result.MatchedAmount = invoicedTotal
		return result
	}

	for _, excType := range models.MatchExceptionPriority {
		if exc, ok := fired[excType]; ok {
			if result.Status == "" {
				result.Status = excType.MatchStatus()
			}
			result.Exceptions = append(result.Exceptions, exc)
		}
	}
	return result
}

func buildMatchSnapshot(tx *gorm.DB, businessId string, invoice *models.Invoice) (MatchSnapshot, error) {
	snapshot := MatchSnapshot{
		InvoiceId:     invoice.ID,
		Subtotal:      invoice.Subtotal,
		TaxAmount:     invoice.TaxAmount,
		FreightAmount: invoice.FreightAmount,
	}
	if invoice.PurchaseOrderId == nil {
		for _, line := range invoice.Lines {
			if line.QuantityClaimed == nil {
				continue
			}
			claimed := *line.QuantityClaimed
			lineSnapshot := MatchLineSnapshot{
				UnitPrice:  line.UnitPrice,
				ClaimedQty: &claimed,
			}
			if line.PurchaseOrderLineId != nil {
				lineSnapshot.PoLineId = *line.PurchaseOrderLineId
			}
			snapshot.Lines = append(snapshot.Lines, lineSnapshot)
		}
		return snapshot, nil
	}

	var po models.PurchaseOrder
	err := tx.Preload("Lines").
		Where("business_id = ? AND id = ?", businessId, *invoice.PurchaseOrderId).
		First(&po).Error
	if err != nil {
		return snapshot, &utils.NotFoundError{Resource: "purchase order"}
	}

	snapshot.HasPo = true
	snapshot.PoId = po.ID
	snapshot.ExpectedTaxAmount = po.ExpectedTaxAmount
	snapshot.ExpectedFreight = po.FreightAmount

	claimedByLine := map[int]decimal.Decimal{}
	hasClaimed := map[int]bool{}
	for _, line := range invoice.Lines {
		if line.PurchaseOrderLineId == nil || line.QuantityClaimed == nil {
			continue
		}
		claimedByLine[*line.PurchaseOrderLineId] = claimedByLine[*line.PurchaseOrderLineId].Add(*line.QuantityClaimed)
		hasClaimed[*line.PurchaseOrderLineId] = true
	}

	for _, poLine := range po.Lines {
		if poLine.IsVoided != nil && *poLine.IsVoided {
			continue
		}
		delivered, err := models.DeliveredQuantityTx(tx, poLine.ID)
		if err != nil {
			return snapshot, err
		}
		lineSnapshot := MatchLineSnapshot{
			PoLineId:     poLine.ID,
			UnitPrice:    poLine.UnitPrice,
			DeliveredQty: delivered,
		}
		if hasClaimed[poLine.ID] {
			claimed := claimedByLine[poLine.ID]
			lineSnapshot.ClaimedQty = &claimed
		}
		snapshot.Lines = append(snapshot.Lines, lineSnapshot)
	}
	sort.Slice(snapshot.Lines, func(i, j int) bool {
		return snapshot.Lines[i].PoLineId < snapshot.Lines[j].PoLineId
	})
	return snapshot, nil
}

func sameMatchResult(existing *models.InvoiceMatchResult, computed ComputedMatch, poId *int) bool {
	if existing == nil {
		return false
	}
	if existing.Manual != nil && *existing.Manual {
		return false
	}
	if existing.MatchStatus != computed.Status ||
		!existing.ExpectedAmount.Equal(computed.ExpectedAmount) ||
		!existing.InvoicedAmount.Equal(computed.InvoicedAmount) ||
		!existing.MatchedAmount.Equal(computed.MatchedAmount) {
		return false
	}
	if (existing.PurchaseOrderId == nil) != (poId == nil) {
		return false
	}
	if poId != nil && *existing.PurchaseOrderId != *poId {
		return false
	}
	if len(existing.Exceptions) != len(computed.Exceptions) {
		return false
	}
	for i, exc := range computed.Exceptions {
		stored := existing.Exceptions[i]
		if stored.ExceptionType != exc.Type || stored.Severity != exc.Severity ||
			stored.Detail != exc.Detail ||
			!stored.ExpectedValue.Equal(exc.ExpectedValue) ||
			!stored.ActualValue.Equal(exc.ActualValue) {
			return false
		}
	}
	return true
}

// RefreshInvoiceMatch evaluates the invoice against current ledger state and
// persists a superseding result. Idempotent: an unchanged state returns the
// existing result untouched.
func RefreshInvoiceMatch(ctx context.Context, invoiceId int) (*models.InvoiceMatchResult, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	if err := models.AcquirePostingLock(tx, "invoice", invoiceId); err != nil {
		tx.Rollback()
		return nil, err
	}
	defer models.ReleasePostingLock(tx, "invoice", invoiceId)

	var invoice models.Invoice
	err := tx.WithContext(ctx).Preload("Lines").
		Where("business_id = ? AND id = ?", businessId, invoiceId).
		First(&invoice).Error
	if err != nil {
		tx.Rollback()
		return nil, &utils.NotFoundError{Resource: "invoice"}
	}

	// a replayed request (same X-Request-Id) returns the already-persisted
	// result instead of recomputing
	requestId, _ := utils.GetCorrelationIdFromContext(ctx)
	if requestId != "" {
		skip, err := BeginIdempotency(tx.WithContext(ctx), businessId, "match-refresh", requestId)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if skip {
			tx.Rollback()
			return models.ActiveMatchResult(ctx, invoiceId)
		}
	}

	snapshot, err := buildMatchSnapshot(tx.WithContext(ctx), businessId, &invoice)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	tolerance, err := models.GetToleranceSetting(ctx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	computed := ComputeMatchResult(snapshot, *tolerance)

	var existing *models.InvoiceMatchResult
	var current models.InvoiceMatchResult
	err = tx.WithContext(ctx).
		Where("business_id = ? AND invoice_id = ? AND superseded = false", businessId, invoiceId).
		Preload("Exceptions").
		First(&current).Error
	if err == nil {
		existing = &current
	} else if err != gorm.ErrRecordNotFound {
		tx.Rollback()
		return nil, err
	}

	if sameMatchResult(existing, computed, invoice.PurchaseOrderId) {
		if requestId == "" {
			tx.Rollback()
			return existing, nil
		}
		if err := MarkIdempotencySucceeded(tx.WithContext(ctx), businessId, "match-refresh", requestId); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.Commit().Error; err != nil {
			return nil, err
		}
		return existing, nil
	}

	result, err := persistMatchResult(tx.WithContext(ctx), businessId, &invoice, existing, computed, invoice.PurchaseOrderId, false, "")
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if requestId != "" {
		if err := MarkIdempotencySucceeded(tx.WithContext(ctx), businessId, "match-refresh", requestId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return result, nil
}

func persistMatchResult(tx *gorm.DB, businessId string, invoice *models.Invoice,
	previous *models.InvoiceMatchResult, computed ComputedMatch, poId *int,
	manual bool, matchedBy string) (*models.InvoiceMatchResult, error) {

	if previous != nil {
		err := tx.Model(previous).UpdateColumn("Superseded", true).Error
		if err != nil {
			return nil, err
		}
	}

	result := models.InvoiceMatchResult{
		BusinessId:      businessId,
		InvoiceId:       invoice.ID,
		PurchaseOrderId: poId,
		MatchStatus:     computed.Status,
		ExpectedAmount:  computed.ExpectedAmount,
		InvoicedAmount:  computed.InvoicedAmount,
		MatchedAmount:   computed.MatchedAmount,
		MatchedBy:       matchedBy,
	}
	if manual {
		result.Manual = utils.NewTrue()
	} else {
		result.Manual = utils.NewFalse()
	}
	result.Superseded = utils.NewFalse()
	for _, exc := range computed.Exceptions {
		result.Exceptions = append(result.Exceptions, models.InvoiceMatchException{
			ExceptionType: exc.Type,
			Severity:      exc.Severity,
			Detail:        exc.Detail,
			ExpectedValue: exc.ExpectedValue,
			ActualValue:   exc.ActualValue,
		})
	}
	if err := tx.Create(&result).Error; err != nil {
		return nil, err
	}

	previousMatched := decimal.Zero
	if previous != nil && previous.MatchStatus == models.MatchStatusMatched {
		previousMatched = previous.MatchedAmount
	}
	delta := computed.MatchedAmount.Sub(previousMatched)
	if !delta.IsZero() && poId != nil {
		if err := applyInvoicedDelta(tx, businessId, *poId, invoice.ID, delta); err != nil {
			return nil, err
		}
	}
	return &result, nil
}

// applyInvoicedDelta spreads a matched-amount change across the PO's cost
// codes, proportional to line value. Positive deltas post invoice entries,
// negative ones post reversal-typed entries.
func applyInvoicedDelta(tx *gorm.DB, businessId string, poId, invoiceId int, delta decimal.Decimal) error {
	var po models.PurchaseOrder
	err := tx.Preload("Lines").Where("business_id = ? AND id = ?", businessId, poId).First(&po).Error
	if err != nil {
		return err
	}

	codeTotals := map[string]decimal.Decimal{}
	var grandTotal decimal.Decimal
	codes := make([]string, 0)
	for _, line := range po.Lines {
		if line.IsVoided != nil && *line.IsVoided {
			continue
		}
		if line.CostCode == "" {
			continue
		}
		if _, seen := codeTotals[line.CostCode]; !seen {
			codes = append(codes, line.CostCode)
		}
		codeTotals[line.CostCode] = codeTotals[line.CostCode].Add(line.LineTotal)
		grandTotal = grandTotal.Add(line.LineTotal)
	}
	if grandTotal.IsZero() {
		return nil
	}
	sort.Strings(codes)

	remaining := delta
	for i, code := range codes {
		var share decimal.Decimal
		if i == len(codes)-1 {
			share = remaining
		} else {
			share = delta.Mul(codeTotals[code]).Div(grandTotal).Round(4)
			remaining = remaining.Sub(share)
		}
		if share.IsZero() {
			continue
		}
		if share.IsPositive() {
			if err := models.InvoiceBudgetTx(tx, businessId, po.ProjectId, code, share, "invoice", invoiceId); err != nil {
				return err
			}
			continue
		}
		if err := reverseInvoicedTx(tx, businessId, po.ProjectId, code, share, invoiceId); err != nil {
			return err
		}
	}
	return nil
}

func reverseInvoicedTx(tx *gorm.DB, businessId string, projectId int, costCode string, negativeShare decimal.Decimal, invoiceId int) error {
	var budget models.CostCodeBudget
	err := tx.Where("business_id = ? AND project_id = ? AND cost_code = ?", businessId, projectId, costCode).
		First(&budget).Error
	if err != nil {
		return err
	}
	err = tx.Model(&budget).UpdateColumn("InvoicedAmount", budget.InvoicedAmount.Add(negativeShare)).Error
	if err != nil {
		return err
	}
	return tx.Create(&models.BudgetEntry{
		BusinessId:       businessId,
		CostCodeBudgetId: budget.ID,
		EntryType:        models.BudgetEntryTypeReversal,
		Amount:           negativeShare,
		ReferenceType:    "invoice",
		ReferenceId:      invoiceId,
		Memo:             "match result superseded",
	}).Error
}

// manualMatch is the authoritative override result: matched for the declared
// amount, no exceptions, regardless of how far the amount sits from the
// invoice total.
func manualMatch(invoicedTotal, amount decimal.Decimal) ComputedMatch {
	return ComputedMatch{
		Status:         models.MatchStatusMatched,
		InvoicedAmount: invoicedTotal,
		MatchedAmount:  amount,
	}
}

type ManualMatchResult struct {
	Result   *models.InvoiceMatchResult `json:"result"`
	Warnings []string                   `json:"warnings"`
}

// ManualMatchInvoice is the human override: bind the invoice to a PO and
// declare it matched for the given amount. Clears all exceptions. Rebinding
// to a different PO is allowed; over-committing against the PO's open value
// comes back as a warning, not an error.
func ManualMatchInvoice(ctx context.Context, invoiceId, poId int, amount decimal.Decimal) (*ManualMatchResult, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !amount.IsPositive() {
		return nil, utils.NewValidationError("amount", "must be greater than zero")
	}

	po, err := utils.FetchModel[models.PurchaseOrder](ctx, businessId, poId, "Lines")
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "purchase order"}
	}

	openValue, err := po.OpenValue(ctx)
	if err != nil {
		return nil, err
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	if err := models.AcquirePostingLock(tx, "invoice", invoiceId); err != nil {
		tx.Rollback()
		return nil, err
	}
	defer models.ReleasePostingLock(tx, "invoice", invoiceId)

	var invoice models.Invoice
	err = tx.WithContext(ctx).Preload("Lines").
		Where("business_id = ? AND id = ?", businessId, invoiceId).
		First(&invoice).Error
	if err != nil {
		tx.Rollback()
		return nil, &utils.NotFoundError{Resource: "invoice"}
	}

	// the override declares the match, not the vendor relationship; a PO of
	// another vendor stays off limits
	if err := po.CheckVendor(invoice.VendorId); err != nil {
		tx.Rollback()
		return nil, err
	}

	if invoice.PurchaseOrderId == nil || *invoice.PurchaseOrderId != poId {
		err = tx.WithContext(ctx).Model(&invoice).UpdateColumn("PurchaseOrderId", poId).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		invoice.PurchaseOrderId = &poId
	}

	var previous *models.InvoiceMatchResult
	var current models.InvoiceMatchResult
	err = tx.WithContext(ctx).
		Where("business_id = ? AND invoice_id = ? AND superseded = false", businessId, invoiceId).
		Preload("Exceptions").
		First(&current).Error
	if err == nil {
		previous = &current
	} else if err != gorm.ErrRecordNotFound {
		tx.Rollback()
		return nil, err
	}

	matchedBy, _ := utils.GetUsernameFromContext(ctx)
	computed := manualMatch(invoice.TotalAmount, amount)
	result, err := persistMatchResult(tx.WithContext(ctx), businessId, &invoice, previous, computed, &poId, true, matchedBy)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	manualResult := &ManualMatchResult{Result: result}
	if amount.GreaterThan(openValue) {
		manualResult.Warnings = append(manualResult.Warnings, fmt.Sprintf(
			"matched amount %s exceeds open purchase order value %s", amount.String(), openValue.String()))
	}
	return manualResult, nil
}
