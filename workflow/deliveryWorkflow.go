package workflow

import (
	"context"
	"fmt"

	"github.com/buildledger/procure_backend/config"
	"github.com/buildledger/procure_backend/models"
)

// RecordDelivery posts a receiving event and, when MATCH_AUTO_REFRESH is
// set, re-evaluates the match of every invoice bound to the PO. The delivery
// has already committed by then; refresh failures come back as warnings,
// never as an error.
func RecordDelivery(ctx context.Context, input *models.NewDeliveryEvent) (*models.DeliveryEventResult, error) {
	result, err := models.RecordDeliveryEvent(ctx, input)
	if err != nil {
		return nil, err
	}
	if input.PurchaseOrderId == nil || !config.AutoRefreshMatchOnDelivery() {
		return result, nil
	}

	invoiceIds, err := models.InvoiceIdsForPurchaseOrder(ctx, *input.PurchaseOrderId)
	if err != nil {
		logger := config.GetLogger()
		config.LogError(logger, "deliveryWorkflow.go", "RecordDelivery", "list bound invoices", nil, err)
		result.Warnings = append(result.Warnings, "match refresh skipped: could not list bound invoices")
		return result, nil
	}

	result.Warnings = append(result.Warnings, refreshBoundInvoices(invoiceIds, func(invoiceId int) error {
		_, err := RefreshInvoiceMatch(ctx, invoiceId)
		return err
	})...)
	return result, nil
}

// refreshBoundInvoices re-runs the match per invoice. One failure does not
// stop the rest; each failure becomes a warning.
func refreshBoundInvoices(invoiceIds []int, refresh func(invoiceId int) error) []string {
	var warnings []string
	for _, invoiceId := range invoiceIds {
		if err := refresh(invoiceId); err != nil {
			warnings = append(warnings, fmt.Sprintf("match refresh failed for invoice %d: %v", invoiceId, err))
		}
	}
	return warnings
}
