package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/buildledger/procure_backend/config"
	"github.com/buildledger/procure_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DeliveryEvent is an append-only receiving record. Once posted, quantities
// are immutable; only DiscrepancyNotes on a line may change. Corrections are
// made by posting a compensating event.
type DeliveryEvent struct {
	ID              int            `gorm:"primary_key" json:"id"`
	BusinessId      string         `gorm:"index;not null" json:"business_id"`
	VendorId        int            `gorm:"index;not null" json:"vendor_id" binding:"required"`
	PurchaseOrderId *int           `gorm:"index;default:null" json:"purchase_order_id"`
	DeliveryDate    time.Time      `gorm:"not null" json:"delivery_date" binding:"required"`
	ReceivedBy      string         `gorm:"size:255;default:null" json:"received_by"`
	Status          DeliveryStatus `gorm:"type:enum('pending','partial','complete');not null" json:"status"`
	Notes           string         `gorm:"type:text;default:null" json:"notes"`
	Lines           []DeliveryLine `json:"lines"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// DeliveryLine references a PO line when the event is bound to a purchase
// order; free-form receipts carry a description instead.
type DeliveryLine struct {
	ID                  int    `gorm:"primary_key" json:"id"`
	DeliveryEventId     int    `gorm:"index;not null" json:"delivery_event_id"`
	PurchaseOrderLineId *int   `gorm:"index;default:null" json:"purchase_order_line_id"`
	Description         string `gorm:"size:255;default:null" json:"description"`
	// snapshot of the ordered quantity at receiving time
	QuantityOrdered  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity_ordered"`
	QuantityReceived decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity_received"`
	QuantityDamaged  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity_damaged"`
	DiscrepancyNotes string          `gorm:"type:text;default:null" json:"discrepancy_notes"`
}

type NewDeliveryEvent struct {
	VendorId        int               `json:"vendor_id" binding:"required"`
	PurchaseOrderId *int              `json:"purchase_order_id"`
	DeliveryDate    time.Time         `json:"delivery_date" binding:"required"`
	ReceivedBy      string            `json:"received_by"`
	Notes           string            `json:"notes"`
	Lines           []NewDeliveryLine `json:"lines" binding:"required"`
}

type NewDeliveryLine struct {
	PurchaseOrderLineId *int            `json:"purchase_order_line_id"`
	Description         string          `json:"description"`
	QuantityReceived    decimal.Decimal `json:"quantity_received"`
	QuantityDamaged     decimal.Decimal `json:"quantity_damaged"`
	DiscrepancyNotes    string          `json:"discrepancy_notes"`
}

// DeliveryEventResult carries the stored event plus the advisory findings
// produced while posting it. Warnings never block the write.
type DeliveryEventResult struct {
	Event    *DeliveryEvent `json:"event"`
	Warnings []string       `json:"warnings"`
}

// DeriveDeliveryStatus classifies a delivery event from its lines.
// A zero-received line does not make the event pending as long as some other
// line received quantity; complete requires every line to have received at
// least the ordered snapshot.
func DeriveDeliveryStatus(lines []DeliveryLine) DeliveryStatus {
	anyReceived := false
	allComplete := len(lines) > 0
	for _, line := range lines {
		if line.QuantityReceived.GreaterThan(decimal.Zero) {
			anyReceived = true
		}
		if line.QuantityReceived.LessThan(line.QuantityOrdered) {
			allComplete = false
		}
	}
	if !anyReceived {
		return DeliveryStatusPending
	}
	if allComplete {
		return DeliveryStatusComplete
	}
	return DeliveryStatusPartial
}

func (input NewDeliveryEvent) validate() error {
	if len(input.Lines) == 0 {
		return utils.NewValidationError("lines", "at least one line is required")
	}
	for i, line := range input.Lines {
		if input.PurchaseOrderId != nil && line.PurchaseOrderLineId == nil {
			return utils.NewValidationError(fmt.Sprintf("lines[%d].purchase_order_line_id", i), "required when the event references a purchase order")
		}
		if input.PurchaseOrderId == nil && line.PurchaseOrderLineId != nil {
			return utils.NewValidationError(fmt.Sprintf("lines[%d].purchase_order_line_id", i), "event has no purchase order")
		}
		if line.QuantityReceived.IsNegative() {
			return utils.NewValidationError(fmt.Sprintf("lines[%d].quantity_received", i), "must not be negative")
		}
		if line.QuantityDamaged.IsNegative() {
			return utils.NewValidationError(fmt.Sprintf("lines[%d].quantity_damaged", i), "must not be negative")
		}
		if line.QuantityDamaged.GreaterThan(line.QuantityReceived) {
			return utils.NewValidationError(fmt.Sprintf("lines[%d].quantity_damaged", i), "must not exceed quantity received")
		}
	}
	return nil
}

// RecordDeliveryEvent posts a receiving event. When the event references a
// purchase order, event, lines and the cumulative PO line counters commit in
// one transaction under the PO posting lock; the PO must belong to the
// event's vendor. Over-delivery is recorded as-is and reported as a warning
// unless STRICT_OVER_DELIVERY is set.
func RecordDeliveryEvent(ctx context.Context, input *NewDeliveryEvent) (*DeliveryEventResult, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Vendor](ctx, businessId, input.VendorId); err != nil {
		return nil, &utils.NotFoundError{Resource: "vendor"}
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	var warnings []string
	var lines []DeliveryLine

	if input.PurchaseOrderId != nil {
		poId := *input.PurchaseOrderId
		if err := AcquirePostingLock(tx, "po", poId); err != nil {
			tx.Rollback()
			return nil, err
		}
		defer ReleasePostingLock(tx, "po", poId)

		var po PurchaseOrder
		err := tx.WithContext(ctx).Preload("Lines").
			Where("business_id = ? AND id = ?", businessId, poId).
			First(&po).Error
		if err != nil {
			tx.Rollback()
			return nil, &utils.NotFoundError{Resource: "purchase order"}
		}
		if err := po.CheckVendor(input.VendorId); err != nil {
			tx.Rollback()
			return nil, err
		}
		if po.CurrentStatus == PurchaseOrderStatusCancelled || po.CurrentStatus == PurchaseOrderStatusClosed {
			tx.Rollback()
			return nil, &utils.InvalidStateError{Entity: "purchase order", Current: string(po.CurrentStatus), Expected: "an open status"}
		}

		poLines := make(map[int]*PurchaseOrderLine, len(po.Lines))
		for i := range po.Lines {
			poLines[po.Lines[i].ID] = &po.Lines[i]
		}

		for i, item := range input.Lines {
			poLine, found := poLines[*item.PurchaseOrderLineId]
			if !found {
				tx.Rollback()
				return nil, utils.NewValidationError(
					fmt.Sprintf("lines[%d].purchase_order_line_id", i), "line does not belong to purchase order")
			}
			if poLine.IsVoided != nil && *poLine.IsVoided {
				tx.Rollback()
				return nil, utils.NewValidationError(
					fmt.Sprintf("lines[%d].purchase_order_line_id", i), "purchase order line is voided")
			}

			newCumulative := poLine.QuantityReceived.Add(item.QuantityReceived)
			if newCumulative.GreaterThan(poLine.QuantityOrdered) {
				msg := fmt.Sprintf("line %d over-delivered: %s received against %s ordered",
					poLine.ID, newCumulative.String(), poLine.QuantityOrdered.String())
				if config.StrictOverDelivery() {
					tx.Rollback()
					return nil, utils.NewValidationError(fmt.Sprintf("lines[%d].quantity_received", i), msg)
				}
				warnings = append(warnings, msg)
			}

			lineId := poLine.ID
			lines = append(lines, DeliveryLine{
				PurchaseOrderLineId: &lineId,
				Description:         poLine.Description,
				QuantityOrdered:     poLine.QuantityOrdered,
				QuantityReceived:    item.QuantityReceived,
				QuantityDamaged:     item.QuantityDamaged,
				DiscrepancyNotes:    item.DiscrepancyNotes,
			})

			err = tx.WithContext(ctx).Model(&PurchaseOrderLine{}).
				Where("id = ?", poLine.ID).
				Updates(map[string]interface{}{
					"quantity_received": newCumulative,
					"quantity_damaged":  poLine.QuantityDamaged.Add(item.QuantityDamaged),
				}).Error
			if err != nil {
				tx.Rollback()
				return nil, err
			}
			poLine.QuantityReceived = newCumulative
		}
	} else {
		// free-form receipt; the ordered snapshot stays zero
		for _, item := range input.Lines {
			lines = append(lines, DeliveryLine{
				Description:      item.Description,
				QuantityReceived: item.QuantityReceived,
				QuantityDamaged:  item.QuantityDamaged,
				DiscrepancyNotes: item.DiscrepancyNotes,
			})
		}
	}

	event := DeliveryEvent{
		BusinessId:      businessId,
		VendorId:        input.VendorId,
		PurchaseOrderId: input.PurchaseOrderId,
		DeliveryDate:    input.DeliveryDate,
		ReceivedBy:      input.ReceivedBy,
		Status:          DeriveDeliveryStatus(lines),
		Notes:           input.Notes,
		Lines:           lines,
	}
	if err := tx.WithContext(ctx).Create(&event).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if input.PurchaseOrderId != nil {
		if err := refreshPoFulfillment(tx.WithContext(ctx), businessId, *input.PurchaseOrderId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &DeliveryEventResult{Event: &event, Warnings: warnings}, nil
}

func GetDeliveryEvent(ctx context.Context, id int) (*DeliveryEvent, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	event, err := utils.FetchModel[DeliveryEvent](ctx, businessId, id, "Lines")
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "delivery event"}
	}
	return event, nil
}

func GetDeliveryEvents(ctx context.Context, poId int) ([]*DeliveryEvent, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var results []*DeliveryEvent
	err := db.WithContext(ctx).
		Where("business_id = ? AND purchase_order_id = ?", businessId, poId).
		Order("delivery_date, id").
		Preload("Lines").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// deliveredSumExpr is the ledger aggregate: the running sum of received
// quantity. Damaged units stay in the sum; damage lives on its own column
// and is reported separately, never netted out of delivered.
const deliveredSumExpr = "COALESCE(SUM(quantity_received), 0)"

// DeliveredQuantity is the running sum of receipts for one PO line across
// all events.
func DeliveredQuantity(ctx context.Context, poLineId int) (decimal.Decimal, error) {
	return DeliveredQuantityTx(config.GetDB().WithContext(ctx), poLineId)
}

func DeliveredQuantityTx(tx *gorm.DB, poLineId int) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := tx.Model(&DeliveryLine{}).
		Where("purchase_order_line_id = ?", poLineId).
		Select(deliveredSumExpr).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// RemainingQuantity reports what is still outstanding on one PO line.
// Remaining is floored at zero for display; the underlying sums are never
// clamped, so Overage carries the true excess.
type RemainingQuantity struct {
	PurchaseOrderLineId int             `json:"purchase_order_line_id"`
	QuantityOrdered     decimal.Decimal `json:"quantity_ordered"`
	QuantityDelivered   decimal.Decimal `json:"quantity_delivered"`
	Remaining           decimal.Decimal `json:"remaining"`
	Overage             decimal.Decimal `json:"overage"`
	OverDelivered       bool            `json:"over_delivered"`
}

func ComputeRemaining(lineId int, ordered, delivered decimal.Decimal) RemainingQuantity {
	remaining := ordered.Sub(delivered)
	result := RemainingQuantity{
		PurchaseOrderLineId: lineId,
		QuantityOrdered:     ordered,
		QuantityDelivered:   delivered,
		Remaining:           remaining,
		Overage:             decimal.Zero,
	}
	if remaining.IsNegative() {
		result.Remaining = decimal.Zero
		result.Overage = remaining.Neg()
		result.OverDelivered = true
	}
	return result
}

func RemainingQuantities(ctx context.Context, poId int) ([]RemainingQuantity, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	po, err := utils.FetchModel[PurchaseOrder](ctx, businessId, poId, "Lines")
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "purchase order"}
	}

	results := make([]RemainingQuantity, 0, len(po.Lines))
	for _, line := range po.Lines {
		if line.IsVoided != nil && *line.IsVoided {
			continue
		}
		delivered, err := DeliveredQuantity(ctx, line.ID)
		if err != nil {
			return nil, err
		}
		results = append(results, ComputeRemaining(line.ID, line.QuantityOrdered, delivered))
	}
	return results, nil
}

// UpdateDeliveryLineNotes is the only mutation allowed on a posted event.
func UpdateDeliveryLineNotes(ctx context.Context, eventId, lineId int, notes string) (*DeliveryLine, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var line DeliveryLine
	err := db.WithContext(ctx).
		Joins("JOIN delivery_events ON delivery_events.id = delivery_lines.delivery_event_id").
		Where("delivery_events.business_id = ? AND delivery_lines.delivery_event_id = ? AND delivery_lines.id = ?",
			businessId, eventId, lineId).
		First(&line).Error
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "delivery line"}
	}

	if err := db.WithContext(ctx).Model(&line).UpdateColumn("DiscrepancyNotes", notes).Error; err != nil {
		return nil, err
	}
	line.DiscrepancyNotes = notes
	return &line, nil
}
