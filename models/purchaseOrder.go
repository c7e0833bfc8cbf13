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

type PurchaseOrder struct {
	ID                   int                 `gorm:"primary_key" json:"id"`
	BusinessId           string              `gorm:"index;not null" json:"business_id"`
	ProjectId            int                 `gorm:"index;not null" json:"project_id" binding:"required"`
	VendorId             int                 `gorm:"index;not null" json:"vendor_id" binding:"required"`
	OrderNumber          string              `gorm:"size:255;not null" json:"order_number"`
	SequenceNo           int64               `gorm:"not null" json:"sequence_no"`
	OrderDate            time.Time           `gorm:"not null" json:"order_date" binding:"required"`
	ExpectedDeliveryDate *time.Time          `gorm:"default:null" json:"expected_delivery_date"`
	Notes                string              `gorm:"type:text;default:null" json:"notes"`
	CurrentStatus        PurchaseOrderStatus `gorm:"type:enum('draft','sent','acknowledged','partial','fulfilled','closed','cancelled');not null" json:"current_status"`
	Subtotal             decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	// sum(line extension) over non-voided lines
	ExpectedTaxAmount decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"expected_tax_amount"`
	FreightAmount     decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"freight_amount"`
	TotalAmount       decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Lines             []PurchaseOrderLine `json:"lines" validate:"required,dive,required"`
	CreatedAt         time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// CheckVendor confirms the purchase order belongs to the given vendor.
// Every linkage of a vendor document (invoice, delivery, manual match) to a
// PO goes through this check.
func (po *PurchaseOrder) CheckVendor(vendorId int) error {
	if po.VendorId != vendorId {
		return &utils.VendorMismatchError{VendorId: vendorId, PoVendorId: po.VendorId}
	}
	return nil
}

// PurchaseOrderLine is immutable once the PO is sent, except through
// change-order workflows. Lines referenced by deliveries are never deleted,
// only soft-invalidated via IsVoided.
type PurchaseOrderLine struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	CostCode        string          `gorm:"size:50;default:null" json:"cost_code"`
	Description     string          `gorm:"size:255;not null" json:"description" binding:"required"`
	Unit            string          `gorm:"size:50;default:null" json:"unit"`
	QuantityOrdered decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity_ordered" binding:"required"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	LineTotal       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_total"`
	// cumulative counters maintained by the delivery ledger / match engine
	QuantityReceived decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity_received"`
	QuantityDamaged  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity_damaged"`
	QuantityInvoiced decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity_invoiced"`
	IsVoided         *bool           `gorm:"not null;default:false" json:"is_voided"`
}

type NewPurchaseOrder struct {
	ProjectId            int                    `json:"project_id" binding:"required"`
	VendorId             int                    `json:"vendor_id" binding:"required"`
	OrderDate            time.Time              `json:"order_date" binding:"required"`
	ExpectedDeliveryDate *time.Time             `json:"expected_delivery_date"`
	Notes                string                 `json:"notes"`
	ExpectedTaxAmount    decimal.Decimal        `json:"expected_tax_amount"`
	FreightAmount        decimal.Decimal        `json:"freight_amount"`
	Lines                []NewPurchaseOrderLine `json:"lines" binding:"required"`
}

type NewPurchaseOrderLine struct {
	CostCode        string          `json:"cost_code"`
	Description     string          `json:"description" binding:"required"`
	Unit            string          `json:"unit"`
	QuantityOrdered decimal.Decimal `json:"quantity_ordered" binding:"required"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
}

func (input NewPurchaseOrder) validate(ctx context.Context, businessId string) error {
	if err := utils.ValidateResourceId[Vendor](ctx, businessId, input.VendorId); err != nil {
		return &utils.NotFoundError{Resource: "vendor"}
	}
	if err := utils.ValidateResourceId[Project](ctx, businessId, input.ProjectId); err != nil {
		return &utils.NotFoundError{Resource: "project"}
	}
	if len(input.Lines) == 0 {
		return utils.NewValidationError("lines", "at least one line is required")
	}
	for i, line := range input.Lines {
		if line.QuantityOrdered.IsNegative() {
			return utils.NewValidationError(fmt.Sprintf("lines[%d].quantity_ordered", i), "must not be negative")
		}
		if line.UnitPrice.IsNegative() {
			return utils.NewValidationError(fmt.Sprintf("lines[%d].unit_price", i), "must not be negative")
		}
	}
	return nil
}

// next per-business order sequence, taken inside the caller's transaction
func nextOrderSequence(tx *gorm.DB, businessId string) (int64, error) {
	var maxSeq int64
	err := tx.Model(&PurchaseOrder{}).
		Where("business_id = ?", businessId).
		Select("COALESCE(MAX(sequence_no), 0)").
		Scan(&maxSeq).Error
	if err != nil {
		return 0, err
	}
	return maxSeq + 1, nil
}

func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	var lines []PurchaseOrderLine
	var subtotal decimal.Decimal
	for _, item := range input.Lines {
		line := PurchaseOrderLine{
			CostCode:        item.CostCode,
			Description:     item.Description,
			Unit:            item.Unit,
			QuantityOrdered: item.QuantityOrdered,
			UnitPrice:       item.UnitPrice,
			LineTotal:       item.QuantityOrdered.Mul(item.UnitPrice),
			IsVoided:        utils.NewFalse(),
		}
		subtotal = subtotal.Add(line.LineTotal)
		lines = append(lines, line)
	}

	purchaseOrder := PurchaseOrder{
		BusinessId:           businessId,
		ProjectId:            input.ProjectId,
		VendorId:             input.VendorId,
		OrderDate:            input.OrderDate,
		ExpectedDeliveryDate: input.ExpectedDeliveryDate,
		Notes:                input.Notes,
		CurrentStatus:        PurchaseOrderStatusDraft,
		Subtotal:             subtotal,
		ExpectedTaxAmount:    input.ExpectedTaxAmount,
		FreightAmount:        input.FreightAmount,
		TotalAmount:          subtotal.Add(input.ExpectedTaxAmount).Add(input.FreightAmount),
		Lines:                lines,
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	seqNo, err := nextOrderSequence(tx.WithContext(ctx), businessId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	purchaseOrder.SequenceNo = seqNo
	purchaseOrder.OrderNumber = fmt.Sprintf("PO-%05d", seqNo)

	if err := tx.WithContext(ctx).Create(&purchaseOrder).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &purchaseOrder, nil
}

func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	po, err := utils.FetchModel[PurchaseOrder](ctx, businessId, id, "Lines")
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "purchase order"}
	}
	return po, nil
}

func GetPurchaseOrders(ctx context.Context, projectId *int, status *PurchaseOrderStatus) ([]*PurchaseOrder, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if projectId != nil && *projectId > 0 {
		dbCtx = dbCtx.Where("project_id = ?", *projectId)
	}
	if status != nil {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	var results []*PurchaseOrder
	if err := dbCtx.Preload("Lines").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// UpdatePurchaseOrderStatus handles the user-driven transitions
// (draft -> sent -> acknowledged, and closing/cancelling). Fulfillment
// states (partial/fulfilled) are derived from the delivery ledger, never
// set directly.
func UpdatePurchaseOrderStatus(ctx context.Context, id int, status PurchaseOrderStatus) (*PurchaseOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	po, err := utils.FetchModel[PurchaseOrder](ctx, businessId, id, "Lines")
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "purchase order"}
	}

	if status == PurchaseOrderStatusPartial || status == PurchaseOrderStatusFulfilled {
		return nil, utils.NewValidationError("status", "fulfillment status is derived from deliveries")
	}
	if po.CurrentStatus == PurchaseOrderStatusClosed || po.CurrentStatus == PurchaseOrderStatusCancelled {
		return nil, &utils.InvalidStateError{Entity: "purchase order", Current: string(po.CurrentStatus), Expected: "an open status"}
	}
	if status == PurchaseOrderStatusCancelled && hasDeliveries(ctx, po.ID) {
		return nil, &utils.InvalidStateError{Entity: "purchase order", Current: string(po.CurrentStatus), Expected: "no recorded deliveries"}
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&po).UpdateColumn("CurrentStatus", status).Error; err != nil {
		return nil, err
	}
	po.CurrentStatus = status
	return po, nil
}

// VoidPurchaseOrderLine soft-invalidates a line. Lines are never hard
// deleted while delivery events may reference them.
func VoidPurchaseOrderLine(ctx context.Context, poId int, lineId int) (*PurchaseOrderLine, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var line PurchaseOrderLine
	err := db.WithContext(ctx).
		Joins("JOIN purchase_orders ON purchase_orders.id = purchase_order_lines.purchase_order_id").
		Where("purchase_orders.business_id = ? AND purchase_order_lines.purchase_order_id = ? AND purchase_order_lines.id = ?",
			businessId, poId, lineId).
		First(&line).Error
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "purchase order line"}
	}

	if err := db.WithContext(ctx).Model(&line).UpdateColumn("IsVoided", true).Error; err != nil {
		return nil, err
	}
	line.IsVoided = utils.NewTrue()
	return &line, nil
}

func hasDeliveries(ctx context.Context, poId int) bool {
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&DeliveryEvent{}).
		Where("purchase_order_id = ?", poId).Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}

// OpenValue is the PO total minus what has already been invoiced against it.
// Used as the advisory bound for manual matches.
func (po *PurchaseOrder) OpenValue(ctx context.Context) (decimal.Decimal, error) {
	db := config.GetDB()
	var invoiced decimal.Decimal
	err := db.WithContext(ctx).Model(&InvoiceMatchResult{}).
		Where("business_id = ? AND purchase_order_id = ? AND superseded = false AND match_status = ?",
			po.BusinessId, po.ID, MatchStatusMatched).
		Select("COALESCE(SUM(matched_amount), 0)").
		Scan(&invoiced).Error
	if err != nil {
		return decimal.Zero, err
	}
	open := po.TotalAmount.Sub(invoiced)
	if open.IsNegative() {
		return decimal.Zero, nil
	}
	return open, nil
}

// refreshPoFulfillment derives partial/fulfilled from cumulative received
// quantities, inside the caller's transaction. Only POs already past draft
// participate; closed/cancelled orders keep their terminal status.
func refreshPoFulfillment(tx *gorm.DB, businessId string, poId int) error {
	var po PurchaseOrder
	if err := tx.Preload("Lines").Where("business_id = ? AND id = ?", businessId, poId).First(&po).Error; err != nil {
		return errors.New("purchase order not found at refreshPoFulfillment")
	}

	switch po.CurrentStatus {
	case PurchaseOrderStatusDraft, PurchaseOrderStatusClosed, PurchaseOrderStatusCancelled:
		return nil
	}

	anyReceived := false
	allReceived := true
	for _, line := range po.Lines {
		if line.IsVoided != nil && *line.IsVoided {
			continue
		}
		if line.QuantityReceived.GreaterThan(decimal.Zero) {
			anyReceived = true
		}
		if line.QuantityReceived.LessThan(line.QuantityOrdered) {
			allReceived = false
		}
	}

	status := po.CurrentStatus
	if anyReceived && allReceived {
		status = PurchaseOrderStatusFulfilled
	} else if anyReceived {
		status = PurchaseOrderStatusPartial
	}
	if status == po.CurrentStatus {
		return nil
	}
	return tx.Model(&po).UpdateColumn("CurrentStatus", status).Error
}
