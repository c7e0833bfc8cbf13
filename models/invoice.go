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

type Invoice struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id"`
	VendorId        int             `gorm:"index;not null" json:"vendor_id" binding:"required"`
	PurchaseOrderId *int            `gorm:"index;default:null" json:"purchase_order_id"`
	InvoiceNumber   string          `gorm:"size:255;not null" json:"invoice_number" binding:"required"`
	InvoiceDate     time.Time       `gorm:"not null" json:"invoice_date" binding:"required"`
	DueDate         *time.Time      `gorm:"default:null" json:"due_date"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	TaxAmount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	FreightAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"freight_amount"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Notes           string          `gorm:"type:text;default:null" json:"notes"`
	Lines           []InvoiceLine   `json:"lines"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// InvoiceLine is optional detail. When present with claimed quantities, the
// match engine runs the quantity check; header-only invoices skip it.
type InvoiceLine struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	InvoiceId           int             `gorm:"index;not null" json:"invoice_id"`
	PurchaseOrderLineId *int            `gorm:"index;default:null" json:"purchase_order_line_id"`
	Description         string          `gorm:"size:255;default:null" json:"description"`
	QuantityClaimed     *decimal.Decimal `gorm:"type:decimal(20,4);default:null" json:"quantity_claimed"`
	UnitPrice           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	Amount              decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

// InvoiceMatchResult is append-only history. Exactly one non-superseded row
// exists per invoice once a match has run; refreshes supersede, never update.
type InvoiceMatchResult struct {
	ID              int                     `gorm:"primary_key" json:"id"`
	BusinessId      string                  `gorm:"index;not null" json:"business_id"`
	InvoiceId       int                     `gorm:"index;not null" json:"invoice_id"`
	PurchaseOrderId *int                    `gorm:"index;default:null" json:"purchase_order_id"`
	MatchStatus     MatchStatus             `gorm:"type:enum('unmatched','matched','price_variance','qty_variance','tax_variance','freight_variance','missing_po');not null" json:"match_status"`
	ExpectedAmount  decimal.Decimal         `gorm:"type:decimal(20,4);default:0" json:"expected_amount"`
	InvoicedAmount  decimal.Decimal         `gorm:"type:decimal(20,4);default:0" json:"invoiced_amount"`
	MatchedAmount   decimal.Decimal         `gorm:"type:decimal(20,4);default:0" json:"matched_amount"`
	Manual          *bool                   `gorm:"not null;default:false" json:"manual"`
	Superseded      *bool                   `gorm:"not null;default:false" json:"superseded"`
	MatchedBy       string                  `gorm:"size:255;default:null" json:"matched_by"`
	Exceptions      []InvoiceMatchException `json:"exceptions"`
	CreatedAt       time.Time               `gorm:"autoCreateTime" json:"created_at"`
}

type InvoiceMatchException struct {
	ID                   int               `gorm:"primary_key" json:"id"`
	InvoiceMatchResultId int               `gorm:"index;not null" json:"invoice_match_result_id"`
	ExceptionType        ExceptionType     `gorm:"type:enum('missing_po','qty_variance','price_variance','tax_variance','freight_variance');not null" json:"exception_type"`
	Severity             ExceptionSeverity `gorm:"type:enum('info','warning');not null" json:"severity"`
	Detail               string            `gorm:"size:512;default:null" json:"detail"`
	ExpectedValue        decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"expected_value"`
	ActualValue          decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"actual_value"`
}

type NewInvoice struct {
	VendorId        int              `json:"vendor_id" binding:"required"`
	PurchaseOrderId *int             `json:"purchase_order_id"`
	InvoiceNumber   string           `json:"invoice_number" binding:"required"`
	InvoiceDate     time.Time        `json:"invoice_date" binding:"required"`
	DueDate         *time.Time       `json:"due_date"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	TaxAmount       decimal.Decimal  `json:"tax_amount"`
	FreightAmount   decimal.Decimal  `json:"freight_amount"`
	Notes           string           `json:"notes"`
	Lines           []NewInvoiceLine `json:"lines"`
}

type NewInvoiceLine struct {
	PurchaseOrderLineId *int             `json:"purchase_order_line_id"`
	Description         string           `json:"description"`
	QuantityClaimed     *decimal.Decimal `json:"quantity_claimed"`
	UnitPrice           decimal.Decimal  `json:"unit_price"`
	Amount              decimal.Decimal  `json:"amount"`
}

func (input NewInvoice) validate(ctx context.Context, businessId string) error {
	if err := utils.ValidateResourceId[Vendor](ctx, businessId, input.VendorId); err != nil {
		return &utils.NotFoundError{Resource: "vendor"}
	}
	if input.Subtotal.IsNegative() || input.TaxAmount.IsNegative() || input.FreightAmount.IsNegative() {
		return utils.NewValidationError("amounts", "must not be negative")
	}
	if input.PurchaseOrderId != nil {
		po, err := utils.FetchModel[PurchaseOrder](ctx, businessId, *input.PurchaseOrderId)
		if err != nil {
			return &utils.NotFoundError{Resource: "purchase order"}
		}
		if err := po.CheckVendor(input.VendorId); err != nil {
			return err
		}
	}
	for i, line := range input.Lines {
		if line.QuantityClaimed != nil && line.QuantityClaimed.IsNegative() {
			return utils.NewValidationError(fmt.Sprintf("lines[%d].quantity_claimed", i), "must not be negative")
		}
	}
	return nil
}

func CreateInvoice(ctx context.Context, input *NewInvoice) (*Invoice, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	var lines []InvoiceLine
	for _, item := range input.Lines {
		lines = append(lines, InvoiceLine{
			PurchaseOrderLineId: item.PurchaseOrderLineId,
			Description:         item.Description,
			QuantityClaimed:     item.QuantityClaimed,
			UnitPrice:           item.UnitPrice,
			Amount:              item.Amount,
		})
	}

	invoice := Invoice{
		BusinessId:      businessId,
		VendorId:        input.VendorId,
		PurchaseOrderId: input.PurchaseOrderId,
		InvoiceNumber:   input.InvoiceNumber,
		InvoiceDate:     input.InvoiceDate,
		DueDate:         input.DueDate,
		Subtotal:        input.Subtotal,
		TaxAmount:       input.TaxAmount,
		FreightAmount:   input.FreightAmount,
		TotalAmount:     input.Subtotal.Add(input.TaxAmount).Add(input.FreightAmount),
		Notes:           input.Notes,
		Lines:           lines,
	}
	if err := db.WithContext(ctx).Create(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	invoice, err := utils.FetchModel[Invoice](ctx, businessId, id, "Lines")
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "invoice"}
	}
	return invoice, nil
}

func GetInvoices(ctx context.Context, vendorId *int, poId *int) ([]*Invoice, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if vendorId != nil && *vendorId > 0 {
		dbCtx = dbCtx.Where("vendor_id = ?", *vendorId)
	}
	if poId != nil && *poId > 0 {
		dbCtx = dbCtx.Where("purchase_order_id = ?", *poId)
	}
	var results []*Invoice
	if err := dbCtx.Preload("Lines").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// InvoiceIdsForPurchaseOrder lists the invoices currently bound to a PO,
// oldest first.
func InvoiceIdsForPurchaseOrder(ctx context.Context, poId int) ([]int, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var ids []int
	err := db.WithContext(ctx).Model(&Invoice{}).
		Where("business_id = ? AND purchase_order_id = ?", businessId, poId).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ActiveMatchResult returns the current (non-superseded) match for an
// invoice, or nil if the match engine has not run yet.
func ActiveMatchResult(ctx context.Context, invoiceId int) (*InvoiceMatchResult, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var result InvoiceMatchResult
	err := db.WithContext(ctx).
		Where("business_id = ? AND invoice_id = ? AND superseded = false", businessId, invoiceId).
		Preload("Exceptions").
		First(&result).Error
	if err != nil {
		if noMatchYet(err) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

// noMatchYet tells an absent match result apart from a real query failure;
// only the former may read as "the engine has not run".
func noMatchYet(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
