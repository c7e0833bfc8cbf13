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

// CostCodeBudget carries the three counters per project/cost code. The
// counters are additive; every change is mirrored by a BudgetEntry audit row
// and decrements happen only through explicit reversals.
type CostCodeBudget struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id"`
	ProjectId       int             `gorm:"index;not null" json:"project_id"`
	CostCode        string          `gorm:"size:50;not null" json:"cost_code"`
	AllocatedAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"allocated_amount"`
	CommittedAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"committed_amount"`
	InvoicedAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"invoiced_amount"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type BudgetEntry struct {
	ID               int             `gorm:"primary_key" json:"id"`
	BusinessId       string          `gorm:"index;not null" json:"business_id"`
	CostCodeBudgetId int             `gorm:"index;not null" json:"cost_code_budget_id"`
	EntryType        BudgetEntryType `gorm:"type:enum('allocation','commitment','invoice','reversal');not null" json:"entry_type"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	ReferenceType    string          `gorm:"size:50;default:null" json:"reference_type"`
	ReferenceId      int             `gorm:"default:null" json:"reference_id"`
	Memo             string          `gorm:"size:255;default:null" json:"memo"`
	ReversedEntryId  *int            `gorm:"default:null" json:"reversed_entry_id"`
	CreatedBy        string          `gorm:"size:255;default:null" json:"created_by"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// reconciliationTolerance is the advisory bound for the allocation-vs-
// contract check: one cent.
var reconciliationTolerance = decimal.NewFromFloat(0.01)

type AllocateBudgetInput struct {
	ProjectId int             `json:"project_id" binding:"required"`
	CostCode  string          `json:"cost_code" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	Memo      string          `json:"memo"`
}

type AllocateBudgetResult struct {
	Budget   *CostCodeBudget `json:"budget"`
	Warnings []string        `json:"warnings"`
}

// ReconcileAllocation compares total allocation plus overhead and fee with
// the contract value. Pure; returns an advisory message when they differ by
// more than a cent, empty string otherwise.
func ReconcileAllocation(totalAllocated, overheadAndFee, contractValue decimal.Decimal) string {
	if contractValue.IsZero() {
		return ""
	}
	diff := totalAllocated.Add(overheadAndFee).Sub(contractValue).Abs()
	if diff.GreaterThan(reconciliationTolerance) {
		return fmt.Sprintf("allocated %s plus overhead %s differs from contract value %s by %s",
			totalAllocated.String(), overheadAndFee.String(), contractValue.String(), diff.String())
	}
	return ""
}

func findOrCreateBudgetTx(tx *gorm.DB, businessId string, projectId int, costCode string) (*CostCodeBudget, error) {
	var budget CostCodeBudget
	err := tx.Where("business_id = ? AND project_id = ? AND cost_code = ?", businessId, projectId, costCode).
		First(&budget).Error
	if err == nil {
		return &budget, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	budget = CostCodeBudget{
		BusinessId: businessId,
		ProjectId:  projectId,
		CostCode:   costCode,
	}
	if err := tx.Create(&budget).Error; err != nil {
		return nil, err
	}
	return &budget, nil
}

// AllocateBudget adds to the allocation counter. Unbalanced budgets are
// allowed during data entry; the reconciliation check only surfaces a
// warning to the caller.
func AllocateBudget(ctx context.Context, input *AllocateBudgetInput) (*AllocateBudgetResult, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if input.Amount.IsZero() {
		return nil, utils.NewValidationError("amount", "must not be zero")
	}
	if err := utils.ValidateResourceId[Project](ctx, businessId, input.ProjectId); err != nil {
		return nil, &utils.NotFoundError{Resource: "project"}
	}

	projectCodes, err := projectCostCodeValues(ctx, businessId, input.ProjectId)
	if err != nil {
		return nil, err
	}
	if !containsFold(projectCodes, input.CostCode) {
		return nil, utils.NewValidationError("cost_code", "cost code is not defined for the project")
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	budget, err := findOrCreateBudgetTx(tx.WithContext(ctx), businessId, input.ProjectId, input.CostCode)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	newAllocated := budget.AllocatedAmount.Add(input.Amount)
	if err := tx.WithContext(ctx).Model(budget).UpdateColumn("AllocatedAmount", newAllocated).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	budget.AllocatedAmount = newAllocated

	createdBy, _ := utils.GetUsernameFromContext(ctx)
	entry := BudgetEntry{
		BusinessId:       businessId,
		CostCodeBudgetId: budget.ID,
		EntryType:        BudgetEntryTypeAllocation,
		Amount:           input.Amount,
		Memo:             input.Memo,
		CreatedBy:        createdBy,
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	var totalAllocated decimal.Decimal
	err = tx.WithContext(ctx).Model(&CostCodeBudget{}).
		Where("business_id = ? AND project_id = ?", businessId, input.ProjectId).
		Select("COALESCE(SUM(allocated_amount), 0)").
		Scan(&totalAllocated).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	var project Project
	if err := tx.WithContext(ctx).Where("business_id = ? AND id = ?", businessId, input.ProjectId).First(&project).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	result := &AllocateBudgetResult{Budget: budget}
	if msg := ReconcileAllocation(totalAllocated, project.OverheadAndFee, project.ContractValue); msg != "" {
		result.Warnings = append(result.Warnings, msg)
	}
	return result, nil
}

// commitBudgetTx increments the committed counter inside the caller's
// transaction. Used by import approval.
func commitBudgetTx(tx *gorm.DB, businessId string, projectId int, costCode string, amount decimal.Decimal, referenceType string, referenceId int) error {
	if amount.IsZero() {
		return nil
	}
	budget, err := findOrCreateBudgetTx(tx, businessId, projectId, costCode)
	if err != nil {
		return err
	}
	err = tx.Model(budget).UpdateColumn("CommittedAmount", budget.CommittedAmount.Add(amount)).Error
	if err != nil {
		return err
	}
	return tx.Create(&BudgetEntry{
		BusinessId:       businessId,
		CostCodeBudgetId: budget.ID,
		EntryType:        BudgetEntryTypeCommitment,
		Amount:           amount,
		ReferenceType:    referenceType,
		ReferenceId:      referenceId,
	}).Error
}

// invoiceBudgetTx increments the invoiced counter inside the caller's
// transaction. Used by the match engine when an invoice lands matched.
func invoiceBudgetTx(tx *gorm.DB, businessId string, projectId int, costCode string, amount decimal.Decimal, referenceType string, referenceId int) error {
	if amount.IsZero() {
		return nil
	}
	budget, err := findOrCreateBudgetTx(tx, businessId, projectId, costCode)
	if err != nil {
		return err
	}
	err = tx.Model(budget).UpdateColumn("InvoicedAmount", budget.InvoicedAmount.Add(amount)).Error
	if err != nil {
		return err
	}
	return tx.Create(&BudgetEntry{
		BusinessId:       businessId,
		CostCodeBudgetId: budget.ID,
		EntryType:        BudgetEntryTypeInvoice,
		Amount:           amount,
		ReferenceType:    referenceType,
		ReferenceId:      referenceId,
	}).Error
}

// CommitBudgetTx and InvoiceBudgetTx expose the tx-scoped increments to the
// workflow package.
func CommitBudgetTx(tx *gorm.DB, businessId string, projectId int, costCode string, amount decimal.Decimal, referenceType string, referenceId int) error {
	return commitBudgetTx(tx, businessId, projectId, costCode, amount, referenceType, referenceId)
}

func InvoiceBudgetTx(tx *gorm.DB, businessId string, projectId int, costCode string, amount decimal.Decimal, referenceType string, referenceId int) error {
	return invoiceBudgetTx(tx, businessId, projectId, costCode, amount, referenceType, referenceId)
}

// ReverseBudgetEntry writes an audited negative entry against a previous
// one and decrements the matching counter. The original entry is untouched.
func ReverseBudgetEntry(ctx context.Context, entryId int, memo string) (*BudgetEntry, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var original BudgetEntry
	err := db.WithContext(ctx).Where("business_id = ? AND id = ?", businessId, entryId).First(&original).Error
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "budget entry"}
	}
	if original.EntryType == BudgetEntryTypeReversal {
		return nil, utils.NewValidationError("entry_id", "cannot reverse a reversal entry")
	}

	var alreadyReversed int64
	err = db.WithContext(ctx).Model(&BudgetEntry{}).
		Where("business_id = ? AND reversed_entry_id = ?", businessId, entryId).
		Count(&alreadyReversed).Error
	if err != nil {
		return nil, err
	}
	if alreadyReversed > 0 {
		return nil, &utils.InvalidStateError{Entity: "budget entry", Current: "reversed", Expected: "not yet reversed"}
	}

	var budget CostCodeBudget
	err = db.WithContext(ctx).Where("business_id = ? AND id = ?", businessId, original.CostCodeBudgetId).First(&budget).Error
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "cost code budget"}
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	var column string
	switch original.EntryType {
	case BudgetEntryTypeAllocation:
		column = "AllocatedAmount"
		budget.AllocatedAmount = budget.AllocatedAmount.Sub(original.Amount)
	case BudgetEntryTypeCommitment:
		column = "CommittedAmount"
		budget.CommittedAmount = budget.CommittedAmount.Sub(original.Amount)
	case BudgetEntryTypeInvoice:
		column = "InvoicedAmount"
		budget.InvoicedAmount = budget.InvoicedAmount.Sub(original.Amount)
	}

	var newValue decimal.Decimal
	switch column {
	case "AllocatedAmount":
		newValue = budget.AllocatedAmount
	case "CommittedAmount":
		newValue = budget.CommittedAmount
	case "InvoicedAmount":
		newValue = budget.InvoicedAmount
	}
	if err := tx.WithContext(ctx).Model(&budget).UpdateColumn(column, newValue).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	createdBy, _ := utils.GetUsernameFromContext(ctx)
	reversal := BudgetEntry{
		BusinessId:       businessId,
		CostCodeBudgetId: budget.ID,
		EntryType:        BudgetEntryTypeReversal,
		Amount:           original.Amount.Neg(),
		ReferenceType:    original.ReferenceType,
		ReferenceId:      original.ReferenceId,
		Memo:             memo,
		ReversedEntryId:  &original.ID,
		CreatedBy:        createdBy,
	}
	if err := tx.WithContext(ctx).Create(&reversal).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &reversal, nil
}

type BudgetSummaryRow struct {
	CostCode        string          `json:"cost_code"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	CommittedAmount decimal.Decimal `json:"committed_amount"`
	InvoicedAmount  decimal.Decimal `json:"invoiced_amount"`
	Remaining       decimal.Decimal `json:"remaining"`
}

// GetBudgetSummary maps cost code to counters plus allocated-minus-committed
// remaining for one project.
func GetBudgetSummary(ctx context.Context, projectId int) ([]BudgetSummaryRow, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var budgets []CostCodeBudget
	err := db.WithContext(ctx).
		Where("business_id = ? AND project_id = ?", businessId, projectId).
		Order("cost_code").
		Find(&budgets).Error
	if err != nil {
		return nil, err
	}

	rows := make([]BudgetSummaryRow, 0, len(budgets))
	for _, budget := range budgets {
		rows = append(rows, BudgetSummaryRow{
			CostCode:        budget.CostCode,
			AllocatedAmount: budget.AllocatedAmount,
			CommittedAmount: budget.CommittedAmount,
			InvoicedAmount:  budget.InvoicedAmount,
			Remaining:       budget.AllocatedAmount.Sub(budget.CommittedAmount),
		})
	}
	return rows, nil
}

func GetBudgetEntries(ctx context.Context, projectId int, costCode *string) ([]*BudgetEntry, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).
		Joins("JOIN cost_code_budgets ON cost_code_budgets.id = budget_entries.cost_code_budget_id").
		Where("budget_entries.business_id = ? AND cost_code_budgets.project_id = ?", businessId, projectId)
	if costCode != nil && *costCode != "" {
		dbCtx = dbCtx.Where("cost_code_budgets.cost_code = ?", *costCode)
	}
	var entries []*BudgetEntry
	if err := dbCtx.Order("budget_entries.id").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
