package workflow

import (
	"context"
	"errors"

	"github.com/buildledger/procure_backend/config"
	"github.com/buildledger/procure_backend/models"
	"github.com/buildledger/procure_backend/utils"
)

// approvalSteps are the three effects of an import approval. They run inside
// one transaction; runApproval only sequences them.
type approvalSteps struct {
	createMaterial func(line models.MaterialImportLine) error
	commitBudget   func(costCode string, line models.MaterialImportLine) error
	setApproved    func() error
}

// runApproval creates one committed material per valid line, commits the
// budget for each cost-coded line, then flips the run to approved. Invalid
// lines are skipped, not blocking. Any error aborts the whole sequence.
func runApproval(run *models.MaterialImportRun, steps approvalSteps) (approvedLines int, err error) {
	for _, line := range run.Lines {
		if line.Valid == nil || !*line.Valid {
			continue
		}
		if err := steps.createMaterial(line); err != nil {
			return 0, err
		}
		if line.CostCode != "" {
			if err := steps.commitBudget(line.CostCode, line); err != nil {
				return 0, err
			}
		}
		approvedLines++
	}
	if err := steps.setApproved(); err != nil {
		return 0, err
	}
	return approvedLines, nil
}

type ApproveImportRunResult struct {
	Run           *models.MaterialImportRun `json:"run"`
	ApprovedLines int                       `json:"approved_lines"`
	SkippedLines  int                       `json:"skipped_lines"`
	Warnings      []string                  `json:"warnings"`
}

// ApproveImportRun commits a reviewed run: materials, budget increments and
// the status transition land in one transaction. A failure anywhere leaves
// the run in review. Guarded by the import posting lock plus a short redis
// lock so two instances cannot approve the same run concurrently.
func ApproveImportRun(ctx context.Context, runId int) (*ApproveImportRunResult, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	release, err := utils.BusinessLock(ctx, businessId, "import-approve", "importWorkflow.go", "ApproveImportRun")
	if err != nil {
		return nil, err
	}
	defer release()

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	if err := models.AcquirePostingLock(tx, "import", runId); err != nil {
		tx.Rollback()
		return nil, err
	}
	defer models.ReleasePostingLock(tx, "import", runId)

	var run models.MaterialImportRun
	err = tx.WithContext(ctx).
		Preload("Lines").
		Where("business_id = ? AND id = ?", businessId, runId).
		First(&run).Error
	if err != nil {
		tx.Rollback()
		return nil, &utils.NotFoundError{Resource: "import run"}
	}
	if run.Status != models.ImportRunStatusReview {
		tx.Rollback()
		return nil, &utils.InvalidStateError{Entity: "import run", Current: string(run.Status), Expected: string(models.ImportRunStatusReview)}
	}

	if config.RequireCleanImportApproval() {
		summary := models.SummarizeImportLines(run.Lines)
		if summary.InvalidLines > 0 {
			tx.Rollback()
			return nil, utils.NewValidationError("run", "run has invalid lines and clean approval is required")
		}
	}

	steps := approvalSteps{
		createMaterial: func(line models.MaterialImportLine) error {
			runIdCopy := run.ID
			material := models.ProjectMaterial{
				BusinessId:          businessId,
				ProjectId:           run.ProjectId,
				MaterialImportRunId: &runIdCopy,
				Name:                line.MaterialName,
				Quantity:            line.Quantity,
				Unit:                line.Unit,
				UnitCost:            line.UnitCost,
				TotalCost:           line.Quantity.Mul(line.UnitCost),
				CostCode:            line.CostCode,
				Category:            line.Category,
				Notes:               line.Notes,
			}
			return tx.WithContext(ctx).Create(&material).Error
		},
		commitBudget: func(costCode string, line models.MaterialImportLine) error {
			return models.CommitBudgetTx(tx.WithContext(ctx), businessId, run.ProjectId, costCode,
				line.Quantity.Mul(line.UnitCost), "import_run", run.ID)
		},
		setApproved: func() error {
			return tx.WithContext(ctx).Model(&run).UpdateColumn("Status", models.ImportRunStatusApproved).Error
		},
	}

	approvedLines, err := runApproval(&run, steps)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	run.Status = models.ImportRunStatusApproved
	result := &ApproveImportRunResult{
		Run:           &run,
		ApprovedLines: approvedLines,
		SkippedLines:  len(run.Lines) - approvedLines,
	}
	if result.SkippedLines > 0 {
		result.Warnings = append(result.Warnings,
			"invalid lines were skipped and not committed")
	}
	return result, nil
}
