package models

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/buildledger/procure_backend/config"
	"github.com/buildledger/procure_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// KnownUnits is the controlled unit-of-measure vocabulary for imports,
// lower-cased. Anything else is a hard validation error on the line.
var KnownUnits = []string{
	"ea", "lf", "sf", "sy", "cy", "cf", "ton", "lb", "kg",
	"gal", "hr", "day", "ls", "bag", "box", "roll", "sheet", "pc",
}

// categoryKeywords maps description keywords to an inferred category.
// Inference is a suggestion only, never applied automatically.
var categoryKeywords = map[string]string{
	"concrete": "Concrete",
	"cement":   "Concrete",
	"rebar":    "Reinforcement",
	"steel":    "Structural Steel",
	"lumber":   "Wood & Plastics",
	"plywood":  "Wood & Plastics",
	"drywall":  "Finishes",
	"paint":    "Finishes",
	"conduit":  "Electrical",
	"wire":     "Electrical",
	"breaker":  "Electrical",
	"pipe":     "Plumbing",
	"valve":    "Plumbing",
	"fitting":  "Plumbing",
	"duct":     "HVAC",
	"insulation": "Thermal & Moisture",
	"roofing":  "Thermal & Moisture",
}

type MaterialImportRun struct {
	ID         int                  `gorm:"primary_key" json:"id"`
	BusinessId string               `gorm:"index;not null" json:"business_id"`
	ProjectId  int                  `gorm:"index;not null" json:"project_id"`
	FileName   string               `gorm:"size:255;default:null" json:"file_name"`
	Status     ImportRunStatus      `gorm:"type:enum('pending','review','approved','rejected');not null" json:"status"`
	CreatedBy  string               `gorm:"size:255;default:null" json:"created_by"`
	Lines      []MaterialImportLine `json:"lines"`
	CreatedAt  time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

func (run MaterialImportRun) CheckMutable() error {
	if run.Status == ImportRunStatusApproved || run.Status == ImportRunStatusRejected {
		return &utils.InvalidStateError{Entity: "import run", Current: string(run.Status), Expected: "pending or review"}
	}
	return nil
}

type MaterialImportLine struct {
	ID                  int                `gorm:"primary_key" json:"id"`
	MaterialImportRunId int                `gorm:"index;not null" json:"material_import_run_id"`
	RowNumber           int                `gorm:"not null" json:"row_number"`
	MaterialName        string             `gorm:"size:255;default:null" json:"material_name"`
	QuantityRaw         string             `gorm:"size:100;default:null" json:"quantity_raw"`
	Quantity            decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	Unit                string             `gorm:"size:50;default:null" json:"unit"`
	UnitCost            decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	CostCode            string             `gorm:"size:50;default:null" json:"cost_code"`
	Category            string             `gorm:"size:100;default:null" json:"category"`
	Notes               string             `gorm:"type:text;default:null" json:"notes"`
	Valid               *bool              `gorm:"not null;default:false" json:"valid"`
	Errors              []ImportLineError  `gorm:"foreignKey:MaterialImportLineId" json:"errors"`
	Suggestions         []ImportSuggestion `gorm:"foreignKey:MaterialImportLineId" json:"suggestions"`
}

type ImportLineError struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	MaterialImportLineId int             `gorm:"index;not null" json:"material_import_line_id"`
	Code                 ImportErrorCode `gorm:"size:50;not null" json:"code"`
	Field                string          `gorm:"size:50;default:null" json:"field"`
	Message              string          `gorm:"size:255;default:null" json:"message"`
}

type ImportSuggestion struct {
	ID                   int            `gorm:"primary_key" json:"id"`
	MaterialImportLineId int            `gorm:"index;not null" json:"material_import_line_id"`
	Kind                 SuggestionKind `gorm:"size:50;not null" json:"kind"`
	Value                string         `gorm:"size:255;not null" json:"value"`
	Detail               string         `gorm:"size:255;default:null" json:"detail"`
}

type ImportRunSummary struct {
	TotalLines   int `json:"total_lines"`
	ValidLines   int `json:"valid_lines"`
	InvalidLines int `json:"invalid_lines"`
}

type ImportRunDetail struct {
	Run     *MaterialImportRun `json:"run"`
	Summary ImportRunSummary   `json:"summary"`
}

type PatchImportLineInput struct {
	MaterialName *string          `json:"material_name"`
	QuantityRaw  *string          `json:"quantity_raw"`
	Unit         *string          `json:"unit"`
	UnitCost     *decimal.Decimal `json:"unit_cost"`
	CostCode     *string          `json:"cost_code"`
	Category     *string          `json:"category"`
	Notes        *string          `json:"notes"`
}

// ValidateImportLine runs the hard checks and soft suggestions for one line
// against the project's cost code vocabulary. Pure; the caller persists the
// outcome. Errors make the line invalid; suggestions never do.
func ValidateImportLine(line *MaterialImportLine, costCodes []string) ([]ImportLineError, []ImportSuggestion) {
	var lineErrors []ImportLineError
	var suggestions []ImportSuggestion

	if strings.TrimSpace(line.MaterialName) == "" {
		lineErrors = append(lineErrors, ImportLineError{
			Code: ImportErrorMissingField, Field: "material_name", Message: "material name is required"})
	}
	if strings.TrimSpace(line.Unit) == "" {
		lineErrors = append(lineErrors, ImportLineError{
			Code: ImportErrorMissingField, Field: "unit", Message: "unit is required"})
	} else if !isKnownUnit(line.Unit) {
		lineErrors = append(lineErrors, ImportLineError{
			Code: ImportErrorUnknownUnit, Field: "unit",
			Message: fmt.Sprintf("unit %q is not in the unit vocabulary", line.Unit)})
	}

	if strings.TrimSpace(line.QuantityRaw) == "" {
		lineErrors = append(lineErrors, ImportLineError{
			Code: ImportErrorMissingField, Field: "quantity", Message: "quantity is required"})
	} else {
		qty, err := utils.ParseDecimal(line.QuantityRaw)
		if err != nil {
			lineErrors = append(lineErrors, ImportLineError{
				Code: ImportErrorNonNumericQty, Field: "quantity",
				Message: fmt.Sprintf("quantity %q is not numeric", line.QuantityRaw)})
		} else if qty.IsNegative() {
			lineErrors = append(lineErrors, ImportLineError{
				Code: ImportErrorNegativeQty, Field: "quantity", Message: "quantity must not be negative"})
		} else {
			line.Quantity = qty
		}
	}

	if code := strings.TrimSpace(line.CostCode); code != "" {
		if !containsFold(costCodes, code) {
			lineErrors = append(lineErrors, ImportLineError{
				Code: ImportErrorUnknownCostCode, Field: "cost_code",
				Message: fmt.Sprintf("cost code %q is not defined for the project", code)})
			if nearest, ok := nearestCostCode(code, costCodes); ok {
				suggestions = append(suggestions, ImportSuggestion{
					Kind: SuggestionKindCostCode, Value: nearest,
					Detail: fmt.Sprintf("nearest match for %q", code)})
			}
		}
	}

	if strings.TrimSpace(line.Category) == "" {
		if inferred, ok := inferCategory(line.MaterialName); ok {
			suggestions = append(suggestions, ImportSuggestion{
				Kind: SuggestionKindCategory, Value: inferred,
				Detail: "inferred from material description"})
		}
	}

	return lineErrors, suggestions
}

func isKnownUnit(unit string) bool {
	return containsFold(KnownUnits, unit)
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

// nearestCostCode picks the closest code within edit distance 3.
func nearestCostCode(code string, costCodes []string) (string, bool) {
	best := ""
	bestDist := 4
	for _, candidate := range costCodes {
		dist := levenshtein.ComputeDistance(strings.ToLower(code), strings.ToLower(candidate))
		if dist < bestDist {
			best = candidate
			bestDist = dist
		}
	}
	return best, best != ""
}

func inferCategory(description string) (string, bool) {
	lowered := strings.ToLower(description)
	for keyword, category := range categoryKeywords {
		if strings.Contains(lowered, keyword) {
			return category, true
		}
	}
	return "", false
}

// parseImportSheet reads the first sheet of an uploaded workbook into staged
// lines. Expected columns: material name, quantity, unit, unit cost, cost
// code, category, notes; first row is the header.
func parseImportSheet(fileBytes []byte) ([]MaterialImportLine, error) {
	f, err := excelize.OpenReader(bytes.NewReader(fileBytes))
	if err != nil {
		return nil, utils.NewValidationError("file", "unable to open workbook: "+err.Error())
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, utils.NewValidationError("file", "workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, utils.NewValidationError("file", "unable to read sheet: "+err.Error())
	}
	if len(rows) < 2 {
		return nil, utils.NewValidationError("file", "workbook has no data rows")
	}

	cell := func(row []string, idx int) string {
		if idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	var lines []MaterialImportLine
	for idx, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		line := MaterialImportLine{
			RowNumber:    idx + 2,
			MaterialName: cell(row, 0),
			QuantityRaw:  cell(row, 1),
			Unit:         cell(row, 2),
			CostCode:     cell(row, 4),
			Category:     cell(row, 5),
			Notes:        cell(row, 6),
		}
		if raw := cell(row, 3); raw != "" {
			if cost, err := utils.ParseDecimal(raw); err == nil && !cost.IsNegative() {
				line.UnitCost = cost
			}
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, utils.NewValidationError("file", "workbook has no data rows")
	}
	return lines, nil
}

// CreateImportRun parses the upload, stages the run as pending, validates
// every line, then promotes to review in the same transaction.
func CreateImportRun(ctx context.Context, projectId int, fileName string, fileBytes []byte) (*ImportRunDetail, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if !strings.HasSuffix(strings.ToLower(fileName), ".xlsx") {
		return nil, utils.NewValidationError("file", "only .xlsx files are allowed")
	}
	if err := utils.ValidateResourceId[Project](ctx, businessId, projectId); err != nil {
		return nil, &utils.NotFoundError{Resource: "project"}
	}

	lines, err := parseImportSheet(fileBytes)
	if err != nil {
		return nil, err
	}

	projectCodes, err := projectCostCodeValues(ctx, businessId, projectId)
	if err != nil {
		return nil, err
	}

	createdBy, _ := utils.GetUsernameFromContext(ctx)
	run := MaterialImportRun{
		BusinessId: businessId,
		ProjectId:  projectId,
		FileName:   fileName,
		Status:     ImportRunStatusPending,
		CreatedBy:  createdBy,
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	if err := tx.WithContext(ctx).Create(&run).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	for i := range lines {
		lines[i].MaterialImportRunId = run.ID
		lineErrors, lineSuggestions := ValidateImportLine(&lines[i], projectCodes)
		lines[i].Errors = lineErrors
		lines[i].Suggestions = lineSuggestions
		if len(lineErrors) == 0 {
			lines[i].Valid = utils.NewTrue()
		} else {
			lines[i].Valid = utils.NewFalse()
		}
		if err := tx.WithContext(ctx).Create(&lines[i]).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.WithContext(ctx).Model(&run).UpdateColumn("Status", ImportRunStatusReview).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	run.Status = ImportRunStatusReview
	run.Lines = lines
	detail := &ImportRunDetail{Run: &run, Summary: SummarizeImportLines(lines)}
	return detail, nil
}

func SummarizeImportLines(lines []MaterialImportLine) ImportRunSummary {
	summary := ImportRunSummary{TotalLines: len(lines)}
	for _, line := range lines {
		if line.Valid != nil && *line.Valid {
			summary.ValidLines++
		} else {
			summary.InvalidLines++
		}
	}
	return summary
}

func projectCostCodeValues(ctx context.Context, businessId string, projectId int) ([]string, error) {
	db := config.GetDB()
	var codes []string
	err := db.WithContext(ctx).Model(&CostCode{}).
		Where("business_id = ? AND project_id = ?", businessId, projectId).
		Pluck("code", &codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func GetImportRun(ctx context.Context, id int) (*ImportRunDetail, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	run, err := utils.FetchModel[MaterialImportRun](ctx, businessId, id, "Lines", "Lines.Errors", "Lines.Suggestions")
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "import run"}
	}
	return &ImportRunDetail{Run: run, Summary: SummarizeImportLines(run.Lines)}, nil
}

func GetImportRuns(ctx context.Context, projectId *int) ([]*MaterialImportRun, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if projectId != nil && *projectId > 0 {
		dbCtx = dbCtx.Where("project_id = ?", *projectId)
	}
	var results []*MaterialImportRun
	if err := dbCtx.Order("id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// PatchImportLine edits one staged line and re-runs validation for that line
// only. Allowed while the run is pending or review.
func PatchImportLine(ctx context.Context, runId, lineId int, input *PatchImportLineInput) (*MaterialImportLine, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	run, err := utils.FetchModelForChange[MaterialImportRun](ctx, businessId, runId)
	if err != nil {
		return nil, err
	}

	var line MaterialImportLine
	err = db.WithContext(ctx).
		Where("material_import_run_id = ? AND id = ?", run.ID, lineId).
		First(&line).Error
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "import line"}
	}

	if input.MaterialName != nil {
		line.MaterialName = *input.MaterialName
	}
	if input.QuantityRaw != nil {
		line.QuantityRaw = *input.QuantityRaw
	}
	if input.Unit != nil {
		line.Unit = *input.Unit
	}
	if input.UnitCost != nil {
		if input.UnitCost.IsNegative() {
			return nil, utils.NewValidationError("unit_cost", "must not be negative")
		}
		line.UnitCost = *input.UnitCost
	}
	if input.CostCode != nil {
		line.CostCode = *input.CostCode
	}
	if input.Category != nil {
		line.Category = *input.Category
	}
	if input.Notes != nil {
		line.Notes = *input.Notes
	}

	projectCodes, err := projectCostCodeValues(ctx, businessId, run.ProjectId)
	if err != nil {
		return nil, err
	}
	lineErrors, lineSuggestions := ValidateImportLine(&line, projectCodes)
	if len(lineErrors) == 0 {
		line.Valid = utils.NewTrue()
	} else {
		line.Valid = utils.NewFalse()
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	err = tx.WithContext(ctx).Where("material_import_line_id = ?", line.ID).Delete(&ImportLineError{}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	err = tx.WithContext(ctx).Where("material_import_line_id = ?", line.ID).Delete(&ImportSuggestion{}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	line.Errors = lineErrors
	line.Suggestions = lineSuggestions
	if err := tx.WithContext(ctx).Save(&line).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &line, nil
}

func DeleteImportLine(ctx context.Context, runId, lineId int) error {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}

	run, err := utils.FetchModelForChange[MaterialImportRun](ctx, businessId, runId)
	if err != nil {
		return err
	}

	var line MaterialImportLine
	err = db.WithContext(ctx).
		Where("material_import_run_id = ? AND id = ?", run.ID, lineId).
		First(&line).Error
	if err != nil {
		return &utils.NotFoundError{Resource: "import line"}
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	if err := tx.WithContext(ctx).Where("material_import_line_id = ?", line.ID).Delete(&ImportLineError{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.WithContext(ctx).Where("material_import_line_id = ?", line.ID).Delete(&ImportSuggestion{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.WithContext(ctx).Delete(&line).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// RejectImportRun is terminal. Nothing was committed while staging, so there
// is nothing to compensate.
func RejectImportRun(ctx context.Context, runId int) (*MaterialImportRun, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	run, err := utils.FetchModelForChange[MaterialImportRun](ctx, businessId, runId)
	if err != nil {
		return nil, err
	}

	if err := db.WithContext(ctx).Model(run).UpdateColumn("Status", ImportRunStatusRejected).Error; err != nil {
		return nil, err
	}
	run.Status = ImportRunStatusRejected
	return run, nil
}
