package models

import (
	"context"
	"errors"
	"time"

	"github.com/buildledger/procure_backend/config"
	"github.com/buildledger/procure_backend/utils"
)

// CostCode is the controlled vocabulary a project's contract value is
// subdivided into. Import validation and budget rollups key off Code.
type CostCode struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BusinessId  string    `gorm:"index;not null" json:"business_id"`
	ProjectId   int       `gorm:"index;not null" json:"project_id" binding:"required"`
	Code        string    `gorm:"size:50;not null" json:"code" binding:"required"`
	Description string    `gorm:"size:255;default:null" json:"description"`
	Category    string    `gorm:"size:100;default:null" json:"category"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCostCode struct {
	ProjectId   int    `json:"project_id" binding:"required"`
	Code        string `json:"code" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

func CreateCostCode(ctx context.Context, input *NewCostCode) (*CostCode, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateResourceId[Project](ctx, businessId, input.ProjectId); err != nil {
		return nil, &utils.NotFoundError{Resource: "project"}
	}

	var count int64
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&CostCode{}).
		Where("business_id = ? AND project_id = ? AND code = ?", businessId, input.ProjectId, input.Code).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewValidationError("code", "duplicate cost code for project")
	}

	costCode := CostCode{
		BusinessId:  businessId,
		ProjectId:   input.ProjectId,
		Code:        input.Code,
		Description: input.Description,
		Category:    input.Category,
	}
	if err := db.WithContext(ctx).Create(&costCode).Error; err != nil {
		return nil, err
	}
	return &costCode, nil
}

func GetProjectCostCodes(ctx context.Context, projectId int) ([]*CostCode, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*CostCode
	err := db.WithContext(ctx).
		Where("business_id = ? AND project_id = ?", businessId, projectId).
		Order("code").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
