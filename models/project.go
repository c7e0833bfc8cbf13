package models

import (
	"context"
	"errors"
	"time"

	"github.com/buildledger/procure_backend/config"
	"github.com/buildledger/procure_backend/utils"
	"github.com/shopspring/decimal"
)

type Project struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"index;not null" json:"business_id"`
	Name           string          `gorm:"size:255;not null" json:"name" binding:"required"`
	ProjectNumber  string          `gorm:"size:100;default:null" json:"project_number"`
	ContractValue  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"contract_value"`
	OverheadAndFee decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"overhead_and_fee"`
	StartDate      *time.Time      `gorm:"default:null" json:"start_date"`
	EndDate        *time.Time      `gorm:"default:null" json:"end_date"`
	IsActive       *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProject struct {
	Name           string          `json:"name" binding:"required"`
	ProjectNumber  string          `json:"project_number"`
	ContractValue  decimal.Decimal `json:"contract_value"`
	OverheadAndFee decimal.Decimal `json:"overhead_and_fee"`
	StartDate      *time.Time      `json:"start_date"`
	EndDate        *time.Time      `json:"end_date"`
}

func CreateProject(ctx context.Context, input *NewProject) (*Project, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if input.ContractValue.IsNegative() {
		return nil, utils.NewValidationError("contract_value", "must not be negative")
	}

	project := Project{
		BusinessId:     businessId,
		Name:           input.Name,
		ProjectNumber:  input.ProjectNumber,
		ContractValue:  input.ContractValue,
		OverheadAndFee: input.OverheadAndFee,
		StartDate:      input.StartDate,
		EndDate:        input.EndDate,
		IsActive:       utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func GetProject(ctx context.Context, id int) (*Project, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	project, err := utils.FetchModel[Project](ctx, businessId, id)
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "project"}
	}
	return project, nil
}

func GetProjects(ctx context.Context) ([]*Project, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Project](ctx, businessId)
}
