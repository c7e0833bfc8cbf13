package models

import (
	"context"
	"errors"
	"time"

	"github.com/buildledger/procure_backend/config"
	"github.com/buildledger/procure_backend/utils"
	"github.com/shopspring/decimal"
)

// ProjectMaterial is a committed material record. Created only by import run
// approval; removal goes through a budget reversal, never a silent delete.
type ProjectMaterial struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	BusinessId          string          `gorm:"index;not null" json:"business_id"`
	ProjectId           int             `gorm:"index;not null" json:"project_id"`
	MaterialImportRunId *int            `gorm:"index;default:null" json:"material_import_run_id"`
	Name                string          `gorm:"size:255;not null" json:"name"`
	Quantity            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	Unit                string          `gorm:"size:50;default:null" json:"unit"`
	UnitCost            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	TotalCost           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_cost"`
	CostCode            string          `gorm:"size:50;default:null" json:"cost_code"`
	Category            string          `gorm:"size:100;default:null" json:"category"`
	Notes               string          `gorm:"type:text;default:null" json:"notes"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetProjectMaterials(ctx context.Context, projectId int) ([]*ProjectMaterial, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*ProjectMaterial
	err := db.WithContext(ctx).
		Where("business_id = ? AND project_id = ?", businessId, projectId).
		Order("cost_code, name").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
