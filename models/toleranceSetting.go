package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/buildledger/procure_backend/config"
	"github.com/buildledger/procure_backend/utils"
	"github.com/shopspring/decimal"
)

// ToleranceSetting is the org-level match policy. Percentages are fractions
// of the expected value (0.02 = 2%); TaxFreightCap is an absolute currency
// amount. Variances at exactly the boundary pass; only strictly greater
// differences raise exceptions.
type ToleranceSetting struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	BusinessId         string          `gorm:"uniqueIndex;not null" json:"business_id"`
	PricePercentage    decimal.Decimal `gorm:"type:decimal(10,6);default:0.02" json:"price_percentage"`
	QuantityPercentage decimal.Decimal `gorm:"type:decimal(10,6);default:0" json:"quantity_percentage"`
	TaxFreightCap      decimal.Decimal `gorm:"type:decimal(20,4);default:5" json:"tax_freight_cap"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewToleranceSetting struct {
	PricePercentage    decimal.Decimal `json:"price_percentage"`
	QuantityPercentage decimal.Decimal `json:"quantity_percentage"`
	TaxFreightCap      decimal.Decimal `json:"tax_freight_cap"`
}

func DefaultToleranceSetting(businessId string) ToleranceSetting {
	return ToleranceSetting{
		BusinessId:         businessId,
		PricePercentage:    decimal.NewFromFloat(0.02),
		QuantityPercentage: decimal.Zero,
		TaxFreightCap:      decimal.NewFromInt(5),
	}
}

func toleranceCacheKey(businessId string) string {
	return fmt.Sprintf("tolerance:%s", businessId)
}

// GetToleranceSetting is a read-through cached lookup. Falls back to the
// defaults when the org never configured a policy.
func GetToleranceSetting(ctx context.Context) (*ToleranceSetting, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var cached ToleranceSetting
	if found, err := config.GetRedisObject(toleranceCacheKey(businessId), &cached); err == nil && found {
		return &cached, nil
	}

	db := config.GetDB()
	var setting ToleranceSetting
	err := db.WithContext(ctx).Where("business_id = ?", businessId).First(&setting).Error
	if err != nil {
		defaults := DefaultToleranceSetting(businessId)
		return &defaults, nil
	}

	_ = config.SetRedisObject(toleranceCacheKey(businessId), setting, time.Hour)
	return &setting, nil
}

func UpsertToleranceSetting(ctx context.Context, input *NewToleranceSetting) (*ToleranceSetting, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if input.PricePercentage.IsNegative() || input.QuantityPercentage.IsNegative() || input.TaxFreightCap.IsNegative() {
		return nil, utils.NewValidationError("tolerances", "must not be negative")
	}

	db := config.GetDB()
	var setting ToleranceSetting
	err := db.WithContext(ctx).Where("business_id = ?", businessId).First(&setting).Error
	if err != nil {
		setting = ToleranceSetting{
			BusinessId:         businessId,
			PricePercentage:    input.PricePercentage,
			QuantityPercentage: input.QuantityPercentage,
			TaxFreightCap:      input.TaxFreightCap,
		}
		if err := db.WithContext(ctx).Create(&setting).Error; err != nil {
			return nil, err
		}
	} else {
		setting.PricePercentage = input.PricePercentage
		setting.QuantityPercentage = input.QuantityPercentage
		setting.TaxFreightCap = input.TaxFreightCap
		if err := db.WithContext(ctx).Save(&setting).Error; err != nil {
			return nil, err
		}
	}

	_ = config.RemoveRedisKey(toleranceCacheKey(businessId))
	return &setting, nil
}
