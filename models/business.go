package models

import (
	"context"
	"errors"
	"time"

	"github.com/buildledger/procure_backend/config"
	"github.com/buildledger/procure_backend/utils"
	"github.com/google/uuid"
)

type Business struct {
	ID        uuid.UUID `gorm:"type:char(36);primary_key" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:255;not null" json:"email" binding:"required"`
	Phone     string    `gorm:"size:50;default:null" json:"phone"`
	Address   string    `gorm:"type:text;default:null" json:"address"`
	Timezone  string    `gorm:"size:100;default:null" json:"timezone"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBusiness struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Timezone string `json:"timezone"`
}

func CreateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	if !utils.IsValidEmail(input.Email) {
		return nil, utils.NewValidationError("email", "invalid email address")
	}

	business := Business{
		ID:       uuid.New(),
		Name:     input.Name,
		Email:    input.Email,
		Phone:    input.Phone,
		Address:  input.Address,
		Timezone: input.Timezone,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

func GetBusinessById(ctx context.Context, businessId string) (*Business, error) {
	if businessId == "" {
		return nil, errors.New("business id is required")
	}
	db := config.GetDB()
	var business Business
	if err := db.WithContext(ctx).Where("id = ?", businessId).First(&business).Error; err != nil {
		return nil, &utils.NotFoundError{Resource: "business"}
	}
	return &business, nil
}
