package models

import (
	"context"
	"errors"
	"time"

	"github.com/buildledger/procure_backend/config"
	"github.com/buildledger/procure_backend/utils"
)

type Vendor struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"index;not null" json:"business_id"`
	Name          string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Email         string    `gorm:"size:255;default:null" json:"email"`
	Phone         string    `gorm:"size:50;default:null" json:"phone"`
	ContactPerson string    `gorm:"size:255;default:null" json:"contact_person"`
	Address       string    `gorm:"type:text;default:null" json:"address"`
	Notes         string    `gorm:"type:text;default:null" json:"notes"`
	IsActive      *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewVendor struct {
	Name          string `json:"name" binding:"required"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	ContactPerson string `json:"contact_person"`
	Address       string `json:"address"`
	Notes         string `json:"notes"`
}

func (input NewVendor) validate() error {
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return utils.NewValidationError("email", "invalid email address")
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return utils.NewValidationError("phone", "invalid phone number")
		}
	}
	return nil
}

func CreateVendor(ctx context.Context, input *NewVendor) (*Vendor, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Vendor](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, utils.NewValidationError("name", "duplicate vendor name")
	}

	vendor := Vendor{
		BusinessId:    businessId,
		Name:          input.Name,
		Email:         input.Email,
		Phone:         input.Phone,
		ContactPerson: input.ContactPerson,
		Address:       input.Address,
		Notes:         input.Notes,
		IsActive:      utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&vendor).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

func GetVendor(ctx context.Context, id int) (*Vendor, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	vendor, err := utils.FetchModel[Vendor](ctx, businessId, id)
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "vendor"}
	}
	return vendor, nil
}

func GetVendors(ctx context.Context, name *string) ([]*Vendor, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	var results []*Vendor
	if err := dbCtx.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
