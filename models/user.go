package models

import (
	"context"
	"errors"
	"time"

	"github.com/buildledger/procure_backend/config"
	"github.com/buildledger/procure_backend/utils"
)

type User struct {
	ID           int       `gorm:"primary_key" json:"id"`
	BusinessId   string    `gorm:"index;not null" json:"business_id"`
	Username     string    `gorm:"size:255;not null;uniqueIndex" json:"username" binding:"required"`
	Name         string    `gorm:"size:255;default:null" json:"name"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         string    `gorm:"size:20;not null;default:'U'" json:"role"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string `json:"username" binding:"required"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

func CreateUser(ctx context.Context, businessId string, input *NewUser) (*User, error) {
	if err := utils.ValidateUnique[User](ctx, "", "username", input.Username, 0); err != nil {
		return nil, utils.NewValidationError("username", "already taken")
	}

	hash, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = "U"
	}

	user := User{
		BusinessId:   businessId,
		Username:     input.Username,
		Name:         input.Name,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Signin verifies the credentials and issues a session token.
func Signin(ctx context.Context, username, password string) (string, *User, error) {
	db := config.GetDB()

	var user User
	adminCtx := utils.SetSkipTenantScopeInContext(ctx, true)
	if err := db.WithContext(adminCtx).Where("username = ?", username).First(&user).Error; err != nil {
		return "", nil, errors.New("invalid username or password")
	}
	if user.IsActive != nil && !*user.IsActive {
		return "", nil, errors.New("user is inactive")
	}
	if err := utils.ComparePassword(user.PasswordHash, password); err != nil {
		return "", nil, errors.New("invalid username or password")
	}

	token, err := utils.JwtGenerate(user.ID, user.Username, user.BusinessId, user.Role)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}
