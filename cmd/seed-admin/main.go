// seed-admin bootstraps a business and its admin user.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  go run ./cmd/seed-admin -business "Acme Builders" -email ops@acme.test -username acmeAdmin -password secret
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/buildledger/procure_backend/config"
	"github.com/buildledger/procure_backend/models"
	"github.com/buildledger/procure_backend/utils"
	"gorm.io/gorm"
)

func main() {
	businessName := flag.String("business", "", "Business name to create or reuse")
	email := flag.String("email", "", "Business contact email")
	username := flag.String("username", "admin", "Admin username")
	password := flag.String("password", "", "Admin password")
	flag.Parse()

	if strings.TrimSpace(*businessName) == "" || strings.TrimSpace(*email) == "" || strings.TrimSpace(*password) == "" {
		fmt.Fprintln(os.Stderr, "-business, -email and -password are required")
		os.Exit(2)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	var business models.Business
	err := db.WithContext(ctx).Where("name = ?", *businessName).First(&business).Error
	if err == gorm.ErrRecordNotFound {
		created, createErr := models.CreateBusiness(ctx, &models.NewBusiness{
			Name:  *businessName,
			Email: *email,
		})
		if createErr != nil {
			fmt.Fprintf(os.Stderr, "failed to create business: %v\n", createErr)
			os.Exit(1)
		}
		business = *created
		fmt.Printf("created business %s (%s)\n", business.Name, business.ID)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "failed to lookup business: %v\n", err)
		os.Exit(1)
	} else {
		fmt.Printf("reusing business %s (%s)\n", business.Name, business.ID)
	}

	businessId := business.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessId)

	var existing models.User
	err = db.WithContext(ctx).Where("username = ?", *username).First(&existing).Error
	if err == nil {
		hash, hashErr := utils.HashPassword(*password)
		if hashErr != nil {
			fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", hashErr)
			os.Exit(1)
		}
		updateErr := db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
			"password_hash": string(hash),
			"role":          "A",
			"is_active":     true,
		}).Error
		if updateErr != nil {
			fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", updateErr)
			os.Exit(1)
		}
		fmt.Printf("updated admin user %s\n", *username)
		return
	}
	if err != gorm.ErrRecordNotFound {
		fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
		os.Exit(1)
	}

	_, err = models.CreateUser(ctx, businessId, &models.NewUser{
		Username: *username,
		Name:     "Administrator",
		Password: *password,
		Role:     "A",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created admin user %s\n", *username)
}
