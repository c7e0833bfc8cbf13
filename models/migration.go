package models

import (
	"log"

	"github.com/buildledger/procure_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{}, &User{},
		&Vendor{}, &Project{}, &CostCode{},
		&PurchaseOrder{}, &PurchaseOrderLine{},
		&DeliveryEvent{}, &DeliveryLine{},
		&Invoice{}, &InvoiceLine{}, &InvoiceMatchResult{}, &InvoiceMatchException{},
		&ToleranceSetting{},
		&MaterialImportRun{}, &MaterialImportLine{}, &ImportLineError{}, &ImportSuggestion{},
		&ProjectMaterial{},
		&CostCodeBudget{}, &BudgetEntry{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
