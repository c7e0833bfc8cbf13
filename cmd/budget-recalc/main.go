// budget-recalc rebuilds the cost-code budget counters from the budget entry
// audit rows. Run it after manual data repair or when a counter is suspected
// to have drifted from its entries.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  go run ./cmd/budget-recalc [-business-id <uuid>] [-dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/buildledger/procure_backend/config"
	"github.com/buildledger/procure_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func main() {
	businessId := flag.String("business-id", "", "Optional: recalc only one business. If empty, recalcs all.")
	dryRun := flag.Bool("dry-run", false, "Report drift without writing")
	flag.Parse()

	ctx := context.Background()
	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	var budgets []models.CostCodeBudget
	query := db.WithContext(ctx).Model(&models.CostCodeBudget{})
	if strings.TrimSpace(*businessId) != "" {
		query = query.Where("business_id = ?", strings.TrimSpace(*businessId))
	}
	if err := query.Find(&budgets).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to list budgets: %v\n", err)
		os.Exit(1)
	}

	drifted := 0
	for _, budget := range budgets {
		var entries []models.BudgetEntry
		err := db.WithContext(ctx).
			Where("business_id = ? AND cost_code_budget_id = ?", budget.BusinessId, budget.ID).
			Order("id").
			Find(&entries).Error
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load entries for budget %d: %v\n", budget.ID, err)
			os.Exit(1)
		}

		entryById := make(map[int]models.BudgetEntry, len(entries))
		for _, entry := range entries {
			entryById[entry.ID] = entry
		}

		var allocated, committed, invoiced decimal.Decimal
		for _, entry := range entries {
			switch entry.EntryType {
			case models.BudgetEntryTypeAllocation:
				allocated = allocated.Add(entry.Amount)
			case models.BudgetEntryTypeCommitment:
				committed = committed.Add(entry.Amount)
			case models.BudgetEntryTypeInvoice:
				invoiced = invoiced.Add(entry.Amount)
			case models.BudgetEntryTypeReversal:
				target := reversalTarget(entry, entryById)
				switch target {
				case models.BudgetEntryTypeAllocation:
					allocated = allocated.Add(entry.Amount)
				case models.BudgetEntryTypeCommitment:
					committed = committed.Add(entry.Amount)
				default:
					invoiced = invoiced.Add(entry.Amount)
				}
			}
		}

		if budget.AllocatedAmount.Equal(allocated) &&
			budget.CommittedAmount.Equal(committed) &&
			budget.InvoicedAmount.Equal(invoiced) {
			continue
		}
		drifted++

		logger.WithFields(logrus.Fields{
			"budget_id":     budget.ID,
			"business_id":   budget.BusinessId,
			"cost_code":     budget.CostCode,
			"old_allocated": budget.AllocatedAmount.String(),
			"new_allocated": allocated.String(),
			"old_committed": budget.CommittedAmount.String(),
			"new_committed": committed.String(),
			"old_invoiced":  budget.InvoicedAmount.String(),
			"new_invoiced":  invoiced.String(),
		}).Warn("budget counters drifted from entries")

		if *dryRun {
			continue
		}
		err = db.WithContext(ctx).Model(&models.CostCodeBudget{}).
			Where("id = ?", budget.ID).
			Updates(map[string]interface{}{
				"allocated_amount": allocated,
				"committed_amount": committed,
				"invoiced_amount":  invoiced,
			}).Error
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to update budget %d: %v\n", budget.ID, err)
			os.Exit(1)
		}
	}

	fmt.Printf("checked %d budgets, %d drifted", len(budgets), drifted)
	if *dryRun {
		fmt.Print(" (dry run, nothing written)")
	}
	fmt.Println()
}

// reversalTarget resolves which counter a reversal entry belongs to, via its
// reversed entry when recorded, else by reference type.
func reversalTarget(entry models.BudgetEntry, entryById map[int]models.BudgetEntry) models.BudgetEntryType {
	if entry.ReversedEntryId != nil {
		if original, ok := entryById[*entry.ReversedEntryId]; ok {
			return original.EntryType
		}
	}
	if entry.ReferenceType == "import_run" {
		return models.BudgetEntryTypeCommitment
	}
	return models.BudgetEntryTypeInvoice
}
