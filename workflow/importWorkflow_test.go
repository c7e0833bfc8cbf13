package workflow

import (
	"errors"
	"testing"

	"github.com/buildledger/procure_backend/models"
	"github.com/buildledger/procure_backend/utils"
)

func reviewRun(lines ...models.MaterialImportLine) models.MaterialImportRun {
	return models.MaterialImportRun{
		Status: models.ImportRunStatusReview,
		Lines:  lines,
	}
}

func validLine(costCode string) models.MaterialImportLine {
	return models.MaterialImportLine{
		MaterialName: "Rebar #4",
		Quantity:     dec("10"),
		Unit:         "ton",
		UnitCost:     dec("850"),
		CostCode:     costCode,
		Valid:        utils.NewTrue(),
	}
}

func TestRunApproval_SkipsInvalidLines(t *testing.T) {
	invalid := validLine("03-2000")
	invalid.Valid = utils.NewFalse()
	run := reviewRun(validLine("03-2000"), invalid, validLine("16-1000"))

	var created []string
	approved := false
	count, err := runApproval(&run, approvalSteps{
		createMaterial: func(line models.MaterialImportLine) error {
			created = append(created, line.CostCode)
			return nil
		},
		commitBudget: func(costCode string, line models.MaterialImportLine) error { return nil },
		setApproved:  func() error { approved = true; return nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected 2 approved lines, got %d", count)
	}
	if len(created) != 2 {
		t.Fatalf("invalid line must not produce a material, created %v", created)
	}
	if !approved {
		t.Fatal("run should be flipped to approved")
	}
}

func TestRunApproval_LineWithoutCostCodeSkipsBudget(t *testing.T) {
	run := reviewRun(validLine(""), validLine("03-2000"))

	var committed []string
	count, err := runApproval(&run, approvalSteps{
		createMaterial: func(line models.MaterialImportLine) error { return nil },
		commitBudget: func(costCode string, line models.MaterialImportLine) error {
			committed = append(committed, costCode)
			return nil
		},
		setApproved: func() error { return nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("uncoded line still counts as approved, got %d", count)
	}
	if len(committed) != 1 || committed[0] != "03-2000" {
		t.Fatalf("only the coded line commits budget, got %v", committed)
	}
}

func TestRunApproval_BudgetFailureAbortsBeforeApproval(t *testing.T) {
	run := reviewRun(validLine("03-2000"), validLine("16-1000"))

	approved := false
	_, err := runApproval(&run, approvalSteps{
		createMaterial: func(line models.MaterialImportLine) error { return nil },
		commitBudget: func(costCode string, line models.MaterialImportLine) error {
			if costCode == "16-1000" {
				return errors.New("budget row locked")
			}
			return nil
		},
		setApproved: func() error { approved = true; return nil },
	})
	if err == nil {
		t.Fatal("expected the budget failure to surface")
	}
	if approved {
		t.Fatal("a failed line must stop the run from being approved")
	}
}

func TestRunApproval_MaterialFailureAborts(t *testing.T) {
	run := reviewRun(validLine("03-2000"))

	approved := false
	count, err := runApproval(&run, approvalSteps{
		createMaterial: func(line models.MaterialImportLine) error { return errors.New("insert failed") },
		commitBudget:   func(costCode string, line models.MaterialImportLine) error { return nil },
		setApproved:    func() error { approved = true; return nil },
	})
	if err == nil {
		t.Fatal("expected the material failure to surface")
	}
	if count != 0 || approved {
		t.Fatalf("nothing may land after a failure: count=%d approved=%v", count, approved)
	}
}
