package reports

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputeForecastRow_UnderBudget(t *testing.T) {
	row := ComputeForecastRow(ContractForecastInput{
		CostCode:      "03-2000",
		CostBudget:    dec("100000"),
		Committed:     dec("60000"),
		RevenueBudget: dec("100000"),
	})

	if !row.SpentCommittedTotal.Equal(dec("60000")) {
		t.Fatalf("C: expected 60000, got %s", row.SpentCommittedTotal)
	}
	if !row.CostToComplete.Equal(dec("40000")) {
		t.Fatalf("G: expected A-C=40000, got %s", row.CostToComplete)
	}
	if !row.CostForecast.Equal(dec("100000")) {
		t.Fatalf("I: expected C+G+H=100000, got %s", row.CostForecast)
	}
	if !row.RevenueForecast.Equal(dec("100000")) {
		t.Fatalf("M: expected J+L=100000, got %s", row.RevenueForecast)
	}
	if !row.ProjectedGainLoss.Equal(dec("0")) {
		t.Fatalf("N: expected M-I=0, got %s", row.ProjectedGainLoss)
	}
}

func TestComputeForecastRow_OverCommittedClampsCostToComplete(t *testing.T) {
	row := ComputeForecastRow(ContractForecastInput{
		CostCode:      "03-3000",
		CostBudget:    dec("100000"),
		Committed:     dec("130000"),
		RevenueBudget: dec("100000"),
	})

	if !row.CostToComplete.Equal(dec("0")) {
		t.Fatalf("G must clamp at zero when committed exceeds budget, got %s", row.CostToComplete)
	}
	if !row.CostForecast.Equal(dec("130000")) {
		t.Fatalf("I: expected 130000, got %s", row.CostForecast)
	}
	if !row.ProjectedGainLoss.Equal(dec("-30000")) {
		t.Fatalf("N: expected projected loss -30000, got %s", row.ProjectedGainLoss)
	}
}

func TestComputeForecastRow_UnpostedBuckets(t *testing.T) {
	row := ComputeForecastRow(ContractForecastInput{
		CostCode:             "16-1000",
		CostBudget:           dec("50000"),
		Committed:            dec("20000"),
		UnpostedInternalCost: dec("3000"),
		UnpostedExternalCost: dec("2000"),
		AdvanceSCOs:          dec("1000"),
		RevenueBudget:        dec("50000"),
		UnpostedRevenue:      dec("5000"),
	})

	if !row.UnpostedCostAdjusted.Equal(dec("5000")) {
		t.Fatalf("F: expected D+E=5000, got %s", row.UnpostedCostAdjusted)
	}
	if !row.CostToCompleteUnposted.Equal(dec("4000")) {
		t.Fatalf("H: expected F-advance=4000, got %s", row.CostToCompleteUnposted)
	}
	// I = C + G + H = 20000 + 30000 + 4000
	if !row.CostForecast.Equal(dec("54000")) {
		t.Fatalf("I: expected 54000, got %s", row.CostForecast)
	}
	// M = J + L = 50000 + 5000
	if !row.RevenueForecast.Equal(dec("55000")) {
		t.Fatalf("M: expected 55000, got %s", row.RevenueForecast)
	}
	if !row.ProjectedGainLoss.Equal(dec("1000")) {
		t.Fatalf("N: expected 1000, got %s", row.ProjectedGainLoss)
	}
}

func TestComputeForecastRow_AdvanceScosFloorAtZero(t *testing.T) {
	row := ComputeForecastRow(ContractForecastInput{
		CostCode:    "09-9000",
		CostBudget:  dec("10000"),
		Committed:   dec("1000"),
		AdvanceSCOs: dec("500"),
	})
	if !row.CostToCompleteUnposted.Equal(dec("0")) {
		t.Fatalf("H must floor at zero, got %s", row.CostToCompleteUnposted)
	}
}

func TestExportContractForecastXlsx(t *testing.T) {
	rows := []ContractForecastRow{
		ComputeForecastRow(ContractForecastInput{
			CostCode:      "03-2000",
			CostBudget:    dec("100000"),
			Committed:     dec("60000"),
			RevenueBudget: dec("100000"),
		}),
	}
	f, err := ExportContractForecastXlsx(rows)
	if err != nil {
		t.Fatal(err)
	}
	sheet := f.GetSheetName(0)

	header, err := f.GetCellValue(sheet, "A1")
	if err != nil || header != "Cost Code" {
		t.Fatalf("expected header in A1, got %q (%v)", header, err)
	}
	costCode, err := f.GetCellValue(sheet, "A2")
	if err != nil || costCode != "03-2000" {
		t.Fatalf("expected cost code in A2, got %q (%v)", costCode, err)
	}
}
