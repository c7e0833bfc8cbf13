package models

import (
	"testing"

	"github.com/buildledger/procure_backend/utils"
	"github.com/xuri/excelize/v2"
)

func validImportLine() MaterialImportLine {
	return MaterialImportLine{
		RowNumber:    2,
		MaterialName: "Rebar #4",
		QuantityRaw:  "1,250",
		Unit:         "ton",
		CostCode:     "03-2000",
		Category:     "Reinforcement",
	}
}

func TestValidateImportLine_Valid(t *testing.T) {
	line := validImportLine()
	lineErrors, _ := ValidateImportLine(&line, []string{"03-2000", "03-3000"})
	if len(lineErrors) != 0 {
		t.Fatalf("expected no errors, got %+v", lineErrors)
	}
	if !line.Quantity.Equal(dec("1250")) {
		t.Fatalf("expected parsed quantity 1250, got %s", line.Quantity)
	}
}

func TestValidateImportLine_HardErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*MaterialImportLine)
		code   ImportErrorCode
	}{
		{"missing name", func(l *MaterialImportLine) { l.MaterialName = " " }, ImportErrorMissingField},
		{"missing unit", func(l *MaterialImportLine) { l.Unit = "" }, ImportErrorMissingField},
		{"missing quantity", func(l *MaterialImportLine) { l.QuantityRaw = "" }, ImportErrorMissingField},
		{"non-numeric quantity", func(l *MaterialImportLine) { l.QuantityRaw = "a lot" }, ImportErrorNonNumericQty},
		{"negative quantity", func(l *MaterialImportLine) { l.QuantityRaw = "-5" }, ImportErrorNegativeQty},
		{"unknown unit", func(l *MaterialImportLine) { l.Unit = "bunch" }, ImportErrorUnknownUnit},
		{"unknown cost code", func(l *MaterialImportLine) { l.CostCode = "99-9999" }, ImportErrorUnknownCostCode},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line := validImportLine()
			tc.mutate(&line)
			lineErrors, _ := ValidateImportLine(&line, []string{"03-2000"})
			found := false
			for _, lineError := range lineErrors {
				if lineError.Code == tc.code {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected error code %s, got %+v", tc.code, lineErrors)
			}
		})
	}
}

func TestValidateImportLine_CostCodeSuggestion(t *testing.T) {
	line := validImportLine()
	line.CostCode = "03-200" // one edit away from 03-2000
	lineErrors, suggestions := ValidateImportLine(&line, []string{"03-2000", "16-1000"})

	if len(lineErrors) != 1 || lineErrors[0].Code != ImportErrorUnknownCostCode {
		t.Fatalf("expected unknown cost code error, got %+v", lineErrors)
	}
	found := false
	for _, suggestion := range suggestions {
		if suggestion.Kind == SuggestionKindCostCode && suggestion.Value == "03-2000" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected nearest cost code suggestion 03-2000, got %+v", suggestions)
	}
}

func TestValidateImportLine_NoSuggestionWhenTooFar(t *testing.T) {
	line := validImportLine()
	line.CostCode = "ZZZZZZZZZZ"
	_, suggestions := ValidateImportLine(&line, []string{"03-2000"})
	for _, suggestion := range suggestions {
		if suggestion.Kind == SuggestionKindCostCode {
			t.Fatalf("expected no cost code suggestion for distant input, got %+v", suggestions)
		}
	}
}

func TestValidateImportLine_CategoryInference(t *testing.T) {
	line := validImportLine()
	line.MaterialName = "Ready-mix concrete 4000psi"
	line.Category = ""
	lineErrors, suggestions := ValidateImportLine(&line, []string{"03-2000"})
	if len(lineErrors) != 0 {
		t.Fatalf("suggestions must not affect validity, got errors %+v", lineErrors)
	}
	found := false
	for _, suggestion := range suggestions {
		if suggestion.Kind == SuggestionKindCategory && suggestion.Value == "Concrete" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected inferred category Concrete, got %+v", suggestions)
	}
}

func TestSummarizeImportLines(t *testing.T) {
	// five lines, one invalid (missing unit)
	lines := make([]MaterialImportLine, 0, 5)
	for i := 0; i < 5; i++ {
		line := validImportLine()
		line.RowNumber = i + 2
		if i == 3 {
			line.Unit = ""
		}
		lineErrors, _ := ValidateImportLine(&line, []string{"03-2000"})
		if len(lineErrors) == 0 {
			line.Valid = utils.NewTrue()
		} else {
			line.Valid = utils.NewFalse()
		}
		lines = append(lines, line)
	}

	summary := SummarizeImportLines(lines)
	if summary.TotalLines != 5 || summary.ValidLines != 4 || summary.InvalidLines != 1 {
		t.Fatalf("expected 5/4/1, got %+v", summary)
	}
}

func TestParseImportSheet(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Material", "Quantity", "Unit", "Unit Cost", "Cost Code", "Category", "Notes"},
		{"Rebar #4", "1250", "ton", "850", "03-2000", "Reinforcement", ""},
		{"2x4 lumber", "300", "ea", "6.50", "06-1000", "", "framing"},
	}
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				t.Fatal(err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	lines, err := parseImportSheet(buf.Bytes())
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].MaterialName != "Rebar #4" || lines[0].Unit != "ton" || lines[0].CostCode != "03-2000" {
		t.Fatalf("first line parsed wrong: %+v", lines[0])
	}
	if !lines[0].UnitCost.Equal(dec("850")) {
		t.Fatalf("expected unit cost 850, got %s", lines[0].UnitCost)
	}
	if lines[1].Notes != "framing" {
		t.Fatalf("expected notes column parsed, got %+v", lines[1])
	}
	if lines[0].RowNumber != 2 || lines[1].RowNumber != 3 {
		t.Fatalf("row numbers must be sheet rows: %d, %d", lines[0].RowNumber, lines[1].RowNumber)
	}
}

func TestParseImportSheet_RejectsEmptyWorkbook(t *testing.T) {
	f := excelize.NewFile()
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parseImportSheet(buf.Bytes()); err == nil {
		t.Fatal("expected empty workbook to be rejected")
	}
}

func TestParseImportSheet_RejectsGarbage(t *testing.T) {
	if _, err := parseImportSheet([]byte("not a workbook")); err == nil {
		t.Fatal("expected garbage bytes to be rejected")
	}
}
