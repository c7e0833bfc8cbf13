package reports

import (
	"context"
	"errors"
	"fmt"

	"github.com/buildledger/procure_backend/config"
	"github.com/buildledger/procure_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ContractForecastRow is one cost code of the CMiC-style contract forecast.
// Columns keep the CMiC letters so the exported sheet reads the same as the
// accounting team's template.
type ContractForecastRow struct {
	CostCode              string          `json:"cost_code"`
	CostBudget            decimal.Decimal `json:"cost_budget"`                // A
	SpentCommittedLessAdv decimal.Decimal `json:"spent_committed_less_adv"`   // B
	SpentCommittedTotal   decimal.Decimal `json:"spent_committed_total"`      // C
	CurrentPeriodCost     decimal.Decimal `json:"current_period_cost"`
	UnpostedInternalCost  decimal.Decimal `json:"unposted_internal_cost"`     // D
	UnpostedExternalCost  decimal.Decimal `json:"unposted_external_cost"`     // E
	UnpostedCostAdjusted  decimal.Decimal `json:"unposted_cost_adjusted"`     // F
	CostToComplete        decimal.Decimal `json:"cost_to_complete"`           // G
	CostToCompleteUnposted decimal.Decimal `json:"cost_to_complete_unposted"` // H
	CostForecast          decimal.Decimal `json:"cost_forecast"`              // I
	RevenueBudget         decimal.Decimal `json:"revenue_budget"`             // J
	UnpostedRevenue       decimal.Decimal `json:"unposted_revenue"`           // K
	UnpostedRevenueAdj    decimal.Decimal `json:"unposted_revenue_adj"`       // L
	RevenueForecast       decimal.Decimal `json:"revenue_forecast"`           // M
	ProjectedGainLoss     decimal.Decimal `json:"projected_gain_loss"`        // N
}

// ContractForecastInput is the raw per-cost-code figures the derived columns
// are computed from.
type ContractForecastInput struct {
	CostCode             string
	CostBudget           decimal.Decimal // original budget + posted changes
	Committed            decimal.Decimal
	SpentOutside         decimal.Decimal
	AdvanceSCOs          decimal.Decimal
	SCOsOnUnposted       decimal.Decimal
	CurrentPeriodCost    decimal.Decimal
	UnpostedInternalCost decimal.Decimal
	UnpostedExternalCost decimal.Decimal
	RevenueBudget        decimal.Decimal
	UnpostedRevenue      decimal.Decimal
}

// ComputeForecastRow derives the forecast columns:
//
//	C = committed + spent outside commitment
//	B = C - SCOs issued on unposted changes
//	F = D + E
//	G = A - C, zeroed when A < B, floored at zero
//	H = F - advance SCOs, floored at zero
//	I = C + G + H
//	M = J + L
//	N = M - I
func ComputeForecastRow(input ContractForecastInput) ContractForecastRow {
	c := input.Committed.Add(input.SpentOutside)
	b := c.Sub(input.SCOsOnUnposted)
	f := input.UnpostedInternalCost.Add(input.UnpostedExternalCost)

	g := input.CostBudget.Sub(c)
	if input.CostBudget.LessThan(b) || g.IsNegative() {
		g = decimal.Zero
	}

	h := f.Sub(input.AdvanceSCOs)
	if h.IsNegative() {
		h = decimal.Zero
	}

	i := c.Add(g).Add(h)
	l := input.UnpostedRevenue
	m := input.RevenueBudget.Add(l)

	return ContractForecastRow{
		CostCode:               input.CostCode,
		CostBudget:             input.CostBudget,
		SpentCommittedLessAdv:  b,
		SpentCommittedTotal:    c,
		CurrentPeriodCost:      input.CurrentPeriodCost,
		UnpostedInternalCost:   input.UnpostedInternalCost,
		UnpostedExternalCost:   input.UnpostedExternalCost,
		UnpostedCostAdjusted:   f,
		CostToComplete:         g,
		CostToCompleteUnposted: h,
		CostForecast:           i,
		RevenueBudget:          input.RevenueBudget,
		UnpostedRevenue:        input.UnpostedRevenue,
		UnpostedRevenueAdj:     l,
		RevenueForecast:        m,
		ProjectedGainLoss:      m.Sub(i),
	}
}

type forecastSourceRow struct {
	CostCode        string          `json:"cost_code"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	CommittedAmount decimal.Decimal `json:"committed_amount"`
	InvoicedAmount  decimal.Decimal `json:"invoiced_amount"`
}

// GetContractForecastReport builds one row per cost code of the project.
// The budget counters drive the cost side; pending-change and SCO buckets
// stay zero until change orders land in this system.
func GetContractForecastReport(ctx context.Context, projectId int) ([]ContractForecastRow, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()

	sql := `
SELECT
    ccb.cost_code,
    ccb.allocated_amount,
    ccb.committed_amount,
    ccb.invoiced_amount
FROM
    cost_code_budgets AS ccb
WHERE
    ccb.business_id = ?
    AND ccb.project_id = ?
ORDER BY
    ccb.cost_code;
`
	var sources []forecastSourceRow
	if err := db.WithContext(ctx).Raw(sql, businessId, projectId).Scan(&sources).Error; err != nil {
		return nil, err
	}

	rows := make([]ContractForecastRow, 0, len(sources))
	for _, source := range sources {
		spentOutside := source.InvoicedAmount.Sub(source.CommittedAmount)
		if spentOutside.IsNegative() {
			spentOutside = decimal.Zero
		}
		rows = append(rows, ComputeForecastRow(ContractForecastInput{
			CostCode:     source.CostCode,
			CostBudget:   source.AllocatedAmount,
			Committed:    source.CommittedAmount,
			SpentOutside: spentOutside,
			// revenue budget mirrors the cost budget until revenue
			// tracking is split out
			RevenueBudget: source.AllocatedAmount,
		}))
	}
	return rows, nil
}

var contractForecastHeaders = []string{
	"Cost Code",
	"A. Current Cost Budget",
	"B. Spent/Committed (Less Advance SCOs)",
	"C. Spent/Committed Total",
	"Current Period Cost",
	"D. Unposted Internal PCI Cost Budget",
	"E. Unposted External PCI Cost Budget",
	"F. Unposted Int & Ext PCI Cost Budget Adjusted",
	"G. Cost to Complete",
	"H. Cost To Complete Unposted PCIs",
	"I. Cost Forecast",
	"J. Current Revenue Budget",
	"K. Unposted PCI Revenue Budget",
	"L. Unposted PCI Revenue Budget Adjusted",
	"M. Revenue Forecast",
	"N. Projected Gain/Loss",
}

// ExportContractForecastXlsx renders the report as a workbook.
func ExportContractForecastXlsx(rows []ContractForecastRow) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	for col, header := range contractForecastHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		f.SetCellValue(sheet, cell, header)
	}

	for i, row := range rows {
		values := []interface{}{
			row.CostCode,
			row.CostBudget.InexactFloat64(),
			row.SpentCommittedLessAdv.InexactFloat64(),
			row.SpentCommittedTotal.InexactFloat64(),
			row.CurrentPeriodCost.InexactFloat64(),
			row.UnpostedInternalCost.InexactFloat64(),
			row.UnpostedExternalCost.InexactFloat64(),
			row.UnpostedCostAdjusted.InexactFloat64(),
			row.CostToComplete.InexactFloat64(),
			row.CostToCompleteUnposted.InexactFloat64(),
			row.CostForecast.InexactFloat64(),
			row.RevenueBudget.InexactFloat64(),
			row.UnpostedRevenue.InexactFloat64(),
			row.UnpostedRevenueAdj.InexactFloat64(),
			row.RevenueForecast.InexactFloat64(),
			row.ProjectedGainLoss.InexactFloat64(),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			f.SetCellValue(sheet, cell, value)
		}
	}
	return f, nil
}

func ContractForecastFilename(projectId int) string {
	return fmt.Sprintf("contract_forecast_project_%d.xlsx", projectId)
}
