package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/i474232898/sunsavvy/internal/solar"
)

const (
	estimationsSheet = "Estimations"
	summarySheet     = "Summary"
	// ContentType is the MIME type of the exported workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var estimationHeader = []any{
	"ID", "Created (UTC)", "Address", "City", "State", "Latitude", "Longitude",
	"Monthly kWh", "Roof m²", "Irradiance kWh/m²/day", "Irradiance Source",
	"Panels", "Capacity kW", "Annual Energy kWh", "Total Cost", "Annual Savings",
	"Payback Years", "ROI %",
}

// WriteEstimations renders records and their summary as an XLSX workbook.
func WriteEstimations(w io.Writer, records []solar.EstimationRecord, summary solar.RecordSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", estimationsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetRow(estimationsSheet, "A1", &estimationHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(estimationHeader))
	if err := f.SetCellStyle(estimationsSheet, "A1", lastCol+"1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, r := range records {
		row := []any{
			r.ID, r.CreatedAt.UTC().Format("2006-01-02 15:04"), r.Address, r.City, r.State,
			r.Latitude, r.Longitude, r.MonthlyKWh, r.RoofAreaSqM, r.Irradiance, r.IrradianceSource,
			r.PanelCount, r.SystemCapacityKW, r.AnnualEnergyKWh, r.TotalCost, r.AnnualSavings,
			r.PaybackYears, r.ROIPercent,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(estimationsSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	summaryRows := [][]any{
		{"Estimations", summary.Count},
		{"Total Annual Savings", summary.TotalAnnualSavings},
	}
	for i, row := range summaryRows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", "A2", bold); err != nil {
		return fmt.Errorf("style summary: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
