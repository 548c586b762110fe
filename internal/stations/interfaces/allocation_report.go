package interfaces

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	stations "mobbi-manager/internal/stations/domain"
)

// AreaReport is the allocation state of one area at a point in time.
type AreaReport struct {
	Area        stations.Area
	Budget      stations.BudgetSummary
	Partners    []stations.Partner
	GeneratedAt time.Time
}

// BuildAreaReportPDF renders the area allocation report as PDF.
func BuildAreaReportPDF(report AreaReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, tr("Station Allocation Report"))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Area: %s (%s)", report.Area.Name, report.Area.ID)))
	pdf.Ln(5)
	if report.Area.Region != "" {
		pdf.Cell(0, 6, tr(fmt.Sprintf("Region: %s", report.Area.Region)))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.Cell(0, 6, fmt.Sprintf("Station budget: %d", report.Budget.Total))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Allocated: %d", report.Budget.Committed))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Available: %d", report.Budget.Available))
	pdf.Ln(5)
	if len(report.Budget.Malformed) > 0 {
		pdf.Cell(0, 6, tr(fmt.Sprintf("Unreadable allocations: %s", strings.Join(report.Budget.Malformed, ", "))))
		pdf.Ln(5)
	}
	pdf.Ln(3)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Partner", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Requested", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Allocated", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Allocated at", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, partner := range report.Partners {
		pdf.CellFormat(60, 6, tr(partner.Name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, string(partner.Status), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", partner.RequestedQuantity()), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, allocatedCell(partner), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, formatDate(partner.AllocatedAt), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildAreaReportXLSX renders the area allocation report as XLSX with a
// summary sheet, a partner sheet and one row per granted station line.
func BuildAreaReportXLSX(report AreaReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	partnersSheet := "partners"
	grantsSheet := "grants"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(partnersSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(grantsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Station Allocation Report")
	_ = f.SetCellValue(summarySheet, "A3", "Area")
	_ = f.SetCellValue(summarySheet, "B3", report.Area.Name)
	_ = f.SetCellValue(summarySheet, "A4", "Area ID")
	_ = f.SetCellValue(summarySheet, "B4", report.Area.ID)
	_ = f.SetCellValue(summarySheet, "A5", "Region")
	_ = f.SetCellValue(summarySheet, "B5", report.Area.Region)
	_ = f.SetCellValue(summarySheet, "A6", "Station budget")
	_ = f.SetCellValue(summarySheet, "B6", report.Budget.Total)
	_ = f.SetCellValue(summarySheet, "A7", "Allocated")
	_ = f.SetCellValue(summarySheet, "B7", report.Budget.Committed)
	_ = f.SetCellValue(summarySheet, "A8", "Available")
	_ = f.SetCellValue(summarySheet, "B8", report.Budget.Available)
	_ = f.SetCellValue(summarySheet, "A9", "Unreadable allocations")
	_ = f.SetCellValue(summarySheet, "B9", strings.Join(report.Budget.Malformed, ", "))
	_ = f.SetCellValue(summarySheet, "A10", "Generated")
	_ = f.SetCellValue(summarySheet, "B10", report.GeneratedAt.Format(time.RFC3339))

	for i, header := range []string{"Partner ID", "Partner", "Status", "Requested", "Allocated", "Allocated at"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(partnersSheet, cell, header)
	}
	for i, header := range []string{"Partner ID", "Model", "Color", "Quantity", "Serial numbers"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(grantsSheet, cell, header)
	}

	grantRow := 2
	for i, partner := range report.Partners {
		row := i + 2
		_ = f.SetCellValue(partnersSheet, fmt.Sprintf("A%d", row), partner.ID)
		_ = f.SetCellValue(partnersSheet, fmt.Sprintf("B%d", row), partner.Name)
		_ = f.SetCellValue(partnersSheet, fmt.Sprintf("C%d", row), string(partner.Status))
		_ = f.SetCellValue(partnersSheet, fmt.Sprintf("D%d", row), partner.RequestedQuantity())
		_ = f.SetCellValue(partnersSheet, fmt.Sprintf("E%d", row), allocatedCell(partner))
		_ = f.SetCellValue(partnersSheet, fmt.Sprintf("F%d", row), formatDate(partner.AllocatedAt))

		for _, grant := range partner.Allocated {
			_ = f.SetCellValue(grantsSheet, fmt.Sprintf("A%d", grantRow), partner.ID)
			_ = f.SetCellValue(grantsSheet, fmt.Sprintf("B%d", grantRow), grant.ModelName)
			_ = f.SetCellValue(grantsSheet, fmt.Sprintf("C%d", grantRow), grant.ColorName)
			_ = f.SetCellValue(grantsSheet, fmt.Sprintf("D%d", grantRow), grant.Quantity)
			_ = f.SetCellValue(grantsSheet, fmt.Sprintf("E%d", grantRow), strings.Join(grant.SerialNumbers, ", "))
			grantRow++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func allocatedCell(partner stations.Partner) string {
	if partner.AllocationErr != nil {
		return "unreadable"
	}
	return fmt.Sprintf("%d", partner.AllocatedQuantity())
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
