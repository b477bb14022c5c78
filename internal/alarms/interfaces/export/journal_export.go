package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"groundstation-safety/internal/alarms/infrastructure/journal"
)

// Period is the time range an export covers.
type Period struct {
	From time.Time
	To   time.Time
}

// BuildJournalPDF renders the notification journal as a PDF report.
func BuildJournalPDF(period Period, entries []journal.Entry) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Safety Notification Journal")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("From: %s", period.From.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("To: %s", period.To.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Notifications: %d", len(entries)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Critical: %d", countSeverity(entries, "critical")))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(40, 6, "Raised", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Severity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "Condition", "1", 0, "C", false, 0, "")
	pdf.CellFormat(120, 6, "Message", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Dismissed", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	for _, entry := range entries {
		pdf.CellFormat(40, 6, entry.CreatedAt.UTC().Format("2006-01-02 15:04:05"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, string(entry.Severity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(55, 6, entry.Condition, "1", 0, "L", false, 0, "")
		pdf.CellFormat(120, 6, truncate(messageOf(entry), 90), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, dismissedAt(entry, "2006-01-02 15:04:05"), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildJournalXLSX renders the notification journal as a workbook.
func BuildJournalXLSX(period Period, entries []journal.Entry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	entriesSheet := "notifications"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(entriesSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Safety Notification Journal")
	_ = f.SetCellValue(summarySheet, "A3", "From")
	_ = f.SetCellValue(summarySheet, "B3", period.From.UTC().Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A4", "To")
	_ = f.SetCellValue(summarySheet, "B4", period.To.UTC().Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "Notifications")
	_ = f.SetCellValue(summarySheet, "B5", len(entries))
	_ = f.SetCellValue(summarySheet, "A6", "Critical")
	_ = f.SetCellValue(summarySheet, "B6", countSeverity(entries, "critical"))

	headers := []string{"ID", "Raised", "Severity", "Kind", "Condition", "Title", "Message", "Dismissable", "Dismissed"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(entriesSheet, cell, h)
	}
	for i, entry := range entries {
		row := i + 2
		values := []any{
			entry.ID,
			entry.CreatedAt.UTC().Format(time.RFC3339),
			string(entry.Severity),
			string(entry.Kind),
			entry.Condition,
			entry.Title,
			entry.Message,
			entry.Dismissable,
			dismissedAt(entry, time.RFC3339),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(entriesSheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func countSeverity(entries []journal.Entry, severity string) int {
	n := 0
	for _, entry := range entries {
		if string(entry.Severity) == severity {
			n++
		}
	}
	return n
}

func messageOf(entry journal.Entry) string {
	if entry.Title == "" {
		return entry.Message
	}
	return entry.Title + " " + entry.Message
}

func dismissedAt(entry journal.Entry, layout string) string {
	if entry.DismissedAt == nil {
		return ""
	}
	return entry.DismissedAt.UTC().Format(layout)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
