package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Service turns the processing log into an XLSX workbook.
type Service struct {
	log    *ProcessingLog
	logger *slog.Logger
}

func NewService(log *ProcessingLog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{log: log, logger: logger}
}

// ExportXLSX returns the workbook bytes for rows within the date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> every row.
func (s *Service) ExportXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	var fromDate, toDate *time.Time
	if from != nil {
		f := dateOnly(*from)
		fromDate = &f
	}
	if to != nil {
		t := dateOnly(*to)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		t := dateOnly(time.Now())
		toDate = &t
	}

	all, err := s.log.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("read processing log: %w", err)
	}
	rows := all[:0:0]
	for _, r := range all {
		d := dateOnly(r.Timestamp)
		if fromDate != nil && d.Before(*fromDate) {
			continue
		}
		if toDate != nil && d.After(*toDate) {
			continue
		}
		rows = append(rows, r)
	}

	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Verwerking"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{
		"Processed",
		"Filename",
		"Document Type",
		"Confidence",
		"Needs Review",
		"Text Length",
		"Fields Complete",
		"Issues",
		"Warnings",
		"Record",
		"Status",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheet, "A1", "K1", style)
	}

	for i, r := range rows {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		review := "No"
		if r.NeedsReview {
			review = "Yes"
		}
		write(1, r.Timestamp.Format(timestampLayout))
		write(2, r.Filename)
		write(3, r.DocumentType)
		write(4, r.Score)
		write(5, review)
		write(6, r.TextLength)
		write(7, r.Completeness)
		write(8, truncate(strings.Join(r.Issues, "; "), 140))
		write(9, truncate(strings.Join(r.Warnings, "; "), 140))
		write(10, r.JSONPath)
		write(11, string(r.Status))
	}
	if pct, err := f.NewStyle(&excelize.Style{NumFmt: 9}); err == nil && len(rows) > 0 {
		_ = f.SetCellStyle(sheet, "G2", fmt.Sprintf("G%d", len(rows)+1), pct)
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 20) // timestamp
	_ = f.SetColWidth(sheet, "B", "B", 40) // filename
	_ = f.SetColWidth(sheet, "C", "G", 14)
	_ = f.SetColWidth(sheet, "H", "I", 48) // issues, warnings
	_ = f.SetColWidth(sheet, "J", "J", 44) // record name

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(rows),
		"skipped", len(all)-len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
