package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/projectvak/contract-pipeline/constants"
	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/confidence"
	"github.com/projectvak/contract-pipeline/internal/storage"
)

const timestampLayout = "2006-01-02 15:04:05"

// Header is the first line of the processing log.
var Header = []string{
	"timestamp", "filename", "document_type", "confidence_score", "needs_review",
	"text_length", "fields_complete", "issues", "warnings", "json_path", "processing_status",
}

// Row is one terminal outcome.
type Row struct {
	Timestamp    time.Time
	Filename     string
	DocumentType string
	Score        float64
	NeedsReview  bool
	TextLength   int
	Completeness float64
	Issues       []string
	Warnings     []string
	JSONPath     string
	Status       constants.ProcessingStatus
}

// RowFromResult builds a row from a scored contract.
func RowFromResult(at time.Time, filename, docType string, res confidence.Result, jsonPath string, status constants.ProcessingStatus) Row {
	return Row{
		Timestamp:    at,
		Filename:     filename,
		DocumentType: docType,
		Score:        res.Score,
		NeedsReview:  res.NeedsReview,
		TextLength:   res.Metrics.TextLength,
		Completeness: res.Metrics.Completeness,
		Issues:       res.Issues,
		Warnings:     res.Warnings,
		JSONPath:     jsonPath,
		Status:       status,
	}
}

func (r Row) record() []string {
	review := "No"
	if r.NeedsReview {
		review = "Yes"
	}
	return []string{
		r.Timestamp.Format(timestampLayout),
		r.Filename,
		r.DocumentType,
		strconv.FormatFloat(r.Score, 'f', -1, 64),
		review,
		strconv.Itoa(r.TextLength),
		fmt.Sprintf("%.0f%%", r.Completeness*100),
		joinOrNone(r.Issues),
		joinOrNone(r.Warnings),
		r.JSONPath,
		string(r.Status),
	}
}

func parseRow(rec []string) (Row, error) {
	if len(rec) != len(Header) {
		return Row{}, fmt.Errorf("%w: %d columns", common.ErrInvalidInput, len(rec))
	}
	ts, err := time.ParseInLocation(timestampLayout, rec[0], time.Local)
	if err != nil {
		return Row{}, fmt.Errorf("%w: timestamp %q", common.ErrInvalidInput, rec[0])
	}
	score, _ := strconv.ParseFloat(rec[3], 64)
	textLen, _ := strconv.Atoi(rec[5])
	pct, _ := strconv.ParseFloat(strings.TrimSuffix(rec[6], "%"), 64)
	return Row{
		Timestamp:    ts,
		Filename:     rec[1],
		DocumentType: rec[2],
		Score:        score,
		NeedsReview:  rec[4] == "Yes",
		TextLength:   textLen,
		Completeness: pct / 100,
		Issues:       splitNone(rec[7]),
		Warnings:     splitNone(rec[8]),
		JSONPath:     rec[9],
		Status:       constants.ProcessingStatus(rec[10]),
	}, nil
}

// ProcessingLog is an append-only CSV kept in document storage. Each
// append downloads the file, adds one line and uploads it again.
type ProcessingLog struct {
	store  storage.Storage
	path   string
	logger *slog.Logger
}

func NewProcessingLog(store storage.Storage, path string, logger *slog.Logger) *ProcessingLog {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = constants.ProcessingLog
	}
	return &ProcessingLog{store: store, path: storage.Clean(path), logger: logger}
}

func (l *ProcessingLog) Path() string { return l.path }

// Ensure creates the log with its header when it does not exist.
func (l *ProcessingLog) Ensure(ctx context.Context) error {
	ok, err := l.store.Exists(ctx, l.path)
	if err != nil {
		return fmt.Errorf("check processing log: %w", err)
	}
	if ok {
		return nil
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(Header)
	w.Flush()
	if err := l.store.Upload(ctx, l.path, buf.Bytes(), true); err != nil {
		return fmt.Errorf("create processing log: %w", err)
	}
	l.logger.Info("processing_log.created", "path", l.path)
	return nil
}

// Append adds row to the end of the log.
func (l *ProcessingLog) Append(ctx context.Context, row Row) error {
	if err := l.Ensure(ctx); err != nil {
		return err
	}
	current, err := l.store.Download(ctx, l.path)
	if err != nil {
		return fmt.Errorf("read processing log: %w", err)
	}
	if len(current) > 0 && !bytes.HasSuffix(current, []byte("\n")) {
		current = append(current, '\n')
	}

	buf := bytes.NewBuffer(current)
	w := csv.NewWriter(buf)
	if err := w.Write(row.record()); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := l.store.Upload(ctx, l.path, buf.Bytes(), true); err != nil {
		return fmt.Errorf("write processing log: %w", err)
	}
	l.logger.Debug("processing_log.appended", "filename", row.Filename, "status", row.Status)
	return nil
}

// Rows returns every parseable row. A missing log has no rows.
func (l *ProcessingLog) Rows(ctx context.Context) ([]Row, error) {
	data, err := l.store.Download(ctx, l.path)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read processing log: %w", err)
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	recs, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parse processing log: %w", common.ErrInvalidInput, err)
	}

	var rows []Row
	for i, rec := range recs {
		if i == 0 && len(rec) > 0 && rec[0] == Header[0] {
			continue
		}
		row, err := parseRow(rec)
		if err != nil {
			l.logger.Warn("processing_log.row.skipped", "line", i+1, "error", err)
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, "; ")
}

func splitNone(s string) []string {
	if s == "" || s == "None" {
		return nil
	}
	return strings.Split(s, "; ")
}
