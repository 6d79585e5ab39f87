package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/projectvak/contract-pipeline/internal/common"
)

// MaxStoredText caps document_texts.full_text, in characters.
const MaxStoredText = 500000

type ContractRepository interface {
	UpsertContract(ctx context.Context, name string, data any) error
	PatchContractData(ctx context.Context, name string, data any) error
	GetContract(ctx context.Context, name string) (json.RawMessage, error)
	ListContractNames(ctx context.Context) ([]string, error)
}

type DocumentTextRepository interface {
	UpsertDocumentText(ctx context.Context, sourcePath, name, text string) error
	GetDocumentText(ctx context.Context, sourcePath string) (string, error)
}

type contractRepository struct {
	db     *DB
	now    func() time.Time
	logger *slog.Logger
}

func NewContractRepository(db *DB, logger *slog.Logger) ContractRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &contractRepository{db: db, now: time.Now, logger: logger}
}

// UpsertContract inserts the record or replaces its data when name exists.
func (r *contractRepository) UpsertContract(ctx context.Context, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: encode contract %s: %w", common.ErrInvalidInput, name, err)
	}
	now := r.now().UTC()
	query, args := r.db.builder().
		Insert(contractsTable.Name).
		Columns("name", "data", "created_at", "updated_at").
		Values(name, string(payload), now, now).
		OnConflict(
			entsql.ConflictColumns("name"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("data")
				u.SetExcluded("updated_at")
			}),
		).
		Query()
	if _, err := r.db.conn().ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("db.contract.upsert.failed", "name", name, "error", err)
		return fmt.Errorf("%w: upsert contract %s: %w", common.ErrDatabase, name, err)
	}
	r.logger.Debug("db.contract.upserted", "name", name, "bytes", len(payload))
	return nil
}

// PatchContractData replaces the data of an existing record.
func (r *contractRepository) PatchContractData(ctx context.Context, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: encode contract %s: %w", common.ErrInvalidInput, name, err)
	}
	query, args := r.db.builder().
		Update(contractsTable.Name).
		Set("data", string(payload)).
		Set("updated_at", r.now().UTC()).
		Where(entsql.EQ("name", name)).
		Query()
	res, err := r.db.conn().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: patch contract %s: %w", common.ErrDatabase, name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("contract %s: %w", name, common.ErrNotFound)
	}
	return nil
}

func (r *contractRepository) GetContract(ctx context.Context, name string) (json.RawMessage, error) {
	query, args := r.db.builder().
		Select("data").
		From(entsql.Table(contractsTable.Name)).
		Where(entsql.EQ("name", name)).
		Query()
	var data []byte
	err := r.db.conn().QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contract %s: %w", name, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get contract %s: %w", common.ErrDatabase, name, err)
	}
	return json.RawMessage(data), nil
}

func (r *contractRepository) ListContractNames(ctx context.Context) ([]string, error) {
	query, args := r.db.builder().
		Select("name").
		From(entsql.Table(contractsTable.Name)).
		OrderBy("name").
		Query()
	rows, err := r.db.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list contracts: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("%w: list contracts: %w", common.ErrDatabase, err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

type documentTextRepository struct {
	db     *DB
	now    func() time.Time
	logger *slog.Logger
}

func NewDocumentTextRepository(db *DB, logger *slog.Logger) DocumentTextRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentTextRepository{db: db, now: time.Now, logger: logger}
}

// UpsertDocumentText stores the extracted text keyed by source path. An
// empty text still writes the row so the path stays linked to its name.
func (r *documentTextRepository) UpsertDocumentText(ctx context.Context, sourcePath, name, text string) error {
	text = common.Truncate(text, MaxStoredText)
	query, args := r.db.builder().
		Insert(documentTextsTable.Name).
		Columns("source_path", "name", "full_text", "updated_at").
		Values(sourcePath, name, text, r.now().UTC()).
		OnConflict(
			entsql.ConflictColumns("source_path"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := r.db.conn().ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("db.document_text.upsert.failed", "path", sourcePath, "error", err)
		return fmt.Errorf("%w: upsert document text %s: %w", common.ErrDatabase, sourcePath, err)
	}
	r.logger.Debug("db.document_text.upserted", "path", sourcePath, "chars", common.CharLen(text))
	return nil
}

func (r *documentTextRepository) GetDocumentText(ctx context.Context, sourcePath string) (string, error) {
	query, args := r.db.builder().
		Select("full_text").
		From(entsql.Table(documentTextsTable.Name)).
		Where(entsql.EQ("source_path", sourcePath)).
		Query()
	var text string
	err := r.db.conn().QueryRowContext(ctx, query, args...).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("document text %s: %w", sourcePath, common.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%w: get document text %s: %w", common.ErrDatabase, sourcePath, err)
	}
	return text, nil
}
