package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/keys"
)

// keyStateID is the single row holding the rotator ledger.
const keyStateID = 1

// KeyStateRepository keeps the key rotator state in the key_state table.
type KeyStateRepository struct {
	db *DB
}

var _ keys.Repository = (*KeyStateRepository)(nil)

func NewKeyStateRepository(db *DB) *KeyStateRepository {
	return &KeyStateRepository{db: db}
}

func (r *KeyStateRepository) Load(ctx context.Context) (*keys.State, error) {
	query, args := r.db.builder().
		Select("next_reset_at", "counts").
		From(entsql.Table(keyStateTable.Name)).
		Where(entsql.EQ("id", keyStateID)).
		Query()
	var (
		next   float64
		counts []byte
	)
	err := r.db.conn().QueryRowContext(ctx, query, args...).Scan(&next, &counts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load key state: %w", common.ErrDatabase, err)
	}
	st := &keys.State{}
	if err := json.Unmarshal(counts, &st.Counts); err != nil {
		return nil, fmt.Errorf("decode key state counts: %w", err)
	}
	sec, frac := math.Modf(next)
	st.NextResetAt = time.Unix(int64(sec), int64(frac*1e9))
	return st, nil
}

func (r *KeyStateRepository) Save(ctx context.Context, st *keys.State) error {
	counts, err := json.Marshal(st.Counts)
	if err != nil {
		return err
	}
	next := float64(st.NextResetAt.UnixNano()) / 1e9
	query, args := r.db.builder().
		Insert(keyStateTable.Name).
		Columns("id", "next_reset_at", "counts", "updated_at").
		Values(keyStateID, next, string(counts), time.Now().UTC()).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := r.db.conn().ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: save key state: %w", common.ErrDatabase, err)
	}
	return nil
}
