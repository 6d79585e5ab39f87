package keys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// State is the persisted allocation ledger. Counts is index-aligned with
// the key pool and every counter resets together at NextResetAt.
type State struct {
	NextResetAt time.Time
	Counts      []int
}

// Repository loads and saves State. Load returns (nil, nil) when nothing
// has been persisted yet.
type Repository interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, st *State) error
}

// stateFile is the on-disk shape: {"next_reset_at": <epoch seconds>, "counts": [...]}
type stateFile struct {
	NextResetAt float64 `json:"next_reset_at"`
	Counts      []int   `json:"counts"`
}

// EncodeState renders st in the persisted JSON form.
func EncodeState(st *State) ([]byte, error) {
	return json.Marshal(stateFile{
		NextResetAt: float64(st.NextResetAt.UnixNano()) / 1e9,
		Counts:      st.Counts,
	})
}

// DecodeState parses the persisted JSON form.
func DecodeState(data []byte) (*State, error) {
	var f stateFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode key state: %w", err)
	}
	sec, frac := math.Modf(f.NextResetAt)
	return &State{
		NextResetAt: time.Unix(int64(sec), int64(frac*1e9)),
		Counts:      f.Counts,
	}, nil
}

// FileRepository keeps State in a single JSON file.
type FileRepository struct {
	path string
}

func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

func (r *FileRepository) Load(_ context.Context) (*State, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key state: %w", err)
	}
	return DecodeState(data)
}

// Save writes to a temp file in the same directory and renames it over
// the target, so a crash never leaves a half-written ledger.
func (r *FileRepository) Save(_ context.Context, st *State) error {
	data, err := EncodeState(st)
	if err != nil {
		return err
	}
	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".keystate-*")
	if err != nil {
		return fmt.Errorf("create temp key state: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write key state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync key state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close key state: %w", err)
	}
	return os.Rename(tmp.Name(), r.path)
}

// MemoryRepository is an in-process Repository for tests and dry runs.
type MemoryRepository struct {
	state *State
}

func (r *MemoryRepository) Load(_ context.Context) (*State, error) {
	if r.state == nil {
		return nil, nil
	}
	cp := *r.state
	cp.Counts = append([]int(nil), r.state.Counts...)
	return &cp, nil
}

func (r *MemoryRepository) Save(_ context.Context, st *State) error {
	cp := *st
	cp.Counts = append([]int(nil), st.Counts...)
	r.state = &cp
	return nil
}
