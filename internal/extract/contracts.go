package extract

import "context"

// Record is the raw, loosely typed result of the staged extraction: one
// key per section plus contract_type and datum_contract. A failed section
// is an empty map.
type Record map[string]any

// FieldExtractor turns full contract text into a Record.
type FieldExtractor interface {
	Extract(ctx context.Context, text string) (Record, error)
}

// StageReport summarizes one stage for logs and the CLI.
type StageReport struct {
	Stage    string
	Attempts int
	Fields   int  // filled leaf values
	Failed   bool // section degraded to empty
}
