package confidence

import (
	"fmt"
	"math"
	"strings"

	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/normalize"
)

// Weights are the scoring allowances. The defaults are the values the
// pipeline has run with; none of them are business rules.
type Weights struct {
	TypeVerified     float64
	Critical         float64
	Completeness     float64
	LongTextBonus    float64
	MidTextBonus     float64
	ShortTextPenalty float64
	ShortTextLen     int
	LongTextLen      int
	Target           float64
}

func DefaultWeights() Weights {
	return Weights{
		TypeVerified:     20,
		Critical:         40,
		Completeness:     30,
		LongTextBonus:    10,
		MidTextBonus:     5,
		ShortTextPenalty: 5,
		ShortTextLen:     500,
		LongTextLen:      2000,
		Target:           95,
	}
}

// WeightsFromConfig maps the config section onto Weights.
func WeightsFromConfig(c common.ConfidenceConfig) Weights {
	return Weights{
		TypeVerified:     c.TypeVerified,
		Critical:         c.Critical,
		Completeness:     c.Completeness,
		LongTextBonus:    c.LongTextBonus,
		MidTextBonus:     c.MidTextBonus,
		ShortTextPenalty: c.ShortTextPenalty,
		ShortTextLen:     c.ShortTextLen,
		LongTextLen:      c.LongTextLen,
		Target:           c.Target,
	}
}

type Metrics struct {
	TextLength    int     `json:"text_length"`
	Completeness  float64 `json:"completeness"`
	CriticalFound int     `json:"critical_found"`
	CriticalTotal int     `json:"critical_total"`
}

// Result is derived from a record and its source text and is stored
// alongside the record, never on its own.
type Result struct {
	Score       float64  `json:"score"`
	NeedsReview bool     `json:"needs_review"`
	Issues      []string `json:"issues"`
	Warnings    []string `json:"warnings"`
	Details     string   `json:"details"`
	Metrics     Metrics  `json:"metrics"`
}

// Approved reports whether the result clears target without review.
func (r Result) Approved(target float64) bool {
	return r.Score >= target && !r.NeedsReview
}

type criticalField struct {
	name    string
	present func(*normalize.Contract) bool
}

var criticalFields = []criticalField{
	{"huurprijs", func(c *normalize.Contract) bool { return nonZero(c.Financieel.Huurprijs) }},
	{"ingangsdatum", func(c *normalize.Contract) bool { return nonEmptyPtr(c.Periodes.Ingangsdatum) }},
	{"verhuurder_naam", func(c *normalize.Contract) bool { return c.Partijen.Verhuurder.Naam != "" }},
	{"huurder_naam", func(c *normalize.Contract) bool { return c.Partijen.Huurder.Naam != "" }},
	{"pand_adres", func(c *normalize.Contract) bool { return c.Pand.Adres != "" }},
}

// CriticalFields lists the field names that count toward the critical weight.
func CriticalFields() []string {
	out := make([]string, len(criticalFields))
	for i, f := range criticalFields {
		out[i] = f.name
	}
	return out
}

// Scorer is pure: equal inputs always give equal results.
type Scorer struct {
	w Weights
}

func NewScorer(w Weights) *Scorer {
	return &Scorer{w: w}
}

func (s *Scorer) Target() float64 { return s.w.Target }

// Score rates c against the text it was extracted from.
func (s *Scorer) Score(c *normalize.Contract, text string, typeVerified bool) Result {
	if c == nil {
		c = &normalize.Contract{}
	}
	var (
		score    float64
		issues   []string
		warnings []string
	)

	if typeVerified {
		score += s.w.TypeVerified
	}

	var missing []string
	found := 0
	for _, f := range criticalFields {
		if f.present(c) {
			found++
		} else {
			missing = append(missing, f.name)
		}
	}
	score += float64(found) / float64(len(criticalFields)) * s.w.Critical
	if len(missing) > 0 {
		issues = append(issues, "Missing critical: "+strings.Join(missing, ", "))
	}

	filled, total := countLeaves(c.Tree())
	completeness := 0.0
	if total > 0 {
		completeness = float64(filled) / float64(total)
	}
	score += completeness * s.w.Completeness

	textLen := common.CharLen(strings.TrimSpace(text))
	switch {
	case textLen < s.w.ShortTextLen:
		warnings = append(warnings, fmt.Sprintf("Short document: %d characters", textLen))
		score -= s.w.ShortTextPenalty
	case textLen > s.w.LongTextLen:
		score += s.w.LongTextBonus
	default:
		score += s.w.MidTextBonus
	}

	score = math.Max(0, math.Min(100, math.Round(score*10)/10))

	return Result{
		Score:       score,
		NeedsReview: score < s.w.Target || len(issues) > 0,
		Issues:      issues,
		Warnings:    warnings,
		Details:     details(issues, warnings, completeness),
		Metrics: Metrics{
			TextLength:    textLen,
			Completeness:  completeness,
			CriticalFound: found,
			CriticalTotal: len(criticalFields),
		},
	}
}

func details(issues, warnings []string, completeness float64) string {
	var parts []string
	if len(issues) > 0 {
		parts = append(parts, "ISSUES:\n- "+strings.Join(issues, "\n- "))
	}
	if len(warnings) > 0 {
		parts = append(parts, "WARNINGS:\n- "+strings.Join(warnings, "\n- "))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("All critical fields present\nData completeness: %.0f%%", completeness*100)
	}
	return strings.Join(parts, "\n\n")
}

// countLeaves walks the record tree. false and 0 count as filled.
func countLeaves(v any) (filled, total int) {
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			f, n := countLeaves(child)
			filled += f
			total += n
		}
		return filled, total
	case nil:
		return 0, 1
	case string:
		if t == "" {
			return 0, 1
		}
		return 1, 1
	case []any:
		if len(t) == 0 {
			return 0, 1
		}
		return 1, 1
	default:
		return 1, 1
	}
}

func nonZero(f *float64) bool    { return f != nil && *f != 0 }
func nonEmptyPtr(s *string) bool { return s != nil && *s != "" }
