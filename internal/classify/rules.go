package classify

import "strings"

// nonContractSignals are the words that make a contract-only destination
// suspicious. Corrections only run when one of them is present.
var nonContractSignals = []string{
	"verhaal", "essay", "narratief", "persoonlijke tekst", "geen contract",
	"onderwijs", "college", "cursus", "dictaat", "studie",
	"certificaat", "verklaring", "deelname", "studentenverklaring", "bewijs",
	"factuur", "offerte", "betalingsdocument", "teksten", "overig",
}

// Correction is one (predicate, rewrite) pair of the post-classification
// rule pass.
type Correction struct {
	Name    string
	Applies func(d *Decision, filename string) bool
	Rewrite func(d *Decision)
}

// DefaultCorrections route non-contract documents away from address and
// contract folders. Order matters: the first matching correction wins and
// the last one always matches.
var DefaultCorrections = []Correction{
	{
		Name:    "verhaal",
		Applies: mentions("verhaal", "essay", "narratief", "tekst"),
		Rewrite: reroute("/Verhaal", "verhaal_document.pdf", " [Correctie: verhaal → /Verhaal.]"),
	},
	{
		Name:    "certificaat",
		Applies: mentions("certificaat", "verklaring", "deelname", "studentenverklaring", "bewijs"),
		Rewrite: reroute("/Onderwijs", "certificaat_verklaring.pdf", " [Correctie: certificaat/verklaring → /Onderwijs.]"),
	},
	{
		Name:    "onderwijs",
		Applies: mentions("onderwijs", "college", "cursus", "dictaat"),
		Rewrite: reroute("/Onderwijs", "onderwijs_document.pdf", " [Correctie: onderwijs → /Onderwijs.]"),
	},
	{
		Name:    "factuur",
		Applies: mentions("factuur", "offerte"),
		Rewrite: reroute("/Facturen", "factuur_document.pdf", ""),
	},
	{
		Name:    "geen_contract",
		Applies: func(*Decision, string) bool { return true },
		Rewrite: reroute("/Verhaal", "document.pdf", " [Correctie: geen contract → /Verhaal.]"),
	},
}

// Correct applies the first matching correction when the decision targets
// an unknown-address or contract folder and carries a non-contract signal.
// It returns the name of the applied correction, or "".
func Correct(d *Decision, filename string, corrections []Correction) string {
	folder := strings.ToLower(d.FolderPath)
	if !strings.Contains(folder, "onbekend_adres") && !strings.Contains(folder, "/contracten/") {
		return ""
	}
	if !mentions(nonContractSignals...)(d, filename) {
		return ""
	}
	for _, c := range corrections {
		if c.Applies(d, filename) {
			c.Rewrite(d)
			return c.Name
		}
	}
	return ""
}

// mentions matches when any word occurs in the reasoning, the suggested
// filename or the original filename.
func mentions(words ...string) func(*Decision, string) bool {
	return func(d *Decision, filename string) bool {
		haystacks := []string{
			strings.ToLower(d.Reasoning),
			strings.ToLower(d.SuggestedFilename),
			strings.ToLower(filename),
		}
		for _, w := range words {
			for _, h := range haystacks {
				if strings.Contains(h, w) {
					return true
				}
			}
		}
		return false
	}
}

func reroute(folder, filename, note string) func(*Decision) {
	return func(d *Decision) {
		d.FolderPath = folder
		d.SuggestedFilename = filename
		d.Reasoning += note
	}
}
