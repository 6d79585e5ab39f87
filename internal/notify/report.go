package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/projectvak/contract-pipeline/internal/confidence"
	"github.com/projectvak/contract-pipeline/internal/normalize"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// Report is everything the processed-contract message shows.
type Report struct {
	Filename   string
	Title      string
	SizeBytes  int64
	Processed  time.Time
	Confidence confidence.Result
	Target     float64
	Contract   *normalize.Contract
	Summary    string
	JSONName   string
}

// Subject is the mail subject for r.
func (r Report) Subject() string {
	return fmt.Sprintf("Contract Processed: %s - %s", r.Title, r.Filename)
}

// Body renders the plain-text message.
func (r Report) Body() string {
	var b strings.Builder
	b.WriteString("Dear,\n\nPlease find attached the automated analysis of the following document:\n\n")
	b.WriteString("DOCUMENT INFORMATION\n" + rule + "\n")
	fmt.Fprintf(&b, "Filename: %s\nType: %s\nSize: %s\nProcessing Date: %s\n\n",
		r.Filename, r.Title, humanize.IBytes(uint64(max(r.SizeBytes, 0))), r.Processed.Format("02-01-2006 15:04"))

	b.WriteString(r.status())
	b.WriteString("\nKEY DATA\n" + rule)
	b.WriteString(keyData(r.Contract))
	b.WriteString("\nSUMMARY\n" + rule + "\n" + r.Summary + "\n\n")
	b.WriteString("STRUCTURED DATA\n" + rule + "\n")
	fmt.Fprintf(&b, "Stored as:\n%s\n\n", r.JSONName)
	b.WriteString(rule + "\nThis analysis was automatically generated.\n")
	b.WriteString("Please review the data for documents requiring review.\n\n")
	b.WriteString("Best regards,\nAutomated Document Processing System\n")
	return b.String()
}

func (r Report) status() string {
	c := r.Confidence
	completeness := fmt.Sprintf("%.0f%%", c.Metrics.Completeness*100)
	if c.Approved(r.Target) {
		return fmt.Sprintf("STATUS\nConfidence Score: %v%%\nAssessment: ✅ Approved\nData Completeness: %s\n",
			c.Score, completeness)
	}
	return fmt.Sprintf("STATUS\nConfidence Score: %v%%\nAssessment: ⚠️ Review Required\nData Completeness: %s\n\nATTENTION POINTS\n%s\n",
		c.Score, completeness, c.Details)
}

func keyData(c *normalize.Contract) string {
	if c == nil {
		return "\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\nPARTIES\nLandlord: %s\nTenant: %s\n",
		orNA(c.Partijen.Verhuurder.Naam), orNA(c.Partijen.Huurder.Naam))
	fmt.Fprintf(&b, "\nPROPERTY\nAddress: %s\n", orNA(c.Pand.Adres))

	rent, deposit := c.Financieel.Huurprijs, c.Financieel.Waarborg.Bedrag
	if positive(rent) || positive(deposit) {
		b.WriteString("\nFINANCIAL")
		if positive(rent) {
			fmt.Fprintf(&b, "\nRent: €%.2f/month", *rent)
		}
		if positive(deposit) {
			fmt.Fprintf(&b, "\nDeposit: €%.2f", *deposit)
		}
		b.WriteString("\n")
	}

	start := "N/A"
	if c.Periodes.Ingangsdatum != nil && *c.Periodes.Ingangsdatum != "" {
		start = *c.Periodes.Ingangsdatum
	}
	fmt.Fprintf(&b, "\nPERIOD\nStart Date: %s\nDuration: %s\n", start, orNA(c.Periodes.Duur))
	return b.String()
}

// Failure is the message for a document that was recorded but could not
// be analyzed.
type Failure struct {
	Filename string
	Path     string
	Reason   string
	When     time.Time
}

func (f Failure) Subject() string {
	return "Contract Not Processed: " + f.Filename
}

func (f Failure) Body() string {
	return fmt.Sprintf("Dear,\n\nThe following document could not be analyzed and will not be retried:\n\n"+
		"Filename: %s\nLocation: %s\nDate: %s\nReason: %s\n\nPlease check the document manually.\n\n"+
		"Best regards,\nAutomated Document Processing System\n",
		f.Filename, f.Path, f.When.Format("02-01-2006 15:04"), f.Reason)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func positive(f *float64) bool { return f != nil && *f > 0 }
