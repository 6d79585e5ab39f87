package classify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/projectvak/contract-pipeline/constants"
	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/llm"
	"github.com/projectvak/contract-pipeline/internal/ocr"
)

type scripted struct {
	replies []string
	errs    []error
	prompts []string
}

func (s *scripted) Generate(_ context.Context, req llm.Request) (string, error) {
	i := len(s.prompts)
	s.prompts = append(s.prompts, req.Prompt)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return s.replies[len(s.replies)-1], nil
}

func recordSleeps(waits *[]time.Duration) common.SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
}

var testConfig = Config{Model: "m", SampleSize: 3500, MaxAttempts: 3, RetryWait: 15 * time.Second, RateLimitWait: 90 * time.Second}

func TestClassifyParsesFencedAnswer(t *testing.T) {
	gen := &scripted{replies: []string{"Hier is het antwoord:\n```json\n" +
		`{"action":"Existing","folder":"Kerkstraat_10","confidence":"98%","reasoning":"Kerkstraat 10 bestaat","suggested_filename":"Kerkstraat_10_huurcontract.pdf"}` +
		"\n```"}}
	var waits []time.Duration
	c := NewClassifier(gen, testConfig, nil, WithSleep(recordSleeps(&waits)))

	d, err := c.Classify(context.Background(), Input{
		Text:        strings.Repeat("huurovereenkomst ", 500),
		Filename:    "scan001.pdf",
		Location:    "/scan001.pdf",
		KnownGroups: "- /Kerkstraat_10: Auto-detected (1 file(s))",
		Meta:        ocr.Metadata{PagesScanned: 3, TotalPages: 4, Method: constants.MethodOCR},
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := Decision{
		Action:            constants.ActionExisting,
		FolderPath:        "/Kerkstraat_10",
		Confidence:        98,
		Reasoning:         "Kerkstraat 10 bestaat",
		SuggestedFilename: "Kerkstraat_10_huurcontract.pdf",
	}
	if *d != want {
		t.Errorf("decision = %+v, want %+v", *d, want)
	}
	if len(waits) != 0 {
		t.Errorf("unexpected waits %v", waits)
	}
	p := gen.prompts[0]
	if !strings.Contains(p, "EXTRACTION: 3/4 pages (OCR used)") || !strings.Contains(p, "/Kerkstraat_10: Auto-detected") {
		t.Errorf("prompt missing metadata or folders:\n%s", p[:400])
	}
	if strings.Count(p, "huurovereenkomst") > 3500/len("huurovereenkomst ")+1 {
		t.Error("text sample not truncated")
	}
}

func TestClassifyRetries(t *testing.T) {
	ok := `{"action":"new","folder_path":"/Eikelstraat_22","confidence":100,"reasoning":"nieuw adres"}`
	tests := []struct {
		name      string
		gen       *scripted
		wantWaits []time.Duration
		wantNil   bool
	}{
		{
			name:      "bad json then ok",
			gen:       &scripted{replies: []string{"geen json", ok}},
			wantWaits: []time.Duration{15 * time.Second},
		},
		{
			name:      "invalid action then ok",
			gen:       &scripted{replies: []string{`{"action":"move","folder_path":"/x","confidence":1,"reasoning":"r"}`, ok}},
			wantWaits: []time.Duration{15 * time.Second},
		},
		{
			name:      "quota escalates",
			gen:       &scripted{replies: []string{ok}, errs: []error{errors.New("429 RESOURCE_EXHAUSTED"), errors.New("quota exceeded")}},
			wantWaits: []time.Duration{90 * time.Second, 180 * time.Second},
		},
		{
			name:      "gives up",
			gen:       &scripted{replies: []string{"nope"}},
			wantWaits: []time.Duration{15 * time.Second, 15 * time.Second},
			wantNil:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var waits []time.Duration
			c := NewClassifier(tt.gen, testConfig, nil, WithSleep(recordSleeps(&waits)))
			d, err := c.Classify(context.Background(), Input{Text: "tekst", Filename: "a.pdf"})
			if tt.wantNil {
				if d != nil || err == nil {
					t.Fatalf("Classify = (%+v, %v), want nil decision and error", d, err)
				}
			} else if err != nil || d == nil || d.FolderPath != "/Eikelstraat_22" {
				t.Fatalf("Classify = (%+v, %v)", d, err)
			}
			if len(waits) != len(tt.wantWaits) {
				t.Fatalf("waits = %v, want %v", waits, tt.wantWaits)
			}
			for i := range waits {
				if waits[i] != tt.wantWaits[i] {
					t.Errorf("wait %d = %v, want %v", i, waits[i], tt.wantWaits[i])
				}
			}
		})
	}
}

func TestClassifyAppliesCorrections(t *testing.T) {
	gen := &scripted{replies: []string{`{"action":"new","folder_path":"Onbekend_adres","confidence":60,"reasoning":"essay zonder adres"}`}}
	c := NewClassifier(gen, testConfig, nil, WithSleep(common.NoSleep))
	d, err := c.Classify(context.Background(), Input{Text: "x", Filename: "a.pdf"})
	if err != nil {
		t.Fatal(err)
	}
	if d.FolderPath != "/Verhaal" || d.SuggestedFilename != "verhaal_document.pdf" {
		t.Errorf("correction not applied: %+v", d)
	}
}

func TestClassifierUsing(t *testing.T) {
	first := &scripted{replies: []string{"x"}}
	second := &scripted{replies: []string{`{"action":"new","folder_path":"/A","confidence":1,"reasoning":"r"}`}}
	c := NewClassifier(first, testConfig, nil, WithSleep(common.NoSleep))
	if _, err := c.Using(second).Classify(context.Background(), Input{}); err != nil {
		t.Fatal(err)
	}
	if len(first.prompts) != 0 || len(second.prompts) != 1 {
		t.Errorf("Using did not switch generator: %d %d", len(first.prompts), len(second.prompts))
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    float64
		wantErr bool
	}{
		{name: "missing reasoning", raw: `{"action":"new","folder_path":"/a","confidence":1}`, wantErr: true},
		{name: "empty folder", raw: `{"action":"new","folder_path":"","confidence":1,"reasoning":"r"}`, wantErr: true},
		{name: "word confidence", raw: `{"action":"new","folder_path":"/a","confidence":"hoog","reasoning":"r"}`, want: 0},
		{name: "numeric", raw: `{"action":"new","folder_path":"/a","confidence":87.5,"reasoning":"r"}`, want: 87.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDecision(tt.raw, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", d)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if d.Confidence != tt.want {
				t.Errorf("confidence = %v, want %v", d.Confidence, tt.want)
			}
		})
	}
}
