package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/projectvak/contract-pipeline/constants"
	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/confidence"
	"github.com/projectvak/contract-pipeline/internal/crm"
	"github.com/projectvak/contract-pipeline/internal/export"
	"github.com/projectvak/contract-pipeline/internal/extract"
	"github.com/projectvak/contract-pipeline/internal/normalize"
	"github.com/projectvak/contract-pipeline/internal/repository"
	"github.com/projectvak/contract-pipeline/internal/search"
	"github.com/projectvak/contract-pipeline/internal/storage"
)

type fakeExtractor struct {
	calls int
	rec   extract.Record
	err   error
}

func (f *fakeExtractor) Extract(context.Context, string) (extract.Record, error) {
	f.calls++
	return f.rec, f.err
}

type fakeSummarizer struct{ err error }

func (f fakeSummarizer) Summarize(context.Context, string, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "Huurovereenkomst voor Kerkstraat 10 vanaf maart 2024.", nil
}

type fakeCRM struct{ pushed []crm.Payload }

func (f *fakeCRM) Enabled() bool         { return true }
func (f *fakeCRM) Eligible(float64) bool { return true }
func (f *fakeCRM) Push(_ context.Context, p crm.Payload) (*crm.Pushed, error) {
	f.pushed = append(f.pushed, p)
	return &crm.Pushed{ID: "42", PushedAt: time.Date(2024, 3, 1, 9, 6, 0, 0, time.UTC)}, nil
}

func rawContract() extract.Record {
	return extract.Record{
		"contract_type": "huurovereenkomst",
		"partijen": map[string]any{
			"verhuurder": map[string]any{"naam": "Jan Peeters"},
			"huurder":    []any{map[string]any{"naam": "Marie Dupont"}},
		},
		"pand":       map[string]any{"adres": "Kerkstraat 10, 9000 Gent"},
		"financieel": map[string]any{"huurprijs": "€ 850,00"},
		"periodes":   map[string]any{"ingangsdatum": "01/03/2024"},
	}
}

type analyzeFixture struct {
	store     *storage.LocalStorage
	an        *Analyzer
	deps      AnalyzerDeps
	extractor *fakeExtractor
	notifier  *recordingNotifier
	crm       *fakeCRM
	index     *search.Index
}

func newAnalyzeFixture(t *testing.T, ex *fakeExtractor, sum Summarizer) *analyzeFixture {
	t.Helper()
	ctx := context.Background()
	f := &analyzeFixture{store: newStore(t), extractor: ex, notifier: &recordingNotifier{}, crm: &fakeCRM{}}

	db, err := repository.Open(ctx, repository.Config{
		Driver: "sqlite",
		DSN:    repository.MemoryDSN(strings.ReplaceAll(t.Name(), "/", "_")),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)
	if err := db.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	if f.index, err = search.Open("", nil); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = f.index.Close() })

	f.deps = AnalyzerDeps{
		Store:      f.store,
		Text:       fakeText{"contract": longText, "short": "te kort"},
		Extractor:  ex,
		Normalizer: normalize.NewNormalizer(nil),
		Scorer:     confidence.NewScorer(confidence.DefaultWeights()),
		Summarizer: sum,
		Contracts:  repository.NewContractRepository(db, nil),
		Texts:      repository.NewDocumentTextRepository(db, nil),
		Log:        export.NewProcessingLog(f.store, "", nil),
		Notifier:   f.notifier,
		History:    newLedger(t, "analyzed"),
		CRM:        f.crm,
		Index:      f.index,
	}
	f.an = NewAnalyzer(f.deps, AnalyzeConfig{}, common.NoSleep, nil)
	f.an.now = func() time.Time { return time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC) }
	return f
}

const (
	rentalDoc = "/Georganiseerd/Contracten/Huurcontracten/Kerkstraat_10/Kerkstraat_10_huurcontract.pdf"
	shortDoc  = "/Georganiseerd/Huur_Oud/scan.pdf"
)

func TestAnalyzerRunBatch(t *testing.T) {
	ctx := context.Background()
	f := newAnalyzeFixture(t, &fakeExtractor{rec: rawContract()}, fakeSummarizer{})
	put(t, f.store, rentalDoc, "contract")
	put(t, f.store, shortDoc, "short")
	put(t, f.store, "/Georganiseerd/Facturen/factuur.pdf", "contract")

	res, err := f.an.RunBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Found != 2 || res.Analyzed != 1 || res.Skipped != 1 || res.Requeued != 0 {
		t.Fatalf("result = %+v", res)
	}
	for _, p := range []string{rentalDoc, shortDoc} {
		if !f.deps.History.Contains(p) {
			t.Errorf("%s not in history", p)
		}
	}

	want := "Contract Processed: Huurovereenkomst - Kerkstraat_10_huurcontract.pdf | Contract Not Processed: scan.pdf"
	if got := f.notifier.subjects(); got != want {
		t.Errorf("notifications = %q, want %q", got, want)
	}

	name := "data_Kerkstraat_10_huurcontract_20240301_090500.json"
	raw, err := f.deps.Contracts.GetContract(ctx, name)
	if err != nil {
		t.Fatalf("record %s: %v", name, err)
	}
	for _, s := range []string{`"document_type":"Huurovereenkomst"`, `"type_verified":true`, `"whise_pushed":true`, `"whise_id":"42"`, `"huurprijs":850`} {
		if !strings.Contains(string(raw), s) {
			t.Errorf("stored record lacks %s:\n%s", s, raw)
		}
	}
	if len(f.crm.pushed) != 1 || f.crm.pushed[0].PropertyID != "Kerkstraat 10, 9000 Gent" {
		t.Errorf("crm pushes = %+v", f.crm.pushed)
	}

	text, err := f.deps.Texts.GetDocumentText(ctx, rentalDoc)
	if err != nil || !strings.Contains(text, "Kerkstraat 10") {
		t.Errorf("document text = %q, %v", text, err)
	}
	hits, err := f.index.Search(ctx, "Dupont", 5)
	if err != nil || len(hits) != 1 || hits[0].Path != rentalDoc {
		t.Errorf("search hits = %+v, %v", hits, err)
	}

	rows, err := f.deps.Log.Rows(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Status != constants.StatusSuccess || rows[1].Status != constants.StatusSkipped {
		t.Fatalf("log rows = %+v", rows)
	}
	if rows[0].JSONPath != name {
		t.Errorf("log json path = %q", rows[0].JSONPath)
	}

	res, err = f.an.RunBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Pending != 0 || len(f.notifier.sent) != 2 {
		t.Errorf("second pass = %+v, notifications %d; nothing should be reprocessed", res, len(f.notifier.sent))
	}
}

func TestAnalyzerQuotaRequeuesAndStops(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExtractor{err: errors.New("googleapi: Error 429: Resource has been exhausted (e.g. check quota).")}
	f := newAnalyzeFixture(t, ex, fakeSummarizer{})
	put(t, f.store, rentalDoc, "contract")
	put(t, f.store, "/Georganiseerd/Huur_Oud/tweede.pdf", "contract")

	res, err := f.an.RunBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.QuotaHit || res.Requeued != 1 || ex.calls != 1 {
		t.Fatalf("result = %+v after %d extractions, want stop after the first", res, ex.calls)
	}
	if f.deps.History.Contains(rentalDoc) {
		t.Error("quota failure must requeue")
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("requeue must not notify, got %q", f.notifier.subjects())
	}
	if rows, _ := f.deps.Log.Rows(ctx); len(rows) != 0 {
		t.Errorf("requeue must not log a terminal row, got %+v", rows)
	}
}

func TestAnalyzerRequeuesOnTransientErrors(t *testing.T) {
	tests := []struct {
		name      string
		extractor *fakeExtractor
		summary   Summarizer
		wantAuth  bool
		wantCalls int
	}{
		{
			name:      "unknown error continues with the next contract",
			extractor: &fakeExtractor{err: errors.New("connection reset by peer")},
			summary:   fakeSummarizer{},
			wantCalls: 2,
		},
		{
			name:      "api key error in summary stops the pass",
			extractor: &fakeExtractor{rec: rawContract()},
			summary:   fakeSummarizer{err: errors.New("API key not valid. Please pass a valid API key.")},
			wantAuth:  true,
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAnalyzeFixture(t, tt.extractor, tt.summary)
			put(t, f.store, rentalDoc, "contract")
			put(t, f.store, "/Georganiseerd/Huur_Oud/tweede.pdf", "contract")

			res, err := f.an.RunBatch(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if res.AuthError != tt.wantAuth || tt.extractor.calls != tt.wantCalls || res.Requeued != tt.wantCalls {
				t.Fatalf("result = %+v, extractor calls %d", res, tt.extractor.calls)
			}
			if f.deps.History.Len() != 0 {
				t.Error("every failed contract must be unmarked")
			}
			names, _ := f.deps.Contracts.ListContractNames(context.Background())
			if len(names) != 0 {
				t.Errorf("no record may be stored, got %v", names)
			}
		})
	}
}

func TestAnalyzerWithoutOrganizedPrefix(t *testing.T) {
	f := newAnalyzeFixture(t, &fakeExtractor{}, fakeSummarizer{})
	res, err := f.an.RunBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Folders != 0 || res.Found != 0 {
		t.Errorf("result = %+v", res)
	}
}

type panickingIndexer struct{}

func (panickingIndexer) Index(context.Context, string, string, string) error {
	panic("index corrupted")
}

func TestAnalyzerRequeuesOnPanic(t *testing.T) {
	f := newAnalyzeFixture(t, &fakeExtractor{rec: rawContract()}, fakeSummarizer{})
	f.an.deps.Index = panickingIndexer{}
	put(t, f.store, rentalDoc, "contract")
	put(t, f.store, "/Georganiseerd/Huur_Oud/tweede.pdf", "contract")

	res, err := f.an.RunBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Requeued != 2 || res.Analyzed != 0 {
		t.Fatalf("result = %+v", res)
	}
	if f.deps.History.Contains(rentalDoc) {
		t.Error("a panicking contract must be unmarked for the next pass")
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("requeue must not notify, got %q", f.notifier.subjects())
	}
}
