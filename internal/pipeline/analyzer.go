package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/projectvak/contract-pipeline/constants"
	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/confidence"
	"github.com/projectvak/contract-pipeline/internal/crm"
	"github.com/projectvak/contract-pipeline/internal/export"
	"github.com/projectvak/contract-pipeline/internal/extract"
	"github.com/projectvak/contract-pipeline/internal/history"
	"github.com/projectvak/contract-pipeline/internal/llm"
	"github.com/projectvak/contract-pipeline/internal/normalize"
	"github.com/projectvak/contract-pipeline/internal/notify"
	"github.com/projectvak/contract-pipeline/internal/repository"
	"github.com/projectvak/contract-pipeline/internal/storage"
)

const (
	processedLayout = "2006-01-02 15:04:05"
	nameLayout      = "20060102_150405"
)

type AnalyzeConfig struct {
	OrganizedPrefix string
	RentalKeywords  []string
	MinText         int           // shorter text is a permanent skip
	TextAttempts    int           // document text upserts
	Delay           time.Duration // between contracts
}

// AnalyzerDeps are the collaborators of the analyze phase. CRM and Index
// are optional.
type AnalyzerDeps struct {
	Store      storage.Storage
	Text       TextExtractor
	Extractor  extract.FieldExtractor
	Normalizer *normalize.Normalizer
	Scorer     *confidence.Scorer
	Summarizer Summarizer
	Contracts  repository.ContractRepository
	Texts      repository.DocumentTextRepository
	Log        *export.ProcessingLog
	Notifier   notify.Notifier
	History    *history.Ledger
	CRM        CRMPusher
	Index      Indexer
}

// Record is the stored JSON for one analyzed contract.
type Record struct {
	Filename      string              `json:"filename"`
	DocumentType  string              `json:"document_type"`
	TypeVerified  bool                `json:"type_verified"`
	Processed     string              `json:"processed"`
	Confidence    confidence.Result   `json:"confidence"`
	ContractData  *normalize.Contract `json:"contract_data"`
	Summary       string              `json:"summary"`
	RawData       extract.Record      `json:"raw_data,omitempty"`
	WhisePushed   bool                `json:"whise_pushed,omitempty"`
	WhiseID       string              `json:"whise_id,omitempty"`
	WhisePushedAt string              `json:"whise_pushed_at,omitempty"`
}

// Outcome is the terminal result for one contract.
type Outcome struct {
	Path     string
	Status   constants.ProcessingStatus
	Name     string // stored record name, empty when skipped
	Score    float64
	Review   bool
	Duration time.Duration
}

// AnalyzeResult counts what one pass did.
type AnalyzeResult struct {
	Folders   int
	Found     int
	Pending   int
	Analyzed  int
	Skipped   int
	Requeued  int
	QuotaHit  bool
	AuthError bool
}

type Analyzer struct {
	deps   AnalyzerDeps
	cfg    AnalyzeConfig
	sleep  common.SleepFunc
	now    func() time.Time
	logger *slog.Logger
}

func NewAnalyzer(deps AnalyzerDeps, cfg AnalyzeConfig, sleep common.SleepFunc, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if sleep == nil {
		sleep = common.Sleep
	}
	if cfg.OrganizedPrefix == "" {
		cfg.OrganizedPrefix = constants.OrganizedPrefix
	}
	if len(cfg.RentalKeywords) == 0 {
		cfg.RentalKeywords = constants.RentalKeywords
	}
	if cfg.MinText <= 0 {
		cfg.MinText = 50
	}
	if cfg.TextAttempts <= 0 {
		cfg.TextAttempts = 2
	}
	return &Analyzer{deps: deps, cfg: cfg, sleep: sleep, now: time.Now, logger: logger}
}

// RentalFolders returns every folder under the organized prefix whose
// path mentions a rental keyword. A missing prefix yields none.
func (a *Analyzer) RentalFolders(ctx context.Context) ([]string, error) {
	ok, err := a.deps.Store.Exists(ctx, a.cfg.OrganizedPrefix)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", a.cfg.OrganizedPrefix, err)
	}
	if !ok {
		a.logger.Info("pipeline.analyze.no_prefix", "prefix", a.cfg.OrganizedPrefix)
		return nil, nil
	}
	entries, err := storage.ListAll(ctx, a.deps.Store, a.cfg.OrganizedPrefix, true)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", a.cfg.OrganizedPrefix, err)
	}
	var folders []string
	for _, e := range entries {
		if !e.IsDir {
			continue
		}
		lower := strings.ToLower(e.Path)
		for _, kw := range a.cfg.RentalKeywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				folders = append(folders, e.Path)
				break
			}
		}
	}
	return folders, nil
}

// Contracts lists the documents directly inside folders. A folder that
// cannot be listed is logged and skipped.
func (a *Analyzer) Contracts(ctx context.Context, folders []string) []storage.Entry {
	var docs []storage.Entry
	for _, f := range folders {
		entries, err := storage.ListAll(ctx, a.deps.Store, f, false)
		if err != nil {
			a.logger.Warn("pipeline.analyze.list_failed", "folder", f, "error", err)
			continue
		}
		for _, e := range entries {
			if !e.IsDir && constants.IsAllowed(e.Name) {
				docs = append(docs, e)
			}
		}
	}
	return docs
}

// RunBatch reloads the history, then analyzes every rental contract not
// in it. A quota or API key error stops the pass.
func (a *Analyzer) RunBatch(ctx context.Context) (AnalyzeResult, error) {
	var res AnalyzeResult
	start := time.Now()

	if err := a.deps.History.Load(ctx); err != nil {
		return res, fmt.Errorf("load history: %w", err)
	}
	folders, err := a.RentalFolders(ctx)
	if err != nil {
		return res, err
	}
	res.Folders = len(folders)
	docs := a.Contracts(ctx, folders)
	res.Found = len(docs)

	var pending []storage.Entry
	for _, d := range docs {
		if !a.deps.History.Contains(d.Path) {
			pending = append(pending, d)
		}
	}
	res.Pending = len(pending)
	if len(pending) == 0 {
		a.logger.Info("pipeline.analyze.idle", "folders", res.Folders, "found", res.Found, "history", a.deps.History.Len())
		return res, nil
	}
	a.logger.Info("pipeline.analyze.batch", "folders", res.Folders, "found", res.Found, "pending", res.Pending)

	for i, doc := range pending {
		out, err := a.Process(ctx, doc)
		switch {
		case err != nil:
			res.Requeued++
			if llm.IsQuota(err) {
				res.QuotaHit = true
			}
			if llm.IsAuth(err) {
				res.AuthError = true
			}
		case out.Status == constants.StatusSuccess:
			res.Analyzed++
		default:
			res.Skipped++
		}
		if res.QuotaHit || res.AuthError {
			a.logger.Warn("pipeline.analyze.stopped",
				"remaining", len(pending)-i-1, "quota", res.QuotaHit, "auth", res.AuthError)
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if i < len(pending)-1 {
			if err := a.sleep(ctx, a.cfg.Delay); err != nil {
				return res, err
			}
		}
	}

	a.logger.Info("pipeline.analyze.done",
		"analyzed", res.Analyzed, "skipped", res.Skipped, "requeued", res.Requeued,
		"elapsed_ms", time.Since(start).Milliseconds())
	return res, nil
}

// Process analyzes one contract. The path is marked before any work and
// unmarked again on every error, so the returned error always means the
// contract was requeued.
func (a *Analyzer) Process(ctx context.Context, doc storage.Entry) (*Outcome, error) {
	if err := a.deps.History.Mark(ctx, doc.Path); err != nil {
		return nil, fmt.Errorf("mark %s: %w", doc.Path, err)
	}
	out, err := a.analyzeSafe(ctx, doc)
	if err != nil {
		err = llm.Classify(err)
		if uerr := a.deps.History.Unmark(ctx, doc.Path); uerr != nil {
			a.logger.Error("pipeline.analyze.unmark_failed", "path", doc.Path, "error", uerr)
		}
		a.logger.Warn("pipeline.analyze.requeue",
			"path", doc.Path, "kind", llm.KindOf(err).String(), "error", err)
		return nil, err
	}
	return out, nil
}

// analyzeSafe turns a panic in any collaborator into an error so the
// caller requeues the contract instead of leaving it marked.
func (a *Analyzer) analyzeSafe(ctx context.Context, doc storage.Entry) (out *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("pipeline.analyze.panic", "path", doc.Path, "panic", r, "stack", string(debug.Stack()))
			out, err = nil, fmt.Errorf("unexpected failure: %v", r)
		}
	}()
	return a.analyze(ctx, doc)
}

func (a *Analyzer) analyze(ctx context.Context, doc storage.Entry) (*Outcome, error) {
	start := time.Now()
	log := a.logger.With("path", doc.Path)

	data, err := a.deps.Store.Download(ctx, doc.Path)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	text, meta := a.deps.Text.Extract(ctx, data)
	if n := common.CharLen(strings.TrimSpace(text)); n < a.cfg.MinText {
		log.Warn("pipeline.analyze.insufficient_text", "chars", n, "min", a.cfg.MinText, "extract_error", meta.Error)
		reason := fmt.Sprintf("%v: %d characters extracted, at least %d needed", common.ErrInsufficientText, n, a.cfg.MinText)
		a.terminalFailure(ctx, doc, reason, n, constants.StatusSkipped)
		return &Outcome{Path: doc.Path, Status: constants.StatusSkipped, Duration: time.Since(start)}, nil
	}
	log.Info("pipeline.analyze.text", "chars", meta.TextLength, "method", meta.Method, "pages", meta.PagesScanned)

	raw, err := a.deps.Extractor.Extract(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	contract, err := a.deps.Normalizer.Normalize(raw)
	if err != nil {
		log.Error("pipeline.analyze.normalize_failed", "error", err)
		a.terminalFailure(ctx, doc, "normalization failed: "+err.Error(), common.CharLen(text), constants.StatusFailed)
		return &Outcome{Path: doc.Path, Status: constants.StatusFailed, Duration: time.Since(start)}, nil
	}
	score := a.deps.Scorer.Score(contract, text, true)

	summary, err := a.deps.Summarizer.Summarize(ctx, constants.DocumentType, text)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}

	now := a.now()
	name := fmt.Sprintf("data_%s_%s.json", baseName(doc.Name), now.Format(nameLayout))
	rec := &Record{
		Filename:     doc.Name,
		DocumentType: constants.DocumentTitle,
		TypeVerified: true,
		Processed:    now.Format(processedLayout),
		Confidence:   score,
		ContractData: contract,
		Summary:      summary,
		RawData:      raw,
	}

	a.storeText(ctx, doc, text)
	if err := a.deps.Contracts.UpsertContract(ctx, name, rec); err != nil {
		return nil, fmt.Errorf("store record: %w", err)
	}
	a.pushCRM(ctx, doc, name, rec)

	row := export.RowFromResult(now, doc.Name, constants.DocumentType, score, name, constants.StatusSuccess)
	if err := a.deps.Log.Append(ctx, row); err != nil {
		log.Error("pipeline.analyze.log_failed", "error", err)
	}
	if a.deps.Index != nil {
		if err := a.deps.Index.Index(ctx, doc.Path, doc.Name, text); err != nil {
			log.Warn("pipeline.analyze.index_failed", "error", err)
		}
	}

	report := notify.Report{
		Filename:   doc.Name,
		Title:      constants.DocumentTitle,
		SizeBytes:  int64(len(data)),
		Processed:  now,
		Confidence: score,
		Target:     a.deps.Scorer.Target(),
		Contract:   contract,
		Summary:    summary,
		JSONName:   name,
	}
	if err := a.deps.Notifier.Send(ctx, report.Subject(), report.Body()); err != nil {
		log.Error("pipeline.analyze.notify_failed", "error", err)
	}

	out := &Outcome{
		Path:     doc.Path,
		Status:   constants.StatusSuccess,
		Name:     name,
		Score:    score.Score,
		Review:   score.NeedsReview,
		Duration: time.Since(start),
	}
	log.Info("pipeline.analyze.ok",
		"record", name, "score", score.Score, "needs_review", score.NeedsReview,
		"elapsed_ms", out.Duration.Milliseconds())
	return out, nil
}

// storeText writes the full text for search. Failures are logged; the
// record itself is still stored.
func (a *Analyzer) storeText(ctx context.Context, doc storage.Entry, text string) {
	text = strings.TrimSpace(text)
	for attempt := 1; attempt <= a.cfg.TextAttempts; attempt++ {
		err := a.deps.Texts.UpsertDocumentText(ctx, doc.Path, doc.Name, text)
		if err == nil {
			return
		}
		a.logger.Warn("pipeline.analyze.text_store_failed", "path", doc.Path, "attempt", attempt, "error", err)
	}
	a.logger.Error("pipeline.analyze.text_not_stored", "path", doc.Path, "attempts", a.cfg.TextAttempts)
}

func (a *Analyzer) pushCRM(ctx context.Context, doc storage.Entry, name string, rec *Record) {
	c := a.deps.CRM
	if c == nil || !c.Eligible(rec.Confidence.Score) {
		return
	}
	if !c.Enabled() {
		a.logger.Info("pipeline.analyze.crm_not_configured", "path", doc.Path, "score", rec.Confidence.Score)
		return
	}
	pushed, err := c.Push(ctx, crm.BuildPayload(rec.ContractData, doc.Name, rec.Confidence.Score, a.now()))
	if err != nil {
		a.logger.Warn("pipeline.analyze.crm_failed", "path", doc.Path, "error", err)
		return
	}
	rec.WhisePushed = true
	rec.WhiseID = pushed.ID
	rec.WhisePushedAt = pushed.PushedAt.Format(processedLayout)
	if err := a.deps.Contracts.PatchContractData(ctx, name, rec); err != nil {
		a.logger.Warn("pipeline.analyze.crm_patch_failed", "record", name, "error", err)
	}
}

// terminalFailure records a contract that stays marked: one log row and
// one notification.
func (a *Analyzer) terminalFailure(ctx context.Context, doc storage.Entry, reason string, textLen int, status constants.ProcessingStatus) {
	now := a.now()
	row := export.Row{
		Timestamp:    now,
		Filename:     doc.Name,
		DocumentType: constants.DocumentType,
		NeedsReview:  true,
		TextLength:   textLen,
		Issues:       []string{reason},
		Status:       status,
	}
	if err := a.deps.Log.Append(ctx, row); err != nil {
		a.logger.Error("pipeline.analyze.log_failed", "path", doc.Path, "error", err)
	}
	f := notify.Failure{Filename: doc.Name, Path: doc.Path, Reason: reason, When: now}
	if err := a.deps.Notifier.Send(ctx, f.Subject(), f.Body()); err != nil {
		a.logger.Error("pipeline.analyze.notify_failed", "path", doc.Path, "error", err)
	}
}
