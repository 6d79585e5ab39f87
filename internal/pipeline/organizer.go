package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/projectvak/contract-pipeline/constants"
	"github.com/projectvak/contract-pipeline/internal/classify"
	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/history"
	"github.com/projectvak/contract-pipeline/internal/storage"
)

// rentalNameMarker in a destination filename routes the document under
// constants.RentalFolderPath.
const rentalNameMarker = "huurcontract"

type OrganizeConfig struct {
	ScanRoot       string
	ExcludeFolders []string // the organized prefix is always excluded
	BatchSize      int
	MinText        int           // shorter text is skipped and never retried
	Delay          time.Duration // between documents
}

// OrganizerDeps are the collaborators of the organize phase.
type OrganizerDeps struct {
	Store      storage.Storage
	Keys       KeyAllocator
	Generator  GeneratorFactory
	Text       TextFactory
	Classifier *classify.Classifier
	Folders    *classify.FolderManager
	History    *history.Ledger
}

// OrganizeResult counts what one batch did. Attempted counts documents
// that got a key; the worker only analyzes when it is zero.
type OrganizeResult struct {
	Pending       int
	Attempted     int
	Moved         int
	Skipped       int
	Gone          int
	Failed        int
	KeysExhausted bool
}

// StopReason reports why the batch ended early, or nil.
func (r OrganizeResult) StopReason() error {
	if r.KeysExhausted {
		return common.ErrNoKeyAvailable
	}
	return nil
}

type Organizer struct {
	deps   OrganizerDeps
	cfg    OrganizeConfig
	sleep  common.SleepFunc
	logger *slog.Logger
}

func NewOrganizer(deps OrganizerDeps, cfg OrganizeConfig, sleep common.SleepFunc, logger *slog.Logger) *Organizer {
	if logger == nil {
		logger = slog.Default()
	}
	if sleep == nil {
		sleep = common.Sleep
	}
	if cfg.ScanRoot == "" {
		cfg.ScanRoot = "/"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.MinText <= 0 {
		cfg.MinText = 30
	}
	cfg.ExcludeFolders = append(append([]string(nil), cfg.ExcludeFolders...), deps.Folders.Prefix())
	return &Organizer{deps: deps, cfg: cfg, sleep: sleep, logger: logger}
}

// Pending lists documents directly under the scan root that are neither
// in the history nor inside an excluded folder, in listing order.
func (o *Organizer) Pending(ctx context.Context) ([]storage.Entry, error) {
	entries, err := storage.ListAll(ctx, o.deps.Store, o.cfg.ScanRoot, false)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", o.cfg.ScanRoot, err)
	}
	var out []storage.Entry
	for _, e := range entries {
		if e.IsDir || !constants.IsAllowed(e.Name) || o.deps.History.Contains(e.Path) || o.excluded(e.Path) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (o *Organizer) excluded(p string) bool {
	for _, ex := range o.cfg.ExcludeFolders {
		if hasPathPrefix(p, ex) {
			return true
		}
	}
	return false
}

// RunBatch organizes up to BatchSize pending documents. Each document
// takes one key; running out of keys ends the batch without error.
func (o *Organizer) RunBatch(ctx context.Context) (OrganizeResult, error) {
	var res OrganizeResult
	start := time.Now()

	pending, err := o.Pending(ctx)
	if err != nil {
		return res, err
	}
	res.Pending = len(pending)
	if len(pending) == 0 {
		return res, nil
	}
	batch := pending[:min(len(pending), o.cfg.BatchSize)]
	o.logger.Info("pipeline.organize.batch", "pending", len(pending), "batch", len(batch))

	for i, doc := range batch {
		key, idx, err := o.deps.Keys.Allocate(ctx)
		if err != nil {
			return res, fmt.Errorf("allocate key: %w", err)
		}
		if idx < 0 {
			res.KeysExhausted = true
			o.logger.Warn("pipeline.organize.no_key", "remaining", len(batch)-i, "error", res.StopReason())
			break
		}
		res.Attempted++

		oc, err := o.organize(ctx, doc, key, idx)
		switch oc {
		case outcomeMoved:
			res.Moved++
		case outcomeSkipped:
			res.Skipped++
		case outcomeGone:
			res.Gone++
		default:
			res.Failed++
			o.logger.Error("pipeline.organize.failed", "path", doc.Path, "error", err)
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if i < len(batch)-1 {
			if err := o.sleep(ctx, o.cfg.Delay); err != nil {
				return res, err
			}
		}
	}

	o.logger.Info("pipeline.organize.done",
		"attempted", res.Attempted, "moved", res.Moved, "skipped", res.Skipped,
		"gone", res.Gone, "failed", res.Failed, "keys_exhausted", res.KeysExhausted,
		"elapsed_ms", time.Since(start).Milliseconds())
	return res, nil
}

type outcome int

const (
	outcomeFailed outcome = iota // left in place, retried next cycle
	outcomeMoved
	outcomeSkipped
	outcomeGone
)

func (o *Organizer) organize(ctx context.Context, doc storage.Entry, key string, keyIdx int) (outcome, error) {
	log := o.logger.With("path", doc.Path, "key_index", keyIdx)

	data, err := o.deps.Store.Download(ctx, doc.Path)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			o.mark(ctx, doc.Path)
			return outcomeGone, nil
		}
		return outcomeFailed, fmt.Errorf("download: %w", err)
	}

	gen := o.deps.Generator(key)
	text, meta := o.deps.Text(gen).Extract(ctx, data)
	if n := common.CharLen(strings.TrimSpace(text)); n < o.cfg.MinText {
		log.Warn("pipeline.organize.insufficient_text", "chars", n, "min", o.cfg.MinText)
		o.mark(ctx, doc.Path)
		return outcomeSkipped, nil
	}
	log.Info("pipeline.organize.text", "chars", meta.TextLength, "method", meta.Method, "pages", meta.PagesScanned)

	if _, err := o.deps.Folders.Scan(ctx); err != nil {
		log.Warn("pipeline.organize.scan_failed", "error", err)
	}
	d, err := o.deps.Classifier.Using(gen).Classify(ctx, classify.Input{
		Text:        text,
		Filename:    doc.Name,
		Location:    doc.Path,
		KnownGroups: o.deps.Folders.Summary(),
		Meta:        meta,
	})
	if err != nil {
		return outcomeFailed, fmt.Errorf("classify: %w", err)
	}

	folder, name, rerouted := o.Destination(d, doc.Name)
	full := o.deps.Folders.SanitizeFolderPath(folder)
	if d.Action == constants.ActionNew || rerouted {
		desc := d.Description
		if desc == "" {
			desc = d.Reasoning
		}
		if full, err = o.deps.Folders.CreateFolder(ctx, folder, desc); err != nil {
			return outcomeFailed, fmt.Errorf("create folder: %w", err)
		}
	}

	final, err := o.deps.Store.Move(ctx, doc.Path, full+"/"+name, true)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			log.Warn("pipeline.organize.source_gone", "error", err)
			o.mark(ctx, doc.Path)
			return outcomeGone, nil
		}
		return outcomeFailed, fmt.Errorf("move: %w", err)
	}
	o.deps.Folders.AddFile(full)
	o.mark(ctx, doc.Path)
	log.Info("pipeline.organize.moved",
		"action", d.Action, "to", final, "confidence", d.Confidence, "rerouted", rerouted)
	return outcomeMoved, nil
}

// Destination derives the folder and filename for a decision. Documents
// whose name marks them as rental contracts are re-rooted under
// constants.RentalFolderPath unless the folder already says so.
func (o *Organizer) Destination(d *classify.Decision, original string) (folder, name string, rerouted bool) {
	name = classify.SanitizeSuggestedFilename(d.SuggestedFilename, "")
	if name == "" {
		name = classify.FallbackFilenameFromFolder(d.FolderPath, original)
	}
	folder = d.FolderPath
	if strings.Contains(strings.ToLower(name), rentalNameMarker) &&
		!(strings.Contains(folder, "Contracten") && strings.Contains(folder, "Huurcontracten")) {
		rel := strings.TrimPrefix(strings.TrimPrefix(folder, o.deps.Folders.Prefix()), "/")
		folder = constants.RentalFolderPath + "/" + rel
		rerouted = true
	}
	return folder, name, rerouted
}

func (o *Organizer) mark(ctx context.Context, p string) {
	if err := o.deps.History.Mark(ctx, p); err != nil {
		o.logger.Error("pipeline.organize.history_failed", "path", p, "error", err)
	}
}
