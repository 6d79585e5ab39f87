// Package app builds the pipeline from configuration. Both binaries use
// it; the pieces are exported separately so small commands only open what
// they need.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/projectvak/contract-pipeline/internal/classify"
	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/confidence"
	"github.com/projectvak/contract-pipeline/internal/crm"
	"github.com/projectvak/contract-pipeline/internal/export"
	"github.com/projectvak/contract-pipeline/internal/extract"
	"github.com/projectvak/contract-pipeline/internal/history"
	"github.com/projectvak/contract-pipeline/internal/keys"
	"github.com/projectvak/contract-pipeline/internal/llm"
	"github.com/projectvak/contract-pipeline/internal/llm/gemini"
	"github.com/projectvak/contract-pipeline/internal/llm/openai"
	"github.com/projectvak/contract-pipeline/internal/normalize"
	"github.com/projectvak/contract-pipeline/internal/notify"
	"github.com/projectvak/contract-pipeline/internal/ocr"
	"github.com/projectvak/contract-pipeline/internal/pipeline"
	"github.com/projectvak/contract-pipeline/internal/repository"
	"github.com/projectvak/contract-pipeline/internal/search"
	"github.com/projectvak/contract-pipeline/internal/storage"
)

// App holds every long-lived component of the pipeline.
type App struct {
	Config    *common.Config
	Logger    *slog.Logger
	Store     storage.Storage
	DB        *repository.DB
	Contracts repository.ContractRepository
	Texts     repository.DocumentTextRepository
	Keys      *keys.Rotator
	Organized *history.Ledger
	Analyzed  *history.Ledger
	Log       *export.ProcessingLog
	Index     *search.Index // nil when no index path is configured
	Model     string
	Organizer *pipeline.Organizer
	Analyzer  *pipeline.Analyzer
}

// Build opens storage, the database and the index and wires both phases.
// On error everything opened so far is closed again.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (a *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	if a.Store, err = OpenStorage(ctx, cfg, logger); err != nil {
		return a, err
	}
	if a.DB, err = OpenDatabase(ctx, cfg, logger); err != nil {
		return a, err
	}
	a.Contracts = repository.NewContractRepository(a.DB, logger)
	a.Texts = repository.NewDocumentTextRepository(a.DB, logger)

	if a.Keys, err = OpenRotator(cfg, a.DB, logger); err != nil {
		return a, err
	}
	if a.Organized, err = OpenLedger(ctx, "organized", cfg.Pipeline.OrganizedHistory, logger); err != nil {
		return a, err
	}
	if a.Analyzed, err = OpenLedger(ctx, "analyzed", cfg.Pipeline.AnalyzedHistory, logger); err != nil {
		return a, err
	}

	a.Log = export.NewProcessingLog(a.Store, cfg.Storage.ProcessingLogPath, logger)
	if err = a.Log.Ensure(ctx); err != nil {
		return a, err
	}
	if cfg.Search.IndexPath != "" {
		if a.Index, err = search.Open(cfg.Search.IndexPath, logger); err != nil {
			return a, err
		}
	}

	models, err := NewModels(ctx, cfg, logger)
	if err != nil {
		return a, err
	}
	a.Model = models.Model
	text := TextFactory(cfg, models.Model, logger)
	analyzeGen := models.Analyze

	folders := classify.NewFolderManager(a.Store, cfg.Storage.OrganizedPrefix, cfg.Pipeline.FolderCache, logger)
	classifier := classify.NewClassifier(nil, classify.Config{
		Model:         models.Model,
		SampleSize:    cfg.Pipeline.TextSampleSize,
		MaxAttempts:   cfg.Pipeline.MaxRetries,
		RetryWait:     cfg.Pipeline.RetryWait,
		RateLimitWait: cfg.Pipeline.RateLimitWait,
	}, logger)

	a.Organizer = pipeline.NewOrganizer(pipeline.OrganizerDeps{
		Store:      a.Store,
		Keys:       a.Keys,
		Generator:  models.ForKey,
		Text:       text,
		Classifier: classifier,
		Folders:    folders,
		History:    a.Organized,
	}, pipeline.OrganizeConfig{
		ScanRoot:       cfg.Storage.ScanRoot,
		ExcludeFolders: cfg.Storage.ExcludeFolders,
		BatchSize:      cfg.Pipeline.BatchSize,
		MinText:        cfg.Pipeline.MinTextForProcessing,
		Delay:          cfg.Pipeline.OrganizeDelay,
	}, common.Sleep, logger)

	excfg := extract.DefaultConfig()
	excfg.Model = models.Model
	excfg.Chunk1Size = cfg.Pipeline.Chunk1Size
	excfg.Chunk2Start = cfg.Pipeline.Chunk2Start
	excfg.Chunk2End = cfg.Pipeline.Chunk2End
	excfg.MaxAttempts = cfg.Pipeline.MaxRetries
	excfg.JSONRetryWait = cfg.Pipeline.StageJSONRetryWait
	excfg.RateLimitWait = cfg.Pipeline.RetryWait
	excfg.StageDelay = cfg.Pipeline.StageDelay

	deps := pipeline.AnalyzerDeps{
		Store:      a.Store,
		Text:       text(analyzeGen),
		Extractor:  extract.NewMultiStageExtractor(analyzeGen, excfg, logger),
		Normalizer: normalize.NewNormalizer(logger),
		Scorer:     confidence.NewScorer(confidence.WeightsFromConfig(cfg.Confidence)),
		Summarizer: extract.NewSummarizer(analyzeGen, extract.SummaryConfig{
			Model:       models.Model,
			SampleSize:  cfg.Pipeline.SummarySampleSize,
			MaxAttempts: cfg.Pipeline.MaxRetries,
			RetryWait:   cfg.Pipeline.RetryWait,
		}, common.Sleep, logger),
		Contracts: a.Contracts,
		Texts:     a.Texts,
		Log:       a.Log,
		Notifier:  notify.New(cfg.Notify, logger),
		History:   a.Analyzed,
		CRM:       crm.NewClient(cfg.CRM, logger),
	}
	if a.Index != nil {
		deps.Index = a.Index
	}
	a.Analyzer = pipeline.NewAnalyzer(deps, pipeline.AnalyzeConfig{
		OrganizedPrefix: cfg.Storage.OrganizedPrefix,
		RentalKeywords:  cfg.Storage.RentalKeywords,
		MinText:         cfg.Pipeline.MinTextForAnalysis,
		Delay:           cfg.Pipeline.ContractDelay,
	}, common.Sleep, logger)

	logger.Info("app.ready",
		"storage", cfg.Storage.Backend, "db", a.DB.Dialect(), "provider", cfg.LLM.Provider,
		"model", a.Model, "organize_keys", a.Keys.Size(), "search", a.Index != nil)
	return a, nil
}

// Worker wraps both phases in the polling loop.
func (a *App) Worker(opts ...pipeline.WorkerOption) *pipeline.Worker {
	return pipeline.NewWorker(a.Organizer, a.Analyzer, pipeline.WorkerConfig{
		CheckInterval: a.Config.Pipeline.CheckInterval,
		QuotaCooldown: a.Config.Pipeline.QuotaCooldown,
		ErrorBackoff:  a.Config.Pipeline.ErrorBackoff,
	}, a.Logger, opts...)
}

// Close releases the database and the index. Safe on a partial App.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Index != nil {
		if err := a.Index.Close(); err != nil {
			a.Logger.Warn("app.close.index_failed", "error", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// OpenStorage returns the configured document store.
func OpenStorage(ctx context.Context, cfg *common.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "minio":
		m := cfg.Storage.Minio
		st, err := storage.NewMinioStorage(storage.MinioConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			UseSSL:    m.UseSSL,
			PageSize:  cfg.Storage.PageSize,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := st.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return st, nil
	case "local", "":
		return storage.NewLocalStorage(cfg.Storage.LocalRoot, cfg.Storage.PageSize, logger)
	default:
		return nil, fmt.Errorf("%w: storage backend %q", common.ErrInvalidInput, cfg.Storage.Backend)
	}
}

// OpenDatabase connects and migrates.
func OpenDatabase(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*repository.DB, error) {
	d := cfg.Database
	db, err := repository.Open(ctx, repository.Config{
		Driver:           d.Driver,
		DSN:              d.DSN,
		MaxConns:         d.MaxConns,
		MinConns:         d.MinConns,
		MaxConnLifetime:  d.MaxConnLifetime,
		MaxConnIdleTime:  d.MaxConnIdleTime,
		DialTimeout:      d.DialTimeout,
		StatementTimeout: d.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenRotator builds the organize key rotator. The database store needs db.
func OpenRotator(cfg *common.Config, db *repository.DB, logger *slog.Logger) (*keys.Rotator, error) {
	var repo keys.Repository
	switch cfg.Keys.Store {
	case "database":
		if db == nil {
			return nil, errors.New("key store database needs an open database")
		}
		repo = repository.NewKeyStateRepository(db)
	default:
		repo = keys.NewFileRepository(cfg.Keys.StatePath)
	}
	if len(cfg.LLM.OrganizeAPIKeys) == 0 {
		logger.Warn("app.keys.empty_pool", "hint", "set GEMINI_API_KEY_1..21")
	}
	return keys.NewRotator(cfg.LLM.OrganizeAPIKeys, repo,
		keys.WithLimit(cfg.Keys.DailyLimit),
		keys.WithWindow(cfg.Keys.Window),
		keys.WithLogger(logger),
	), nil
}

// OpenLedger loads a history file.
func OpenLedger(ctx context.Context, name, path string, logger *slog.Logger) (*history.Ledger, error) {
	l := history.NewLedger(name, history.NewFileStore(path), logger)
	if err := l.Load(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Models is the resolved generation backend.
type Models struct {
	Model   string
	Analyze llm.Generator
	ForKey  pipeline.GeneratorFactory
}

// NewModels builds the analyze generator and the per-key factory for the
// organize phase. With Gemini and no configured model the model is picked
// from the listing visible to the analyze key.
func NewModels(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*Models, error) {
	switch cfg.LLM.Provider {
	case "openai":
		base := openai.NewClient(openai.Config{
			APIKey:  cfg.LLM.AnalyzeAPIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		}, logger)
		return &Models{
			Model:   base.Model(),
			Analyze: base,
			ForKey:  func(key string) llm.Generator { return base.WithAPIKey(key) },
		}, nil
	case "gemini", "":
		base := gemini.NewClient(gemini.Config{
			BaseURL:    cfg.LLM.BaseURL,
			APIKey:     cfg.LLM.AnalyzeAPIKey,
			Model:      cfg.LLM.Model,
			Timeout:    cfg.LLM.Timeout,
			MaxRetries: cfg.LLM.MaxRetries,
		}, logger)
		if base.Model() == "" {
			base = base.WithModel(base.SelectModel(ctx))
		}
		return &Models{
			Model:   base.Model(),
			Analyze: base,
			ForKey:  func(key string) llm.Generator { return base.WithAPIKey(key) },
		}, nil
	default:
		return nil, fmt.Errorf("%w: llm provider %q", common.ErrInvalidInput, cfg.LLM.Provider)
	}
}

// TextFactory returns extractors whose vision fallback uses the given
// generator, so OCR calls are billed to the same key as the document.
func TextFactory(cfg *common.Config, model string, logger *slog.Logger) pipeline.TextFactory {
	o := cfg.OCR
	ocfg := ocr.Config{
		InitialPages:   o.InitialPages,
		MaxPages:       o.MaxPages,
		OCRPages:       o.OCRPages,
		DPI:            o.DPI,
		MinTextLength:  o.MinTextLength,
		MinOCRLength:   o.MinOCRLength,
		ContinueBelow:  o.ContinueBelow,
		CoverPageLimit: o.CoverPageLimit,
		TargetLength:   o.TargetLength,
	}
	bin := o.Pdftoppm
	if bin == "" {
		bin = "pdftoppm"
	}
	if err := ocr.LookupTool(bin); err != nil {
		logger.Warn("app.ocr.rasterizer_missing", "error", err)
	}
	raster := ocr.Pdftoppm{
		Bin:    bin,
		Runner: ocr.ExecRunner{Timeout: 2 * time.Minute, Logger: logger},
		Logger: logger,
	}
	return func(gen llm.Generator) pipeline.TextExtractor {
		var vision ocr.Transcriber
		if gen != nil {
			vision = &ocr.VisionTranscriber{
				Generator:     gen,
				Model:         model,
				MaxAttempts:   cfg.Pipeline.MaxRetries,
				RateLimitWait: cfg.Pipeline.RateLimitWait,
				Logger:        logger,
			}
		}
		return ocr.NewExtractor(ocfg, vision, logger, ocr.WithRasterizer(raster))
	}
}
