package ocr

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/projectvak/contract-pipeline/constants"
	"github.com/projectvak/contract-pipeline/internal/common"
)

type Config struct {
	InitialPages   int // pages read before any decision
	MaxPages       int // hard cap for adaptive continuation
	OCRPages       int // pages rasterized for the vision fallback
	DPI            int
	MinTextLength  int // below this the native layer is treated as a scan
	MinOCRLength   int // transcript must exceed this to replace native text
	ContinueBelow  int // short text triggers continuation
	CoverPageLimit int // cover/index text below this triggers continuation
	TargetLength   int // continuation stops once text exceeds this
	CoverWords     []string
}

func DefaultConfig() Config {
	return Config{
		InitialPages:   5,
		MaxPages:       15,
		OCRPages:       3,
		DPI:            200,
		MinTextLength:  200,
		MinOCRLength:   100,
		ContinueBelow:  500,
		CoverPageLimit: 1000,
		TargetLength:   1000,
		CoverWords:     []string{"voorblad", "inhoudsopgave", "inhoud", "index"},
	}
}

// Metadata describes how the text was obtained.
type Metadata struct {
	TotalPages   int    `json:"total_pages"`
	PagesScanned int    `json:"pages_scanned"`
	TextLength   int    `json:"text_length"`
	Method       string `json:"extraction_method"`
	Error        string `json:"error,omitempty"`
}

// Extractor turns PDF bytes into plain text with a vision OCR fallback.
type Extractor struct {
	cfg    Config
	opener PDFOpener
	raster Rasterizer
	vision Transcriber
	logger *slog.Logger
}

type Option func(*Extractor)

func WithOpener(o PDFOpener) Option      { return func(e *Extractor) { e.opener = o } }
func WithRasterizer(r Rasterizer) Option { return func(e *Extractor) { e.raster = r } }

// NewExtractor builds an Extractor. A nil vision disables the OCR fallback
// (the method is still reported as ocr when it would have run).
func NewExtractor(cfg Config, vision Transcriber, logger *slog.Logger, opts ...Option) *Extractor {
	def := DefaultConfig()
	if cfg.InitialPages <= 0 {
		cfg.InitialPages = def.InitialPages
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if cfg.OCRPages <= 0 {
		cfg.OCRPages = def.OCRPages
	}
	if cfg.DPI <= 0 {
		cfg.DPI = def.DPI
	}
	if cfg.CoverWords == nil {
		cfg.CoverWords = def.CoverWords
	}
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = def.MinTextLength
	}
	if cfg.MinOCRLength <= 0 {
		cfg.MinOCRLength = def.MinOCRLength
	}
	if cfg.ContinueBelow <= 0 {
		cfg.ContinueBelow = def.ContinueBelow
	}
	if cfg.CoverPageLimit <= 0 {
		cfg.CoverPageLimit = def.CoverPageLimit
	}
	if cfg.TargetLength <= 0 {
		cfg.TargetLength = def.TargetLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{
		cfg:    cfg,
		opener: NativePDF{},
		raster: Pdftoppm{Logger: logger},
		vision: vision,
		logger: logger,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract never fails: problems degrade to whatever text was gathered and,
// when nothing could be read at all, to empty text with Metadata.Error set.
func (e *Extractor) Extract(ctx context.Context, data []byte) (text string, meta Metadata) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("textextract.panic", "panic", r)
			text, meta = "", Metadata{Error: "extraction panic"}
		}
	}()

	doc, err := e.opener.Open(data)
	if err != nil {
		e.logger.Error("textextract.open_error", "error", err, "bytes", len(data))
		return "", Metadata{Error: err.Error()}
	}

	total := doc.NumPage()
	meta = Metadata{TotalPages: total, Method: constants.MethodText}

	var raw strings.Builder
	for i := 0; i < min(e.cfg.InitialPages, total); i++ {
		pt, err := doc.PageText(i)
		if err != nil {
			e.logger.Debug("textextract.page_error", "page", i+1, "error", err)
			continue
		}
		raw.WriteString(pt)
		raw.WriteByte('\n')
		meta.PagesScanned++
	}
	text = CollapseWhitespace(raw.String())

	if common.CharLen(text) < e.cfg.MinTextLength && total > 0 {
		e.logger.Info("textextract.ocr.start", "native_len", common.CharLen(text), "total_pages", total)
		meta.Method = constants.MethodOCR
		if ocrText := e.ocr(ctx, data, total); common.CharLen(ocrText) > e.cfg.MinOCRLength {
			text = ocrText
			e.logger.Info("textextract.ocr.ok", "text_len", common.CharLen(text))
		} else {
			e.logger.Warn("textextract.ocr.little_text", "ocr_len", common.CharLen(ocrText))
		}
	}

	if e.needMore(text, meta.Method) && total > e.cfg.InitialPages && meta.Method == constants.MethodText {
		e.logger.Info("textextract.continue", "text_len", common.CharLen(text), "total_pages", total)
		for i := e.cfg.InitialPages; i < min(e.cfg.MaxPages, total); i++ {
			pt, err := doc.PageText(i)
			if err != nil {
				continue
			}
			raw.WriteString(pt)
			raw.WriteByte('\n')
			meta.PagesScanned++
			if i%3 == 0 && common.CharLen(CollapseWhitespace(raw.String())) > e.cfg.TargetLength {
				break
			}
		}
		text = CollapseWhitespace(raw.String())
	}

	meta.TextLength = common.CharLen(text)
	e.logger.Info("textextract.done",
		"method", meta.Method,
		"pages_scanned", meta.PagesScanned,
		"total_pages", total,
		"text_len", meta.TextLength,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, meta
}

func (e *Extractor) needMore(text, method string) bool {
	n := common.CharLen(text)
	if n < e.cfg.ContinueBelow {
		return true
	}
	if method != constants.MethodText || n >= e.cfg.CoverPageLimit {
		return false
	}
	lower := strings.ToLower(text)
	for _, w := range e.cfg.CoverWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func (e *Extractor) ocr(ctx context.Context, data []byte, total int) string {
	if e.vision == nil {
		e.logger.Warn("textextract.ocr.disabled")
		return ""
	}
	images, err := e.raster.Rasterize(ctx, data, min(e.cfg.OCRPages, total), e.cfg.DPI)
	if err != nil {
		e.logger.Error("textextract.ocr.rasterize_error", "error", err)
		return ""
	}
	out, err := e.vision.Transcribe(ctx, images)
	if err != nil {
		e.logger.Error("textextract.ocr.vision_error", "error", err, "pages", len(images))
		return ""
	}
	return NormalizeTranscript(out)
}
