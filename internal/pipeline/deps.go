// Package pipeline runs the two document phases: organize moves new scans
// into address folders, analyze turns rental contracts into stored records.
package pipeline

import (
	"context"
	"path"
	"strings"

	"github.com/projectvak/contract-pipeline/internal/crm"
	"github.com/projectvak/contract-pipeline/internal/llm"
	"github.com/projectvak/contract-pipeline/internal/ocr"
)

// TextExtractor turns document bytes into text. It never fails; problems
// show up as short text and Metadata.Error.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (string, ocr.Metadata)
}

// KeyAllocator hands out organize keys. An index of -1 means every key is
// spent for the current window.
type KeyAllocator interface {
	Allocate(ctx context.Context) (string, int, error)
}

// GeneratorFactory builds a generator bound to one API key.
type GeneratorFactory func(apiKey string) llm.Generator

// TextFactory builds a text extractor whose vision fallback uses gen.
type TextFactory func(gen llm.Generator) TextExtractor

type Summarizer interface {
	Summarize(ctx context.Context, docType, text string) (string, error)
}

// Indexer receives the full text of every analyzed contract.
type Indexer interface {
	Index(ctx context.Context, path, name, content string) error
}

// CRMPusher forwards high-confidence contracts.
type CRMPusher interface {
	Enabled() bool
	Eligible(score float64) bool
	Push(ctx context.Context, p crm.Payload) (*crm.Pushed, error)
}

func hasPathPrefix(p, prefix string) bool {
	p, prefix = strings.ToLower(p), strings.ToLower(strings.TrimSuffix(prefix, "/"))
	return prefix != "" && (p == prefix || strings.HasPrefix(p, prefix+"/"))
}

func baseName(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}
