// Package search keeps a full-text index of extracted contract texts.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Document is what gets indexed for one source file.
type Document struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Hit is one search result.
type Hit struct {
	Path  string
	Name  string
	Score float64
}

// Index wraps a bleve index keyed by source path.
type Index struct {
	index  bleve.Index
	logger *slog.Logger
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	// Standard analyzer: lowercase and tokenize without stemming, so Dutch
	// words are not mangled by the English stemmer.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	doc.AddFieldMappingsAt("content", text)

	name := bleve.NewTextFieldMapping()
	name.Analyzer = standard.Name
	name.Store = true
	doc.AddFieldMappingsAt("name", name)

	path := bleve.NewKeywordFieldMapping()
	path.Store = true
	doc.AddFieldMappingsAt("path", path)

	im.AddDocumentMapping("document", doc)
	im.DefaultType = "document"
	im.DefaultMapping = doc
	return im
}

// Open opens the index at dir, creating it when missing. An empty dir
// gives an in-memory index.
func Open(dir string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		idx, err := bleve.NewMemOnly(newMapping())
		if err != nil {
			return nil, fmt.Errorf("create memory index: %w", err)
		}
		return &Index{index: idx, logger: logger}, nil
	}
	if _, err := os.Stat(dir); err == nil {
		idx, err := bleve.Open(dir)
		if err != nil {
			return nil, fmt.Errorf("open search index: %w", err)
		}
		return &Index{index: idx, logger: logger}, nil
	}
	idx, err := bleve.New(dir, newMapping())
	if err != nil {
		return nil, fmt.Errorf("create search index: %w", err)
	}
	logger.Info("search.index.created", "dir", dir)
	return &Index{index: idx, logger: logger}, nil
}

// Index adds or replaces the document for path.
func (i *Index) Index(_ context.Context, path, name, content string) error {
	if err := i.index.Index(path, Document{Path: path, Name: name, Content: content}); err != nil {
		return fmt.Errorf("index %s: %w", path, err)
	}
	i.logger.Debug("search.indexed", "path", path, "chars", len(content))
	return nil
}

// Search runs a match query over content and name and returns at most
// limit hits, best first.
func (i *Index) Search(_ context.Context, query string, limit int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = limit
	req.Fields = []string{"name", "path"}
	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	hits := make([]Hit, len(res.Hits))
	for n, h := range res.Hits {
		name, _ := h.Fields["name"].(string)
		hits[n] = Hit{Path: h.ID, Name: name, Score: h.Score}
	}
	return hits, nil
}

// Delete drops path from the index.
func (i *Index) Delete(_ context.Context, path string) error {
	return i.index.Delete(path)
}

// Count returns the number of indexed documents.
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

func (i *Index) Close() error {
	return i.index.Close()
}
