package ocr

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PageSource reads the native text layer one page at a time.
type PageSource interface {
	NumPage() int
	// PageText returns the text of page i (zero-based).
	PageText(i int) (string, error)
}

// PDFOpener opens a document held in memory.
type PDFOpener interface {
	Open(data []byte) (PageSource, error)
}

// NativePDF opens documents with ledongthuc/pdf.
type NativePDF struct{}

func (NativePDF) Open(data []byte) (ps PageSource, err error) {
	// The parser panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			ps, err = nil, fmt.Errorf("open pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &nativePages{r: r}, nil
}

type nativePages struct {
	r *pdf.Reader
}

func (n *nativePages) NumPage() int { return n.r.NumPage() }

func (n *nativePages) PageText(i int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("page %d: %v", i+1, r)
		}
	}()
	page := n.r.Page(i + 1)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}
