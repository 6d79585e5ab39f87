package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Rasterizer renders the first pages of a PDF to PNG images.
type Rasterizer interface {
	Rasterize(ctx context.Context, data []byte, pages, dpi int) ([][]byte, error)
}

// Pdftoppm shells out to poppler's pdftoppm.
type Pdftoppm struct {
	Bin    string
	Runner Runner
	Logger *slog.Logger
}

func (p Pdftoppm) Rasterize(ctx context.Context, data []byte, pages, dpi int) ([][]byte, error) {
	bin := p.Bin
	if bin == "" {
		bin = "pdftoppm"
	}
	runner := p.Runner
	if runner == nil {
		runner = ExecRunner{Logger: p.Logger}
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tmpDir, err := os.MkdirTemp("", "contracts-pp-*")
	if err != nil {
		return nil, err
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("ocr.rasterize.cleanup_error", "dir", path, "error", err)
		}
	}(tmpDir)

	in := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, err
	}
	prefix := filepath.Join(tmpDir, "page")

	// pdftoppm -r 200 -png -f 1 -l 3 <in.pdf> <tmp/page>
	_, errb, err := runner.Run(ctx, bin,
		"-r", strconv.Itoa(dpi), "-png", "-f", "1", "-l", strconv.Itoa(pages), in, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	// collect generated pngs (page-1.png or zero padded page-01.png)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) > pages {
		matches = matches[:pages]
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images")
	}

	images := make([][]byte, 0, len(matches))
	for _, m := range matches {
		b, err := os.ReadFile(m)
		if err != nil {
			return nil, err
		}
		images = append(images, b)
	}
	return images, nil
}
