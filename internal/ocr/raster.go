package ocr

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/disintegration/imaging"
)

// Rasterizer renders the first pages of a PDF into in-memory bitmaps.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string, dpi, maxPages int) ([]image.Image, error)
}

// Pdftoppm renders through poppler's pdftoppm into a scoped temp dir.
type Pdftoppm struct {
	path   string
	runner Runner
}

func NewPdftoppm(cfg Config, runner Runner) *Pdftoppm {
	cfg = cfg.withDefaults()
	return &Pdftoppm{path: cfg.PdftoppmPath, runner: runner}
}

func (p *Pdftoppm) Rasterize(ctx context.Context, path string, dpi, maxPages int) ([]image.Image, error) {
	tmpDir, err := os.MkdirTemp("", "facturas-pdf-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png -f 1 -l 3 <in.pdf> <tmp/page>
	args := []string{"-r", strconv.Itoa(dpi), "-png"}
	if maxPages > 0 {
		args = append(args, "-f", "1", "-l", strconv.Itoa(maxPages))
	}
	args = append(args, path, prefix)
	if _, errb, err := p.runner.Run(ctx, p.path, args...); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if maxPages > 0 && len(matches) > maxPages {
		matches = matches[:maxPages]
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no pages")
	}

	pages := make([]image.Image, 0, len(matches))
	for _, m := range matches {
		img, err := imaging.Open(m)
		if err != nil {
			return nil, fmt.Errorf("decode page %s: %w", filepath.Base(m), err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}
