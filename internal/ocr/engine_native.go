//go:build ocr

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	fitz "github.com/gen2brain/go-fitz"
	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
)

// NativeEngine links libtesseract through gosseract.
type NativeEngine struct {
	lang        string
	tessdataDir string
}

func NewNativeEngine(cfg Config) *NativeEngine {
	cfg = cfg.withDefaults()
	return &NativeEngine{lang: cfg.Language, tessdataDir: cfg.TessdataDir}
}

func (e *NativeEngine) Recognize(ctx context.Context, img image.Image, psm PageSegMode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()
	if e.tessdataDir != "" {
		client.TessdataPrefix = e.tessdataDir
	}
	if err := client.SetLanguage(e.lang); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(psm)); err != nil {
		return "", fmt.Errorf("set psm: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	return client.Text()
}

// FitzRasterizer renders pages in-process with MuPDF.
type FitzRasterizer struct{}

func (FitzRasterizer) Rasterize(ctx context.Context, path string, dpi, maxPages int) ([]image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}
	pages := make([]image.Image, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(i, float64(dpi))
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

func NewDefaultEngine(cfg Config, logger *zap.Logger) Engine {
	return NewNativeEngine(cfg)
}

func NewDefaultRasterizer(cfg Config, logger *zap.Logger) Rasterizer {
	return FitzRasterizer{}
}
