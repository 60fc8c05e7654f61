package ocr

import (
	"context"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// Engine turns a bitmap into text.
type Engine interface {
	Recognize(ctx context.Context, img image.Image, psm PageSegMode) (string, error)
}

// TesseractCLI runs the tesseract binary on a scratch PNG.
type TesseractCLI struct {
	path        string
	lang        string
	tessdataDir string
	runner      Runner
}

func NewTesseractCLI(cfg Config, runner Runner) *TesseractCLI {
	cfg = cfg.withDefaults()
	return &TesseractCLI{
		path:        cfg.TesseractPath,
		lang:        cfg.Language,
		tessdataDir: cfg.TessdataDir,
		runner:      runner,
	}
}

func (t *TesseractCLI) Recognize(ctx context.Context, img image.Image, psm PageSegMode) (string, error) {
	f, err := os.CreateTemp("", "facturas-ocr-*.png")
	if err != nil {
		return "", err
	}
	scratch := f.Name()
	_ = f.Close()
	defer os.Remove(scratch)

	if err := imaging.Save(img, scratch); err != nil {
		return "", fmt.Errorf("write scratch image: %w", err)
	}

	// tesseract <png> stdout -l <lang> --psm <n>
	args := []string{scratch, "stdout", "-l", t.lang, "--psm", strconv.Itoa(int(psm))}
	if t.tessdataDir != "" {
		args = append(args, "--tessdata-dir", t.tessdataDir)
	}
	out, errb, err := t.runner.Run(ctx, t.path, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	return string(out), nil
}
