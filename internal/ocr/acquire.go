package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// variant is one preprocessing + page segmentation combination.
type variant struct {
	name    string
	psm     PageSegMode
	prepare func(*image.Gray) image.Image
}

// Acquirer turns an image or PDF on disk into the best text it can get.
// It never fails: every problem is logged and yields "" at worst.
type Acquirer struct {
	cfg    Config
	engine Engine
	raster Rasterizer
	logger *zap.Logger
}

func NewAcquirer(cfg Config, engine Engine, raster Rasterizer, logger *zap.Logger) *Acquirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Acquirer{
		cfg:    cfg.withDefaults(),
		engine: engine,
		raster: raster,
		logger: logger.Named("ocr"),
	}
}

func (a *Acquirer) variants() []variant {
	identity := func(g *image.Gray) image.Image { return g }
	return []variant{
		{name: "gray", psm: a.cfg.PrimaryPSM, prepare: identity},
		{name: "clahe", psm: a.cfg.PrimaryPSM, prepare: func(g *image.Gray) image.Image {
			return equalizeAdaptive(g, claheTiles, claheClipLimit)
		}},
		{name: "contrast", psm: a.cfg.PrimaryPSM, prepare: enhanceContrast},
		{name: "adaptive", psm: a.cfg.PrimaryPSM, prepare: func(g *image.Gray) image.Image {
			return adaptiveThreshold(g, adaptiveBlock, adaptiveOffset)
		}},
		{name: "otsu", psm: a.cfg.PrimaryPSM, prepare: func(g *image.Gray) image.Image {
			return otsuThreshold(g)
		}},
		{name: "gray-alt-psm", psm: a.cfg.AlternatePSM, prepare: identity},
	}
}

// Acquire returns the recognized text of the file at path, or "" when the
// file is missing, unreadable or yields nothing usable.
func (a *Acquirer) Acquire(ctx context.Context, path string) string {
	if _, err := os.Stat(path); err != nil {
		a.report(&AcquisitionError{Stage: StageOpen, Path: path, Err: err})
		return ""
	}

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return a.acquirePDF(ctx, path)
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		a.report(&AcquisitionError{Stage: StageDecode, Path: path, Err: err})
		return ""
	}
	return a.bestText(ctx, capLongEdge(img, a.cfg.MaxImageEdge), path, 1)
}

func (a *Acquirer) acquirePDF(ctx context.Context, path string) string {
	if !a.cfg.DisablePDFTextLayer {
		text, err := pdfTextLayer(path, a.cfg.MaxPages)
		if err != nil {
			a.report(&AcquisitionError{Stage: StageTextLayer, Path: path, Err: err})
		} else if usableText(text, a.cfg.EarlyExitChars, a.cfg.MinAlnumRatio) {
			a.logger.Debug("using pdf text layer", zap.String("path", path), zap.Int("chars", len(text)))
			return text
		}
	}

	if a.raster == nil {
		a.report(&AcquisitionError{Stage: StageRasterize, Path: path, Err: errors.New("no rasterizer configured")})
		return ""
	}
	pages, err := a.raster.Rasterize(ctx, path, a.cfg.DPI, a.cfg.MaxPages)
	if err != nil {
		a.report(&AcquisitionError{Stage: StageRasterize, Path: path, Err: err})
		return ""
	}
	if len(pages) > a.cfg.MaxPages {
		pages = pages[:a.cfg.MaxPages]
	}

	texts := make([]string, 0, len(pages))
	for i, page := range pages {
		if t := a.bestText(ctx, page, path, i+1); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n")
}

// bestText runs the variants over one bitmap. A first pass that is long
// enough and readable is accepted as is; otherwise the best scoring
// transcription wins.
func (a *Acquirer) bestText(ctx context.Context, img image.Image, path string, page int) string {
	if a.engine == nil {
		a.report(&AcquisitionError{Stage: StageRecognize, Path: path, Page: page, Err: errors.New("no ocr engine configured")})
		return ""
	}
	gray := toGray(img)

	var cands []transcription
	for i, v := range a.variants() {
		if err := ctx.Err(); err != nil {
			a.report(&AcquisitionError{Stage: StageRecognize, Path: path, Page: page, Variant: v.name, Err: err})
			break
		}
		t, ok := a.attempt(ctx, v, gray, path, page)
		if !ok {
			continue
		}
		if i == 0 && usableText(t.text, a.cfg.EarlyExitChars, a.cfg.MinAlnumRatio) {
			return t.text
		}
		cands = append(cands, t)
	}

	best, ok := pickBest(cands, a.cfg.MinAlnumRatio)
	if !ok {
		a.logger.Debug("no usable transcription", zap.String("path", path), zap.Int("page", page))
		return ""
	}
	a.logger.Debug("picked transcription",
		zap.String("path", path),
		zap.Int("page", page),
		zap.String("variant", best.variant),
		zap.Int("chars", best.length()),
	)
	return best.text
}

func (a *Acquirer) attempt(ctx context.Context, v variant, gray *image.Gray, path string, page int) (t transcription, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.report(&AcquisitionError{Stage: StageRecognize, Path: path, Page: page, Variant: v.name, Err: fmt.Errorf("panic: %v", r)})
			t, ok = transcription{}, false
		}
	}()

	text, err := a.engine.Recognize(ctx, v.prepare(gray), v.psm)
	if err != nil {
		a.report(&AcquisitionError{Stage: StageRecognize, Path: path, Page: page, Variant: v.name, Err: err})
		return transcription{}, false
	}
	return transcription{variant: v.name, text: strings.TrimSpace(text)}, true
}

func (a *Acquirer) report(err *AcquisitionError) {
	a.logger.Warn("ocr step failed", zap.String("stage", string(err.Stage)), zap.Error(err))
}
