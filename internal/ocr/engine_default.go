//go:build !ocr

package ocr

import "go.uber.org/zap"

// NewDefaultEngine shells out to the tesseract binary. Build with -tags ocr
// to link libtesseract instead.
func NewDefaultEngine(cfg Config, logger *zap.Logger) Engine {
	return NewTesseractCLI(cfg, NewExecRunner(logger))
}

func NewDefaultRasterizer(cfg Config, logger *zap.Logger) Rasterizer {
	return NewPdftoppm(cfg, NewExecRunner(logger))
}
