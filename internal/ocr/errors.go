package ocr

import "fmt"

type Stage string

const (
	StageOpen      Stage = "open"
	StageDecode    Stage = "decode"
	StageRasterize Stage = "rasterize"
	StageTextLayer Stage = "text_layer"
	StageRecognize Stage = "recognize"
)

// AcquisitionError describes one failed step of text acquisition. Acquire
// logs these and moves on; they never reach the caller.
type AcquisitionError struct {
	Stage   Stage
	Path    string
	Page    int
	Variant string
	Err     error
}

func (e *AcquisitionError) Error() string {
	if e.Variant != "" {
		return fmt.Sprintf("ocr %s %s page=%d variant=%s: %v", e.Stage, e.Path, e.Page, e.Variant, e.Err)
	}
	return fmt.Sprintf("ocr %s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}
