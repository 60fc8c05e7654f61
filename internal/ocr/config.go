package ocr

// PageSegMode is the tesseract --psm value.
type PageSegMode int

const (
	PSMAuto         PageSegMode = 3
	PSMSingleColumn PageSegMode = 4
	PSMSingleBlock  PageSegMode = 6
	PSMSparseText   PageSegMode = 11
)

type Config struct {
	TesseractPath string // binary name or absolute path; empty -> "tesseract"
	PdftoppmPath  string // binary name or absolute path; empty -> "pdftoppm"
	Language      string // default "spa"
	TessdataDir   string

	DPI      int // PDF rasterization, default 300
	MaxPages int // default 3

	MaxImageEdge   int     // longer edge cap for bitmaps, default 2000
	EarlyExitChars int     // default 200
	MinAlnumRatio  float64 // default 0.30

	PrimaryPSM   PageSegMode // default 6
	AlternatePSM PageSegMode // default 4

	DisablePDFTextLayer bool
}

func (c Config) withDefaults() Config {
	if c.TesseractPath == "" {
		c.TesseractPath = "tesseract"
	}
	if c.PdftoppmPath == "" {
		c.PdftoppmPath = "pdftoppm"
	}
	if c.Language == "" {
		c.Language = "spa"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 3
	}
	if c.MaxImageEdge <= 0 {
		c.MaxImageEdge = 2000
	}
	if c.EarlyExitChars <= 0 {
		c.EarlyExitChars = 200
	}
	if c.MinAlnumRatio <= 0 {
		c.MinAlnumRatio = 0.30
	}
	if c.PrimaryPSM <= 0 {
		c.PrimaryPSM = PSMSingleBlock
	}
	if c.AlternatePSM <= 0 {
		c.AlternatePSM = PSMSingleColumn
	}
	return c
}
