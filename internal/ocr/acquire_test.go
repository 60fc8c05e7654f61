package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"go.uber.org/zap/zaptest"
)

type stubEngine struct {
	mu      sync.Mutex
	psms    []PageSegMode
	respond func(call int) (string, error)
}

func (s *stubEngine) Recognize(_ context.Context, _ image.Image, psm PageSegMode) (string, error) {
	s.mu.Lock()
	call := len(s.psms)
	s.psms = append(s.psms, psm)
	s.mu.Unlock()
	return s.respond(call)
}

func (s *stubEngine) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.psms)
}

type stubRasterizer struct {
	pages []image.Image
	err   error
}

func (s stubRasterizer) Rasterize(context.Context, string, int, int) ([]image.Image, error) {
	return s.pages, s.err
}

func writeTestImage(t *testing.T, name string) string {
	t.Helper()
	img := imaging.New(120, 40, color.White)
	path := filepath.Join(t.TempDir(), name)
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	return path
}

func invoiceText(n int) string {
	return strings.Repeat("ARROZ 1500 ", n)
}

func TestAcquireMissingFile(t *testing.T) {
	eng := &stubEngine{respond: func(int) (string, error) { return "x", nil }}
	a := NewAcquirer(Config{}, eng, nil, zaptest.NewLogger(t))
	if got := a.Acquire(context.Background(), "/does/not/exist.png"); got != "" {
		t.Fatalf("got %q", got)
	}
	if eng.calls() != 0 {
		t.Fatalf("engine called %d times", eng.calls())
	}
}

func TestAcquireEarlyExit(t *testing.T) {
	path := writeTestImage(t, "scan.png")
	long := invoiceText(30)
	eng := &stubEngine{respond: func(int) (string, error) { return long, nil }}
	a := NewAcquirer(Config{}, eng, nil, zaptest.NewLogger(t))

	got := a.Acquire(context.Background(), path)
	if got != strings.TrimSpace(long) {
		t.Fatalf("unexpected text %q", got)
	}
	if eng.calls() != 1 {
		t.Fatalf("expected a single pass, got %d", eng.calls())
	}
	if eng.psms[0] != PSMSingleBlock {
		t.Fatalf("first pass psm=%d", eng.psms[0])
	}
}

func TestAcquirePicksLongestReadable(t *testing.T) {
	path := writeTestImage(t, "scan.jpg")
	responses := []string{
		"ARROZ 1500",
		"ARROZ TUCAPEL 1500 2 3000",
		strings.Repeat("~|~ ", 40), // long but unreadable
		"ARROZ TUCAPEL 1500",
		"",
		"ARROZ",
	}
	eng := &stubEngine{respond: func(call int) (string, error) { return responses[call], nil }}
	a := NewAcquirer(Config{}, eng, nil, zaptest.NewLogger(t))

	got := a.Acquire(context.Background(), path)
	if got != "ARROZ TUCAPEL 1500 2 3000" {
		t.Fatalf("got %q", got)
	}
	if eng.calls() != len(responses) {
		t.Fatalf("calls=%d", eng.calls())
	}
	if eng.psms[len(eng.psms)-1] != PSMSingleColumn {
		t.Fatalf("last pass psm=%d", eng.psms[len(eng.psms)-1])
	}
}

func TestAcquireLongUnreadableFirstPassKeepsGoing(t *testing.T) {
	path := writeTestImage(t, "scan.png")
	eng := &stubEngine{respond: func(call int) (string, error) {
		if call == 0 {
			return strings.Repeat("~|~ ", 80), nil
		}
		return "ARROZ TUCAPEL 1500 2 3000", nil
	}}
	a := NewAcquirer(Config{}, eng, nil, zaptest.NewLogger(t))

	if got := a.Acquire(context.Background(), path); got != "ARROZ TUCAPEL 1500 2 3000" {
		t.Fatalf("got %q", got)
	}
	if eng.calls() != 6 {
		t.Fatalf("expected every variant to run, got %d", eng.calls())
	}
}

func TestAcquireAllPassesUnreadable(t *testing.T) {
	path := writeTestImage(t, "scan.png")
	eng := &stubEngine{respond: func(int) (string, error) { return strings.Repeat("~|~ ", 80), nil }}
	a := NewAcquirer(Config{}, eng, nil, zaptest.NewLogger(t))
	if got := a.Acquire(context.Background(), path); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestAcquisitionErrorWraps(t *testing.T) {
	cause := errors.New("tesseract exited 1")
	err := error(&AcquisitionError{Stage: StageRecognize, Path: "scan.png", Page: 2, Variant: "otsu", Err: cause})
	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable through Unwrap")
	}
	if got := err.Error(); got != "ocr recognize scan.png page=2 variant=otsu: tesseract exited 1" {
		t.Fatalf("message %q", got)
	}
	open := &AcquisitionError{Stage: StageOpen, Path: "x.png", Err: os.ErrNotExist}
	if got := open.Error(); got != "ocr open x.png: file does not exist" {
		t.Fatalf("message %q", got)
	}
}

func TestAcquireSurvivesFailingVariants(t *testing.T) {
	path := writeTestImage(t, "scan.png")
	eng := &stubEngine{respond: func(call int) (string, error) {
		switch call {
		case 0:
			return "", errors.New("tesseract exited 1")
		case 1:
			panic("boom")
		case 4:
			return "ACEITE MARAVILLA 2500", nil
		}
		return "", nil
	}}
	a := NewAcquirer(Config{}, eng, nil, zaptest.NewLogger(t))

	if got := a.Acquire(context.Background(), path); got != "ACEITE MARAVILLA 2500" {
		t.Fatalf("got %q", got)
	}
}

func TestAcquireAllVariantsFail(t *testing.T) {
	path := writeTestImage(t, "scan.png")
	eng := &stubEngine{respond: func(int) (string, error) { return "", errors.New("no engine") }}
	a := NewAcquirer(Config{}, eng, nil, zaptest.NewLogger(t))
	if got := a.Acquire(context.Background(), path); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestAcquireUndecodableImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	eng := &stubEngine{respond: func(int) (string, error) { return "x", nil }}
	a := NewAcquirer(Config{}, eng, nil, zaptest.NewLogger(t))
	if got := a.Acquire(context.Background(), path); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestAcquirePDFJoinsPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 scanned"), 0o644); err != nil {
		t.Fatal(err)
	}
	page := imaging.New(50, 50, color.White)
	pages := []image.Image{page, page, page, page}

	eng := &stubEngine{respond: func(call int) (string, error) {
		// one early-exit pass per page
		return strings.Repeat("P", 250) + string(rune('1'+call)), nil
	}}
	a := NewAcquirer(Config{}, eng, stubRasterizer{pages: pages}, zaptest.NewLogger(t))

	got := a.Acquire(context.Background(), path)
	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 pages of text, got %d", len(lines))
	}
	for i, l := range lines {
		if !strings.HasSuffix(l, string(rune('1'+i))) {
			t.Fatalf("page %d out of order: %q", i+1, l[len(l)-1:])
		}
	}
}

func TestAcquirePDFRasterFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.PDF")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	eng := &stubEngine{respond: func(int) (string, error) { return "x", nil }}
	a := NewAcquirer(Config{}, eng, stubRasterizer{err: errors.New("pdftoppm missing")}, zaptest.NewLogger(t))
	if got := a.Acquire(context.Background(), path); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestAcquireCapsLargeImages(t *testing.T) {
	img := imaging.New(4000, 1000, color.White)
	capped := capLongEdge(img, 2000)
	if b := capped.Bounds(); b.Dx() != 2000 || b.Dy() != 500 {
		t.Fatalf("capped to %v", b)
	}
	small := imaging.New(300, 200, color.White)
	if capLongEdge(small, 2000) != image.Image(small) {
		t.Fatalf("small image should be returned untouched")
	}
}

func TestPickBest(t *testing.T) {
	cands := []transcription{
		{variant: "a", text: "uno dos"},
		{variant: "b", text: "unodos1"},
		{variant: "c", text: "@@@@@@@@@@@@@@@@"},
	}
	best, ok := pickBest(cands, 0.3)
	if !ok || best.variant != "a" {
		t.Fatalf("best=%+v ok=%v", best, ok)
	}
	if _, ok := pickBest([]transcription{{text: "@@@"}}, 0.3); ok {
		t.Fatalf("expected nothing readable")
	}
}
