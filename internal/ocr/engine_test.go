package ocr

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
)

type stubRunner struct {
	name  string
	args  []string
	onRun func(args []string) ([]byte, []byte, error)
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.name = name
	s.args = args
	return s.onRun(args)
}

func TestTesseractCLIArgsAndCleanup(t *testing.T) {
	var scratchSeen bool
	r := &stubRunner{onRun: func(args []string) ([]byte, []byte, error) {
		_, err := os.Stat(args[0])
		scratchSeen = err == nil
		return []byte("FACTURA 123\n"), nil, nil
	}}
	eng := NewTesseractCLI(Config{TessdataDir: "/opt/tessdata"}, r)

	got, err := eng.Recognize(context.Background(), imaging.New(10, 10, color.White), PSMSingleBlock)
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if got != "FACTURA 123\n" {
		t.Fatalf("got %q", got)
	}
	if r.name != "tesseract" {
		t.Fatalf("binary=%q", r.name)
	}
	want := "stdout -l spa --psm 6 --tessdata-dir /opt/tessdata"
	if strings.Join(r.args[1:], " ") != want {
		t.Fatalf("args=%v", r.args)
	}
	if !scratchSeen {
		t.Fatalf("scratch image missing while tesseract ran")
	}
	if _, err := os.Stat(r.args[0]); !os.IsNotExist(err) {
		t.Fatalf("scratch image not removed: %v", err)
	}
}

func TestTesseractCLIFailureCleansUp(t *testing.T) {
	r := &stubRunner{onRun: func([]string) ([]byte, []byte, error) {
		return nil, []byte("Error opening data file"), errors.New("exit status 1")
	}}
	eng := NewTesseractCLI(Config{}, r)
	if _, err := eng.Recognize(context.Background(), imaging.New(4, 4, color.Black), PSMSingleColumn); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := os.Stat(r.args[0]); !os.IsNotExist(err) {
		t.Fatalf("scratch image not removed")
	}
}

func TestPdftoppmRasterize(t *testing.T) {
	var prefix string
	r := &stubRunner{onRun: func(args []string) ([]byte, []byte, error) {
		prefix = args[len(args)-1]
		for _, n := range []string{"1", "2"} {
			if err := imaging.Save(imaging.New(8, 8, color.White), prefix+"-"+n+".png"); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	}}
	p := NewPdftoppm(Config{}, r)

	pages, err := p.Rasterize(context.Background(), "/in/doc.pdf", 300, 3)
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages=%d", len(pages))
	}
	want := "-r 300 -png -f 1 -l 3 /in/doc.pdf"
	if strings.Join(r.args[:len(r.args)-1], " ") != want {
		t.Fatalf("args=%v", r.args)
	}
	if _, err := os.Stat(filepath.Dir(prefix)); !os.IsNotExist(err) {
		t.Fatalf("temp dir left behind")
	}
}

func TestPdftoppmNoPages(t *testing.T) {
	r := &stubRunner{onRun: func([]string) ([]byte, []byte, error) { return nil, nil, nil }}
	if _, err := NewPdftoppm(Config{}, r).Rasterize(context.Background(), "x.pdf", 300, 3); err == nil {
		t.Fatalf("expected error for empty output")
	}
}
