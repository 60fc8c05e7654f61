package ocr

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

func grayFill(w, h int, fn func(x, y int) uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.SetGray(x, y, color.Gray{Y: fn(x, y)})
		}
	}
	return g
}

func spread(g *image.Gray) (lo, hi uint8) {
	lo, hi = 255, 0
	for _, v := range g.Pix {
		lo, hi = min(lo, v), max(hi, v)
	}
	return lo, hi
}

func TestToGray(t *testing.T) {
	img := imaging.New(7, 3, color.NRGBA{R: 255, A: 255})
	g := toGray(img)
	if b := g.Bounds(); b.Dx() != 7 || b.Dy() != 3 || b.Min != (image.Point{}) {
		t.Fatalf("bounds=%v", b)
	}
	if g.Pix[0] == 0 || g.Pix[0] == 255 {
		t.Fatalf("red should map to a mid gray, got %d", g.Pix[0])
	}
}

func TestOtsuSplitsBimodal(t *testing.T) {
	g := grayFill(20, 10, func(x, _ int) uint8 {
		if x < 10 {
			return 40
		}
		return 200
	})
	level := otsuLevel(g)
	if level < 40 || level >= 200 {
		t.Fatalf("level=%d", level)
	}
	out := otsuThreshold(g)
	if out.GrayAt(0, 0).Y != 0 || out.GrayAt(19, 9).Y != 255 {
		t.Fatalf("unexpected binarization")
	}
}

func TestAdaptiveThresholdDarkText(t *testing.T) {
	// light background with a dark stroke
	g := grayFill(64, 64, func(x, _ int) uint8 {
		if x >= 30 && x < 33 {
			return 20
		}
		return 220
	})
	out := adaptiveThreshold(g, adaptiveBlock, adaptiveOffset)
	if out.GrayAt(31, 32).Y != 0 {
		t.Fatalf("stroke should be black")
	}
	if out.GrayAt(5, 5).Y != 255 {
		t.Fatalf("background should be white")
	}
}

func TestEqualizeAdaptiveWidensLowContrast(t *testing.T) {
	g := grayFill(64, 64, func(x, y int) uint8 { return uint8(100 + (x+y)%20) })
	out := equalizeAdaptive(g, claheTiles, claheClipLimit)
	if out.Bounds() != g.Bounds() {
		t.Fatalf("bounds changed: %v", out.Bounds())
	}
	inLo, inHi := spread(g)
	outLo, outHi := spread(out)
	if int(outHi)-int(outLo) <= int(inHi)-int(inLo) {
		t.Fatalf("contrast not widened: in %d..%d out %d..%d", inLo, inHi, outLo, outHi)
	}
}

func TestEqualizeAdaptiveTinyImage(t *testing.T) {
	g := grayFill(3, 2, func(x, y int) uint8 { return uint8(x * 50) })
	out := equalizeAdaptive(g, claheTiles, claheClipLimit)
	if out.Bounds().Dx() != 3 || out.Bounds().Dy() != 2 {
		t.Fatalf("bounds=%v", out.Bounds())
	}
}
