package ocr

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const (
	claheTiles      = 8
	claheClipLimit  = 2.0
	adaptiveBlock   = 31
	adaptiveOffset  = 10
	contrastPercent = 40
	sharpenSigma    = 1.0
)

// toGray returns a zero-origin 8-bit grayscale copy of img.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	src := imaging.Grayscale(img)
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := src.Pix[y*src.Stride:]
		out := dst.Pix[y*dst.Stride:]
		for x := 0; x < b.Dx(); x++ {
			out[x] = row[x*4]
		}
	}
	return dst
}

// capLongEdge shrinks img so its longer edge is at most max pixels.
func capLongEdge(img image.Image, max int) image.Image {
	b := img.Bounds()
	if max <= 0 || (b.Dx() <= max && b.Dy() <= max) {
		return img
	}
	return imaging.Fit(img, max, max, imaging.Lanczos)
}

func enhanceContrast(g *image.Gray) image.Image {
	return imaging.Sharpen(imaging.AdjustContrast(g, contrastPercent), sharpenSigma)
}

// equalizeAdaptive is contrast-limited adaptive histogram equalization:
// per-tile clipped histograms, bilinear blending between tile centers.
func equalizeAdaptive(src *image.Gray, tiles int, clipLimit float64) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}

	tileW := (w + tiles - 1) / tiles
	tileH := (h + tiles - 1) / tiles
	tx := (w + tileW - 1) / tileW
	ty := (h + tileH - 1) / tileH

	luts := make([][256]uint8, tx*ty)
	for j := 0; j < ty; j++ {
		for i := 0; i < tx; i++ {
			x0, y0 := i*tileW, j*tileH
			x1, y1 := min(x0+tileW, w), min(y0+tileH, h)

			var hist [256]int
			n := 0
			for y := y0; y < y1; y++ {
				row := src.Pix[y*src.Stride:]
				for x := x0; x < x1; x++ {
					hist[row[x]]++
					n++
				}
			}

			limit := int(clipLimit * float64(n) / 256)
			if limit < 1 {
				limit = 1
			}
			excess := 0
			for k := range hist {
				if hist[k] > limit {
					excess += hist[k] - limit
					hist[k] = limit
				}
			}
			inc, rem := excess/256, excess%256
			for k := range hist {
				hist[k] += inc
			}
			if rem > 0 {
				step := max(256/rem, 1)
				for k := 0; k < 256 && rem > 0; k += step {
					hist[k]++
					rem--
				}
			}

			lut := &luts[j*tx+i]
			cdf := 0
			for k := 0; k < 256; k++ {
				cdf += hist[k]
				lut[k] = uint8((cdf*255 + n/2) / n)
			}
		}
	}

	// tile index pair and weight of the right/bottom neighbour for a coordinate
	locate := func(p, size, count int) (int, int, float64) {
		f := (float64(p)+0.5)/float64(size) - 0.5
		if f <= 0 {
			return 0, 0, 0
		}
		i0 := int(math.Floor(f))
		if i0 >= count-1 {
			return count - 1, count - 1, 0
		}
		return i0, i0 + 1, f - float64(i0)
	}

	for y := 0; y < h; y++ {
		j0, j1, ay := locate(y, tileH, ty)
		row := src.Pix[y*src.Stride:]
		out := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			i0, i1, ax := locate(x, tileW, tx)
			v := row[x]
			top := (1-ax)*float64(luts[j0*tx+i0][v]) + ax*float64(luts[j0*tx+i1][v])
			bot := (1-ax)*float64(luts[j1*tx+i0][v]) + ax*float64(luts[j1*tx+i1][v])
			out[x] = uint8(math.Round((1-ay)*top + ay*bot))
		}
	}
	return dst
}

// adaptiveThreshold binarizes against the local mean of a block x block
// window: pixels brighter than mean-offset become white.
func adaptiveThreshold(src *image.Gray, block, offset int) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}

	// summed-area table with a zero border
	stride := w + 1
	sat := make([]int64, stride*(h+1))
	for y := 0; y < h; y++ {
		var rowSum int64
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			rowSum += int64(row[x])
			sat[(y+1)*stride+x+1] = sat[y*stride+x+1] + rowSum
		}
	}

	r := block / 2
	for y := 0; y < h; y++ {
		y0, y1 := max(y-r, 0), min(y+r+1, h)
		row := src.Pix[y*src.Stride:]
		out := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			x0, x1 := max(x-r, 0), min(x+r+1, w)
			sum := sat[y1*stride+x1] - sat[y0*stride+x1] - sat[y1*stride+x0] + sat[y0*stride+x0]
			mean := sum / int64((x1-x0)*(y1-y0))
			if int64(row[x]) > mean-int64(offset) {
				out[x] = 255
			}
		}
	}
	return dst
}

// otsuLevel returns the global threshold that maximizes between-class variance.
func otsuLevel(src *image.Gray) uint8 {
	var hist [256]int
	w, h := src.Rect.Dx(), src.Rect.Dy()
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			hist[row[x]]++
		}
	}
	total := w * h

	var sum float64
	for k, c := range hist {
		sum += float64(k * c)
	}

	var sumB, best float64
	wB, level := 0, 0
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			level = t
		}
	}
	return uint8(level)
}

func otsuThreshold(src *image.Gray) *image.Gray {
	level := otsuLevel(src)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		out := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			if row[x] > level {
				out[x] = 255
			}
		}
	}
	return dst
}
