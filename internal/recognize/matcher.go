// Package recognize implements the identity-matching capability: given a
// cropped face region, find the best-matching registered student by
// normalized cross-correlation against the stored grayscale templates.
package recognize

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// DefaultThreshold is the NCC score a candidate must exceed to count as a
// match.
const DefaultThreshold = 0.65

// Matcher scores face regions against the template index. Matching is
// stateless across frames; every frame is evaluated independently.
type Matcher struct {
	index     *Index
	threshold float64
}

// NewMatcher creates a matcher. A threshold outside (0, 1) falls back to
// DefaultThreshold.
func NewMatcher(index *Index, threshold float64) *Matcher {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	return &Matcher{index: index, threshold: threshold}
}

// Match returns the best-matching student id and its confidence, or
// ("", score) when no candidate clears the threshold. Callers can rely on
// the threshold having been applied; an empty id means no match.
func (m *Matcher) Match(face *image.Gray) (string, float64) {
	bestID := ""
	bestScore := 0.0

	for studentID, templates := range m.index.snapshot() {
		for _, tpl := range templates {
			resized := resizeGray(face, tpl.Bounds().Dx(), tpl.Bounds().Dy())
			score := normedCrossCorrelation(resized, tpl)
			if score > bestScore && score > m.threshold {
				bestScore = score
				bestID = studentID
			}
		}
	}
	return bestID, bestScore
}

// resizeGray scales a grayscale image to w x h.
func resizeGray(src *image.Gray, w, h int) *image.Gray {
	if src.Bounds().Dx() == w && src.Bounds().Dy() == h {
		return src
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// normedCrossCorrelation computes the zero-mean normalized cross
// correlation of two equal-size grayscale images. The result is in
// [-1, 1]; identical images score 1. Flat (zero-variance) inputs score 0.
func normedCrossCorrelation(a, b *image.Gray) float64 {
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	if w != b.Bounds().Dx() || h != b.Bounds().Dy() {
		return 0
	}
	n := float64(w * h)
	if n == 0 {
		return 0
	}

	var sumA, sumB float64
	for y := 0; y < h; y++ {
		aRow := grayRow(a, y, w)
		bRow := grayRow(b, y, w)
		for x := 0; x < w; x++ {
			sumA += float64(aRow[x])
			sumB += float64(bRow[x])
		}
	}
	meanA := sumA / n
	meanB := sumB / n

	var cross, varA, varB float64
	for y := 0; y < h; y++ {
		aRow := grayRow(a, y, w)
		bRow := grayRow(b, y, w)
		for x := 0; x < w; x++ {
			da := float64(aRow[x]) - meanA
			db := float64(bRow[x]) - meanB
			cross += da * db
			varA += da * da
			varB += db * db
		}
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cross / math.Sqrt(varA*varB)
}

// grayRow returns row y of the image as a w-long byte slice, honoring the
// pixel offset of sub-images.
func grayRow(g *image.Gray, y, w int) []byte {
	off := g.PixOffset(g.Rect.Min.X, g.Rect.Min.Y+y)
	return g.Pix[off : off+w]
}

// ToGray converts any frame to 8-bit grayscale.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	g := image.NewGray(bounds)
	draw.Draw(g, bounds, img, bounds.Min, draw.Src)
	return g
}

// CropGray returns the subregion of a grayscale image clipped to its
// bounds, or nil when the intersection is empty.
func CropGray(g *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(g.Bounds())
	if r.Empty() {
		return nil
	}
	return g.SubImage(r).(*image.Gray)
}
