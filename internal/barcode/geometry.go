package barcode

import (
	"image"
	"image/color"
	"math"
	"slices"
	"sort"
)

// linearRowTolerance is the fraction of modules that may differ from the
// centre scan line before a row no longer counts as part of a linear symbol.
const linearRowTolerance = 0.1

func rectFromPoints(pts []Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := pts[0].X, pts[0].Y
	for _, p := range pts[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// normalizeBox moves r into the zero-based coordinate space of img and
// clamps it to the image. The returned rectangle may be empty.
func normalizeBox(img image.Image, r image.Rectangle) image.Rectangle {
	b := img.Bounds()
	r = r.Sub(b.Min)
	return r.Intersect(image.Rect(0, 0, b.Dx(), b.Dy()))
}

// refineLinearBox grows the box of a linear symbol vertically. Linear readers
// report the scan line they decoded, so the box is initially one row high.
// Rows above and below are added while their bar pattern matches the scan line.
func refineLinearBox(img image.Image, r image.Rectangle) image.Rectangle {
	b := img.Bounds()
	r = r.Intersect(b)
	if r.Empty() || r.Dx() < 2 {
		return r
	}

	y := r.Min.Y + r.Dy()/2
	ref := scanRow(img, r.Min.X, r.Max.X, y)
	if ref == nil {
		return r
	}
	maxDiff := int(float64(len(ref)) * linearRowTolerance)

	top := y
	for top-1 >= b.Min.Y && rowDiff(ref, scanRow(img, r.Min.X, r.Max.X, top-1)) <= maxDiff {
		top--
	}
	bottom := y + 1
	for bottom < b.Max.Y && rowDiff(ref, scanRow(img, r.Min.X, r.Max.X, bottom)) <= maxDiff {
		bottom++
	}

	if top > r.Min.Y {
		top = r.Min.Y
	}
	if bottom < r.Max.Y {
		bottom = r.Max.Y
	}
	return image.Rect(r.Min.X, top, r.Max.X, bottom)
}

// scanRow binarises a horizontal run of pixels around its own mean luma.
// A row with no contrast returns nil.
func scanRow(img image.Image, x0, x1, y int) []bool {
	thr, ok := rowThreshold(img, x0, x1, y)
	if !ok {
		return nil
	}
	row := make([]bool, 0, x1-x0)
	for x := x0; x < x1; x++ {
		row = append(row, int(lumaAt(img, x, y)) < thr)
	}
	return row
}

// rowThreshold returns the mean luma of a horizontal run of pixels. ok is
// false when the run has no usable contrast.
func rowThreshold(img image.Image, x0, x1, y int) (thr int, ok bool) {
	var (
		sum    int
		lo, hi uint8 = 255, 0
	)
	for x := x0; x < x1; x++ {
		v := lumaAt(img, x, y)
		sum += int(v)
		lo, hi = min(lo, v), max(hi, v)
	}
	if x1 <= x0 || int(hi)-int(lo) < 32 {
		return 0, false
	}
	return sum / (x1 - x0), true
}

func lumaAt(img image.Image, x, y int) uint8 {
	return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
}

func rowDiff(ref, row []bool) int {
	if row == nil || len(row) != len(ref) {
		return len(ref) + 1
	}
	n := 0
	for i := range ref {
		if ref[i] != row[i] {
			n++
		}
	}
	return n
}

// extendLinearEnds widens the box of a linear symbol to its outermost bars.
// Linear readers report points inside the start and end patterns, so the
// centre row is followed outwards until a light run longer than a few
// modules (the quiet zone) is reached.
func extendLinearEnds(img image.Image, r image.Rectangle) image.Rectangle {
	b := img.Bounds()
	r = r.Intersect(b)
	if r.Empty() || r.Dx() < 2 {
		return r
	}

	y := r.Min.Y + r.Dy()/2
	thr, ok := rowThreshold(img, r.Min.X, r.Max.X, y)
	if !ok {
		return r
	}
	module := minRun(scanRow(img, r.Min.X, r.Max.X, y))
	maxGap, maxReach := 3*module, 8*module
	dark := func(x int) bool { return int(lumaAt(img, x, y)) < thr }

	left := r.Min.X
	for x := r.Min.X - 1; x >= b.Min.X && r.Min.X-x <= maxReach; x-- {
		if dark(x) {
			left = x
		} else if left-x > maxGap {
			break
		}
	}
	right := r.Max.X - 1
	for x := r.Max.X; x < b.Max.X && x-(r.Max.X-1) <= maxReach; x++ {
		if dark(x) {
			right = x
		} else if x-right > maxGap {
			break
		}
	}
	return image.Rect(left, r.Min.Y, right+1, r.Max.Y)
}

// minRun is the length of the shortest inner run of equal values in row,
// an estimate of the module width. The first and last runs may be cut off
// and are ignored.
func minRun(row []bool) int {
	best, run, runs := 0, 1, 0
	for i := 1; i <= len(row); i++ {
		if i < len(row) && row[i] == row[i-1] {
			run++
			continue
		}
		if runs > 0 && i < len(row) && (best == 0 || run < best) {
			best = run
		}
		runs++
		run = 1
	}
	if best == 0 {
		return 1
	}
	return best
}

// expandFinderBox grows the box of a QR symbol from the hull of its finder
// pattern centres to the outer edge of the finder patterns. pts are the
// reader's result points in gray's coordinate space; the first three are
// the finder centres. The box is returned unchanged when no finder edge
// can be measured.
func expandFinderBox(gray *image.Gray, pts []Point, box image.Rectangle) image.Rectangle {
	if len(pts) < 3 || box.Empty() {
		return box
	}
	finders := make([]image.Point, 3)
	for i := range finders {
		finders[i] = image.Pt(pts[i].X, pts[i].Y)
	}

	// Finder centres are at least 14 modules apart and the finder edge is
	// 3.5 modules from its centre.
	spacing := math.MaxFloat64
	for i := range finders {
		for j := i + 1; j < len(finders); j++ {
			d := finders[i].Sub(finders[j])
			spacing = math.Min(spacing, math.Hypot(float64(d.X), float64(d.Y)))
		}
	}
	maxRay := int(spacing / 2)
	if maxRay < 3 {
		return box
	}

	var radii []int
	for _, c := range finders {
		for _, d := range []image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			if k, ok := finderEdge(gray, c, d, maxRay); ok {
				radii = append(radii, k)
			}
		}
	}
	if len(radii) == 0 {
		return box
	}
	sort.Ints(radii)
	g := radii[len(radii)/2] - 1

	grown := image.Rect(box.Min.X-g, box.Min.Y-g, box.Max.X+g, box.Max.Y+g)
	return grown.Intersect(gray.Bounds())
}

// finderEdge walks from the finder centre c in direction d and returns the
// distance to the first light pixel outside the finder pattern: the third
// edge after the dark core, the light ring and the dark ring.
func finderEdge(gray *image.Gray, c, d image.Point, maxRay int) (int, bool) {
	lum := make([]uint8, 0, maxRay+1)
	for k := 0; k <= maxRay; k++ {
		p := c.Add(d.Mul(k))
		if !p.In(gray.Bounds()) {
			break
		}
		lum = append(lum, gray.GrayAt(p.X, p.Y).Y)
	}
	if len(lum) < 2 {
		return 0, false
	}
	lo, hi := slices.Min(lum), slices.Max(lum)
	if int(hi)-int(lo) < 32 {
		return 0, false
	}
	thr := (int(lo) + int(hi)) / 2
	if int(lum[0]) >= thr {
		return 0, false
	}

	edges, prev := 0, true
	for k := 1; k < len(lum); k++ {
		dark := int(lum[k]) < thr
		if dark == prev {
			continue
		}
		edges++
		prev = dark
		if edges == 3 {
			return k, true
		}
	}
	return 0, false
}

func offsetPoints(pts []Point, off image.Point) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{X: p.X - off.X, Y: p.Y - off.Y}
	}
	return out
}
