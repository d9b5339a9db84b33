package objects

import (
	"image"
	"sort"

	flatbush "github.com/bmharper/flatbush-go"
)

// IoU returns the intersection over union of two rectangles.
func IoU(a, b image.Rectangle) float32 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float32(inter.Dx() * inter.Dy())
	union := float32(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}

// NonMaxSuppression performs greedy class-aware NMS. Detections are visited
// in order of descending confidence; a detection is dropped when it overlaps
// an already kept detection of the same class by more than iouThreshold.
// Candidate pairs come from a spatial index so crowded scenes stay cheap.
func NonMaxSuppression(dets []Detection, iouThreshold float32) []Detection {
	if len(dets) <= 1 {
		return dets
	}

	order := make([]int, len(dets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dets[order[a]].Confidence > dets[order[b]].Confidence
	})
	rank := make([]int, len(dets))
	for r, i := range order {
		rank[i] = r
	}

	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(dets))
	for _, d := range dets {
		fb.Add(int32(d.Box.Min.X), int32(d.Box.Min.Y), int32(d.Box.Max.X), int32(d.Box.Max.Y))
	}
	fb.Finish()

	suppressed := make([]bool, len(dets))
	kept := make([]Detection, 0, len(dets))
	for _, i := range order {
		if suppressed[i] {
			continue
		}
		d := dets[i]
		kept = append(kept, d)
		for _, j := range fb.Search(int32(d.Box.Min.X), int32(d.Box.Min.Y), int32(d.Box.Max.X), int32(d.Box.Max.Y)) {
			if j == i || suppressed[j] || dets[j].ClassID != d.ClassID {
				continue
			}
			if rank[j] < rank[i] {
				continue
			}
			if IoU(d.Box, dets[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}
