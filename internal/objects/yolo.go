package objects

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// yoloOutput describes the raw YOLOv8 detection head: for every candidate
// the box centre and size in model input pixels followed by one score per
// class. Exports differ in whether candidates or attributes come first.
type yoloOutput struct {
	data       []float32
	candidates int
	attrs      int
	transposed bool // [1, N, 4+nc] instead of [1, 4+nc, N]
}

// newYOLOOutput interprets a [1, 4+nc, N] or [1, N, 4+nc] output. With a
// known class count nc the layout follows from which dimension is 4+nc;
// otherwise (nc == 0) the smaller dimension is taken as the attributes.
func newYOLOOutput(data []float32, shape []int64, nc int) (yoloOutput, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return yoloOutput{}, fmt.Errorf("expected output shape [1, 4+nc, N], got %v", shape)
	}
	a, b := int(shape[1]), int(shape[2])
	o := yoloOutput{data: data, attrs: a, candidates: b}
	switch {
	case nc > 0 && a == 4+nc:
	case nc > 0 && b == 4+nc:
		o = yoloOutput{data: data, attrs: b, candidates: a, transposed: true}
	case nc > 0:
		return yoloOutput{}, fmt.Errorf("output shape %v does not fit %d classes", shape, nc)
	case a > b:
		o = yoloOutput{data: data, attrs: b, candidates: a, transposed: true}
	}
	if o.attrs <= 4 {
		return yoloOutput{}, fmt.Errorf("output has no class scores: shape %v", shape)
	}
	if len(data) != o.attrs*o.candidates {
		return yoloOutput{}, fmt.Errorf("output data length %d does not match shape %v", len(data), shape)
	}
	return o, nil
}

func (o yoloOutput) at(attr, cand int) float32 {
	if o.transposed {
		return o.data[cand*o.attrs+attr]
	}
	return o.data[attr*o.candidates+cand]
}

// decodeYOLOv8 turns the detection head into Detections in the coordinates
// of an image of size imgW x imgH. inputSize is the square model input the
// image was resized to. Candidates below minConf are skipped; NMS is left
// to the caller.
func decodeYOLOv8(out yoloOutput, labels []string, minConf float32, inputSize, imgW, imgH int) []Detection {
	sx := float32(imgW) / float32(inputSize)
	sy := float32(imgH) / float32(inputSize)
	bounds := image.Rect(0, 0, imgW, imgH)
	numClasses := out.attrs - 4

	var dets []Detection
	for i := range out.candidates {
		classID, score := 0, float32(-1)
		for c := range numClasses {
			if s := out.at(4+c, i); s > score {
				score, classID = s, c
			}
		}
		if score < minConf {
			continue
		}

		cx, cy := out.at(0, i), out.at(1, i)
		w, h := out.at(2, i), out.at(3, i)
		x1 := math32.Max(0, (cx-w/2)*sx)
		y1 := math32.Max(0, (cy-h/2)*sy)
		x2 := math32.Min(float32(imgW), (cx+w/2)*sx)
		y2 := math32.Min(float32(imgH), (cy+h/2)*sy)

		box := image.Rect(
			int(math32.Floor(x1)), int(math32.Floor(y1)),
			int(math32.Ceil(x2)), int(math32.Ceil(y2)),
		).Intersect(bounds)
		if box.Empty() {
			continue
		}
		dets = append(dets, Detection{
			ClassID:    classID,
			Label:      labelFor(labels, classID),
			Confidence: score,
			Box:        box,
		})
	}
	return dets
}
