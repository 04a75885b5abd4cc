package videomixer

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

// ResizeFilter resizes an I420 frame to (width, height), both already
// rounded to even. Tests that assert exact pixel values parameterize over
// this instead of hardcoding BoxResize, per §9's design notes.
type ResizeFilter func(frame domain.VideoFrame, width, height int) domain.VideoFrame

// BoxResize is the default filter: each destination pixel is the mean of
// its preimage rectangle in the source plane, computed per plane (Y at
// full resolution, U/V at half).
func BoxResize(frame domain.VideoFrame, width, height int) domain.VideoFrame {
	y, u, v := frame.I420Planes()
	scw, sch := (frame.Width+1)/2, (frame.Height+1)/2
	dcw, dch := (width+1)/2, (height+1)/2

	outY := resizePlane(y, frame.Width, frame.Height, width, height)
	outU := resizePlane(u, scw, sch, dcw, dch)
	outV := resizePlane(v, scw, sch, dcw, dch)

	out := frame
	out.Width = width
	out.Height = height
	out.SampleEntry = nil
	out.Payload = append(append(append(make([]byte, 0, len(outY)+len(outU)+len(outV)), outY...), outU...), outV...)
	return out
}

// resizePlane box-filters one plane: for each destination pixel, averages
// the source samples in its preimage rectangle via gonum/stat.Mean.
func resizePlane(src []byte, srcW, srcH, dstW, dstH int) []byte {
	dst := make([]byte, dstW*dstH)
	if srcW == 0 || srcH == 0 || dstW == 0 || dstH == 0 {
		return dst
	}
	values := make([]float64, 0, 16)
	for dy := 0; dy < dstH; dy++ {
		y0 := dy * srcH / dstH
		y1 := (dy + 1) * srcH / dstH
		if y1 <= y0 {
			y1 = y0 + 1
		}
		if y1 > srcH {
			y1 = srcH
		}
		for dx := 0; dx < dstW; dx++ {
			x0 := dx * srcW / dstW
			x1 := (dx + 1) * srcW / dstW
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if x1 > srcW {
				x1 = srcW
			}
			values = values[:0]
			for y := y0; y < y1; y++ {
				row := src[y*srcW:]
				for x := x0; x < x1; x++ {
					values = append(values, float64(row[x]))
				}
			}
			dst[dy*dstW+dx] = byte(math.Round(stat.Mean(values, nil)))
		}
	}
	return dst
}

// decideFrameSize picks the largest (w, h) with w<=cellW, h<=cellH, both
// even, that preserves frame's aspect ratio.
func decideFrameSize(frame domain.VideoFrame, cellW, cellH int) (w, h int) {
	if frame.Width <= 0 || frame.Height <= 0 {
		return evenFloor(cellW), evenFloor(cellH)
	}
	scale := math.Min(float64(cellW)/float64(frame.Width), float64(cellH)/float64(frame.Height))
	w = evenFloor(int(math.Floor(float64(frame.Width) * scale)))
	h = evenFloor(int(math.Floor(float64(frame.Height) * scale)))
	if w < 2 {
		w = 2
	}
	if h < 2 {
		h = 2
	}
	return w, h
}
