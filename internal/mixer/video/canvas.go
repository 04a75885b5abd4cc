package videomixer

import (
	"math"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

// canvas is an I420 frame buffer the mixer draws regions and source frames
// onto, plane by plane.
type canvas struct {
	width, height int
	data          []byte
}

func newCanvas(width, height int) *canvas {
	ySize, uSize, vSize := domain.PlaneSizes(width, height)
	data := make([]byte, ySize+uSize+vSize)
	for i := ySize; i < len(data); i++ {
		data[i] = 128
	}
	return &canvas{width: width, height: height, data: data}
}

func (c *canvas) asFrame() domain.VideoFrame {
	return domain.VideoFrame{Format: domain.VideoFormatI420, Payload: c.data, Width: c.width, Height: c.height, Keyframe: true}
}

func (c *canvas) chromaDims() (w, h int) {
	return (c.width + 1) / 2, (c.height + 1) / 2
}

// fillRect paints a w x h rectangle at pos with a flat YUV color.
func (c *canvas) fillRect(pos domain.PixelPosition, w, h int, y, u, v uint8) {
	ccw, _ := c.chromaDims()
	ySize := c.width * c.height
	uBase := ySize
	vBase := ySize + ccw*((c.height+1)/2)

	for row := 0; row < h; row++ {
		off := (pos.Y+row)*c.width + pos.X
		line := c.data[off : off+w]
		for i := range line {
			line[i] = y
		}
	}
	cw, ch := (w+1)/2, (h+1)/2
	ox, oy := pos.X/2, pos.Y/2
	for row := 0; row < ch; row++ {
		off := uBase + (oy+row)*ccw + ox
		line := c.data[off : off+cw]
		for i := range line {
			line[i] = u
		}
	}
	for row := 0; row < ch; row++ {
		off := vBase + (oy+row)*ccw + ox
		line := c.data[off : off+cw]
		for i := range line {
			line[i] = v
		}
	}
}

// drawFrame copies frame's I420 planes onto the canvas at pos. frame must
// already fit within the canvas bounds.
func (c *canvas) drawFrame(pos domain.PixelPosition, frame domain.VideoFrame) {
	y, u, v := frame.I420Planes()
	ccw, _ := c.chromaDims()
	ySize := c.width * c.height
	uBase := ySize
	vBase := ySize + ccw*((c.height+1)/2)

	for row := 0; row < frame.Height; row++ {
		srcOff := row * frame.Width
		dstOff := (pos.Y+row)*c.width + pos.X
		copy(c.data[dstOff:dstOff+frame.Width], y[srcOff:srcOff+frame.Width])
	}
	cw, ch := (frame.Width+1)/2, (frame.Height+1)/2
	ox, oy := pos.X/2, pos.Y/2
	for row := 0; row < ch; row++ {
		srcOff := row * cw
		dstOff := uBase + (oy+row)*ccw + ox
		copy(c.data[dstOff:dstOff+cw], u[srcOff:srcOff+cw])
	}
	for row := 0; row < ch; row++ {
		srcOff := row * cw
		dstOff := vBase + (oy+row)*ccw + ox
		copy(c.data[dstOff:dstOff+cw], v[srcOff:srcOff+cw])
	}
}

// rgbToYUV converts a region's background color to BT.601 full-range YUV.
func rgbToYUV(rgb [3]uint8) (y, u, v uint8) {
	r, g, b := float64(rgb[0]), float64(rgb[1]), float64(rgb[2])
	yy := 0.299*r + 0.587*g + 0.114*b
	uu := -0.168736*r - 0.331264*g + 0.5*b + 128
	vv := 0.5*r - 0.418688*g - 0.081312*b + 128
	return clampByte(yy), clampByte(uu), clampByte(vv)
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(math.Round(v))
}

func evenFloor(v int) int { return v - v%2 }
