package videomixer

import (
	"testing"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

func TestBoxResizeDownsamplesToPlaneMean(t *testing.T) {
	// 4x4 Y plane split into four 2x2 blocks of constant value 0,64,128,192;
	// a 2x2 resize should recover exactly those four values, one per pixel.
	y := []byte{
		0, 0, 64, 64,
		0, 0, 64, 64,
		128, 128, 192, 192,
		128, 128, 192, 192,
	}
	u := make([]byte, 4)
	v := make([]byte, 4)
	frame := domain.VideoFrame{
		Format:  domain.VideoFormatI420,
		Width:   4,
		Height:  4,
		Payload: append(append(append([]byte{}, y...), u...), v...),
	}

	out := BoxResize(frame, 2, 2)
	if out.Width != 2 || out.Height != 2 {
		t.Fatalf("got %dx%d, want 2x2", out.Width, out.Height)
	}
	outY, _, _ := out.I420Planes()
	want := []byte{0, 64, 128, 192}
	for i, w := range want {
		if outY[i] != w {
			t.Errorf("outY[%d] = %d, want %d", i, outY[i], w)
		}
	}
}

func TestDecideFrameSizePreservesAspectRatio(t *testing.T) {
	cases := []struct {
		fw, fh, cellW, cellH int
		wantW, wantH         int
	}{
		{1920, 1080, 960, 540, 960, 540},
		{1280, 720, 640, 640, 640, 360},
		{640, 480, 100, 100, 100, 74},
	}
	for _, c := range cases {
		frame := domain.VideoFrame{Width: c.fw, Height: c.fh}
		w, h := decideFrameSize(frame, c.cellW, c.cellH)
		if w != c.wantW || h != c.wantH {
			t.Errorf("decideFrameSize(%dx%d into %dx%d) = (%d,%d), want (%d,%d)",
				c.fw, c.fh, c.cellW, c.cellH, w, h, c.wantW, c.wantH)
		}
		if w%2 != 0 || h%2 != 0 {
			t.Errorf("decideFrameSize(%dx%d) returned odd dimension (%d,%d)", c.fw, c.fh, w, h)
		}
	}
}

func TestEvenFloor(t *testing.T) {
	cases := map[int]int{0: 0, 1: 0, 2: 2, 3: 2, 100: 100, 101: 100}
	for in, want := range cases {
		if got := evenFloor(in); got != want {
			t.Errorf("evenFloor(%d) = %d, want %d", in, got, want)
		}
	}
}
