package mp4reader

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

func makeBox(fourcc string, payload []byte) []byte {
	b := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(b[0:4], uint32(8+len(payload)))
	copy(b[4:8], fourcc)
	copy(b[8:], payload)
	return b
}

func TestReadBoxesSplitsSiblingBoxes(t *testing.T) {
	data := append(makeBox("ftyp", []byte("isom")), makeBox("free", nil)...)
	boxes, err := readBoxes(data)
	if err != nil {
		t.Fatalf("readBoxes: %v", err)
	}
	if len(boxes) != 2 {
		t.Fatalf("got %d boxes, want 2", len(boxes))
	}
	if boxes[0].fourcc != "ftyp" || string(boxes[0].payload) != "isom" {
		t.Errorf("boxes[0] = %+v", boxes[0])
	}
	if boxes[1].fourcc != "free" || len(boxes[1].payload) != 0 {
		t.Errorf("boxes[1] = %+v", boxes[1])
	}
}

func TestReadBoxesHandlesSize0AsExtendToEOF(t *testing.T) {
	b := make([]byte, 8+5)
	binary.BigEndian.PutUint32(b[0:4], 0)
	copy(b[4:8], "mdat")
	copy(b[8:], []byte("hello"))
	boxes, err := readBoxes(b)
	if err != nil {
		t.Fatalf("readBoxes: %v", err)
	}
	if len(boxes) != 1 || string(boxes[0].payload) != "hello" {
		t.Fatalf("got %+v", boxes)
	}
}

func TestReadBoxesRejectsUndersizedBox(t *testing.T) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:4], 4) // smaller than the 8-byte header itself
	copy(b[4:8], "free")
	if _, err := readBoxes(b); err == nil {
		t.Fatal("expected an error for a box smaller than its own header")
	}
}

func TestFindBoxReturnsFirstMatch(t *testing.T) {
	boxes := []box{{fourcc: "moov"}, {fourcc: "mdat", payload: []byte("x")}}
	payload, ok := findBox(boxes, "mdat")
	if !ok || string(payload) != "x" {
		t.Fatalf("findBox = (%q, %v)", payload, ok)
	}
	if _, ok := findBox(boxes, "nope"); ok {
		t.Fatal("expected no match for an absent fourcc")
	}
}

func TestCodecFromFourCC(t *testing.T) {
	cases := map[string]domain.CodecName{
		"vp08": domain.CodecVP8,
		"vp09": domain.CodecVP9,
		"avc1": domain.CodecH264,
		"hev1": domain.CodecH265,
		"hvc1": domain.CodecH265,
		"av01": domain.CodecAV1,
		"Opus": domain.CodecOpus,
		"mp4a": domain.CodecAAC,
		"zzzz": domain.CodecH264,
	}
	for fourcc, want := range cases {
		if got := codecFromFourCC(fourcc); got != want {
			t.Errorf("codecFromFourCC(%q) = %v, want %v", fourcc, got, want)
		}
	}
}

func TestTicksToDuration(t *testing.T) {
	if got := ticksToDuration(48000, 48000); got != time.Second {
		t.Errorf("ticksToDuration(48000,48000) = %s, want 1s", got)
	}
	if got := ticksToDuration(24000, 48000); got != 500*time.Millisecond {
		t.Errorf("ticksToDuration(24000,48000) = %s, want 500ms", got)
	}
	if got := ticksToDuration(100, 0); got != 0 {
		t.Errorf("ticksToDuration with zero timescale = %s, want 0", got)
	}
}

func TestTrackTotalSampleTicks(t *testing.T) {
	tr := &track{samples: []sampleMeta{{duration: 10}, {duration: 20}, {duration: 5}}}
	if got := tr.totalSampleTicks(); got != 35 {
		t.Errorf("totalSampleTicks = %d, want 35", got)
	}
}
