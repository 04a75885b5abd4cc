package domain

import (
	"fmt"
	"sort"
	"time"
)

// CodecName enumerates the supported output codecs.
type CodecName int

const (
	CodecOpus CodecName = iota
	CodecAAC
	CodecVP8
	CodecVP9
	CodecH264
	CodecH265
	CodecAV1
)

func (c CodecName) String() string {
	switch c {
	case CodecOpus:
		return "opus"
	case CodecAAC:
		return "aac"
	case CodecVP8:
		return "vp8"
	case CodecVP9:
		return "vp9"
	case CodecH264:
		return "h264"
	case CodecH265:
		return "h265"
	case CodecAV1:
		return "av1"
	default:
		return "unknown"
	}
}

// EngineName identifies a concrete encoder/decoder backend for a codec
// (e.g. "openh264", "libvpx", "dav1d"). Engine selection is a compile-time
// enumerated variant per the spec's Design Notes: no dynamic registry.
type EngineName string

// ReuseKind is the cell-sharing policy for a region, per §4.4.4.
type ReuseKind int

const (
	ReuseNone ReuseKind = iota
	ReuseShowOldest
	ReuseShowNewest
)

// FrameRate is an exact rational output video rate.
type FrameRate struct {
	Num int
	Den int
}

// FrameDuration returns the per-frame duration den/num seconds, computed in
// floating point and truncated to whole nanoseconds as a time.Duration.
func (r FrameRate) FrameDuration() time.Duration {
	return time.Duration(float64(r.Den) / float64(r.Num) * float64(time.Second))
}

// Timestamp returns the k-th output frame's exact timestamp k*den/num,
// recomputed from k every time to avoid accumulated drift.
func (r FrameRate) Timestamp(k int64) time.Duration {
	// microsecond precision matches the muxer's timescale.
	micros := k * int64(r.Den) * 1_000_000 / int64(r.Num)
	return time.Duration(micros) * time.Microsecond
}

const (
	ResolutionMin = 16
	ResolutionMax = 3840
)

// Resolution is a canvas size, both axes constrained to [16, 3840] and
// rounded down to even.
type Resolution struct {
	Width  int
	Height int
}

func NewResolution(width, height int) (Resolution, error) {
	if width < ResolutionMin || width > ResolutionMax {
		return Resolution{}, fmt.Errorf("width %d is out of range", width)
	}
	if height < ResolutionMin || height > ResolutionMax {
		return Resolution{}, fmt.Errorf("height %d is out of range", height)
	}
	return Resolution{Width: evenFloor(width), Height: evenFloor(height)}, nil
}

func evenFloor(v int) int { return v - v%2 }

// PixelPosition is an even-pixel coordinate.
type PixelPosition struct {
	X, Y int
}

// AssignedSource records a source's placement within a Grid: which cell it
// occupies and its priority (lower wins ties within that cell).
type AssignedSource struct {
	CellIndex int
	Priority  int
}

// Grid is a region's rows x columns arrangement of cells.
type Grid struct {
	Rows, Columns         int
	CellWidth, CellHeight int
	AssignedSources       map[SourceID]AssignedSource
}

// CellRowColumn returns the (row, column) of a row-major cell index.
func (g Grid) CellRowColumn(cellIndex int) (row, column int) {
	return cellIndex / g.Columns, cellIndex % g.Columns
}

// Region is a rectangle of the output canvas governed by a Grid.
type Region struct {
	Grid                          Grid
	SourceIDs                     map[SourceID]struct{}
	Width, Height                 int
	Position                      PixelPosition
	ZPos                          int
	TopBorderPixels, LeftBorderPixels int
	InnerBorderPixels             int
	BackgroundRGB                 [3]uint8
}

// CellPosition returns the top-left pixel of the given cell index within
// the canvas, honoring this region's outer and inner borders.
func (r Region) CellPosition(cellIndex int, borderPixels int) PixelPosition {
	row, col := r.Grid.CellRowColumn(cellIndex)
	x := r.Position.X + r.LeftBorderPixels + col*(r.Grid.CellWidth+borderPixels)
	y := r.Position.Y + r.TopBorderPixels + row*(r.Grid.CellHeight+borderPixels)
	return PixelPosition{X: x, Y: y}
}

// TrimSpans is a sorted, non-overlapping set of half-open [start, end)
// output-time intervals to remove.
type TrimSpans struct {
	starts []time.Duration
	ends   []time.Duration
}

func NewTrimSpans(spans map[time.Duration]time.Duration) TrimSpans {
	starts := make([]time.Duration, 0, len(spans))
	for s := range spans {
		starts = append(starts, s)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	ends := make([]time.Duration, len(starts))
	for i, s := range starts {
		ends[i] = spans[s]
	}
	return TrimSpans{starts: starts, ends: ends}
}

// Contains reports whether timestamp falls within any trim span.
func (t TrimSpans) Contains(timestamp time.Duration) bool {
	// last span whose start <= timestamp
	idx := sort.Search(len(t.starts), func(i int) bool { return t.starts[i] > timestamp }) - 1
	if idx < 0 {
		return false
	}
	return timestamp >= t.starts[idx] && timestamp < t.ends[idx]
}

// TrimmedBefore returns the cumulative trimmed duration strictly before the
// given output timestamp: the function that maps t_out to t_in.
func (t TrimSpans) TrimmedBefore(timestamp time.Duration) time.Duration {
	var total time.Duration
	for i, s := range t.starts {
		if s >= timestamp {
			break
		}
		e := t.ends[i]
		if e > timestamp {
			e = timestamp
		}
		total += e - s
	}
	return total
}

// TotalDuration returns the sum of all span lengths.
func (t TrimSpans) TotalDuration() time.Duration {
	var total time.Duration
	for i := range t.starts {
		total += t.ends[i] - t.starts[i]
	}
	return total
}

// Spans returns the (start, end) pairs in ascending start order.
func (t TrimSpans) Spans() [][2]time.Duration {
	out := make([][2]time.Duration, len(t.starts))
	for i := range t.starts {
		out[i] = [2]time.Duration{t.starts[i], t.ends[i]}
	}
	return out
}

// Layout is the fully-resolved composition plan.
type Layout struct {
	BasePath string

	// VideoRegions is z-sorted ascending.
	VideoRegions []Region

	TrimSpans  TrimSpans
	Resolution Resolution

	AudioSourceIDs map[SourceID]struct{}
	Sources        map[SourceID]*AggregatedSourceInfo

	AudioCodec   CodecName
	VideoCodec   CodecName
	AudioBitrate int // bits/s, 0 = default
	VideoBitrate int // bits/s, 0 = default

	FrameRate FrameRate
}

func (l *Layout) HasAudio() bool { return len(l.AudioSourceIDs) > 0 }
func (l *Layout) HasVideo() bool { return len(l.VideoRegions) > 0 }

// VideoSourceIDs returns every source assigned to any region's grid.
func (l *Layout) VideoSourceIDs() []SourceID {
	seen := make(map[SourceID]struct{})
	var out []SourceID
	for _, r := range l.VideoRegions {
		for id := range r.Grid.AssignedSources {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

func (l *Layout) Duration() time.Duration {
	var max time.Duration
	for _, s := range l.Sources {
		if s.StopTimestamp > max {
			max = s.StopTimestamp
		}
	}
	return max
}

func (l *Layout) OutputDuration() time.Duration {
	d := l.Duration() - l.TrimSpans.TotalDuration()
	if d < 0 {
		return 0
	}
	return d
}
