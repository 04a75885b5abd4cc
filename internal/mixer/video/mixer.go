// Package videomixer implements the spatial video compositor (§4.6):
// region/grid placement, priority-based cell assignment, aspect-preserving
// box-filter resizing, and gap-tolerant sticky display of stalled sources.
// Grounded directly on the reference implementation's mixer_video.rs
// (Canvas/ResizeCachedVideoFrame/InputStream/gap-extension state machine),
// translated into Go's pull-based MediaProcessor idiom.
package videomixer

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

const (
	gapThreshold      = 60 * time.Second
	gapErrorThreshold = 24 * time.Hour
)

// resizeCachedFrame holds one decoded source frame plus its resized
// variants, keyed by (width, height); a source frame is typically queried
// at only one or two distinct sizes across regions that share it.
type resizeCachedFrame struct {
	original domain.VideoFrame
	resized  map[[2]int]domain.VideoFrame
}

func (r *resizeCachedFrame) sized(width, height int, filter ResizeFilter) domain.VideoFrame {
	if r.original.Width == width && r.original.Height == height {
		return r.original
	}
	key := [2]int{width, height}
	if cached, ok := r.resized[key]; ok {
		return cached
	}
	resized := filter(r.original, width, height)
	if r.resized == nil {
		r.resized = make(map[[2]int]domain.VideoFrame)
	}
	r.resized[key] = resized
	return resized
}

type inputStream struct {
	eos   bool
	queue []*resizeCachedFrame
}

// popOutdated advances the stream's queue past frames whose display window
// has fully elapsed, keeping a frame on screen (sticky) until the next
// frame's own start timestamp arrives. Returns false when more input is
// needed before `now` can be resolved.
func (s *inputStream) popOutdated(now time.Duration) bool {
	for {
		if len(s.queue) == 0 {
			return s.eos
		}
		cur := s.queue[0]
		if now < cur.original.ExpiresAt() {
			return true
		}
		if len(s.queue) < 2 {
			if s.eos {
				s.queue = nil
				return true
			}
			return false
		}
		next := s.queue[1]
		if now < next.original.Timestamp {
			return true
		}
		s.queue = s.queue[1:]
	}
}

// Mixer composites N decoded I420 streams into one canvas per §4.6.
type Mixer struct {
	regions    []domain.Region
	frameRate  domain.FrameRate
	resolution domain.Resolution
	trim       domain.TrimSpans
	filter     ResizeFilter

	order   []domain.MediaStreamID
	streams map[domain.MediaStreamID]*inputStream

	outputFrames, extendedFrames, trimmedFrames int64
	lastMixed                                   *domain.VideoFrame
}

// New builds a video mixer. filter defaults to BoxResize when nil.
func New(regions []domain.Region, frameRate domain.FrameRate, resolution domain.Resolution, trim domain.TrimSpans, streamIDs []domain.MediaStreamID, filter ResizeFilter) *Mixer {
	if filter == nil {
		filter = BoxResize
	}
	streams := make(map[domain.MediaStreamID]*inputStream, len(streamIDs))
	for _, id := range streamIDs {
		streams[id] = &inputStream{}
	}
	return &Mixer{
		regions:    regions,
		frameRate:  frameRate,
		resolution: resolution,
		trim:       trim,
		filter:     filter,
		order:      streamIDs,
		streams:    streams,
	}
}

// Feed enqueues a decoded I420 frame for streamID, or marks it EOS when
// sample is nil.
func (m *Mixer) Feed(streamID domain.MediaStreamID, sample *domain.VideoFrame) error {
	s, ok := m.streams[streamID]
	if !ok {
		return domain.WrapInvariant(fmt.Errorf("videomixer: unknown stream %v", streamID))
	}
	if sample == nil {
		s.eos = true
		return nil
	}
	if sample.Format != domain.VideoFormatI420 {
		return domain.WrapInvariant(fmt.Errorf("videomixer: stream %v carried a non-I420 frame", streamID))
	}
	s.queue = append(s.queue, &resizeCachedFrame{original: *sample})
	return nil
}

func (m *Mixer) framesToTimestamp(frames int64) time.Duration {
	return m.frameRate.Timestamp(frames)
}

func (m *Mixer) nextInputTimestamp() time.Duration {
	return m.framesToTimestamp(m.outputFrames + m.extendedFrames + m.trimmedFrames)
}

func (m *Mixer) nextOutputTimestamp() time.Duration {
	return m.framesToTimestamp(m.outputFrames + m.extendedFrames)
}

func (m *Mixer) nextOutputDuration() time.Duration {
	return m.framesToTimestamp(m.outputFrames+m.extendedFrames+1) - m.nextOutputTimestamp()
}

// gapUntilNextFrameChange reports how long until some stream's queued
// frame sequence would next change the composed output, used to detect
// pathologically idle inputs worth collapsing into one extended frame.
func (m *Mixer) gapUntilNextFrameChange(now time.Duration) time.Duration {
	best := time.Duration(math.MaxInt64)
	found := false
	for _, id := range m.order {
		s := m.streams[id]
		if len(s.queue) < 2 {
			continue
		}
		if now < s.queue[0].original.Timestamp {
			continue
		}
		next := s.queue[1].original.Timestamp
		if next < best {
			best = next
			found = true
		}
	}
	if !found {
		return 0
	}
	if best <= now {
		return 0
	}
	return best - now
}

// Produce attempts to emit the next composed frame. Exactly one of
// (frame, pendingOn, finished, err) is meaningful per call.
func (m *Mixer) Produce() (frame *domain.VideoFrame, pendingOn *domain.MediaStreamID, finished bool, err error) {
	for {
		now := m.nextInputTimestamp()
		for m.trim.Contains(now) {
			m.trimmedFrames++
			now = m.nextInputTimestamp()
		}

		for _, id := range m.order {
			s := m.streams[id]
			if !s.popOutdated(now) {
				sid := id
				return nil, &sid, false, nil
			}
		}

		allDone := true
		for _, id := range m.order {
			s := m.streams[id]
			if !(s.eos && len(s.queue) == 0) {
				allDone = false
				break
			}
		}
		if allDone {
			if m.lastMixed != nil {
				out := *m.lastMixed
				m.lastMixed = nil
				return &out, nil, false, nil
			}
			return nil, nil, true, nil
		}

		gap := m.gapUntilNextFrameChange(now)
		if gap > gapThreshold {
			if gap > gapErrorThreshold {
				return nil, nil, false, domain.WrapInvariant(fmt.Errorf("videomixer: input gap %s exceeds the %s hard cap", gap, gapErrorThreshold))
			}
			if m.lastMixed == nil {
				return nil, nil, false, domain.WrapInvariant(fmt.Errorf("videomixer: gap extension requested with no prior frame"))
			}
			extra := m.nextOutputDuration()
			m.lastMixed.Duration += extra
			m.extendedFrames++
			continue
		}

		mixed := m.mix(now)
		m.outputFrames++
		if m.lastMixed != nil {
			out := *m.lastMixed
			m.lastMixed = &mixed
			return &out, nil, false, nil
		}
		m.lastMixed = &mixed
	}
}

func (m *Mixer) mix(now time.Duration) domain.VideoFrame {
	c := newCanvas(m.resolution.Width, m.resolution.Height)
	for _, region := range m.regions {
		m.mixRegion(c, region, now)
	}
	frame := c.asFrame()
	frame.Timestamp = m.nextOutputTimestamp()
	frame.Duration = m.nextOutputDuration()
	return frame
}

type regionCandidate struct {
	cellIndex int
	priority  int
	frame     *resizeCachedFrame
}

func (m *Mixer) mixRegion(c *canvas, region domain.Region, now time.Duration) {
	y, u, v := rgbToYUV(region.BackgroundRGB)
	c.fillRect(region.Position, region.Width, region.Height, y, u, v)

	var candidates []regionCandidate
	for _, id := range m.order {
		s := m.streams[id]
		if len(s.queue) == 0 {
			continue
		}
		cur := s.queue[0]
		if now < cur.original.Timestamp {
			continue
		}
		assigned, ok := region.Grid.AssignedSources[cur.original.SourceID]
		if !ok {
			continue
		}
		candidates = append(candidates, regionCandidate{cellIndex: assigned.CellIndex, priority: assigned.Priority, frame: cur})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].cellIndex != candidates[j].cellIndex {
			return candidates[i].cellIndex < candidates[j].cellIndex
		}
		return candidates[i].priority < candidates[j].priority
	})

	seenCell := -1
	for _, cand := range candidates {
		if cand.cellIndex == seenCell {
			continue
		}
		seenCell = cand.cellIndex

		cellPos := region.CellPosition(cand.cellIndex, region.InnerBorderPixels)
		fw, fh := decideFrameSize(cand.frame.original, region.Grid.CellWidth, region.Grid.CellHeight)
		pos := domain.PixelPosition{
			X: cellPos.X + evenFloor((region.Grid.CellWidth-fw)/2),
			Y: cellPos.Y + evenFloor((region.Grid.CellHeight-fh)/2),
		}
		resized := cand.frame.sized(fw, fh, m.filter)
		c.drawFrame(pos, resized)
	}
}
