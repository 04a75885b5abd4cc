// Package audiomixer implements time-domain additive audio mixing (§4.5):
// N decoded PCM streams are summed sample-by-sample onto a fixed 20ms output
// grid, with trim spans skipped and EOS streams treated as silence.
// Grounded on the reference implementation's mixer_audio behavior as
// exercised by tests/mixer_audio_test.rs (source code for the mixer itself
// was not retrieved, only its test suite; the algorithm here is built
// directly from the spec's §4.5 description and cross-checked against those
// tests' expected per-frame sums).
package audiomixer

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

const (
	sampleRate      = 48000
	channels        = 2
	frameDuration   = 20 * time.Millisecond
	framesPerOutput = 960 // sampleRate * frameDuration / time.Second
)

func sampleIndex(t time.Duration) int64 {
	return t.Nanoseconds() * int64(sampleRate) / int64(time.Second)
}

type streamQueue struct {
	pending []domain.AudioData
	eos     bool
}

// Mixer additively mixes N PCM streams onto a fixed-duration output grid.
type Mixer struct {
	trim          domain.TrimSpans
	totalDuration time.Duration
	order         []domain.MediaStreamID
	streams       map[domain.MediaStreamID]*streamQueue
	tOut          time.Duration
}

// New builds a mixer over streamIDs, stopping once its output reaches
// totalDuration (the composed timeline's length after trimming).
func New(trim domain.TrimSpans, totalDuration time.Duration, streamIDs []domain.MediaStreamID) *Mixer {
	streams := make(map[domain.MediaStreamID]*streamQueue, len(streamIDs))
	for _, id := range streamIDs {
		streams[id] = &streamQueue{}
	}
	return &Mixer{trim: trim, totalDuration: totalDuration, order: streamIDs, streams: streams}
}

// Feed enqueues a decoded sample for streamID, or marks it EOS when sample
// is nil.
func (m *Mixer) Feed(streamID domain.MediaStreamID, sample *domain.AudioData) error {
	s, ok := m.streams[streamID]
	if !ok {
		return domain.WrapInvariant(fmt.Errorf("audiomixer: unknown stream %v", streamID))
	}
	if sample == nil {
		s.eos = true
		return nil
	}
	if sample.Format != domain.AudioFormatPCMS16BE || !sample.Stereo || sample.SampleRate != sampleRate {
		return domain.WrapInvariant(fmt.Errorf("audiomixer: stream %v carried non-PCM or wrong-rate audio", streamID))
	}
	s.pending = append(s.pending, *sample)
	return nil
}

// Produce attempts to emit the next output frame. Exactly one of (frame,
// pendingOn, finished) is meaningful: pendingOn non-nil means the caller
// must feed that stream before calling Produce again.
func (m *Mixer) Produce() (frame *domain.AudioData, pendingOn *domain.MediaStreamID, finished bool, err error) {
	if m.tOut >= m.totalDuration {
		return nil, nil, true, nil
	}

	tIn := m.tOut + m.trim.TrimmedBefore(m.tOut)
	frameStart := sampleIndex(tIn)
	frameEnd := frameStart + framesPerOutput

	for _, id := range m.order {
		s := m.streams[id]
		dropConsumed(s, frameStart)
		if len(s.pending) == 0 {
			if s.eos {
				continue
			}
			sid := id
			return nil, &sid, false, nil
		}
		last := s.pending[len(s.pending)-1]
		lastEnd := sampleIndex(last.Timestamp) + int64(len(last.Payload)/4)
		if lastEnd < frameEnd && !s.eos {
			sid := id
			return nil, &sid, false, nil
		}
	}

	acc := make([]int32, framesPerOutput*channels)
	for _, id := range m.order {
		s := m.streams[id]
		for _, chunk := range s.pending {
			mixChunkInto(acc, chunk, frameStart, frameEnd)
		}
		s.pending = dropFullyConsumed(s.pending, frameEnd)
	}

	payload := make([]byte, framesPerOutput*channels*2)
	for i := 0; i < framesPerOutput*channels; i++ {
		binary.BigEndian.PutUint16(payload[i*2:], uint16(saturateInt16(acc[i])))
	}

	out := domain.AudioData{
		Format:     domain.AudioFormatPCMS16BE,
		Payload:    payload,
		SampleRate: sampleRate,
		Stereo:     true,
		Timestamp:  m.tOut,
		Duration:   frameDuration,
	}
	m.tOut += frameDuration
	return &out, nil, false, nil
}

// dropConsumed discards queued chunks that end at or before frameStart:
// they are strictly in the past and can never contribute again.
func dropConsumed(s *streamQueue, frameStart int64) {
	i := 0
	for i < len(s.pending) {
		c := s.pending[i]
		end := sampleIndex(c.Timestamp) + int64(len(c.Payload)/4)
		if end > frameStart {
			break
		}
		i++
	}
	s.pending = s.pending[i:]
}

func dropFullyConsumed(pending []domain.AudioData, frameEnd int64) []domain.AudioData {
	i := 0
	for i < len(pending) {
		c := pending[i]
		end := sampleIndex(c.Timestamp) + int64(len(c.Payload)/4)
		if end > frameEnd {
			break
		}
		i++
	}
	return pending[i:]
}

func mixChunkInto(acc []int32, chunk domain.AudioData, frameStart, frameEnd int64) {
	n := len(chunk.Payload) / 4
	if n == 0 {
		return
	}
	base := sampleIndex(chunk.Timestamp)
	for i := 0; i < n; i++ {
		idx := base + int64(i)
		if idx < frameStart || idx >= frameEnd {
			continue
		}
		o := idx - frameStart
		l := int16(binary.BigEndian.Uint16(chunk.Payload[i*4 : i*4+2]))
		r := int16(binary.BigEndian.Uint16(chunk.Payload[i*4+2 : i*4+4]))
		acc[o*2] += int32(l)
		acc[o*2+1] += int32(r)
	}
}

func saturateInt16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
