// Package domain holds the media types and pure data structures shared
// across every pipeline stage: readers, decoders, mixers, encoders and the
// muxer all speak this package's vocabulary and nothing else.
package domain

import "time"

// MediaStreamID names an edge in the processor graph. A stream carries
// either all-audio or all-video samples plus a distinguished end-of-stream
// marker, never both.
type MediaStreamID int

// SourceID is an opaque per-participant identifier, unique within a
// composition.
type SourceID string

// AudioFormat enumerates the audio payload encodings that flow through the
// pipeline.
type AudioFormat int

const (
	AudioFormatOpus AudioFormat = iota
	AudioFormatAAC
	AudioFormatPCMS16BE
)

// VideoFormat enumerates the video payload encodings that flow through the
// pipeline.
type VideoFormat int

const (
	VideoFormatI420 VideoFormat = iota
	VideoFormatH264
	VideoFormatH264AnnexB
	VideoFormatH265
	VideoFormatVP8
	VideoFormatVP9
	VideoFormatAV1
)

// SampleEntry is a per-track codec-parameter descriptor. It is present only
// on the first record of a track, or whenever the codec parameters change.
type SampleEntry struct {
	Codec      CodecName
	Width      int // video only
	Height     int // video only
	SampleRate int // audio only
	Channels   int // audio only
	Extra      []byte
}

// AudioData is an owned PCM or compressed audio buffer carried between
// pipeline stages. The PCM invariant is:
//
//	len(Payload) == Channels * 2 * round(SampleRate * Duration.Seconds())
type AudioData struct {
	Format      AudioFormat
	Payload     []byte
	SampleRate  int // fixed 48000 once decoded
	Stereo      bool
	Timestamp   time.Duration
	Duration    time.Duration
	SampleEntry *SampleEntry
	SourceID    SourceID
}

// Clone returns an AudioData sharing no backing array with the receiver.
func (a AudioData) Clone() AudioData {
	out := a
	out.Payload = append([]byte(nil), a.Payload...)
	return out
}

// VideoFrame is an owned video buffer carried between pipeline stages. For
// I420, Payload layout is Y(w*h) || U(ceil(w/2)*ceil(h/2)) || V(ceil(w/2)*ceil(h/2))
// with strides equal to plane widths (no padding).
type VideoFrame struct {
	Format      VideoFormat
	Payload     []byte
	Keyframe    bool
	Width       int
	Height      int
	Timestamp   time.Duration
	Duration    time.Duration
	SampleEntry *SampleEntry
	SourceID    SourceID
}

// Clone returns a VideoFrame sharing no backing array with the receiver.
func (f VideoFrame) Clone() VideoFrame {
	out := f
	out.Payload = append([]byte(nil), f.Payload...)
	return out
}

// PlaneSizes returns the byte length of the Y, U and V planes for an I420
// frame of the given dimensions.
func PlaneSizes(width, height int) (y, u, v int) {
	cw, ch := (width+1)/2, (height+1)/2
	return width * height, cw * ch, cw * ch
}

// I420Planes returns slices into frame.Payload for each plane. The frame
// must be VideoFormatI420.
func (f *VideoFrame) I420Planes() (y, u, v []byte) {
	ySize, uSize, _ := PlaneSizes(f.Width, f.Height)
	y = f.Payload[:ySize]
	u = f.Payload[ySize : ySize+uSize]
	v = f.Payload[ySize+uSize:]
	return
}

// ExpiresAt returns the timestamp at which this frame is no longer the
// current frame for its stream (timestamp + duration).
func (f VideoFrame) ExpiresAt() time.Duration {
	return f.Timestamp + f.Duration
}

// Sample is the union carried on a MediaStreamID: exactly one of Audio or
// Video is set. End-of-stream is not a Sample value; it is a nil *Sample in
// ports.ProcessorInput, matching the processor contract's `sample | None`
// input shape.
type Sample struct {
	Audio *AudioData
	Video *VideoFrame
}

func (s Sample) Timestamp() time.Duration {
	if s.Audio != nil {
		return s.Audio.Timestamp
	}
	if s.Video != nil {
		return s.Video.Timestamp
	}
	return 0
}

func (s Sample) Duration() time.Duration {
	if s.Audio != nil {
		return s.Audio.Duration
	}
	if s.Video != nil {
		return s.Video.Duration
	}
	return 0
}
