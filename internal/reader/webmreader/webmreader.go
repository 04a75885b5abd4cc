// Package webmreader implements the webm variant of §4.2's container-reader
// contract: a minimal EBML/Matroska walk that locates the Segment's Tracks
// and Cluster elements and extracts SimpleBlock payloads.
//
// Track numbering follows the fixed convention of this system's only
// webm producer (Sora-style SFU recordings, as the original implementation
// this package is grounded on assumes too): track 1 is always video, track
// 2 is always audio, audio is always Opus. A general-purpose Matroska
// reader would negotiate these from the Tracks element instead of
// hardcoding them; this is a deliberate, documented simplification carried
// over from the reference implementation's own scope, not an oversight.
package webmreader

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

const (
	idEBML        = 0x1A45DFA3
	idSegment     = 0x18538067
	idInfo        = 0x1549A966
	idTracks      = 0x1654AE6B
	idTrackEntry  = 0xAE
	idTrackNumber = 0xD7
	idCodecID     = 0x86
	idVideo       = 0xE0
	idPixelWidth  = 0xB0
	idPixelHeight = 0xBA
	idCluster     = 0x1F43B675
	idTimestamp   = 0xE7
	idSimpleBlock = 0xA3
)

const (
	trackNumberVideo uint64 = 1
	trackNumberAudio uint64 = 2
)

type element struct {
	id         uint32
	start, end int // byte range of the element's content within the buffer passed to walkElements
}

func readID(data []byte, pos int) (id uint32, width int, err error) {
	if pos >= len(data) {
		return 0, 0, fmt.Errorf("webmreader: truncated element id")
	}
	b0 := data[pos]
	switch {
	case b0&0x80 != 0:
		width = 1
	case b0&0x40 != 0:
		width = 2
	case b0&0x20 != 0:
		width = 3
	case b0&0x10 != 0:
		width = 4
	default:
		return 0, 0, fmt.Errorf("webmreader: invalid element id byte 0x%02x", b0)
	}
	if pos+width > len(data) {
		return 0, 0, fmt.Errorf("webmreader: truncated element id")
	}
	var v uint32
	for i := 0; i < width; i++ {
		v = v<<8 | uint32(data[pos+i])
	}
	return v, width, nil
}

func readSize(data []byte, pos int) (size uint64, width int, err error) {
	if pos >= len(data) {
		return 0, 0, fmt.Errorf("webmreader: truncated size vint")
	}
	b0 := data[pos]
	mask := byte(0x80)
	width = 1
	for mask != 0 && b0&mask == 0 {
		mask >>= 1
		width++
	}
	if mask == 0 {
		return 0, 0, fmt.Errorf("webmreader: invalid size vint")
	}
	if pos+width > len(data) {
		return 0, 0, fmt.Errorf("webmreader: truncated size vint")
	}
	size = uint64(b0 &^ mask)
	for i := 1; i < width; i++ {
		size = size<<8 | uint64(data[pos+i])
	}
	return size, width, nil
}

// walkElements lists the top-level elements of data without descending into
// master elements; callers recurse manually by re-walking an element's own
// [start,end) slice.
func walkElements(data []byte) ([]element, error) {
	var out []element
	pos := 0
	for pos < len(data) {
		id, idWidth, err := readID(data, pos)
		if err != nil {
			return nil, err
		}
		size, sizeWidth, err := readSize(data, pos+idWidth)
		if err != nil {
			return nil, err
		}
		start := pos + idWidth + sizeWidth
		end := start + int(size)
		if end > len(data) {
			return nil, fmt.Errorf("webmreader: element 0x%X overruns its container", id)
		}
		out = append(out, element{id: id, start: start, end: end})
		pos = end
	}
	return out, nil
}

func findElement(elems []element, id uint32) (element, bool) {
	for _, e := range elems {
		if e.id == id {
			return e, true
		}
	}
	return element{}, false
}

func uintValue(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

type rawSample struct {
	timestamp time.Duration
	duration  time.Duration
	payload   []byte
}

// Reader is a single webm file's audio/video sample streams, fully
// extracted up front (the file is small enough, and clusters/cues boundary
// bookkeeping is not worth streaming for this system's scope).
type Reader struct {
	audioEntry *domain.SampleEntry
	videoEntry *domain.SampleEntry

	audioSamples []rawSample
	videoSamples []rawSample
	audioCursor  int
	videoCursor  int
}

// Open reads and parses path in full.
func Open(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapInput(fmt.Errorf("webmreader: read %s: %w", path, err))
	}

	top, err := walkElements(data)
	if err != nil {
		return nil, domain.WrapInput(err)
	}
	segment, ok := findElement(top, idSegment)
	if !ok {
		return nil, domain.WrapInput(fmt.Errorf("webmreader: %s has no Segment element", path))
	}
	segmentContent := data[segment.start:segment.end]
	segmentElems, err := walkElements(segmentContent)
	if err != nil {
		return nil, domain.WrapInput(err)
	}

	hasVideo, hasAudio, videoEntry := false, false, domain.SampleEntry{}
	if tracks, ok := findElement(segmentElems, idTracks); ok {
		tracksContent := segmentContent[tracks.start:tracks.end]
		trackElems, err := walkElements(tracksContent)
		if err != nil {
			return nil, domain.WrapInput(err)
		}
		for _, te := range trackElems {
			if te.id != idTrackEntry {
				continue
			}
			entryContent := tracksContent[te.start:te.end]
			entryElems, err := walkElements(entryContent)
			if err != nil {
				return nil, domain.WrapInput(err)
			}
			numElem, ok := findElement(entryElems, idTrackNumber)
			if !ok {
				continue
			}
			trackNumber := uintValue(entryContent[numElem.start:numElem.end])
			switch trackNumber {
			case trackNumberAudio:
				hasAudio = true
			case trackNumberVideo:
				hasVideo = true
				if codecElem, ok := findElement(entryElems, idCodecID); ok {
					videoEntry.Codec = videoCodecFromID(string(entryContent[codecElem.start:codecElem.end]))
				}
				if videoMaster, ok := findElement(entryElems, idVideo); ok {
					videoContent := entryContent[videoMaster.start:videoMaster.end]
					videoElems, err := walkElements(videoContent)
					if err != nil {
						return nil, domain.WrapInput(err)
					}
					if w, ok := findElement(videoElems, idPixelWidth); ok {
						videoEntry.Width = int(uintValue(videoContent[w.start:w.end]))
					}
					if h, ok := findElement(videoElems, idPixelHeight); ok {
						videoEntry.Height = int(uintValue(videoContent[h.start:h.end]))
					}
				}
			}
		}
	}

	var clusters []element
	for _, e := range segmentElems {
		if e.id == idCluster {
			clusters = append(clusters, e)
		}
	}

	r := &Reader{}
	if hasAudio {
		samples, err := extractSamples(clusters, segmentContent, trackNumberAudio)
		if err != nil {
			return nil, domain.WrapInput(err)
		}
		r.audioSamples = samples
		r.audioEntry = &domain.SampleEntry{Codec: domain.CodecOpus, SampleRate: 48000, Channels: 2}
	}
	if hasVideo {
		samples, err := extractSamples(clusters, segmentContent, trackNumberVideo)
		if err != nil {
			return nil, domain.WrapInput(err)
		}
		r.videoSamples = samples
		entry := videoEntry
		r.videoEntry = &entry
	}
	return r, nil
}

func videoCodecFromID(codecID string) domain.CodecName {
	switch codecID {
	case "V_VP8":
		return domain.CodecVP8
	case "V_VP9":
		return domain.CodecVP9
	case "V_AV1":
		return domain.CodecAV1
	case "V_MPEG4/ISO/AVC":
		return domain.CodecH264
	default:
		return domain.CodecH264
	}
}

// extractSamples pulls every SimpleBlock belonging to wantTrack out of
// clusters, in order, deriving each sample's duration from the gap to the
// next sample of the same track (the last sample repeats the previous
// sample's duration, since webm carries no explicit per-sample duration).
func extractSamples(clusters []element, segmentContent []byte, wantTrack uint64) ([]rawSample, error) {
	var out []rawSample
	var clusterTimestamp time.Duration

	for _, cl := range clusters {
		content := segmentContent[cl.start:cl.end]
		elems, err := walkElements(content)
		if err != nil {
			return nil, err
		}
		for _, e := range elems {
			switch e.id {
			case idTimestamp:
				clusterTimestamp = time.Duration(uintValue(content[e.start:e.end])) * time.Millisecond
			case idSimpleBlock:
				block := content[e.start:e.end]
				trackNumber, width, err := readSize(block, 0)
				if err != nil {
					return nil, err
				}
				if trackNumber != wantTrack {
					continue
				}
				if width+3 > len(block) {
					return nil, fmt.Errorf("webmreader: truncated SimpleBlock")
				}
				delta := int16(binary.BigEndian.Uint16(block[width : width+2]))
				payload := append([]byte(nil), block[width+3:]...)
				ts := clusterTimestamp + time.Duration(delta)*time.Millisecond
				out = append(out, rawSample{timestamp: ts, payload: payload})
			}
		}
	}

	for i := 0; i < len(out)-1; i++ {
		out[i].duration = out[i+1].timestamp - out[i].timestamp
	}
	if len(out) > 1 {
		out[len(out)-1].duration = out[len(out)-2].duration
	}
	return out, nil
}

// NextAudio returns the next audio sample, or ok=false at EOS / no track.
func (r *Reader) NextAudio() (domain.AudioData, bool, error) {
	if r.audioCursor >= len(r.audioSamples) {
		return domain.AudioData{}, false, nil
	}
	s := r.audioSamples[r.audioCursor]
	var entry *domain.SampleEntry
	if r.audioCursor == 0 {
		e := *r.audioEntry
		entry = &e
	}
	r.audioCursor++
	return domain.AudioData{
		Format:      domain.AudioFormatOpus,
		Payload:     s.payload,
		SampleRate:  48000,
		Stereo:      true,
		Timestamp:   s.timestamp,
		Duration:    s.duration,
		SampleEntry: entry,
	}, true, nil
}

// NextVideo returns the next video sample, or ok=false at EOS / no track.
func (r *Reader) NextVideo() (domain.VideoFrame, bool, error) {
	if r.videoCursor >= len(r.videoSamples) {
		return domain.VideoFrame{}, false, nil
	}
	s := r.videoSamples[r.videoCursor]
	var entry *domain.SampleEntry
	if r.videoCursor == 0 {
		e := *r.videoEntry
		entry = &e
	}
	r.videoCursor++
	return domain.VideoFrame{
		Format:      videoFormatFromCodec(r.videoEntry.Codec),
		Payload:     s.payload,
		Keyframe:    true,
		Width:       r.videoEntry.Width,
		Height:      r.videoEntry.Height,
		Timestamp:   s.timestamp,
		Duration:    s.duration,
		SampleEntry: entry,
	}, true, nil
}

func videoFormatFromCodec(codec domain.CodecName) domain.VideoFormat {
	switch codec {
	case domain.CodecVP8:
		return domain.VideoFormatVP8
	case domain.CodecVP9:
		return domain.VideoFormatVP9
	case domain.CodecAV1:
		return domain.VideoFormatAV1
	default:
		return domain.VideoFormatH264AnnexB
	}
}

// Close is a no-op: the whole file was read up front in Open.
func (r *Reader) Close() error { return nil }

// HasAudio/HasVideo report which tracks this file carries.
func (r *Reader) HasAudio() bool { return r.audioEntry != nil }
func (r *Reader) HasVideo() bool { return r.videoEntry != nil }

// AudioSampleEntry/VideoSampleEntry expose the track's decoder config ahead
// of reading any sample, so a caller wiring a decoder processor doesn't need
// to peek-and-replay the first sample to learn the codec.
func (r *Reader) AudioSampleEntry() *domain.SampleEntry { return r.audioEntry }
func (r *Reader) VideoSampleEntry() *domain.SampleEntry { return r.videoEntry }

// Duration reports the longer of the two tracks' last sample end time.
func (r *Reader) Duration() time.Duration {
	var max time.Duration
	if n := len(r.audioSamples); n > 0 {
		if d := r.audioSamples[n-1].timestamp + r.audioSamples[n-1].duration; d > max {
			max = d
		}
	}
	if n := len(r.videoSamples); n > 0 {
		if d := r.videoSamples[n-1].timestamp + r.videoSamples[n-1].duration; d > max {
			max = d
		}
	}
	return max
}
