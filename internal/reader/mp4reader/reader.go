// Package mp4reader implements the mp4 variant of §4.2's container-reader
// contract: a box-tree walk over moov/trak/mdia/minf/stbl building a flat
// per-track sample list (offset, size, duration, keyframe), then streamed
// out in ascending timestamp order. Sample-entry layout mirrors exactly
// what internal/mux/mp4 writes (minimal fixed ISOBMFF fields, no
// codec-specific extension boxes), so round-tripping this package's own
// muxer output is lossless; parsing an arbitrary third-party mp4 with
// extension boxes still recovers codec tag, dimensions/channels and the
// sample table, just not those extension boxes' contents.
package mp4reader

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

type box struct {
	fourcc  string
	payload []byte
}

func readBoxes(data []byte) ([]box, error) {
	var boxes []box
	i := 0
	for i+8 <= len(data) {
		size := binary.BigEndian.Uint32(data[i : i+4])
		fourcc := string(data[i+4 : i+8])
		hdr := 8
		var boxSize uint64
		switch size {
		case 1:
			if i+16 > len(data) {
				return nil, fmt.Errorf("mp4reader: truncated largesize box %q", fourcc)
			}
			boxSize = binary.BigEndian.Uint64(data[i+8 : i+16])
			hdr = 16
		case 0:
			boxSize = uint64(len(data) - i)
		default:
			boxSize = uint64(size)
		}
		if boxSize < uint64(hdr) || i+int(boxSize) > len(data) {
			return nil, fmt.Errorf("mp4reader: box %q size %d out of range", fourcc, boxSize)
		}
		boxes = append(boxes, box{fourcc: fourcc, payload: data[i+hdr : i+int(boxSize)]})
		i += int(boxSize)
	}
	return boxes, nil
}

func findBox(boxes []box, fourcc string) ([]byte, bool) {
	for _, b := range boxes {
		if b.fourcc == fourcc {
			return b.payload, true
		}
	}
	return nil, false
}

type sampleMeta struct {
	offset   uint64
	size     uint32
	duration uint32
	keyframe bool
}

type track struct {
	handlerType string // "vide" or "soun"
	timescale   uint32
	declaredTicks uint64
	entry       domain.SampleEntry
	samples     []sampleMeta
	cursor      int
	cumTicks    uint64
	entrySent   bool
}

func (t *track) totalSampleTicks() uint64 {
	var total uint64
	for _, s := range t.samples {
		total += uint64(s.duration)
	}
	return total
}

// Reader is a single mp4 file's audio/video sample streams.
type Reader struct {
	file  *os.File
	audio *track
	video *track
}

// Open parses path's moov box and prepares to stream samples; the mdat
// payload itself is read lazily, sample by sample, via file seeks.
func Open(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapInput(fmt.Errorf("mp4reader: read %s: %w", path, err))
	}
	top, err := readBoxes(data)
	if err != nil {
		return nil, domain.WrapInput(err)
	}
	moovPayload, ok := findBox(top, "moov")
	if !ok {
		return nil, domain.WrapInput(fmt.Errorf("mp4reader: %s has no moov box", path))
	}
	moovBoxes, err := readBoxes(moovPayload)
	if err != nil {
		return nil, domain.WrapInput(err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, domain.WrapInput(err)
	}

	r := &Reader{file: file}
	for _, b := range moovBoxes {
		if b.fourcc != "trak" {
			continue
		}
		tr, err := parseTrak(b.payload)
		if err != nil {
			file.Close()
			return nil, domain.WrapInput(fmt.Errorf("mp4reader: %s: %w", path, err))
		}
		if tr == nil {
			continue
		}
		switch tr.handlerType {
		case "vide":
			r.video = tr
		case "soun":
			r.audio = tr
		}
	}
	return r, nil
}

func parseTrak(trakPayload []byte) (*track, error) {
	trakBoxes, err := readBoxes(trakPayload)
	if err != nil {
		return nil, err
	}
	mdiaPayload, ok := findBox(trakBoxes, "mdia")
	if !ok {
		return nil, fmt.Errorf("trak has no mdia box")
	}
	mdiaBoxes, err := readBoxes(mdiaPayload)
	if err != nil {
		return nil, err
	}

	mdhdPayload, ok := findBox(mdiaBoxes, "mdhd")
	if !ok {
		return nil, fmt.Errorf("mdia has no mdhd box")
	}
	timescale, declaredTicks, err := parseMdhd(mdhdPayload)
	if err != nil {
		return nil, err
	}

	hdlrPayload, ok := findBox(mdiaBoxes, "hdlr")
	if !ok {
		return nil, fmt.Errorf("mdia has no hdlr box")
	}
	if len(hdlrPayload) < 12 {
		return nil, fmt.Errorf("hdlr box too small")
	}
	handlerType := string(hdlrPayload[8:12])
	if handlerType != "vide" && handlerType != "soun" {
		return nil, nil // unsupported track kind (e.g. hint tracks); skip
	}

	minfPayload, ok := findBox(mdiaBoxes, "minf")
	if !ok {
		return nil, fmt.Errorf("mdia has no minf box")
	}
	minfBoxes, err := readBoxes(minfPayload)
	if err != nil {
		return nil, err
	}
	stblPayload, ok := findBox(minfBoxes, "stbl")
	if !ok {
		return nil, fmt.Errorf("minf has no stbl box")
	}
	stblBoxes, err := readBoxes(stblPayload)
	if err != nil {
		return nil, err
	}

	entry, err := parseStsd(stblBoxes, handlerType)
	if err != nil {
		return nil, err
	}

	durations, err := parseStts(stblBoxes)
	if err != nil {
		return nil, err
	}
	sizes, err := parseStsz(stblBoxes)
	if err != nil {
		return nil, err
	}
	chunkOffsets, err := parseChunkOffsets(stblBoxes)
	if err != nil {
		return nil, err
	}
	samplesPerChunk, err := parseStsc(stblBoxes, len(chunkOffsets))
	if err != nil {
		return nil, err
	}
	syncSamples, hasStss := parseStss(stblBoxes)

	if len(sizes) != len(durations) {
		return nil, fmt.Errorf("stsz sample count %d disagrees with stts %d", len(sizes), len(durations))
	}

	samples := make([]sampleMeta, 0, len(sizes))
	sampleIndex := 0
	for chunkIdx, chunkOffset := range chunkOffsets {
		n := samplesPerChunk[chunkIdx]
		offset := chunkOffset
		for i := 0; i < n; i++ {
			if sampleIndex >= len(sizes) {
				return nil, fmt.Errorf("stsc describes more samples than stsz/stts provide")
			}
			samples = append(samples, sampleMeta{
				offset:   offset,
				size:     sizes[sampleIndex],
				duration: durations[sampleIndex],
				keyframe: !hasStss,
			})
			offset += uint64(sizes[sampleIndex])
			sampleIndex++
		}
	}
	if sampleIndex != len(sizes) {
		return nil, fmt.Errorf("stsc accounted for %d of %d samples", sampleIndex, len(sizes))
	}
	if hasStss {
		for _, idx := range syncSamples {
			if int(idx) >= 1 && int(idx) <= len(samples) {
				samples[idx-1].keyframe = true
			}
		}
	}

	t := &track{handlerType: handlerType, timescale: timescale, declaredTicks: declaredTicks, entry: entry, samples: samples}
	truncateLastSampleDuration(t)
	return t, nil
}

// truncateLastSampleDuration enforces §4.2's rule: the last sample's
// duration is inherited from the previous one unless the container
// declares a shorter explicit track duration, in which case it is
// truncated to match.
func truncateLastSampleDuration(t *track) {
	if len(t.samples) == 0 || t.declaredTicks == 0 {
		return
	}
	total := t.totalSampleTicks()
	if total <= t.declaredTicks {
		return
	}
	last := &t.samples[len(t.samples)-1]
	overshoot := total - t.declaredTicks
	if uint64(last.duration) <= overshoot {
		return
	}
	slog.Debug("mp4reader: truncating final sample duration to match declared track duration",
		slog.Uint64("overshoot_ticks", overshoot))
	last.duration -= uint32(overshoot)
}

func parseMdhd(payload []byte) (timescale uint32, durationTicks uint64, err error) {
	if len(payload) < 4 {
		return 0, 0, fmt.Errorf("mdhd box too small")
	}
	version := payload[0]
	if version == 1 {
		if len(payload) < 4+8+8+4+8 {
			return 0, 0, fmt.Errorf("mdhd v1 box too small")
		}
		timescale = binary.BigEndian.Uint32(payload[20:24])
		durationTicks = binary.BigEndian.Uint64(payload[24:32])
		return timescale, durationTicks, nil
	}
	if len(payload) < 4+4+4+4+4 {
		return 0, 0, fmt.Errorf("mdhd v0 box too small")
	}
	timescale = binary.BigEndian.Uint32(payload[12:16])
	durationTicks = uint64(binary.BigEndian.Uint32(payload[16:20]))
	return timescale, durationTicks, nil
}

func parseStsd(stblBoxes []box, handlerType string) (domain.SampleEntry, error) {
	stsdPayload, ok := findBox(stblBoxes, "stsd")
	if !ok {
		return domain.SampleEntry{}, fmt.Errorf("stbl has no stsd box")
	}
	if len(stsdPayload) < 8 {
		return domain.SampleEntry{}, fmt.Errorf("stsd box too small")
	}
	entryBoxes, err := readBoxes(stsdPayload[8:])
	if err != nil || len(entryBoxes) == 0 {
		return domain.SampleEntry{}, fmt.Errorf("stsd has no sample entry")
	}
	entryBox := entryBoxes[0]
	codec := codecFromFourCC(entryBox.fourcc)
	if handlerType == "vide" {
		if len(entryBox.payload) < 32 {
			return domain.SampleEntry{}, fmt.Errorf("visual sample entry too small")
		}
		width := int(binary.BigEndian.Uint16(entryBox.payload[24:26]))
		height := int(binary.BigEndian.Uint16(entryBox.payload[26:28]))
		var extra []byte
		if len(entryBox.payload) > 78 {
			extra = append([]byte(nil), entryBox.payload[78:]...)
		}
		return domain.SampleEntry{Codec: codec, Width: width, Height: height, Extra: extra}, nil
	}
	if len(entryBox.payload) < 28 {
		return domain.SampleEntry{}, fmt.Errorf("audio sample entry too small")
	}
	channels := int(binary.BigEndian.Uint16(entryBox.payload[16:18]))
	sampleRate := int(binary.BigEndian.Uint32(entryBox.payload[24:28]) >> 16)
	var extra []byte
	if len(entryBox.payload) > 28 {
		extra = append([]byte(nil), entryBox.payload[28:]...)
	}
	return domain.SampleEntry{Codec: codec, Channels: channels, SampleRate: sampleRate, Extra: extra}, nil
}

func codecFromFourCC(fourcc string) domain.CodecName {
	switch fourcc {
	case "vp08":
		return domain.CodecVP8
	case "vp09":
		return domain.CodecVP9
	case "avc1":
		return domain.CodecH264
	case "hev1", "hvc1":
		return domain.CodecH265
	case "av01":
		return domain.CodecAV1
	case "Opus":
		return domain.CodecOpus
	case "mp4a":
		return domain.CodecAAC
	default:
		return domain.CodecH264
	}
}

func parseStts(stblBoxes []box) ([]uint32, error) {
	payload, ok := findBox(stblBoxes, "stts")
	if !ok {
		return nil, fmt.Errorf("stbl has no stts box")
	}
	if len(payload) < 8 {
		return nil, fmt.Errorf("stts box too small")
	}
	count := binary.BigEndian.Uint32(payload[4:8])
	var out []uint32
	offset := 8
	for i := uint32(0); i < count; i++ {
		if offset+8 > len(payload) {
			return nil, fmt.Errorf("stts box truncated")
		}
		runCount := binary.BigEndian.Uint32(payload[offset : offset+4])
		delta := binary.BigEndian.Uint32(payload[offset+4 : offset+8])
		for j := uint32(0); j < runCount; j++ {
			out = append(out, delta)
		}
		offset += 8
	}
	return out, nil
}

func parseStsz(stblBoxes []box) ([]uint32, error) {
	payload, ok := findBox(stblBoxes, "stsz")
	if !ok {
		return nil, fmt.Errorf("stbl has no stsz box")
	}
	if len(payload) < 12 {
		return nil, fmt.Errorf("stsz box too small")
	}
	constantSize := binary.BigEndian.Uint32(payload[4:8])
	count := binary.BigEndian.Uint32(payload[8:12])
	out := make([]uint32, count)
	if constantSize != 0 {
		for i := range out {
			out[i] = constantSize
		}
		return out, nil
	}
	offset := 12
	for i := uint32(0); i < count; i++ {
		if offset+4 > len(payload) {
			return nil, fmt.Errorf("stsz box truncated")
		}
		out[i] = binary.BigEndian.Uint32(payload[offset : offset+4])
		offset += 4
	}
	return out, nil
}

func parseChunkOffsets(stblBoxes []box) ([]uint64, error) {
	if payload, ok := findBox(stblBoxes, "co64"); ok {
		if len(payload) < 8 {
			return nil, fmt.Errorf("co64 box too small")
		}
		count := binary.BigEndian.Uint32(payload[4:8])
		out := make([]uint64, count)
		offset := 8
		for i := uint32(0); i < count; i++ {
			if offset+8 > len(payload) {
				return nil, fmt.Errorf("co64 box truncated")
			}
			out[i] = binary.BigEndian.Uint64(payload[offset : offset+8])
			offset += 8
		}
		return out, nil
	}
	payload, ok := findBox(stblBoxes, "stco")
	if !ok {
		return nil, fmt.Errorf("stbl has neither stco nor co64 box")
	}
	if len(payload) < 8 {
		return nil, fmt.Errorf("stco box too small")
	}
	count := binary.BigEndian.Uint32(payload[4:8])
	out := make([]uint64, count)
	offset := 8
	for i := uint32(0); i < count; i++ {
		if offset+4 > len(payload) {
			return nil, fmt.Errorf("stco box truncated")
		}
		out[i] = uint64(binary.BigEndian.Uint32(payload[offset : offset+4]))
		offset += 4
	}
	return out, nil
}

func parseStsc(stblBoxes []box, chunkCount int) ([]int, error) {
	payload, ok := findBox(stblBoxes, "stsc")
	if !ok {
		return nil, fmt.Errorf("stbl has no stsc box")
	}
	if len(payload) < 8 {
		return nil, fmt.Errorf("stsc box too small")
	}
	count := binary.BigEndian.Uint32(payload[4:8])
	type entry struct {
		firstChunk      uint32
		samplesPerChunk uint32
	}
	entries := make([]entry, count)
	offset := 8
	for i := uint32(0); i < count; i++ {
		if offset+12 > len(payload) {
			return nil, fmt.Errorf("stsc box truncated")
		}
		entries[i] = entry{
			firstChunk:      binary.BigEndian.Uint32(payload[offset : offset+4]),
			samplesPerChunk: binary.BigEndian.Uint32(payload[offset+4 : offset+8]),
		}
		offset += 12
	}

	out := make([]int, chunkCount)
	for c := 1; c <= chunkCount; c++ {
		var current uint32
		for _, e := range entries {
			if e.firstChunk <= uint32(c) {
				current = e.samplesPerChunk
			}
		}
		out[c-1] = int(current)
	}
	return out, nil
}

func parseStss(stblBoxes []box) ([]uint32, bool) {
	payload, ok := findBox(stblBoxes, "stss")
	if !ok {
		return nil, false
	}
	if len(payload) < 8 {
		return nil, true
	}
	count := binary.BigEndian.Uint32(payload[4:8])
	out := make([]uint32, 0, count)
	offset := 8
	for i := uint32(0); i < count && offset+4 <= len(payload); i++ {
		out = append(out, binary.BigEndian.Uint32(payload[offset:offset+4]))
		offset += 4
	}
	return out, true
}

func ticksToDuration(ticks uint64, timescale uint32) time.Duration {
	if timescale == 0 {
		return 0
	}
	return time.Duration(ticks * uint64(time.Second) / uint64(timescale))
}

// NextAudio returns this file's next audio sample, or ok=false at EOS / if
// the file has no audio track.
func (r *Reader) NextAudio() (domain.AudioData, bool, error) {
	if r.audio == nil {
		return domain.AudioData{}, false, nil
	}
	return nextSample(r.file, r.audio, func(payload []byte, ts, dur time.Duration, entry *domain.SampleEntry) domain.AudioData {
		return domain.AudioData{
			Format:      audioFormatFor(r.audio.entry.Codec),
			Payload:     payload,
			Timestamp:   ts,
			Duration:    dur,
			SampleEntry: entry,
		}
	})
}

// NextVideo returns this file's next video sample, or ok=false at EOS / if
// the file has no video track.
func (r *Reader) NextVideo() (domain.VideoFrame, bool, error) {
	if r.video == nil {
		return domain.VideoFrame{}, false, nil
	}
	frame, ok, err := nextSample(r.file, r.video, func(payload []byte, ts, dur time.Duration, entry *domain.SampleEntry) domain.VideoFrame {
		return domain.VideoFrame{
			Format:      videoFormatFor(r.video.entry.Codec),
			Payload:     payload,
			Width:       r.video.entry.Width,
			Height:      r.video.entry.Height,
			Timestamp:   ts,
			Duration:    dur,
			SampleEntry: entry,
		}
	})
	if ok {
		frame.Keyframe = r.video.samples[r.video.cursor-1].keyframe
	}
	return frame, ok, err
}

func nextSample[T any](file *os.File, t *track, build func(payload []byte, ts, dur time.Duration, entry *domain.SampleEntry) T) (T, bool, error) {
	var zero T
	if t.cursor >= len(t.samples) {
		return zero, false, nil
	}
	s := t.samples[t.cursor]
	payload := make([]byte, s.size)
	if _, err := file.ReadAt(payload, int64(s.offset)); err != nil {
		return zero, false, domain.WrapInput(fmt.Errorf("mp4reader: read sample at offset %d: %w", s.offset, err))
	}
	ts := ticksToDuration(t.cumTicks, t.timescale)
	dur := ticksToDuration(uint64(s.duration), t.timescale)
	var entry *domain.SampleEntry
	if !t.entrySent {
		t.entrySent = true
		e := t.entry
		entry = &e
	}
	t.cumTicks += uint64(s.duration)
	t.cursor++
	return build(payload, ts, dur, entry), true, nil
}

func audioFormatFor(codec domain.CodecName) domain.AudioFormat {
	if codec == domain.CodecAAC {
		return domain.AudioFormatAAC
	}
	return domain.AudioFormatOpus
}

func videoFormatFor(codec domain.CodecName) domain.VideoFormat {
	switch codec {
	case domain.CodecVP8:
		return domain.VideoFormatVP8
	case domain.CodecVP9:
		return domain.VideoFormatVP9
	case domain.CodecH265:
		return domain.VideoFormatH265
	case domain.CodecAV1:
		return domain.VideoFormatAV1
	default:
		return domain.VideoFormatH264
	}
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Duration reports the longer of the audio/video track's summed sample
// durations, used by Probe to fill SourceInfo.StopTimestamp.
func (r *Reader) Duration() time.Duration {
	var max time.Duration
	if r.audio != nil {
		if d := ticksToDuration(r.audio.totalSampleTicks(), r.audio.timescale); d > max {
			max = d
		}
	}
	if r.video != nil {
		if d := ticksToDuration(r.video.totalSampleTicks(), r.video.timescale); d > max {
			max = d
		}
	}
	return max
}

// HasAudio/HasVideo report which tracks this file carries.
func (r *Reader) HasAudio() bool { return r.audio != nil }
func (r *Reader) HasVideo() bool { return r.video != nil }

// AudioSampleEntry/VideoSampleEntry expose the track's decoder config ahead
// of reading any sample, so a caller wiring a decoder processor doesn't need
// to peek-and-replay the first sample to learn the codec.
func (r *Reader) AudioSampleEntry() *domain.SampleEntry {
	if r.audio == nil {
		return nil
	}
	entry := r.audio.entry
	return &entry
}

func (r *Reader) VideoSampleEntry() *domain.SampleEntry {
	if r.video == nil {
		return nil
	}
	entry := r.video.entry
	return &entry
}
