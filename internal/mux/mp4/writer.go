package mp4mux

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shiguredo/hisui-sub000/internal/domain"
	"github.com/shiguredo/hisui-sub000/internal/metrics"
)

const (
	timescaleMicros  = 1_000_000
	maxChunkDuration = 10 * time.Second
	audioFrameHint   = 20 * time.Millisecond
)

// Stats holds the per-track counters and header-sizing figures (§4.7); of
// these, only the reserved and actual moov sizes are also published through
// internal/metrics. TotalProcessingTime is not set by the writer.
type Stats struct {
	AudioChunkCount, VideoChunkCount   int
	AudioSampleCount, VideoSampleCount int
	AudioByteSize, VideoByteSize       uint64
	ReservedMoovBoxSize                uint64
	ActualMoovBoxSize                  uint64
	TotalProcessingTime                time.Duration
}

type sampleRecord struct {
	size     uint32
	duration uint32
	keyframe bool
}

type chunkRecord struct {
	offset  uint64
	samples []sampleRecord
}

type trackWriter struct {
	chunks      []chunkRecord
	sampleEntry *domain.SampleEntry
	chunkAccum  time.Duration
	totalTicks  uint64
}

// Writer emits a single MP4 container with the media-data blob preceded by
// a reserved, then finalized, movie header (§4.7's faststart layout).
type Writer struct {
	file *os.File
	buf  *bufio.Writer

	logger *slog.Logger

	resolution domain.Resolution
	frameRate  domain.FrameRate
	hasAudio   bool
	hasVideo   bool

	fileSize     uint64
	mdatOffset   uint64
	moovOffset   uint64
	moovReserved uint64

	audio trackWriter
	video trackWriter

	stats Stats
}

// NewWriter opens path and writes the ftyp box, the reserved moov
// placeholder (sized against layout's worst-case sample counts) and the
// mdat box header.
func NewWriter(path string, layout *domain.Layout, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, domain.WrapConfiguration(fmt.Errorf("open output file: %w", err))
	}

	w := &Writer{
		file:       file,
		buf:        bufio.NewWriter(file),
		logger:     logger,
		resolution: layout.Resolution,
		frameRate:  layout.FrameRate,
		hasAudio:   layout.HasAudio(),
		hasVideo:   layout.HasVideo(),
	}

	if err := w.write(buildFtyp()); err != nil {
		return nil, err
	}

	w.moovOffset = w.fileSize
	w.moovReserved = estimateReservedMoovSize(layout)
	w.stats.ReservedMoovBoxSize = w.moovReserved
	metrics.MoovReservedBytes.Set(float64(w.moovReserved))
	logger.Debug("reserved moov box size", slog.Uint64("bytes", w.moovReserved))
	if err := w.write(buildFree(int(w.moovReserved))); err != nil {
		return nil, err
	}

	w.mdatOffset = w.fileSize
	if err := w.write(largeBoxHeader("mdat", 0)); err != nil {
		return nil, err
	}

	return w, nil
}

func (w *Writer) write(b []byte) error {
	n, err := w.buf.Write(b)
	w.fileSize += uint64(n)
	if err != nil {
		return domain.WrapCapacity(fmt.Errorf("write output file: %w", err))
	}
	return nil
}

// WriteAudio appends one encoded audio sample to the current audio chunk,
// opening a new chunk when the layout has both tracks and the current one
// has reached maxChunkDuration; an audio-only output stays in one chunk.
func (w *Writer) WriteAudio(frame domain.AudioData) error {
	if !w.hasAudio {
		return domain.WrapInvariant(fmt.Errorf("mp4mux: audio sample but layout has no audio track"))
	}
	if err := w.captureSampleEntry(&w.audio, frame.SampleEntry); err != nil {
		return err
	}
	if w.needsNewChunk(&w.audio) {
		w.audio.chunks = append(w.audio.chunks, chunkRecord{offset: w.fileSize})
		w.audio.chunkAccum = 0
		w.stats.AudioChunkCount++
	}
	chunk := &w.audio.chunks[len(w.audio.chunks)-1]
	durationTicks := uint32(frame.Duration.Microseconds())
	chunk.samples = append(chunk.samples, sampleRecord{size: uint32(len(frame.Payload)), duration: durationTicks, keyframe: true})
	w.audio.chunkAccum += frame.Duration
	w.audio.totalTicks += uint64(durationTicks)
	w.stats.AudioSampleCount++
	w.stats.AudioByteSize += uint64(len(frame.Payload))
	return w.write(frame.Payload)
}

// WriteVideo appends one encoded video frame to the current video chunk.
func (w *Writer) WriteVideo(frame domain.VideoFrame) error {
	if !w.hasVideo {
		return domain.WrapInvariant(fmt.Errorf("mp4mux: video frame but layout has no video track"))
	}
	if err := w.captureSampleEntry(&w.video, frame.SampleEntry); err != nil {
		return err
	}
	if w.needsNewChunk(&w.video) {
		w.video.chunks = append(w.video.chunks, chunkRecord{offset: w.fileSize})
		w.video.chunkAccum = 0
		w.stats.VideoChunkCount++
	}
	chunk := &w.video.chunks[len(w.video.chunks)-1]
	durationTicks := uint32(frame.Duration.Microseconds())
	chunk.samples = append(chunk.samples, sampleRecord{size: uint32(len(frame.Payload)), duration: durationTicks, keyframe: frame.Keyframe})
	w.video.chunkAccum += frame.Duration
	w.video.totalTicks += uint64(durationTicks)
	w.stats.VideoSampleCount++
	w.stats.VideoByteSize += uint64(len(frame.Payload))
	return w.write(frame.Payload)
}

func (w *Writer) captureSampleEntry(track *trackWriter, entry *domain.SampleEntry) error {
	if track.sampleEntry == nil {
		if entry == nil {
			return domain.WrapInvariant(fmt.Errorf("mp4mux: first sample of a track must carry a sample entry"))
		}
		track.sampleEntry = entry
		return nil
	}
	return nil
}

func (w *Writer) needsNewChunk(track *trackWriter) bool {
	if len(track.chunks) == 0 {
		return true
	}
	if w.hasAudio && w.hasVideo && track.chunkAccum >= maxChunkDuration {
		return true
	}
	return false
}

// Finalize patches the mdat size, builds the real moov box from every
// accumulated sample table and writes it into the reserved region,
// failing with ErrCapacity if the reservation turned out too small.
func (w *Writer) Finalize() error {
	if err := w.buf.Flush(); err != nil {
		return domain.WrapCapacity(fmt.Errorf("flush output file: %w", err))
	}

	mdatSize := w.fileSize - w.mdatOffset
	if _, err := w.file.WriteAt(largeBoxHeader("mdat", mdatSize), int64(w.mdatOffset)); err != nil {
		return domain.WrapCapacity(fmt.Errorf("patch mdat size: %w", err))
	}

	moovBytes := w.buildMoov()
	w.stats.ActualMoovBoxSize = uint64(len(moovBytes))
	metrics.MoovActualBytes.Set(float64(len(moovBytes)))
	if uint64(len(moovBytes)) > w.moovReserved {
		return domain.WrapCapacity(fmt.Errorf("mp4mux: moov box (%d bytes) exceeds reserved space (%d bytes)",
			len(moovBytes), w.moovReserved))
	}

	if _, err := w.file.WriteAt(moovBytes, int64(w.moovOffset)); err != nil {
		return domain.WrapCapacity(fmt.Errorf("write moov box: %w", err))
	}

	remaining := w.moovReserved - uint64(len(moovBytes))
	if remaining > 0 {
		if remaining < 8 {
			return domain.WrapCapacity(fmt.Errorf("mp4mux: moov padding (%d bytes) too small to form a box", remaining))
		}
		if _, err := w.file.WriteAt(buildFree(int(remaining)), int64(w.moovOffset+uint64(len(moovBytes)))); err != nil {
			return domain.WrapCapacity(fmt.Errorf("write moov padding: %w", err))
		}
	}

	return w.file.Close()
}

func (w *Writer) buildMoov() []byte {
	var traks [][]byte
	var trackID uint32 = 1
	var duration uint64

	if w.hasAudio {
		traks = append(traks, buildRealTrak(trackID, &w.audio, 0, 0))
		trackID++
		if w.audio.totalTicks > duration {
			duration = w.audio.totalTicks
		}
	}
	if w.hasVideo {
		traks = append(traks, buildRealTrak(trackID, &w.video, w.resolution.Width, w.resolution.Height))
		trackID++
		if w.video.totalTicks > duration {
			duration = w.video.totalTicks
		}
	}

	mvhd := buildMvhd(duration, trackID)
	return buildBox("moov", buildBoxes(append([][]byte{mvhd}, traks...)...))
}

func buildRealTrak(trackID uint32, track *trackWriter, width, height int) []byte {
	var durations, sizes []uint32
	var offsets []uint64
	var samplesPerChunk []int
	var syncSamples []uint32
	allSync := true
	sampleIndex := uint32(0)

	for _, chunk := range track.chunks {
		offsets = append(offsets, chunk.offset)
		samplesPerChunk = append(samplesPerChunk, len(chunk.samples))
		for _, s := range chunk.samples {
			sampleIndex++
			durations = append(durations, s.duration)
			sizes = append(sizes, s.size)
			if s.keyframe {
				syncSamples = append(syncSamples, sampleIndex)
			} else {
				allSync = false
			}
		}
	}

	var entry domain.SampleEntry
	if track.sampleEntry != nil {
		entry = *track.sampleEntry
	}

	stsd := buildStsd(entry)
	stts := buildStts(durations)
	stsc := buildStsc(samplesPerChunk)
	stsz := buildStsz(sizes)
	var stco []byte
	if maxOffset(offsets) > 0xFFFFFFFF {
		stco = buildCo64(offsets)
	} else {
		stco = buildStco(offsets)
	}

	stblParts := [][]byte{stsd, stts, stsc, stsz, stco}
	if !allSync {
		stblParts = append(stblParts, buildStss(syncSamples))
	}
	stbl := buildBox("stbl", buildBoxes(stblParts...))

	var mediaHeader []byte
	handlerType := "soun"
	if height > 0 {
		handlerType = "vide"
	}
	if height > 0 {
		mediaHeader = buildVmhd()
	} else {
		mediaHeader = buildSmhd()
	}
	minf := buildBox("minf", buildBoxes(mediaHeader, buildDinf(), stbl))
	mdia := buildBox("mdia", buildBoxes(buildMdhd(track.totalTicks), buildHdlr(handlerType), minf))
	tkhd := buildTkhd(trackID, track.totalTicks, width, height)
	return buildBox("trak", buildBoxes(tkhd, mdia))
}
