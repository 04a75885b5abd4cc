package mp4mux

import (
	"time"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

// dummySampleEntryExtra pads the dummy sample entry used for reservation
// sizing well past any real codec's extension boxes (avcC, vpcC, dOps, ...),
// so the reserved region is never undersized by a codec-specific box this
// muxer does not yet emit.
const dummySampleEntryExtra = 4096

// estimateReservedMoovSize computes the worst-case size of the final moov
// box before a single sample has been written, mirroring the reference
// writer's build_dummy_moov_box: an oversized dummy sample entry, one stts
// run per sample, a single stsc entry (one sample per chunk), one stsz
// entry per sample,
// 64-bit chunk offsets and an all-keyframe stss. Actual encoding almost
// always compresses these tables via run-length merging, so this is
// guaranteed to be an over-estimate, never an under-estimate.
func estimateReservedMoovSize(layout *domain.Layout) uint64 {
	maxDuration := longestSourceDuration(layout)

	var trakSizes uint64
	if layout.HasAudio() {
		sampleCount := int(maxDuration/audioFrameHint) + 2
		trakSizes += uint64(len(buildDummyTrak(1, sampleCount, 0, 0)))
	}
	if layout.HasVideo() {
		frameDuration := layout.FrameRate.FrameDuration()
		if frameDuration <= 0 {
			frameDuration = time.Second / 25
		}
		sampleCount := int(maxDuration/frameDuration) + 2
		trakSizes += uint64(len(buildDummyTrak(2, sampleCount, layout.Resolution.Width, layout.Resolution.Height)))
	}

	mvhdSize := uint64(len(buildMvhd(0, 3)))
	moovSize := 8 + mvhdSize + trakSizes // 8 = moov box header
	return moovSize
}

func longestSourceDuration(layout *domain.Layout) time.Duration {
	var max time.Duration
	for _, src := range layout.Sources {
		d := src.StopTimestamp - src.StartTimestamp
		if d > max {
			max = d
		}
	}
	if max <= 0 {
		max = time.Hour
	}
	return max
}

// buildDummyTrak builds a worst-case-sized trak box for sampleCount samples
// of a track with the given visual dimensions (0,0 for audio), standing in
// for the real trak this package cannot size until every sample has
// arrived.
func buildDummyTrak(trackID uint32, sampleCount int, width, height int) []byte {
	durations := make([]uint32, sampleCount)
	sizes := make([]uint32, sampleCount)
	offsets := make([]uint64, sampleCount)
	samplesPerChunk := make([]int, sampleCount)
	syncSamples := make([]uint32, sampleCount)
	for i := 0; i < sampleCount; i++ {
		durations[i] = uint32(i + 1) // all-distinct so stts never run-length-merges
		sizes[i] = uint32(i + 1)     // all-distinct so stsz stays fully expanded
		offsets[i] = uint64(i) << 32 // forces 64-bit co64, never stco
		samplesPerChunk[i] = 1       // one sample per chunk; buildStsc merges this into one entry
		syncSamples[i] = uint32(i + 1)
	}

	entry := domain.SampleEntry{Width: width, Height: height, Extra: make([]byte, dummySampleEntryExtra)}
	if height == 0 {
		entry.Channels = 2
		entry.SampleRate = 48000
	}

	stsd := buildStsd(entry)
	stts := buildStts(durations)
	stsc := buildStsc(samplesPerChunk)
	stsz := buildStsz(sizes)
	co64 := buildCo64(offsets)
	stss := buildStss(syncSamples)

	stbl := buildBox("stbl", buildBoxes(stsd, stts, stsc, stsz, co64, stss))

	var mediaHeader []byte
	handlerType := "soun"
	if height > 0 {
		handlerType = "vide"
		mediaHeader = buildVmhd()
	} else {
		mediaHeader = buildSmhd()
	}
	minf := buildBox("minf", buildBoxes(mediaHeader, buildDinf(), stbl))
	mdia := buildBox("mdia", buildBoxes(buildMdhd(0), buildHdlr(handlerType), minf))
	tkhd := buildTkhd(trackID, 0, width, height)
	return buildBox("trak", buildBoxes(tkhd, mdia))
}
