package mp4mux

import (
	"github.com/shiguredo/hisui-sub000/internal/domain"
)

func buildFtyp() []byte {
	payload := buildBoxes(
		[]byte("isom"), u32(0),
		[]byte("isom"), []byte("iso2"), []byte("mp41"), []byte("avc1"), []byte("av01"),
	)
	return buildBox("ftyp", payload)
}

func buildFree(size int) []byte {
	if size < 8 {
		size = 8
	}
	return buildBox("free", make([]byte, size-8))
}

func buildMvhd(durationTicks uint64, nextTrackID uint32) []byte {
	payload := make([]byte, 0, 100)
	payload = append(payload, 0, 0, 0, 0) // version(0)+flags
	payload = append(payload, u32(0)...)  // creation time
	payload = append(payload, u32(0)...)  // modification time
	payload = append(payload, u32(timescaleMicros)...)
	payload = append(payload, u32(uint32(clampU32(durationTicks)))...)
	payload = append(payload, 0x00, 0x01, 0x00, 0x00) // rate 1.0
	payload = append(payload, 0x01, 0x00)             // volume 1.0
	payload = append(payload, 0x00, 0x00)             // reserved
	payload = append(payload, u32(0)...)              // reserved
	payload = append(payload, u32(0)...)              // reserved
	// unity matrix
	matrix := []uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}
	for _, m := range matrix {
		payload = append(payload, u32(m)...)
	}
	payload = append(payload, make([]byte, 24)...) // pre_defined
	payload = append(payload, u32(nextTrackID)...)
	return buildBox("mvhd", payload)
}

func clampU32(v uint64) uint64 {
	if v > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return v
}

func buildTkhd(trackID uint32, durationTicks uint64, width, height int) []byte {
	payload := make([]byte, 0, 92)
	payload = append(payload, 0, 0, 0, 0x07) // version(0)+flags(enabled|in_movie|in_preview)
	payload = append(payload, u32(0)...)     // creation time
	payload = append(payload, u32(0)...)     // modification time
	payload = append(payload, u32(trackID)...)
	payload = append(payload, u32(0)...) // reserved
	payload = append(payload, u32(uint32(clampU32(durationTicks)))...)
	payload = append(payload, make([]byte, 8)...) // reserved
	payload = append(payload, u16(0)...)           // layer
	payload = append(payload, u16(0)...)           // alternate group
	if height == 0 {
		payload = append(payload, 0x01, 0x00) // audio volume 1.0
	} else {
		payload = append(payload, 0x00, 0x00)
	}
	payload = append(payload, u16(0)...) // reserved
	matrix := []uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}
	for _, m := range matrix {
		payload = append(payload, u32(m)...)
	}
	payload = append(payload, u32(uint32(width)<<16)...)
	payload = append(payload, u32(uint32(height)<<16)...)
	return buildBox("tkhd", payload)
}

func buildMdhd(durationTicks uint64) []byte {
	payload := make([]byte, 0, 24)
	payload = append(payload, 0, 0, 0, 0)
	payload = append(payload, u32(0)...)
	payload = append(payload, u32(0)...)
	payload = append(payload, u32(timescaleMicros)...)
	payload = append(payload, u32(uint32(clampU32(durationTicks)))...)
	payload = append(payload, 0x55, 0xC4) // "und" language
	payload = append(payload, u16(0)...)
	return buildBox("mdhd", payload)
}

func buildHdlr(handlerType string) []byte {
	payload := make([]byte, 0, 32)
	payload = append(payload, 0, 0, 0, 0)
	payload = append(payload, u32(0)...)
	payload = append(payload, []byte(handlerType)...)
	payload = append(payload, make([]byte, 12)...)
	payload = append(payload, 0) // empty name, null-terminated
	return buildBox("hdlr", payload)
}

func buildSmhd() []byte {
	payload := []byte{0, 0, 0, 0, 0, 0, 0, 0}
	return buildBox("smhd", payload)
}

func buildVmhd() []byte {
	payload := append([]byte{0, 0, 0, 1}, make([]byte, 8)...)
	return buildBox("vmhd", payload)
}

func buildDinf() []byte {
	entry := buildBox("url ", []byte{0, 0, 0, 1})
	dref := buildBoxes([]byte{0, 0, 0, 0}, u32(1), entry)
	return buildBox("dinf", buildBox("dref", dref))
}

// buildSampleEntry writes a minimal, syntactically valid sample entry for
// codec. Codec-specific extension boxes (avcC/vpcC/dOps/esds and friends)
// belong to the codec engines the spec treats as an external collaborator
// (§4.3); this writes only the ISOBMFF-mandated fixed fields so the
// resulting stsd is well-formed without carrying real decoder config.
func buildSampleEntry(entry domain.SampleEntry) []byte {
	if entry.Width > 0 || entry.Height > 0 {
		return buildVisualSampleEntry(entry)
	}
	return buildAudioSampleEntry(entry)
}

func visualFourCC(codec domain.CodecName) string {
	switch codec {
	case domain.CodecVP8:
		return "vp08"
	case domain.CodecVP9:
		return "vp09"
	case domain.CodecH264:
		return "avc1"
	case domain.CodecH265:
		return "hev1"
	case domain.CodecAV1:
		return "av01"
	default:
		return "mp4v"
	}
}

func audioFourCC(codec domain.CodecName) string {
	switch codec {
	case domain.CodecOpus:
		return "Opus"
	case domain.CodecAAC:
		return "mp4a"
	default:
		return "mp4a"
	}
}

func buildVisualSampleEntry(entry domain.SampleEntry) []byte {
	payload := make([]byte, 0, 86)
	payload = append(payload, make([]byte, 6)...) // reserved
	payload = append(payload, u16(1)...)           // data reference index
	payload = append(payload, make([]byte, 16)...) // pre-defined/reserved
	payload = append(payload, u16(uint16(entry.Width))...)
	payload = append(payload, u16(uint16(entry.Height))...)
	payload = append(payload, u32(0x00480000)...) // horiz resolution 72dpi
	payload = append(payload, u32(0x00480000)...) // vert resolution 72dpi
	payload = append(payload, u32(0)...)           // reserved
	payload = append(payload, u16(1)...)           // frame count
	payload = append(payload, make([]byte, 32)...) // compressor name
	payload = append(payload, u16(0x0018)...)      // depth 24
	payload = append(payload, []byte{0xFF, 0xFF}...)
	payload = append(payload, entry.Extra...)
	return buildBox(visualFourCC(entry.Codec), payload)
}

func buildAudioSampleEntry(entry domain.SampleEntry) []byte {
	payload := make([]byte, 0, 36)
	payload = append(payload, make([]byte, 6)...) // reserved
	payload = append(payload, u16(1)...)           // data reference index
	payload = append(payload, make([]byte, 8)...)  // reserved
	channels := entry.Channels
	if channels == 0 {
		channels = 2
	}
	payload = append(payload, u16(uint16(channels))...)
	payload = append(payload, u16(16)...) // sample size
	payload = append(payload, make([]byte, 4)...)
	sampleRate := entry.SampleRate
	if sampleRate == 0 {
		sampleRate = 48000
	}
	payload = append(payload, u32(uint32(sampleRate)<<16)...)
	payload = append(payload, entry.Extra...)
	return buildBox(audioFourCC(entry.Codec), payload)
}

func buildStsd(entry domain.SampleEntry) []byte {
	payload := buildBoxes([]byte{0, 0, 0, 0}, u32(1), buildSampleEntry(entry))
	return buildBox("stsd", payload)
}

// buildStts encodes per-sample durations (in timescale ticks) as
// run-length (count, delta) pairs.
func buildStts(durations []uint32) []byte {
	type run struct{ count, delta uint32 }
	var runs []run
	for _, d := range durations {
		if len(runs) > 0 && runs[len(runs)-1].delta == d {
			runs[len(runs)-1].count++
			continue
		}
		runs = append(runs, run{count: 1, delta: d})
	}
	payload := buildBoxes([]byte{0, 0, 0, 0}, u32(uint32(len(runs))))
	for _, r := range runs {
		payload = append(payload, u32(r.count)...)
		payload = append(payload, u32(r.delta)...)
	}
	return buildBox("stts", payload)
}

// buildStsc encodes one entry per chunk whose sample count differs from
// the previous chunk's (run-length over sample-per-chunk).
func buildStsc(samplesPerChunk []int) []byte {
	type entry struct{ firstChunk, samplesPerChunk uint32 }
	var entries []entry
	for i, n := range samplesPerChunk {
		if len(entries) > 0 && entries[len(entries)-1].samplesPerChunk == uint32(n) {
			continue
		}
		entries = append(entries, entry{firstChunk: uint32(i + 1), samplesPerChunk: uint32(n)})
	}
	payload := buildBoxes([]byte{0, 0, 0, 0}, u32(uint32(len(entries))))
	for _, e := range entries {
		payload = append(payload, u32(e.firstChunk)...)
		payload = append(payload, u32(e.samplesPerChunk)...)
		payload = append(payload, u32(1)...) // sample_description_index
	}
	return buildBox("stsc", payload)
}

func buildStsz(sizes []uint32) []byte {
	payload := buildBoxes([]byte{0, 0, 0, 0}, u32(0), u32(uint32(len(sizes))))
	for _, s := range sizes {
		payload = append(payload, u32(s)...)
	}
	return buildBox("stsz", payload)
}

func buildStco(offsets []uint64) []byte {
	payload := buildBoxes([]byte{0, 0, 0, 0}, u32(uint32(len(offsets))))
	for _, o := range offsets {
		payload = append(payload, u32(uint32(o))...)
	}
	return buildBox("stco", payload)
}

func buildCo64(offsets []uint64) []byte {
	payload := buildBoxes([]byte{0, 0, 0, 0}, u32(uint32(len(offsets))))
	for _, o := range offsets {
		payload = append(payload, u64(o)...)
	}
	return buildBox("co64", payload)
}

func buildStss(syncSamples []uint32) []byte {
	payload := buildBoxes([]byte{0, 0, 0, 0}, u32(uint32(len(syncSamples))))
	for _, s := range syncSamples {
		payload = append(payload, u32(s)...)
	}
	return buildBox("stss", payload)
}

func maxOffset(offsets []uint64) uint64 {
	var max uint64
	for _, o := range offsets {
		if o > max {
			max = o
		}
	}
	return max
}
