// Package reader selects and opens the right container demuxer for a media
// file and adapts it onto the pipeline's MediaProcessor contract (§4.2).
package reader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shiguredo/hisui-sub000/internal/domain"
	"github.com/shiguredo/hisui-sub000/internal/domain/ports"
	"github.com/shiguredo/hisui-sub000/internal/reader/mp4reader"
	"github.com/shiguredo/hisui-sub000/internal/reader/webmreader"
)

var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// Sniff inspects a file's leading bytes to tell an mp4 from a webm without
// trusting its extension.
func Sniff(path string) (domain.ContainerFormat, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, domain.WrapInput(fmt.Errorf("reader: open %s: %w", path, err))
	}
	defer f.Close()

	var header [12]byte
	n, err := f.Read(header[:])
	if err != nil && n == 0 {
		return 0, domain.WrapInput(fmt.Errorf("reader: read header of %s: %w", path, err))
	}
	if bytes.Equal(header[:4], ebmlMagic) {
		return domain.ContainerFormatWebM, nil
	}
	if n >= 8 && bytes.Equal(header[4:8], []byte("ftyp")) {
		return domain.ContainerFormatMP4, nil
	}
	return 0, domain.WrapInput(fmt.Errorf("reader: %s is neither mp4 nor webm", path))
}

// Open selects and opens the container reader for path.
func Open(path string) (ports.ContainerReader, domain.ContainerFormat, error) {
	format, err := Sniff(path)
	if err != nil {
		return nil, 0, err
	}
	switch format {
	case domain.ContainerFormatWebM:
		r, err := webmreader.Open(path)
		if err != nil {
			return nil, 0, err
		}
		return r, format, nil
	case domain.ContainerFormatMP4:
		r, err := mp4reader.Open(path)
		if err != nil {
			return nil, 0, err
		}
		return r, format, nil
	default:
		return nil, 0, domain.WrapInput(fmt.Errorf("reader: unsupported container format for %s", path))
	}
}

// TrackInfo is the subset of Open's concrete reader describing what it
// carries, ahead of reading any sample; mp4reader.Reader and
// webmreader.Reader both satisfy it. Exported so pipeline-wiring callers
// (cmd/compose) can learn a source's codecs without peeking a sample.
type TrackInfo interface {
	HasAudio() bool
	HasVideo() bool
	Duration() time.Duration
	AudioSampleEntry() *domain.SampleEntry
	VideoSampleEntry() *domain.SampleEntry
}

type trackInfo = TrackInfo

// sourceIDFromPath derives a SourceID from a media file's stem, matching
// the one-archive-per-participant naming convention described in §4.4:
// "alice.webm" and "alice.mp4" both belong to source "alice".
func sourceIDFromPath(path string) domain.SourceID {
	base := filepath.Base(path)
	return domain.SourceID(strings.TrimSuffix(base, filepath.Ext(base)))
}

// Probe opens mediaPath just long enough to describe it, matching
// layout.SourceProbe's shape. There is no external wall-clock report for a
// standalone file, so start_timestamp is taken as 0 (the file's own first
// sample) and stop_timestamp as the file's total duration; a caller driving
// this from a recording-metadata report should prefer that report's
// declared start/stop times instead (see DESIGN.md).
func Probe(mediaPath string) (domain.SourceInfo, error) {
	r, format, err := Open(mediaPath)
	if err != nil {
		return domain.SourceInfo{}, err
	}
	defer r.Close()

	info, ok := r.(trackInfo)
	if !ok {
		return domain.SourceInfo{}, domain.WrapInvariant(fmt.Errorf("reader: %s's reader does not expose track info", mediaPath))
	}
	return domain.SourceInfo{
		ID:             sourceIDFromPath(mediaPath),
		Format:         format,
		Audio:          info.HasAudio(),
		Video:          info.HasVideo(),
		StartTimestamp: 0,
		StopTimestamp:  info.Duration(),
	}, nil
}
