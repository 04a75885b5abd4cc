package domain

import "time"

// ContainerFormat is the container family a source's media files are stored
// in.
type ContainerFormat int

const (
	ContainerFormatWebM ContainerFormat = iota
	ContainerFormatMP4
)

// SourceInfo describes one media file belonging to a source.
type SourceInfo struct {
	ID             SourceID
	Format         ContainerFormat
	Audio          bool
	Video          bool
	StartTimestamp time.Duration
	StopTimestamp  time.Duration
}

// AggregatedSourceInfo is the union, across every split-recording segment
// belonging to one SourceID, of its format/timing metadata plus its media
// file paths ordered by their own start timestamp.
type AggregatedSourceInfo struct {
	ID             SourceID
	Format         ContainerFormat
	Audio          bool
	Video          bool
	StartTimestamp time.Duration // min across segments
	StopTimestamp  time.Duration // max across segments

	// MediaPaths maps a resolved media file path to the SourceInfo describing
	// it; ordering for iteration is established via SortedMediaPaths.
	MediaPaths map[string]SourceInfo
}

// NewAggregatedSourceInfo returns a zero-value aggregate ready for Update.
// Mirrors the original system's Default impl: StartTimestamp starts at the
// maximum duration so the first Update's min() wins, StopTimestamp starts at
// zero so the first Update's max() wins.
func NewAggregatedSourceInfo() AggregatedSourceInfo {
	return AggregatedSourceInfo{
		StartTimestamp: time.Duration(1<<63 - 1),
		StopTimestamp:  0,
		MediaPaths:     make(map[string]SourceInfo),
	}
}

// Update folds one more resolved (SourceInfo, mediaPath) pair into the
// aggregate.
func (a *AggregatedSourceInfo) Update(info SourceInfo, mediaPath string) {
	a.ID = info.ID
	a.Format = info.Format
	a.Audio = info.Audio
	a.Video = info.Video
	if info.StartTimestamp < a.StartTimestamp {
		a.StartTimestamp = info.StartTimestamp
	}
	if info.StopTimestamp > a.StopTimestamp {
		a.StopTimestamp = info.StopTimestamp
	}
	if a.MediaPaths == nil {
		a.MediaPaths = make(map[string]SourceInfo)
	}
	a.MediaPaths[mediaPath] = info
}

// SortedMediaPaths returns media paths ordered by their own start timestamp,
// the order split-recording segments must be read back in.
func (a *AggregatedSourceInfo) SortedMediaPaths() []string {
	type entry struct {
		path  string
		start time.Duration
	}
	entries := make([]entry, 0, len(a.MediaPaths))
	for path, info := range a.MediaPaths {
		entries = append(entries, entry{path, info.StartTimestamp})
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].start < entries[j-1].start; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.path
	}
	return out
}

// MergeOverlappingSegments drops split-recording segments that are fully
// superseded by a longer overlapping one: sort by (start asc, stop desc,
// i.e. longest first for a tied start), then keep a segment only if its
// start is not strictly before the watermark left by the previously kept
// segment's stop.
func (a *AggregatedSourceInfo) MergeOverlappingSegments() {
	type entry struct {
		path string
		info SourceInfo
	}
	entries := make([]entry, 0, len(a.MediaPaths))
	for path, info := range a.MediaPaths {
		entries = append(entries, entry{path, info})
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0; j-- {
			a, b := entries[j-1], entries[j]
			swap := a.info.StartTimestamp > b.info.StartTimestamp ||
				(a.info.StartTimestamp == b.info.StartTimestamp && a.info.StopTimestamp < b.info.StopTimestamp)
			if !swap {
				break
			}
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}

	merged := make(map[string]SourceInfo, len(entries))
	var watermark time.Duration
	for _, e := range entries {
		if e.info.StartTimestamp < watermark {
			continue
		}
		merged[e.path] = e.info
		watermark = e.info.StopTimestamp
	}
	a.MediaPaths = merged
}
