package main

import (
	"testing"
	"time"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

func TestNewStreamIDAllocatorIsStrictlyIncreasing(t *testing.T) {
	next := newStreamIDAllocator()
	seen := make(map[domain.MediaStreamID]bool)
	for i := 0; i < 5; i++ {
		id := next()
		if seen[id] {
			t.Fatalf("allocator repeated id %v", id)
		}
		seen[id] = true
	}
}

func TestMaxSourceStopPicksLatestStopTimestamp(t *testing.T) {
	layout := &domain.Layout{
		Sources: map[domain.SourceID]*domain.AggregatedSourceInfo{
			"a": {StopTimestamp: 5 * time.Second},
			"b": {StopTimestamp: 12 * time.Second},
			"c": {StopTimestamp: 3 * time.Second},
		},
	}
	if got := maxSourceStop(layout); got != 12*time.Second {
		t.Errorf("maxSourceStop = %s, want 12s", got)
	}
}

func TestMaxSourceStopOnEmptyLayoutIsZero(t *testing.T) {
	if got := maxSourceStop(&domain.Layout{}); got != 0 {
		t.Errorf("maxSourceStop on empty layout = %s, want 0", got)
	}
}
