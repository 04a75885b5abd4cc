package videomixer

import (
	"testing"
	"time"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

func i420Frame(sourceID domain.SourceID, ts time.Duration, width, height int) domain.VideoFrame {
	ySize, uSize, vSize := domain.PlaneSizes(width, height)
	return domain.VideoFrame{
		Format:    domain.VideoFormatI420,
		Payload:   make([]byte, ySize+uSize+vSize),
		Width:     width,
		Height:    height,
		Timestamp: ts,
		SourceID:  sourceID,
	}
}

func oneSourceRegion(sourceID domain.SourceID, size int) domain.Region {
	return domain.Region{
		Grid: domain.Grid{
			Rows: 1, Columns: 1,
			CellWidth: size, CellHeight: size,
			AssignedSources: map[domain.SourceID]domain.AssignedSource{sourceID: {CellIndex: 0, Priority: 0}},
		},
		SourceIDs: map[domain.SourceID]struct{}{sourceID: {}},
		Width:     size, Height: size,
	}
}

func TestMixerProducesOneFrameThenFinishesAfterEOS(t *testing.T) {
	const source = domain.SourceID("alice")
	streamID := domain.MediaStreamID(1)
	resolution, err := domain.NewResolution(16, 16)
	if err != nil {
		t.Fatalf("NewResolution: %v", err)
	}
	m := New([]domain.Region{oneSourceRegion(source, 16)}, domain.FrameRate{Num: 1, Den: 1}, resolution, domain.TrimSpans{}, []domain.MediaStreamID{streamID}, nil)

	frame0 := i420Frame(source, 0, 16, 16)
	frame1 := i420Frame(source, time.Second, 16, 16)
	if err := m.Feed(streamID, &frame0); err != nil {
		t.Fatalf("Feed frame0: %v", err)
	}
	if err := m.Feed(streamID, &frame1); err != nil {
		t.Fatalf("Feed frame1: %v", err)
	}
	if err := m.Feed(streamID, nil); err != nil {
		t.Fatalf("Feed eos: %v", err)
	}

	out, pendingOn, finished, err := m.Produce()
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if pendingOn != nil {
		t.Fatalf("unexpected pendingOn: %v", *pendingOn)
	}
	if finished {
		t.Fatal("expected a composed frame before finishing")
	}
	if out.Timestamp != 0 {
		t.Errorf("frame timestamp = %s, want 0", out.Timestamp)
	}
	if out.Duration != time.Second {
		t.Errorf("frame duration = %s, want 1s", out.Duration)
	}
	if out.Width != 16 || out.Height != 16 {
		t.Errorf("frame dims = %dx%d, want 16x16", out.Width, out.Height)
	}

	_, _, finished, err = m.Produce()
	if err != nil {
		t.Fatalf("second Produce: %v", err)
	}
	if !finished {
		t.Fatal("expected the mixer to finish once its only stream is exhausted")
	}
}

func TestMixerReportsPendingOnUnfedStream(t *testing.T) {
	const source = domain.SourceID("alice")
	streamID := domain.MediaStreamID(1)
	resolution, err := domain.NewResolution(16, 16)
	if err != nil {
		t.Fatalf("NewResolution: %v", err)
	}
	m := New([]domain.Region{oneSourceRegion(source, 16)}, domain.FrameRate{Num: 1, Den: 1}, resolution, domain.TrimSpans{}, []domain.MediaStreamID{streamID}, nil)

	_, pendingOn, finished, err := m.Produce()
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if finished {
		t.Fatal("did not expect finished with no input fed yet")
	}
	if pendingOn == nil || *pendingOn != streamID {
		t.Fatalf("expected pendingOn stream %v, got %v", streamID, pendingOn)
	}
}

func TestMixerFeedRejectsUnknownStream(t *testing.T) {
	resolution, _ := domain.NewResolution(16, 16)
	m := New(nil, domain.FrameRate{Num: 1, Den: 1}, resolution, domain.TrimSpans{}, []domain.MediaStreamID{1}, nil)
	frame := i420Frame("alice", 0, 16, 16)
	if err := m.Feed(99, &frame); err == nil {
		t.Fatal("expected an error feeding an undeclared stream")
	}
}
