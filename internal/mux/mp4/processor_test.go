package mp4mux

import (
	"path/filepath"
	"testing"

	"github.com/shiguredo/hisui-sub000/internal/domain"
	"github.com/shiguredo/hisui-sub000/internal/domain/ports"
)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.mp4")
	w, err := NewWriter(path, &domain.Layout{}, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	return w
}

func TestMuxerProcessorWithNoTracksFinalizesImmediately(t *testing.T) {
	p := NewMuxerProcessor(newTestWriter(t), nil, nil)

	spec := p.Spec()
	if len(spec.InputStreamIDs) != 0 {
		t.Fatalf("expected no declared inputs, got %v", spec.InputStreamIDs)
	}

	out, err := p.ProcessOutput()
	if err != nil {
		t.Fatalf("ProcessOutput: %v", err)
	}
	if out.Kind != ports.OutputFinished {
		t.Fatalf("expected Finished, got kind %v", out.Kind)
	}
}

func TestMuxerProcessorWaitsForBothStreamsBeforeFinalizing(t *testing.T) {
	audioID := domain.MediaStreamID(1)
	videoID := domain.MediaStreamID(2)
	p := NewMuxerProcessor(newTestWriter(t), &audioID, &videoID)

	out, err := p.ProcessOutput()
	if err != nil {
		t.Fatalf("ProcessOutput: %v", err)
	}
	if out.Kind != ports.OutputPending || out.AwaitingStreamID == nil || *out.AwaitingStreamID != audioID {
		t.Fatalf("expected PendingOn(audio), got %+v", out)
	}

	if err := p.ProcessInput(ports.ProcessorInput{StreamID: audioID, Sample: nil}); err != nil {
		t.Fatalf("ProcessInput audio eos: %v", err)
	}
	out, err = p.ProcessOutput()
	if err != nil {
		t.Fatalf("ProcessOutput: %v", err)
	}
	if out.Kind != ports.OutputPending || out.AwaitingStreamID == nil || *out.AwaitingStreamID != videoID {
		t.Fatalf("expected PendingOn(video), got %+v", out)
	}

	if err := p.ProcessInput(ports.ProcessorInput{StreamID: videoID, Sample: nil}); err != nil {
		t.Fatalf("ProcessInput video eos: %v", err)
	}
	out, err = p.ProcessOutput()
	if err != nil {
		t.Fatalf("ProcessOutput: %v", err)
	}
	if out.Kind != ports.OutputFinished {
		t.Fatalf("expected Finished once both streams reach EOS, got %+v", out)
	}
}

func TestMuxerProcessorRejectsUnknownStream(t *testing.T) {
	audioID := domain.MediaStreamID(1)
	p := NewMuxerProcessor(newTestWriter(t), &audioID, nil)

	err := p.ProcessInput(ports.ProcessorInput{StreamID: 99, Sample: &domain.Sample{}})
	if err == nil {
		t.Fatal("expected an error for an undeclared input stream")
	}
}
