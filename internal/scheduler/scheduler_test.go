package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shiguredo/hisui-sub000/internal/domain"
	"github.com/shiguredo/hisui-sub000/internal/domain/ports"
)

// generator emits count samples on its single output stream, then Finished.
type generator struct {
	out   domain.MediaStreamID
	count int
	sent  int
}

func (g *generator) Spec() ports.ProcessorSpec {
	return ports.ProcessorSpec{OutputStreamIDs: []domain.MediaStreamID{g.out}}
}
func (g *generator) ProcessInput(ports.ProcessorInput) error { return nil }
func (g *generator) ProcessOutput() (ports.ProcessorOutput, error) {
	if g.sent >= g.count {
		return ports.Finished(), nil
	}
	g.sent++
	return ports.Processed(g.out, domain.Sample{Audio: &domain.AudioData{Timestamp: time.Duration(g.sent) * time.Millisecond}}), nil
}

// sink counts every sample it receives on its single input stream and
// finishes once that stream reaches EOS.
type sink struct {
	in       domain.MediaStreamID
	received int
	eos      bool
}

func (s *sink) Spec() ports.ProcessorSpec {
	return ports.ProcessorSpec{InputStreamIDs: []domain.MediaStreamID{s.in}}
}
func (s *sink) ProcessInput(in ports.ProcessorInput) error {
	if in.Sample == nil {
		s.eos = true
		return nil
	}
	s.received++
	return nil
}
func (s *sink) ProcessOutput() (ports.ProcessorOutput, error) {
	if s.eos {
		return ports.Finished(), nil
	}
	return ports.PendingOn(s.in), nil
}

func TestRunDeliversEverySampleThenFinishes(t *testing.T) {
	gen := &generator{out: 1, count: 5}
	snk := &sink{in: 1}
	g, err := Build(map[string]ports.MediaProcessor{"gen": gen, "snk": snk}, 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	stats, err := Run(context.Background(), g, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if snk.received != 5 {
		t.Fatalf("sink received %d samples, want 5", snk.received)
	}
	if len(stats.Nodes) != 2 {
		t.Fatalf("expected stats for 2 nodes, got %d", len(stats.Nodes))
	}
}

// failingProcessor errors on its first ProcessOutput call.
type failingProcessor struct {
	in domain.MediaStreamID
}

func (f *failingProcessor) Spec() ports.ProcessorSpec {
	return ports.ProcessorSpec{InputStreamIDs: []domain.MediaStreamID{f.in}}
}
func (f *failingProcessor) ProcessInput(ports.ProcessorInput) error { return nil }
func (f *failingProcessor) ProcessOutput() (ports.ProcessorOutput, error) {
	return ports.ProcessorOutput{}, errors.New("boom")
}

func TestRunPropagatesFirstError(t *testing.T) {
	gen := &generator{out: 1, count: 100}
	fail := &failingProcessor{in: 1}
	g, err := Build(map[string]ports.MediaProcessor{"gen": gen, "fail": fail}, 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := Run(ctx, g, Options{}); err == nil {
		t.Fatal("expected Run to propagate the failing processor's error")
	}
}

func TestRunReportsProgress(t *testing.T) {
	gen := &generator{out: 1, count: 3}
	snk := &sink{in: 1}
	g, err := Build(map[string]ports.MediaProcessor{"gen": gen, "snk": snk}, 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var ticks int
	var sawDone bool
	_, err = Run(context.Background(), g, Options{OnProgress: func(u domain.ProgressUpdate) {
		ticks++
		if u.Done {
			sawDone = true
		}
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ticks == 0 {
		t.Fatal("expected at least one progress tick")
	}
	if !sawDone {
		t.Fatal("expected a final Done progress tick")
	}
}
