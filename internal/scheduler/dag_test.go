package scheduler

import (
	"testing"

	"github.com/shiguredo/hisui-sub000/internal/domain"
	"github.com/shiguredo/hisui-sub000/internal/domain/ports"
)

// stubProcessor is a minimal ports.MediaProcessor for graph-shape tests; its
// ProcessInput/ProcessOutput are never exercised here.
type stubProcessor struct {
	spec ports.ProcessorSpec
}

func (s *stubProcessor) Spec() ports.ProcessorSpec                        { return s.spec }
func (s *stubProcessor) ProcessInput(ports.ProcessorInput) error          { return nil }
func (s *stubProcessor) ProcessOutput() (ports.ProcessorOutput, error)    { return ports.Finished(), nil }

func TestBuildRejectsStreamProducedTwice(t *testing.T) {
	procs := map[string]ports.MediaProcessor{
		"a": &stubProcessor{spec: ports.ProcessorSpec{OutputStreamIDs: []domain.MediaStreamID{1}}},
		"b": &stubProcessor{spec: ports.ProcessorSpec{OutputStreamIDs: []domain.MediaStreamID{1}}},
	}
	if _, err := Build(procs, 4); err == nil {
		t.Fatal("expected an error for a stream produced by two processors")
	}
}

func TestBuildRejectsStreamConsumedTwice(t *testing.T) {
	procs := map[string]ports.MediaProcessor{
		"src": &stubProcessor{spec: ports.ProcessorSpec{OutputStreamIDs: []domain.MediaStreamID{1}}},
		"a":   &stubProcessor{spec: ports.ProcessorSpec{InputStreamIDs: []domain.MediaStreamID{1}}},
		"b":   &stubProcessor{spec: ports.ProcessorSpec{InputStreamIDs: []domain.MediaStreamID{1}}},
	}
	if _, err := Build(procs, 4); err == nil {
		t.Fatal("expected an error for a stream consumed by two processors")
	}
}

func TestBuildRejectsUnproducedStream(t *testing.T) {
	procs := map[string]ports.MediaProcessor{
		"a": &stubProcessor{spec: ports.ProcessorSpec{InputStreamIDs: []domain.MediaStreamID{1}}},
	}
	if _, err := Build(procs, 4); err == nil {
		t.Fatal("expected an error for a stream with no producer")
	}
}

func TestBuildRejectsCycle(t *testing.T) {
	procs := map[string]ports.MediaProcessor{
		"a": &stubProcessor{spec: ports.ProcessorSpec{InputStreamIDs: []domain.MediaStreamID{2}, OutputStreamIDs: []domain.MediaStreamID{1}}},
		"b": &stubProcessor{spec: ports.ProcessorSpec{InputStreamIDs: []domain.MediaStreamID{1}, OutputStreamIDs: []domain.MediaStreamID{2}}},
	}
	if _, err := Build(procs, 4); err == nil {
		t.Fatal("expected an error for a cyclic processor graph")
	}
}

func TestBuildAcceptsValidLinearGraph(t *testing.T) {
	procs := map[string]ports.MediaProcessor{
		"src": &stubProcessor{spec: ports.ProcessorSpec{OutputStreamIDs: []domain.MediaStreamID{1}}},
		"mid": &stubProcessor{spec: ports.ProcessorSpec{InputStreamIDs: []domain.MediaStreamID{1}, OutputStreamIDs: []domain.MediaStreamID{2}}},
		"snk": &stubProcessor{spec: ports.ProcessorSpec{InputStreamIDs: []domain.MediaStreamID{2}}},
	}
	g, err := Build(procs, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(g.nodes))
	}
}
