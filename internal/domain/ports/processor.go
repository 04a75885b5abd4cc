// Package ports declares the narrow interfaces every pipeline stage is
// built against: the processor contract the scheduler drives, and the
// container-reader / codec-adapter contracts for the external collaborators
// the spec treats as out of scope.
package ports

import "github.com/shiguredo/hisui-sub000/internal/domain"

// WorkloadHint tells the scheduler how to place a processor on its worker
// pools. IOIntensive processors are packed together away from CPU-intensive
// ones; CPUIntensive processors carry a relative Cost used to balance the
// total load assigned to each CPU worker.
type WorkloadHint struct {
	IOIntensive bool
	Cost        int // only meaningful when IOIntensive is false; must be >= 1
}

// ProcessorStats is the subset of a processor's statistics the scheduler
// aggregates into the final run stats. Concrete processors keep their own,
// richer, stats struct and expose a read-only view here.
type ProcessorStats struct {
	Name string
}

// ProcessorSpec declares a processor's stream edges and its workload hint.
// Declared once at construction; the scheduler never mutates it.
type ProcessorSpec struct {
	InputStreamIDs  []domain.MediaStreamID
	OutputStreamIDs []domain.MediaStreamID
	Workload        WorkloadHint
	Stats           ProcessorStats
}

// ProcessorInput feeds one sample, or an end-of-stream marker (Sample ==
// nil), on a declared input stream.
type ProcessorInput struct {
	StreamID domain.MediaStreamID
	Sample   *domain.Sample // nil means EOS
}

// ProcessorOutputKind discriminates the ProcessorOutput union.
type ProcessorOutputKind int

const (
	OutputProcessed ProcessorOutputKind = iota
	OutputPending
	OutputFinished
)

// ProcessorOutput is the result of asking a processor to produce output.
//
//   - Processed: StreamID/Sample are set; the scheduler routes Sample to
//     every consumer of StreamID.
//   - Pending: AwaitingStreamID, if non-nil, means "do not call
//     ProcessOutput again until that input stream has been fed"; nil means
//     "any input will do".
//   - Finished: terminal; the scheduler closes this processor's output
//     edges and drops it.
type ProcessorOutput struct {
	Kind             ProcessorOutputKind
	StreamID         domain.MediaStreamID
	Sample           domain.Sample
	AwaitingStreamID *domain.MediaStreamID
}

func Processed(streamID domain.MediaStreamID, sample domain.Sample) ProcessorOutput {
	return ProcessorOutput{Kind: OutputProcessed, StreamID: streamID, Sample: sample}
}

func PendingOn(streamID domain.MediaStreamID) ProcessorOutput {
	id := streamID
	return ProcessorOutput{Kind: OutputPending, AwaitingStreamID: &id}
}

func PendingAny() ProcessorOutput {
	return ProcessorOutput{Kind: OutputPending}
}

func Finished() ProcessorOutput {
	return ProcessorOutput{Kind: OutputFinished}
}

// MediaProcessor is every pipeline node's contract: readers, decoders,
// mixers, encoders and the muxer all implement it. The scheduler alternates
// between ProcessInput and ProcessOutput per node, honoring Pending hints
// to avoid busy-waiting.
type MediaProcessor interface {
	Spec() ProcessorSpec
	ProcessInput(in ProcessorInput) error
	ProcessOutput() (ProcessorOutput, error)
}
