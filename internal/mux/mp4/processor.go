package mp4mux

import (
	"fmt"

	"github.com/shiguredo/hisui-sub000/internal/domain"
	"github.com/shiguredo/hisui-sub000/internal/domain/ports"
)

// MuxerProcessor adapts a Writer to the scheduler's MediaProcessor contract
// (§4.7): a sink node with no output stream that finalizes the container
// once every declared input stream has reached end-of-stream.
type MuxerProcessor struct {
	writer *Writer

	audioStreamID *domain.MediaStreamID
	videoStreamID *domain.MediaStreamID

	audioDone bool
	videoDone bool
	finalized bool
}

// NewMuxerProcessor wraps writer as a sink fed by the given stream ids.
// Either id may be nil when the layout carries no track of that kind.
func NewMuxerProcessor(writer *Writer, audioStreamID, videoStreamID *domain.MediaStreamID) *MuxerProcessor {
	return &MuxerProcessor{writer: writer, audioStreamID: audioStreamID, videoStreamID: videoStreamID}
}

func (p *MuxerProcessor) Spec() ports.ProcessorSpec {
	var inputs []domain.MediaStreamID
	if p.audioStreamID != nil {
		inputs = append(inputs, *p.audioStreamID)
	}
	if p.videoStreamID != nil {
		inputs = append(inputs, *p.videoStreamID)
	}
	return ports.ProcessorSpec{
		InputStreamIDs: inputs,
		Workload:       ports.WorkloadHint{IOIntensive: true},
		Stats:          ports.ProcessorStats{Name: "mp4_muxer"},
	}
}

func (p *MuxerProcessor) ProcessInput(in ports.ProcessorInput) error {
	switch {
	case p.audioStreamID != nil && in.StreamID == *p.audioStreamID:
		if in.Sample == nil {
			p.audioDone = true
			return nil
		}
		if in.Sample.Audio == nil {
			return domain.WrapInvariant(fmt.Errorf("mp4mux: audio stream carried a non-audio sample"))
		}
		return p.writer.WriteAudio(*in.Sample.Audio)
	case p.videoStreamID != nil && in.StreamID == *p.videoStreamID:
		if in.Sample == nil {
			p.videoDone = true
			return nil
		}
		if in.Sample.Video == nil {
			return domain.WrapInvariant(fmt.Errorf("mp4mux: video stream carried a non-video sample"))
		}
		return p.writer.WriteVideo(*in.Sample.Video)
	default:
		return domain.WrapInvariant(fmt.Errorf("mp4mux: unexpected input stream %v", in.StreamID))
	}
}

func (p *MuxerProcessor) ProcessOutput() (ports.ProcessorOutput, error) {
	if p.audioStreamID != nil && !p.audioDone {
		return ports.PendingOn(*p.audioStreamID), nil
	}
	if p.videoStreamID != nil && !p.videoDone {
		return ports.PendingOn(*p.videoStreamID), nil
	}
	if !p.finalized {
		p.finalized = true
		if err := p.writer.Finalize(); err != nil {
			return ports.ProcessorOutput{}, err
		}
	}
	return ports.Finished(), nil
}
