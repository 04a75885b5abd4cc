package videomixer

import (
	"github.com/shiguredo/hisui-sub000/internal/domain"
	"github.com/shiguredo/hisui-sub000/internal/domain/ports"
)

// Processor adapts a Mixer to the scheduler's MediaProcessor contract: N
// declared video input streams, one output stream.
type Processor struct {
	mixer     *Mixer
	inStreams []domain.MediaStreamID
	outStream domain.MediaStreamID
}

func NewProcessor(mixer *Mixer, inStreams []domain.MediaStreamID, outStream domain.MediaStreamID) *Processor {
	return &Processor{mixer: mixer, inStreams: inStreams, outStream: outStream}
}

func (p *Processor) Spec() ports.ProcessorSpec {
	return ports.ProcessorSpec{
		InputStreamIDs:  p.inStreams,
		OutputStreamIDs: []domain.MediaStreamID{p.outStream},
		Workload:        ports.WorkloadHint{IOIntensive: false, Cost: 5},
		Stats:           ports.ProcessorStats{Name: "video_mixer"},
	}
}

func (p *Processor) ProcessInput(in ports.ProcessorInput) error {
	var video *domain.VideoFrame
	if in.Sample != nil {
		video = in.Sample.Video
	}
	return p.mixer.Feed(in.StreamID, video)
}

func (p *Processor) ProcessOutput() (ports.ProcessorOutput, error) {
	frame, pendingOn, finished, err := p.mixer.Produce()
	if err != nil {
		return ports.ProcessorOutput{}, err
	}
	if finished {
		return ports.Finished(), nil
	}
	if pendingOn != nil {
		return ports.PendingOn(*pendingOn), nil
	}
	return ports.Processed(p.outStream, domain.Sample{Video: frame}), nil
}
