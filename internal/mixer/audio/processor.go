package audiomixer

import (
	"github.com/shiguredo/hisui-sub000/internal/domain"
	"github.com/shiguredo/hisui-sub000/internal/domain/ports"
)

// Processor adapts a Mixer to the scheduler's MediaProcessor contract: N
// declared audio input streams, one output stream.
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
		Workload:        ports.WorkloadHint{IOIntensive: false, Cost: 3},
		Stats:           ports.ProcessorStats{Name: "audio_mixer"},
	}
}

func (p *Processor) ProcessInput(in ports.ProcessorInput) error {
	var audio *domain.AudioData
	if in.Sample != nil {
		audio = in.Sample.Audio
	}
	return p.mixer.Feed(in.StreamID, audio)
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
	return ports.Processed(p.outStream, domain.Sample{Audio: frame}), nil
}
