package reader

import (
	"fmt"
	"time"

	"github.com/shiguredo/hisui-sub000/internal/domain"
	"github.com/shiguredo/hisui-sub000/internal/domain/ports"
)

// SourceProcessor adapts a ports.ContainerReader into a source node: no
// inputs, up to two outputs (audio/video), applying the source's
// start-timestamp offset so every sample it emits carries an absolute
// timeline position per §4.2.
type SourceProcessor struct {
	container      ports.ContainerReader
	startOffset    time.Duration
	audioStreamID  *domain.MediaStreamID
	videoStreamID  *domain.MediaStreamID
	audioExhausted bool
	videoExhausted bool
	closed         bool
}

// NewSourceProcessor wires r as a pipeline source. Either stream id may be
// nil when the source lacks that track; startOffset is the source's
// AggregatedSourceInfo.StartTimestamp.
func NewSourceProcessor(r ports.ContainerReader, audioStreamID, videoStreamID *domain.MediaStreamID, startOffset time.Duration) *SourceProcessor {
	p := &SourceProcessor{container: r, startOffset: startOffset, audioStreamID: audioStreamID, videoStreamID: videoStreamID}
	if audioStreamID == nil {
		p.audioExhausted = true
	}
	if videoStreamID == nil {
		p.videoExhausted = true
	}
	return p
}

func (p *SourceProcessor) Spec() ports.ProcessorSpec {
	var out []domain.MediaStreamID
	if p.audioStreamID != nil {
		out = append(out, *p.audioStreamID)
	}
	if p.videoStreamID != nil {
		out = append(out, *p.videoStreamID)
	}
	return ports.ProcessorSpec{
		OutputStreamIDs: out,
		Workload:        ports.WorkloadHint{IOIntensive: true, Cost: 1},
		Stats:           ports.ProcessorStats{Name: "source_reader"},
	}
}

// ProcessInput always errors: a source node has no declared input streams
// and the scheduler must never route a sample to it.
func (p *SourceProcessor) ProcessInput(in ports.ProcessorInput) error {
	return domain.WrapInvariant(fmt.Errorf("reader: source processor received input on stream %d", in.StreamID))
}

func (p *SourceProcessor) ProcessOutput() (ports.ProcessorOutput, error) {
	if !p.audioExhausted {
		audio, ok, err := p.container.NextAudio()
		if err != nil {
			return ports.ProcessorOutput{}, err
		}
		if ok {
			audio.Timestamp += p.startOffset
			return ports.Processed(*p.audioStreamID, domain.Sample{Audio: &audio}), nil
		}
		p.audioExhausted = true
	}
	if !p.videoExhausted {
		video, ok, err := p.container.NextVideo()
		if err != nil {
			return ports.ProcessorOutput{}, err
		}
		if ok {
			video.Timestamp += p.startOffset
			return ports.Processed(*p.videoStreamID, domain.Sample{Video: &video}), nil
		}
		p.videoExhausted = true
	}
	if p.audioExhausted && p.videoExhausted {
		if !p.closed {
			p.closed = true
			if err := p.container.Close(); err != nil {
				return ports.ProcessorOutput{}, err
			}
		}
		return ports.Finished(), nil
	}
	return ports.PendingAny(), nil
}
