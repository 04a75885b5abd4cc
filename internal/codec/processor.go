package codec

import (
	"github.com/shiguredo/hisui-sub000/internal/domain"
	"github.com/shiguredo/hisui-sub000/internal/domain/ports"
)

// AudioDecoderProcessor adapts an AudioDecoder to a one-input, one-output
// pipeline node.
type AudioDecoderProcessor struct {
	decoder   ports.AudioDecoder
	inStream  domain.MediaStreamID
	outStream domain.MediaStreamID
	inputDone bool
}

func NewAudioDecoderProcessor(decoder ports.AudioDecoder, in, out domain.MediaStreamID) *AudioDecoderProcessor {
	return &AudioDecoderProcessor{decoder: decoder, inStream: in, outStream: out}
}

func (p *AudioDecoderProcessor) Spec() ports.ProcessorSpec {
	return ports.ProcessorSpec{
		InputStreamIDs:  []domain.MediaStreamID{p.inStream},
		OutputStreamIDs: []domain.MediaStreamID{p.outStream},
		Workload:        ports.WorkloadHint{IOIntensive: false, Cost: 2},
		Stats:           ports.ProcessorStats{Name: "audio_decoder"},
	}
}

func (p *AudioDecoderProcessor) ProcessInput(in ports.ProcessorInput) error {
	if in.Sample == nil {
		p.inputDone = true
		return p.decoder.Finish()
	}
	return p.decoder.Decode(*in.Sample.Audio)
}

func (p *AudioDecoderProcessor) ProcessOutput() (ports.ProcessorOutput, error) {
	frame, ok, err := p.decoder.NextDecodedFrame()
	if err != nil {
		return ports.ProcessorOutput{}, err
	}
	if ok {
		return ports.Processed(p.outStream, domain.Sample{Audio: &frame}), nil
	}
	if p.inputDone {
		return ports.Finished(), nil
	}
	return ports.PendingOn(p.inStream), nil
}

// VideoDecoderProcessor is VideoDecoder's pipeline-node counterpart.
type VideoDecoderProcessor struct {
	decoder   ports.VideoDecoder
	inStream  domain.MediaStreamID
	outStream domain.MediaStreamID
	inputDone bool
}

func NewVideoDecoderProcessor(decoder ports.VideoDecoder, in, out domain.MediaStreamID) *VideoDecoderProcessor {
	return &VideoDecoderProcessor{decoder: decoder, inStream: in, outStream: out}
}

func (p *VideoDecoderProcessor) Spec() ports.ProcessorSpec {
	return ports.ProcessorSpec{
		InputStreamIDs:  []domain.MediaStreamID{p.inStream},
		OutputStreamIDs: []domain.MediaStreamID{p.outStream},
		Workload:        ports.WorkloadHint{IOIntensive: false, Cost: 4},
		Stats:           ports.ProcessorStats{Name: "video_decoder"},
	}
}

func (p *VideoDecoderProcessor) ProcessInput(in ports.ProcessorInput) error {
	if in.Sample == nil {
		p.inputDone = true
		return p.decoder.Finish()
	}
	return p.decoder.Decode(*in.Sample.Video)
}

func (p *VideoDecoderProcessor) ProcessOutput() (ports.ProcessorOutput, error) {
	frame, ok, err := p.decoder.NextDecodedFrame()
	if err != nil {
		return ports.ProcessorOutput{}, err
	}
	if ok {
		return ports.Processed(p.outStream, domain.Sample{Video: &frame}), nil
	}
	if p.inputDone {
		return ports.Finished(), nil
	}
	return ports.PendingOn(p.inStream), nil
}

// AudioEncoderProcessor is AudioEncoder's pipeline-node counterpart.
type AudioEncoderProcessor struct {
	encoder   ports.AudioEncoder
	inStream  domain.MediaStreamID
	outStream domain.MediaStreamID
	inputDone bool
}

func NewAudioEncoderProcessor(encoder ports.AudioEncoder, in, out domain.MediaStreamID) *AudioEncoderProcessor {
	return &AudioEncoderProcessor{encoder: encoder, inStream: in, outStream: out}
}

func (p *AudioEncoderProcessor) Spec() ports.ProcessorSpec {
	return ports.ProcessorSpec{
		InputStreamIDs:  []domain.MediaStreamID{p.inStream},
		OutputStreamIDs: []domain.MediaStreamID{p.outStream},
		Workload:        ports.WorkloadHint{IOIntensive: false, Cost: 2},
		Stats:           ports.ProcessorStats{Name: "audio_encoder"},
	}
}

func (p *AudioEncoderProcessor) ProcessInput(in ports.ProcessorInput) error {
	if in.Sample == nil {
		p.inputDone = true
		return p.encoder.Finish()
	}
	return p.encoder.Encode(*in.Sample.Audio)
}

func (p *AudioEncoderProcessor) ProcessOutput() (ports.ProcessorOutput, error) {
	frame, ok, err := p.encoder.NextEncodedFrame()
	if err != nil {
		return ports.ProcessorOutput{}, err
	}
	if ok {
		return ports.Processed(p.outStream, domain.Sample{Audio: &frame}), nil
	}
	if p.inputDone {
		return ports.Finished(), nil
	}
	return ports.PendingOn(p.inStream), nil
}

// VideoEncoderProcessor is VideoEncoder's pipeline-node counterpart.
type VideoEncoderProcessor struct {
	encoder   ports.VideoEncoder
	inStream  domain.MediaStreamID
	outStream domain.MediaStreamID
	inputDone bool
}

func NewVideoEncoderProcessor(encoder ports.VideoEncoder, in, out domain.MediaStreamID) *VideoEncoderProcessor {
	return &VideoEncoderProcessor{encoder: encoder, inStream: in, outStream: out}
}

func (p *VideoEncoderProcessor) Spec() ports.ProcessorSpec {
	return ports.ProcessorSpec{
		InputStreamIDs:  []domain.MediaStreamID{p.inStream},
		OutputStreamIDs: []domain.MediaStreamID{p.outStream},
		Workload:        ports.WorkloadHint{IOIntensive: false, Cost: 6},
		Stats:           ports.ProcessorStats{Name: "video_encoder"},
	}
}

func (p *VideoEncoderProcessor) ProcessInput(in ports.ProcessorInput) error {
	if in.Sample == nil {
		p.inputDone = true
		return p.encoder.Finish()
	}
	return p.encoder.Encode(*in.Sample.Video)
}

func (p *VideoEncoderProcessor) ProcessOutput() (ports.ProcessorOutput, error) {
	frame, ok, err := p.encoder.NextEncodedFrame()
	if err != nil {
		return ports.ProcessorOutput{}, err
	}
	if ok {
		return ports.Processed(p.outStream, domain.Sample{Video: &frame}), nil
	}
	if p.inputDone {
		return ports.Finished(), nil
	}
	return ports.PendingOn(p.inStream), nil
}
