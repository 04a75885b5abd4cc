package codec

import (
	"fmt"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

// audioDecoder relabels compressed audio as decoded PCM. Real bitstream
// decoding belongs to the native engine this type stands in for (§4.3); the
// channel is what a callback-driven engine would need to serialize its
// output thread into NextDecodedFrame's single-writer contract.
type audioDecoder struct {
	codec  domain.CodecName
	out    chan domain.AudioData
	closed bool
}

func newAudioDecoder(codec domain.CodecName) *audioDecoder {
	return &audioDecoder{codec: codec, out: make(chan domain.AudioData, queueDepth)}
}

func (d *audioDecoder) Decode(frame domain.AudioData) error {
	frame.Format = domain.AudioFormatPCMS16BE
	frame.Stereo = true
	if frame.SampleRate == 0 {
		frame.SampleRate = 48000
	}
	select {
	case d.out <- frame:
		return nil
	default:
		return domain.WrapCapacity(fmt.Errorf("codec: %s decoder output queue is full, drain before decoding more", d.codec))
	}
}

func (d *audioDecoder) Finish() error {
	if !d.closed {
		d.closed = true
		close(d.out)
	}
	return nil
}

func (d *audioDecoder) NextDecodedFrame() (domain.AudioData, bool, error) {
	select {
	case frame, ok := <-d.out:
		return frame, ok, nil
	default:
		return domain.AudioData{}, false, nil
	}
}

// audioEncoder relabels decoded PCM as the target compressed codec, carrying
// a SampleEntry on the first emission per §4.3.
type audioEncoder struct {
	codec      domain.CodecName
	sampleRate int
	channels   int
	out        chan domain.AudioData
	closed     bool
	emitted    bool
}

func newAudioEncoder(codec domain.CodecName, sampleRate, channels int) *audioEncoder {
	if sampleRate == 0 {
		sampleRate = 48000
	}
	if channels == 0 {
		channels = 2
	}
	return &audioEncoder{codec: codec, sampleRate: sampleRate, channels: channels, out: make(chan domain.AudioData, queueDepth)}
}

func (e *audioEncoder) Encode(frame domain.AudioData) error {
	if !e.emitted {
		e.emitted = true
		entry := &domain.SampleEntry{Codec: e.codec, SampleRate: e.sampleRate, Channels: e.channels}
		frame.SampleEntry = entry
	} else {
		frame.SampleEntry = nil
	}
	select {
	case e.out <- frame:
		return nil
	default:
		return domain.WrapCapacity(fmt.Errorf("codec: %s encoder output queue is full, drain before encoding more", e.codec))
	}
}

func (e *audioEncoder) Finish() error {
	if !e.closed {
		e.closed = true
		close(e.out)
	}
	return nil
}

func (e *audioEncoder) NextEncodedFrame() (domain.AudioData, bool, error) {
	select {
	case frame, ok := <-e.out:
		return frame, ok, nil
	default:
		return domain.AudioData{}, false, nil
	}
}
