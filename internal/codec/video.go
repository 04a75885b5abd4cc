package codec

import (
	"fmt"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

// videoDecoder relabels compressed video as decoded I420, standing in for
// the native decode engine (§4.3).
type videoDecoder struct {
	codec  domain.CodecName
	out    chan domain.VideoFrame
	closed bool
}

func newVideoDecoder(codec domain.CodecName) *videoDecoder {
	return &videoDecoder{codec: codec, out: make(chan domain.VideoFrame, queueDepth)}
}

func (d *videoDecoder) Decode(frame domain.VideoFrame) error {
	frame.Format = domain.VideoFormatI420
	select {
	case d.out <- frame:
		return nil
	default:
		return domain.WrapCapacity(fmt.Errorf("codec: %s decoder output queue is full, drain before decoding more", d.codec))
	}
}

func (d *videoDecoder) Finish() error {
	if !d.closed {
		d.closed = true
		close(d.out)
	}
	return nil
}

func (d *videoDecoder) NextDecodedFrame() (domain.VideoFrame, bool, error) {
	select {
	case frame, ok := <-d.out:
		return frame, ok, nil
	default:
		return domain.VideoFrame{}, false, nil
	}
}

// videoEncoder relabels decoded I420 as the target compressed codec,
// carrying a SampleEntry on the first emission.
type videoEncoder struct {
	codec   domain.CodecName
	width   int
	height  int
	out     chan domain.VideoFrame
	closed  bool
	emitted bool
}

func videoFormatFor(codec domain.CodecName) domain.VideoFormat {
	switch codec {
	case domain.CodecVP8:
		return domain.VideoFormatVP8
	case domain.CodecVP9:
		return domain.VideoFormatVP9
	case domain.CodecH265:
		return domain.VideoFormatH265
	case domain.CodecAV1:
		return domain.VideoFormatAV1
	default:
		return domain.VideoFormatH264
	}
}

func newVideoEncoder(codec domain.CodecName, width, height int) *videoEncoder {
	return &videoEncoder{codec: codec, width: width, height: height, out: make(chan domain.VideoFrame, queueDepth)}
}

func (e *videoEncoder) Encode(frame domain.VideoFrame) error {
	frame.Format = videoFormatFor(e.codec)
	frame.Keyframe = true
	if !e.emitted {
		e.emitted = true
		frame.SampleEntry = &domain.SampleEntry{Codec: e.codec, Width: e.width, Height: e.height}
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

func (e *videoEncoder) Finish() error {
	if !e.closed {
		e.closed = true
		close(e.out)
	}
	return nil
}

func (e *videoEncoder) NextEncodedFrame() (domain.VideoFrame, bool, error) {
	select {
	case frame, ok := <-e.out:
		return frame, ok, nil
	default:
		return domain.VideoFrame{}, false, nil
	}
}
