package ports

import "github.com/shiguredo/hisui-sub000/internal/domain"

// AudioDecoder/VideoDecoder/AudioEncoder/VideoEncoder are the external
// codec-adapter contracts (§4.3). Each backend is a compile-time enumerated
// variant behind these interfaces; the adapter, not the scheduler, owns any
// internal synchronization needed to serialize a callback-driven native
// library into this single-writer shape.
type AudioDecoder interface {
	Decode(frame domain.AudioData) error
	Finish() error
	NextDecodedFrame() (domain.AudioData, bool, error)
}

type VideoDecoder interface {
	Decode(frame domain.VideoFrame) error
	Finish() error
	NextDecodedFrame() (domain.VideoFrame, bool, error)
}

type AudioEncoder interface {
	Encode(frame domain.AudioData) error
	Finish() error
	NextEncodedFrame() (domain.AudioData, bool, error)
}

type VideoEncoder interface {
	Encode(frame domain.VideoFrame) error
	Finish() error
	NextEncodedFrame() (domain.VideoFrame, bool, error)
}
