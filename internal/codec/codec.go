// Package codec adapts the out-of-scope native codec engines (§4.3) behind
// the four decoder/encoder ports. Every backend named in domain.CodecName is
// a compile-time enumerated variant selected by this package's constructor
// switches (§9 design notes: "no dynamic registry required"); none of them
// wraps a real bitstream library, since those are external collaborators the
// composition pipeline only needs a contract for. Each variant still
// serializes its output through an internal bounded channel, the same shape
// a callback-driven native library would require, so the scheduler-facing
// behavior matches what a real backend would look like.
package codec

import (
	"fmt"

	"github.com/shiguredo/hisui-sub000/internal/domain"
	"github.com/shiguredo/hisui-sub000/internal/domain/ports"
)

// queueDepth bounds every adapter's internal output channel.
const queueDepth = 32

// NewAudioDecoder returns the decoder variant for codec.
func NewAudioDecoder(codec domain.CodecName) (ports.AudioDecoder, error) {
	switch codec {
	case domain.CodecOpus, domain.CodecAAC:
		return newAudioDecoder(codec), nil
	default:
		return nil, domain.WrapConfiguration(fmt.Errorf("codec: %s is not an audio codec", codec))
	}
}

// NewVideoDecoder returns the decoder variant for codec.
func NewVideoDecoder(codec domain.CodecName) (ports.VideoDecoder, error) {
	switch codec {
	case domain.CodecVP8, domain.CodecVP9, domain.CodecH264, domain.CodecH265, domain.CodecAV1:
		return newVideoDecoder(codec), nil
	default:
		return nil, domain.WrapConfiguration(fmt.Errorf("codec: %s is not a video codec", codec))
	}
}

// NewAudioEncoder returns the encoder variant for codec.
func NewAudioEncoder(codec domain.CodecName, sampleRate, channels int) (ports.AudioEncoder, error) {
	switch codec {
	case domain.CodecOpus, domain.CodecAAC:
		return newAudioEncoder(codec, sampleRate, channels), nil
	default:
		return nil, domain.WrapConfiguration(fmt.Errorf("codec: %s is not an audio codec", codec))
	}
}

// NewVideoEncoder returns the encoder variant for codec.
func NewVideoEncoder(codec domain.CodecName, width, height int) (ports.VideoEncoder, error) {
	switch codec {
	case domain.CodecVP8, domain.CodecVP9, domain.CodecH264, domain.CodecH265, domain.CodecAV1:
		return newVideoEncoder(codec, width, height), nil
	default:
		return nil, domain.WrapConfiguration(fmt.Errorf("codec: %s is not a video codec", codec))
	}
}
