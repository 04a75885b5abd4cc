package ports

import "github.com/shiguredo/hisui-sub000/internal/domain"

// ContainerReader is the external-collaborator contract for a single input
// file: one finite lazy sequence of typed samples per track (audio and
// video), each in ascending timestamp order. Concrete adapters (mp4, webm)
// are selected by sniffing the file's magic bytes; out of scope per the
// spec, the interface alone is this module's contract surface.
type ContainerReader interface {
	// NextAudio/NextVideo return that track's next sample, or ok=false at
	// end of stream or when the file has no such track.
	NextAudio() (sample domain.AudioData, ok bool, err error)
	NextVideo() (sample domain.VideoFrame, ok bool, err error)
	Close() error
}
