package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shiguredo/hisui-sub000/internal/codec"
	"github.com/shiguredo/hisui-sub000/internal/domain"
	"github.com/shiguredo/hisui-sub000/internal/domain/ports"
	audiomixer "github.com/shiguredo/hisui-sub000/internal/mixer/audio"
	videomixer "github.com/shiguredo/hisui-sub000/internal/mixer/video"
	mp4mux "github.com/shiguredo/hisui-sub000/internal/mux/mp4"
	"github.com/shiguredo/hisui-sub000/internal/reader"
)

// buildPipeline wires one ports.MediaProcessor graph node per source track,
// decoder, mixer, encoder and the muxer, following layout exactly as
// resolved by internal/layout. Every source contributes at most its first
// resolved media path; true multi-segment concatenation per source is not
// wired here (see DESIGN.md).
func buildPipeline(layout *domain.Layout, outputPath string, logger *slog.Logger) (map[string]ports.MediaProcessor, error) {
	processors := make(map[string]ports.MediaProcessor)
	nextStreamID := newStreamIDAllocator()

	videoSourceIDs := make(map[domain.SourceID]struct{})
	for _, region := range layout.VideoRegions {
		for sid := range region.SourceIDs {
			videoSourceIDs[sid] = struct{}{}
		}
	}

	var audioMixInputs, videoMixInputs []domain.MediaStreamID

	for sourceID, agg := range layout.Sources {
		paths := agg.SortedMediaPaths()
		if len(paths) == 0 {
			continue
		}
		path := paths[0]

		r, _, err := reader.Open(path)
		if err != nil {
			return nil, err
		}
		info, ok := r.(reader.TrackInfo)
		if !ok {
			_ = r.Close()
			return nil, domain.WrapInvariant(fmt.Errorf("pipeline: %s's reader exposes no track info", path))
		}

		_, isAudioSource := layout.AudioSourceIDs[sourceID]
		_, isVideoSource := videoSourceIDs[sourceID]
		wantsAudio := isAudioSource && agg.Audio && info.HasAudio()
		wantsVideo := isVideoSource && agg.Video && info.HasVideo()

		if !wantsAudio && !wantsVideo {
			_ = r.Close()
			continue
		}

		var audioRawID, videoRawID *domain.MediaStreamID
		if wantsAudio {
			id := nextStreamID()
			audioRawID = &id
		}
		if wantsVideo {
			id := nextStreamID()
			videoRawID = &id
		}

		srcProc := reader.NewSourceProcessor(r, audioRawID, videoRawID, agg.StartTimestamp)
		processors[fmt.Sprintf("source:%s", sourceID)] = srcProc

		if wantsAudio {
			entry := info.AudioSampleEntry()
			decoder, err := codec.NewAudioDecoder(entry.Codec)
			if err != nil {
				return nil, err
			}
			decodedID := nextStreamID()
			processors[fmt.Sprintf("audio_decoder:%s", sourceID)] = codec.NewAudioDecoderProcessor(decoder, *audioRawID, decodedID)
			audioMixInputs = append(audioMixInputs, decodedID)
		}
		if wantsVideo {
			entry := info.VideoSampleEntry()
			decoder, err := codec.NewVideoDecoder(entry.Codec)
			if err != nil {
				return nil, err
			}
			decodedID := nextStreamID()
			processors[fmt.Sprintf("video_decoder:%s", sourceID)] = codec.NewVideoDecoderProcessor(decoder, *videoRawID, decodedID)
			videoMixInputs = append(videoMixInputs, decodedID)
		}
	}

	outputDuration := maxSourceStop(layout) - layout.TrimSpans.TotalDuration()
	if outputDuration < 0 {
		outputDuration = 0
	}

	var muxAudioID, muxVideoID *domain.MediaStreamID

	if layout.HasAudio() && len(audioMixInputs) > 0 {
		mixer := audiomixer.New(layout.TrimSpans, outputDuration, audioMixInputs)
		mixedID := nextStreamID()
		processors["audio_mixer"] = audiomixer.NewProcessor(mixer, audioMixInputs, mixedID)

		encoder, err := codec.NewAudioEncoder(layout.AudioCodec, 48000, 2)
		if err != nil {
			return nil, err
		}
		encodedID := nextStreamID()
		processors["audio_encoder"] = codec.NewAudioEncoderProcessor(encoder, mixedID, encodedID)
		muxAudioID = &encodedID
	}

	if len(layout.VideoRegions) > 0 && len(videoMixInputs) > 0 {
		mixer := videomixer.New(layout.VideoRegions, layout.FrameRate, layout.Resolution, layout.TrimSpans, videoMixInputs, nil)
		mixedID := nextStreamID()
		processors["video_mixer"] = videomixer.NewProcessor(mixer, videoMixInputs, mixedID)

		encoder, err := codec.NewVideoEncoder(layout.VideoCodec, layout.Resolution.Width, layout.Resolution.Height)
		if err != nil {
			return nil, err
		}
		encodedID := nextStreamID()
		processors["video_encoder"] = codec.NewVideoEncoderProcessor(encoder, mixedID, encodedID)
		muxVideoID = &encodedID
	}

	writer, err := mp4mux.NewWriter(outputPath, layout, logger)
	if err != nil {
		return nil, err
	}
	processors["muxer"] = mp4mux.NewMuxerProcessor(writer, muxAudioID, muxVideoID)

	return processors, nil
}

func maxSourceStop(layout *domain.Layout) time.Duration {
	var max time.Duration
	for _, agg := range layout.Sources {
		if agg.StopTimestamp > max {
			max = agg.StopTimestamp
		}
	}
	return max
}

func newStreamIDAllocator() func() domain.MediaStreamID {
	var next domain.MediaStreamID = 1
	return func() domain.MediaStreamID {
		id := next
		next++
		return id
	}
}
