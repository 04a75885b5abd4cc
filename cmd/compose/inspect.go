package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/shiguredo/hisui-sub000/internal/domain"
	"github.com/shiguredo/hisui-sub000/internal/reader"
)

var errInspectArgs = errors.New("expected exactly one argument: input media file path")

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Dump per-track and, optionally, per-sample metadata for one media file",
		ArgsUsage: "INPUT",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "decode", Usage: "also list every sample's timestamp/duration/size"},
		},
		Action: runInspect,
	}
}

func runInspect(_ context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("%w: got %d", errInspectArgs, cmd.NArg())
	}
	input := cmd.Args().First()

	r, format, err := reader.Open(input)
	if err != nil {
		return err
	}
	defer r.Close()

	info, ok := r.(reader.TrackInfo)
	if !ok {
		return fmt.Errorf("inspect: %s's reader exposes no track info", input)
	}

	fmt.Printf("file: %s\n", input)
	fmt.Printf("container: %s\n", containerFormatName(format))
	fmt.Printf("duration: %s\n", info.Duration())
	if info.HasAudio() {
		entry := info.AudioSampleEntry()
		fmt.Printf("audio: codec=%s sample_rate=%d channels=%d\n", entry.Codec, entry.SampleRate, entry.Channels)
	} else {
		fmt.Println("audio: none")
	}
	if info.HasVideo() {
		entry := info.VideoSampleEntry()
		fmt.Printf("video: codec=%s width=%d height=%d\n", entry.Codec, entry.Width, entry.Height)
	} else {
		fmt.Println("video: none")
	}

	if !cmd.Bool("decode") {
		return nil
	}

	audioCount, videoCount := 0, 0
	for {
		sample, ok, err := r.NextAudio()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		fmt.Printf("audio[%d]: t=%s dur=%s bytes=%d\n", audioCount, sample.Timestamp, sample.Duration, len(sample.Payload))
		audioCount++
	}
	for {
		sample, ok, err := r.NextVideo()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		fmt.Printf("video[%d]: t=%s dur=%s bytes=%d keyframe=%t\n", videoCount, sample.Timestamp, sample.Duration, len(sample.Payload), sample.Keyframe)
		videoCount++
	}
	fmt.Printf("total: %d audio samples, %d video samples\n", audioCount, videoCount)
	return nil
}

func containerFormatName(format domain.ContainerFormat) string {
	switch format {
	case domain.ContainerFormatWebM:
		return "webm"
	case domain.ContainerFormatMP4:
		return "mp4"
	default:
		return "unknown"
	}
}
