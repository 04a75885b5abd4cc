package audiomixer

import (
	"encoding/binary"
	"testing"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

func constFrame(value int16) domain.AudioData {
	payload := make([]byte, framesPerOutput*channels*2)
	for i := 0; i < framesPerOutput*channels; i++ {
		binary.BigEndian.PutUint16(payload[i*2:], uint16(value))
	}
	return domain.AudioData{
		Format:     domain.AudioFormatPCMS16BE,
		Payload:    payload,
		SampleRate: sampleRate,
		Stereo:     true,
		Timestamp:  0,
		Duration:   frameDuration,
	}
}

func TestMixerSumsTwoStreamsAndTreatsEOSAsSilence(t *testing.T) {
	ids := []domain.MediaStreamID{1, 2}
	m := New(domain.TrimSpans{}, frameDuration, ids)

	frame := constFrame(100)
	if err := m.Feed(1, &frame); err != nil {
		t.Fatalf("Feed(1): %v", err)
	}
	if err := m.Feed(1, nil); err != nil {
		t.Fatalf("Feed(1) eos: %v", err)
	}
	if err := m.Feed(2, nil); err != nil {
		t.Fatalf("Feed(2) eos: %v", err)
	}

	out, pendingOn, finished, err := m.Produce()
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if pendingOn != nil {
		t.Fatalf("unexpected pendingOn: %v", *pendingOn)
	}
	if finished {
		t.Fatal("expected a frame, not finished")
	}
	got := int16(binary.BigEndian.Uint16(out.Payload[0:2]))
	if got != 100 {
		t.Fatalf("first sample = %d, want 100 (stream 2 is silent EOS)", got)
	}

	_, _, finished, err = m.Produce()
	if err != nil {
		t.Fatalf("second Produce: %v", err)
	}
	if !finished {
		t.Fatal("expected mixer to finish once tOut reaches totalDuration")
	}
}

func TestMixerReportsPendingOnUnfedStream(t *testing.T) {
	ids := []domain.MediaStreamID{1, 2}
	m := New(domain.TrimSpans{}, frameDuration, ids)

	frame := constFrame(50)
	if err := m.Feed(1, &frame); err != nil {
		t.Fatalf("Feed(1): %v", err)
	}
	if err := m.Feed(1, nil); err != nil {
		t.Fatalf("Feed(1) eos: %v", err)
	}

	_, pendingOn, finished, err := m.Produce()
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if finished {
		t.Fatal("did not expect finished")
	}
	if pendingOn == nil || *pendingOn != 2 {
		t.Fatalf("expected pendingOn stream 2, got %v", pendingOn)
	}
}

func TestMixerFeedRejectsUnknownStream(t *testing.T) {
	m := New(domain.TrimSpans{}, frameDuration, []domain.MediaStreamID{1})
	frame := constFrame(1)
	if err := m.Feed(99, &frame); err == nil {
		t.Fatal("expected an error feeding an undeclared stream")
	}
}
