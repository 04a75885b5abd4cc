package main

import (
	"testing"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

func TestContainerFormatName(t *testing.T) {
	cases := map[domain.ContainerFormat]string{
		domain.ContainerFormatWebM: "webm",
		domain.ContainerFormatMP4:  "mp4",
	}
	for format, want := range cases {
		if got := containerFormatName(format); got != want {
			t.Errorf("containerFormatName(%v) = %q, want %q", format, got, want)
		}
	}
}
