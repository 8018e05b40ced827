package ffmpeg

import (
	"slices"
	"strings"
	"testing"

	"vts/internal/domain/job"
)

func TestCommand_H264WithResolutionAndBitrate(t *testing.T) {
	e := NewEngine("")

	name, args := e.Command("in.mkv", "out.mp4", job.Params{Format: "h264", Resolution: "720p", Bitrate: "2M"})
	if name != "ffmpeg" {
		t.Fatalf("expected default binary ffmpeg, got %s", name)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-c:v libx264") {
		t.Fatalf("expected libx264 codec: %s", joined)
	}
	if !strings.Contains(joined, "scale=1280:720:flags=lanczos") {
		t.Fatalf("expected 720p scale filter: %s", joined)
	}
	if !strings.Contains(joined, "-b:v 2M") {
		t.Fatalf("expected bitrate flag: %s", joined)
	}
	if args[len(args)-1] != "out.mp4" {
		t.Fatalf("output path must be the final argument: %v", args)
	}
}

func TestCommand_VP9UsesOpusAudio(t *testing.T) {
	e := NewEngine("/usr/local/bin/ffmpeg")

	name, args := e.Command("in.mp4", "out.webm", job.Params{Format: "vp9"})
	if name != "/usr/local/bin/ffmpeg" {
		t.Fatalf("expected configured binary, got %s", name)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-c:v libvpx-vp9") {
		t.Fatalf("expected vp9 codec: %s", joined)
	}
	if !strings.Contains(joined, "-c:a libopus") || strings.Contains(joined, "aac") {
		t.Fatalf("webm output must use opus audio: %s", joined)
	}
}

func TestCommand_NoResolutionSkipsScale(t *testing.T) {
	e := NewEngine("")

	_, args := e.Command("in.mp4", "out.mp4", job.Params{Format: "h265"})
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "scale=") {
		t.Fatalf("no scale filter expected without a resolution hint: %s", joined)
	}
	if !strings.Contains(joined, "hqdn3d") {
		t.Fatalf("enhancement chain should still be applied: %s", joined)
	}
	if !slices.Contains(args, "libx265") {
		t.Fatalf("expected libx265 codec: %v", args)
	}
}
