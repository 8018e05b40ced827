package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"vts/internal/domain/job"
)

const checkTimeout = 5 * time.Second

// Engine builds ffmpeg invocations for transcoding jobs. The binary itself is
// a black box: it is judged only by exit code and output file presence.
type Engine struct {
	Binary string
}

// NewEngine creates the ffmpeg adapter. An empty binary defaults to "ffmpeg"
// resolved from PATH.
func NewEngine(binary string) *Engine {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Engine{Binary: binary}
}

// Command returns the binary and argument list for one transcoding run.
func (e *Engine) Command(inputPath, outputPath string, params job.Params) (string, []string) {
	args := []string{"-y", "-i", inputPath}

	filters := videoFilters(params.Resolution)
	if len(filters) > 0 {
		args = append(args, "-vf", strings.Join(filters, ","))
	}

	switch params.Format {
	case "h265":
		args = append(args, "-c:v", "libx265", "-preset", "veryfast", "-crf", "20")
	case "vp9":
		args = append(args, "-c:v", "libvpx-vp9", "-crf", "20", "-b:v", "0")
	default:
		args = append(args, "-c:v", "libx264", "-preset", "veryfast", "-crf", "18")
	}

	// webm cannot carry aac
	if params.Format == "vp9" {
		args = append(args, "-c:a", "libopus", "-b:a", "128k")
	} else {
		args = append(args, "-c:a", "aac", "-b:a", "128k")
	}

	if params.Bitrate != "" && params.Format != "vp9" {
		args = append(args, "-b:v", params.Bitrate)
	}

	args = append(args, outputPath)
	return e.Binary, args
}

// Check verifies the engine binary can be spawned at all.
func (e *Engine) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.Binary, "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s unavailable: %w", e.Binary, err)
	}
	return nil
}

func videoFilters(resolution string) []string {
	filters := make([]string, 0, 4)
	switch resolution {
	case "4K":
		filters = append(filters, "scale=3840:2160:flags=lanczos")
	case "1080p":
		filters = append(filters, "scale=1920:1080:flags=lanczos")
	case "720p":
		filters = append(filters, "scale=1280:720:flags=lanczos")
	case "480p":
		filters = append(filters, "scale=854:480:flags=lanczos")
	}
	filters = append(filters,
		"unsharp=5:5:1.0:5:5:0.0",
		"eq=contrast=1.1:brightness=0.02:saturation=1.1",
		"hqdn3d=4:3:6:4.5",
	)
	return filters
}
