package transcode

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"vts/internal/domain/job"
)

const (
	stderrTailBytes = 4 << 10
	killGrace       = 5 * time.Second
)

// Outcome is the supervisor's verdict on one subprocess run.
type Outcome struct {
	Status     job.Status
	OutputPath string
	ExitCode   *int
	Error      string
}

type reclaimer interface {
	Reclaim(path string) error
}

// Supervisor owns the transcoding subprocess for the duration of a run: it
// spawns the engine, enforces the wall-clock timeout and classifies the
// result. Exit code alone is not trusted; the output file must exist and be
// non-empty for a run to count as succeeded.
type Supervisor struct {
	engine  Engine
	files   reclaimer
	timeout time.Duration
	logger  *log.Logger
}

// NewSupervisor creates a supervisor with a mandatory per-job timeout.
func NewSupervisor(engine Engine, files reclaimer, timeout time.Duration, logger *log.Logger) *Supervisor {
	return &Supervisor{engine: engine, files: files, timeout: timeout, logger: logger}
}

// Run blocks the calling worker until the subprocess exits, the timeout
// elapses or ctx is cancelled. Partial output is reclaimed on every
// non-success path.
func (s *Supervisor) Run(ctx context.Context, j job.Job) Outcome {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	name, args := s.engine.Command(j.InputPath, j.DestPath, j.Params)
	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.WaitDelay = killGrace

	tail := newTailBuffer(stderrTailBytes)
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return Outcome{
			Status: job.StatusFailed,
			Error:  fmt.Sprintf("transcoder could not be started: %v", err),
		}
	}

	waitErr := cmd.Wait()

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		s.reclaimPartial(j)
		return Outcome{
			Status: job.StatusTimedOut,
			Error:  fmt.Sprintf("transcode exceeded %s timeout", s.timeout),
		}
	case errors.Is(ctx.Err(), context.Canceled):
		s.reclaimPartial(j)
		return Outcome{
			Status: job.StatusFailed,
			Error:  "cancelled",
		}
	case waitErr != nil:
		s.reclaimPartial(j)
		code := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		msg := fmt.Sprintf("transcoder exited with status %d", code)
		if excerpt := tail.String(); excerpt != "" {
			msg += ": " + excerpt
		}
		return Outcome{Status: job.StatusFailed, ExitCode: &code, Error: msg}
	}

	info, err := os.Stat(j.DestPath)
	if err != nil || info.Size() == 0 {
		s.reclaimPartial(j)
		zero := 0
		return Outcome{
			Status:   job.StatusFailed,
			ExitCode: &zero,
			Error:    "transcoder exited cleanly but produced no output",
		}
	}

	zero := 0
	return Outcome{Status: job.StatusSucceeded, OutputPath: j.DestPath, ExitCode: &zero}
}

func (s *Supervisor) reclaimPartial(j job.Job) {
	if err := s.files.Reclaim(j.DestPath); err != nil {
		s.logger.Printf("partial output reclaim failed: %s: %v", j.DestPath, err)
	}
}

// tailBuffer keeps only the trailing bytes of what is written to it, bounding
// how much engine stderr is held in memory.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
