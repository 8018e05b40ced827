package transcode

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vts/internal/domain/job"
	"vts/internal/observability"
)

// stubRunner stands in for the supervisor. It tracks peak concurrency and can
// be gated so jobs stay running until the test releases them.
type stubRunner struct {
	mu      sync.Mutex
	running int
	peak    int
	order   []string

	gate    chan struct{} // nil means finish immediately
	outcome func(j job.Job) Outcome
}

func (r *stubRunner) Run(ctx context.Context, j job.Job) Outcome {
	r.mu.Lock()
	r.running++
	if r.running > r.peak {
		r.peak = r.running
	}
	r.order = append(r.order, j.ID)
	gate := r.gate
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running--
		r.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Outcome{Status: job.StatusFailed, Error: "cancelled"}
		}
	}

	if r.outcome != nil {
		return r.outcome(j)
	}
	zero := 0
	return Outcome{Status: job.StatusSucceeded, OutputPath: j.DestPath, ExitCode: &zero}
}

func (r *stubRunner) peakConcurrency() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peak
}

func (r *stubRunner) runOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// stubStorage satisfies the Storage port without touching the filesystem.
type stubStorage struct {
	mu        sync.Mutex
	root      string
	finalized []string
	reclaimed []string
}

func (s *stubStorage) AllocateOutput(jobID, ext string) string {
	return filepath.Join(s.root, jobID+ext)
}

func (s *stubStorage) Finalize(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized = append(s.finalized, path)
	return nil
}

func (s *stubStorage) Reclaim(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reclaimed = append(s.reclaimed, path)
	return nil
}

func (s *stubStorage) Sweep(time.Time) int { return 0 }

type stubEngine struct{ err error }

func (e *stubEngine) Command(in, out string, _ job.Params) (string, []string) {
	return "true", nil
}
func (e *stubEngine) Check(context.Context) error { return e.err }

type pipeline struct {
	service *Service
	records *RecordStore
	runner  *stubRunner
	storage *stubStorage
	cancel  context.CancelFunc
}

func newPipeline(t *testing.T, workers, capacity int, runner *stubRunner) *pipeline {
	t.Helper()

	records := NewRecordStore(nil, discard())
	storage := &stubStorage{root: t.TempDir()}
	metrics := observability.New()
	scheduler := NewScheduler(workers, capacity, records, runner, storage, metrics, discard())
	service := NewService(records, scheduler, storage, &stubEngine{}, time.Hour, metrics, discard())

	ctx, cancel := context.WithCancel(context.Background())
	scheduler.Start(ctx)
	t.Cleanup(cancel)

	return &pipeline{service: service, records: records, runner: runner, storage: storage, cancel: cancel}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached within %s", timeout)
}

func TestSubmit_QueuedImmediatelyThenSucceeds(t *testing.T) {
	runner := &stubRunner{}
	p := newPipeline(t, 2, 8, runner)

	rec, err := p.service.Submit(context.Background(), "/in/a.mp4", job.Params{Format: "h264"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.Status != job.StatusQueued {
		t.Fatalf("submit must return a queued record, got %s", rec.Status)
	}

	waitFor(t, 2*time.Second, func() bool {
		got, err := p.service.Status(rec.ID)
		return err == nil && got.Status == job.StatusSucceeded
	})

	final, _ := p.service.Status(rec.ID)
	if final.OutputPath == "" || final.Error != "" {
		t.Fatalf("succeeded job must carry output path and no error: %+v", final)
	}
	if final.StartedAt == nil || final.CompletedAt == nil {
		t.Fatalf("timestamps missing: %+v", final)
	}
}

func TestSubmit_InvalidParamsCreatesNothing(t *testing.T) {
	runner := &stubRunner{}
	p := newPipeline(t, 1, 4, runner)

	_, err := p.service.Submit(context.Background(), "/in/a.mp4", job.Params{})
	if !errors.Is(err, job.ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
	if records := p.service.List(); len(records) != 0 {
		t.Fatalf("no record must exist after rejected submission, got %d", len(records))
	}
}

func TestSubmit_QueueFullRemovesRecord(t *testing.T) {
	gate := make(chan struct{})
	runner := &stubRunner{gate: gate}
	defer close(gate)
	p := newPipeline(t, 1, 1, runner)

	first, err := p.service.Submit(context.Background(), "/in/a.mp4", job.Params{Format: "h264"})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	// wait until the worker holds the first job so the queue is empty again
	waitFor(t, 2*time.Second, func() bool {
		got, _ := p.service.Status(first.ID)
		return got.Status == job.StatusRunning
	})

	if _, err := p.service.Submit(context.Background(), "/in/b.mp4", job.Params{Format: "h264"}); err != nil {
		t.Fatalf("second submit should queue: %v", err)
	}

	_, err = p.service.Submit(context.Background(), "/in/c.mp4", job.Params{Format: "h264"})
	if !errors.Is(err, job.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if records := p.service.List(); len(records) != 2 {
		t.Fatalf("rejected submission must leave no record behind, have %d", len(records))
	}
}

func TestScheduler_NeverExceedsWorkerSlots(t *testing.T) {
	gate := make(chan struct{})
	runner := &stubRunner{gate: gate}
	p := newPipeline(t, 2, 8, runner)

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		rec, err := p.service.Submit(context.Background(), "/in/a.mp4", job.Params{Format: "h264"})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		ids = append(ids, rec.ID)
	}

	countByStatus := func(status job.Status) int {
		n := 0
		for _, id := range ids {
			if rec, err := p.service.Status(id); err == nil && rec.Status == status {
				n++
			}
		}
		return n
	}

	waitFor(t, 2*time.Second, func() bool { return countByStatus(job.StatusRunning) == 2 })
	if queued := countByStatus(job.StatusQueued); queued != 3 {
		t.Fatalf("expected 3 jobs waiting, got %d", queued)
	}

	close(gate)
	waitFor(t, 2*time.Second, func() bool { return countByStatus(job.StatusSucceeded) == 5 })

	if peak := runner.peakConcurrency(); peak > 2 {
		t.Fatalf("worker pool exceeded its slot count: peak %d", peak)
	}
}

func TestScheduler_DispatchesInSubmissionOrder(t *testing.T) {
	runner := &stubRunner{}
	p := newPipeline(t, 1, 8, runner)

	ids := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		rec, err := p.service.Submit(context.Background(), "/in/a.mp4", job.Params{Format: "h264"})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		ids = append(ids, rec.ID)
	}

	waitFor(t, 2*time.Second, func() bool { return len(runner.runOrder()) == 4 })
	order := runner.runOrder()
	for i, id := range ids {
		if order[i] != id {
			t.Fatalf("FIFO violated: submitted %v, ran %v", ids, order)
		}
	}
}

func TestCancel_QueuedJob(t *testing.T) {
	gate := make(chan struct{})
	runner := &stubRunner{gate: gate}
	defer close(gate)
	p := newPipeline(t, 1, 4, runner)

	blocker, _ := p.service.Submit(context.Background(), "/in/a.mp4", job.Params{Format: "h264"})
	waitFor(t, 2*time.Second, func() bool {
		rec, _ := p.service.Status(blocker.ID)
		return rec.Status == job.StatusRunning
	})

	queued, _ := p.service.Submit(context.Background(), "/in/b.mp4", job.Params{Format: "h264"})
	if err := p.service.Cancel(queued.ID); err != nil {
		t.Fatalf("cancel queued: %v", err)
	}

	rec, _ := p.service.Status(queued.ID)
	if rec.Status != job.StatusFailed || rec.Error != "cancelled" {
		t.Fatalf("cancelled job must be failed with reason, got %+v", rec)
	}
}

func TestCancel_RunningJobTerminatesSubprocess(t *testing.T) {
	gate := make(chan struct{})
	runner := &stubRunner{gate: gate}
	defer close(gate)
	p := newPipeline(t, 1, 4, runner)

	rec, _ := p.service.Submit(context.Background(), "/in/a.mp4", job.Params{Format: "h264"})
	waitFor(t, 2*time.Second, func() bool {
		got, _ := p.service.Status(rec.ID)
		return got.Status == job.StatusRunning
	})

	if err := p.service.Cancel(rec.ID); err != nil {
		t.Fatalf("cancel running: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		got, _ := p.service.Status(rec.ID)
		return got.Status == job.StatusFailed && got.Error == "cancelled"
	})
}

func TestCancel_TerminalJob(t *testing.T) {
	runner := &stubRunner{}
	p := newPipeline(t, 1, 4, runner)

	rec, _ := p.service.Submit(context.Background(), "/in/a.mp4", job.Params{Format: "h264"})
	waitFor(t, 2*time.Second, func() bool {
		got, _ := p.service.Status(rec.ID)
		return got.Terminal()
	})

	if err := p.service.Cancel(rec.ID); !errors.Is(err, job.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
	if err := p.service.Cancel("missing"); !errors.Is(err, job.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOutput_OnlyForSucceededJobs(t *testing.T) {
	gate := make(chan struct{})
	runner := &stubRunner{gate: gate}
	p := newPipeline(t, 1, 4, runner)

	rec, _ := p.service.Submit(context.Background(), "/in/a.mp4", job.Params{Format: "h264"})
	if _, err := p.service.Output(rec.ID); !errors.Is(err, job.ErrOutputNotReady) {
		t.Fatalf("queued job output must not be ready, got %v", err)
	}

	close(gate)
	waitFor(t, 2*time.Second, func() bool {
		got, _ := p.service.Status(rec.ID)
		return got.Status == job.StatusSucceeded
	})

	path, err := p.service.Output(rec.ID)
	if err != nil || path == "" {
		t.Fatalf("expected output path, got %q (%v)", path, err)
	}
	if _, err := p.service.Output("missing"); !errors.Is(err, job.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSweep_PrunesExpiredTerminalRecords(t *testing.T) {
	runner := &stubRunner{}
	p := newPipeline(t, 1, 4, runner)

	rec, _ := p.service.Submit(context.Background(), "/in/a.mp4", job.Params{Format: "h264"})
	waitFor(t, 2*time.Second, func() bool {
		got, _ := p.service.Status(rec.ID)
		return got.Terminal()
	})

	// retention is one hour: sweeping two hours ahead must prune the record
	p.service.sweep(time.Now().Add(2 * time.Hour))
	if _, err := p.service.Status(rec.ID); !errors.Is(err, job.ErrNotFound) {
		t.Fatalf("expired record should be pruned, got %v", err)
	}
}
