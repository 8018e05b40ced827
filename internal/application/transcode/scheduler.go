package transcode

import (
	"context"
	"fmt"
	"log"
	"sync"

	"vts/internal/domain/job"
	"vts/internal/observability"
)

type runner interface {
	Run(ctx context.Context, j job.Job) Outcome
}

// Scheduler admits queued jobs into the supervisor under bounded concurrency.
// The buffered channel is the FIFO queue; its capacity is the admission limit
// beyond which Submit reports queue-full backpressure.
type Scheduler struct {
	queue   chan string
	workers int

	records *RecordStore
	run     runner
	storage Storage
	metrics *observability.Metrics
	logger  *log.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	wg sync.WaitGroup
}

// NewScheduler creates a pool of workers draining a bounded queue.
func NewScheduler(workers, capacity int, records *RecordStore, run runner, storage Storage, metrics *observability.Metrics, logger *log.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Scheduler{
		queue:   make(chan string, capacity),
		workers: workers,
		records: records,
		run:     run,
		storage: storage,
		metrics: metrics,
		logger:  logger,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start launches the worker goroutines. They exit when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
}

// Wait blocks until all workers have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Submit enqueues a job without blocking the caller. A saturated queue is
// reported synchronously so the HTTP layer can apply backpressure.
func (s *Scheduler) Submit(id string) error {
	select {
	case s.queue <- id:
		s.metrics.QueueDepth.Inc()
		return nil
	default:
		return fmt.Errorf("%w: capacity %d", job.ErrQueueFull, cap(s.queue))
	}
}

// CancelRunning signals the subprocess of a running job to terminate.
// It reports whether a running job was found.
func (s *Scheduler) CancelRunning(id string) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			s.metrics.QueueDepth.Dec()
			s.process(ctx, id)
		}
	}
}

func (s *Scheduler) process(ctx context.Context, id string) {
	current, err := s.records.Get(id)
	if err != nil || current.Terminal() {
		// cancelled or pruned while still queued
		return
	}

	started, err := s.records.Transition(id, job.StatusRunning, nil)
	if err != nil {
		s.logger.Printf("job %s not dispatched: %v", id, err)
		return
	}
	s.logger.Printf("transcode started: %s (%s)", id, started.Params.Format)

	s.metrics.RunningJobs.Inc()
	defer s.metrics.RunningJobs.Dec()

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancels[id] = cancel
	s.mu.Unlock()

	outcome := s.run.Run(runCtx, started)

	s.mu.Lock()
	delete(s.cancels, id)
	s.mu.Unlock()
	cancel()

	s.commit(id, started, outcome)
}

// commit records the outcome and finishes file bookkeeping before the worker
// slot is released.
func (s *Scheduler) commit(id string, started job.Job, outcome Outcome) {
	final, err := s.records.Transition(id, outcome.Status, func(rec *job.Job) {
		rec.ExitCode = outcome.ExitCode
		rec.Error = outcome.Error
		if outcome.Status == job.StatusSucceeded {
			rec.OutputPath = outcome.OutputPath
		}
	})
	if err != nil {
		s.logger.Printf("job %s outcome not recorded: %v", id, err)
		return
	}

	if final.Status == job.StatusSucceeded {
		if err := s.storage.Finalize(final.OutputPath); err != nil {
			s.logger.Printf("output finalize failed: %s: %v", final.OutputPath, err)
		}
	}
	if err := s.storage.Finalize(final.InputPath); err != nil {
		s.logger.Printf("input finalize failed: %s: %v", final.InputPath, err)
	}

	s.metrics.JobsCompleted.WithLabelValues(string(final.Status)).Inc()
	if final.StartedAt != nil && final.CompletedAt != nil {
		s.metrics.TranscodeSeconds.Observe(final.CompletedAt.Sub(*final.StartedAt).Seconds())
	}

	switch final.Status {
	case job.StatusSucceeded:
		s.logger.Printf("transcode finished: %s -> %s", id, final.OutputPath)
	default:
		s.logger.Printf("transcode %s: %s: %s", final.Status, id, final.Error)
	}
}
