package transcode

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"vts/internal/domain/job"
	"vts/internal/observability"
)

// Service is the pipeline coordinator: it accepts new jobs, answers status
// queries and drives jobs through queued -> running -> terminal without ever
// blocking the request-handling layer on a transcode.
type Service struct {
	records   *RecordStore
	scheduler *Scheduler
	storage   Storage
	engine    Engine
	retention time.Duration
	metrics   *observability.Metrics
	logger    *log.Logger
}

// NewService wires the coordinator with its collaborators.
func NewService(records *RecordStore, scheduler *Scheduler, storage Storage, engine Engine, retention time.Duration, metrics *observability.Metrics, logger *log.Logger) *Service {
	return &Service{
		records:   records,
		scheduler: scheduler,
		storage:   storage,
		engine:    engine,
		retention: retention,
		metrics:   metrics,
		logger:    logger,
	}
}

// Submit validates parameters, creates the job record and enqueues it.
// It returns as soon as the record exists; outcomes are observed via Status.
func (s *Service) Submit(ctx context.Context, inputPath string, params job.Params) (job.Job, error) {
	if err := params.Validate(); err != nil {
		return job.Job{}, err
	}

	id := uuid.NewString()
	dest := s.storage.AllocateOutput(id, params.OutputExt())

	rec, err := s.records.Create(id, inputPath, dest, params)
	if err != nil {
		return job.Job{}, err
	}

	if err := s.scheduler.Submit(id); err != nil {
		s.records.Remove(id)
		return job.Job{}, err
	}

	s.metrics.JobsSubmitted.Inc()
	s.logger.Printf("transcode job accepted: %s format=%s resolution=%s", id, params.Format, params.Resolution)
	return rec, nil
}

// Status returns a snapshot of the job record.
func (s *Service) Status(id string) (job.Job, error) {
	return s.records.Get(id)
}

// List returns all known job records, newest first.
func (s *Service) List() []job.Job {
	return s.records.List(nil)
}

// Cancel aborts a queued or running job. A running job's subprocess is
// terminated before the terminal transition commits.
func (s *Service) Cancel(id string) error {
	current, err := s.records.Get(id)
	if err != nil {
		return err
	}
	if current.Terminal() {
		return job.ErrAlreadyTerminal
	}

	if s.scheduler.CancelRunning(id) {
		s.logger.Printf("cancel signalled for running job: %s", id)
		return nil
	}

	_, err = s.records.Transition(id, job.StatusFailed, func(rec *job.Job) {
		rec.Error = "cancelled"
	})
	if err == nil {
		s.logger.Printf("queued job cancelled: %s", id)
		if ferr := s.storage.Finalize(current.InputPath); ferr != nil {
			s.logger.Printf("input finalize failed: %s: %v", current.InputPath, ferr)
		}
		return nil
	}

	// The job was picked up between the snapshot and the transition.
	if s.scheduler.CancelRunning(id) {
		return nil
	}
	if errors.Is(err, job.ErrInvalidTransition) {
		return job.ErrAlreadyTerminal
	}
	return err
}

// Output returns the path of a finished transcode.
func (s *Service) Output(id string) (string, error) {
	rec, err := s.records.Get(id)
	if err != nil {
		return "", err
	}
	if rec.Status != job.StatusSucceeded {
		return "", fmt.Errorf("%w: job is %s", job.ErrOutputNotReady, rec.Status)
	}
	return rec.OutputPath, nil
}

// CheckEngine probes the transcoding binary.
func (s *Service) CheckEngine(ctx context.Context) error {
	return s.engine.Check(ctx)
}

// RunSweeper periodically reclaims expired files and prunes records of jobs
// long past their retention deadline. It blocks until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

func (s *Service) sweep(now time.Time) {
	if removed := s.storage.Sweep(now); removed > 0 {
		s.logger.Printf("sweep reclaimed %d expired files", removed)
	}

	cutoff := now.Add(-s.retention)
	stale := s.records.List(func(rec job.Job) bool {
		return rec.Terminal() && rec.CompletedAt != nil && rec.CompletedAt.Before(cutoff)
	})
	for _, rec := range stale {
		if err := s.storage.Reclaim(rec.InputPath); err != nil {
			s.logger.Printf("input reclaim failed: %s: %v", rec.InputPath, err)
		}
		if rec.OutputPath != "" {
			if err := s.storage.Reclaim(rec.OutputPath); err != nil {
				s.logger.Printf("output reclaim failed: %s: %v", rec.OutputPath, err)
			}
		}
		s.records.Remove(rec.ID)
	}
	if len(stale) > 0 {
		s.logger.Printf("sweep pruned %d job records", len(stale))
	}
}
