package transcode

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"vts/internal/domain/job"
)

// RecordStore is the single source of truth for job state. All mutations are
// serialized; reads hand out value snapshots, never live references.
type RecordStore struct {
	mu      sync.Mutex
	jobs    map[string]*job.Job
	archive RecordArchive
	logger  *log.Logger
}

// NewRecordStore creates an empty store. archive may be nil for purely
// in-memory operation.
func NewRecordStore(archive RecordArchive, logger *log.Logger) *RecordStore {
	return &RecordStore{
		jobs:    make(map[string]*job.Job),
		archive: archive,
		logger:  logger,
	}
}

// Restore loads archived records into memory. Jobs that were queued or
// running when the previous process died are marked failed: their subprocess
// is gone and the pipeline never auto-retries.
func (r *RecordStore) Restore() error {
	if r.archive == nil {
		return nil
	}
	records, err := r.archive.LoadAll()
	if err != nil {
		return fmt.Errorf("restore job records: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		rec := rec
		if !rec.Terminal() {
			now := time.Now()
			rec.Status = job.StatusFailed
			rec.Error = "interrupted by restart"
			rec.CompletedAt = &now
			r.saveLocked(rec)
		}
		r.jobs[rec.ID] = &rec
	}
	return nil
}

// Create inserts a new record in queued status.
func (r *RecordStore) Create(id, inputPath, destPath string, params job.Params) (job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[id]; exists {
		return job.Job{}, fmt.Errorf("duplicate job id %s", id)
	}

	rec := job.Job{
		ID:        id,
		InputPath: inputPath,
		DestPath:  destPath,
		Params:    params,
		Status:    job.StatusQueued,
		CreatedAt: time.Now(),
	}
	r.jobs[id] = &rec
	r.saveLocked(rec)
	return rec, nil
}

// Get returns a snapshot of the record.
func (r *RecordStore) Get(id string) (job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[id]
	if !ok {
		return job.Job{}, job.ErrNotFound
	}
	return *rec, nil
}

// Transition atomically validates and applies a status change. apply runs
// under the store lock and may set outcome fields; it must not block.
func (r *RecordStore) Transition(id string, to job.Status, apply func(*job.Job)) (job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[id]
	if !ok {
		return job.Job{}, job.ErrNotFound
	}
	if !job.CanTransition(rec.Status, to) {
		return job.Job{}, fmt.Errorf("%w: %s -> %s", job.ErrInvalidTransition, rec.Status, to)
	}

	now := time.Now()
	rec.Status = to
	if to == job.StatusRunning {
		rec.StartedAt = &now
	}
	if to.Terminal() {
		rec.CompletedAt = &now
	}
	if apply != nil {
		apply(rec)
	}
	r.saveLocked(*rec)
	return *rec, nil
}

// List returns snapshots matching the filter, newest first. A nil filter
// matches everything.
func (r *RecordStore) List(filter func(job.Job) bool) []job.Job {
	r.mu.Lock()
	out := make([]job.Job, 0, len(r.jobs))
	for _, rec := range r.jobs {
		if filter == nil || filter(*rec) {
			out = append(out, *rec)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Remove drops a record entirely. Used when admission fails after creation
// and by retention pruning.
func (r *RecordStore) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.jobs, id)
	if r.archive != nil {
		if err := r.archive.Delete(id); err != nil {
			r.logger.Printf("job archive delete failed: %s: %v", id, err)
		}
	}
}

func (r *RecordStore) saveLocked(rec job.Job) {
	if r.archive == nil {
		return
	}
	if err := r.archive.Save(rec); err != nil {
		r.logger.Printf("job archive save failed: %s: %v", rec.ID, err)
	}
}
