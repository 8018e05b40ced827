package transcode

import (
	"context"
	"time"

	"vts/internal/domain/job"
)

// Engine is an application port for the external transcoding binary. It is
// observed only through exit codes and filesystem effects, so tests can
// substitute any command.
type Engine interface {
	Command(inputPath, outputPath string, params job.Params) (string, []string)
	Check(ctx context.Context) error
}

// Storage is an application port for the managed upload/output roots.
type Storage interface {
	AllocateOutput(jobID, ext string) string
	Finalize(path string) error
	Reclaim(path string) error
	Sweep(now time.Time) int
}

// RecordArchive persists job records across restarts. Implementations are
// optional; the in-memory store is authoritative while the process runs.
type RecordArchive interface {
	Save(j job.Job) error
	Delete(id string) error
	LoadAll() ([]job.Job, error)
}
