// Package jobdb persists job records in an embedded sqlite database so that
// job history survives restarts. The in-memory record store remains the
// source of truth while the process runs.
package jobdb

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"vts/internal/domain/job"
)

// Record is the on-disk representation of a job.
type Record struct {
	ID          string `gorm:"primaryKey;type:varchar(64)"`
	InputPath   string `gorm:"type:varchar(512)"`
	DestPath    string `gorm:"type:varchar(512)"`
	OutputPath  string `gorm:"type:varchar(512)"`
	Format      string `gorm:"type:varchar(16)"`
	Resolution  string `gorm:"type:varchar(16)"`
	Bitrate     string `gorm:"type:varchar(16)"`
	Status      string `gorm:"type:varchar(16);index"`
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	ExitCode    *int
	Error       string `gorm:"type:text"`
}

// TableName sets the sqlite table name.
func (Record) TableName() string {
	return "transcode_jobs"
}

// Store implements the record archive on sqlite via gorm.
type Store struct {
	db *gorm.DB
}

// Open creates or migrates the database at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open job database: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate job database: %w", err)
	}
	return &Store{db: db}, nil
}

// Save upserts one job record.
func (s *Store) Save(j job.Job) error {
	rec := toRecord(j)
	return s.db.Save(&rec).Error
}

// Delete removes a job record. Unknown ids are not an error.
func (s *Store) Delete(id string) error {
	return s.db.Delete(&Record{}, "id = ?", id).Error
}

// LoadAll returns every archived job.
func (s *Store) LoadAll() ([]job.Job, error) {
	var records []Record
	if err := s.db.Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]job.Job, 0, len(records))
	for _, rec := range records {
		out = append(out, fromRecord(rec))
	}
	return out, nil
}

func toRecord(j job.Job) Record {
	return Record{
		ID:          j.ID,
		InputPath:   j.InputPath,
		DestPath:    j.DestPath,
		OutputPath:  j.OutputPath,
		Format:      j.Params.Format,
		Resolution:  j.Params.Resolution,
		Bitrate:     j.Params.Bitrate,
		Status:      string(j.Status),
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		ExitCode:    j.ExitCode,
		Error:       j.Error,
	}
}

func fromRecord(rec Record) job.Job {
	return job.Job{
		ID:        rec.ID,
		InputPath: rec.InputPath,
		DestPath:  rec.DestPath,
		Params: job.Params{
			Format:     rec.Format,
			Resolution: rec.Resolution,
			Bitrate:    rec.Bitrate,
		},
		OutputPath:  rec.OutputPath,
		Status:      job.Status(rec.Status),
		CreatedAt:   rec.CreatedAt,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
		ExitCode:    rec.ExitCode,
		Error:       rec.Error,
	}
}
