package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vts/internal/domain/job"
)

var allowedUploadExts = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".mkv":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
}

// Manager owns the upload and output roots. All path allocation, retention
// tracking and deletion goes through it.
type Manager struct {
	UploadDir string
	OutputDir string

	quota     int64
	retention time.Duration
	logger    *log.Logger

	mu       sync.Mutex
	retained map[string]time.Time
}

// NewManager creates the filesystem adapter with configured roots.
// quotaBytes <= 0 disables the quota.
func NewManager(uploadDir, outputDir string, quotaBytes int64, retention time.Duration, logger *log.Logger) *Manager {
	return &Manager{
		UploadDir: uploadDir,
		OutputDir: outputDir,
		quota:     quotaBytes,
		retention: retention,
		logger:    logger,
		retained:  make(map[string]time.Time),
	}
}

// EnsureDirs creates the filesystem roots used by the service.
func (m *Manager) EnsureDirs() error {
	if err := os.MkdirAll(m.UploadDir, 0o755); err != nil {
		return err
	}
	return os.MkdirAll(m.OutputDir, 0o755)
}

// AllocateInput reserves a unique path under the upload root. The hint only
// contributes its extension; the name itself is identifier-derived so that
// concurrent uploads can never collide.
func (m *Manager) AllocateInput(nameHint string) (string, error) {
	ext, err := sanitizeUploadName(nameHint)
	if err != nil {
		return "", err
	}
	if err := m.checkQuota(); err != nil {
		return "", err
	}
	return filepath.Join(m.UploadDir, uuid.NewString()+ext), nil
}

// AllocateOutput reserves a unique path under the output root, namespaced by
// job identifier.
func (m *Manager) AllocateOutput(jobID, ext string) string {
	return filepath.Join(m.OutputDir, jobID+ext)
}

// Finalize marks a written file as complete and starts its retention clock.
func (m *Manager) Finalize(path string) error {
	if !m.owns(path) {
		return fmt.Errorf("path outside managed roots: %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("not a file: %s", path)
	}

	m.mu.Lock()
	m.retained[path] = time.Now().Add(m.retention)
	m.mu.Unlock()
	return nil
}

// Reclaim deletes a file. Already-absent files are not an error.
func (m *Manager) Reclaim(path string) error {
	if !m.owns(path) {
		return fmt.Errorf("path outside managed roots: %s", path)
	}

	m.mu.Lock()
	delete(m.retained, path)
	m.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Sweep reclaims every finalized file past its retention deadline and returns
// how many were removed.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	expired := make([]string, 0)
	for path, deadline := range m.retained {
		if !deadline.After(now) {
			expired = append(expired, path)
		}
	}
	m.mu.Unlock()

	removed := 0
	for _, path := range expired {
		if err := m.Reclaim(path); err != nil {
			m.logger.Printf("sweep failed for %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed
}

func (m *Manager) checkQuota() error {
	if m.quota <= 0 {
		return nil
	}
	used := dirSize(m.UploadDir) + dirSize(m.OutputDir)
	if used >= m.quota {
		return fmt.Errorf("%w: %d of %d bytes used", job.ErrStorageExhausted, used, m.quota)
	}
	return nil
}

func (m *Manager) owns(target string) bool {
	return isWithinDir(m.UploadDir, target) || isWithinDir(m.OutputDir, target)
}

func dirSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}

// sanitizeUploadName validates an upload name hint and returns its extension.
func sanitizeUploadName(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("%w: empty name", job.ErrInvalidName)
	}
	if strings.ContainsAny(value, "\x00\n\r") {
		return "", fmt.Errorf("%w: disallowed characters", job.ErrInvalidName)
	}

	value = strings.ReplaceAll(value, "\\", "/")
	cleaned := path.Clean("/" + value)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("%w: %q", job.ErrInvalidName, raw)
	}

	ext := strings.ToLower(path.Ext(cleaned))
	if !allowedUploadExts[ext] {
		return "", fmt.Errorf("%w: unsupported file type %q", job.ErrInvalidName, ext)
	}
	return ext, nil
}

func isWithinDir(basePath, targetPath string) bool {
	baseAbs, err := filepath.Abs(basePath)
	if err != nil {
		return false
	}
	targetAbs, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(baseAbs, targetAbs)
	if err != nil {
		return false
	}
	sep := string(os.PathSeparator)
	if rel == ".." || strings.HasPrefix(rel, ".."+sep) {
		return false
	}
	return true
}
