package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"vts/internal/domain/job"
)

const multipartMemory = 10 << 20

type pipelineUseCases interface {
	Submit(ctx context.Context, inputPath string, params job.Params) (job.Job, error)
	Status(id string) (job.Job, error)
	List() []job.Job
	Cancel(id string) error
	Output(id string) (string, error)
	CheckEngine(ctx context.Context) error
}

type uploadStore interface {
	AllocateInput(nameHint string) (string, error)
	Reclaim(path string) error
}

// Handler exposes the job pipeline over HTTP.
type Handler struct {
	pipeline  pipelineUseCases
	uploads   uploadStore
	maxUpload int64
	logger    *log.Logger
}

// NewHandler wires HTTP handlers with the pipeline use cases.
func NewHandler(pipeline pipelineUseCases, uploads uploadStore, maxUpload int64, logger *log.Logger) *Handler {
	return &Handler{pipeline: pipeline, uploads: uploads, maxUpload: maxUpload, logger: logger}
}

// SubmitJob handles POST /api/v1/jobs: a multipart upload plus transcoding
// options, answered with 202 and the job identifier.
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			h.error(w, "upload exceeds size limit", http.StatusRequestEntityTooLarge)
			return
		}
		h.error(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.error(w, "no media file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	options := make(map[string]string, len(r.MultipartForm.Value))
	for key, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			options[key] = values[0]
		}
	}
	params, err := job.ParseParams(options)
	if err != nil {
		h.error(w, err.Error(), statusForError(err))
		return
	}

	inputPath, err := h.uploads.AllocateInput(header.Filename)
	if err != nil {
		h.error(w, err.Error(), statusForError(err))
		return
	}

	if err := saveUpload(inputPath, file); err != nil {
		_ = h.uploads.Reclaim(inputPath)
		if isTooLarge(err) {
			h.error(w, "upload exceeds size limit", http.StatusRequestEntityTooLarge)
			return
		}
		h.error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rec, err := h.pipeline.Submit(r.Context(), inputPath, params)
	if err != nil {
		_ = h.uploads.Reclaim(inputPath)
		h.error(w, err.Error(), statusForError(err))
		return
	}

	h.json(w, http.StatusAccepted, map[string]interface{}{
		"job_id": rec.ID,
		"status": string(rec.Status),
	})
}

// ListJobs handles GET /api/v1/jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	records := h.pipeline.List()
	views := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		views = append(views, jobView(rec))
	}
	h.json(w, http.StatusOK, map[string]interface{}{"jobs": views})
}

// GetJob handles GET /api/v1/jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	rec, err := h.pipeline.Status(mux.Vars(r)["id"])
	if err != nil {
		h.error(w, err.Error(), statusForError(err))
		return
	}
	h.json(w, http.StatusOK, jobView(rec))
}

// CancelJob handles DELETE /api/v1/jobs/{id}.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.pipeline.Cancel(id); err != nil {
		h.error(w, err.Error(), statusForError(err))
		return
	}
	h.json(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// GetOutput handles GET /api/v1/jobs/{id}/output and streams the finished
// file with range support.
func (h *Handler) GetOutput(w http.ResponseWriter, r *http.Request) {
	path, err := h.pipeline.Output(mux.Vars(r)["id"])
	if err != nil {
		h.error(w, err.Error(), statusForError(err))
		return
	}

	contentType := "video/mp4"
	if strings.ToLower(filepath.Ext(path)) == ".webm" {
		contentType = "video/webm"
	}
	streamFile(w, r, path, contentType)
}

// Health handles GET /api/v1/health. It reflects process health only and
// reports engine availability as a field, never as a failure.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	engine := "available"
	if err := h.pipeline.CheckEngine(ctx); err != nil {
		engine = "unavailable"
	}
	h.json(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"engine": engine,
	})
}

func (h *Handler) json(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) error(w http.ResponseWriter, message string, status int) {
	h.json(w, status, map[string]string{"error": message})
}

func jobView(rec job.Job) map[string]interface{} {
	view := map[string]interface{}{
		"id":         rec.ID,
		"status":     string(rec.Status),
		"format":     rec.Params.Format,
		"created_at": rec.CreatedAt.Unix(),
	}
	if rec.Params.Resolution != "" {
		view["resolution"] = rec.Params.Resolution
	}
	if rec.Params.Bitrate != "" {
		view["bitrate"] = rec.Params.Bitrate
	}
	if rec.StartedAt != nil {
		view["started_at"] = rec.StartedAt.Unix()
	}
	if rec.CompletedAt != nil {
		view["completed_at"] = rec.CompletedAt.Unix()
	}
	if rec.ExitCode != nil {
		view["exit_code"] = *rec.ExitCode
	}
	if rec.Error != "" {
		view["error"] = rec.Error
	}
	if rec.Status == job.StatusSucceeded {
		view["output_url"] = "/api/v1/jobs/" + rec.ID + "/output"
	}
	return view
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, job.ErrInvalidParams), errors.Is(err, job.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, job.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, job.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, job.ErrStorageExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, job.ErrAlreadyTerminal), errors.Is(err, job.ErrOutputNotReady):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func saveUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Close()
}

func isTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}
