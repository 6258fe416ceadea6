package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/doconv/convertd/internal/config"
	"github.com/doconv/convertd/internal/convert"
	"github.com/doconv/convertd/internal/job"
)

const Version = "1.0.0"

// Uploads stages submitted payloads for the worker pool.
type Uploads interface {
	Put(jobID string, data []byte) error
}

type Handlers struct {
	cfg        *config.Config
	store      *job.Store
	dispatcher *job.Dispatcher
	engine     convert.Engine
	uploads    Uploads
}

func NewHandlers(cfg *config.Config, store *job.Store, dispatcher *job.Dispatcher, engine convert.Engine, uploads Uploads) *Handlers {
	return &Handlers{cfg: cfg, store: store, dispatcher: dispatcher, engine: engine, uploads: uploads}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status, message := "healthy", "Document conversion service is running"
	if !h.engine.Available() {
		status, message = "unhealthy", "conversion engine not available"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"message": message,
		"version": Version,
	})
}

func (h *Handlers) Formats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"input_formats":  convert.InputFormats(),
		"output_formats": convert.OutputFormats(),
	})
}

type statsResponse struct {
	ActiveJobs    int `json:"active_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	FailedJobs    int `json:"failed_jobs"`
	TotalJobs     int `json:"total_jobs"`
	MaxWorkers    int `json:"max_workers"`
	QueueSize     int `json:"queue_size"`
}

func (h *Handlers) ServerStats(w http.ResponseWriter, r *http.Request) {
	st := h.store.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		ActiveJobs:    st.Active,
		CompletedJobs: st.Completed,
		FailedJobs:    st.Failed,
		TotalJobs:     st.Total,
		MaxWorkers:    h.dispatcher.MaxWorkers(),
		QueueSize:     st.Queued,
	})
}

type upload struct {
	filename string
	data     []byte
	format   convert.Format
	options  convert.Options
}

// parseUpload validates the multipart submission. On failure it writes the
// error response and returns false; no job is created.
func (h *Handlers) parseUpload(w http.ResponseWriter, r *http.Request) (upload, bool) {
	var u upload

	maxBytes := h.cfg.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20)) // allow multipart overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart request"})
		return u, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no file provided"})
		return u, false
	}
	defer file.Close()

	u.filename = header.Filename
	if u.filename == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no file provided"})
		return u, false
	}

	if !convert.SupportedFile(u.filename) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unsupported file type; supported formats: PDF, DOCX, PPTX, XLSX, HTML, MD, Images, CSV, XML",
		})
		return u, false
	}

	u.data, err = io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read file"})
		return u, false
	}
	if int64(len(u.data)) > maxBytes {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("file too large; maximum size is %dMB", h.cfg.MaxUploadMB),
		})
		return u, false
	}

	formatValue := r.FormValue("output_format")
	if formatValue == "" {
		formatValue = string(convert.FormatMarkdown)
	}
	u.format, err = convert.ParseFormat(formatValue)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return u, false
	}

	u.options = convert.Options{IncludeImages: true, IncludeTables: true}
	if ok := parseBoolField(w, r, "include_images", &u.options.IncludeImages); !ok {
		return u, false
	}
	if ok := parseBoolField(w, r, "include_tables", &u.options.IncludeTables); !ok {
		return u, false
	}

	return u, true
}

func parseBoolField(w http.ResponseWriter, r *http.Request, name string, dst *bool) bool {
	v := r.FormValue(name)
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid boolean for %s: %q", name, v)})
		return false
	}
	*dst = b
	return true
}

// Convert runs the conversion inline and blocks until it finishes. Engine
// failures are reported as data, not transport errors.
func (h *Handlers) Convert(w http.ResponseWriter, r *http.Request) {
	if !h.engine.Available() {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "conversion engine not available"})
		return
	}

	u, ok := h.parseUpload(w, r)
	if !ok {
		return
	}

	content, metadata, err := h.engine.Convert(r.Context(), u.filename, u.data, u.format, u.options)
	if err != nil {
		writeJSON(w, http.StatusOK, convert.Result{
			Success: false,
			Message: "Conversion failed",
			Error:   err.Error(),
		})
		return
	}

	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata["filename"] = u.filename
	metadata["size"] = len(u.data)
	metadata["extension"] = strings.ToLower(filepath.Ext(u.filename))
	metadata["size_mb"] = float64(len(u.data)) / (1 << 20)

	writeJSON(w, http.StatusOK, convert.Result{
		Success:  true,
		Message:  "Document converted successfully",
		Content:  content,
		Metadata: metadata,
	})
}

// ConvertAsync creates a job, stages the payload and returns immediately.
func (h *Handlers) ConvertAsync(w http.ResponseWriter, r *http.Request) {
	u, ok := h.parseUpload(w, r)
	if !ok {
		return
	}

	j := h.store.Create(u.filename, u.format, u.options)

	if err := h.uploads.Put(j.ID, u.data); err != nil {
		h.store.Fail(j.ID, &convert.Result{
			Success: false,
			Message: "Internal server error",
			Error:   fmt.Sprintf("stage upload: %v", err),
		})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to start conversion job"})
		return
	}

	h.dispatcher.Enqueue(j.ID)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  j.ID,
		"status":  string(job.StatusQueued),
		"message": "Conversion job started",
	})
}

type statusResponse struct {
	JobID    string          `json:"job_id"`
	Status   job.Status      `json:"status"`
	Progress int             `json:"progress"`
	Filename string          `json:"filename"`
	Result   *convert.Result `json:"result,omitempty"`
}

func (h *Handlers) ConvertStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	j, err := h.store.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		JobID:    j.ID,
		Status:   j.Status,
		Progress: j.Progress,
		Filename: j.Filename,
		Result:   j.Result,
	})
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	status := r.URL.Query().Get("status")

	if limit <= 0 {
		limit = 20
	}

	jobs, total := h.store.List(limit, offset, status)
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   jobs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
