package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ytdl-relay/internal/config"
	"ytdl-relay/internal/downloader"
	"ytdl-relay/internal/jobs"
	"ytdl-relay/internal/models"
	"ytdl-relay/internal/ratelimit"
	"ytdl-relay/internal/storage"
)

// MediaResolver looks up video metadata.
type MediaResolver interface {
	Resolve(ctx context.Context, url string) (*downloader.Media, error)
}

type Handler struct {
	manager  *jobs.Manager
	store    *jobs.Store
	resolver MediaResolver
	limiter  ratelimit.Limiter
	files    *storage.Artifacts
	logger   *zap.Logger

	pollInterval   time.Duration
	resolveTimeout time.Duration
}

func NewHandler(manager *jobs.Manager, resolver MediaResolver, limiter ratelimit.Limiter, files *storage.Artifacts, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		manager:        manager,
		store:          manager.Store(),
		resolver:       resolver,
		limiter:        limiter,
		files:          files,
		logger:         logger,
		pollInterval:   cfg.PollInterval,
		resolveTimeout: cfg.ResolveTimeout,
	}
}

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func (h *Handler) FetchMetadata(w http.ResponseWriter, r *http.Request) {
	var req models.MetadataRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if err := validateURL(req.URL); err != nil {
		h.handleError(w, r, "Invalid YouTube URL", err, http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.resolveTimeout)
	defer cancel()
	media, err := h.resolver.Resolve(ctx, strings.TrimSpace(req.URL))
	if err != nil {
		h.handleError(w, r, "Could not fetch video info", err, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, models.Metadata{
		Title:     media.Title,
		Thumbnail: media.Thumbnail,
		Duration:  formatDuration(media.Duration),
		Views:     formatViews(media.Views),
		Channel:   media.Channel,
		Formats:   downloader.ListQualities(media.Formats),
	})
}

// Stream starts a job and pushes its events as Server-Sent Events until the
// job finishes or the client goes away. The job keeps running after a
// disconnect.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req, err := newDownloadRequest(q.Get("url"), q.Get("quality"), q.Get("id"))
	if err != nil {
		h.handleError(w, r, err.Error(), err, http.StatusBadRequest)
		return
	}
	job, ok := h.startJob(w, r, req)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Download-ID", job.ID)
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.log(r).Warn("Streaming unsupported", zap.Error(err))
	}

	for ev := range jobs.Watch(r.Context(), h.store, job.ID, h.pollInterval) {
		data, err := json.Marshal(ev)
		if err != nil {
			h.log(r).Error("Encode event", zap.String("job_id", job.ID), zap.Error(err))
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// StartDownload starts a job for clients that poll Status instead of
// holding a stream open.
func (h *Handler) StartDownload(w http.ResponseWriter, r *http.Request) {
	var body models.CreateJobRequest
	if !h.decodeBody(w, r, &body) {
		return
	}
	req, err := newDownloadRequest(body.URL, body.Quality, body.ID)
	if err != nil {
		h.handleError(w, r, err.Error(), err, http.StatusBadRequest)
		return
	}
	job, ok := h.startJob(w, r, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusAccepted, models.CreateJobResponse{Status: "started", ID: job.ID})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := h.store.Get(id)
	if !ok {
		h.handleError(w, r, "Download not found", jobs.ErrJobNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// File hands out a finished artifact once. The file and its job are
// removed after the full body has been written. Names belonging to a job
// that is still running are not served, even if the file is on disk.
func (h *Handler) File(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")

	id := strings.TrimSuffix(name, filepath.Ext(name))
	if job, ok := h.store.Get(id); ok && job.Status != models.StatusReady {
		h.handleError(w, r, "Not found", storage.ErrNotFound, http.StatusNotFound)
		return
	}

	claim, err := h.files.Claim(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
			h.handleError(w, r, "Not found", err, http.StatusNotFound)
			return
		}
		h.handleError(w, r, "Could not open file", err, http.StatusInternalServerError)
		return
	}

	ext := filepath.Ext(name)
	display := name
	if job, ok := h.store.ByFilename(name); ok && job.Title != "" {
		if title := downloader.SanitizeFilename(job.Title); title != "" {
			display = title + ext
		}
	}
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(claim.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": display}))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, claim); err != nil {
		h.log(r).Warn("Delivery interrupted, keeping file", zap.String("filename", name), zap.Error(err))
		if rerr := claim.Release(); rerr != nil {
			h.log(r).Warn("Could not release file", zap.String("filename", name), zap.Error(rerr))
		}
		return
	}

	if err := claim.Finish(); err != nil {
		h.log(r).Warn("Could not delete delivered file", zap.String("filename", name), zap.Error(err))
	}
	h.store.DeleteByFilename(name)
	h.log(r).Info("File delivered", zap.String("filename", name))
}

func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok")
}

// startJob admits the client and creates the job, writing the error
// response itself when it cannot.
func (h *Handler) startJob(w http.ResponseWriter, r *http.Request, req downloadRequest) (models.Job, bool) {
	// checked before admission so a duplicate does not use up quota
	if req.ID != "" {
		if _, exists := h.store.Get(req.ID); exists {
			h.handleError(w, r, "Download id already in use", jobs.ErrJobExists, http.StatusConflict)
			return models.Job{}, false
		}
	}

	client := clientID(r)
	admitted, err := h.limiter.Admit(r.Context(), client)
	if err != nil {
		h.log(r).Warn("Rate limiter unavailable, admitting request", zap.String("client", client), zap.Error(err))
		admitted = true
	}
	if !admitted {
		h.handleError(w, r, "Too many downloads, slow down", nil, http.StatusTooManyRequests)
		return models.Job{}, false
	}

	job, err := h.manager.Create(models.CreateJobRequest{URL: req.URL, Quality: req.Quality, ID: req.ID})
	if err != nil {
		if errors.Is(err, jobs.ErrJobExists) {
			h.handleError(w, r, "Download id already in use", err, http.StatusConflict)
			return models.Job{}, false
		}
		h.handleError(w, r, "Could not start download", err, http.StatusInternalServerError)
		return models.Job{}, false
	}

	h.log(r).Info("Download started",
		zap.String("job_id", job.ID),
		zap.String("client", client),
		zap.String("quality", req.Quality),
	)
	return job, true
}

// clientID identifies the caller for rate limiting: the first
// X-Forwarded-For entry, else the remote host.
func clientID(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// decodeBody reads a size-capped JSON body into dst, answering 413 or 400
// itself when it cannot.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.handleError(w, r, "Request body too large", err, http.StatusRequestEntityTooLarge)
		return false
	}
	h.handleError(w, r, "Invalid JSON", err, http.StatusBadRequest)
	return false
}

func (h *Handler) log(r *http.Request) *zap.Logger {
	return requestLogger(r.Context(), h.logger)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, message string, err error, status int) {
	fields := []zap.Field{zap.Int("status", status)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if status >= http.StatusInternalServerError {
		h.log(r).Error(message, fields...)
	} else {
		h.log(r).Info(message, fields...)
	}
	writeJSON(w, status, errorResponse{Error: message, TraceID: TraceIDFrom(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
