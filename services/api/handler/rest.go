// Package handler implements the REST surface of the API service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aaj441/aaronos-core/internal/domain"
	"github.com/aaj441/aaronos-core/internal/export"
	"github.com/aaj441/aaronos-core/internal/pipeline"
	"github.com/aaj441/aaronos-core/internal/postgres"
	redisstore "github.com/aaj441/aaronos-core/internal/redis"
	"github.com/aaj441/aaronos-core/internal/runner"
	"github.com/aaj441/aaronos-core/pkg/telemetry"
)

const ownerHeader = "X-Owner-ID"

// JobStarter launches plans against work records. Satisfied by *runner.Runner.
type JobStarter interface {
	Start(work *domain.WorkRecord, plan runner.Plan)
	Cancel(workID string) bool
}

// REST handles HTTP requests for the API service.
type REST struct {
	works     postgres.WorkRepository
	schedules postgres.ScheduleRepository
	store     redisstore.StateStore
	limiter   redisstore.RateLimiter
	jobs      JobStarter
	research  *pipeline.Research
	books     *pipeline.Book
	scans     *pipeline.Scan
	logger    *slog.Logger
}

// NewREST creates a new REST handler.
func NewREST(
	works postgres.WorkRepository,
	schedules postgres.ScheduleRepository,
	store redisstore.StateStore,
	limiter redisstore.RateLimiter,
	jobs JobStarter,
	research *pipeline.Research,
	books *pipeline.Book,
	scans *pipeline.Scan,
	logger *slog.Logger,
) *REST {
	return &REST{
		works:     works,
		schedules: schedules,
		store:     store,
		limiter:   limiter,
		jobs:      jobs,
		research:  research,
		books:     books,
		scans:     scans,
		logger:    logger,
	}
}

// Routes mounts every endpoint on the router.
func (h *REST) Routes(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/research", h.SubmitResearch)
		r.Post("/ebooks", h.SubmitBook)
		r.Post("/scans", h.SubmitScan)
		r.Get("/work", h.ListWork)
		r.Get("/work/{id}", h.GetWork)
		r.Delete("/work/{id}", h.CancelWork)
		r.Get("/scheduler/tasks", h.ListScheduledTasks)
		r.Get("/scheduler/tasks/{name}", h.GetScheduledTask)
	})
}

// SubmitResponse is the 202 body returned by every submission endpoint.
type SubmitResponse struct {
	ID        string          `json:"id"`
	Kind      domain.WorkKind `json:"kind"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// WorkStatusResponse is the polling contract body.
type WorkStatusResponse struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Progress    int             `json:"progress"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// SubmitResearch handles POST /api/v1/research.
func (h *REST) SubmitResearch(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeValidationError(w, &domain.ValidationError{Field: "query", Reason: "is required"})
		return
	}

	h.submit(w, r, domain.KindResearch, func(work *domain.WorkRecord) runner.Plan {
		return h.research.Plan(req)
	})
}

// BookSubmission is the JSON body for POST /api/v1/ebooks.
type BookSubmission struct {
	Outline pipeline.Outline `json:"outline"`
	Format  string           `json:"format,omitempty"`
}

// SubmitBook handles POST /api/v1/ebooks.
func (h *REST) SubmitBook(w http.ResponseWriter, r *http.Request) {
	var req BookSubmission
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if verr := validateBook(&req); verr != nil {
		writeValidationError(w, verr)
		return
	}

	h.submit(w, r, domain.KindBookGeneration, func(work *domain.WorkRecord) runner.Plan {
		return h.books.Plan(work.ID, pipeline.BookRequest{Outline: req.Outline, Format: req.Format})
	})
}

// SubmitScan handles POST /api/v1/scans.
func (h *REST) SubmitScan(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if verr := validateScan(&req); verr != nil {
		writeValidationError(w, verr)
		return
	}

	h.submit(w, r, domain.KindAccessibilityScan, func(work *domain.WorkRecord) runner.Plan {
		return h.scans.Plan(req)
	})
}

// submit runs the shared submission flow: rate limit, create the PENDING
// record in both stores, then hand the plan to the runner.
func (h *REST) submit(w http.ResponseWriter, r *http.Request, kind domain.WorkKind, buildPlan func(*domain.WorkRecord) runner.Plan) {
	ctx, span := otel.Tracer("api").Start(r.Context(), "api.submit")
	defer span.End()

	ownerID := r.Header.Get(ownerHeader)
	if ownerID == "" {
		writeValidationError(w, &domain.ValidationError{Field: ownerHeader, Reason: "header is required"})
		return
	}

	allowed, err := h.limiter.Allow(ctx, ownerID)
	if err != nil {
		h.logger.Error("rate limiter error", slog.String("owner_id", ownerID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	if !allowed {
		telemetry.APIRateLimitedTotal.Inc()
		rlErr := &domain.RateLimitExceededError{OwnerID: ownerID, Limit: h.limiter.Limit()}
		writeError(w, http.StatusTooManyRequests, rlErr.Error())
		return
	}

	now := time.Now().UTC()
	work := &domain.WorkRecord{
		ID:        postgres.NewID(),
		Kind:      kind,
		OwnerID:   ownerID,
		Status:    domain.WorkPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	span.SetAttributes(
		attribute.String("work.id", work.ID),
		attribute.String("work.kind", string(kind)),
	)

	if err := h.works.Create(ctx, work); err != nil {
		h.logger.Error("failed to persist work record", slog.String("work_id", work.ID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	if err := h.store.SetState(ctx, work.ID, redisstore.WorkState{Status: domain.WorkPending}); err != nil {
		h.logger.Error("failed to cache work state", slog.String("work_id", work.ID), slog.String("error", err.Error()))
	}

	h.jobs.Start(work, buildPlan(work))

	telemetry.APIJobsSubmitted.WithLabelValues(string(kind)).Inc()
	h.logger.Info("job submitted",
		slog.String("work_id", work.ID),
		slog.String("kind", string(kind)),
		slog.String("owner_id", ownerID),
	)

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		ID:        work.ID,
		Kind:      kind,
		Status:    string(domain.WorkPending),
		CreatedAt: now,
	})
}

// GetWork handles GET /api/v1/work/{id}. Redis serves the live view; the
// database fills in the result once the job completes.
func (h *REST) GetWork(w http.ResponseWriter, r *http.Request) {
	workID := chi.URLParam(r, "id")
	ctx := r.Context()

	state, err := h.store.GetState(ctx, workID)
	if err == nil && state.Status != domain.WorkCompleted {
		writeJSON(w, http.StatusOK, WorkStatusResponse{
			ID:       workID,
			Status:   string(state.Status),
			Progress: state.Progress,
			Error:    state.Error,
		})
		return
	}

	work, err := h.works.GetByID(ctx, workID)
	if err != nil {
		var notFound *domain.WorkNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, "work record not found")
			return
		}
		h.logger.Error("failed to load work record", slog.String("work_id", workID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to retrieve job")
		return
	}

	resp := WorkStatusResponse{
		ID:          work.ID,
		Status:      string(work.Status),
		Progress:    work.Progress,
		Error:       work.Error,
		CompletedAt: work.CompletedAt,
	}
	if work.Status == domain.WorkCompleted {
		resp.Result = work.Result
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListWork handles GET /api/v1/work for the submitting owner.
func (h *REST) ListWork(w http.ResponseWriter, r *http.Request) {
	ownerID := r.Header.Get(ownerHeader)
	if ownerID == "" {
		writeValidationError(w, &domain.ValidationError{Field: ownerHeader, Reason: "header is required"})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 200")
			return
		}
		limit = n
	}

	works, err := h.works.ListByOwner(r.Context(), ownerID, limit)
	if err != nil {
		h.logger.Error("failed to list work records", slog.String("owner_id", ownerID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"work": works})
}

// CancelWork handles DELETE /api/v1/work/{id}.
func (h *REST) CancelWork(w http.ResponseWriter, r *http.Request) {
	workID := chi.URLParam(r, "id")

	if h.jobs.Cancel(workID) {
		h.logger.Info("job cancellation requested", slog.String("work_id", workID))
		writeJSON(w, http.StatusAccepted, map[string]string{"id": workID, "status": "cancelling"})
		return
	}

	// Not running here: distinguish unknown from already terminal.
	work, err := h.works.GetByID(r.Context(), workID)
	if err != nil {
		var notFound *domain.WorkNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, "work record not found")
			return
		}
		h.logger.Error("failed to load work record", slog.String("work_id", workID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}
	writeError(w, http.StatusConflict, "job already "+strings.ToLower(string(work.Status)))
}

// ListScheduledTasks handles GET /api/v1/scheduler/tasks.
func (h *REST) ListScheduledTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tasks, err := h.schedules.ListTasks(ctx)
	if err != nil {
		h.logger.Error("failed to list scheduled tasks", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list scheduled tasks")
		return
	}

	type taskView struct {
		Task *domain.ScheduledTask `json:"task"`
		Runs []*domain.TaskRun     `json:"runs"`
	}
	views := make([]taskView, 0, len(tasks))
	for _, task := range tasks {
		runs, err := h.schedules.ListRuns(ctx, task.ID, 5)
		if err != nil {
			h.logger.Error("failed to list task runs", slog.String("task", task.Name), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to list scheduled tasks")
			return
		}
		views = append(views, taskView{Task: task, Runs: runs})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": views})
}

// GetScheduledTask handles GET /api/v1/scheduler/tasks/{name}.
func (h *REST) GetScheduledTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctx := r.Context()

	task, err := h.schedules.GetTask(ctx, name)
	if err != nil {
		var notFound *domain.TaskNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, "scheduled task not found")
			return
		}
		h.logger.Error("failed to load scheduled task", slog.String("task", name), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to retrieve scheduled task")
		return
	}
	runs, err := h.schedules.ListRuns(ctx, task.ID, 20)
	if err != nil {
		h.logger.Error("failed to list task runs", slog.String("task", name), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to retrieve scheduled task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task, "runs": runs})
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Readyz handles GET /readyz — checks Redis connectivity.
func (h *REST) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := h.store.GetState(ctx, "__readyz__"); err != nil {
		var notFound *domain.WorkNotFoundError
		if !errors.As(err, &notFound) {
			writeError(w, http.StatusServiceUnavailable, "redis not ready")
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func validateBook(req *BookSubmission) *domain.ValidationError {
	if strings.TrimSpace(req.Outline.Title) == "" {
		return &domain.ValidationError{Field: "outline.title", Reason: "is required"}
	}
	if len(req.Outline.Chapters) == 0 {
		return &domain.ValidationError{Field: "outline.chapters", Reason: "at least one chapter is required"}
	}
	for i, ch := range req.Outline.Chapters {
		if strings.TrimSpace(ch.Title) == "" {
			return &domain.ValidationError{
				Field:  "outline.chapters[" + strconv.Itoa(i) + "].title",
				Reason: "is required",
			}
		}
	}
	if req.Format == "" {
		req.Format = "pdf"
	}
	if !export.ValidFormat(req.Format) {
		return &domain.ValidationError{Field: "format", Reason: "must be one of pdf, html, markdown"}
	}
	return nil
}

func validateScan(req *pipeline.ScanRequest) *domain.ValidationError {
	if strings.TrimSpace(req.TargetURL) == "" {
		return &domain.ValidationError{Field: "target_url", Reason: "is required"}
	}
	u, err := url.Parse(req.TargetURL)
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &domain.ValidationError{Field: "target_url", Reason: "must be an absolute http(s) URL"}
	}
	if len(req.Domains) == 0 {
		req.Domains = []string{u.Hostname()}
	}
	return nil
}

func writeValidationError(w http.ResponseWriter, err *domain.ValidationError) {
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
