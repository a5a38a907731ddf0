package httptransport

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"searchjob-service/internal/entity"
	"searchjob-service/internal/service"
)

type Handler struct {
	jobSvc       *service.JobService
	frontendBase string
}

func NewHandler(jobSvc *service.JobService, frontendBase string) *Handler {
	return &Handler{jobSvc: jobSvc, frontendBase: frontendBase}
}

type startJobResp struct {
	RequestID  string `json:"request_id"`
	Status     string `json:"status"`
	MonitorURL string `json:"monitor_url,omitempty"`
	StatusURL  string `json:"status_url"`
	LogsURL    string `json:"logs_url"`
	ResultsURL string `json:"results_url"`
	LiveURL    string `json:"live_url"`
}

type statusResp struct {
	RequestID string          `json:"request_id"`
	Status    string          `json:"status"`
	Progress  float64         `json:"progress"`
	Stats     json.RawMessage `json:"stats,omitempty"`
	ErrorText string          `json:"error_text,omitempty"`
}

type logLine struct {
	TS      string          `json:"ts"`
	Level   entity.LogLevel `json:"level"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type pageInfo struct {
	Limit      int     `json:"limit"`
	Cursor     *string `json:"cursor"`
	NextCursor *string `json:"next_cursor"`
}

type resultsResp struct {
	RequestID string            `json:"request_id"`
	Entity    string            `json:"entity"`
	Page      pageInfo          `json:"page"`
	Rows      []json.RawMessage `json:"rows"`
}

// StartSearch godoc
// @Summary Submit a search job
// @Description Creates the job envelope, queues it for background execution and returns the monitoring URLs.
// @Tags requests
// @Accept json
// @Produce json
// @Success 200 {object} startJobResp
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /v1/search [post]
func (h *Handler) StartSearch(w http.ResponseWriter, r *http.Request) {
	h.startJob(w, r, "search")
}

// StartAnalysis godoc
// @Summary Submit an analysis job
// @Tags requests
// @Accept json
// @Produce json
// @Success 200 {object} startJobResp
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /v1/analyze [post]
func (h *Handler) StartAnalysis(w http.ResponseWriter, r *http.Request) {
	h.startJob(w, r, "analyze")
}

func (h *Handler) startJob(w http.ResponseWriter, r *http.Request, mode string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "unreadable body")
		return
	}

	// Malformed payloads are rejected before any job row exists.
	if len(body) > 0 && !json.Valid(body) {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	clientMeta, _ := json.Marshal(map[string]string{
		"remote_addr": r.RemoteAddr,
		"user_agent":  r.UserAgent(),
	})

	ctx := r.Context()
	id, err := h.jobSvc.CreateJob(ctx, service.CreateJobRequest{
		Kind:       entity.KindAPI,
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      r.URL.RawQuery,
		Headers:    headers,
		BodyText:   string(body),
		ClientMeta: clientMeta,
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to create request")
		return
	}

	if err := h.jobSvc.QueueJob(ctx, id, mode+" request received", body); err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to queue request")
		return
	}

	origin := requestOrigin(r)
	base := h.frontendBase
	if base == "" {
		base = origin
	}

	w.Header().Set("X-Request-Id", id.String())
	writeJSON(w, http.StatusOK, startJobResp{
		RequestID:  id.String(),
		Status:     string(entity.StatusQueued),
		MonitorURL: base + "/?requestId=" + id.String(),
		StatusURL:  origin + "/v1/requests/" + id.String(),
		LogsURL:    origin + "/v1/requests/" + id.String() + "/logs",
		ResultsURL: origin + "/v1/requests/" + id.String() + "/results",
		LiveURL:    origin + "/v1/requests/" + id.String() + "/live",
	})
}

// GetStatus godoc
// @Summary Get job status and progress
// @Description Unknown ids yield a not_found status payload rather than an error, so polling clients degrade gracefully.
// @Tags requests
// @Produce json
// @Param id path string true "request id (uuid)"
// @Success 200 {object} statusResp
// @Failure 400 {object} apiError
// @Router /v1/requests/{id} [get]
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	view, err := h.jobSvc.Status(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "status lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, statusToResp(view))
}

func statusToResp(view service.StatusView) statusResp {
	if !view.Found {
		return statusResp{RequestID: view.JobID.String(), Status: "not_found", Progress: 0}
	}
	return statusResp{
		RequestID: view.JobID.String(),
		Status:    string(view.Status),
		Progress:  view.Progress,
		Stats:     view.Stats,
		ErrorText: view.ErrorText,
	}
}

// GetLogs godoc
// @Summary Read job logs, oldest first
// @Tags requests
// @Produce json
// @Param id path string true "request id (uuid)"
// @Param limit query int false "max entries (default 200, max 1000)"
// @Success 200 {object} map[string]any
// @Failure 400 {object} apiError
// @Router /v1/requests/{id}/logs [get]
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 0)
	entries, err := h.jobSvc.Logs(r.Context(), id, limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "log read failed")
		return
	}

	lines := make([]logLine, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, logLine{
			TS:      e.CreatedAt.Format(time.RFC3339),
			Level:   e.Level,
			Message: e.Message,
			Data:    e.Data,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"request_id": id.String(), "logs": lines})
}

// GetResults godoc
// @Summary Read paginated job results
// @Description Keyset pagination; pass the returned next_cursor to continue. Invalid cursors restart from the beginning.
// @Tags requests
// @Produce json
// @Param id path string true "request id (uuid)"
// @Param entity query string false "entity name (default permit_building)"
// @Param cursor query string false "opaque cursor"
// @Param limit query int false "page size (default 100, max 500)"
// @Success 200 {object} resultsResp
// @Failure 400 {object} apiError
// @Router /v1/requests/{id}/results [get]
func (h *Handler) GetResults(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	entityName := r.URL.Query().Get("entity")
	if entityName == "" {
		entityName = "permit_building"
	}
	cursor := r.URL.Query().Get("cursor")
	limit := queryInt(r, "limit", 0)

	page, err := h.jobSvc.Results(r.Context(), id, entityName, cursor, limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "result read failed")
		return
	}

	rows := make([]json.RawMessage, 0, len(page.Rows))
	for _, row := range page.Rows {
		rows = append(rows, row.RowJSON)
	}

	info := pageInfo{Limit: page.Limit}
	if cursor != "" {
		info.Cursor = &cursor
	}
	if page.NextCursor != "" {
		next := page.NextCursor
		info.NextCursor = &next
	}

	writeJSON(w, http.StatusOK, resultsResp{
		RequestID: id.String(),
		Entity:    entityName,
		Page:      info,
		Rows:      rows,
	})
}

func (h *Handler) requestID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
