package httptransport

import (
	"encoding/json"
	"net/http"

	"searchjob-service/internal/entity"
	"searchjob-service/internal/health"
)

type HealthHandler struct {
	svc *health.Service
}

func NewHealthHandler(svc *health.Service) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// RunProbes godoc
// @Summary Execute all health probes now
// @Description Runs builtin and enabled dynamic probes in parallel and feeds the incident automaton.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Router /v1/health/run [post]
func (h *HealthHandler) RunProbes(w http.ResponseWriter, r *http.Request) {
	results := h.svc.RunAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// ListIncidents godoc
// @Summary List incidents, newest opened first
// @Tags health
// @Produce json
// @Param active query bool false "active only (default true)"
// @Success 200 {object} map[string]any
// @Failure 500 {object} apiError
// @Router /v1/health/incidents [get]
func (h *HealthHandler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") != "false"

	incidents, err := h.svc.Incidents(r.Context(), activeOnly)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "incident lookup failed")
		return
	}
	if incidents == nil {
		incidents = []entity.Incident{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": incidents})
}

// History godoc
// @Summary List recent probe executions, newest first
// @Tags health
// @Produce json
// @Param limit query int false "max entries (default 20)"
// @Success 200 {object} map[string]any
// @Failure 500 {object} apiError
// @Router /v1/health/history [get]
func (h *HealthHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)

	history, err := h.svc.History(r.Context(), limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	if history == nil {
		history = []entity.ProbeResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

type createProbeDTO struct {
	Name             string `json:"name"`
	Target           string `json:"target"`
	Method           string `json:"method"`
	ExpectedStatus   int    `json:"expected_status"`
	FrequencySeconds int    `json:"frequency_seconds"`
	Criticality      string `json:"criticality"`
}

// CreateProbe godoc
// @Summary Register a dynamic HTTP probe
// @Tags health
// @Accept json
// @Produce json
// @Param request body createProbeDTO true "probe definition"
// @Success 201 {object} map[string]any
// @Failure 400 {object} apiError
// @Router /v1/health/tests [post]
func (h *HealthHandler) CreateProbe(w http.ResponseWriter, r *http.Request) {
	var dto createProbeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	def, err := h.svc.CreateDefinition(r.Context(), entity.ProbeDefinition{
		Name:             dto.Name,
		Target:           dto.Target,
		Method:           dto.Method,
		ExpectedStatus:   dto.ExpectedStatus,
		FrequencySeconds: dto.FrequencySeconds,
		Criticality:      dto.Criticality,
	})
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"test": def})
}

// ListProbes godoc
// @Summary List dynamic probe definitions
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 500 {object} apiError
// @Router /v1/health/tests [get]
func (h *HealthHandler) ListProbes(w http.ResponseWriter, r *http.Request) {
	defs, err := h.svc.Definitions(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "definition lookup failed")
		return
	}
	if defs == nil {
		defs = []entity.ProbeDefinition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tests": defs})
}
