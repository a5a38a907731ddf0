package httptransport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"searchjob-service/internal/actor"
	"searchjob-service/internal/service"
)

// LiveHandler bridges an SSE viewer to the actor owning the job. When the
// actor is live the viewer gets pushed log/progress/status events; when the
// job is terminal or unknown the viewer gets one snapshot event rebuilt from
// the same stores the polling endpoints read, then the stream closes. Both
// paths therefore expose identical information.
type LiveHandler struct {
	jobSvc    *service.JobService
	directory *actor.Directory
}

func NewLiveHandler(jobSvc *service.JobService, directory *actor.Directory) *LiveHandler {
	return &LiveHandler{jobSvc: jobSvc, directory: directory}
}

type snapshotEvent struct {
	Type      actor.EventType `json:"type"`
	RequestID string          `json:"request_id"`
	Status    string          `json:"status"`
	Progress  float64         `json:"progress"`
	Stats     json.RawMessage `json:"stats,omitempty"`
	ErrorText string          `json:"error_text,omitempty"`
	Logs      []logLine       `json:"logs"`
}

// Live godoc
// @Summary Stream live job events (SSE)
// @Description Pushes log, progress and status events while the job runs. Terminal or unknown jobs receive a single snapshot event and the stream closes. Disconnecting never cancels the job.
// @Tags requests
// @Produce text/event-stream
// @Param id path string true "request id (uuid)"
// @Failure 400 {object} apiError
// @Router /v1/requests/{id}/live [get]
func (h *LiveHandler) Live(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeErr(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if a, found := h.directory.Peek(id); found {
		if ch, live := a.Subscribe(); live {
			defer a.Unsubscribe(ch)
			for {
				select {
				case <-r.Context().Done():
					// Viewer left; the actor keeps running.
					return
				case ev, open := <-ch:
					if !open {
						return
					}
					writeEvent(w, flusher, string(ev.Type), ev)
					if ev.Type == actor.EventStatus && ev.Status.Terminal() {
						return
					}
				}
			}
		}
	}

	// Terminal or unknown: snapshot-and-close.
	h.sendSnapshot(w, flusher, r, id)
}

func (h *LiveHandler) sendSnapshot(w http.ResponseWriter, flusher http.Flusher, r *http.Request, id uuid.UUID) {
	ctx := r.Context()

	snap := snapshotEvent{
		Type:      actor.EventSnapshot,
		RequestID: id.String(),
		Status:    "not_found",
		Logs:      []logLine{},
	}

	view, err := h.jobSvc.Status(ctx, id)
	if err == nil && view.Found {
		snap.Status = string(view.Status)
		snap.Progress = view.Progress
		snap.Stats = view.Stats
		snap.ErrorText = view.ErrorText

		entries, logErr := h.jobSvc.Logs(ctx, id, 0)
		if logErr == nil {
			for _, e := range entries {
				snap.Logs = append(snap.Logs, logLine{
					TS:      e.CreatedAt.Format(time.RFC3339),
					Level:   e.Level,
					Message: e.Message,
					Data:    e.Data,
				})
			}
		}
	}
	writeEvent(w, flusher, string(actor.EventSnapshot), snap)
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	flusher.Flush()
}
