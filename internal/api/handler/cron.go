package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/Rrens/mattressai-engine/internal/api/response"
	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/Rrens/mattressai-engine/internal/worker"
)

// AlertCycler runs one reaper, drain and dead-letter pass
type AlertCycler interface {
	Cycle(ctx context.Context) (worker.CycleStats, error)
}

// DigestSender sends the weekly digest
type DigestSender interface {
	Digest(ctx context.Context) (domain.DigestStats, error)
}

// CronHandler exposes the background jobs to an external scheduler
type CronHandler struct {
	alerts  AlertCycler
	digests DigestSender
}

// NewCronHandler creates a new cron handler
func NewCronHandler(alerts AlertCycler, digests DigestSender) *CronHandler {
	return &CronHandler{alerts: alerts, digests: digests}
}

// Alerts ends idle sessions, drains the alert queue and fails exhausted alerts
func (h *CronHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	stats, err := h.alerts.Cycle(r.Context())
	if err != nil {
		cronError(w, err)
		return
	}
	response.OK(w, stats)
}

// Digest sends the weekly digest to every opted-in tenant
func (h *CronHandler) Digest(w http.ResponseWriter, r *http.Request) {
	stats, err := h.digests.Digest(r.Context())
	if err != nil {
		cronError(w, err)
		return
	}
	response.OK(w, stats)
}

func cronError(w http.ResponseWriter, err error) {
	if errors.Is(err, worker.ErrBusy) {
		response.Error(w, http.StatusConflict, err.Error())
		return
	}
	response.FromError(w, err)
}
