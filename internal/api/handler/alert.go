package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Rrens/mattressai-engine/internal/api/response"
	"github.com/Rrens/mattressai-engine/internal/domain"
)

// AlertAPI manages tenant alert settings and history
type AlertAPI interface {
	GetOrCreateSettings(ctx context.Context, tenantID string) (*domain.AlertSettings, error)
	UpdateSettings(ctx context.Context, tenantID string, update domain.AlertSettingsUpdate) (*domain.AlertSettings, error)
	ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]domain.Alert, error)
}

// TestAlertSender sends a sample alert over one channel
type TestAlertSender interface {
	SendTestAlert(ctx context.Context, tenantID, channel string) error
}

// AlertHandler handles admin alert endpoints
type AlertHandler struct {
	alerts AlertAPI
	tester TestAlertSender
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(alerts AlertAPI, tester TestAlertSender) *AlertHandler {
	return &AlertHandler{alerts: alerts, tester: tester}
}

// GetSettings returns the tenant's alert settings, creating defaults on first access
func (h *AlertHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	settings, err := h.alerts.GetOrCreateSettings(r.Context(), tenant)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, settings)
}

// UpdateSettings merges a partial settings update
func (h *AlertHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	var update domain.AlertSettingsUpdate
	if !decodeAndValidate(w, r, &update) {
		return
	}

	settings, err := h.alerts.UpdateSettings(r.Context(), tenant, update)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, settings)
}

type testAlertRequest struct {
	Channel string `json:"channel" validate:"required,oneof=email sms slack webhook podium birdeye"`
}

// SendTest delivers a sample alert over a configured channel
func (h *AlertHandler) SendTest(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	var req testAlertRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.tester.SendTestAlert(r.Context(), tenant, req.Channel); err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, map[string]any{
		"channel": req.Channel,
		"sent":    true,
	})
}

// List returns the tenant's alert history, newest first
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	filter := domain.AlertFilter{
		TenantID: tenant,
		Status:   domain.AlertStatus(r.URL.Query().Get("status")),
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			filter.Limit = v
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			filter.Offset = v
		}
	}

	alerts, err := h.alerts.ListAlerts(r.Context(), filter)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, alerts)
}
