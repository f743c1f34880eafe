package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/Rrens/mattressai-engine/internal/api/response"
	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/Rrens/mattressai-engine/internal/service"
)

// ExperimentAPI manages A/B experiments
type ExperimentAPI interface {
	Create(ctx context.Context, input domain.ExperimentCreate) (*domain.Experiment, error)
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*domain.Experiment, error)
	List(ctx context.Context, tenantID string, includeCompleted bool) ([]domain.Experiment, error)
	UpdateStatus(ctx context.Context, tenantID string, id uuid.UUID, status domain.ExperimentStatus) (*domain.Experiment, error)
	GetMetrics(ctx context.Context, tenantID string, id uuid.UUID) (*domain.ExperimentMetrics, error)
}

// ExperimentHandler handles experiment endpoints
type ExperimentHandler struct {
	experiments ExperimentAPI
}

// NewExperimentHandler creates a new experiment handler
func NewExperimentHandler(experiments ExperimentAPI) *ExperimentHandler {
	return &ExperimentHandler{experiments: experiments}
}

// Create handles experiment creation
func (h *ExperimentHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	var input domain.ExperimentCreate
	if !decodeAndValidate(w, r, &input) {
		return
	}
	input.TenantID = tenant

	experiment, err := h.experiments.Create(r.Context(), input)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, experiment)
}

// List returns the tenant's experiments. ?include_completed=true adds finished ones.
func (h *ExperimentHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	includeCompleted := r.URL.Query().Get("include_completed") == "true"
	experiments, err := h.experiments.List(r.Context(), tenant, includeCompleted)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, experiments)
}

// Get returns one experiment
func (h *ExperimentHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "experimentID")
	if !ok {
		return
	}

	experiment, err := h.experiments.Get(r.Context(), tenant, id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, experiment)
}

type statusRequest struct {
	Status domain.ExperimentStatus `json:"status" validate:"required,oneof=active paused completed"`
}

// UpdateStatus pauses, resumes or completes an experiment
func (h *ExperimentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "experimentID")
	if !ok {
		return
	}

	var req statusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	experiment, err := h.experiments.UpdateStatus(r.Context(), tenant, id, req.Status)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, experiment)
}

// Metrics returns per-variant funnel metrics
func (h *ExperimentHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "experimentID")
	if !ok {
		return
	}

	metrics, err := h.experiments.GetMetrics(r.Context(), tenant, id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, metrics)
}

type significanceRequest struct {
	A domain.Proportion `json:"a"`
	B domain.Proportion `json:"b"`
}

// Significance runs a two-proportion z-test on the posted counts
func (h *ExperimentHandler) Significance(w http.ResponseWriter, r *http.Request) {
	var req significanceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.A.Successes > req.A.Trials || req.B.Successes > req.B.Trials {
		response.BadRequest(w, "successes must not exceed trials")
		return
	}
	response.OK(w, service.CalculateSignificance(req.A, req.B))
}
