package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Rrens/mattressai-engine/internal/api/middleware"
	"github.com/Rrens/mattressai-engine/internal/api/response"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

// decodeAndValidate reads a JSON body into dst and validates it.
// It writes the 400 response itself and reports whether the handler may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		response.BadRequest(w, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		response.BadRequest(w, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) any {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}

	fields := make(map[string]string)
	for _, e := range validationErrors {
		switch e.Tag() {
		case "required":
			fields[e.Field()] = "field is required"
		case "min":
			fields[e.Field()] = "must be at least " + e.Param()
		case "max":
			fields[e.Field()] = "must be at most " + e.Param()
		case "oneof":
			fields[e.Field()] = "must be one of: " + e.Param()
		case "datetime":
			fields[e.Field()] = "must match " + e.Param()
		default:
			fields[e.Field()] = "validation failed on " + e.Tag()
		}
	}
	return fields
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.BadRequest(w, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func tenantFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenant, ok := middleware.GetTenant(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
	}
	return tenant, ok
}
