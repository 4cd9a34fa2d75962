package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ambigdb/ambigdb/internal/model"
	"github.com/ambigdb/ambigdb/internal/service"
)

// Validator is the part of service.Validator the HTTP surface drives.
type Validator interface {
	Validate(ctx context.Context, req service.Request) *service.Outcome
	ValidateBatch(ctx context.Context, reqs []service.Request) []*service.Outcome
}

// ValidateHandler serves concept validation requests.
type ValidateHandler struct {
	validator Validator
	maxBatch  int
}

// NewValidateHandler creates a ValidateHandler. Batches larger than maxBatch
// are refused; zero means no limit.
func NewValidateHandler(v Validator, maxBatch int) *ValidateHandler {
	return &ValidateHandler{validator: v, maxBatch: maxBatch}
}

// Validate handles POST /api/v1/validate. The body is either one request
// object, answered with its outcome, or an array of requests, answered with
// a list envelope of outcomes in request order. A rejected candidate is still
// a 200: the outcome carries the failure.
func (h *ValidateHandler) Validate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, bodyErrorStatus(err), err.Error())
		return
	}

	if body[0] == '[' {
		h.validateBatch(w, r, body)
		return
	}

	var req service.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	out := h.validator.Validate(r.Context(), req)
	w.Header().Set("X-Run-ID", out.RunID)
	writeJSON(w, http.StatusOK, out)
}

func (h *ValidateHandler) validateBatch(w http.ResponseWriter, r *http.Request, body []byte) {
	var reqs []service.Request
	if err := json.Unmarshal(body, &reqs); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "Batch is empty")
		return
	}
	if h.maxBatch > 0 && len(reqs) > h.maxBatch {
		writeError(w, http.StatusRequestEntityTooLarge, "Batch too large", map[string]interface{}{
			"size":  len(reqs),
			"limit": h.maxBatch,
		})
		return
	}

	start := time.Now()
	outcomes := h.validator.ValidateBatch(r.Context(), reqs)
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: outcomes,
		Meta: &model.ResponseMeta{
			Count:  len(outcomes),
			Limit:  h.maxBatch,
			TookMs: float64(time.Since(start).Microseconds()) / 1000.0,
		},
	})
}
