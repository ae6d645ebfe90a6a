package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/sokrith/pos-settlement/internal/domain/order"
	"github.com/sokrith/pos-settlement/internal/domain/payment"
)

// errorResponse is the error envelope for every non-2xx response.
type errorResponse struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps domain errors onto the HTTP error taxonomy. Validation
// and precondition failures carry their collected messages so the terminal
// can show them all at once.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		precond   *payment.PreconditionError
		validErr  *order.ValidationError
		transient *order.TransientError
	)

	switch {
	case errors.As(err, &precond):
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Code:    http.StatusBadRequest,
			Message: "payment is not ready to commit",
			Errors:  precond.Errors,
		})
	case errors.As(err, &validErr):
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Code:    http.StatusBadRequest,
			Message: "payment rejected",
			Errors:  validErr.Messages,
		})
	case errors.Is(err, order.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{
			Code:    http.StatusNotFound,
			Message: "order not found",
		})
	case errors.Is(err, order.ErrAlreadyPaid):
		respondJSON(w, http.StatusConflict, errorResponse{
			Code:    http.StatusConflict,
			Message: "order was already paid",
		})
	case errors.Is(err, order.ErrIncomplete):
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    http.StatusUnprocessableEntity,
			Message: "order record is missing required fields",
		})
	case errors.Is(err, payment.ErrLastPanel), errors.Is(err, payment.ErrNoPanels):
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    http.StatusUnprocessableEntity,
			Message: err.Error(),
		})
	case errors.Is(err, payment.ErrPanelNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{
			Code:    http.StatusNotFound,
			Message: err.Error(),
		})
	case errors.As(err, &transient):
		respondJSON(w, http.StatusBadGateway, errorResponse{
			Code:    http.StatusBadGateway,
			Message: "order service is unavailable, please retry",
		})
	default:
		zctx.From(r.Context()).Error("Unhandled error", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, errorResponse{
			Code:    http.StatusInternalServerError,
			Message: "internal server error",
		})
	}
}

func badRequest(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{
		Code:    http.StatusBadRequest,
		Message: message,
	})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if strings.Contains(err.Error(), "unknown field") {
			return errors.Wrap(err, "unexpected field")
		}
		return errors.Wrap(err, "invalid JSON body")
	}
	return nil
}
