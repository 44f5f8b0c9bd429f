// Package respond writes JSON responses and maps error kinds to status codes.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chris/fuelpay/pkg/api"
	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/storage"
	"github.com/chris/fuelpay/pkg/txerrors"
)

// Presenter renders the record carried by a stale-state error.
type Presenter func(*models.Transaction) *api.Transaction

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, txerrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, txerrors.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, txerrors.ErrStaleState), errors.Is(err, storage.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, txerrors.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, txerrors.ErrChannel), errors.Is(err, txerrors.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as an api.Error. A stale-state error also carries the
// current record, rendered with present when it is non-nil.
func Error(w http.ResponseWriter, err error, present Presenter) {
	status := Status(err)
	body := api.Error{Message: err.Error()}
	switch {
	case status == http.StatusInternalServerError:
		body.Message = "internal error"
	case errors.Is(err, txerrors.ErrChannel):
		body.Message = txerrors.ErrChannel.Error()
	case errors.Is(err, txerrors.ErrUnavailable):
		body.Message = txerrors.ErrUnavailable.Error()
	}
	if current, ok := txerrors.CurrentOf(err); ok && present != nil {
		body.Transaction = present(current)
	}
	JSON(w, status, body)
}

// Decode reads a JSON request body into v, reporting failures as validation errors.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return txerrors.Validationf("invalid request body: %v", err)
	}
	return nil
}
