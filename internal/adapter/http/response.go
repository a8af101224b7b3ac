package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fixora/pim/internal/usecase"
	apperr "github.com/fixora/pim/pkg/error"
)

// Envelope is the body of every JSON response
type Envelope struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func writeJSON(w http.ResponseWriter, statusCode int, status bool, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	_ = json.NewEncoder(w).Encode(Envelope{
		Status:  status,
		Message: message,
		Data:    data,
	})
}

func writeSuccess(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	writeJSON(w, statusCode, true, message, data)
}

func writeFailure(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, false, message, nil)
}

// writeError maps err to its status. Validation failures carry the itemized result.
func writeError(w http.ResponseWriter, err error) {
	appErr := apperr.MapError(err)

	var verr *usecase.ValidationError
	if errors.As(err, &verr) && len(verr.Result.Errors) > 0 {
		writeJSON(w, appErr.Status, false, appErr.Message, verr.Result)
		return
	}
	writeJSON(w, appErr.Status, false, appErr.Message, nil)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
