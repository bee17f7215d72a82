package httpError

import (
	"encoding/json"
	"net/http"

	"github.com/autom8ter/querylens/errors"
)

// Response is the body of a failed request
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewResponse returns the failure body of the error
func NewResponse(err error) Response {
	return Response{
		Success: false,
		Error:   errors.Extract(err).Message(),
	}
}

// Status returns the http status of the error. Codes outside of 4xx and 5xx are internal errors.
func Status(err error) int {
	if cde := errors.Extract(err).Code; cde >= 400 && cde < 600 {
		return int(cde)
	}
	return http.StatusInternalServerError
}

// Error writes the error as a json failure body with the status taken from its code
func Error(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(Status(err))
	json.NewEncoder(w).Encode(NewResponse(err))
}
