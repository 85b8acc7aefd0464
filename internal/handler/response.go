// Package handler holds the chi HTTP handlers for the gateway's REST and
// streaming surface, and the small shared response-writing helpers they
// use.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/pgconsole/gateway/internal/apierr"
)

// errorResponse is the wire shape of every failed request.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// successResponse is the wire shape of every successful request.
type successResponse struct {
	Data interface{} `json:"data"`
}

// WriteJSON writes data as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 response wrapping data.
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, successResponse{Data: data})
}

// WriteSuccessStatus writes a response wrapping data with a custom status.
func WriteSuccessStatus(w http.ResponseWriter, status int, data interface{}) {
	WriteJSON(w, status, successResponse{Data: data})
}

// WriteAPIError maps err through apierr.As and writes the resulting
// status/code/message, so every handler can just `return` an error from
// iam/identity/broker without re-deriving its HTTP shape.
func WriteAPIError(w http.ResponseWriter, err error) {
	status, code, message := apierr.As(err)
	WriteJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}
