package utils

import (
	"encoding/json"
	"net/http"

	"tezrelay/pkg/apierr"
)

// envelope is the uniform response shape: {data, meta?} on success and
// {error: {code, message}} on failure.
type envelope struct {
	Data  any      `json:"data,omitempty"`
	Meta  any      `json:"meta,omitempty"`
	Error *errBody `json:"error,omitempty"`
}

type errBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSONData writes a success envelope. meta may be nil.
func JSONData(w http.ResponseWriter, status int, data, meta any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data, Meta: meta})
}

// JSONError maps err onto the wire taxonomy and writes the error
// envelope with the code's HTTP status.
func JSONError(w http.ResponseWriter, err error) {
	e := apierr.From(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apierr.Status(e.Code))
	_ = json.NewEncoder(w).Encode(envelope{Error: &errBody{Code: string(e.Code), Message: e.Message}})
}

// JSONErrorCode writes an error envelope for an explicit code, status
// derived from the code.
func JSONErrorCode(w http.ResponseWriter, code apierr.Code, message string) {
	JSONError(w, apierr.New(code, message))
}
