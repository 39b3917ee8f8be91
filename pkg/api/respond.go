// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/arcfield/toolgate/pkg/logger"
	"github.com/arcfield/toolgate/pkg/registry/models"
)

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("Failed to encode response: %v", err)
	}
}

// writeError maps a domain error onto an HTTP status. Backend failures
// expose only a correlation id; the detail goes to the log.
func writeError(w http.ResponseWriter, r *http.Request, err error, debug bool) {
	reqID := middleware.GetReqID(r.Context())
	if reqID == "" {
		// Outside the chi middleware chain there is no request id; mint
		// one so the log line and the response body still correlate.
		reqID = uuid.NewString()
	}

	switch {
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrNameConflict), errors.Is(err, models.ErrToolInactive):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrInvalidTool),
		errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrSchemaInvalid),
		errors.Is(err, models.ErrExecutorDisabled):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrTimeout):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrBackendUnavailable), errors.Is(err, models.ErrEmbeddingFailed):
		logger.Errorf("Backend failure [%s] %s %s: %v", reqID, r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusBadGateway, backendBody(err, reqID, debug))
	default:
		logger.Errorf("Internal error [%s] %s %s: %v", reqID, r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, backendBody(err, reqID, debug))
	}
}

func backendBody(err error, reqID string, debug bool) errorResponse {
	if debug {
		return errorResponse{Error: err.Error(), CorrelationID: reqID}
	}
	return errorResponse{Error: "upstream failure", CorrelationID: reqID}
}

// decodeJSON reads a JSON request body into v, rejecting trailing data.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data in request body")
	}
	return nil
}
