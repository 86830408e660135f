package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/internal/supervisor"
	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug(subsystem, "Failed to write response: %v", err)
	}
}

func writeResult(w http.ResponseWriter, status int, res api.Result) {
	writeJSON(w, status, res)
}

func ok(w http.ResponseWriter, message string, data interface{}) {
	writeResult(w, http.StatusOK, api.OK(message, data))
}

// fail writes err with the status derived from its type. data is attached when set.
func fail(w http.ResponseWriter, err error, data interface{}) {
	res := api.Fail(err)
	res.Data = data
	writeResult(w, statusOf(err), res)
}

func statusOf(err error) int {
	switch {
	case api.IsNotFound(err):
		return http.StatusNotFound
	case api.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, api.ErrServiceNotRunning), errors.Is(err, api.ErrNoCapabilities):
		return http.StatusConflict
	case errors.Is(err, supervisor.ErrShutdownDeadline), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
