package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	stations "mobbi-manager/internal/stations/domain"
)

type errorBody struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain failures onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	body := errorBody{Error: err.Error(), Code: code}

	var (
		budgetErr  *stations.BudgetExceededError
		grantErr   *stations.InvalidGrantError
		releaseErr *stations.DeviceReleaseError
		localErr   *stations.LocalDeletionError
	)
	switch {
	case errors.As(err, &budgetErr):
		body.Details = map[string]any{"requested": budgetErr.Requested, "available": budgetErr.Available}
	case errors.As(err, &grantErr):
		if grantErr.Index >= 0 {
			body.Details = map[string]any{"index": grantErr.Index}
		}
	case errors.As(err, &releaseErr):
		body.Details = map[string]any{"failed_serials": releaseErr.FailedSerials(), "outcomes": releaseErr.Failed}
	case errors.As(err, &localErr):
		body.Details = map[string]any{"partner_id": localErr.PartnerID, "step": localErr.Step}
	}
	if status == http.StatusInternalServerError && localErr == nil {
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, string) {
	switch {
	// Checked first: the wrapped cause of a local deletion failure must not
	// decide the status.
	case errors.Is(err, stations.ErrLocalDeletionFailure):
		return http.StatusInternalServerError, "local_deletion_failed"
	case errors.Is(err, stations.ErrEmptyPartnerID),
		errors.Is(err, stations.ErrEmptyAreaID),
		errors.Is(err, stations.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, stations.ErrInvalidGrant):
		return http.StatusBadRequest, "invalid_grant"
	case errors.Is(err, stations.ErrPartnerNotFound):
		return http.StatusNotFound, "partner_not_found"
	case errors.Is(err, stations.ErrAreaNotFound):
		return http.StatusNotFound, "area_not_found"
	case errors.Is(err, stations.ErrAlreadyAllocated):
		return http.StatusConflict, "already_allocated"
	case errors.Is(err, stations.ErrBudgetExceeded):
		return http.StatusConflict, "budget_exceeded"
	case errors.Is(err, stations.ErrBudgetBelowCommitted):
		return http.StatusConflict, "budget_below_committed"
	case errors.Is(err, stations.ErrAllocationConflict):
		return http.StatusConflict, "allocation_conflict"
	case errors.Is(err, stations.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, stations.ErrPartnerDeleting):
		return http.StatusConflict, "partner_deleting"
	case errors.Is(err, stations.ErrPartnerWithoutArea):
		return http.StatusConflict, "partner_without_area"
	case errors.Is(err, stations.ErrMalformedAllocation):
		return http.StatusConflict, "malformed_allocation"
	case errors.Is(err, stations.ErrAreaExists), errors.Is(err, stations.ErrPartnerExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, stations.ErrPartialDeviceFailure):
		return http.StatusBadGateway, "device_release_failed"
	case errors.Is(err, stations.ErrNoExternalCredentials):
		return http.StatusServiceUnavailable, "device_api_not_configured"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func respondError(logger *zap.Logger, w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := classify(err); status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, err)
}
