package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/models"
)

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 1 << 20

type successResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

type errorResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, successResponse{Success: true, Data: data})
}

// statusFor maps an error kind to its HTTP status
func statusFor(appErr *models.AppError) int {
	switch appErr.Kind {
	case models.KindValidation, models.KindSignature:
		return http.StatusBadRequest
	case models.KindAuth:
		return http.StatusUnauthorized
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConflict:
		if errors.Is(appErr, models.ErrOrderAlreadyPaid) {
			return http.StatusBadRequest
		}
		return http.StatusConflict
	case models.KindCapacity:
		return http.StatusConflict
	case models.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as the error envelope. Errors that are not an
// AppError are logged and reported as an internal error.
func writeError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	status, body := errorBody(logger, err, 0)
	writeJSON(w, status, body)
}

// errorBody resolves the status and envelope for err, logging server errors.
// A non-zero status overrides the one derived from the error kind.
func errorBody(logger *logrus.Logger, err error, status int) (int, errorResponse) {
	appErr, ok := models.AsAppError(err)
	if !ok {
		appErr = models.NewInternalError("Internal server error", err)
	}

	if status == 0 {
		status = statusFor(appErr)
	}

	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithField("code", appErr.Code).Error("Request failed")
	}

	return status, errorResponse{
		Success: false,
		Message: appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	}
}

// decodeJSON reads a JSON body into dst; unknown fields are ignored
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return models.NewValidationError("Request body is required", nil)
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return models.NewValidationError("Request body too large", nil)
		}
		return models.NewValidationError(fmt.Sprintf("Invalid JSON body: %v", err), nil)
	}
	return nil
}

// queryInt reads a positive integer query parameter, falling back to def
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 1 {
		return def
	}
	return v
}
