package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zapponejosh/natal-api/internal/astro"
	"github.com/zapponejosh/natal-api/internal/calendar"
	"github.com/zapponejosh/natal-api/internal/content"
	"github.com/zapponejosh/natal-api/internal/database"
	"github.com/zapponejosh/natal-api/internal/geocode"
	"github.com/zapponejosh/natal-api/internal/logger"
)

// Response represents a standard API response.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error codes
const (
	CodeBadRequest        = "BAD_REQUEST"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeCityNotFound      = "CITY_NOT_FOUND"
	CodeChartFailed       = "CHART_FAILED"
	CodeGeocoderDown      = "GEOCODER_UNAVAILABLE"
	CodeInternal          = "INTERNAL_ERROR"
	CodeHealthCheckFailed = "HEALTH_CHECK_FAILED"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful JSON response.
func WriteSuccess(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// WriteCreated writes a 201 Created response.
func WriteCreated(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    data,
	})
}

// WriteError writes an error JSON response.
func WriteError(w http.ResponseWriter, status int, message string, code ...string) error {
	errInfo := ErrorInfo{
		Message: message,
	}
	if len(code) > 0 {
		errInfo.Code = code[0]
	}

	return WriteJSON(w, status, Response{
		Success: false,
		Error:   &errInfo,
	})
}

// WriteNotFound writes a 404 Not Found response.
func WriteNotFound(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusBadRequest, message, CodeBadRequest)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusInternalServerError, message, CodeInternal)
}

// WriteUnauthorized writes a 401 Unauthorized response.
func WriteUnauthorized(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

// WriteServiceError maps a domain error onto a status and error code.
// Unrecognised errors are logged and reported as a generic 500.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) error {
	switch {
	case errors.Is(err, calendar.ErrMalformedDateTime),
		errors.Is(err, content.ErrInvalidDegree),
		errors.Is(err, astro.ErrUnknownHouseSystem),
		errors.Is(err, database.ErrInvalidProfile):
		return WriteBadRequest(w, err.Error())

	case database.IsNotFound(err):
		return WriteNotFound(w, "Profile not found")

	case errors.Is(err, geocode.ErrNotFound):
		return WriteError(w, http.StatusUnprocessableEntity, "City not found; check the spelling or supply coordinates", CodeCityNotFound)

	case errors.Is(err, geocode.ErrUnavailable):
		logger.Warn(r.Context(), "geocoder unavailable", "error", err)
		return WriteError(w, http.StatusServiceUnavailable, "Geocoding service unavailable, try again later", CodeGeocoderDown)

	case errors.Is(err, astro.ErrMalformedCuspTable):
		logger.Error(r.Context(), "chart computation failed", err, "path", r.URL.Path)
		return WriteError(w, http.StatusInternalServerError, "Chart could not be computed", CodeChartFailed)
	}

	logger.Error(r.Context(), "request failed", err, "path", r.URL.Path)
	return WriteInternalError(w, "Internal server error")
}
