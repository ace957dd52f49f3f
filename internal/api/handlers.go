package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/zapponejosh/natal-api/internal/astro"
	"github.com/zapponejosh/natal-api/internal/config"
	"github.com/zapponejosh/natal-api/internal/content"
	"github.com/zapponejosh/natal-api/internal/service"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// HealthChecker reports whether the profile store is reachable.
// *database.DB satisfies it.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	db       HealthChecker
	charts   *service.ChartService
	profiles *service.ProfileService
	content  content.Provider
	cfg      *config.Config
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db HealthChecker, charts *service.ChartService, profiles *service.ProfileService,
	provider content.Provider, cfg *config.Config, logger *slog.Logger) *Handlers {
	return &Handlers{
		db:       db,
		charts:   charts,
		profiles: profiles,
		content:  provider,
		cfg:      cfg,
		logger:   logger,
		validate: newValidator(),
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.db.Health(ctx); err != nil {
		h.logger.Warn("health check failed", slog.Any("error", err))
		WriteError(w, http.StatusServiceUnavailable, "Database unhealthy", CodeHealthCheckFailed)
		return
	}

	WriteSuccess(w, map[string]any{
		"status":  "healthy",
		"content": h.content.Index().Stats(),
	})
}

// =============================================================================
// Charts
// =============================================================================

// PreviewChart handles POST /api/v1/charts/preview
func (h *Handlers) PreviewChart(w http.ResponseWriter, r *http.Request) {
	var in service.BirthInput
	if !h.decodeAndValidate(w, r, &in) {
		return
	}

	chart, err := h.charts.Preview(r.Context(), in)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	WriteSuccess(w, chart)
}

// GetProfileChart handles GET /api/v1/profiles/{id}/chart?house_system=
func (h *Handlers) GetProfileChart(w http.ResponseWriter, r *http.Request) {
	id, ok := profileID(w, r)
	if !ok {
		return
	}

	system := astro.HouseSystem(r.URL.Query().Get("house_system"))
	chart, err := h.charts.ProfileChart(r.Context(), id, system)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	WriteSuccess(w, chart)
}

// Research handles GET /api/v1/research?sign=&degree=
func (h *Handlers) Research(w http.ResponseWriter, r *http.Request) {
	sign := r.URL.Query().Get("sign")
	degreeStr := r.URL.Query().Get("degree")
	if sign == "" || degreeStr == "" {
		WriteBadRequest(w, "Both sign and degree parameters are required")
		return
	}

	degree, err := strconv.Atoi(degreeStr)
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("Invalid degree: %s. Use a whole number from 1 to 30", degreeStr))
		return
	}

	result, err := h.charts.Research(r.Context(), sign, degree)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	WriteSuccess(w, result)
}

// GetDegree handles GET /api/v1/degrees/{sign}/{degree}
func (h *Handlers) GetDegree(w http.ResponseWriter, r *http.Request) {
	degreeStr := chi.URLParam(r, "degree")
	degree, err := strconv.Atoi(degreeStr)
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("Invalid degree: %s. Use a whole number from 1 to 30", degreeStr))
		return
	}

	data, err := h.charts.DegreeData(chi.URLParam(r, "sign"), degree)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	WriteSuccess(w, data)
}

// =============================================================================
// Profiles
// =============================================================================

// ListProfiles handles GET /api/v1/profiles
func (h *Handlers) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profiles.List(r.Context())
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	WriteSuccess(w, map[string]any{
		"profiles": profiles,
		"count":    len(profiles),
	})
}

// CreateProfile handles POST /api/v1/profiles
func (h *Handlers) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var in service.BirthInput
	if !h.decodeAndValidate(w, r, &in) {
		return
	}

	p, err := h.profiles.Create(r.Context(), in)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	WriteCreated(w, p)
}

// GetProfile handles GET /api/v1/profiles/{id}
func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := profileID(w, r)
	if !ok {
		return
	}

	p, err := h.profiles.Get(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	WriteSuccess(w, p)
}

// UpdateProfile handles PUT /api/v1/profiles/{id}
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := profileID(w, r)
	if !ok {
		return
	}

	var in service.BirthInput
	if !h.decodeAndValidate(w, r, &in) {
		return
	}

	p, err := h.profiles.Update(r.Context(), id, in)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	WriteSuccess(w, p)
}

// DeleteProfile handles DELETE /api/v1/profiles/{id}
func (h *Handlers) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := profileID(w, r)
	if !ok {
		return
	}

	if err := h.profiles.Delete(r.Context(), id); err != nil {
		WriteServiceError(w, r, err)
		return
	}

	WriteSuccess(w, map[string]any{
		"id":      id,
		"deleted": true,
	})
}

// =============================================================================
// Helpers
// =============================================================================

func profileID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		WriteBadRequest(w, fmt.Sprintf("Invalid profile ID: %s", raw))
		return 0, false
	}
	return id, true
}

// decodeAndValidate reads a JSON body into v and runs its validate tags,
// writing a 400 and returning false on any problem.
func (h *Handlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeJSON(w, r, v); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		WriteBadRequest(w, formatValidationError(err))
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	return nil
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return strings.Join(msgs, "; ")
}

func formatFieldError(e validator.FieldError) string {
	field := e.Field()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", field, strings.ToLower(e.Param()))
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s is out of range", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
