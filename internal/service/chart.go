// Package service composes geocoding, the ephemeris, the profile store and
// the content index into the operations the API and CLI expose.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zapponejosh/natal-api/internal/astro"
	"github.com/zapponejosh/natal-api/internal/calendar"
	"github.com/zapponejosh/natal-api/internal/content"
	"github.com/zapponejosh/natal-api/internal/database"
	"github.com/zapponejosh/natal-api/internal/geocode"
)

// ProfileStore is the persistence the services need. *database.DB
// satisfies it.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p *database.Profile) error
	GetProfile(ctx context.Context, id int64) (*database.Profile, error)
	ListProfiles(ctx context.Context) ([]database.Profile, error)
	UpdateProfile(ctx context.Context, p *database.Profile) error
	DeleteProfile(ctx context.Context, id int64) error
}

// Recorder receives domain metrics. *metrics.Collector satisfies it.
type Recorder interface {
	ChartComputed(origin, houseSystem string)
	ChartFailed(origin string)
	ResearchMatched(n int)
}

type nopRecorder struct{}

func (nopRecorder) ChartComputed(string, string) {}
func (nopRecorder) ChartFailed(string)           {}
func (nopRecorder) ResearchMatched(int)          {}

// Deps are the collaborators shared by the services.
type Deps struct {
	Ephemeris astro.Ephemeris
	Geocoder  geocode.Geocoder
	Store     ProfileStore
	Content   content.Provider
	Logger    *slog.Logger
	Recorder  Recorder
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	if d.Content == nil {
		d.Content = content.New(content.Data{}, content.Options{})
	}
	return d
}

// BirthInput describes a person whose chart should be computed.
type BirthInput struct {
	Name       string              `json:"name" validate:"required,max=100"`
	City       string              `json:"city" validate:"required,max=100"`
	BirthDate  string              `json:"birth_date" validate:"required"`
	DateFormat calendar.DateFormat `json:"date_format,omitempty" validate:"omitempty,oneof=iso-8601 dd/mm/yyyy"`
	BirthTime  string              `json:"birth_time" validate:"required"`
	Timezone   string              `json:"timezone,omitempty" validate:"omitempty,max=64"`

	// Coordinates skip geocoding when both are set.
	Latitude  *float64 `json:"latitude,omitempty" validate:"required_with=Longitude,omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude,omitempty" validate:"required_with=Latitude,omitempty,gte=-180,lte=180"`

	HouseSystem astro.HouseSystem `json:"house_system,omitempty"`
}

// moment parses the birth date, time and zone into a UTC instant.
func (in BirthInput) moment() (time.Time, error) {
	format := in.DateFormat
	if format == "" {
		format = calendar.DateFormatISO
	}
	date, err := calendar.ParseDate(in.BirthDate, format)
	if err != nil {
		return time.Time{}, err
	}
	clock, err := calendar.ParseTime(in.BirthTime)
	if err != nil {
		return time.Time{}, err
	}
	zone, err := calendar.LoadZone(in.Timezone)
	if err != nil {
		return time.Time{}, err
	}
	return calendar.BirthMoment(date, clock, zone)
}

// Chart is a computed, enriched natal chart. It is never stored.
type Chart struct {
	ProfileID   *int64              `json:"profile_id,omitempty"`
	Name        string              `json:"name"`
	City        string              `json:"city"`
	BirthDate   string              `json:"birth_date"`
	BirthTime   string              `json:"birth_time"`
	Timezone    string              `json:"timezone"`
	Moment      time.Time           `json:"birth_moment_utc"`
	Latitude    float64             `json:"latitude"`
	Longitude   float64             `json:"longitude"`
	HouseSystem astro.HouseSystem   `json:"house_system"`
	Cusps       astro.Cusps         `json:"cusps"`
	Placements  []content.Placement `json:"planets"`
}

// ChartService computes charts and runs the degree research lookup.
type ChartService struct {
	deps          Deps
	defaultSystem astro.HouseSystem
	concurrency   int
}

// ChartConfig holds ChartService settings.
type ChartConfig struct {
	DefaultHouseSystem  astro.HouseSystem
	ResearchConcurrency int
}

// NewChartService creates a ChartService.
func NewChartService(cfg ChartConfig, deps Deps) *ChartService {
	if !cfg.DefaultHouseSystem.IsValid() {
		cfg.DefaultHouseSystem = astro.HouseSystemPlacidus
	}
	if cfg.ResearchConcurrency < 1 {
		cfg.ResearchConcurrency = 1
	}
	return &ChartService{
		deps:          deps.withDefaults(),
		defaultSystem: cfg.DefaultHouseSystem,
		concurrency:   cfg.ResearchConcurrency,
	}
}

func (s *ChartService) houseSystem(requested astro.HouseSystem) (astro.HouseSystem, error) {
	if requested == "" {
		return s.defaultSystem, nil
	}
	return astro.ParseHouseSystem(string(requested))
}

// Preview geocodes (unless coordinates are given), computes and enriches a
// chart without saving anything.
func (s *ChartService) Preview(ctx context.Context, in BirthInput) (*Chart, error) {
	moment, err := in.moment()
	if err != nil {
		return nil, err
	}
	system, err := s.houseSystem(in.HouseSystem)
	if err != nil {
		return nil, err
	}

	loc, err := resolveLocation(ctx, s.deps.Geocoder, in.City, in.Latitude, in.Longitude)
	if err != nil {
		return nil, err
	}

	chart, err := s.compute(ctx, "preview", moment, loc.Latitude, loc.Longitude, system)
	if err != nil {
		return nil, err
	}

	chart.Name = strings.TrimSpace(in.Name)
	chart.City = strings.TrimSpace(in.City)
	chart.BirthDate = in.BirthDate
	chart.BirthTime = in.BirthTime
	chart.Timezone = zoneName(in.Timezone)
	return chart, nil
}

// ProfileChart recomputes the chart of a stored profile from its saved
// inputs and coordinates. It never geocodes.
func (s *ChartService) ProfileChart(ctx context.Context, id int64, system astro.HouseSystem) (*Chart, error) {
	p, err := s.deps.Store.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	hs, err := s.houseSystem(system)
	if err != nil {
		return nil, err
	}
	moment, err := p.BirthMoment()
	if err != nil {
		return nil, fmt.Errorf("profile %d: %w", id, err)
	}

	chart, err := s.compute(ctx, "profile", moment, p.Latitude, p.Longitude, hs)
	if err != nil {
		return nil, err
	}

	chart.ProfileID = &p.ID
	chart.Name = p.Name
	chart.City = p.City
	chart.BirthDate = p.BirthDate
	chart.BirthTime = p.BirthTime
	chart.Timezone = zoneName(p.Timezone)
	return chart, nil
}

func (s *ChartService) compute(ctx context.Context, origin string, moment time.Time, lat, lon float64, system astro.HouseSystem) (*Chart, error) {
	placements, table, err := astro.ComputeChart(ctx, s.deps.Ephemeris, moment, lat, lon, system)
	if err != nil {
		s.deps.Recorder.ChartFailed(origin)
		if errors.Is(err, astro.ErrMalformedCuspTable) {
			s.deps.Logger.ErrorContext(ctx, "malformed cusp table",
				slog.String("origin", origin),
				slog.Time("moment", moment),
				slog.Float64("latitude", lat),
				slog.Float64("longitude", lon),
				slog.Any("error", err),
			)
		}
		return nil, err
	}
	s.deps.Recorder.ChartComputed(origin, string(system))

	return &Chart{
		Moment:      moment,
		Latitude:    lat,
		Longitude:   lon,
		HouseSystem: system,
		Cusps:       table.Cusps,
		Placements:  s.deps.Content.Index().EnrichChart(placements),
	}, nil
}

// DegreeData returns the content bundle for one zodiac degree.
func (s *ChartService) DegreeData(sign string, degree int) (content.DegreeData, error) {
	parsed, err := astro.ParseSign(sign)
	if err != nil {
		return content.DegreeData{}, fmt.Errorf("%w: %v", content.ErrInvalidDegree, err)
	}
	return s.deps.Content.Index().DegreeData(astro.DegreeRef{Sign: parsed, Degree: degree})
}

// resolveLocation uses explicit coordinates when both are present and
// otherwise geocodes city. A geocoder miss is returned as is; there is no
// fallback location.
func resolveLocation(ctx context.Context, g geocode.Geocoder, city string, lat, lon *float64) (geocode.Location, error) {
	if lat != nil && lon != nil {
		return geocode.Location{Latitude: *lat, Longitude: *lon}, nil
	}
	if g == nil {
		return geocode.Location{}, fmt.Errorf("%w: no geocoder configured", geocode.ErrUnavailable)
	}
	loc, err := g.Geocode(ctx, city)
	if err != nil {
		return geocode.Location{}, fmt.Errorf("geocode %q: %w", city, err)
	}
	return loc, nil
}

func zoneName(tz string) string {
	if strings.TrimSpace(tz) == "" {
		return "UTC"
	}
	return tz
}
