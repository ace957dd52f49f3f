package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/zapponejosh/natal-api/internal/database"
)

// ProfileService manages stored profiles. Coordinates are resolved here so
// the store only ever holds geocoded rows.
type ProfileService struct {
	deps Deps
}

// NewProfileService creates a ProfileService.
func NewProfileService(deps Deps) *ProfileService {
	return &ProfileService{deps: deps.withDefaults()}
}

// Create geocodes the city unless coordinates are supplied, then stores the
// profile. Nothing is stored when the city cannot be found.
func (s *ProfileService) Create(ctx context.Context, in BirthInput) (*database.Profile, error) {
	loc, err := resolveLocation(ctx, s.deps.Geocoder, in.City, in.Latitude, in.Longitude)
	if err != nil {
		return nil, err
	}

	p := &database.Profile{
		Name:       in.Name,
		City:       in.City,
		BirthDate:  in.BirthDate,
		DateFormat: in.DateFormat,
		BirthTime:  in.BirthTime,
		Timezone:   in.Timezone,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
	}
	if err := s.deps.Store.CreateProfile(ctx, p); err != nil {
		return nil, err
	}

	s.deps.Logger.InfoContext(ctx, "profile created",
		slog.Int64("profile_id", p.ID),
		slog.String("city", p.City),
	)
	return p, nil
}

// Update replaces a profile's birth inputs. When the city changes and no
// coordinates are supplied, the new city is geocoded; a failed lookup
// aborts the update and leaves the stored row as it was.
func (s *ProfileService) Update(ctx context.Context, id int64, in BirthInput) (*database.Profile, error) {
	current, err := s.deps.Store.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	lat, lon := current.Latitude, current.Longitude
	switch {
	case in.Latitude != nil && in.Longitude != nil:
		lat, lon = *in.Latitude, *in.Longitude
	case !sameCity(current.City, in.City):
		loc, err := resolveLocation(ctx, s.deps.Geocoder, in.City, nil, nil)
		if err != nil {
			return nil, err
		}
		lat, lon = loc.Latitude, loc.Longitude
	}

	p := &database.Profile{
		ID:         id,
		Name:       in.Name,
		City:       in.City,
		BirthDate:  in.BirthDate,
		DateFormat: in.DateFormat,
		BirthTime:  in.BirthTime,
		Timezone:   in.Timezone,
		Latitude:   lat,
		Longitude:  lon,
		CreatedAt:  current.CreatedAt,
	}
	if err := s.deps.Store.UpdateProfile(ctx, p); err != nil {
		return nil, err
	}

	s.deps.Logger.InfoContext(ctx, "profile updated",
		slog.Int64("profile_id", id),
		slog.Bool("relocated", lat != current.Latitude || lon != current.Longitude),
	)
	return s.deps.Store.GetProfile(ctx, id)
}

// Get returns one profile.
func (s *ProfileService) Get(ctx context.Context, id int64) (*database.Profile, error) {
	return s.deps.Store.GetProfile(ctx, id)
}

// List returns all profiles ordered by name.
func (s *ProfileService) List(ctx context.Context) ([]database.Profile, error) {
	return s.deps.Store.ListProfiles(ctx)
}

// Delete removes a profile.
func (s *ProfileService) Delete(ctx context.Context, id int64) error {
	if err := s.deps.Store.DeleteProfile(ctx, id); err != nil {
		return err
	}
	s.deps.Logger.InfoContext(ctx, "profile deleted", slog.Int64("profile_id", id))
	return nil
}

func sameCity(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
