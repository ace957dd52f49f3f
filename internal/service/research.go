package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/zapponejosh/natal-api/internal/astro"
	"github.com/zapponejosh/natal-api/internal/content"
	"github.com/zapponejosh/natal-api/internal/database"
)

// ResearchMatch is one stored profile with a planet on the searched degree.
type ResearchMatch struct {
	ProfileID int64      `json:"profile_id"`
	Name      string     `json:"name"`
	City      string     `json:"city"`
	BirthDate string     `json:"birth_date"`
	BirthTime string     `json:"birth_time"`
	Planet    astro.Body `json:"planet"`
	House     int        `json:"house"`
}

// ResearchResult is the reverse lookup for one zodiac degree.
type ResearchResult struct {
	content.DegreeData
	HouseSystem astro.HouseSystem `json:"house_system"`
	Matches     []ResearchMatch   `json:"matches"`
	Scanned     int               `json:"scanned"`
	Skipped     int               `json:"skipped"`
}

// Research finds every stored profile with one of the Sun through Pluto at
// sign and degree. Matches keep profile list order, then planet order.
// Profiles whose chart cannot be computed are logged and counted in
// Skipped.
func (s *ChartService) Research(ctx context.Context, sign string, degree int) (*ResearchResult, error) {
	data, err := s.DegreeData(sign, degree)
	if err != nil {
		return nil, err
	}
	target := astro.DegreeRef{Sign: data.Sign, Degree: data.Degree}

	profiles, err := s.deps.Store.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	found := make([][]ResearchMatch, len(profiles))
	var skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range profiles {
		i := i
		p := profiles[i]
		g.Go(func() error {
			matches, err := s.scanProfile(gctx, p, target)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.deps.Logger.WarnContext(ctx, "skipping profile in research",
					slog.Int64("profile_id", p.ID),
					slog.String("name", p.Name),
					slog.Any("error", err),
				)
				skipped.Add(1)
				return nil
			}
			found[i] = matches
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	matches := make([]ResearchMatch, 0)
	for _, m := range found {
		matches = append(matches, m...)
	}
	s.deps.Recorder.ResearchMatched(len(matches))

	s.deps.Logger.DebugContext(ctx, "research complete",
		slog.String("sign", string(target.Sign)),
		slog.Int("degree", target.Degree),
		slog.Int("scanned", len(profiles)),
		slog.Int("matches", len(matches)),
		slog.Int64("skipped", skipped.Load()),
	)

	return &ResearchResult{
		DegreeData:  data,
		HouseSystem: s.defaultSystem,
		Matches:     matches,
		Scanned:     len(profiles),
		Skipped:     int(skipped.Load()),
	}, nil
}

// scanProfile computes only what the lookup needs: planet longitudes first,
// and the house table only once some planet is on the target degree.
func (s *ChartService) scanProfile(ctx context.Context, p database.Profile, target astro.DegreeRef) ([]ResearchMatch, error) {
	moment, err := p.BirthMoment()
	if err != nil {
		return nil, err
	}

	var (
		matches []ResearchMatch
		cusps   *astro.Cusps
	)
	for _, body := range astro.Planets() {
		lon, err := s.deps.Ephemeris.Longitude(ctx, moment, body)
		if err != nil {
			return nil, fmt.Errorf("%s longitude: %w", body, err)
		}
		lon = astro.Normalize(lon)

		pos, err := astro.Decompose(lon)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", body, err)
		}
		if pos.Sign != target.Sign || pos.Degree != target.Degree {
			continue
		}

		if cusps == nil {
			table, err := s.deps.Ephemeris.Houses(ctx, moment, p.Latitude, p.Longitude, s.defaultSystem)
			if err != nil {
				return nil, fmt.Errorf("compute houses: %w", err)
			}
			cusps = &table.Cusps
		}
		house, err := astro.ClassifyHouse(*cusps, lon)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", body, err)
		}

		matches = append(matches, ResearchMatch{
			ProfileID: p.ID,
			Name:      p.Name,
			City:      p.City,
			BirthDate: p.BirthDate,
			BirthTime: p.BirthTime,
			Planet:    body,
			House:     house,
		})
	}
	return matches, nil
}
