package ephemeris

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/zapponejosh/natal-api/internal/astro"
)

// Calculator implements astro.Ephemeris with analytic formulas. It holds no
// mutable state and is safe for concurrent use.
type Calculator struct {
	logger *slog.Logger
}

// New creates a Calculator.
func New(logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{logger: logger}
}

var _ astro.Ephemeris = (*Calculator)(nil)

// Longitude returns the geocentric tropical ecliptic longitude of body.
func (c *Calculator) Longitude(ctx context.Context, moment time.Time, body astro.Body) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	d := dayNumber(JulianDay(moment))

	switch body {
	case astro.Sun:
		lon, _ := sunPosition(d)
		return lon, nil
	case astro.Moon:
		return moonLongitude(d), nil
	case astro.NorthNode:
		return meanNode(d), nil
	case astro.Ascendant:
		return 0, errors.New("ascendant depends on location; use Houses")
	default:
		return planetLongitude(body, d)
	}
}

// Houses returns the cusp table, Ascendant and Midheaven. Placidus falls
// back to Porphyry where its semi-arcs are undefined (polar latitudes).
func (c *Calculator) Houses(ctx context.Context, moment time.Time, lat, lon float64, system astro.HouseSystem) (astro.HouseTable, error) {
	if err := ctx.Err(); err != nil {
		return astro.HouseTable{}, err
	}
	if math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return astro.HouseTable{}, fmt.Errorf("coordinates out of range: lat=%v lon=%v", lat, lon)
	}

	a := computeAngles(JulianDay(moment), lat, lon)

	var cusps astro.Cusps
	switch system {
	case astro.HouseSystemPlacidus, "":
		var err error
		cusps, err = placidus(a)
		if err != nil {
			c.logger.Debug("placidus unavailable, using porphyry",
				slog.Float64("latitude", lat),
				slog.Any("error", err),
			)
			cusps = porphyry(a)
		}
	case astro.HouseSystemPorphyry:
		cusps = porphyry(a)
	case astro.HouseSystemEqual:
		cusps = equal(a)
	case astro.HouseSystemWholeSign:
		cusps = wholeSign(a)
	default:
		return astro.HouseTable{}, fmt.Errorf("unsupported house system %q", system)
	}

	if err := cusps.Validate(); err != nil {
		return astro.HouseTable{}, fmt.Errorf("%s houses at latitude %.2f: %w", system, lat, err)
	}

	return astro.HouseTable{
		Cusps:     cusps,
		Ascendant: a.asc,
		Midheaven: a.mc,
	}, nil
}
