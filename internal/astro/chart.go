package astro

import (
	"context"
	"fmt"
	"time"
)

// Body identifies a chart point.
type Body string

const (
	Ascendant Body = "Ascendant"
	Sun       Body = "Sun"
	Moon      Body = "Moon"
	Mercury   Body = "Mercury"
	Venus     Body = "Venus"
	Mars      Body = "Mars"
	Jupiter   Body = "Jupiter"
	Saturn    Body = "Saturn"
	Uranus    Body = "Uranus"
	Neptune   Body = "Neptune"
	Pluto     Body = "Pluto"
	NorthNode Body = "North Node"
)

// ChartOrder returns every chart point in display order. The Ascendant is
// always first.
func ChartOrder() []Body {
	return append([]Body{Ascendant}, Bodies()...)
}

// Bodies returns the bodies looked up from the ephemeris, in display order.
func Bodies() []Body {
	return []Body{Sun, Moon, Mercury, Venus, Mars, Jupiter, Saturn, Uranus, Neptune, Pluto, NorthNode}
}

// Planets returns the bodies considered by the degree research lookup:
// the Sun through Pluto, without the lunar node.
func Planets() []Body {
	return []Body{Sun, Moon, Mercury, Venus, Mars, Jupiter, Saturn, Uranus, Neptune, Pluto}
}

// IsValid checks if b is a known chart point.
func (b Body) IsValid() bool {
	for _, valid := range ChartOrder() {
		if b == valid {
			return true
		}
	}
	return false
}

// Placement is one body's derived position in a chart. It is recomputed on
// every request and never stored.
type Placement struct {
	Body      Body    `json:"planet"`
	Longitude float64 `json:"degree_total"`
	Position
	House int `json:"house"`
}

// HouseTable is the ephemeris output for a moment and place.
type HouseTable struct {
	Cusps     Cusps   `json:"cusps"`
	Ascendant float64 `json:"ascendant"`
	Midheaven float64 `json:"midheaven"`
}

// Ephemeris supplies body longitudes and house cusps.
type Ephemeris interface {
	Longitude(ctx context.Context, moment time.Time, body Body) (float64, error)
	Houses(ctx context.Context, moment time.Time, lat, lon float64, system HouseSystem) (HouseTable, error)
}

// Assemble builds the ordered placements from raw longitudes and a house
// table. longitudes must hold every body in Bodies(); the Ascendant comes
// from the table and is fixed to house 1.
func Assemble(longitudes map[Body]float64, table HouseTable) ([]Placement, error) {
	if err := table.Cusps.Validate(); err != nil {
		return nil, err
	}

	placements := make([]Placement, 0, len(ChartOrder()))

	ascPos, err := Decompose(Normalize(table.Ascendant))
	if err != nil {
		return nil, fmt.Errorf("ascendant: %w", err)
	}
	placements = append(placements, Placement{
		Body:      Ascendant,
		Longitude: Normalize(table.Ascendant),
		Position:  ascPos,
		House:     1,
	})

	for _, body := range Bodies() {
		raw, ok := longitudes[body]
		if !ok {
			return nil, fmt.Errorf("missing longitude for %s", body)
		}
		lon := Normalize(raw)

		pos, err := Decompose(lon)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", body, err)
		}

		house, err := ClassifyHouse(table.Cusps, lon)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", body, err)
		}

		placements = append(placements, Placement{
			Body:      body,
			Longitude: lon,
			Position:  pos,
			House:     house,
		})
	}

	return placements, nil
}

// ComputeChart calculates the placements and house table for a UTC moment
// at the given coordinates. Nothing is cached between calls.
func ComputeChart(ctx context.Context, eph Ephemeris, moment time.Time, lat, lon float64, system HouseSystem) ([]Placement, HouseTable, error) {
	table, err := eph.Houses(ctx, moment, lat, lon, system)
	if err != nil {
		return nil, HouseTable{}, fmt.Errorf("compute houses: %w", err)
	}

	longitudes := make(map[Body]float64, len(Bodies()))
	for _, body := range Bodies() {
		l, err := eph.Longitude(ctx, moment, body)
		if err != nil {
			return nil, HouseTable{}, fmt.Errorf("compute %s longitude: %w", body, err)
		}
		longitudes[body] = l
	}

	placements, err := Assemble(longitudes, table)
	if err != nil {
		return nil, HouseTable{}, err
	}
	return placements, table, nil
}
