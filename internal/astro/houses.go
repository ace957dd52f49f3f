package astro

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Cusps holds the start longitudes of houses 1–12. Index i is the start of
// house i+1 and its end is the start of the next house, wrapping after 12.
type Cusps [12]float64

// ErrMalformedCuspTable indicates a cusp table whose spans do not partition
// the circle. It always points at an upstream ephemeris problem.
var ErrMalformedCuspTable = errors.New("malformed cusp table")

// MalformedCuspTableError describes why a cusp table was rejected.
type MalformedCuspTableError struct {
	Cusps     Cusps
	Longitude float64 // set when classification found no house
	Reason    string
}

func (e *MalformedCuspTableError) Error() string {
	return fmt.Sprintf("malformed cusp table %v: %s", e.Cusps, e.Reason)
}

func (e *MalformedCuspTableError) Unwrap() error {
	return ErrMalformedCuspTable
}

// spanEpsilon absorbs floating point drift when summing the twelve spans.
const spanEpsilon = 1e-6

// Span returns the circular width of house n (1–12) in degrees.
func (c Cusps) Span(house int) float64 {
	start := c[house-1]
	end := c[house%12]
	return Normalize(end - start)
}

// Validate checks that every cusp is in range and that the twelve circular
// spans are positive and cover the circle exactly once.
func (c Cusps) Validate() error {
	total := 0.0
	for i, cusp := range c {
		if math.IsNaN(cusp) || cusp < 0 || cusp >= 360 {
			return &MalformedCuspTableError{Cusps: c, Reason: fmt.Sprintf("cusp %d = %v out of range", i+1, cusp)}
		}
	}
	for house := 1; house <= 12; house++ {
		span := c.Span(house)
		if span <= 0 {
			return &MalformedCuspTableError{Cusps: c, Reason: fmt.Sprintf("house %d has empty span", house)}
		}
		total += span
	}
	if math.Abs(total-360) > spanEpsilon {
		return &MalformedCuspTableError{Cusps: c, Reason: fmt.Sprintf("spans total %.6f°, want 360°", total)}
	}
	return nil
}

// Contains reports whether house n's half-open span [start, end) holds the
// longitude, treating a span whose end is not above its start as wrapping
// through 0°.
func (c Cusps) Contains(house int, longitude float64) bool {
	start := c[house-1]
	end := c[house%12]
	if start < end {
		return start <= longitude && longitude < end
	}
	return longitude >= start || longitude < end
}

// ClassifyHouse returns the 1-based house whose span contains longitude.
//
// A longitude equal to a cusp belongs to the house that cusp starts. A table
// that fails Validate, or one where no house matches, yields a
// *MalformedCuspTableError; there is no fallback house.
func ClassifyHouse(cusps Cusps, longitude float64) (int, error) {
	if math.IsNaN(longitude) || longitude < 0 || longitude >= 360 {
		return 0, fmt.Errorf("classify %v: %w", longitude, ErrLongitudeOutOfRange)
	}
	if err := cusps.Validate(); err != nil {
		return 0, err
	}

	for house := 1; house <= 12; house++ {
		if cusps.Contains(house, longitude) {
			return house, nil
		}
	}

	return 0, &MalformedCuspTableError{
		Cusps:     cusps,
		Longitude: longitude,
		Reason:    fmt.Sprintf("no house contains %.6f°", longitude),
	}
}

// HouseSystem names the method used to divide the chart into houses.
type HouseSystem string

const (
	HouseSystemPlacidus  HouseSystem = "placidus"
	HouseSystemPorphyry  HouseSystem = "porphyry"
	HouseSystemEqual     HouseSystem = "equal"
	HouseSystemWholeSign HouseSystem = "whole-sign"
)

// ValidHouseSystems returns all supported house systems.
func ValidHouseSystems() []HouseSystem {
	return []HouseSystem{
		HouseSystemPlacidus,
		HouseSystemPorphyry,
		HouseSystemEqual,
		HouseSystemWholeSign,
	}
}

// IsValid checks if a house system is supported.
func (hs HouseSystem) IsValid() bool {
	for _, valid := range ValidHouseSystems() {
		if hs == valid {
			return true
		}
	}
	return false
}

// ErrUnknownHouseSystem is returned for an unsupported house system name.
var ErrUnknownHouseSystem = errors.New("unknown house system")

// ParseHouseSystem resolves a house system name; empty means Placidus.
func ParseHouseSystem(name string) (HouseSystem, error) {
	if strings.TrimSpace(name) == "" {
		return HouseSystemPlacidus, nil
	}
	hs := HouseSystem(strings.ToLower(strings.TrimSpace(name)))
	if !hs.IsValid() {
		return "", fmt.Errorf("%w %q", ErrUnknownHouseSystem, name)
	}
	return hs, nil
}
