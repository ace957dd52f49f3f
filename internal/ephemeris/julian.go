// Package ephemeris computes geocentric ecliptic longitudes of the Sun, Moon
// and planets, and house cusps for a moment and place.
//
// Positions follow the low-precision orbital-element method (accuracy of a
// few arcminutes for 1800–2100), which is ample for whole-degree charts.
package ephemeris

import (
	"math"
	"time"
)

const (
	// unixEpochJD is the Julian Day of 1970-01-01T00:00:00Z.
	unixEpochJD = 2440587.5

	// J2000 is the Julian Day of 2000-01-01T12:00:00 TT (used as UT here).
	J2000 = 2451545.0

	// elementsEpochJD is 2000 Jan 0.0 UT, day zero of the orbital elements.
	elementsEpochJD = 2451543.5

	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

// JulianDay converts an instant to a Julian Day number (UT).
func JulianDay(t time.Time) float64 {
	secs := float64(t.Unix()) + float64(t.Nanosecond())/1e9
	return secs/86400 + unixEpochJD
}

// dayNumber returns days since 2000 Jan 0.0 UT.
func dayNumber(jd float64) float64 {
	return jd - elementsEpochJD
}

// obliquity returns the obliquity of the ecliptic in degrees.
func obliquity(d float64) float64 {
	return 23.4393 - 3.563e-7*d
}

// greenwichSidereal returns Greenwich mean sidereal time in degrees.
func greenwichSidereal(jd float64) float64 {
	t := (jd - J2000) / 36525
	gmst := 280.46061837 + 360.98564736629*(jd-J2000) + 0.000387933*t*t - t*t*t/38710000
	return rev(gmst)
}

// rev reduces an angle to [0, 360).
func rev(x float64) float64 {
	r := math.Mod(x, 360)
	if r < 0 {
		r += 360
	}
	if r >= 360 {
		r = 0
	}
	return r
}

func sind(x float64) float64 { return math.Sin(x * deg2rad) }
func cosd(x float64) float64 { return math.Cos(x * deg2rad) }
func tand(x float64) float64 { return math.Tan(x * deg2rad) }

func atan2d(y, x float64) float64 { return math.Atan2(y, x) * rad2deg }
func asind(x float64) float64     { return math.Asin(x) * rad2deg }
func acosd(x float64) float64     { return math.Acos(x) * rad2deg }
