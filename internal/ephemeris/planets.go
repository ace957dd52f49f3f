package ephemeris

import (
	"fmt"
	"math"

	"github.com/zapponejosh/natal-api/internal/astro"
)

// orbit holds the osculating elements of a body for a given day number.
// Angles are in degrees, a in AU (Earth radii for the Moon).
type orbit struct {
	N, i, w, a, e, M float64
}

// elements returns the orbital elements of body at day number d, referred to
// the ecliptic and equinox of date.
func elements(body astro.Body, d float64) (orbit, error) {
	switch body {
	case astro.Sun:
		return orbit{0, 0, 282.9404 + 4.70935e-5*d, 1, 0.016709 - 1.151e-9*d, 356.0470 + 0.9856002585*d}, nil
	case astro.Moon:
		return orbit{125.1228 - 0.0529538083*d, 5.1454, 318.0634 + 0.1643573223*d, 60.2666, 0.054900, 115.3654 + 13.0649929509*d}, nil
	case astro.Mercury:
		return orbit{48.3313 + 3.24587e-5*d, 7.0047 + 5.00e-8*d, 29.1241 + 1.01444e-5*d, 0.387098, 0.205635 + 5.59e-10*d, 168.6562 + 4.0923344368*d}, nil
	case astro.Venus:
		return orbit{76.6799 + 2.46590e-5*d, 3.3946 + 2.75e-8*d, 54.8910 + 1.38374e-5*d, 0.723330, 0.006773 - 1.302e-9*d, 48.0052 + 1.6021302244*d}, nil
	case astro.Mars:
		return orbit{49.5574 + 2.11081e-5*d, 1.8497 - 1.78e-8*d, 286.5016 + 2.92961e-5*d, 1.523688, 0.093405 + 2.516e-9*d, 18.6021 + 0.5240207766*d}, nil
	case astro.Jupiter:
		return orbit{100.4542 + 2.76854e-5*d, 1.3030 - 1.557e-7*d, 273.8777 + 1.64505e-5*d, 5.20256, 0.048498 + 4.469e-9*d, 19.8950 + 0.0830853001*d}, nil
	case astro.Saturn:
		return orbit{113.6634 + 2.38980e-5*d, 2.4886 - 1.081e-7*d, 339.3939 + 2.97661e-5*d, 9.55475, 0.055546 - 9.499e-9*d, 316.9670 + 0.0334442282*d}, nil
	case astro.Uranus:
		return orbit{74.0005 + 1.3978e-5*d, 0.7733 + 1.9e-8*d, 96.6612 + 3.0565e-5*d, 19.18171 - 1.55e-8*d, 0.047318 + 7.45e-9*d, 142.5905 + 0.011725806*d}, nil
	case astro.Neptune:
		return orbit{131.7806 + 3.0173e-5*d, 1.7700 - 2.55e-7*d, 272.8461 - 6.027e-6*d, 30.05826 + 3.313e-8*d, 0.008606 + 2.15e-9*d, 260.2471 + 0.005995147*d}, nil
	}
	return orbit{}, fmt.Errorf("no orbital elements for %s", body)
}

// eccentricAnomaly solves Kepler's equation for E (degrees).
func eccentricAnomaly(M, e float64) float64 {
	M = rev(M)
	E := M + e*rad2deg*sind(M)*(1+e*cosd(M))
	for iter := 0; iter < 30; iter++ {
		next := E - (E-e*rad2deg*sind(E)-M)/(1-e*cosd(E))
		if math.Abs(next-E) < 1e-9 {
			return next
		}
		E = next
	}
	return E
}

// orbitalPosition returns ecliptic rectangular coordinates in the body's
// reference frame (heliocentric for planets, geocentric for the Moon).
func orbitalPosition(o orbit) (x, y, z float64) {
	E := eccentricAnomaly(o.M, o.e)
	xv := o.a * (cosd(E) - o.e)
	yv := o.a * math.Sqrt(1-o.e*o.e) * sind(E)

	v := atan2d(yv, xv)
	r := math.Hypot(xv, yv)

	vw := v + o.w
	x = r * (cosd(o.N)*cosd(vw) - sind(o.N)*sind(vw)*cosd(o.i))
	y = r * (sind(o.N)*cosd(vw) + cosd(o.N)*sind(vw)*cosd(o.i))
	z = r * sind(vw) * sind(o.i)
	return x, y, z
}

// sunPosition returns the Sun's geocentric ecliptic longitude and distance.
func sunPosition(d float64) (lon, r float64) {
	s, _ := elements(astro.Sun, d)
	E := eccentricAnomaly(s.M, s.e)
	xv := cosd(E) - s.e
	yv := math.Sqrt(1-s.e*s.e) * sind(E)
	v := atan2d(yv, xv)
	return rev(v + s.w), math.Hypot(xv, yv)
}

// moonLongitude returns the Moon's geocentric ecliptic longitude including
// the largest periodic perturbations.
func moonLongitude(d float64) float64 {
	m, _ := elements(astro.Moon, d)
	s, _ := elements(astro.Sun, d)

	x, y, _ := orbitalPosition(m)
	lon := atan2d(y, x)

	Ms := rev(s.M)
	Mm := rev(m.M)
	Ls := Ms + s.w
	Lm := Mm + m.w + m.N
	D := Lm - Ls
	F := Lm - m.N

	lon += -1.274*sind(Mm-2*D) +
		0.658*sind(2*D) -
		0.186*sind(Ms) -
		0.059*sind(2*Mm-2*D) -
		0.057*sind(Mm-2*D+Ms) +
		0.053*sind(Mm+2*D) +
		0.046*sind(2*D-Ms) +
		0.041*sind(Mm-Ms) -
		0.035*sind(D) -
		0.031*sind(Mm+Ms) -
		0.015*sind(2*F-2*D) +
		0.011*sind(Mm-4*D)

	return rev(lon)
}

// meanNode returns the longitude of the Moon's mean ascending node.
func meanNode(d float64) float64 {
	m, _ := elements(astro.Moon, d)
	return rev(m.N)
}

// plutoHeliocentric returns Pluto's heliocentric ecliptic coordinates,
// rotated from J2000 to the equinox of date.
func plutoHeliocentric(d float64) (x, y, z float64) {
	S := 50.03 + 0.033459652*d
	P := 238.95 + 0.003968789*d

	lon := 238.9508 + 0.00400703*d -
		19.799*sind(P) + 19.848*cosd(P) +
		0.897*sind(2*P) - 4.956*cosd(2*P) +
		0.610*sind(3*P) + 1.211*cosd(3*P) -
		0.341*sind(4*P) - 0.190*cosd(4*P) +
		0.128*sind(5*P) - 0.034*cosd(5*P) -
		0.038*sind(6*P) + 0.031*cosd(6*P) +
		0.020*sind(S-P) - 0.010*cosd(S-P)

	lat := -3.9082 -
		5.453*sind(P) - 14.975*cosd(P) +
		3.527*sind(2*P) + 1.673*cosd(2*P) -
		1.051*sind(3*P) + 0.328*cosd(3*P) +
		0.179*sind(4*P) - 0.292*cosd(4*P) +
		0.019*sind(5*P) + 0.100*cosd(5*P) -
		0.031*sind(6*P) - 0.026*cosd(6*P) +
		0.011*cosd(S-P)

	r := 40.72 +
		6.68*sind(P) + 6.90*cosd(P) -
		1.18*sind(2*P) - 0.03*cosd(2*P) +
		0.15*sind(3*P) - 0.14*cosd(3*P)

	// Precession from J2000 to the date.
	lon += 3.82394e-5 * (d - (J2000 - elementsEpochJD))

	x = r * cosd(lon) * cosd(lat)
	y = r * sind(lon) * cosd(lat)
	z = r * sind(lat)
	return x, y, z
}

// perturbation returns the longitude correction for the gas giants caused by
// their mutual attraction.
func perturbation(body astro.Body, d float64) float64 {
	j, _ := elements(astro.Jupiter, d)
	s, _ := elements(astro.Saturn, d)
	u, _ := elements(astro.Uranus, d)
	Mj, Ms, Mu := rev(j.M), rev(s.M), rev(u.M)

	switch body {
	case astro.Jupiter:
		return -0.332*sind(2*Mj-5*Ms-67.6) -
			0.056*sind(2*Mj-2*Ms+21) +
			0.042*sind(3*Mj-5*Ms+21) -
			0.036*sind(Mj-2*Ms) +
			0.022*cosd(Mj-Ms) +
			0.023*sind(2*Mj-3*Ms+52) -
			0.016*sind(Mj-5*Ms-69)
	case astro.Saturn:
		return 0.812*sind(2*Mj-5*Ms-67.6) -
			0.229*cosd(2*Mj-4*Ms-2) +
			0.119*sind(Mj-2*Ms-3) +
			0.046*sind(2*Mj-6*Ms-69) +
			0.014*sind(Mj-3*Ms+32)
	case astro.Uranus:
		return 0.040*sind(Ms-2*Mu+6) +
			0.035*sind(Ms-3*Mu+33) -
			0.015*sind(Mj-Mu+20)
	}
	return 0
}

// planetLongitude returns the geocentric ecliptic longitude of a planet.
func planetLongitude(body astro.Body, d float64) (float64, error) {
	var xh, yh, zh float64
	if body == astro.Pluto {
		xh, yh, zh = plutoHeliocentric(d)
	} else {
		o, err := elements(body, d)
		if err != nil {
			return 0, err
		}
		xh, yh, zh = orbitalPosition(o)
	}

	if dl := perturbation(body, d); dl != 0 {
		// Apply the longitude correction in the heliocentric frame.
		r := math.Sqrt(xh*xh + yh*yh + zh*zh)
		lon := atan2d(yh, xh) + dl
		lat := asind(zh / r)
		xh = r * cosd(lon) * cosd(lat)
		yh = r * sind(lon) * cosd(lat)
	}

	sunLon, sunR := sunPosition(d)
	xg := xh + sunR*cosd(sunLon)
	yg := yh + sunR*sind(sunLon)

	return rev(atan2d(yg, xg)), nil
}
