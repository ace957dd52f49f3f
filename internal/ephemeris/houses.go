package ephemeris

import (
	"errors"
	"math"

	"github.com/zapponejosh/natal-api/internal/astro"
)

// errCircumpolar means a Placidus cusp has no semi-arc at this latitude.
var errCircumpolar = errors.New("placidus undefined: ecliptic point is circumpolar")

// angles holds the chart angles for a sidereal moment and place.
type angles struct {
	ramc float64 // right ascension of the midheaven
	eps  float64 // obliquity
	lat  float64
	asc  float64
	mc   float64
}

func computeAngles(jd, lat, lon float64) angles {
	eps := obliquity(dayNumber(jd))
	ramc := rev(greenwichSidereal(jd) + lon)
	asc := ascendant(ramc, lat, eps)
	mc := midheaven(ramc, eps)

	// Inside the polar circles the horizon formula can return the descending
	// point; keep the Ascendant east of the Midheaven.
	if rev(asc-mc) >= 180 {
		asc = rev(asc + 180)
	}

	return angles{ramc: ramc, eps: eps, lat: lat, asc: asc, mc: mc}
}

// ascendant returns the ecliptic longitude rising on the eastern horizon.
func ascendant(ramc, lat, eps float64) float64 {
	return rev(atan2d(cosd(ramc), -(sind(ramc)*cosd(eps) + tand(lat)*sind(eps))))
}

// midheaven returns the ecliptic longitude culminating on the meridian.
func midheaven(ramc, eps float64) float64 {
	return rev(atan2d(sind(ramc), cosd(ramc)*cosd(eps)))
}

// eclipticFromRA returns the ecliptic longitude whose right ascension is ra.
func eclipticFromRA(ra, eps float64) float64 {
	return rev(atan2d(sind(ra), cosd(ra)*cosd(eps)))
}

// placidusCusp solves for the ecliptic point whose right ascension is
// ramc + base + f·SDA, where SDA is the point's own semi-diurnal arc.
func placidusCusp(a angles, base, f float64) (float64, error) {
	lambda := eclipticFromRA(a.ramc+base+f*90, a.eps)

	for iter := 0; iter < 100; iter++ {
		decl := asind(sind(a.eps) * sind(lambda))
		x := -tand(a.lat) * tand(decl)
		if x < -1 || x > 1 {
			return 0, errCircumpolar
		}
		sda := acosd(x)

		next := eclipticFromRA(a.ramc+base+f*sda, a.eps)
		diff := math.Abs(next - lambda)
		lambda = next
		if diff < 1e-9 || 360-diff < 1e-9 {
			break
		}
	}
	return lambda, nil
}

func placidus(a angles) (astro.Cusps, error) {
	var c astro.Cusps
	c[0] = a.asc
	c[9] = a.mc

	var err error
	// Houses 11 and 12 trisect the diurnal semi-arc, houses 2 and 3 the
	// nocturnal one: ramc + 180 - k/3·(180 - SDA).
	if c[10], err = placidusCusp(a, 0, 1.0/3); err != nil {
		return c, err
	}
	if c[11], err = placidusCusp(a, 0, 2.0/3); err != nil {
		return c, err
	}
	if c[1], err = placidusCusp(a, 60, 2.0/3); err != nil {
		return c, err
	}
	if c[2], err = placidusCusp(a, 120, 1.0/3); err != nil {
		return c, err
	}

	fillOpposites(&c)
	return c, nil
}

func porphyry(a angles) astro.Cusps {
	var c astro.Cusps
	ic := rev(a.mc + 180)

	upper := rev(a.asc - a.mc)
	lower := rev(ic - a.asc)

	c[9] = a.mc
	c[10] = rev(a.mc + upper/3)
	c[11] = rev(a.mc + 2*upper/3)
	c[0] = a.asc
	c[1] = rev(a.asc + lower/3)
	c[2] = rev(a.asc + 2*lower/3)

	fillOpposites(&c)
	return c
}

func equal(a angles) astro.Cusps {
	var c astro.Cusps
	for i := range c {
		c[i] = rev(a.asc + float64(30*i))
	}
	return c
}

func wholeSign(a angles) astro.Cusps {
	var c astro.Cusps
	start := math.Floor(a.asc/30) * 30
	for i := range c {
		c[i] = rev(start + float64(30*i))
	}
	return c
}

// fillOpposites sets houses 4–9 opposite houses 10–3.
func fillOpposites(c *astro.Cusps) {
	for i := 0; i < 3; i++ {
		c[i+3] = rev(c[i+9] + 180)
		c[i+6] = rev(c[i] + 180)
	}
}
