// Package astro provides the zodiac, house and chart primitives.
package astro

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Sign is one of the twelve 30° zodiac segments.
type Sign string

const (
	Aries       Sign = "Aries"
	Taurus      Sign = "Taurus"
	Gemini      Sign = "Gemini"
	Cancer      Sign = "Cancer"
	Leo         Sign = "Leo"
	Virgo       Sign = "Virgo"
	Libra       Sign = "Libra"
	Scorpio     Sign = "Scorpio"
	Sagittarius Sign = "Sagittarius"
	Capricorn   Sign = "Capricorn"
	Aquarius    Sign = "Aquarius"
	Pisces      Sign = "Pisces"
)

// Signs returns the zodiac in canonical order (Aries=0 … Pisces=11).
func Signs() []Sign {
	return []Sign{
		Aries, Taurus, Gemini, Cancer, Leo, Virgo,
		Libra, Scorpio, Sagittarius, Capricorn, Aquarius, Pisces,
	}
}

// Index returns the canonical position of s, or -1 if s is not a sign.
func (s Sign) Index() int {
	for i, valid := range Signs() {
		if s == valid {
			return i
		}
	}
	return -1
}

// IsValid checks if a sign is one of the twelve zodiac names.
func (s Sign) IsValid() bool {
	return s.Index() >= 0
}

// Lower returns the lowercase name, as used in asset paths.
func (s Sign) Lower() string {
	return strings.ToLower(string(s))
}

// Symbol returns the Unicode glyph for the sign.
func (s Sign) Symbol() string {
	symbols := map[Sign]string{
		Aries: "♈", Taurus: "♉", Gemini: "♊", Cancer: "♋",
		Leo: "♌", Virgo: "♍", Libra: "♎", Scorpio: "♏",
		Sagittarius: "♐", Capricorn: "♑", Aquarius: "♒", Pisces: "♓",
	}
	return symbols[s]
}

// ParseSign resolves a sign name case-insensitively ("leo", " LEO ").
func ParseSign(name string) (Sign, error) {
	clean := strings.TrimSpace(name)
	for _, s := range Signs() {
		if strings.EqualFold(clean, string(s)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown zodiac sign %q", name)
}

// ErrLongitudeOutOfRange is returned when a longitude is outside [0, 360).
var ErrLongitudeOutOfRange = errors.New("longitude out of range [0, 360)")

// Position is a longitude broken down into sign and in-sign degree.
type Position struct {
	Sign         Sign    `json:"sign"`
	SignIndex    int     `json:"sign_index"`
	DegreeInSign float64 `json:"degree_in_sign"`
	// Degree is the display degree, floor(DegreeInSign)+1, in [1, 30].
	Degree int `json:"degree_int"`
}

// Normalize reduces any finite angle to [0, 360).
func Normalize(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	// math.Mod of a tiny negative value can round up to exactly 360.
	if d >= 360 {
		d = 0
	}
	return d
}

// Decompose converts an ecliptic longitude in [0, 360) into its sign and
// degree. The display degree uses the floor+1 convention: 0.0 → 1, 29.99 → 30,
// and an exact integer degree n maps to n+1.
func Decompose(longitude float64) (Position, error) {
	if math.IsNaN(longitude) || longitude < 0 || longitude >= 360 {
		return Position{}, fmt.Errorf("decompose %v: %w", longitude, ErrLongitudeOutOfRange)
	}

	idx := int(longitude / 30)
	inSign := math.Mod(longitude, 30)

	return Position{
		Sign:         Signs()[idx],
		SignIndex:    idx,
		DegreeInSign: inSign,
		Degree:       int(math.Floor(inSign)) + 1,
	}, nil
}

// DegreeRef addresses a single display degree of a sign.
type DegreeRef struct {
	Sign   Sign `json:"sign"`
	Degree int  `json:"degree"`
}

// ValidDegree reports whether d is a display degree (1–30).
func ValidDegree(d int) bool {
	return d >= 1 && d <= 30
}

// Next returns the following degree, rolling 30 over into the next sign.
func (r DegreeRef) Next() DegreeRef {
	if r.Degree >= 30 {
		return DegreeRef{Sign: Signs()[(r.Sign.Index()+1)%12], Degree: 1}
	}
	return DegreeRef{Sign: r.Sign, Degree: r.Degree + 1}
}

// Prev returns the preceding degree, rolling 1 back into the previous sign.
func (r DegreeRef) Prev() DegreeRef {
	if r.Degree <= 1 {
		return DegreeRef{Sign: Signs()[(r.Sign.Index()+11)%12], Degree: 30}
	}
	return DegreeRef{Sign: r.Sign, Degree: r.Degree - 1}
}
