package database

import (
	"time"

	"github.com/zapponejosh/natal-api/internal/calendar"
)

// Profile is a stored person whose chart can be recomputed on demand.
// Only birth inputs and the geocoded coordinates are persisted.
type Profile struct {
	ID         int64               `json:"id"`
	Name       string              `json:"name"`
	City       string              `json:"city"`
	BirthDate  string              `json:"birth_date"`
	DateFormat calendar.DateFormat `json:"date_format"`
	BirthTime  string              `json:"birth_time"`
	Timezone   string              `json:"timezone"`
	Latitude   float64             `json:"latitude"`
	Longitude  float64             `json:"longitude"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// BirthMoment resolves the stored birth inputs to a UTC instant. Legacy rows
// fail here until NormalizeLegacyDates has tagged them.
func (p Profile) BirthMoment() (time.Time, error) {
	date, err := calendar.ParseDate(p.BirthDate, p.DateFormat)
	if err != nil {
		return time.Time{}, err
	}
	clock, err := calendar.ParseTime(p.BirthTime)
	if err != nil {
		return time.Time{}, err
	}
	zone, err := calendar.LoadZone(p.Timezone)
	if err != nil {
		return time.Time{}, err
	}
	return calendar.BirthMoment(date, clock, zone)
}

// LegacyDateReport summarizes a NormalizeLegacyDates run.
type LegacyDateReport struct {
	Converted  int              `json:"converted"`
	Unresolved []UnresolvedDate `json:"unresolved"`
}

// UnresolvedDate is a legacy row whose birth date could not be interpreted.
type UnresolvedDate struct {
	ProfileID int64  `json:"profile_id"`
	BirthDate string `json:"birth_date"`
	Reason    string `json:"reason"`
}
