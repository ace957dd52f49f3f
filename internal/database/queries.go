package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zapponejosh/natal-api/internal/calendar"
)

// =============================================================================
// Helper Functions
// =============================================================================

// parseTimestamp parses a timestamp from SQLite TEXT format.
// Tries multiple formats and returns nil if parsing fails.
func parseTimestamp(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}

	t, err := time.Parse(time.RFC3339, ns.String)
	if err == nil {
		return &t
	}

	t, err = time.Parse("2006-01-02 15:04:05", ns.String)
	if err == nil {
		return &t
	}

	t, err = time.Parse("2006-01-02T15:04:05.999999", ns.String)
	if err == nil {
		return &t
	}

	return nil
}

// execer is satisfied by both *DB and *Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// normalizeBirth validates the birth inputs and rewrites the date to ISO.
// An empty format means the date is already ISO; legacy is never accepted
// for writes.
func normalizeBirth(p *Profile) error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(p.City) == "" {
		return errors.New("city is required")
	}

	format := p.DateFormat
	if format == "" {
		format = calendar.DateFormatISO
	}
	date, err := calendar.ParseDate(p.BirthDate, format)
	if err != nil {
		return err
	}
	clock, err := calendar.ParseTime(p.BirthTime)
	if err != nil {
		return err
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	zone, err := calendar.LoadZone(p.Timezone)
	if err != nil {
		return err
	}
	if _, err := calendar.BirthMoment(date, clock, zone); err != nil {
		return err
	}
	if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("coordinates out of range: lat=%v lon=%v", p.Latitude, p.Longitude)
	}

	p.BirthDate = date.String()
	p.DateFormat = calendar.DateFormatISO
	p.BirthTime = clock.String()
	return nil
}

const profileColumns = `
	id, name, city, birth_date, date_format, birth_time, timezone,
	latitude, longitude, created_at, updated_at`

func scanProfile(s rowScanner) (*Profile, error) {
	var p Profile
	var format string
	var createdAtStr, updatedAtStr sql.NullString

	err := s.Scan(
		&p.ID,
		&p.Name,
		&p.City,
		&p.BirthDate,
		&format,
		&p.BirthTime,
		&p.Timezone,
		&p.Latitude,
		&p.Longitude,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	p.DateFormat = calendar.DateFormat(format)
	if t := parseTimestamp(createdAtStr); t != nil {
		p.CreatedAt = *t
	}
	if t := parseTimestamp(updatedAtStr); t != nil {
		p.UpdatedAt = *t
	}
	return &p, nil
}

// =============================================================================
// Profile Queries
// =============================================================================

func insertProfile(ctx context.Context, ex execer, p *Profile) error {
	if err := normalizeBirth(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}

	now := time.Now().UTC()
	result, err := ex.ExecContext(ctx, `
		INSERT INTO users (
			name, city, birth_date, date_format, birth_time, timezone,
			latitude, longitude, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.Name, p.City, p.BirthDate, string(p.DateFormat), p.BirthTime, p.Timezone,
		p.Latitude, p.Longitude, now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get profile id: %w", err)
	}

	p.ID = id
	p.CreatedAt = now.Truncate(time.Second)
	p.UpdatedAt = p.CreatedAt
	return nil
}

// CreateProfile stores a new profile and sets its ID and timestamps.
// The birth date is validated against its format and stored as ISO.
func (db *DB) CreateProfile(ctx context.Context, p *Profile) error {
	return insertProfile(ctx, db, p)
}

// InsertProfile is CreateProfile within a transaction.
func (tx *Tx) InsertProfile(ctx context.Context, p *Profile) error {
	return insertProfile(ctx, tx, p)
}

// GetProfile retrieves a profile by ID.
// Returns ErrNotFound if it doesn't exist.
func (db *DB) GetProfile(ctx context.Context, id int64) (*Profile, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM users WHERE id = ?", id)

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return p, nil
}

// ListProfiles returns all profiles ordered by name.
func (db *DB) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+profileColumns+" FROM users ORDER BY name COLLATE NOCASE ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	profiles := []Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile row: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}

	return profiles, nil
}

// UpdateProfile overwrites every editable field of an existing profile.
// Returns ErrNotFound if it doesn't exist.
func (db *DB) UpdateProfile(ctx context.Context, p *Profile) error {
	if err := normalizeBirth(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}

	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, `
		UPDATE users SET
			name = ?, city = ?, birth_date = ?, date_format = ?, birth_time = ?,
			timezone = ?, latitude = ?, longitude = ?, updated_at = ?
		WHERE id = ?
	`,
		p.Name, p.City, p.BirthDate, string(p.DateFormat), p.BirthTime,
		p.Timezone, p.Latitude, p.Longitude, now.Format(time.RFC3339),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	p.UpdatedAt = now.Truncate(time.Second)
	return nil
}

// DeleteProfile removes a profile by ID.
// Returns ErrNotFound if it doesn't exist.
func (db *DB) DeleteProfile(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// CountProfiles returns the number of stored profiles.
func (db *DB) CountProfiles(ctx context.Context) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return count, nil
}

// =============================================================================
// Legacy Date Migration
// =============================================================================

// NormalizeLegacyDates rewrites every birth date tagged 'legacy' to ISO.
//
// The layout of each legacy value is decided once here by its separator.
// Rows whose layout or value cannot be resolved are reported and left
// untouched; the rest are converted in a single transaction.
func (db *DB) NormalizeLegacyDates(ctx context.Context) (*LegacyDateReport, error) {
	report := &LegacyDateReport{Unresolved: []UnresolvedDate{}}

	err := db.WithTx(ctx, func(tx *Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT id, birth_date FROM users WHERE date_format = ? ORDER BY id",
			string(calendar.DateFormatLegacy))
		if err != nil {
			return fmt.Errorf("query legacy dates: %w", err)
		}

		type legacyRow struct {
			id   int64
			date string
		}
		var pending []legacyRow
		for rows.Next() {
			var r legacyRow
			if err := rows.Scan(&r.id, &r.date); err != nil {
				rows.Close()
				return fmt.Errorf("scan legacy row: %w", err)
			}
			pending = append(pending, r)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterate legacy rows: %w", err)
		}
		rows.Close()

		now := time.Now().UTC().Format(time.RFC3339)
		for _, r := range pending {
			date, err := resolveLegacyDate(r.date)
			if err != nil {
				report.Unresolved = append(report.Unresolved, UnresolvedDate{
					ProfileID: r.id,
					BirthDate: r.date,
					Reason:    err.Error(),
				})
				continue
			}

			_, err = tx.ExecContext(ctx,
				"UPDATE users SET birth_date = ?, date_format = ?, updated_at = ? WHERE id = ?",
				date.String(), string(calendar.DateFormatISO), now, r.id)
			if err != nil {
				return fmt.Errorf("update legacy row %d: %w", r.id, err)
			}
			report.Converted++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	db.logger.Info("legacy dates normalized",
		slog.Int("converted", report.Converted),
		slog.Int("unresolved", len(report.Unresolved)),
	)
	return report, nil
}

func resolveLegacyDate(s string) (calendar.Date, error) {
	format, err := calendar.DetectLegacyFormat(s)
	if err != nil {
		return calendar.Date{}, err
	}
	return calendar.ParseDate(s, format)
}
