package database

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/zapponejosh/natal-api/internal/calendar"
)

// testDB creates a temporary in-memory database for testing.
func testDB(t *testing.T) *DB {
	t.Helper()

	cfg := Config{
		Path:            ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	}

	// Quiet logger for tests
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	db, err := Open(cfg, logger)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	ctx := context.Background()
	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func sampleProfile() *Profile {
	return &Profile{
		Name:       "Dana",
		City:       "Tel Aviv",
		BirthDate:  "1990-05-15",
		DateFormat: calendar.DateFormatISO,
		BirthTime:  "10:30",
		Timezone:   "Asia/Jerusalem",
		Latitude:   32.0853,
		Longitude:  34.7818,
	}
}

// insertLegacyRow writes a row the way the first deployment did.
func insertLegacyRow(t *testing.T, db *DB, name, date string) int64 {
	t.Helper()

	result, err := db.ExecContext(context.Background(), `
		INSERT INTO users (name, city, birth_date, birth_time, latitude, longitude, date_format)
		VALUES (?, 'Haifa', ?, '08:00', 32.79, 34.98, 'legacy')
	`, name, date)
	if err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}
	id, _ := result.LastInsertId()
	return id
}

// -----------------------------------------------------------------
// DB tests
// -----------------------------------------------------------------

func TestOpen(t *testing.T) {
	db := testDB(t)

	if err := db.Health(context.Background()); err != nil {
		t.Errorf("Health() error = %v", err)
	}
}

func TestMigrate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// Running again should be a no-op
	count, err := db.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Migrate() count = %d, want 0 (already applied)", count)
	}
}

func TestHealth_Unmigrated(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	db, err := Open(DefaultConfig(":memory:"), logger)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	if v, err := db.SchemaVersion(ctx); err != nil || v != 0 {
		t.Fatalf("SchemaVersion() = %d, %v, want 0", v, err)
	}
	if err := db.Health(ctx); !errors.Is(err, ErrSchemaOutdated) {
		t.Fatalf("Health() before Migrate error = %v, want ErrSchemaOutdated", err)
	}

	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if v, _ := db.SchemaVersion(ctx); v != latestVersion() {
		t.Errorf("SchemaVersion() = %d, want %d", v, latestVersion())
	}
	if err := db.Health(ctx); err != nil {
		t.Errorf("Health() after Migrate error = %v", err)
	}
}

func TestMigrate_TagsExistingRowsLegacy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	db, err := Open(DefaultConfig(":memory:"), logger)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	// Simulate a database created by the first deployment.
	if _, err := db.ExecContext(ctx, migrationV1Profiles); err != nil {
		t.Fatalf("create v1 schema: %v", err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO users (name, city, birth_date, birth_time, latitude, longitude)
		VALUES ('Old', 'Haifa', '15/05/1990', '08:00', 32.79, 34.98)
	`); err != nil {
		t.Fatalf("insert v1 row: %v", err)
	}

	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	profiles, err := db.ListProfiles(ctx)
	if err != nil {
		t.Fatalf("ListProfiles() error = %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("ListProfiles() returned %d, want 1", len(profiles))
	}
	if profiles[0].DateFormat != calendar.DateFormatLegacy {
		t.Errorf("DateFormat = %q, want legacy", profiles[0].DateFormat)
	}
	if profiles[0].Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", profiles[0].Timezone)
	}
	if profiles[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not backfilled")
	}
}

// -----------------------------------------------------------------
// Profile tests
// -----------------------------------------------------------------

func TestCreateProfile(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p := sampleProfile()
	if err := db.CreateProfile(ctx, p); err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}
	if p.ID == 0 {
		t.Error("CreateProfile() did not set ID")
	}

	got, err := db.GetProfile(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if got.Name != "Dana" || got.City != "Tel Aviv" {
		t.Errorf("GetProfile() = %+v", got)
	}
	if got.BirthDate != "1990-05-15" || got.DateFormat != calendar.DateFormatISO {
		t.Errorf("birth date = %q (%s), want 1990-05-15 (iso-8601)", got.BirthDate, got.DateFormat)
	}
	if got.Timezone != "Asia/Jerusalem" {
		t.Errorf("Timezone = %q", got.Timezone)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestCreateProfile_NormalizesDayMonthYear(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p := sampleProfile()
	p.BirthDate = "03/04/1988"
	p.DateFormat = calendar.DateFormatDayMonthYear
	p.BirthTime = "07:05"
	p.Timezone = ""

	if err := db.CreateProfile(ctx, p); err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}

	got, err := db.GetProfile(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if got.BirthDate != "1988-04-03" {
		t.Errorf("BirthDate = %q, want 1988-04-03", got.BirthDate)
	}
	if got.DateFormat != calendar.DateFormatISO {
		t.Errorf("DateFormat = %q, want iso-8601", got.DateFormat)
	}
	if got.BirthTime != "07:05" {
		t.Errorf("BirthTime = %q, want 07:05", got.BirthTime)
	}
	if got.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", got.Timezone)
	}
}

func TestCreateProfile_Invalid(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(p *Profile)
	}{
		{"missing name", func(p *Profile) { p.Name = " " }},
		{"missing city", func(p *Profile) { p.City = "" }},
		{"bad date", func(p *Profile) { p.BirthDate = "1990-02-30" }},
		{"date does not match format", func(p *Profile) { p.BirthDate = "15/05/1990" }},
		{"legacy format", func(p *Profile) { p.DateFormat = calendar.DateFormatLegacy }},
		{"bad time", func(p *Profile) { p.BirthTime = "25:00" }},
		{"single digit hour", func(p *Profile) { p.BirthTime = "7:05" }},
		{"repeated local hour", func(p *Profile) {
			p.BirthDate = "2021-11-07"
			p.BirthTime = "01:30"
			p.Timezone = "America/New_York"
		}},
		{"bad timezone", func(p *Profile) { p.Timezone = "Nowhere/Land" }},
		{"bad latitude", func(p *Profile) { p.Latitude = 95 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := sampleProfile()
			tt.mutate(p)
			if err := db.CreateProfile(ctx, p); !errors.Is(err, ErrInvalidProfile) {
				t.Errorf("CreateProfile() error = %v, want ErrInvalidProfile", err)
			}
		})
	}

	count, err := db.CountProfiles(ctx)
	if err != nil {
		t.Fatalf("CountProfiles() error = %v", err)
	}
	if count != 0 {
		t.Errorf("CountProfiles() = %d, want 0", count)
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	db := testDB(t)

	_, err := db.GetProfile(context.Background(), 999)
	if !IsNotFound(err) {
		t.Errorf("GetProfile() error = %v, want ErrNotFound", err)
	}
}

func TestListProfiles(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	empty, err := db.ListProfiles(ctx)
	if err != nil {
		t.Fatalf("ListProfiles() error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("ListProfiles() on empty table = %v, want empty slice", empty)
	}

	for _, name := range []string{"zoe", "Amir", "michal"} {
		p := sampleProfile()
		p.Name = name
		if err := db.CreateProfile(ctx, p); err != nil {
			t.Fatalf("CreateProfile(%s) error = %v", name, err)
		}
	}

	profiles, err := db.ListProfiles(ctx)
	if err != nil {
		t.Fatalf("ListProfiles() error = %v", err)
	}
	want := []string{"Amir", "michal", "zoe"}
	if len(profiles) != len(want) {
		t.Fatalf("ListProfiles() returned %d, want %d", len(profiles), len(want))
	}
	for i, name := range want {
		if profiles[i].Name != name {
			t.Errorf("profiles[%d].Name = %q, want %q", i, profiles[i].Name, name)
		}
	}
}

func TestUpdateProfile(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p := sampleProfile()
	if err := db.CreateProfile(ctx, p); err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}

	p.City = "Jerusalem"
	p.Latitude = 31.7683
	p.Longitude = 35.2137
	if err := db.UpdateProfile(ctx, p); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}

	got, err := db.GetProfile(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if got.City != "Jerusalem" || got.Latitude != 31.7683 {
		t.Errorf("UpdateProfile() not persisted: %+v", got)
	}
}

func TestUpdateProfile_NotFound(t *testing.T) {
	db := testDB(t)

	p := sampleProfile()
	p.ID = 42
	if err := db.UpdateProfile(context.Background(), p); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateProfile() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteProfile(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p := sampleProfile()
	if err := db.CreateProfile(ctx, p); err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}

	if err := db.DeleteProfile(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProfile() error = %v", err)
	}
	if _, err := db.GetProfile(ctx, p.ID); !IsNotFound(err) {
		t.Errorf("GetProfile() after delete error = %v, want ErrNotFound", err)
	}
	if err := db.DeleteProfile(ctx, p.ID); !IsNotFound(err) {
		t.Errorf("second DeleteProfile() error = %v, want ErrNotFound", err)
	}
}

func TestProfile_BirthMoment(t *testing.T) {
	p := sampleProfile()

	got, err := p.BirthMoment()
	if err != nil {
		t.Fatalf("BirthMoment() error = %v", err)
	}
	// Israel Daylight Time in May 1990 was UTC+3.
	want := time.Date(1990, time.May, 15, 7, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("BirthMoment() = %v, want %v", got, want)
	}

	p.DateFormat = calendar.DateFormatLegacy
	if _, err := p.BirthMoment(); !errors.Is(err, calendar.ErrMalformedDateTime) {
		t.Errorf("BirthMoment() on legacy row error = %v, want ErrMalformedDateTime", err)
	}
}

// -----------------------------------------------------------------
// Legacy date migration tests
// -----------------------------------------------------------------

func TestNormalizeLegacyDates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	isoID := insertLegacyRow(t, db, "iso", "1985-11-03")
	dmyID := insertLegacyRow(t, db, "dmy", "03/11/1985")
	badID := insertLegacyRow(t, db, "dotted", "03.11.1985")
	impossibleID := insertLegacyRow(t, db, "impossible", "31/02/1985")

	modern := sampleProfile()
	if err := db.CreateProfile(ctx, modern); err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}

	report, err := db.NormalizeLegacyDates(ctx)
	if err != nil {
		t.Fatalf("NormalizeLegacyDates() error = %v", err)
	}
	if report.Converted != 2 {
		t.Errorf("Converted = %d, want 2", report.Converted)
	}
	if len(report.Unresolved) != 2 {
		t.Fatalf("Unresolved = %v, want 2 rows", report.Unresolved)
	}
	if report.Unresolved[0].ProfileID != badID || report.Unresolved[1].ProfileID != impossibleID {
		t.Errorf("Unresolved IDs = %d, %d; want %d, %d",
			report.Unresolved[0].ProfileID, report.Unresolved[1].ProfileID, badID, impossibleID)
	}

	for _, id := range []int64{isoID, dmyID} {
		got, err := db.GetProfile(ctx, id)
		if err != nil {
			t.Fatalf("GetProfile(%d) error = %v", id, err)
		}
		if got.BirthDate != "1985-11-03" || got.DateFormat != calendar.DateFormatISO {
			t.Errorf("profile %d = %q (%s), want 1985-11-03 (iso-8601)", id, got.BirthDate, got.DateFormat)
		}
	}

	bad, err := db.GetProfile(ctx, badID)
	if err != nil {
		t.Fatalf("GetProfile(%d) error = %v", badID, err)
	}
	if bad.DateFormat != calendar.DateFormatLegacy || bad.BirthDate != "03.11.1985" {
		t.Errorf("unresolved row was modified: %+v", bad)
	}

	// A second run only revisits what is still unresolved.
	again, err := db.NormalizeLegacyDates(ctx)
	if err != nil {
		t.Fatalf("second NormalizeLegacyDates() error = %v", err)
	}
	if again.Converted != 0 || len(again.Unresolved) != 2 {
		t.Errorf("second run = %+v, want 0 converted, 2 unresolved", again)
	}
}

// -----------------------------------------------------------------
// Transaction tests
// -----------------------------------------------------------------

func TestWithTx(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.InsertProfile(ctx, sampleProfile())
	})
	if err != nil {
		t.Fatalf("WithTx() success case error = %v", err)
	}

	count, err := db.CountProfiles(ctx)
	if err != nil {
		t.Fatalf("CountProfiles() error = %v", err)
	}
	if count != 1 {
		t.Errorf("CountProfiles() = %d, want 1", count)
	}
}

func TestWithTx_Rollback(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// Failed transaction should rollback
	err := db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertProfile(ctx, sampleProfile()); err != nil {
			return err
		}
		return ErrNotFound
	})
	if err != ErrNotFound {
		t.Fatalf("WithTx() rollback case error = %v, want ErrNotFound", err)
	}

	count, err := db.CountProfiles(ctx)
	if err != nil {
		t.Fatalf("CountProfiles() error = %v", err)
	}
	if count != 0 {
		t.Errorf("CountProfiles() = %d, want 0 after rollback", count)
	}
}
