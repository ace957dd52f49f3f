// Command import loads birth profiles from a spreadsheet into the SQLite
// database.
//
// Usage:
//
//	go run ./cmd/import -xlsx data/profiles.xlsx -db data/souls.db -date-format dd/mm/yyyy
//
// The first row of the sheet names the columns. name, city, birth_date and
// birth_time are required; timezone, latitude and longitude are optional.
// Rows without coordinates are geocoded before anything is written, and all
// rows are inserted in a single transaction: one bad row aborts the import.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/zapponejosh/natal-api/internal/calendar"
	"github.com/zapponejosh/natal-api/internal/database"
	"github.com/zapponejosh/natal-api/internal/geocode"
)

func main() {
	xlsxPath := flag.String("xlsx", "data/profiles.xlsx", "Path to the profiles workbook")
	sheet := flag.String("sheet", "", "Sheet name (default: first sheet)")
	dbPath := flag.String("db", "data/souls.db", "Path to SQLite database")
	dateFormat := flag.String("date-format", string(calendar.DateFormatISO), "Layout of birth_date cells: iso-8601 or dd/mm/yyyy")
	defaultZone := flag.String("timezone", "UTC", "Zone for rows without a timezone column")
	geocoderURL := flag.String("geocoder", geocode.DefaultConfig().BaseURL, "Nominatim base URL")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	format := calendar.DateFormat(*dateFormat)
	if format != calendar.DateFormatISO && format != calendar.DateFormatDayMonthYear {
		logger.Error("unsupported date format", slog.String("format", *dateFormat))
		os.Exit(2)
	}

	geoCfg := geocode.DefaultConfig()
	geoCfg.BaseURL = *geocoderURL
	geocoder := geocode.NewNominatim(geoCfg, logger, nil)

	opts := importOptions{
		Sheet:       *sheet,
		DateFormat:  format,
		DefaultZone: *defaultZone,
	}
	if err := run(context.Background(), *xlsxPath, *dbPath, opts, geocoder, logger); err != nil {
		logger.Error("import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("import complete")
}

type importOptions struct {
	Sheet       string
	DateFormat  calendar.DateFormat
	DefaultZone string
}

// ImportStats tracks import statistics.
type ImportStats struct {
	Rows     int
	Geocoded int
	Imported int
}

func run(ctx context.Context, xlsxPath, dbPath string, opts importOptions, geo geocode.Geocoder, logger *slog.Logger) error {
	startTime := time.Now()

	// =========================================================================
	// Step 1: Read the workbook
	// =========================================================================
	logger.Info("reading workbook", slog.String("path", xlsxPath))

	profiles, err := readProfiles(xlsxPath, opts)
	if err != nil {
		return err
	}
	stats := ImportStats{Rows: len(profiles)}
	logger.Info("parsed workbook", slog.Int("rows", len(profiles)))

	// =========================================================================
	// Step 2: Geocode rows without coordinates
	// =========================================================================
	for i := range profiles {
		p := &profiles[i]
		if p.hasCoordinates {
			continue
		}
		loc, err := geo.Geocode(ctx, p.City)
		if err != nil {
			return fmt.Errorf("row %d: geocode %q: %w", p.line, p.City, err)
		}
		p.Latitude, p.Longitude = loc.Latitude, loc.Longitude
		stats.Geocoded++
		logger.Debug("geocoded row",
			slog.Int("row", p.line),
			slog.String("city", p.City),
			slog.Float64("latitude", loc.Latitude),
			slog.Float64("longitude", loc.Longitude),
		)
	}

	// =========================================================================
	// Step 3: Open database and insert in one transaction
	// =========================================================================
	logger.Info("opening database", slog.String("path", dbPath))

	db, err := database.Open(database.DefaultConfig(dbPath), logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	migrated, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("migrations complete", slog.Int("applied", migrated))

	err = db.WithTx(ctx, func(tx *database.Tx) error {
		for i := range profiles {
			if err := tx.InsertProfile(ctx, &profiles[i].Profile); err != nil {
				return fmt.Errorf("row %d (%s): %w", profiles[i].line, profiles[i].Name, err)
			}
			stats.Imported++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("import profiles: %w", err)
	}

	total, err := db.CountProfiles(ctx)
	if err != nil {
		return fmt.Errorf("count profiles: %w", err)
	}

	elapsed := time.Since(startTime)
	logger.Info("import verified",
		slog.Int("imported", stats.Imported),
		slog.Int("total_profiles", total),
		slog.Duration("elapsed", elapsed),
	)

	fmt.Println()
	fmt.Println("=== Import Summary ===")
	fmt.Printf("Rows read:           %d\n", stats.Rows)
	fmt.Printf("Rows geocoded:       %d\n", stats.Geocoded)
	fmt.Printf("Profiles imported:   %d\n", stats.Imported)
	fmt.Printf("Profiles in store:   %d\n", total)
	fmt.Printf("Time elapsed:        %v\n", elapsed.Round(time.Millisecond))

	return nil
}

// sheetProfile is one workbook row ready for insertion.
type sheetProfile struct {
	database.Profile
	line           int
	hasCoordinates bool
}

var requiredColumns = []string{"name", "city", "birth_date", "birth_time"}

// readProfiles parses every non-blank data row. Problems are collected so
// the operator sees all bad rows at once.
func readProfiles(path string, opts importOptions) ([]sheetProfile, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	cols := make(map[string]int)
	for i, h := range rows[0] {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		cols[key] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("sheet %q is missing column %q", sheet, name)
		}
	}

	get := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		out  []sheetProfile
		errs []error
	)
	for i, row := range rows[1:] {
		line := i + 2
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}

		p := sheetProfile{
			line: line,
			Profile: database.Profile{
				Name:       get(row, "name"),
				City:       get(row, "city"),
				BirthDate:  get(row, "birth_date"),
				DateFormat: opts.DateFormat,
				BirthTime:  get(row, "birth_time"),
				Timezone:   get(row, "timezone"),
			},
		}
		if p.Timezone == "" {
			p.Timezone = opts.DefaultZone
		}

		if _, err := calendar.ParseDate(p.BirthDate, p.DateFormat); err != nil {
			errs = append(errs, fmt.Errorf("row %d: %w", line, err))
			continue
		}

		latRaw, lonRaw := get(row, "latitude"), get(row, "longitude")
		if latRaw != "" || lonRaw != "" {
			lat, latErr := strconv.ParseFloat(latRaw, 64)
			lon, lonErr := strconv.ParseFloat(lonRaw, 64)
			if latErr != nil || lonErr != nil {
				errs = append(errs, fmt.Errorf("row %d: latitude and longitude must both be numbers", line))
				continue
			}
			p.Latitude, p.Longitude = lat, lon
			p.hasCoordinates = true
		}

		out = append(out, p)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}
