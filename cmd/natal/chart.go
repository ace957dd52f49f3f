package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zapponejosh/natal-api/internal/astro"
	"github.com/zapponejosh/natal-api/internal/calendar"
	"github.com/zapponejosh/natal-api/internal/content"
	"github.com/zapponejosh/natal-api/internal/database"
	"github.com/zapponejosh/natal-api/internal/ephemeris"
	"github.com/zapponejosh/natal-api/internal/geocode"
	"github.com/zapponejosh/natal-api/internal/service"
)

// =============================================================================
// CHART COMMAND - compute a chart without the HTTP server
// =============================================================================

type chartOptions struct {
	name        string
	city        string
	date        string
	dateFormat  string
	birthTime   string
	timezone    string
	latitude    float64
	longitude   float64
	houseSystem string

	profileID  int64
	dbPath     string
	contentDir string
	geocoder   string
	asJSON     bool
}

func newChartCmd(root *rootOptions) *cobra.Command {
	opts := &chartOptions{}

	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Compute a natal chart",
		Long: `Computes a chart from birth data given as flags, or for a stored
profile with --profile. Without --lat and --lon the city is geocoded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChart(cmd, opts, root.logger(cmd))
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.name, "name", "cli", "name shown on the chart")
	f.StringVar(&opts.city, "city", "", "birth city")
	f.StringVar(&opts.date, "date", "", "birth date")
	f.StringVar(&opts.dateFormat, "date-format", string(calendar.DateFormatISO), "iso-8601 or dd/mm/yyyy")
	f.StringVar(&opts.birthTime, "time", "", "local birth time, HH:MM")
	f.StringVar(&opts.timezone, "tz", "UTC", "IANA zone of the birth place")
	f.Float64Var(&opts.latitude, "lat", 0, "latitude, skips geocoding together with --lon")
	f.Float64Var(&opts.longitude, "lon", 0, "longitude, skips geocoding together with --lat")
	f.StringVar(&opts.houseSystem, "house-system", string(astro.HouseSystemPlacidus), "placidus, porphyry, equal or whole-sign")
	f.Int64Var(&opts.profileID, "profile", 0, "compute the chart of a stored profile")
	f.StringVar(&opts.dbPath, "db", "data/souls.db", "SQLite database, used with --profile")
	f.StringVar(&opts.contentDir, "content-dir", "", "content spreadsheets to enrich the chart with")
	f.StringVar(&opts.geocoder, "geocoder", geocode.DefaultConfig().BaseURL, "Nominatim base URL")
	f.BoolVar(&opts.asJSON, "json", false, "print JSON")

	cmd.MarkFlagsRequiredTogether("lat", "lon")
	cmd.MarkFlagsMutuallyExclusive("profile", "date")
	cmd.MarkFlagsMutuallyExclusive("profile", "city")
	return cmd
}

func runChart(cmd *cobra.Command, opts *chartOptions, log *slog.Logger) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	system, err := astro.ParseHouseSystem(opts.houseSystem)
	if err != nil {
		return err
	}

	deps := service.Deps{
		Ephemeris: ephemeris.New(log),
		Logger:    log,
	}

	if opts.contentDir != "" {
		index, err := content.Load(opts.contentDir, content.Options{}, log)
		if err != nil {
			log.Warn("content loaded with errors", slog.Any("error", err))
		}
		deps.Content = index
	}

	var chart *service.Chart
	if opts.profileID != 0 {
		db, err := database.Open(database.DefaultConfig(opts.dbPath), log)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		deps.Store = db
		charts := service.NewChartService(service.ChartConfig{DefaultHouseSystem: system}, deps)
		chart, err = charts.ProfileChart(ctx, opts.profileID, system)
		if err != nil {
			if database.IsNotFound(err) {
				return fmt.Errorf("profile %d not found", opts.profileID)
			}
			return err
		}
	} else {
		if opts.date == "" || opts.birthTime == "" {
			return errors.New("--date and --time are required without --profile")
		}

		in := service.BirthInput{
			Name:        opts.name,
			City:        opts.city,
			BirthDate:   opts.date,
			DateFormat:  calendar.DateFormat(opts.dateFormat),
			BirthTime:   opts.birthTime,
			Timezone:    opts.timezone,
			HouseSystem: system,
		}
		if cmd.Flags().Changed("lat") {
			in.Latitude, in.Longitude = &opts.latitude, &opts.longitude
		} else {
			if opts.city == "" {
				return errors.New("--city is required without --lat and --lon")
			}
			geoCfg := geocode.DefaultConfig()
			geoCfg.BaseURL = opts.geocoder
			deps.Geocoder = geocode.NewNominatim(geoCfg, log, nil)
		}

		charts := service.NewChartService(service.ChartConfig{DefaultHouseSystem: system}, deps)
		chart, err = charts.Preview(ctx, in)
		if err != nil {
			return err
		}
	}

	if opts.asJSON {
		return writeJSON(cmd, chart)
	}
	return printChart(cmd, chart)
}

func printChart(cmd *cobra.Command, chart *service.Chart) error {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s, %s\n", chart.Name, chart.City)
	fmt.Fprintf(out, "%s %s %s (%s UTC)\n", chart.BirthDate, chart.BirthTime, chart.Timezone,
		chart.Moment.Format("2006-01-02 15:04"))
	fmt.Fprintf(out, "%.4f, %.4f  %s houses\n\n", chart.Latitude, chart.Longitude, chart.HouseSystem)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BODY\tLONGITUDE\tSIGN\tDEGREE\tHOUSE")
	for _, p := range chart.Placements {
		fmt.Fprintf(tw, "%s\t%.4f\t%s %s\t%d\t%d\n",
			p.Body, p.Longitude, p.Sign.Symbol(), p.Sign, p.Degree, p.House)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "HOUSE\tCUSP")
	for i, c := range chart.Cusps {
		fmt.Fprintf(tw, "%d\t%.4f\n", i+1, c)
	}
	return tw.Flush()
}
