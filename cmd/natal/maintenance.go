package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/zapponejosh/natal-api/internal/content"
	"github.com/zapponejosh/natal-api/internal/database"
)

// =============================================================================
// CONTENT COMMAND - validate content spreadsheets
// =============================================================================

func newContentCmd(root *rootOptions) *cobra.Command {
	var (
		dir    string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "content",
		Short: "Load the content spreadsheets and report what they hold",
		Long: `Loads the placement, sentence and description workbooks the API
serves from and prints the entry counts. Exits non-zero when any workbook
fails to load.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			index, loadErr := content.Load(dir, content.Options{}, root.logger(cmd))
			stats := index.Stats()

			if asJSON {
				if err := writeJSON(cmd, stats); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Sign texts:       %d\n", stats.Signs)
				fmt.Fprintf(out, "House texts:      %d\n", stats.Houses)
				fmt.Fprintf(out, "Degree entries:   %d\n", stats.Degrees)
			}

			if loadErr != nil {
				return fmt.Errorf("load content: %w", loadErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "data/content", "content directory")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// =============================================================================
// MIGRATE-DATES COMMAND - convert legacy birth dates to ISO
// =============================================================================

func newMigrateDatesCmd(root *rootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "migrate-dates",
		Short: "Rewrite legacy birth dates as ISO dates",
		Long: `Converts every profile whose birth date is tagged legacy to
YYYY-MM-DD. Rows that cannot be interpreted are listed and left unchanged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			log := root.logger(cmd)

			db, err := database.Open(database.DefaultConfig(dbPath), log)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			applied, err := db.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			log.Info("migrations complete", slog.Int("applied", applied))

			report, err := db.NormalizeLegacyDates(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Converted:    %d\n", report.Converted)
			fmt.Fprintf(out, "Unresolved:   %d\n", len(report.Unresolved))
			for _, u := range report.Unresolved {
				fmt.Fprintf(out, "  profile %d: %q (%s)\n", u.ProfileID, u.BirthDate, u.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "data/souls.db", "SQLite database")
	return cmd
}
