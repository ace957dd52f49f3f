// Command natal is the operator CLI: compute charts offline, classify
// longitudes, check content spreadsheets and migrate legacy profile dates.
//
// Usage:
//
//	natal chart --date 1990-05-15 --time 10:30 --tz Asia/Jerusalem --city "Tel Aviv"
//	natal chart --profile 12 --db data/souls.db
//	natal decompose 45.5
//	natal house 45.5 --cusps 350,20,50,80,110,140,170,200,230,260,290,320
//	natal content --dir data/content
//	natal migrate-dates --db data/souls.db
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zapponejosh/natal-api/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	logLevel  string
	logFormat string
}

// logger writes to stderr so command output on stdout stays parseable.
func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	return logger.New(cmd.ErrOrStderr(), o.logLevel, o.logFormat)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "natal",
		Short:         "Natal chart operator tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "debug, info, warn or error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "text or json")

	root.AddCommand(
		newChartCmd(opts),
		newDecomposeCmd(),
		newHouseCmd(),
		newContentCmd(opts),
		newMigrateDatesCmd(opts),
	)
	return root
}
