package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zapponejosh/natal-api/internal/astro"
)

// =============================================================================
// DECOMPOSE COMMAND - longitude to sign and degree
// =============================================================================

func newDecomposeCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "decompose <longitude>",
		Short: "Split an ecliptic longitude into sign and degree",
		Long: `Normalizes the longitude into [0, 360) and prints its zodiac sign,
the exact degree within the sign and the 1-30 display degree.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lon, err := parseLongitude(args[0])
			if err != nil {
				return err
			}
			pos, err := astro.Decompose(lon)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, pos)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d (%.4f° into %s, sign %d)\n",
				pos.Sign, pos.Degree, pos.DegreeInSign, pos.Sign, pos.SignIndex)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// =============================================================================
// HOUSE COMMAND - classify a longitude against a cusp table
// =============================================================================

func newHouseCmd() *cobra.Command {
	var cuspList string

	cmd := &cobra.Command{
		Use:   "house <longitude>",
		Short: "Find the house containing a longitude",
		Long: `Classifies the longitude against twelve house cusps given in house
order. Houses may wrap past 0° Aries.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lon, err := parseLongitude(args[0])
			if err != nil {
				return err
			}
			cusps, err := parseCusps(cuspList)
			if err != nil {
				return err
			}

			house, err := astro.ClassifyHouse(cusps, lon)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), house)
			return nil
		},
	}
	cmd.Flags().StringVar(&cuspList, "cusps", "", "twelve comma-separated cusp longitudes, house 1 first")
	_ = cmd.MarkFlagRequired("cusps")
	return cmd
}

func parseLongitude(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid longitude %q", s)
	}
	return astro.Normalize(v), nil
}

func parseCusps(s string) (astro.Cusps, error) {
	var cusps astro.Cusps

	parts := strings.Split(s, ",")
	if len(parts) != len(cusps) {
		return cusps, fmt.Errorf("need %d cusps, got %d", len(cusps), len(parts))
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return cusps, fmt.Errorf("cusp %d: invalid number %q", i+1, p)
		}
		cusps[i] = astro.Normalize(v)
	}
	return cusps, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
