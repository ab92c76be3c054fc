package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/wekeepgrowing/semo-membership/internal/app"
	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
)

func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Run one aggregation pass and print the metric set as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				metrics, err := a.Aggregator.Aggregate(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), metrics)
			})
		},
	}
}

func backfillCmd() *cobra.Command {
	var (
		since    string
		maxPages int
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Record processor events missed by the webhook",
		Long: `Pages through the payment processor's event log and records every tracked
lifecycle event in the event history. Events already recorded are skipped.

Examples:
  membershipctl backfill --since 72h
  membershipctl backfill --since 2025-06-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseSince(since, time.Now().UTC())
			if err != nil {
				return err
			}

			return withApp(func(a *app.App) error {
				limits := entity.PageLimits{PageSize: a.Config.Metrics.PageSize, MaxPages: maxPages}
				result, err := a.Ingestion.Backfill(cmd.Context(), a.Provider, from, limits)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().StringVar(&since, "since", "72h", "lookback duration (72h) or start date (2006-01-02, RFC 3339)")
	cmd.Flags().IntVar(&maxPages, "max-pages", entity.DefaultMaxPages, "maximum event pages to read")

	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the event history and membership snapshot tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				if err := a.Migrate(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

// parseSince accepts a lookback duration, a date or an RFC 3339 timestamp.
func parseSince(value string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(value); err == nil {
		if d <= 0 {
			return time.Time{}, fmt.Errorf("--since duration must be positive, got %s", value)
		}
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --since value %q", value)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
