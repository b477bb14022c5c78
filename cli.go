package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"groundstation-safety/internal/alarms/infrastructure/journal"
	"groundstation-safety/internal/alarms/interfaces/export"
	"groundstation-safety/internal/auth"
	telemetry "groundstation-safety/internal/telemetry/domain"
)

func classifyCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <signal> <value> [timestamp]",
		Short: "Classify one reading against the datatype catalog",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			catalog, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid value %q", args[1])
			}
			now := telemetry.Seconds(time.Now())
			ts := now
			if len(args) == 3 {
				raw, err := strconv.ParseFloat(args[2], 64)
				if err != nil {
					return fmt.Errorf("invalid timestamp %q", args[2])
				}
				if ts, err = telemetry.NormalizeTimestamp(raw, now); err != nil {
					return err
				}
			}
			if _, ok := catalog.Table().Get(args[0]); !ok {
				return fmt.Errorf("unknown signal %q", args[0])
			}
			result := telemetry.ClassifyNamed(catalog.Table(), args[0], value, ts, now)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}

func propertiesCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "properties",
		Short: "List signal safety properties and operating modes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			catalog, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SIGNAL\tLOWER\tUPPER\tSTALE AFTER\tCRITICAL")
			table := catalog.Table()
			for _, name := range table.Names() {
				props, _ := table.Get(name)
				critical := props.Critical != nil && *props.Critical
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", name, optional(props.Lower), optional(props.Upper), optional(props.StaleAfter), critical)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "MODE\tINDEX")
			for _, state := range catalog.FsmStates() {
				fmt.Fprintf(w, "%s\t%d\n", state.State, state.Index)
			}
			return w.Flush()
		},
	}
}

func exportCmd(load configLoader) *cobra.Command {
	var (
		format  string
		fromStr string
		toStr   string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the notification journal as xlsx or pdf",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Journal.DSN == "" {
				return errors.New("journal.dsn (JOURNAL_DSN) is required")
			}
			to := time.Now().UTC()
			from := to.Add(-24 * time.Hour)
			if fromStr != "" {
				if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
					return fmt.Errorf("invalid --from: %w", err)
				}
			}
			if toStr != "" {
				if to, err = time.Parse(time.RFC3339, toStr); err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
			}
			if !to.After(from) {
				return errors.New("--to must be after --from")
			}

			db, driver, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
			if err != nil {
				return err
			}
			defer db.Close()
			repo, err := journal.NewRepository(db, driver, nil)
			if err != nil {
				return err
			}
			entries, err := repo.List(context.Background(), from, to, 10000)
			if err != nil {
				return err
			}
			period := export.Period{From: from, To: to}
			var data []byte
			switch format {
			case "xlsx":
				data, err = export.BuildJournalXLSX(period, entries)
			case "pdf":
				data, err = export.BuildJournalPDF(period, entries)
			default:
				return fmt.Errorf("unsupported format %q", format)
			}
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("journal-%s.%s", from.Format("20060102T150405"), format)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d notifications to %s\n", len(entries), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "xlsx", "xlsx or pdf")
	cmd.Flags().StringVar(&fromStr, "from", "", "period start (RFC3339, default 24h ago)")
	cmd.Flags().StringVar(&toStr, "to", "", "period end (RFC3339, default now)")
	cmd.Flags().StringVar(&out, "out", "", "output file")
	return cmd
}

func tokenCmd(load configLoader) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator console access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret (AUTH_JWT_SECRET) is required")
			}
			normalized, ok := auth.NormalizeRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := auth.IssueJWT([]byte(cfg.Auth.JWTSecret), subject, normalized, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "operator id")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "viewer, operator or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
