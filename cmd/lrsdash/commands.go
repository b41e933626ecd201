package main

import (
	"encoding/json"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/lrsdash/internal/export"
	"github.com/verte-zerg/lrsdash/internal/logging"
	"github.com/verte-zerg/lrsdash/internal/model"
	"github.com/verte-zerg/lrsdash/internal/server"
	"github.com/verte-zerg/lrsdash/internal/stats"
	"github.com/verte-zerg/lrsdash/internal/statsui"
)

const (
	defaultPlotHeight  = 10
	defaultRecordLimit = 20
	noDataMessage      = "NO DATA for this date range"
)

var (
	reportJSON    bool
	reportRecords int
	exportOut     string
)

func newReportCmd(d model.Dataset, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(d),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReportCmd(cmd, d)
		},
	}
	addQueryFlags(cmd, false)
	cmd.Flags().BoolVar(&reportJSON, "json", false, "print the report as JSON")
	cmd.Flags().IntVar(&reportRecords, "records", defaultRecordLimit, "records to print (0 hides the table)")
	return cmd
}

func runReportCmd(cmd *cobra.Command, d model.Dataset) error {
	if err := resolveSettings(cmd); err != nil {
		return err
	}
	q, err := buildQuery(d)
	if err != nil {
		return err
	}
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext(cmd)
	defer stop()
	report, err := stats.BuildReport(ctx, a.loader, q)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if reportJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return stats.RenderReport(out, report, stats.RenderOptions{
		Width:       stats.TerminalWidth(),
		Height:      defaultPlotHeight,
		RecordLimit: reportRecords,
	})
}

func newActorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actors",
		Short: "List actors that initialized an activity",
		Args:  cobra.NoArgs,
		RunE:  runActorsCmd,
	}
	addQueryFlags(cmd, true)
	return cmd
}

func runActorsCmd(cmd *cobra.Command, _ []string) error {
	if err := resolveSettings(cmd); err != nil {
		return err
	}
	q, err := buildQuery("")
	if err != nil {
		return err
	}
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext(cmd)
	defer stop()
	actors, err := a.loader.Actors(ctx, q)
	if err != nil {
		return err
	}
	if len(actors) == 0 {
		logErrln("no actors initialized this activity in the date range")
		return nil
	}
	for _, actor := range actors {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), actor); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a report as an xlsx workbook",
		Args:  cobra.NoArgs,
		RunE:  runExportCmd,
	}
	addQueryFlags(cmd, true)
	cmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default {lang}-{type}-{since}-{until}.xlsx)")
	return cmd
}

func runExportCmd(cmd *cobra.Command, _ []string) error {
	if err := resolveSettings(cmd); err != nil {
		return err
	}
	q, err := buildQuery("")
	if err != nil {
		return err
	}
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext(cmd)
	defer stop()
	report, err := stats.BuildReport(ctx, a.loader, q)
	if err != nil {
		return err
	}
	if report.Empty {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), noDataMessage)
		return err
	}

	path := exportOut
	if path == "" {
		path = export.Filename(q)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := export.Write(f, report); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	logErrf("Wrote %s (%d records)\n", path, len(report.Records))
	return nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve reports over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
	cmd.Flags().StringVar(&opts.addr, "addr", defaultAddr, "listen address")
	cmd.Flags().StringSliceVar(&opts.corsOrigins, "cors-origin", []string{"*"}, "allowed CORS origins")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	if err := resolveSettings(cmd); err != nil {
		return err
	}
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext(cmd)
	defer stop()
	srv := server.New(a.loader, a.logger, server.Config{
		Addr:        opts.addr,
		CORSOrigins: opts.corsOrigins,
	})
	return srv.ListenAndServe(ctx)
}

func newDashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dash",
		Short: "Open the interactive dashboard",
		Args:  cobra.NoArgs,
		RunE:  runDashCmd,
	}
	addQueryFlags(cmd, true)
	return cmd
}

func runDashCmd(cmd *cobra.Command, _ []string) error {
	if err := resolveSettings(cmd); err != nil {
		return err
	}
	q, err := buildQuery("")
	if err != nil {
		return err
	}
	// Log lines would tear the alternate screen.
	a, err := newApp(logging.Discard())
	if err != nil {
		return err
	}
	defer a.Close()

	program := tea.NewProgram(statsui.NewModel(a.loader, q), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run dashboard: %w", err)
	}
	return nil
}
