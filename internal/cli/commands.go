package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"directory-sync/backend/internal/directory/domain"
	"directory-sync/backend/internal/merge"
	"directory-sync/backend/internal/store"
	"directory-sync/backend/internal/syncer"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one directory sync now",
		Long: `Fetch users and devices from the directory and replace the local copy.

The run is recorded in the sync history whether it succeeds or fails.
Credentials are required; the enablement flag is not.

Examples:
  dirsync sync
  dirsync sync --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			env := a.Service.TriggerManualSync(cmd.Context())
			return writeEnvelope(cmd.OutOrStdout(), rootOpts.Format, env, renderSyncStatus)
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync configuration and the last sync outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			env := a.Service.GetSyncStatus(cmd.Context())
			return writeEnvelope(cmd.OutOrStdout(), rootOpts.Format, env, renderStatus)
		},
	}
}

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded syncs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.Close()
			env := a.Service.GetSyncHistory(cmd.Context(), opts.Limit)
			return writeEnvelope(cmd.OutOrStdout(), opts.Format, env, renderHistory)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 10, "maximum number of entries")

	return cmd
}

// NewDiagnosticsCommand creates the diagnostics command.
func NewDiagnosticsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnostics",
		Short: "Describe the database file, its tables and columns",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			env := a.Service.GetDiagnostics(cmd.Context())
			return writeEnvelope(cmd.OutOrStdout(), rootOpts.Format, env, renderDiagnostics)
		},
	}
}

// NewSourcesCommand creates the sources command.
func NewSourcesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List record sources with user and device counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			env := a.Service.ListAvailableSources(cmd.Context())
			return writeEnvelope(cmd.OutOrStdout(), rootOpts.Format, env, renderSources)
		},
	}
}

func statusLine(st *domain.SyncStatus) string {
	outcome := "succeeded"
	if !st.Success {
		outcome = "failed"
	}
	line := fmt.Sprintf("%s  %s  users=%d devices=%d duration=%dms",
		st.LastSyncTime.Local().Format(time.DateTime), outcome, st.UsersCount, st.DevicesCount, st.DurationMs)
	if st.Error != "" {
		line += "  error=" + st.Error
	}
	return line
}

func renderSyncStatus(w io.Writer, data any) error {
	st, ok := data.(*domain.SyncStatus)
	if !ok || st == nil {
		return nil
	}
	_, err := fmt.Fprintln(w, statusLine(st))
	return err
}

func renderStatus(w io.Writer, data any) error {
	st, ok := data.(syncer.Status)
	if !ok {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "enabled:         %t\n", st.Enabled)
	fmt.Fprintf(&b, "credentials:     %t\n", st.HasCredentials)
	fmt.Fprintf(&b, "in progress:     %t\n", st.InProgress)
	if st.LastSync == nil {
		b.WriteString("last sync:       never\n")
	} else {
		fmt.Fprintf(&b, "last sync:       %s\n", statusLine(st.LastSync))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderHistory(w io.Writer, data any) error {
	history, ok := data.([]domain.SyncStatus)
	if !ok {
		return nil
	}
	if len(history) == 0 {
		_, err := fmt.Fprintln(w, "No syncs recorded")
		return err
	}
	for i := range history {
		if _, err := fmt.Fprintln(w, statusLine(&history[i])); err != nil {
			return err
		}
	}
	return nil
}

func renderDiagnostics(w io.Writer, data any) error {
	d, ok := data.(*store.Diagnostics)
	if !ok || d == nil {
		return nil
	}
	fmt.Fprintf(w, "database: %s (%d bytes)\n\n", d.Path, d.FileSize)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tROWS\tCOLUMNS")
	for _, t := range d.Tables {
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = c.Name
			if c.Tag != "" {
				cols[i] += ":" + c.Tag
			}
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", t.Name, t.RowCount, strings.Join(cols, ", "))
	}
	return tw.Flush()
}

func renderSources(w io.Writer, data any) error {
	sources, ok := data.([]merge.SourceInfo)
	if !ok {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tLABEL\tUSERS\tDEVICES")
	for _, s := range sources {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", s.Source, s.Label, s.Users, s.Devices)
	}
	return tw.Flush()
}
