// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ManuGH/mudcore/internal/task/memwatch"
)

func newStatusCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
		raw     bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show memory and task pressure of a running daemon",
		Long: `Fetches /debug/memory from a running daemon and prints:
- Current memory usage and its source
- Active tracked units against the task threshold
- The last cleanup pass, if any`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := get(cmd.Context(), addr, "/debug/memory", timeout)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("status: daemon answered %s", resp.Status)
			}
			if raw {
				_, err := io.Copy(cmd.OutOrStdout(), resp.Body)
				return err
			}

			var report memwatch.Report
			if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
				return fmt.Errorf("status: decode report: %w", err)
			}
			printStatus(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "API address of the daemon")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	cmd.Flags().BoolVar(&raw, "json", false, "print the raw JSON report")
	return cmd
}

func printStatus(w io.Writer, r memwatch.Report) {
	s := r.Sample
	fmt.Fprintf(w, "Memory:   %s of %s (%s)%s\n",
		humanize.IBytes(s.MemoryBytes), humanize.IBytes(r.Thresholds.MaxMemoryBytes), s.Source, exceededMark(s.MemoryExceeded))
	fmt.Fprintf(w, "Tasks:    %d of %d%s\n", s.ActiveTasks, r.Thresholds.MaxTasks, exceededMark(s.TasksExceeded))
	fmt.Fprintf(w, "Cleanups: %d (cooldown %s)\n", r.CleanupRuns, r.Thresholds.Cooldown)
	if r.Running {
		fmt.Fprintln(w, "          cleanup in progress")
	}
	if r.LastCleanup != nil {
		fmt.Fprintf(w, "Last:     %s, cancelled %d\n", humanize.Time(*r.LastCleanup), r.LastResult.Total())
	}
	if r.LastError != "" {
		fmt.Fprintf(w, "Error:    %s\n", r.LastError)
	}
}

func exceededMark(exceeded bool) string {
	if exceeded {
		return " EXCEEDED"
	}
	return ""
}
