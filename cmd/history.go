/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bisturi/tracksync/database"
	"github.com/bisturi/tracksync/model"
)

// historyCommands groups the execution history operations.
func historyCommands(app *tracksyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "inspect past runs",
	}

	cmd.AddCommand(historyListCommand(app))
	cmd.AddCommand(historyShowCommand(app))
	cmd.AddCommand(historyDeleteCommand(app))
	cmd.AddCommand(historyClearCommand(app))
	cmd.AddCommand(historyStatsCommand(app))
	cmd.AddCommand(historyExportCommand(app))

	return cmd
}

func openHistory(app *tracksyncInstance) (database.IDataSource, error) {
	ds, err := database.NewDataSource(app.cnf)
	if err != nil {
		return nil, fmt.Errorf("error opening history: %w", err)
	}
	return ds, nil
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func printExecutions(w io.Writer, executions []*model.Execution, loc *time.Location) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tFILE\tTOTAL\tSUCCESS\tSKIPPED\tERRORS\tDURATION\tDRY RUN")
	for _, e := range executions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%t\n",
			e.ID, e.Date.In(loc).Format("02/01/2006 15:04:05"), e.FileName,
			e.Total, e.Success, e.Skipped, e.Errors,
			(time.Duration(e.DurationMs) * time.Millisecond).String(), e.DryRun)
	}
	_ = tw.Flush()
}

func historyListCommand(app *tracksyncInstance) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "list runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openHistory(app)
			if err != nil {
				return err
			}
			defer ds.Close()

			executions, err := ds.GetExecutions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), executions)
			}
			if len(executions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			printExecutions(cmd.OutOrStdout(), executions, app.cnf.Location())
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum runs to list (0 lists all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func historyShowCommand(app *tracksyncInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "show one run and its failed orders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openHistory(app)
			if err != nil {
				return err
			}
			defer ds.Close()

			exec, err := ds.GetExecution(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), exec)
		},
	}
}

func historyDeleteCommand(app *tracksyncInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "delete one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openHistory(app)
			if err != nil {
				return err
			}
			defer ds.Close()

			if err := ds.DeleteExecution(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func historyClearCommand(app *tracksyncInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "delete every run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openHistory(app)
			if err != nil {
				return err
			}
			defer ds.Close()

			n, err := ds.ClearExecutions(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d runs\n", n)
			return nil
		},
	}
}

func historyStatsCommand(app *tracksyncInstance) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "aggregate totals over every run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openHistory(app)
			if err != nil {
				return err
			}
			defer ds.Close()

			stats, err := ds.GetExecutionStats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, stats)
			}
			fmt.Fprintf(out, "Runs: %d\n", stats.TotalExecutions)
			fmt.Fprintf(out, "Orders processed: %d\n", stats.TotalProcessed)
			fmt.Fprintf(out, "Success: %d\n", stats.TotalSuccess)
			fmt.Fprintf(out, "Errors: %d\n", stats.TotalErrors)
			fmt.Fprintf(out, "Average duration: %s\n", time.Duration(stats.AvgDurationMs)*time.Millisecond)
			fmt.Fprintf(out, "Average success rate: %d%%\n", stats.AvgSuccessRate)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func historyExportCommand(app *tracksyncInstance) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "export the history as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openHistory(app)
			if err != nil {
				return err
			}
			defer ds.Close()

			executions, err := ds.GetExecutions(cmd.Context(), 0)
			if err != nil {
				return err
			}

			if output == "" {
				return database.ExportExecutionsCSV(cmd.OutOrStdout(), executions, app.cnf.Location())
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := database.ExportExecutionsCSV(f, executions, app.cnf.Location()); err != nil {
				_ = f.Close()
				_ = os.Remove(output)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d runs to %s\n", len(executions), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}
