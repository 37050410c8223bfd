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
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bisturi/tracksync"
	"github.com/bisturi/tracksync/config"
	"github.com/bisturi/tracksync/database"
	"github.com/bisturi/tracksync/internal/archive"
	"github.com/bisturi/tracksync/internal/carrier"
	"github.com/bisturi/tracksync/internal/commerce"
	"github.com/bisturi/tracksync/internal/input"
	"github.com/bisturi/tracksync/internal/notification"
	"github.com/bisturi/tracksync/internal/traces"
	"github.com/bisturi/tracksync/model"
)

type runOptions struct {
	input       string
	dryRun      bool
	concurrency int
	delayMs     int
	outputDir   string
	noHistory   bool
}

// runCommands reconciles every order of an input file.
func runCommands(app *tracksyncInstance) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "reconcile carrier tracking for the orders of a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("concurrency") {
				app.cnf.Run.Concurrency = opts.concurrency
			}
			if flags.Changed("delay") {
				app.cnf.Run.RequestDelayMs = &opts.delayMs
			}
			if flags.Changed("output-dir") {
				app.cnf.Run.OutputDir = opts.outputDir
			}

			code, err := runReconciliation(cmd.Context(), app.cnf, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			app.exitCode = code
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.input, "input", "i", "", "File with one order id per line, or a .csv")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Resolve everything but send no PATCH or PUT")
	flags.BoolVar(&opts.dryRun, "dry", false, "Alias for --dry-run")
	flags.IntVar(&opts.concurrency, "concurrency", config.DEFAULT_CONCURRENCY, "Orders processed in parallel")
	flags.IntVar(&opts.delayMs, "delay", config.DEFAULT_REQUEST_DELAY_MS, "Stagger between order starts in milliseconds")
	flags.StringVar(&opts.outputDir, "output-dir", "", "Directory for the CSV reports")
	flags.BoolVar(&opts.noHistory, "no-history", false, "Do not record this run in the execution history")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// runReconciliation executes one batch and returns its exit code. Returned errors are
// setup failures that prevented the run and are also posted to Slack.
func runReconciliation(ctx context.Context, cnf *config.Configuration, opts runOptions, out io.Writer) (int, error) {
	code, err := reconcileBatch(ctx, cnf, opts, out)
	if err != nil {
		notification.SendError(context.WithoutCancel(ctx), notification.New(cnf.Notification), err)
	}
	return code, err
}

func reconcileBatch(ctx context.Context, cnf *config.Configuration, opts runOptions, out io.Writer) (int, error) {
	if err := cnf.Validate(); err != nil {
		return 1, err
	}

	refs, err := input.ReadFile(opts.input)
	if err != nil {
		if errors.Is(err, input.ErrNoOrders) {
			return 1, fmt.Errorf("no orders found in %s", opts.input)
		}
		return 1, err
	}

	shutdown, err := traces.SetupOTelSDK(ctx, cnf.Tracing)
	if err != nil {
		return 1, errors.Wrap(err, "error setting up tracing")
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logrus.WithError(err).Warn("Failed to flush traces")
		}
	}()

	reconciler := tracksync.NewReconciler(carrier.New(cnf.Carrier), commerce.New(cnf), tracksync.ReconcilerOptions{
		DryRun:          opts.dryRun,
		TrackingURLBase: cnf.Carrier.TrackingURLBase,
		Location:        cnf.Location(),
	})
	runner := tracksync.NewRunner(reconciler, tracksync.RunnerOptions{
		Concurrency: cnf.Run.Concurrency,
		Delay:       cnf.Run.Delay(),
		Out:         out,
	})

	mode := ""
	if opts.dryRun {
		mode = " [DRY RUN]"
	}
	fmt.Fprintf(out, "Processing %d orders (concurrency %d, delay %dms)%s\n",
		len(refs), cnf.Run.Concurrency, cnf.Run.Delay().Milliseconds(), mode)

	report := runner.Run(ctx, refs)
	report.DryRun = opts.dryRun

	// Post-run steps still complete after an interrupt.
	ctx = context.WithoutCancel(ctx)

	files, writeErr := tracksync.WriteReports(cnf.Run.OutputDir, cnf.Run.SuccessFile, cnf.Run.ErrorFile, report)
	if writeErr != nil {
		files = tracksync.ReportFiles{}
	}
	tracksync.PrintSummary(out, report, files)
	if writeErr != nil {
		return 1, writeErr
	}

	fileName := filepath.Base(opts.input)
	if !opts.noHistory {
		saveHistory(ctx, cnf, model.NewExecution(fileName, report))
	}
	archiveReports(ctx, cnf, out, files)
	notification.Send(ctx, notification.New(cnf.Notification), notification.RunSummary{
		FileName: fileName,
		Total:    report.Total,
		Success:  report.OK,
		Skipped:  report.Skipped,
		Errors:   report.Errors,
		Duration: report.Duration(),
		DryRun:   report.DryRun,
	})

	return report.ExitCode(), nil
}

// saveHistory records the run. The history is auxiliary so failures are only logged.
func saveHistory(ctx context.Context, cnf *config.Configuration, exec *model.Execution) {
	ds, err := database.NewDataSource(cnf)
	if err != nil {
		logrus.WithError(err).Warn("Execution history unavailable")
		return
	}
	recordExecution(ctx, ds, exec, cnf.History.Limit)
}

func recordExecution(ctx context.Context, ds database.IDataSource, exec *model.Execution, keep int) bool {
	if err := ds.SaveExecution(ctx, exec, keep); err != nil {
		logrus.WithError(err).WithField("execution_id", exec.ID).Warn("Failed to save execution history")
		return false
	}
	logrus.WithField("execution_id", exec.ID).Debug("Execution saved")
	return true
}

func archiveReports(ctx context.Context, cnf *config.Configuration, out io.Writer, files tracksync.ReportFiles) {
	archiver, err := archive.New(cnf.Archive)
	if err != nil {
		logrus.WithError(err).Warn("Report archive unavailable")
		return
	}
	if archiver == nil {
		return
	}
	location, err := archiver.Upload(ctx, files.Success, files.Errors)
	if err != nil {
		logrus.WithError(err).Warn("Failed to archive reports")
		return
	}
	fmt.Fprintf(out, "Archived: %s\n", location)
}
