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
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bisturi/tracksync/config"
)

// Tracksync represents the CLI application, encapsulating the root Cobra command.
type Tracksync struct {
	cmd *cobra.Command
	app *tracksyncInstance
}

// tracksyncInstance holds what every command shares once the pre-run hook has executed.
type tracksyncInstance struct {
	cnf      *config.Configuration
	verbose  bool
	debug    bool
	exitCode int
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// configureLogging sends logs to stderr. Info by default, Debug with --verbose, Trace with --debug.
func configureLogging(w io.Writer, verbose, debug bool) {
	logrus.SetOutput(w)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})
	switch {
	case debug:
		logrus.SetLevel(logrus.TraceLevel)
	case verbose:
		logrus.SetLevel(logrus.DebugLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// preRun loads the configuration before any command runs.
func preRun(app *tracksyncInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		configureLogging(cmd.ErrOrStderr(), app.verbose, app.debug)

		cnf, err := config.Load(*configFile)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		app.cnf = cnf
		return nil
	}
}

// NewCLI creates the command-line interface with every subcommand attached.
func NewCLI() *Tracksync {
	var configFile string
	app := &tracksyncInstance{}

	rootCmd := &cobra.Command{
		Use:           "tracksync",
		Short:         "Sync Bisturi carrier tracking into VTEX orders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./tracksync.json", "Configuration file")
	rootCmd.PersistentFlags().BoolVar(&app.verbose, "verbose", false, "Log extracted fields and invoice lookups")
	rootCmd.PersistentFlags().BoolVar(&app.debug, "debug", false, "Log raw API responses")
	rootCmd.PersistentPreRunE = preRun(app, &configFile)

	rootCmd.AddCommand(runCommands(app))
	rootCmd.AddCommand(previewCommands(app))
	rootCmd.AddCommand(historyCommands(app))
	rootCmd.AddCommand(migrateCommands(app))
	rootCmd.AddCommand(archiveCommands(app))
	rootCmd.AddCommand(configCommands(app))

	return &Tracksync{cmd: rootCmd, app: app}
}

// execute runs the root command and returns the process exit code: 1 for usage or
// configuration errors, otherwise what the command recorded.
func (t Tracksync) execute(ctx context.Context, args []string) int {
	t.cmd.SetArgs(args)
	if err := t.cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(t.cmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return t.app.exitCode
}

func main() {
	defer recoverPanic()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := NewCLI().execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
