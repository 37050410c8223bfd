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
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bisturi/tracksync/internal/archive"
)

// archiveCommands uploads the reports of the last run to S3.
func archiveCommands(app *tracksyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "upload the last run's reports to S3",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			archiver, err := archive.New(app.cnf.Archive)
			if err != nil {
				return err
			}
			if archiver == nil {
				return fmt.Errorf("no S3 bucket configured")
			}

			run := app.cnf.Run
			location, err := archiver.Upload(cmd.Context(),
				filepath.Join(run.OutputDir, run.SuccessFile),
				filepath.Join(run.OutputDir, run.ErrorFile),
			)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived: %s\n", location)
			return nil
		},
	}
	return cmd
}
