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

	"github.com/spf13/cobra"

	"github.com/bisturi/tracksync/internal/input"
)

// previewCommands shows what a run would read from a file.
func previewCommands(_ *tracksyncInstance) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "show the size, line count and first lines of an input file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			preview, err := input.Preview(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(preview, "", "    ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintf(out, "File: %s\n", preview.Name)
			fmt.Fprintf(out, "Size: %d bytes\n", preview.Size)
			fmt.Fprintf(out, "Lines: %d\n", preview.LineCount)
			for _, line := range preview.Lines {
				fmt.Fprintf(out, "  %s\n", line)
			}
			if more := preview.LineCount - len(preview.Lines); more > 0 {
				fmt.Fprintf(out, "  ... %d more\n", more)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the preview as JSON")
	return cmd
}
