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

package tracksync

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bisturi/tracksync/model"
)

// ReportFiles are the paths written by WriteReports.
type ReportFiles struct {
	Success string
	Errors  string
}

// WriteReports writes the success/skipped rows and the failed rows to two CSV files in dir.
// Both files are always written, even when empty, and replace any previous run.
func WriteReports(dir, successName, errorName string, report *model.BatchReport) (ReportFiles, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ReportFiles{}, errors.Wrap(err, "failed to create output directory")
	}

	files := ReportFiles{
		Success: filepath.Join(dir, successName),
		Errors:  filepath.Join(dir, errorName),
	}
	if err := os.WriteFile(files.Success, []byte(EncodeRows(report.Rows)), 0o644); err != nil {
		return files, errors.Wrap(err, "failed to write success report")
	}
	if err := os.WriteFile(files.Errors, []byte(EncodeRows(report.ErrorRows)), 0o644); err != nil {
		return files, errors.Wrap(err, "failed to write error report")
	}
	return files, nil
}

// EncodeRows renders rows as CSV with every field quoted and embedded quotes doubled.
// Rows are separated by a single newline with none after the last.
func EncodeRows(rows [][]string) string {
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		for j, field := range row {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(field, `"`, `""`))
			b.WriteByte('"')
		}
	}
	return b.String()
}

// PrintSummary writes the end-of-run totals.
func PrintSummary(w io.Writer, report *model.BatchReport, files ReportFiles) {
	if files.Success != "" {
		fmt.Fprintln(w, "\nReports:")
		fmt.Fprintf(w, "  - Success: %s\n", files.Success)
		fmt.Fprintf(w, "  - Errors: %s\n", files.Errors)
	}
	fmt.Fprintln(w, "\nProcessing finished.")
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  - Total: %d\n", report.Total)
	fmt.Fprintf(w, "  - Success: %d\n", report.OK)
	fmt.Fprintf(w, "  - Skipped: %d\n", report.Skipped)
	fmt.Fprintf(w, "  - Errors: %d\n", report.Errors)
	if report.Fallbacks > 0 {
		fmt.Fprintf(w, "  - Invoice fallbacks: %d (review before trusting)\n", report.Fallbacks)
	}
	fmt.Fprintf(w, "  - Duration: %s\n", report.Duration().Round(time.Millisecond))
}
