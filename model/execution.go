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
package model

import "time"

// Execution is the persisted summary of one batch run.
type Execution struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	FileName   string    `json:"file_name"`
	Total      int       `json:"total"`
	Success    int       `json:"success"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
	DurationMs int64     `json:"duration_ms"`
	DryRun     bool      `json:"dry_run"`

	Failures []ExecutionFailure `json:"failures,omitempty"`
}

// ExecutionFailure is one failed order of a run, kept for later review.
type ExecutionFailure struct {
	OrderID       string `json:"order_id"`
	InvoiceNumber string `json:"invoice_number"`
	Reason        string `json:"reason"`
	Detail        string `json:"detail"`
}

type ExecutionStats struct {
	TotalExecutions int   `json:"total_executions"`
	TotalProcessed  int   `json:"total_processed"`
	TotalSuccess    int   `json:"total_success"`
	TotalErrors     int   `json:"total_errors"`
	AvgDurationMs   int64 `json:"avg_duration_ms"`
	AvgSuccessRate  int   `json:"avg_success_rate"`
}

// NewExecution summarises a finished report.
func NewExecution(fileName string, r *BatchReport) *Execution {
	return &Execution{
		ID:         GenerateUUIDWithSuffix("exec"),
		Date:       r.StartedAt,
		FileName:   fileName,
		Total:      r.Total,
		Success:    r.OK,
		Skipped:    r.Skipped,
		Errors:     r.Errors,
		DurationMs: r.Duration().Milliseconds(),
		DryRun:     r.DryRun,
		Failures:   failuresFromRows(r.ErrorRows),
	}
}

// failuresFromRows reads error report rows: order, invoice, detail, reason.
func failuresFromRows(rows [][]string) []ExecutionFailure {
	var failures []ExecutionFailure
	for _, row := range rows {
		if len(row) < 4 {
			continue
		}
		failures = append(failures, ExecutionFailure{
			OrderID:       row[0],
			InvoiceNumber: row[1],
			Detail:        row[2],
			Reason:        row[3],
		})
	}
	return failures
}

// ComputeStats aggregates a list of executions. Rates and averages are rounded.
func ComputeStats(history []*Execution) ExecutionStats {
	var stats ExecutionStats
	if len(history) == 0 {
		return stats
	}

	var totalDuration int64
	for _, e := range history {
		stats.TotalProcessed += e.Total
		stats.TotalSuccess += e.Success
		stats.TotalErrors += e.Errors
		totalDuration += e.DurationMs
	}
	stats.TotalExecutions = len(history)
	stats.AvgDurationMs = roundDiv(totalDuration, int64(len(history)))
	if stats.TotalProcessed > 0 {
		stats.AvgSuccessRate = int(roundDiv(int64(stats.TotalSuccess)*100, int64(stats.TotalProcessed)))
	}
	return stats
}

func roundDiv(a, b int64) int64 {
	return (a + b/2) / b
}
