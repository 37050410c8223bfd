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

package database

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/bisturi/tracksync/internal/apierror"
	"github.com/bisturi/tracksync/model"
)

const executionColumns = `id, executed_at, file_name, total, success, skipped, errors, duration_ms, dry_run`

// SaveExecution records a run and its failures, then trims the history to the newest keep runs.
// keep <= 0 keeps everything.
func (d Datasource) SaveExecution(ctx context.Context, exec *model.Execution, keep int) error {
	ctx, span := otel.Tracer("History").Start(ctx, "Saving execution")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO executions(`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.Date, exec.FileName, exec.Total, exec.Success, exec.Skipped,
		exec.Errors, exec.DurationMs, exec.DryRun,
	)
	if err != nil {
		span.RecordError(err)
		return err
	}

	for _, f := range exec.Failures {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO execution_failures(execution_id, order_id, invoice_number, reason, detail)
			VALUES (?, ?, ?, ?, ?)`,
			exec.ID, f.OrderID, f.InvoiceNumber, f.Reason, f.Detail,
		)
		if err != nil {
			span.RecordError(err)
			return err
		}
	}

	if keep > 0 {
		if err = trimExecutions(ctx, tx, keep); err != nil {
			span.RecordError(err)
			return err
		}
	}

	err = tx.Commit()
	return err
}

func trimExecutions(ctx context.Context, tx *sql.Tx, keep int) error {
	const newest = `SELECT id FROM executions ORDER BY executed_at DESC, rowid DESC LIMIT ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM execution_failures WHERE execution_id NOT IN (`+newest+`)`, keep); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM executions WHERE id NOT IN (`+newest+`)`, keep)
	return err
}

// GetExecution retrieves one run and its failures.
func (d Datasource) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	ctx, span := otel.Tracer("History").Start(ctx, "Fetching execution")
	defer span.End()

	exec := &model.Execution{}
	err := d.Conn.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = ?`, id).Scan(
		&exec.ID, &exec.Date, &exec.FileName, &exec.Total, &exec.Success, &exec.Skipped,
		&exec.Errors, &exec.DurationMs, &exec.DryRun,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("execution with ID '%s' not found", id), 404)
		}
		span.RecordError(err)
		return nil, err
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT order_id, invoice_number, reason, detail
		FROM execution_failures
		WHERE execution_id = ?
		ORDER BY id`, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var f model.ExecutionFailure
		if err := rows.Scan(&f.OrderID, &f.InvoiceNumber, &f.Reason, &f.Detail); err != nil {
			return nil, err
		}
		exec.Failures = append(exec.Failures, f)
	}
	return exec, rows.Err()
}

// GetExecutions retrieves runs newest first. limit <= 0 returns every run.
func (d Datasource) GetExecutions(ctx context.Context, limit int) ([]*model.Execution, error) {
	ctx, span := otel.Tracer("History").Start(ctx, "Fetching executions")
	defer span.End()

	if limit <= 0 {
		limit = -1
	}
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+executionColumns+`
		FROM executions
		ORDER BY executed_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	executions := []*model.Execution{}
	for rows.Next() {
		exec := &model.Execution{}
		if err := rows.Scan(
			&exec.ID, &exec.Date, &exec.FileName, &exec.Total, &exec.Success, &exec.Skipped,
			&exec.Errors, &exec.DurationMs, &exec.DryRun,
		); err != nil {
			return nil, err
		}
		executions = append(executions, exec)
	}
	return executions, rows.Err()
}

// DeleteExecution removes one run and its failures.
func (d Datasource) DeleteExecution(ctx context.Context, id string) error {
	ctx, span := otel.Tracer("History").Start(ctx, "Deleting execution")
	defer span.End()

	if _, err := d.Conn.ExecContext(ctx, `DELETE FROM execution_failures WHERE execution_id = ?`, id); err != nil {
		span.RecordError(err)
		return err
	}
	result, err := d.Conn.ExecContext(ctx, `DELETE FROM executions WHERE id = ?`, id)
	if err != nil {
		span.RecordError(err)
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("execution with ID '%s' not found", id), 404)
	}
	return nil
}

// ClearExecutions removes every run and reports how many were deleted.
func (d Datasource) ClearExecutions(ctx context.Context) (int64, error) {
	ctx, span := otel.Tracer("History").Start(ctx, "Clearing executions")
	defer span.End()

	if _, err := d.Conn.ExecContext(ctx, `DELETE FROM execution_failures`); err != nil {
		span.RecordError(err)
		return 0, err
	}
	result, err := d.Conn.ExecContext(ctx, `DELETE FROM executions`)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return result.RowsAffected()
}

// GetExecutionStats aggregates every stored run.
func (d Datasource) GetExecutionStats(ctx context.Context) (model.ExecutionStats, error) {
	executions, err := d.GetExecutions(ctx, 0)
	if err != nil {
		return model.ExecutionStats{}, err
	}
	return model.ComputeStats(executions), nil
}
