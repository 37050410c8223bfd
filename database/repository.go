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

	"github.com/bisturi/tracksync/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	execution // Interface for execution history operations
	Close() error
}

// execution defines methods for handling the execution history.
type execution interface {
	SaveExecution(ctx context.Context, exec *model.Execution, keep int) error // Records a run and keeps only the newest entries
	GetExecution(ctx context.Context, id string) (*model.Execution, error)    // Retrieves a run with its failures
	GetExecutions(ctx context.Context, limit int) ([]*model.Execution, error) // Retrieves runs, newest first
	DeleteExecution(ctx context.Context, id string) error                     // Deletes one run
	ClearExecutions(ctx context.Context) (int64, error)                       // Deletes every run
	GetExecutionStats(ctx context.Context) (model.ExecutionStats, error)      // Aggregates every stored run
}
