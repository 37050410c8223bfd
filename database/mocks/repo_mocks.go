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

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bisturi/tracksync/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) SaveExecution(ctx context.Context, exec *model.Execution, keep int) error {
	args := m.Called(ctx, exec, keep)
	return args.Error(0)
}

func (m *MockDataSource) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Execution), args.Error(1)
}

func (m *MockDataSource) GetExecutions(ctx context.Context, limit int) ([]*model.Execution, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Execution), args.Error(1)
}

func (m *MockDataSource) DeleteExecution(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) ClearExecutions(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) GetExecutionStats(ctx context.Context) (model.ExecutionStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.ExecutionStats), args.Error(1)
}

func (m *MockDataSource) Close() error {
	args := m.Called()
	return args.Error(0)
}
