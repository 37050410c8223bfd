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

// MockCarrier is a mock implementation of tracksync.CarrierAPI
type MockCarrier struct {
	mock.Mock
}

func (m *MockCarrier) GetTracking(ctx context.Context, orderID string) (*model.CarrierRecord, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CarrierRecord), args.Error(1)
}

// MockCommerce is a mock implementation of tracksync.CommerceAPI
type MockCommerce struct {
	mock.Mock
}

func (m *MockCommerce) GetOrder(ctx context.Context, orderID string) (*model.CommerceOrder, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CommerceOrder), args.Error(1)
}

func (m *MockCommerce) PatchInvoice(ctx context.Context, orderID, invoiceNumber string, payload *model.TrackingPayload) error {
	args := m.Called(ctx, orderID, invoiceNumber, payload)
	return args.Error(0)
}

func (m *MockCommerce) MarkDelivered(ctx context.Context, orderID, invoiceNumber string, payload *model.DeliveryPayload) error {
	args := m.Called(ctx, orderID, invoiceNumber, payload)
	return args.Error(0)
}
