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

// Package tracksync reconciles carrier shipment tracking with commerce order invoices.
package tracksync

import (
	"context"

	"go.opentelemetry.io/otel"

	"github.com/bisturi/tracksync/model"
)

var tracer = otel.Tracer("tracksync.reconciler")

// CarrierAPI reads tracking records. A nil record with a nil error means the carrier
// does not know the order.
type CarrierAPI interface {
	GetTracking(ctx context.Context, orderID string) (*model.CarrierRecord, error)
}

// CommerceAPI reads orders and writes invoice tracking. A nil order with a nil error
// means the order does not exist.
type CommerceAPI interface {
	GetOrder(ctx context.Context, orderID string) (*model.CommerceOrder, error)
	PatchInvoice(ctx context.Context, orderID, invoiceNumber string, payload *model.TrackingPayload) error
	MarkDelivered(ctx context.Context, orderID, invoiceNumber string, payload *model.DeliveryPayload) error
}
