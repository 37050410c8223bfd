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

import "strings"

const (
	// BisturiExpressCarrierID is the only carrier whose orders may be updated.
	BisturiExpressCarrierID int64 = 1924
	BisturiExpressName            = "Bisturi Express"

	StatusDispatched = "FATURADO"
	StatusDelivered  = "ENTREGUE"
)

// OrderReference is a single input unit read from the operator's file.
type OrderReference struct {
	OrderID        string `json:"order_id"`
	InvoiceNumber  string `json:"invoice_number,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}

type StatusEvent struct {
	Status string     `json:"status"`
	Date   FlexString `json:"date"`
}

// CarrierRecord is the tracking document returned by the carrier for one order.
// TrackingID is what the carrier calls "orderId": its own shipment number.
type CarrierRecord struct {
	TrackingID    FlexString    `json:"orderId"`
	CarrierID     FlexString    `json:"carrierId"`
	InvoiceNumber FlexString    `json:"invoiceNumber"`
	OrderWeb      FlexString    `json:"orderWeb"`
	Status        []StatusEvent `json:"status"`
}

// OrderReference returns the commerce order id, falling back to the carrier's own order id.
func (c *CarrierRecord) OrderReference() string {
	return firstNonEmpty(c.OrderWeb, c.TrackingID)
}

// Event finds a status milestone by name, case-insensitively.
func (c *CarrierRecord) Event(name string) *StatusEvent {
	for i := range c.Status {
		if strings.EqualFold(strings.TrimSpace(c.Status[i].Status), name) {
			return &c.Status[i]
		}
	}
	return nil
}

// IsAllowedCarrier reports whether the record belongs to Bisturi Express.
func (c *CarrierRecord) IsAllowedCarrier() bool {
	id, ok := c.CarrierID.Int64()
	return ok && id == BisturiExpressCarrierID
}
