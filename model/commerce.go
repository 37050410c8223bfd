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

// Invoice is a fiscal document attached to a commerce order. The OMS is not consistent
// about field names across endpoints and order versions, so every known alias is kept.
type Invoice struct {
	InvoiceNumber   FlexString `json:"invoiceNumber"`
	InvoiceID       FlexString `json:"invoiceId"`
	Number          FlexString `json:"number"`
	ID              FlexString `json:"id"`
	TrackingNumber  FlexString `json:"trackingNumber"`
	TrackingNumbers FlexString `json:"trackingnumbers"`
	TrackingURL     FlexString `json:"trackingUrl"`
	TrackingURLAlt  FlexString `json:"trackingurl"`
	Courier         FlexString `json:"courier"`
}

// Key is the invoice identity as a trimmed string. It is never coerced to a number.
func (i Invoice) Key() string {
	return firstNonEmpty(i.InvoiceNumber, i.Number, i.ID, i.InvoiceID)
}

// PackageKey is the identity used for package attachments, which prefer invoiceId over number.
func (i Invoice) PackageKey() string {
	return firstNonEmpty(i.InvoiceNumber, i.InvoiceID, i.Number)
}

func (i Invoice) CurrentTrackingNumber() string {
	return firstNonEmpty(i.TrackingNumber, i.TrackingNumbers)
}

func (i Invoice) CurrentTrackingURL() string {
	return firstNonEmpty(i.TrackingURL, i.TrackingURLAlt)
}

// HasTracking reports whether both tracking number and URL are already set.
func (i Invoice) HasTracking() bool {
	return i.CurrentTrackingNumber() != "" && i.CurrentTrackingURL() != ""
}

type Address struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

type PackageAttachment struct {
	Packages []Invoice `json:"packages"`
}

type OrderForm struct {
	Invoices []Invoice `json:"invoices"`
}

type ShippingData struct {
	Address *Address `json:"address"`
}

// CommerceOrder is the subset of the OMS order document the reconciler reads.
type CommerceOrder struct {
	OrderID           string             `json:"orderId"`
	Status            string             `json:"status"`
	PackageAttachment *PackageAttachment `json:"packageAttachment"`
	Packages          []Invoice          `json:"packages"`
	Invoices          []Invoice          `json:"invoices"`
	Invoice           []Invoice          `json:"invoice"`
	OrderForm         *OrderForm         `json:"orderForm"`
	SelectedAddresses []Address          `json:"selectedAddresses"`
	ShippingData      *ShippingData      `json:"shippingData"`
}

// DeliveryAddress returns the city and state used for delivery events.
// selectedAddresses wins over shippingData; missing values are empty strings.
func (o *CommerceOrder) DeliveryAddress() (city, state string) {
	if len(o.SelectedAddresses) > 0 {
		return o.SelectedAddresses[0].City, o.SelectedAddresses[0].State
	}
	if o.ShippingData != nil && o.ShippingData.Address != nil {
		return o.ShippingData.Address.City, o.ShippingData.Address.State
	}
	return "", ""
}

// TrackingPayload is the body of the invoice PATCH.
type TrackingPayload struct {
	TrackingNumber string `json:"trackingNumber,omitempty"`
	TrackingURL    string `json:"trackingUrl,omitempty"`
	Courier        string `json:"courier,omitempty"`
	DispatchedDate string `json:"dispatchedDate,omitempty"`
}

type DeliveryEvent struct {
	City        string `json:"city"`
	State       string `json:"state"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

// DeliveryPayload is the body of the tracking PUT that marks an invoice delivered.
type DeliveryPayload struct {
	IsDelivered   bool            `json:"isDelivered"`
	DeliveredDate *string         `json:"deliveredDate"`
	Events        []DeliveryEvent `json:"events"`
}
