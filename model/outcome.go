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

import (
	"fmt"
	"time"
)

type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeFailed  OutcomeKind = "failed"
)

// Reason explains why an order was skipped or failed.
type Reason string

const (
	ReasonCarrierNotFound    Reason = "carrier-not-found"
	ReasonNoOrderReference   Reason = "no-order-reference"
	ReasonNoInvoiceNumber    Reason = "no-invoice-number"
	ReasonWrongCarrier       Reason = "wrong-carrier"
	ReasonOrderNotFound      Reason = "order-not-found"
	ReasonInvoiceNotFound    Reason = "invoice-not-found"
	ReasonAlreadyHasTracking Reason = "already-has-tracking"
	ReasonPatchFailed        Reason = "patch-failed"
	ReasonPutFailed          Reason = "put-failed"
	ReasonException          Reason = "exception"
)

// Reasons lists the closed set of non-success reasons.
var Reasons = []Reason{
	ReasonCarrierNotFound, ReasonNoOrderReference, ReasonNoInvoiceNumber, ReasonWrongCarrier,
	ReasonOrderNotFound, ReasonInvoiceNotFound, ReasonAlreadyHasTracking,
	ReasonPatchFailed, ReasonPutFailed, ReasonException,
}

// Valid reports whether r is one of Reasons.
func (r Reason) Valid() bool {
	for _, known := range Reasons {
		if r == known {
			return true
		}
	}
	return false
}

// Outcome is the terminal result of reconciling one order.
type Outcome struct {
	Kind          OutcomeKind      `json:"kind"`
	OrderID       string           `json:"order_id"`
	OrderWeb      string           `json:"order_web,omitempty"`
	InvoiceNumber string           `json:"invoice_number,omitempty"`
	Reason        Reason           `json:"reason,omitempty"`
	Detail        string           `json:"detail,omitempty"`
	Payload       *TrackingPayload `json:"payload,omitempty"`
	Delivery      *DeliveryPayload `json:"delivery,omitempty"`
	// Fallback is set when the invoice was not matched by number and the first
	// available invoice was used instead.
	Fallback      bool   `json:"fallback,omitempty"`
	InvoiceSource string `json:"invoice_source,omitempty"`
}

func Success(orderID, orderWeb, invoiceNumber string, payload *TrackingPayload) Outcome {
	return Outcome{Kind: OutcomeSuccess, OrderID: orderID, OrderWeb: orderWeb, InvoiceNumber: invoiceNumber, Payload: payload}
}

func Skipped(orderID, orderWeb, invoiceNumber string, reason Reason, detail string) Outcome {
	return Outcome{Kind: OutcomeSkipped, OrderID: orderID, OrderWeb: orderWeb, InvoiceNumber: invoiceNumber, Reason: reason, Detail: detail}
}

func Failed(orderID, invoiceNumber string, reason Reason, detail string) Outcome {
	return Outcome{Kind: OutcomeFailed, OrderID: orderID, InvoiceNumber: invoiceNumber, Reason: reason, Detail: detail}
}

// OK reports whether the outcome counts as a non-failure. already-has-tracking is ok.
// A skip without a known reason is not.
func (o Outcome) OK() bool {
	switch o.Kind {
	case OutcomeSuccess:
		return true
	case OutcomeSkipped:
		return o.Reason.Valid()
	default:
		return false
	}
}

// Reference is the order id shown in reports: the commerce id when known.
func (o Outcome) Reference() string {
	if o.OrderWeb != "" {
		return o.OrderWeb
	}
	return o.OrderID
}

// BatchReport accumulates outcomes in completion order.
type BatchReport struct {
	Rows       [][]string `json:"rows"`
	ErrorRows  [][]string `json:"error_rows"`
	Total      int        `json:"total"`
	Processed  int        `json:"processed"`
	OK         int        `json:"ok"`
	Skipped    int        `json:"skipped"`
	Errors     int        `json:"errors"`
	Fallbacks  int        `json:"fallbacks"`
	DryRun     bool       `json:"dry_run"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Add records one outcome and appends its report row. Outcomes that are not OK land in
// the error report, under exception when their reason is unknown.
func (r *BatchReport) Add(o Outcome) {
	r.Processed++
	if !o.OK() {
		r.addError(o)
		return
	}
	switch o.Kind {
	case OutcomeSuccess:
		r.OK++
		trackingNumber := ""
		if o.Payload != nil {
			trackingNumber = o.Payload.TrackingNumber
		}
		reason := ""
		if o.Fallback {
			r.Fallbacks++
			reason = "invoice-fallback"
		}
		r.Rows = append(r.Rows, []string{o.Reference(), o.InvoiceNumber, trackingNumber, "OK", reason})
	case OutcomeSkipped:
		r.Skipped++
		r.Rows = append(r.Rows, []string{o.Reference(), o.InvoiceNumber, "", "SKIPPED", string(o.Reason)})
	}
}

func (r *BatchReport) addError(o Outcome) {
	r.Errors++
	reason := o.Reason
	detail := o.Detail
	if !reason.Valid() {
		if detail == "" {
			detail = fmt.Sprintf("%s outcome with reason %q", o.Kind, o.Reason)
		}
		reason = ReasonException
	}
	if detail == "" {
		detail = string(reason)
	}
	r.ErrorRows = append(r.ErrorRows, []string{o.OrderID, o.InvoiceNumber, detail, string(reason), ""})
}

// Duration is the wall time of the run.
func (r *BatchReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ExitCode is 0 when nothing failed and 2 otherwise.
func (r *BatchReport) ExitCode() int {
	if r.Errors > 0 {
		return 2
	}
	return 0
}
