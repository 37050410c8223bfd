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
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bisturi/tracksync/internal/apierror"
	"github.com/bisturi/tracksync/model"
)

// ReconcilerOptions tunes a Reconciler. Zero values are usable.
type ReconcilerOptions struct {
	// DryRun logs the PATCH and PUT bodies instead of sending them.
	DryRun bool
	// TrackingURLBase is the public tracking page; the tracking number is appended as a fragment.
	TrackingURLBase string
	// Location is used for zone-less carrier dates and the delivered date. Defaults to time.Local.
	Location *time.Location
	Now      func() time.Time
}

// Reconciler applies carrier tracking to one commerce order at a time. It is safe for
// concurrent use as long as its clients are.
type Reconciler struct {
	carrier  CarrierAPI
	commerce CommerceAPI
	opts     ReconcilerOptions
}

func NewReconciler(carrier CarrierAPI, commerce CommerceAPI, opts ReconcilerOptions) *Reconciler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.TrackingURLBase == "" {
		opts.TrackingURLBase = "https://rastreamento.bisturi.com.br/"
	}
	return &Reconciler{carrier: carrier, commerce: commerce, opts: opts}
}

func (r *Reconciler) DryRun() bool {
	return r.opts.DryRun
}

func (r *Reconciler) now() time.Time {
	if r.opts.Now != nil {
		return r.opts.Now()
	}
	return time.Now()
}

// Reconcile runs the full pipeline for one order and always returns a terminal outcome.
// Panics are converted into an exception outcome.
func (r *Reconciler) Reconcile(ctx context.Context, ref model.OrderReference) (outcome model.Outcome) {
	orderID := strings.TrimSpace(ref.OrderID)
	ctx, span := tracer.Start(ctx, "Reconciling order", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.Bool("dry_run", r.opts.DryRun),
	))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			outcome = model.Failed(orderID, "", model.ReasonException, fmt.Sprintf("panic: %v", rec))
		}
		span.SetAttributes(attribute.String("outcome.kind", string(outcome.Kind)))
		if outcome.Reason != "" {
			span.SetAttributes(attribute.String("outcome.reason", string(outcome.Reason)))
		}
		if outcome.Kind == model.OutcomeFailed {
			span.SetStatus(codes.Error, outcome.Detail)
		}
		logOutcome(outcome)
	}()

	return r.reconcile(ctx, span, orderID)
}

func (r *Reconciler) reconcile(ctx context.Context, span trace.Span, orderID string) model.Outcome {
	logger := logrus.WithField("order_id", orderID)
	logger.Debug("Reconciling order")

	// 1. carrier record
	record, err := r.carrier.GetTracking(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return model.Failed(orderID, "", model.ReasonException, apierror.Detail(err))
	}
	if record == nil {
		return model.Skipped(orderID, "", "", model.ReasonCarrierNotFound, "order not found at carrier")
	}

	// 2. extraction
	orderWeb := record.OrderReference()
	invoiceNumber := record.InvoiceNumber.String()
	dispatched := record.Event(model.StatusDispatched)
	delivered := record.Event(model.StatusDelivered)

	logger.WithFields(logrus.Fields{
		"order_web":      orderWeb,
		"invoice_number": invoiceNumber,
		"tracking_id":    record.TrackingID.String(),
		"carrier_id":     record.CarrierID.String(),
		"dispatched":     dispatched != nil,
		"delivered":      delivered != nil,
	}).Debug("Carrier record extracted")

	if orderWeb == "" {
		return model.Skipped(orderID, "", "", model.ReasonNoOrderReference, "carrier record has no order reference")
	}
	if invoiceNumber == "" {
		return model.Skipped(orderID, orderWeb, "", model.ReasonNoInvoiceNumber, "carrier record has no invoice number")
	}

	// 3. carrier gate
	if !record.IsAllowedCarrier() {
		found := "unknown"
		if !record.CarrierID.Empty() {
			found = "ID " + record.CarrierID.String()
		}
		detail := fmt.Sprintf("wrong carrier: found %s, expected %s (ID %d)", found, model.BisturiExpressName, model.BisturiExpressCarrierID)
		return model.Skipped(orderID, orderWeb, invoiceNumber, model.ReasonWrongCarrier, detail)
	}

	// 4. commerce order
	span.AddEvent("fetching commerce order")
	order, err := r.commerce.GetOrder(ctx, orderWeb)
	if err != nil {
		span.RecordError(err)
		failed := model.Failed(orderID, invoiceNumber, model.ReasonException, apierror.Detail(err))
		failed.OrderWeb = orderWeb
		return failed
	}
	if order == nil {
		return model.Skipped(orderID, orderWeb, invoiceNumber, model.ReasonOrderNotFound, "order not found in commerce")
	}

	// 5. invoice
	match, ok := LocateInvoice(order, invoiceNumber)
	if !ok {
		logger.WithField("available", availableInvoices(order)).Debug("No invoice on order")
		return model.Skipped(orderID, orderWeb, invoiceNumber, model.ReasonInvoiceNotFound,
			fmt.Sprintf("invoice %s not found on order", invoiceNumber))
	}
	commerceInvoice := match.Invoice.Key()
	if match.Fallback {
		logger.WithFields(logrus.Fields{
			"order_web":        orderWeb,
			"invoice_number":   invoiceNumber,
			"fallback_invoice": commerceInvoice,
			"source":           match.Source,
			"available":        availableInvoices(order),
		}).Warn("Invoice not matched, using first available invoice; confirm manually before disabling dry-run")
	} else {
		logger.WithFields(logrus.Fields{"invoice": commerceInvoice, "source": match.Source}).Debug("Invoice located")
	}

	// 6. idempotency
	if match.Invoice.HasTracking() {
		skipped := model.Skipped(orderID, orderWeb, commerceInvoice, model.ReasonAlreadyHasTracking,
			"invoice already tracked as "+match.Invoice.CurrentTrackingNumber())
		skipped.InvoiceSource = match.Source
		skipped.Fallback = match.Fallback
		return skipped
	}

	// 7. payload
	payload := r.buildTrackingPayload(record, orderID)

	// 8. patch
	if r.opts.DryRun {
		logger.WithFields(logrus.Fields{"order_web": orderWeb, "invoice": commerceInvoice, "payload": payload}).Info("[DRY] PATCH not sent")
	} else {
		span.AddEvent("patching invoice")
		if err := r.commerce.PatchInvoice(ctx, orderWeb, commerceInvoice, payload); err != nil {
			span.RecordError(err)
			failed := model.Failed(orderID, commerceInvoice, model.ReasonPatchFailed, apierror.Detail(err))
			failed.OrderWeb = orderWeb
			return failed
		}
	}

	// 9. delivery
	var delivery *model.DeliveryPayload
	if delivered != nil {
		delivery = r.buildDeliveryPayload(delivered, order)
		if r.opts.DryRun {
			logger.WithFields(logrus.Fields{"order_web": orderWeb, "invoice": commerceInvoice, "payload": delivery}).Info("[DRY] PUT delivered not sent")
		} else {
			span.AddEvent("marking delivered")
			if err := r.commerce.MarkDelivered(ctx, orderWeb, commerceInvoice, delivery); err != nil {
				span.RecordError(err)
				failed := model.Failed(orderID, commerceInvoice, model.ReasonPutFailed, apierror.Detail(err))
				failed.OrderWeb = orderWeb
				failed.Payload = payload
				return failed
			}
		}
	}

	success := model.Success(orderID, orderWeb, commerceInvoice, payload)
	success.Delivery = delivery
	success.Fallback = match.Fallback
	success.InvoiceSource = match.Source
	return success
}

func logOutcome(o model.Outcome) {
	fields := logrus.Fields{
		"order_id":  o.OrderID,
		"order_web": o.OrderWeb,
		"invoice":   o.InvoiceNumber,
	}
	switch o.Kind {
	case model.OutcomeSuccess:
		if o.Payload != nil {
			fields["tracking_number"] = o.Payload.TrackingNumber
		}
		fields["delivered"] = o.Delivery != nil
		logrus.WithFields(fields).Info("[OK] Order reconciled")
	case model.OutcomeSkipped:
		fields["reason"] = o.Reason
		fields["detail"] = o.Detail
		if o.Reason == model.ReasonAlreadyHasTracking {
			logrus.WithFields(fields).Info("[SKIP] Order skipped")
		} else {
			logrus.WithFields(fields).Warn("[SKIP] Order skipped")
		}
	default:
		fields["reason"] = o.Reason
		fields["detail"] = o.Detail
		logrus.WithFields(fields).Error("[ERR] Order failed")
	}
}
