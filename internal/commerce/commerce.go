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

// Package commerce talks to the VTEX order management API.
package commerce

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/bisturi/tracksync/config"
	"github.com/bisturi/tracksync/internal/apierror"
	"github.com/bisturi/tracksync/internal/request"
	"github.com/bisturi/tracksync/model"
)

const (
	ordersPath = "/api/oms/pvt/orders/"

	// rateLimitPadding is added to every Retry-After wait.
	rateLimitPadding = 500 * time.Millisecond
	// maxRateLimitRetries bounds how many times a write honours Retry-After.
	maxRateLimitRetries = 1
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the context-aware default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type Client struct {
	http  *request.Client
	Sleep SleepFunc
	Now   func() time.Time
}

// New builds a commerce client for the configured account. cnf must have been loaded
// through config.Load so that defaults are applied.
func New(cnf *config.Configuration) *Client {
	retries := config.DEFAULT_COMMERCE_RETRIES
	if cnf.Commerce.MaxRetries != nil {
		retries = *cnf.Commerce.MaxRetries
	}
	httpClient := request.NewClient("commerce", cnf.CommerceBaseURL(),
		time.Duration(cnf.Commerce.TimeoutSec)*time.Second, retries, request.RetryServerErrorsAndReadRateLimits)
	httpClient.Header.Set("X-VTEX-API-AppKey", cnf.Commerce.AppKey)
	httpClient.Header.Set("X-VTEX-API-AppToken", cnf.Commerce.AppToken)

	if rps := cnf.Commerce.RequestsPerSecond; rps != nil && *rps > 0 {
		burst := int(*rps)
		if burst < 1 {
			burst = 1
		}
		httpClient.Limiter = rate.NewLimiter(rate.Limit(*rps), burst)
	}

	return &Client{http: httpClient, Sleep: Sleep, Now: time.Now}
}

// HTTP exposes the underlying REST client so callers can swap transports or backoff.
func (c *Client) HTTP() *request.Client {
	return c.http
}

// GetOrder returns the order document, or nil when the order does not exist.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*model.CommerceOrder, error) {
	var order *model.CommerceOrder
	err := c.http.Get(ctx, ordersPath+url.PathEscape(orderID), &order)
	if err != nil {
		if apierror.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "get order %s", orderID)
	}
	return order, nil
}

// PatchInvoice sets tracking fields on one invoice.
func (c *Client) PatchInvoice(ctx context.Context, orderID, invoiceNumber string, payload *model.TrackingPayload) error {
	path := ordersPath + url.PathEscape(orderID) + "/invoice/" + url.PathEscape(invoiceNumber)
	return c.write(ctx, http.MethodPatch, path, payload)
}

// MarkDelivered replaces the tracking state of an invoice with a delivered event.
func (c *Client) MarkDelivered(ctx context.Context, orderID, invoiceNumber string, payload *model.DeliveryPayload) error {
	path := ordersPath + url.PathEscape(orderID) + "/invoice/" + url.PathEscape(invoiceNumber) + "/tracking"
	return c.write(ctx, http.MethodPut, path, payload)
}

// write sends a mutating request. A 429 carrying Retry-After is waited out and retried
// at most maxRateLimitRetries times; any other error is returned as is.
func (c *Client) write(ctx context.Context, method, path string, body interface{}) error {
	for attempt := 0; ; attempt++ {
		err := c.http.Do(ctx, method, path, body, nil)
		if err == nil {
			return nil
		}
		if attempt >= maxRateLimitRetries {
			return err
		}
		wait, ok := apierror.RetryAfter(err, c.now())
		if !ok {
			return err
		}
		wait += rateLimitPadding

		logrus.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"wait":   wait.String(),
		}).Warn("Rate limited, honouring Retry-After")

		if serr := c.sleep(ctx, wait); serr != nil {
			return serr
		}
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep == nil {
		return Sleep(ctx, d)
	}
	return c.Sleep(ctx, d)
}

func (c *Client) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}
