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

package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/bisturi/tracksync/internal/apierror"
)

// ToJsonReq converts a Go object to a JSON-encoded HTTP request payload.
func ToJsonReq(payload interface{}) (*bytes.Buffer, error) {
	c, e := json.Marshal(payload)
	if e != nil {
		return nil, e
	}
	return bytes.NewBuffer(c), nil
}

// RetryPolicy decides whether a non-2xx status for the given method is worth retrying.
// Transport errors are always retried.
type RetryPolicy func(method string, statusCode int) bool

// RetryServerErrors retries 5xx responses.
func RetryServerErrors(_ string, statusCode int) bool {
	return statusCode >= 500
}

// RetryServerErrorsAndReadRateLimits retries 5xx for every method and 429 only for reads.
// A 429 on a write is left to the caller, which honours Retry-After.
func RetryServerErrorsAndReadRateLimits(method string, statusCode int) bool {
	if statusCode >= 500 {
		return true
	}
	return statusCode == http.StatusTooManyRequests && (method == http.MethodGet || method == http.MethodHead)
}

// Client is a JSON REST client bound to one base URL with a bounded retry budget.
type Client struct {
	Name        string
	BaseURL     string
	Header      http.Header
	HTTPClient  *http.Client
	MaxRetries  uint64
	ShouldRetry RetryPolicy
	// NewBackOff returns the delay curve for one call. Defaults to DefaultBackOff.
	NewBackOff func() backoff.BackOff
	// Limiter paces outgoing requests when set.
	Limiter *rate.Limiter
}

// NewClient builds a client with the given timeout and retry budget.
func NewClient(name, baseURL string, timeout time.Duration, maxRetries int, policy RetryPolicy) *Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		Name:        name,
		BaseURL:     baseURL,
		Header:      http.Header{},
		HTTPClient:  &http.Client{Timeout: timeout},
		MaxRetries:  uint64(maxRetries),
		ShouldRetry: policy,
	}
}

// DefaultBackOff doubles from 200ms with 20% jitter.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Get fetches path and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Do sends a JSON request and decodes a JSON response into out when out is non-nil.
// Non-2xx responses are returned as apierror.APIError.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		buf, err := ToJsonReq(body)
		if err != nil {
			return pkgerrors.Wrap(err, "failed to marshal payload")
		}
		payload = buf.Bytes()
	}

	attempt := 0
	operation := func() error {
		attempt++
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		err := c.send(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if !c.retryable(method, err) {
			return backoff.Permanent(err)
		}
		return err
	}

	newBackOff := c.NewBackOff
	if newBackOff == nil {
		newBackOff = DefaultBackOff
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), c.MaxRetries), ctx)

	return backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		logrus.WithFields(logrus.Fields{
			"client":  c.Name,
			"method":  method,
			"path":    path,
			"attempt": attempt,
			"wait":    wait.String(),
			"error":   err.Error(),
		}).Warn("Retrying request")
	})
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create request")
	}
	for key, values := range c.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close response body")
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to read response body")
	}

	logrus.WithFields(logrus.Fields{
		"client":      c.Name,
		"method":      method,
		"path":        path,
		"status_code": resp.StatusCode,
		"response":    string(data),
	}).Trace("Response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierror.FromResponse(resp, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return pkgerrors.Wrapf(err, "failed to decode %s response", c.Name)
	}
	return nil
}

func (c *Client) retryable(method string, err error) bool {
	if apiErr, ok := apierror.As(err); ok {
		return c.ShouldRetry != nil && c.ShouldRetry(method, apiErr.StatusCode)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
