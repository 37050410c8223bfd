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

// Package carrier reads shipment tracking documents from the Bisturi carrier API.
package carrier

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bisturi/tracksync/config"
	"github.com/bisturi/tracksync/internal/apierror"
	"github.com/bisturi/tracksync/internal/request"
	"github.com/bisturi/tracksync/model"
)

const trackingPath = "/api/v1/order/tracking/"

type Client struct {
	http *request.Client
}

// New builds a carrier client from the carrier section of the configuration.
func New(cnf config.CarrierConfig) *Client {
	retries := config.DEFAULT_CARRIER_RETRIES
	if cnf.MaxRetries != nil {
		retries = *cnf.MaxRetries
	}
	return &Client{
		http: request.NewClient("carrier", cnf.BaseURL, time.Duration(cnf.TimeoutSec)*time.Second, retries, request.RetryServerErrors),
	}
}

// HTTP exposes the underlying REST client so callers can swap transports or backoff.
func (c *Client) HTTP() *request.Client {
	return c.http
}

// GetTracking returns the carrier record for orderID, or nil when the carrier does not know it.
func (c *Client) GetTracking(ctx context.Context, orderID string) (*model.CarrierRecord, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("order id is required")
	}

	// A null or empty body leaves record nil and reads as not found.
	var record *model.CarrierRecord
	err := c.http.Get(ctx, trackingPath+url.PathEscape(orderID), &record)
	if err != nil {
		if apierror.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "carrier tracking for %s", orderID)
	}
	return record, nil
}
