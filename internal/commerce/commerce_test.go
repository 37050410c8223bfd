package commerce

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bisturi/tracksync/config"
	"github.com/bisturi/tracksync/internal/apierror"
	"github.com/bisturi/tracksync/model"
)

const base = "https://store.vtexcommercestable.com.br"

type recordedSleep struct {
	waits []time.Duration
}

func (r *recordedSleep) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func newMockedClient(t *testing.T) (*Client, *recordedSleep) {
	retries := 3
	cnf := &config.Configuration{Commerce: config.CommerceConfig{
		AccountName: "store",
		Environment: "vtexcommercestable.com.br",
		AppKey:      "app-key",
		AppToken:    "app-token",
		TimeoutSec:  5,
		MaxRetries:  &retries,
	}}
	c := New(cnf)
	c.HTTP().NewBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	rec := &recordedSleep{}
	c.Sleep = rec.sleep
	httpmock.ActivateNonDefault(c.HTTP().HTTPClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c, rec
}

func TestGetOrder(t *testing.T) {
	c, _ := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodGet, base+"/api/oms/pvt/orders/1400-01",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "app-key", req.Header.Get("X-VTEX-API-AppKey"))
			assert.Equal(t, "app-token", req.Header.Get("X-VTEX-API-AppToken"))
			return httpmock.NewStringResponse(200, `{
				"orderId": "1400-01",
				"packageAttachment": {"packages": [{"invoiceNumber": "00123", "trackingNumber": ""}]},
				"selectedAddresses": [{"city": "Curitiba", "state": "PR"}]
			}`), nil
		})

	order, err := c.GetOrder(context.Background(), "1400-01")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, "1400-01", order.OrderID)
	require.Len(t, order.PackageAttachment.Packages, 1)
	assert.Equal(t, "00123", order.PackageAttachment.Packages[0].Key())
	city, state := order.DeliveryAddress()
	assert.Equal(t, "Curitiba", city)
	assert.Equal(t, "PR", state)
}

func TestGetOrder_NotFound(t *testing.T) {
	c, _ := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, base+"/api/oms/pvt/orders/nope", httpmock.NewStringResponder(404, ``))

	order, err := c.GetOrder(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, order)
}

func TestGetOrder_NullBodyIsNotFound(t *testing.T) {
	for name, body := range map[string]string{"null": "null", "empty": ""} {
		t.Run(name, func(t *testing.T) {
			c, _ := newMockedClient(t)
			httpmock.RegisterResponder(http.MethodGet, base+"/api/oms/pvt/orders/1400-09", httpmock.NewStringResponder(200, body))

			order, err := c.GetOrder(context.Background(), "1400-09")
			assert.NoError(t, err)
			assert.Nil(t, order)
		})
	}
}

func TestGetOrder_RetriesRateLimit(t *testing.T) {
	c, rec := newMockedClient(t)
	calls := 0
	httpmock.RegisterResponder(http.MethodGet, base+"/api/oms/pvt/orders/busy",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(429, ``), nil
			}
			return httpmock.NewStringResponse(200, `{"orderId":"busy"}`), nil
		})

	order, err := c.GetOrder(context.Background(), "busy")
	require.NoError(t, err)
	assert.Equal(t, "busy", order.OrderID)
	assert.Equal(t, 2, calls)
	assert.Empty(t, rec.waits, "reads use the backoff retry, not Retry-After")
}

func TestPatchInvoice(t *testing.T) {
	c, _ := newMockedClient(t)

	var got model.TrackingPayload
	httpmock.RegisterResponder(http.MethodPatch, base+"/api/oms/pvt/orders/1400-01/invoice/00123",
		func(req *http.Request) (*http.Response, error) {
			data, _ := io.ReadAll(req.Body)
			assert.NoError(t, json.Unmarshal(data, &got))
			assert.NotContains(t, string(data), "dispatchedDate")
			return httpmock.NewStringResponse(204, ``), nil
		})

	err := c.PatchInvoice(context.Background(), "1400-01", "00123", &model.TrackingPayload{
		TrackingNumber: "98765",
		TrackingURL:    "https://rastreamento.bisturi.com.br/#/98765",
		Courier:        model.BisturiExpressName,
	})
	require.NoError(t, err)
	assert.Equal(t, "98765", got.TrackingNumber)
	assert.Equal(t, model.BisturiExpressName, got.Courier)
}

func TestPatchInvoice_HonoursRetryAfter(t *testing.T) {
	c, rec := newMockedClient(t)

	calls := 0
	httpmock.RegisterResponder(http.MethodPatch, base+"/api/oms/pvt/orders/1400-01/invoice/00123",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				resp := httpmock.NewStringResponse(429, `{"error":"too many requests"}`)
				resp.Header.Set("Retry-After", "2")
				return resp, nil
			}
			return httpmock.NewStringResponse(200, `{}`), nil
		})

	err := c.PatchInvoice(context.Background(), "1400-01", "00123", &model.TrackingPayload{TrackingNumber: "1"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, rec.waits, 1)
	assert.GreaterOrEqual(t, rec.waits[0], 2500*time.Millisecond)
}

func TestPatchInvoice_RetryAfterIsBounded(t *testing.T) {
	c, rec := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPatch, base+"/api/oms/pvt/orders/1400-01/invoice/00123",
		func(req *http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(429, `slow down`)
			resp.Header.Set("Retry-After", "1")
			return resp, nil
		})

	err := c.PatchInvoice(context.Background(), "1400-01", "00123", &model.TrackingPayload{TrackingNumber: "1"})
	assert.True(t, apierror.IsRateLimited(err))
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
	assert.Len(t, rec.waits, 1)
}

func TestPatchInvoice_RateLimitWithoutHeader(t *testing.T) {
	c, rec := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPatch, base+"/api/oms/pvt/orders/1400-01/invoice/00123",
		httpmock.NewStringResponder(429, `slow down`))

	err := c.PatchInvoice(context.Background(), "1400-01", "00123", &model.TrackingPayload{TrackingNumber: "1"})
	require.Error(t, err)
	assert.Equal(t, "slow down", apierror.Detail(err))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.Empty(t, rec.waits)
}

func TestMarkDelivered(t *testing.T) {
	c, _ := newMockedClient(t)

	date := "2024-05-03 12:30"
	var got map[string]interface{}
	httpmock.RegisterResponder(http.MethodPut, base+"/api/oms/pvt/orders/1400-01/invoice/00123/tracking",
		func(req *http.Request) (*http.Response, error) {
			assert.NoError(t, json.NewDecoder(req.Body).Decode(&got))
			return httpmock.NewStringResponse(200, `{}`), nil
		})

	err := c.MarkDelivered(context.Background(), "1400-01", "00123", &model.DeliveryPayload{
		IsDelivered:   true,
		DeliveredDate: &date,
		Events: []model.DeliveryEvent{{
			City: "Curitiba", State: "PR", Description: "ENTREGUE (Bisturi)", Date: "2024-05-03T15:30:00.000Z",
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, true, got["isDelivered"])
	assert.Equal(t, date, got["deliveredDate"])
	events := got["events"].([]interface{})
	require.Len(t, events, 1)
	assert.Equal(t, "ENTREGUE (Bisturi)", events[0].(map[string]interface{})["description"])
}

func TestMarkDelivered_ServerErrorRetried(t *testing.T) {
	c, _ := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPut, base+"/api/oms/pvt/orders/1400-01/invoice/00123/tracking",
		httpmock.NewStringResponder(500, `oops`))

	err := c.MarkDelivered(context.Background(), "1400-01", "00123", &model.DeliveryPayload{IsDelivered: true})
	require.Error(t, err)
	assert.Equal(t, 4, httpmock.GetTotalCallCount())
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}

func TestNew_RateLimiter(t *testing.T) {
	rps := 5.0
	cnf := &config.Configuration{Commerce: config.CommerceConfig{BaseURL: "http://localhost:1", RequestsPerSecond: &rps}}
	c := New(cnf)
	require.NotNil(t, c.HTTP().Limiter)
	assert.Equal(t, 5, c.HTTP().Limiter.Burst())
	assert.Equal(t, "http://localhost:1", c.HTTP().BaseURL)
}
