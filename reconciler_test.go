package tracksync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bisturi/tracksync/internal/apierror"
	"github.com/bisturi/tracksync/mocks"
	"github.com/bisturi/tracksync/model"
)

var fixedNow = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func newTestReconciler(dryRun bool) (*Reconciler, *mocks.MockCarrier, *mocks.MockCommerce) {
	carrier := new(mocks.MockCarrier)
	commerce := new(mocks.MockCommerce)
	r := NewReconciler(carrier, commerce, ReconcilerOptions{
		DryRun:   dryRun,
		Location: time.UTC,
		Now:      func() time.Time { return fixedNow },
	})
	return r, carrier, commerce
}

func bisturiRecord(trackingID, orderWeb, invoice string, events ...model.StatusEvent) *model.CarrierRecord {
	return &model.CarrierRecord{
		TrackingID:    model.FlexString(trackingID),
		CarrierID:     "1924",
		InvoiceNumber: model.FlexString(invoice),
		OrderWeb:      model.FlexString(orderWeb),
		Status:        events,
	}
}

func orderWithPackages(orderID string, packages ...model.Invoice) *model.CommerceOrder {
	return &model.CommerceOrder{
		OrderID:           orderID,
		PackageAttachment: &model.PackageAttachment{Packages: packages},
		SelectedAddresses: []model.Address{{City: "Curitiba", State: "PR"}},
	}
}

func TestReconcile_SuccessWithDelivery(t *testing.T) {
	r, carrier, commerce := newTestReconciler(false)
	ctx := context.Background()

	record := bisturiRecord("98765", "1400-01", "00123",
		model.StatusEvent{Status: "FATURADO", Date: "2024-05-01T10:00:00Z"},
		model.StatusEvent{Status: "Entregue", Date: "03/05/2024 15:30"},
	)
	order := orderWithPackages("1400-01", model.Invoice{InvoiceNumber: "00123"})

	expectedPatch := &model.TrackingPayload{
		TrackingNumber: "98765",
		TrackingURL:    "https://rastreamento.bisturi.com.br/#/98765",
		Courier:        "Bisturi Express",
		DispatchedDate: "2024-05-01T10:00:00.000Z",
	}
	deliveredDate := "2024-05-03 15:30"
	expectedPut := &model.DeliveryPayload{
		IsDelivered:   true,
		DeliveredDate: &deliveredDate,
		Events: []model.DeliveryEvent{{
			City: "Curitiba", State: "PR", Description: "ENTREGUE (Bisturi)", Date: "2024-05-03T15:30:00.000Z",
		}},
	}

	carrier.On("GetTracking", mock.Anything, "ORD-1").Return(record, nil)
	commerce.On("GetOrder", mock.Anything, "1400-01").Return(order, nil)
	commerce.On("PatchInvoice", mock.Anything, "1400-01", "00123", expectedPatch).Return(nil)
	commerce.On("MarkDelivered", mock.Anything, "1400-01", "00123", expectedPut).Return(nil)

	outcome := r.Reconcile(ctx, model.OrderReference{OrderID: " ORD-1 "})

	assert.Equal(t, model.OutcomeSuccess, outcome.Kind)
	assert.Equal(t, "ORD-1", outcome.OrderID)
	assert.Equal(t, "1400-01", outcome.OrderWeb)
	assert.Equal(t, "00123", outcome.InvoiceNumber)
	assert.False(t, outcome.Fallback)
	assert.Equal(t, "packageAttachment.packages", outcome.InvoiceSource)
	assert.Equal(t, expectedPatch, outcome.Payload)
	assert.Equal(t, expectedPut, outcome.Delivery)
	carrier.AssertExpectations(t)
	commerce.AssertExpectations(t)
}

func TestReconcile_NotDeliveredSkipsPut(t *testing.T) {
	r, carrier, commerce := newTestReconciler(false)

	record := bisturiRecord("555", "1400-02", "42", model.StatusEvent{Status: "FATURADO", Date: "garbage"})
	carrier.On("GetTracking", mock.Anything, "ORD-2").Return(record, nil)
	commerce.On("GetOrder", mock.Anything, "1400-02").Return(&model.CommerceOrder{
		Invoices: []model.Invoice{{Number: "42"}},
	}, nil)
	commerce.On("PatchInvoice", mock.Anything, "1400-02", "42", mock.MatchedBy(func(p *model.TrackingPayload) bool {
		return p.DispatchedDate == "" && p.TrackingNumber == "555"
	})).Return(nil)

	outcome := r.Reconcile(context.Background(), model.OrderReference{OrderID: "ORD-2"})
	assert.Equal(t, model.OutcomeSuccess, outcome.Kind)
	assert.Nil(t, outcome.Delivery)
	assert.Equal(t, "invoices", outcome.InvoiceSource)
	commerce.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_WrongCarrierNeverMutates(t *testing.T) {
	tests := []struct {
		name      string
		carrierID model.FlexString
		contains  string
	}{
		{name: "other carrier", carrierID: "77", contains: "found ID 77"},
		{name: "missing carrier", carrierID: "", contains: "found unknown"},
		{name: "non numeric", carrierID: "abc", contains: "found ID abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, carrier, commerce := newTestReconciler(false)
			record := bisturiRecord("1", "1400-03", "10", model.StatusEvent{Status: "ENTREGUE", Date: "2024-05-03T10:00:00Z"})
			record.CarrierID = tt.carrierID
			carrier.On("GetTracking", mock.Anything, "ORD-3").Return(record, nil)

			outcome := r.Reconcile(context.Background(), model.OrderReference{OrderID: "ORD-3"})

			assert.Equal(t, model.OutcomeSkipped, outcome.Kind)
			assert.Equal(t, model.ReasonWrongCarrier, outcome.Reason)
			assert.Contains(t, outcome.Detail, tt.contains)
			assert.Contains(t, outcome.Detail, "expected Bisturi Express (ID 1924)")
			assert.True(t, outcome.OK())
			commerce.AssertNotCalled(t, "GetOrder", mock.Anything, mock.Anything)
			commerce.AssertNotCalled(t, "PatchInvoice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			commerce.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestReconcile_AlreadyTracked(t *testing.T) {
	r, carrier, commerce := newTestReconciler(false)

	record := bisturiRecord("98765", "1400-04", "00123", model.StatusEvent{Status: "ENTREGUE", Date: "2024-05-03T10:00:00Z"})
	order := orderWithPackages("1400-04", model.Invoice{
		InvoiceNumber:   "00123",
		TrackingNumbers: "98765",
		TrackingURLAlt:  "https://rastreamento.bisturi.com.br/#/98765",
	})
	carrier.On("GetTracking", mock.Anything, "ORD-4").Return(record, nil)
	commerce.On("GetOrder", mock.Anything, "1400-04").Return(order, nil)

	outcome := r.Reconcile(context.Background(), model.OrderReference{OrderID: "ORD-4"})

	assert.Equal(t, model.OutcomeSkipped, outcome.Kind)
	assert.Equal(t, model.ReasonAlreadyHasTracking, outcome.Reason)
	assert.True(t, outcome.OK())
	commerce.AssertNotCalled(t, "PatchInvoice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	commerce.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_SkipReasons(t *testing.T) {
	t.Run("carrier not found", func(t *testing.T) {
		r, carrier, _ := newTestReconciler(false)
		carrier.On("GetTracking", mock.Anything, "X").Return(nil, nil)
		outcome := r.Reconcile(context.Background(), model.OrderReference{OrderID: "X"})
		assert.Equal(t, model.ReasonCarrierNotFound, outcome.Reason)
		assert.Equal(t, "X", outcome.Reference())
	})

	t.Run("no order reference", func(t *testing.T) {
		r, carrier, _ := newTestReconciler(false)
		carrier.On("GetTracking", mock.Anything, "X").Return(bisturiRecord("", "", "10"), nil)
		outcome := r.Reconcile(context.Background(), model.OrderReference{OrderID: "X"})
		assert.Equal(t, model.ReasonNoOrderReference, outcome.Reason)
	})

	t.Run("order reference falls back to carrier order id", func(t *testing.T) {
		r, carrier, commerce := newTestReconciler(false)
		carrier.On("GetTracking", mock.Anything, "X").Return(bisturiRecord("777", "", "10"), nil)
		commerce.On("GetOrder", mock.Anything, "777").Return(nil, nil)
		outcome := r.Reconcile(context.Background(), model.OrderReference{OrderID: "X"})
		assert.Equal(t, model.ReasonOrderNotFound, outcome.Reason)
		assert.Equal(t, "777", outcome.OrderWeb)
	})

	t.Run("no invoice number", func(t *testing.T) {
		r, carrier, _ := newTestReconciler(false)
		carrier.On("GetTracking", mock.Anything, "X").Return(bisturiRecord("1", "1400", " "), nil)
		outcome := r.Reconcile(context.Background(), model.OrderReference{OrderID: "X"})
		assert.Equal(t, model.ReasonNoInvoiceNumber, outcome.Reason)
	})

	t.Run("invoice not found", func(t *testing.T) {
		r, carrier, commerce := newTestReconciler(false)
		carrier.On("GetTracking", mock.Anything, "X").Return(bisturiRecord("1", "1400", "10"), nil)
		commerce.On("GetOrder", mock.Anything, "1400").Return(&model.CommerceOrder{OrderID: "1400"}, nil)
		outcome := r.Reconcile(context.Background(), model.OrderReference{OrderID: "X"})
		assert.Equal(t, model.OutcomeSkipped, outcome.Kind)
		assert.Equal(t, model.ReasonInvoiceNotFound, outcome.Reason)
	})
}

func TestReconcile_FallbackInvoiceIsFlagged(t *testing.T) {
	r, carrier, commerce := newTestReconciler(false)

	carrier.On("GetTracking", mock.Anything, "X").Return(bisturiRecord("1", "1400", "123"), nil)
	commerce.On("GetOrder", mock.Anything, "1400").Return(orderWithPackages("1400", model.Invoice{InvoiceNumber: "00123"}), nil)
	commerce.On("PatchInvoice", mock.Anything, "1400", "00123", mock.Anything).Return(nil)

	outcome := r.Reconcile(context.Background(), model.OrderReference{OrderID: "X"})
	assert.Equal(t, model.OutcomeSuccess, outcome.Kind)
	assert.True(t, outcome.Fallback)
	assert.Equal(t, "packageAttachment.packages (fallback)", outcome.InvoiceSource)
}

func TestReconcile_PatchFailure(t *testing.T) {
	r, carrier, commerce := newTestReconciler(false)

	carrier.On("GetTracking", mock.Anything, "X").Return(bisturiRecord("1", "1400", "10",
		model.StatusEvent{Status: "ENTREGUE", Date: "2024-05-03T10:00:00Z"}), nil)
	commerce.On("GetOrder", mock.Anything, "1400").Return(orderWithPackages("1400", model.Invoice{InvoiceNumber: "10"}), nil)
	apiErr := apierror.NewAPIError(apierror.ErrBadRequest, "request failed with status code 400", 400)
	apiErr.Body = `{"error":{"message":"invalid invoice"}}`
	commerce.On("PatchInvoice", mock.Anything, "1400", "10", mock.Anything).Return(apiErr)

	outcome := r.Reconcile(context.Background(), model.OrderReference{OrderID: "X"})
	assert.Equal(t, model.OutcomeFailed, outcome.Kind)
	assert.Equal(t, model.ReasonPatchFailed, outcome.Reason)
	assert.Equal(t, `{"error":{"message":"invalid invoice"}}`, outcome.Detail)
	assert.Equal(t, "X", outcome.OrderID)
	commerce.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_PutFailure(t *testing.T) {
	r, carrier, commerce := newTestReconciler(false)

	carrier.On("GetTracking", mock.Anything, "X").Return(bisturiRecord("1", "1400", "10",
		model.StatusEvent{Status: "ENTREGUE", Date: "not a date"}), nil)
	commerce.On("GetOrder", mock.Anything, "1400").Return(&model.CommerceOrder{
		Invoices:     []model.Invoice{{ID: "10"}},
		ShippingData: &model.ShippingData{Address: &model.Address{City: "Recife", State: "PE"}},
	}, nil)
	commerce.On("PatchInvoice", mock.Anything, "1400", "10", mock.Anything).Return(nil)
	commerce.On("MarkDelivered", mock.Anything, "1400", "10", mock.MatchedBy(func(p *model.DeliveryPayload) bool {
		return p.DeliveredDate == nil &&
			p.Events[0].City == "Recife" &&
			p.Events[0].Date == "2024-05-10T09:00:00.000Z"
	})).Return(errors.New("connection reset by peer"))

	outcome := r.Reconcile(context.Background(), model.OrderReference{OrderID: "X"})
	assert.Equal(t, model.OutcomeFailed, outcome.Kind)
	assert.Equal(t, model.ReasonPutFailed, outcome.Reason)
	assert.Equal(t, "connection reset by peer", outcome.Detail)
	commerce.AssertExpectations(t)
}

func TestReconcile_DryRunNeverMutates(t *testing.T) {
	r, carrier, commerce := newTestReconciler(true)

	carrier.On("GetTracking", mock.Anything, "X").Return(bisturiRecord("1", "1400", "10",
		model.StatusEvent{Status: "ENTREGUE", Date: "2024-05-03T10:00:00Z"}), nil)
	commerce.On("GetOrder", mock.Anything, "1400").Return(orderWithPackages("1400", model.Invoice{InvoiceNumber: "10"}), nil)

	outcome := r.Reconcile(context.Background(), model.OrderReference{OrderID: "X"})
	assert.Equal(t, model.OutcomeSuccess, outcome.Kind)
	require.NotNil(t, outcome.Delivery)
	assert.True(t, r.DryRun())
	commerce.AssertNotCalled(t, "PatchInvoice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	commerce.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_Exceptions(t *testing.T) {
	t.Run("carrier error", func(t *testing.T) {
		r, carrier, _ := newTestReconciler(false)
		carrier.On("GetTracking", mock.Anything, "X").Return(nil, errors.New("timeout"))
		outcome := r.Reconcile(context.Background(), model.OrderReference{OrderID: "X"})
		assert.Equal(t, model.OutcomeFailed, outcome.Kind)
		assert.Equal(t, model.ReasonException, outcome.Reason)
		assert.Equal(t, "timeout", outcome.Detail)
	})

	t.Run("commerce error", func(t *testing.T) {
		r, carrier, commerce := newTestReconciler(false)
		carrier.On("GetTracking", mock.Anything, "X").Return(bisturiRecord("1", "1400", "10"), nil)
		commerce.On("GetOrder", mock.Anything, "1400").Return(nil, errors.New("503"))
		outcome := r.Reconcile(context.Background(), model.OrderReference{OrderID: "X"})
		assert.Equal(t, model.ReasonException, outcome.Reason)
		assert.Equal(t, "1400", outcome.OrderWeb)
	})

	t.Run("panic", func(t *testing.T) {
		r, carrier, _ := newTestReconciler(false)
		carrier.On("GetTracking", mock.Anything, "X").Run(func(args mock.Arguments) {
			panic("unexpected shape")
		}).Return(nil, nil)
		outcome := r.Reconcile(context.Background(), model.OrderReference{OrderID: "X"})
		assert.Equal(t, model.OutcomeFailed, outcome.Kind)
		assert.Equal(t, model.ReasonException, outcome.Reason)
		assert.Contains(t, outcome.Detail, "unexpected shape")
	})
}

func TestLocateInvoice(t *testing.T) {
	t.Run("exact string match, no numeric coercion", func(t *testing.T) {
		order := &model.CommerceOrder{Invoices: []model.Invoice{{InvoiceNumber: "123"}, {InvoiceNumber: " 00123 "}}}
		match, ok := LocateInvoice(order, "00123")
		require.True(t, ok)
		assert.False(t, match.Fallback)
		assert.Equal(t, "00123", match.Invoice.Key())
	})

	t.Run("priority order", func(t *testing.T) {
		order := &model.CommerceOrder{
			PackageAttachment: &model.PackageAttachment{Packages: []model.Invoice{{InvoiceID: "9", Courier: "pkg"}}},
			Invoices:          []model.Invoice{{InvoiceNumber: "9", Courier: "inv"}},
		}
		match, ok := LocateInvoice(order, "9")
		require.True(t, ok)
		assert.Equal(t, "pkg", match.Invoice.Courier.String())
	})

	t.Run("empty package attachment hides top-level packages", func(t *testing.T) {
		order := &model.CommerceOrder{
			PackageAttachment: &model.PackageAttachment{Packages: []model.Invoice{}},
			Packages:          []model.Invoice{{InvoiceNumber: "9"}},
			OrderForm:         &model.OrderForm{Invoices: []model.Invoice{{Number: "9"}}},
		}
		match, ok := LocateInvoice(order, "9")
		require.True(t, ok)
		assert.Equal(t, "invoices", match.Source)
	})

	t.Run("order form invoices", func(t *testing.T) {
		order := &model.CommerceOrder{
			Invoices:  []model.Invoice{{Number: "1"}},
			OrderForm: &model.OrderForm{Invoices: []model.Invoice{{ID: "2"}}},
		}
		match, ok := LocateInvoice(order, "2")
		require.True(t, ok)
		assert.Equal(t, "orderForm.invoices", match.Source)
		assert.False(t, match.Fallback)
	})

	t.Run("fallback to first non-empty source", func(t *testing.T) {
		order := &model.CommerceOrder{Invoice: []model.Invoice{{Number: "5"}, {Number: "6"}}}
		match, ok := LocateInvoice(order, "7")
		require.True(t, ok)
		assert.True(t, match.Fallback)
		assert.Equal(t, "5", match.Invoice.Key())
	})

	t.Run("nothing to match", func(t *testing.T) {
		_, ok := LocateInvoice(&model.CommerceOrder{}, "1")
		assert.False(t, ok)
	})
}

func TestParseDate(t *testing.T) {
	saoPaulo := time.FixedZone("BRT", -3*3600)
	tests := []struct {
		input    string
		expected string
		ok       bool
	}{
		{"2024-05-01T10:00:00Z", "2024-05-01T10:00:00.000Z", true},
		{"2024-05-01T10:00:00.123-03:00", "2024-05-01T13:00:00.123Z", true},
		{"2024-05-01T10:00:00", "2024-05-01T13:00:00.000Z", true},
		{"2024-05-01 10:00", "2024-05-01T13:00:00.000Z", true},
		{"2024-05-01", "2024-05-01T00:00:00.000Z", true},
		{"3/5/2024", "2024-05-03T00:00:00.000Z", true},
		{"03/05/2024 15:30", "2024-05-03T15:30:00.000Z", true},
		{"  ", "", false},
		{"yesterday", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			parsed, ok := ParseDate(tt.input, saoPaulo)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.expected, ISODate(parsed))
			}
		})
	}
}

func TestFormatDeliveredDate(t *testing.T) {
	ts := time.Date(2024, 5, 3, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-05-03 15:30", FormatDeliveredDate(ts, time.UTC))
	assert.Equal(t, "2024-05-03 12:30", FormatDeliveredDate(ts, time.FixedZone("BRT", -3*3600)))
}

func TestTrackingURL(t *testing.T) {
	assert.Equal(t, "https://rastreamento.bisturi.com.br/#/98765", TrackingURL("https://rastreamento.bisturi.com.br/", "98765"))
	assert.Equal(t, "https://track.test/#/1", TrackingURL("https://track.test", "1"))
}
