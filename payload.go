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
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bisturi/tracksync/model"
)

const (
	isoLayout       = "2006-01-02T15:04:05.000Z"
	deliveredLayout = "2006-01-02 15:04"

	deliveredDescription = "ENTREGUE (Bisturi)"
)

// Layouts without a zone are read in the caller's location; date-only values are UTC.
var (
	zonedLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05Z0700", "2006-01-02 15:04:05Z07:00"}
	localLayouts = []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04"}
	dayFirst     = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})(?:\s+(\d{1,2}):(\d{2}))?`)
)

// ParseDate reads the date formats the carrier is known to emit. Brazilian day-first
// dates (dd/mm/yyyy with optional hh:mm) are taken as UTC.
func ParseDate(value string, loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}

	if m := dayFirst.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		hour, _ := strconv.Atoi(m[4])
		minute, _ := strconv.Atoi(m[5])
		return time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// ISODate renders t as UTC ISO-8601 with millisecond precision.
func ISODate(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// FormatDeliveredDate renders the wall-clock "YYYY-MM-DD HH:mm" form the OMS expects.
func FormatDeliveredDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(deliveredLayout)
}

// TrackingURL joins the public tracking page with a tracking number.
func TrackingURL(base, trackingNumber string) string {
	return strings.TrimRight(base, "/") + "/#/" + trackingNumber
}

func (r *Reconciler) buildTrackingPayload(record *model.CarrierRecord, orderID string) *model.TrackingPayload {
	trackingNumber := record.TrackingID.String()
	if trackingNumber == "" {
		trackingNumber = strings.TrimSpace(orderID)
	}

	payload := &model.TrackingPayload{
		TrackingNumber: trackingNumber,
		Courier:        model.BisturiExpressName,
	}
	if trackingNumber != "" {
		payload.TrackingURL = TrackingURL(r.opts.TrackingURLBase, trackingNumber)
	}
	if ev := record.Event(model.StatusDispatched); ev != nil {
		if t, ok := ParseDate(ev.Date.String(), r.opts.Location); ok {
			payload.DispatchedDate = ISODate(t)
		}
	}
	return payload
}

func (r *Reconciler) buildDeliveryPayload(delivered *model.StatusEvent, order *model.CommerceOrder) *model.DeliveryPayload {
	city, state := order.DeliveryAddress()
	event := model.DeliveryEvent{
		City:        city,
		State:       state,
		Description: deliveredDescription,
		Date:        ISODate(r.now()),
	}
	payload := &model.DeliveryPayload{IsDelivered: true}

	if t, ok := ParseDate(delivered.Date.String(), r.opts.Location); ok {
		formatted := FormatDeliveredDate(t, r.opts.Location)
		payload.DeliveredDate = &formatted
		event.Date = ISODate(t)
	}
	payload.Events = []model.DeliveryEvent{event}
	return payload
}
