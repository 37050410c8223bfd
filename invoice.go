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
	"strings"

	"github.com/bisturi/tracksync/model"
)

// invoiceSource is one place an order document may keep its invoices.
type invoiceSource struct {
	name string
	list func(*model.CommerceOrder) []model.Invoice
	key  func(model.Invoice) string
}

// invoiceSources are searched in priority order.
var invoiceSources = []invoiceSource{
	{name: "packageAttachment.packages", list: packagesOf, key: model.Invoice.PackageKey},
	{name: "invoices", list: invoicesOf, key: model.Invoice.Key},
	{name: "orderForm.invoices", list: orderFormInvoicesOf, key: model.Invoice.Key},
}

func packagesOf(o *model.CommerceOrder) []model.Invoice {
	if o.PackageAttachment != nil && o.PackageAttachment.Packages != nil {
		return o.PackageAttachment.Packages
	}
	return o.Packages
}

func invoicesOf(o *model.CommerceOrder) []model.Invoice {
	switch {
	case o.Invoices != nil:
		return o.Invoices
	case o.Invoice != nil:
		return o.Invoice
	default:
		return orderFormInvoicesOf(o)
	}
}

func orderFormInvoicesOf(o *model.CommerceOrder) []model.Invoice {
	if o.OrderForm == nil {
		return nil
	}
	return o.OrderForm.Invoices
}

// InvoiceMatch is the invoice chosen for an update and where it came from.
type InvoiceMatch struct {
	Invoice  model.Invoice
	Source   string
	Fallback bool
}

// LocateInvoice finds the invoice whose trimmed identity equals invoiceNumber. Values are
// compared as strings, so "00123" never matches "123". When nothing matches, the first
// entry of the first non-empty source is returned with Fallback set. ok is false only
// when the order has no invoices at all.
func LocateInvoice(order *model.CommerceOrder, invoiceNumber string) (match InvoiceMatch, ok bool) {
	target := strings.TrimSpace(invoiceNumber)
	for _, src := range invoiceSources {
		for _, inv := range src.list(order) {
			if src.key(inv) == target {
				return InvoiceMatch{Invoice: inv, Source: src.name}, true
			}
		}
	}

	for _, src := range invoiceSources {
		if list := src.list(order); len(list) > 0 {
			return InvoiceMatch{Invoice: list[0], Source: src.name + " (fallback)", Fallback: true}, true
		}
	}
	return InvoiceMatch{}, false
}

// availableInvoices lists every invoice identity on the order, for diagnostics.
func availableInvoices(order *model.CommerceOrder) []string {
	var keys []string
	for _, src := range invoiceSources {
		for _, inv := range src.list(order) {
			keys = append(keys, src.name+":"+inv.Key())
		}
	}
	return keys
}
