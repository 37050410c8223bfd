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

// Package input turns an operator-supplied file into the list of orders to reconcile.
package input

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bisturi/tracksync/model"
)

// ErrNoOrders is returned when a file parses cleanly but yields no order ids.
var ErrNoOrders = errors.New("no orders found in input")

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	delimiters = []rune{',', ';', '\t', '|'}

	orderAliases    = []string{"orderid", "order id", "order", "pedido", "order_web", "orderweb"}
	invoiceAliases  = []string{"invoicenumber", "invoice", "nfe", "nota"}
	trackingAliases = []string{"trackingnumber", "rastreio", "tracking"}
)

const sniffLines = 5

// ReadFile loads order references from path. Files with a .csv extension are parsed as
// delimited tables; anything else is a plain list with one order id per line.
func ReadFile(path string) ([]model.OrderReference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read input file")
	}
	if err := rejectBinary(data); err != nil {
		return nil, err
	}

	var refs []model.OrderReference
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		refs, err = ParseCSV(data)
		if err != nil {
			return nil, err
		}
	} else {
		refs = ParsePlainList(data)
	}

	if len(refs) == 0 {
		return nil, ErrNoOrders
	}
	logrus.WithFields(logrus.Fields{"file": filepath.Base(path), "orders": len(refs)}).Info("Input loaded")
	return refs, nil
}

func rejectBinary(data []byte) error {
	head := data
	if len(head) > 262 {
		head = head[:262]
	}
	kind, _ := filetype.Match(head)
	if kind != filetype.Unknown {
		return fmt.Errorf("input looks like a %s file (%s), expected text or csv", kind.Extension, kind.MIME.Value)
	}
	return nil
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// ParsePlainList reads one order id per line. Blank lines are ignored.
func ParsePlainList(data []byte) []model.OrderReference {
	var refs []model.OrderReference
	for _, line := range strings.Split(string(stripBOM(data)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		refs = append(refs, model.OrderReference{OrderID: line})
	}
	return refs
}

// DetectDelimiter picks the candidate that occurs most often in the sample.
// Ties go to the earlier candidate, so a sample without delimiters yields a comma.
func DetectDelimiter(sample string) rune {
	chosen, best := ',', -1
	for _, d := range delimiters {
		if n := strings.Count(sample, string(d)); n > best {
			chosen, best = d, n
		}
	}
	return chosen
}

// ParseCSV reads a delimited table. A first row containing any letter is treated as a
// header and its columns are matched against known aliases; otherwise columns are
// positional (order id, invoice number). Rows without an order id are dropped.
func ParseCSV(data []byte) ([]model.OrderReference, error) {
	text := string(stripBOM(data))
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) > sniffLines {
		lines = lines[:sniffLines]
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = DetectDelimiter(strings.Join(lines, "\n"))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse csv")
		}
		if isBlankRecord(record) {
			continue
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var header map[string]int
	if hasLetters(records[0]) {
		header = make(map[string]int, len(records[0]))
		for i, h := range records[0] {
			key := strings.ToLower(h)
			if _, seen := header[key]; !seen {
				header[key] = i
			}
		}
		records = records[1:]
	}

	refs := make([]model.OrderReference, 0, len(records))
	for _, row := range records {
		var ref model.OrderReference
		if header == nil {
			ref = model.OrderReference{OrderID: cell(row, 0), InvoiceNumber: cell(row, 1)}
		} else {
			ref = model.OrderReference{
				OrderID:        lookup(header, row, orderAliases),
				InvoiceNumber:  lookup(header, row, invoiceAliases),
				TrackingNumber: lookup(header, row, trackingAliases),
			}
		}
		if ref.OrderID != "" {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

func isBlankRecord(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func hasLetters(row []string) bool {
	for _, c := range row {
		for _, r := range c {
			if unicode.IsLetter(r) {
				return true
			}
		}
	}
	return false
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// lookup returns the first non-empty value among the aliased columns.
func lookup(header map[string]int, row []string, aliases []string) string {
	for _, alias := range aliases {
		if i, ok := header[alias]; ok {
			if v := cell(row, i); v != "" {
				return v
			}
		}
	}
	return ""
}
