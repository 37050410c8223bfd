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
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// FlexString decodes a JSON value that upstream APIs send either as a string or as a number.
// null decodes to the empty string.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("flex string: unsupported value %s", string(data))
	}
	*f = FlexString(n.String())
	return nil
}

// String returns the trimmed value.
func (f FlexString) String() string {
	return strings.TrimSpace(string(f))
}

// Empty reports whether the value is blank after trimming.
func (f FlexString) Empty() bool {
	return f.String() == ""
}

// Int64 parses the value as an integer. ok is false when the value is blank or not numeric.
func (f FlexString) Int64() (int64, bool) {
	n, err := strconv.ParseInt(f.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// firstNonEmpty returns the first non-blank value, trimmed.
func firstNonEmpty(values ...FlexString) string {
	for _, v := range values {
		if !v.Empty() {
			return v.String()
		}
	}
	return ""
}
