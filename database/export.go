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

package database

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/bisturi/tracksync/model"
)

// ErrNoHistory is returned when there is nothing to export.
var ErrNoHistory = errors.New("no execution history")

var exportHeader = []string{"Data", "Arquivo", "Total", "Sucesso", "Erros", "Duração"}

// pt-BR locale date rendering.
const exportDateLayout = "02/01/2006, 15:04:05"

// ExportExecutionsCSV writes the history as a CSV sheet with a header row. Dates are
// rendered in loc.
func ExportExecutionsCSV(w io.Writer, executions []*model.Execution, loc *time.Location) error {
	if len(executions) == 0 {
		return ErrNoHistory
	}
	if loc == nil {
		loc = time.Local
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, e := range executions {
		record := []string{
			e.Date.In(loc).Format(exportDateLayout),
			e.FileName,
			strconv.Itoa(e.Total),
			strconv.Itoa(e.Success),
			strconv.Itoa(e.Errors),
			strconv.FormatInt(e.DurationMs, 10),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to write history csv")
}
