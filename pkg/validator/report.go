// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package validator

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// WriteReport renders the validation result as a human-readable table.
func WriteReport(w io.Writer, result *ValidationResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Check", "Status", "Expected", "Actual"})
	for _, c := range result.Results {
		t.AppendRow(table.Row{c.Name, colorize(c.Status), c.Expected, c.Actual})
		if c.Message != "" {
			t.AppendRow(table.Row{"", "", "", text.FgHiBlack.Sprint(c.Message)})
		}
	}

	t.AppendFooter(table.Row{
		"", result.Summary.Status,
		fmt.Sprintf("%d passed, %d failed, %d skipped",
			result.Summary.Passed, result.Summary.Failed, result.Summary.Skipped),
		result.Summary.Duration.Round(10 * time.Millisecond).String(),
	})

	t.Render()
}

func colorize(status CheckStatus) string {
	switch status {
	case CheckStatusPassed:
		return text.FgGreen.Sprint(status)
	case CheckStatusFailed:
		return text.FgRed.Sprint(status)
	default:
		return text.FgYellow.Sprint(status)
	}
}
