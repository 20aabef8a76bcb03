// Package table prints pterm tables the same way across commands.
package table

import (
	"github.com/pterm/pterm"
)

// PrintTableNoPad renders rows without cell padding. The first row is used
// as the header when hasHeader is true.
func PrintTableNoPad(rows pterm.TableData, hasHeader bool) {
	if len(rows) == 0 {
		return
	}
	t := pterm.DefaultTable.WithData(rows).WithBoxed(false).WithSeparator("  ")
	if hasHeader {
		t = t.WithHasHeader()
	}
	if err := t.Render(); err != nil {
		pterm.Error.Printf("failed to render table: %v\n", err)
	}
}

// PrintKeyValue renders label/value pairs as a two column table.
func PrintKeyValue(pairs [][]string) {
	rows := pterm.TableData{{"Property", "Value"}}
	rows = append(rows, pairs...)
	PrintTableNoPad(rows, true)
}
