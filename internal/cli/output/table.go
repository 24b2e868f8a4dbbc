package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by types that can render themselves as a table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// emptyCell stands in for blank values so columns stay aligned.
const emptyCell = "-"

// newWriter returns a borderless, left-aligned table. sep separates columns.
func newWriter(w io.Writer, sep string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetColumnSeparator(sep)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

// PrintTable writes data as a table. Headers are upper-cased and blank
// cells are shown as "-".
func PrintTable(w io.Writer, data TableRenderer) error {
	headers := data.Headers()
	table := newWriter(w, "")
	table.SetAutoFormatHeaders(true)
	table.SetHeader(headers)

	for _, row := range data.Rows() {
		cells := make([]string, len(headers))
		for i := range cells {
			if i < len(row) && row[i] != "" {
				cells[i] = row[i]
			} else {
				cells[i] = emptyCell
			}
		}
		table.Append(cells)
	}
	table.Render()
	return nil
}

// SimpleTable prints key: value pairs, one per line.
func SimpleTable(w io.Writer, pairs [][2]string) error {
	table := newWriter(w, ":")
	table.SetAutoFormatHeaders(false)
	for _, pair := range pairs {
		table.Append(pair[:])
	}
	table.Render()
	return nil
}

// TableData is a TableRenderer built row by row.
type TableData struct {
	headers []string
	rows    [][]string
}

func NewTableData(headers ...string) *TableData {
	return &TableData{headers: headers}
}

func (t *TableData) AddRow(row ...string) {
	t.rows = append(t.rows, row)
}

func (t *TableData) Headers() []string { return t.headers }

func (t *TableData) Rows() [][]string { return t.rows }
