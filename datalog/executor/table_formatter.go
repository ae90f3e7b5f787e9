package executor

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/wbrown/janus-incremental/datalog"
)

// TableFormatter renders records as markdown tables
type TableFormatter struct {
	// MaxWidth is the maximum display width for a cell
	MaxWidth int
	// TruncateString is the string to append when truncating
	TruncateString string
}

// NewTableFormatter creates a new table formatter with default settings
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		MaxWidth:       50,
		TruncateString: "...",
	}
}

// FormatResult formats a result set
func (tf *TableFormatter) FormatResult(rs *ResultSet) string {
	if rs == nil {
		return "_Empty relation_"
	}
	return tf.FormatRecords(rs.Fields(), rs.Records())
}

// FormatRecords formats records as a markdown table with the given
// columns. Without columns, the first record's fields are used.
func (tf *TableFormatter) FormatRecords(columns []string, records []datalog.Record) string {
	if len(columns) == 0 && len(records) > 0 {
		columns = records[0].Fields()
	}
	if len(records) == 0 {
		return fmt.Sprintf("_Columns: %v_\n\n_No rows_", columns)
	}

	tableString := &strings.Builder{}

	alignment := make([]tw.Align, len(columns))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)

	table.Header(columns)

	for _, rec := range records {
		row := make([]string, len(columns))
		for j, col := range columns {
			row[j] = tf.formatValue(rec[col])
		}
		table.Append(row)
	}

	table.Render()

	tableString.WriteString(fmt.Sprintf("\n_%d rows_\n", len(records)))

	return tableString.String()
}

// formatValue converts a value to a cell string
func (tf *TableFormatter) formatValue(val datalog.Value) string {
	var s string
	switch v := val.(type) {
	case nil:
		s = "nil"
	case string:
		s = v
	case int64:
		if v == datalog.Infinity {
			s = "∞"
		} else {
			s = fmt.Sprintf("%d", v)
		}
	case float64:
		s = fmt.Sprintf("%.2f", v)
	case bool:
		s = fmt.Sprintf("%t", v)
	case time.Time:
		s = v.Format("2006-01-02 15:04:05")
	default:
		s = fmt.Sprintf("%v", v)
	}
	if tf.MaxWidth > 0 {
		// Display width, so wide runes count double and are never split
		s = runewidth.Truncate(s, tf.MaxWidth, tf.TruncateString)
	}
	return s
}

// FormatRecords renders records with a default formatter
func FormatRecords(columns []string, records []datalog.Record) string {
	return NewTableFormatter().FormatRecords(columns, records)
}
