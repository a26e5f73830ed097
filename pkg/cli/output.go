package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is aligned plain text (default).
	FormatText OutputFormat = "text"
	// FormatJSON is indented JSON.
	FormatJSON OutputFormat = "json"
	// FormatCSV is CSV with a header row.
	FormatCSV OutputFormat = "csv"
)

// Tabular is implemented by results that render as a table.
type Tabular interface {
	Headers() []string
	Rows() [][]string
}

// Formatter formats command output.
type Formatter interface {
	FormatTo(w io.Writer, data any) error
}

// TextFormatter writes Tabular values as aligned columns and anything else
// with its default formatting.
type TextFormatter struct{}

// FormatTo writes data to w as text.
func (f *TextFormatter) FormatTo(w io.Writer, data any) error {
	t, ok := data.(Tabular)
	if !ok {
		_, err := fmt.Fprintf(w, "%v\n", data)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if headers := t.Headers(); len(headers) > 0 {
		fmt.Fprintln(tw, strings.ToUpper(strings.Join(headers, "\t")))
	}
	for _, row := range t.Rows() {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// JSONFormatter formats output as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatTo writes data to w as JSON.
func (f *JSONFormatter) FormatTo(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// CSVFormatter writes Tabular values as CSV.
type CSVFormatter struct{}

// FormatTo writes data to w as CSV. data must implement Tabular.
func (f *CSVFormatter) FormatTo(w io.Writer, data any) error {
	t, ok := data.(Tabular)
	if !ok {
		return fmt.Errorf("csv output is not supported for %T", data)
	}

	csvWriter := csv.NewWriter(w)
	if headers := t.Headers(); len(headers) > 0 {
		if err := csvWriter.Write(headers); err != nil {
			return err
		}
	}
	if err := csvWriter.WriteAll(t.Rows()); err != nil {
		return err
	}
	return csvWriter.Error()
}

// NewFormatter creates a formatter for the named format.
func NewFormatter(format OutputFormat) (Formatter, error) {
	switch format {
	case FormatText, "":
		return &TextFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{Indent: true}, nil
	case FormatCSV:
		return &CSVFormatter{}, nil
	default:
		return nil, NewConfigError("output", fmt.Sprintf("unknown format %q (valid: text, json, csv)", format))
	}
}
