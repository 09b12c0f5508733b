package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"mrsync/pkg/storage"
)

// DefaultDateFormat matches the dd/mm/yyyy layout of the legacy sheets
const DefaultDateFormat = "02/01/2006 15:04:05"

// Sink overwrites a named table with the given rows
type Sink interface {
	Write(ctx context.Context, table string, columns []Column, rows [][]any) error
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*$`)

func validTable(name string) error {
	if !tableName.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// CSVSink writes each table to <dir>/<table>.csv
type CSVSink struct {
	dir        string
	dateFormat string
}

func NewCSVSink(dir, dateFormat string) (*CSVSink, error) {
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	return &CSVSink{dir: dir, dateFormat: dateFormat}, nil
}

// Path returns the file a table is written to
func (s *CSVSink) Path(table string) string {
	return filepath.Join(s.dir, table+".csv")
}

func (s *CSVSink) Write(ctx context.Context, table string, columns []Column, rows [][]any) error {
	if err := validTable(table); err != nil {
		return err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.Name
	}
	if err := w.Write(header); err != nil {
		return err
	}

	record := make([]string, len(columns))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, v := range row {
			record[i] = s.format(v)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode %s: %w", table, err)
	}

	if err := storage.WriteFileAtomic(s.Path(table), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", table, err)
	}
	return nil
}

func (s *CSVSink) format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', 2, 64)
	case time.Time:
		return val.UTC().Format(s.dateFormat)
	default:
		return fmt.Sprint(val)
	}
}
