package output

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// TableDumper is the slice of the store needed for exports.
type TableDumper interface {
	DumpTable(ctx context.Context, table string) ([]string, [][]interface{}, error)
}

// ExportCSV streams a table to w as CSV with a header row.
func ExportCSV(ctx context.Context, dumper TableDumper, table string, w io.Writer) error {
	cols, rows, err := dumper.DumpTable(ctx, table)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	record := make([]string, len(cols))
	for _, row := range rows {
		for i, v := range row {
			record[i] = cellString(v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportJSONL streams a table to w as one JSON object per line.
func ExportJSONL(ctx context.Context, dumper TableDumper, table string, w io.Writer) error {
	cols, rows, err := dumper.DumpTable(ctx, table)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	for _, row := range rows {
		obj := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			obj[col] = cellValue(row[i])
		}
		if err := enc.Encode(obj); err != nil {
			return fmt.Errorf("failed to encode jsonl row: %w", err)
		}
	}
	return nil
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func cellValue(v interface{}) interface{} {
	switch x := v.(type) {
	case []byte:
		// pass JSONB columns through untouched
		return json.RawMessage(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return x
	}
}
