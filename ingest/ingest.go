// Package ingest reads tabular rows from CSV, JSON, and XLSX files, for
// loading file-backed datasets into local data sources. The first row (or
// the JSON keys) names the fields; cell text is converted to null, bool,
// integer, float, or timestamp when it parses as one.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/xuri/excelize/v2"

	"github.com/tesseradata/tessera/schema"
)

// File reads rows from path, dispatching on the file extension.
func File(path string) ([]schema.Row, error) {
	// #nosec G304 -- file path is operator provided via CLI flags.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return CSV(f)
	case ".json":
		return JSON(f)
	case ".xlsx":
		return XLSX(f)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

// CSV reads comma-separated rows. The header row names the fields; every
// record must have the header's width.
func CSV(r io.Reader) ([]schema.Row, error) {
	table, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return fromTable(table)
}

// JSON reads either a top-level array of objects or a {"data": [...]}
// envelope.
func JSON(r io.Reader) ([]schema.Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Data []schema.Row `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("decode json envelope: %w", err)
		}
		return envelope.Data, nil
	}
	var rows []schema.Row
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, fmt.Errorf("decode json rows: %w", err)
	}
	return rows, nil
}

// XLSX reads the first sheet of a workbook.
func XLSX(r io.Reader) ([]schema.Row, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = book.Close() }()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	table, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return fromTable(table)
}

// fromTable maps header-plus-records text into rows. Cells past the end of
// a short record, and cells under a blank header, are dropped.
func fromTable(table [][]string) ([]schema.Row, error) {
	if len(table) == 0 {
		return nil, errors.New("missing header row")
	}
	header := make([]string, len(table[0]))
	for i, name := range table[0] {
		header[i] = strings.TrimSpace(name)
	}

	rows := make([]schema.Row, 0, len(table)-1)
	for _, record := range table[1:] {
		row := make(schema.Row, len(header))
		for i, name := range header {
			if name == "" || i >= len(record) {
				continue
			}
			row[name] = inferValue(record[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func inferValue(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	switch strings.ToLower(trimmed) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return ts
	}
	return s
}
