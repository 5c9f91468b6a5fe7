package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// timestampLayout is fixed-width UTC with milliseconds, so that text
// ordering of the column is chronological.
const timestampLayout = "2006-01-02T15:04:05.000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		// Rows written by other tools may carry any RFC 3339 form.
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

// marshalJSON encodes without HTML escaping, so "<" stays "<" and the text
// column matches what the tags filter searches for.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// encodeList returns NULL for an empty list and a JSON array otherwise.
func encodeList[T any](items []T) (any, error) {
	if len(items) == 0 {
		return nil, nil
	}
	s, err := marshalJSON(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode list: %w", err)
	}
	return s, nil
}

// decodeList returns an empty, non-nil slice for NULL or blank columns.
func decodeList[T any](col sql.NullString) ([]T, error) {
	items := []T{}
	if !col.Valid || col.String == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(col.String), &items); err != nil {
		return []T{}, fmt.Errorf("failed to decode list %.50q: %w", col.String, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
