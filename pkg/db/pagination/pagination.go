// Package pagination implements opaque keyset cursors for list endpoints.
// Cursors encode the (created_at, id) position of the last row returned, so
// pages stay stable while new rows are appended.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// Cursor is the decoded page position.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

// PageInfo describes the page boundary returned alongside the rows.
type PageInfo struct {
	NextCursor string `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

func EncodeCursor(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

// ClampLimit bounds a caller-supplied page size.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// BuildPageInfo trims an overfetched result set (limit+1 rows) down to the
// page and reports whether more rows remain. extract returns the cursor
// position of a row.
func BuildPageInfo[T any](rows []T, limit int, extract func(T) Cursor) ([]T, *PageInfo, error) {
	if len(rows) <= limit {
		return rows, &PageInfo{HasMore: false}, nil
	}

	rows = rows[:limit]
	next, err := EncodeCursor(extract(rows[len(rows)-1]))
	if err != nil {
		return nil, nil, err
	}
	return rows, &PageInfo{HasMore: true, NextCursor: next}, nil
}
