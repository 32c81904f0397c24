// Package pagination implements the page-index cursor used by the gallery.
// A cursor is the decimal page number, starting at 1.
package pagination

import (
	"errors"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var (
	ErrInvalidCursor = errors.New("invalid cursor")
	ErrInvalidLimit  = errors.New("invalid limit")
)

type Page struct {
	Index int
	Limit int
}

// Parse validates a cursor and limit. An empty cursor is page 1 and a zero
// limit is DefaultLimit.
func Parse(cursor string, limit int) (Page, error) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 1 || limit > MaxLimit {
		return Page{}, ErrInvalidLimit
	}
	index := 1
	if cursor = strings.TrimSpace(cursor); cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 1 {
			return Page{}, ErrInvalidCursor
		}
		index = n
	}
	return Page{Index: index, Limit: limit}, nil
}

func (p Page) Offset() int {
	return (p.Index - 1) * p.Limit
}

// Fetch is the number of rows to request: one extra to detect a following page.
func (p Page) Fetch() int {
	return p.Limit + 1
}

// Next returns the following page index when fetched rows exceed the limit.
func (p Page) Next(fetched int) *int {
	if fetched <= p.Limit {
		return nil
	}
	next := p.Index + 1
	return &next
}

// Keywords lowercases a search string and splits it on whitespace.
func Keywords(search string) []string {
	return strings.Fields(strings.ToLower(search))
}
