package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Column selects the primary ordering of a search. Every ordering gets a
// secondary id tie-break so that pages stay stable under equal values.
type Column int

const (
	// ColumnUnspecified represents an invalid column value.
	ColumnUnspecified Column = iota
	// ColumnByID orders by principal or event id.
	ColumnByID
	// ColumnByName orders by unique short name.
	ColumnByName
	// ColumnByRealName orders by display name.
	ColumnByRealName
	// ColumnByTimeCreated orders by creation time. For audit events this is
	// the event time.
	ColumnByTimeCreated
	// ColumnByTimeUpdated orders by last update time.
	ColumnByTimeUpdated
)

var columnNames = map[Column]string{
	ColumnByID:          "BY_ID",
	ColumnByName:        "BY_NAME",
	ColumnByRealName:    "BY_REALNAME",
	ColumnByTimeCreated: "BY_TIME_CREATED",
	ColumnByTimeUpdated: "BY_TIME_UPDATED",
}

// String returns the stable name of the column.
func (c Column) String() string {
	if name, ok := columnNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Column(%d)", int(c))
}

// ParseColumn resolves a stable column name.
func ParseColumn(name string) (Column, error) {
	for c, n := range columnNames {
		if n == name {
			return c, nil
		}
	}
	return ColumnUnspecified, fmt.Errorf("unrecognized ordering column %q", name)
}

// Ordering pairs a column with a direction.
type Ordering struct {
	Column    Column
	Ascending bool
}

// TimeRange bounds a timestamp column inclusively on both ends.
type TimeRange struct {
	Lower time.Time
	Upper time.Time
}

// AnyTime returns a range admitting every representable timestamp.
func AnyTime() TimeRange {
	return TimeRange{
		Lower: time.Unix(0, 0).UTC(),
		Upper: time.Date(9999, 12, 31, 23, 59, 59, 999999000, time.UTC),
	}
}

// ErrFilterNUL indicates a free-text filter containing a NUL byte.
var ErrFilterNUL = errors.New("filter contains a NUL byte")

// SearchParameters drive one paged search. The value is immutable; one
// instance owns one cursor.
type SearchParameters struct {
	Created  TimeRange
	Updated  TimeRange
	Filter   string
	Ordering Ordering
	Limit    int
}

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 1000
)

// Normalize validates the parameters, clamps the limit, and case-folds the
// free-text filter for case-insensitive matching.
func (p SearchParameters) Normalize() (SearchParameters, error) {
	if _, ok := columnNames[p.Ordering.Column]; !ok {
		return SearchParameters{}, fmt.Errorf("unrecognized ordering column %d", int(p.Ordering.Column))
	}
	if strings.ContainsRune(p.Filter, 0) {
		return SearchParameters{}, ErrFilterNUL
	}
	p.Filter = cases.Fold().String(strings.TrimSpace(p.Filter))
	if p.Limit <= 0 {
		p.Limit = defaultSearchLimit
	}
	if p.Limit > maxSearchLimit {
		p.Limit = maxSearchLimit
	}
	if p.Created == (TimeRange{}) {
		p.Created = AnyTime()
	}
	if p.Updated == (TimeRange{}) {
		p.Updated = AnyTime()
	}
	return p, nil
}

// Page is one window over a search result set.
type Page[T any] struct {
	// Items holds at most the search limit of elements, in search order.
	Items []T
	// PageIndex is 1-based.
	PageIndex int
	// PageCount is the total number of pages for the current matching set.
	PageCount int
	// PageFirstOffset is the 0-based absolute offset of the first item,
	// for "showing X-Y of N" displays.
	PageFirstOffset int64
}
