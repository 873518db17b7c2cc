package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrParsingFailed  = errors.New("failed to parse transaction file")
	ErrMatchingFailed = errors.New("failed to match trades")
	ErrInvalidFile    = errors.New("invalid input file")
	ErrMissingRate    = errors.New("missing exchange rate")
)

// StructuralError reports a statement whose layout cannot be processed:
// a required section is absent or a header has the wrong shape.
type StructuralError struct {
	Section  string
	Row      int // 1-based CSV record, 0 when the error is not tied to a row
	Expected []string
	Reason   string
}

func (e *StructuralError) Error() string {
	var b strings.Builder
	b.WriteString("structural error")
	if e.Section != "" {
		fmt.Fprintf(&b, " in section %q", e.Section)
	}
	if e.Row > 0 {
		fmt.Fprintf(&b, " at row %d", e.Row)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if len(e.Expected) > 0 {
		fmt.Fprintf(&b, " (expected columns: %s)", strings.Join(e.Expected, ", "))
	}
	return b.String()
}

// FieldError reports a single malformed value in a data row.
type FieldError struct {
	Section string
	Row     int // 1-based CSV record
	Column  string
	Value   string
	Err     error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid value %q for column %q in section %q at row %d: %v",
		e.Value, e.Column, e.Section, e.Row, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// ConsistencyError signals data that contradicts itself or a broken
// bookkeeping invariant.
type ConsistencyError struct {
	Key    string
	Reason string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency error for %s: %s", e.Key, e.Reason)
}

// EnrichmentGap records a trade whose instrument could not be resolved.
// It is not fatal: the trade is kept with sentinel metadata.
type EnrichmentGap struct {
	Symbol   string
	Currency string
	Source   TradeSource
	Row      int
}

func (g EnrichmentGap) String() string {
	return fmt.Sprintf("%s/%s (%s, row %d): no instrument metadata", g.Symbol, g.Currency, g.Source, g.Row)
}
