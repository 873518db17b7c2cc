// src/models/trade.go
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const tradeDateLayout = "2006-01-02"

// PlaceholderYear is the sentinel year used for synthetic buys that stand in
// for purchases missing from the statement.
const PlaceholderYear = 1000

// TradeDate is a calendar day without time of day, always stored at UTC midnight.
type TradeDate struct {
	t time.Time
}

// NewTradeDate builds a TradeDate for the given calendar day.
func NewTradeDate(year int, month time.Month, day int) TradeDate {
	return TradeDate{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// TradeDateOf drops the time-of-day component of t.
func TradeDateOf(t time.Time) TradeDate {
	return NewTradeDate(t.Year(), t.Month(), t.Day())
}

// PlaceholderDate marks the acquisition date of a synthetic buy as unknown.
func PlaceholderDate() TradeDate {
	return NewTradeDate(PlaceholderYear, time.January, 1)
}

// ParseTradeDate parses a YYYY-MM-DD date.
func ParseTradeDate(s string) (TradeDate, error) {
	t, err := time.Parse(tradeDateLayout, s)
	if err != nil {
		return TradeDate{}, err
	}
	return TradeDate{t: t}, nil
}

func (d TradeDate) Time() time.Time { return d.t }

// AddDays returns the date n calendar days later.
func (d TradeDate) AddDays(n int) TradeDate { return TradeDate{t: d.t.AddDate(0, 0, n)} }

func (d TradeDate) IsZero() bool { return d.t.IsZero() }

func (d TradeDate) IsPlaceholder() bool { return d.t.Year() == PlaceholderYear }

func (d TradeDate) Before(o TradeDate) bool { return d.t.Before(o.t) }

func (d TradeDate) Equal(o TradeDate) bool { return d.t.Equal(o.t) }

// Compare returns -1, 0 or +1.
func (d TradeDate) Compare(o TradeDate) int { return d.t.Compare(o.t) }

func (d TradeDate) String() string { return d.t.Format(tradeDateLayout) }

// Side is the direction of an execution.
type Side int

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// TradeSource tells where a trade came from.
type TradeSource string

const (
	SourceCurrent      TradeSource = "current"
	SourceCarryForward TradeSource = "carry-forward"
)

// TradeAction is one buy or sell execution. Quantity is always positive,
// Side carries the direction. Values are never modified after parsing;
// partial consumption is tracked by TradePart.
type TradeAction struct {
	Row        int // 1-based CSV record, 0 when synthetic
	Instrument Instrument
	Side       Side
	Date       TradeDate
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Fee        decimal.Decimal // absolute commission for the whole execution
	Source     TradeSource
}

// Key returns the trade cycle this trade belongs to.
func (t TradeAction) Key() CycleKey {
	return CycleKey{Symbol: t.Instrument.Symbol, Currency: t.Instrument.Currency}
}

// FeeShare pro-rates the execution fee to qty.
func (t TradeAction) FeeShare(qty decimal.Decimal) decimal.Decimal {
	if t.Quantity.IsZero() || t.Fee.IsZero() {
		return decimal.Zero
	}
	return t.Fee.Mul(qty).Div(t.Quantity)
}

// CycleKey identifies an independent matching group.
type CycleKey struct {
	Symbol   string
	Currency string
}

func (k CycleKey) String() string { return k.Symbol + "/" + k.Currency }

// Less orders keys by symbol, then currency.
func (k CycleKey) Less(o CycleKey) bool {
	if k.Symbol != o.Symbol {
		return k.Symbol < o.Symbol
	}
	return k.Currency < o.Currency
}

// DailyBucket holds the trades of one day in execution order.
type DailyBucket struct {
	Date   TradeDate
	Trades []TradeAction
}

// TradeCycle is every trade of one (symbol, currency) pair, bucketed by day
// in ascending date order.
type TradeCycle struct {
	Key     CycleKey
	Buckets []DailyBucket
}

// TradeCount returns the number of trades across all buckets.
func (c TradeCycle) TradeCount() int {
	n := 0
	for _, b := range c.Buckets {
		n += len(b.Trades)
	}
	return n
}

// TradePart is the unmatched remainder of one trade.
type TradePart struct {
	Trade       TradeAction
	Remaining   decimal.Decimal
	Placeholder bool
}

// WithRemaining returns a copy of the part with a new remaining quantity.
func (p TradePart) WithRemaining(q decimal.Decimal) TradePart {
	p.Remaining = q
	return p
}

// UnmatchedInventory is what is left in a cycle's queues after matching.
type UnmatchedInventory struct {
	Key   CycleKey
	Parts []TradePart
}

// Total returns the remaining quantity per side.
func (u UnmatchedInventory) Total(side Side) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range u.Parts {
		if p.Trade.Side == side {
			sum = sum.Add(p.Remaining)
		}
	}
	return sum
}
