package models

import "github.com/shopspring/decimal"

// FeeDetail totals commissions in one currency.
type FeeDetail struct {
	Currency  string
	Allocated decimal.Decimal // charged to capital-gain lines
	Carried   decimal.Decimal // attached to inventory carried forward
}
