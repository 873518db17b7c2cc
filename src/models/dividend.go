package models

import "github.com/shopspring/decimal"

// DividendKind distinguishes gross dividends from taxes withheld on them.
type DividendKind string

const (
	KindDividend       DividendKind = "DIVIDEND"
	KindWithholdingTax DividendKind = "WITHHOLDING_TAX"
)

// DividendRecord is a row from the Dividends or Withholding Tax section.
// Amount is always stored as an absolute value.
type DividendRecord struct {
	Row         int
	Kind        DividendKind
	Symbol      string
	ISIN        string
	Currency    string
	Date        TradeDate
	Description string
	Amount      decimal.Decimal
}

// DividendSummary holds the aggregated dividend income for one instrument.
type DividendSummary struct {
	Instrument     Instrument
	Gross          decimal.Decimal
	Tax            decimal.Decimal
	GrossConverted decimal.Decimal
	TaxConverted   decimal.Decimal
}

// Net is gross income minus withheld tax.
func (s DividendSummary) Net() decimal.Decimal { return s.Gross.Sub(s.Tax) }
