package models

const (
	// MissingISIN marks instruments that could not be resolved from any
	// statement section.
	MissingISIN = "MISSING_ISIN_REQUIRES_ATTENTION"
	// UnknownCountry is the country of an instrument without a usable ISIN.
	UnknownCountry = "UNKNOWN_COUNTRY"
)

// Instrument identifies a traded security.
type Instrument struct {
	Symbol   string `json:"symbol"`
	ISIN     string `json:"isin"`
	Currency string `json:"currency"`
	Country  string `json:"country"`
}

// NeedsAttention reports whether the instrument carries sentinel metadata.
func (i Instrument) NeedsAttention() bool {
	return i.ISIN == "" || i.ISIN == MissingISIN || i.Country == UnknownCountry
}

// ParseMode selects which statement sections are required.
type ParseMode int

const (
	// Strict requires instrument metadata and trades.
	Strict ParseMode = iota
	// Lenient requires trades only; used for carry-forward files.
	Lenient
)

func (m ParseMode) String() string {
	if m == Lenient {
		return "lenient"
	}
	return "strict"
}

// ParsedLog is everything extracted from one activity statement.
type ParsedLog struct {
	Mode        ParseMode
	Instruments map[string]Instrument // keyed by ISIN
	Trades      []TradeAction
	Dividends   []DividendRecord
}

// InstrumentBySymbol looks an instrument up by ticker. When currency is set
// on both sides it must agree.
func (l *ParsedLog) InstrumentBySymbol(symbol, currency string) (Instrument, bool) {
	if l == nil {
		return Instrument{}, false
	}
	for _, inst := range l.Instruments {
		if inst.Symbol != symbol {
			continue
		}
		if inst.Currency != "" && currency != "" && inst.Currency != currency {
			continue
		}
		return inst, true
	}
	return Instrument{}, false
}
