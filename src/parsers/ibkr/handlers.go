package ibkr

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/username/taxfolio/sharesreport/src/logger"
	"github.com/username/taxfolio/sharesreport/src/models"
	"github.com/username/taxfolio/sharesreport/src/utils"
)

// dividendSymbolPattern extracts the ticker, and optionally the ISIN in
// parentheses, from descriptions like "AAPL(US0378331005) Cash Dividend ...".
var dividendSymbolPattern = regexp.MustCompile(`^([A-Z0-9.]+)(?:\s*\(([A-Z0-9]+)\))?\s+`)

func (r *parseRun) fieldError(row int, column, value string, err error) error {
	return &models.FieldError{Section: r.current.String(), Row: row, Column: column, Value: value, Err: err}
}

func (r *parseRun) instrumentRow(row int, rec []string) error {
	if asset := r.layout.get(rec, colAssetCategory); asset != assetStocks {
		r.filtered++
		return nil
	}
	if !r.layout.has(colSecurityID) {
		return &models.StructuralError{
			Section:  r.current.String(),
			Row:      row,
			Expected: append(r.current.requiredColumns(), colSecurityID),
			Reason:   "stock instrument rows need a Security ID column",
		}
	}

	symbol, err := r.symbol(row, r.layout.get(rec, colSymbol))
	if err != nil {
		return err
	}
	isin := r.layout.get(rec, colSecurityID)
	if isin == "" {
		return r.fieldError(row, colSecurityID, isin, fmt.Errorf("security id is required"))
	}
	currency := ""
	if r.layout.has(colCurrency) {
		if currency, err = r.currency(row, r.layout.get(rec, colCurrency)); err != nil {
			return err
		}
	}

	inst := models.Instrument{
		Symbol:   symbol,
		ISIN:     isin,
		Currency: currency,
		Country:  r.p.countries.CountryOf(isin),
	}
	if prev, ok := r.out.Instruments[isin]; ok {
		if prev.Symbol != inst.Symbol {
			return &models.ConsistencyError{Key: isin, Reason: fmt.Sprintf("row %d maps it to symbol %s, already mapped to %s", row, inst.Symbol, prev.Symbol)}
		}
		if prev.Currency != "" && inst.Currency != "" && prev.Currency != inst.Currency {
			return &models.ConsistencyError{Key: isin, Reason: fmt.Sprintf("row %d maps it to currency %s, already mapped to %s", row, inst.Currency, prev.Currency)}
		}
		if inst.Currency == "" {
			inst.Currency = prev.Currency
		}
	}
	if other, ok := r.symbolToISIN[symbol]; ok && other != isin {
		return &models.ConsistencyError{Key: symbol, Reason: fmt.Sprintf("row %d maps it to %s, already mapped to %s", row, isin, other)}
	}

	r.out.Instruments[isin] = inst
	r.symbolToISIN[symbol] = isin
	return nil
}

func (r *parseRun) tradeRow(row int, rec []string) error {
	if r.layout.get(rec, colDataDiscriminator) != discriminatorOrder || r.layout.get(rec, colAssetCategory) != assetStocks {
		r.filtered++
		return nil
	}

	symbol, err := r.symbol(row, r.layout.get(rec, colSymbol))
	if err != nil {
		return err
	}
	currency, err := r.currency(row, r.layout.get(rec, colCurrency))
	if err != nil {
		return err
	}

	rawDate := r.layout.get(rec, colDateTime)
	date, err := utils.ParseStatementDate(rawDate)
	if err != nil {
		return r.fieldError(row, colDateTime, rawDate, err)
	}

	rawQty := r.layout.get(rec, colQuantity)
	qty, err := utils.ParseDecimal(rawQty)
	if err != nil {
		return r.fieldError(row, colQuantity, rawQty, err)
	}
	if qty.IsZero() {
		return r.fieldError(row, colQuantity, rawQty, fmt.Errorf("quantity must not be zero"))
	}
	if qty.Abs().GreaterThan(decimal.NewFromFloat(r.p.security.MaxQuantity)) {
		return r.fieldError(row, colQuantity, rawQty, fmt.Errorf("quantity exceeds limit %g", r.p.security.MaxQuantity))
	}

	rawPrice := r.layout.get(rec, colTradePrice)
	price, err := utils.ParseDecimal(rawPrice)
	if err != nil {
		return r.fieldError(row, colTradePrice, rawPrice, err)
	}
	if price.IsNegative() {
		return r.fieldError(row, colTradePrice, rawPrice, fmt.Errorf("price must not be negative"))
	}
	if price.GreaterThan(decimal.NewFromFloat(r.p.security.MaxPrice)) {
		return r.fieldError(row, colTradePrice, rawPrice, fmt.Errorf("price exceeds limit %g", r.p.security.MaxPrice))
	}

	rawFee := r.layout.get(rec, colFee)
	fee, err := utils.ParseOptionalDecimal(rawFee)
	if err != nil {
		return r.fieldError(row, colFee, rawFee, err)
	}

	side := models.Buy
	if qty.IsNegative() {
		side = models.Sell
	}

	trade := models.TradeAction{
		Row:        row,
		Instrument: models.Instrument{Symbol: symbol, Currency: currency},
		Side:       side,
		Date:       date,
		Quantity:   qty.Abs(),
		Price:      price,
		Fee:        fee.Abs(),
		Source:     models.SourceCurrent,
	}
	if r.mode == models.Lenient {
		trade.Source = models.SourceCarryForward
	}
	r.out.Trades = append(r.out.Trades, trade)

	r.sample.Do(func() {
		logger.L.Debug("ibkr parser: collected trade",
			"row", row, "symbol", symbol, "currency", currency, "side", side.String(),
			"date", date.String(), "quantity", trade.Quantity.String(), "price", price.String(),
			"tradeCount", len(r.out.Trades))
	})
	return nil
}

func (r *parseRun) dividendRow(row int, rec []string, kind models.DividendKind) error {
	currency := r.layout.get(rec, colCurrency)
	// "Total", "Total in EUR", "Total Dividends in USD" summary rows.
	if strings.HasPrefix(currency, "Total") {
		return nil
	}
	currency, err := r.currency(row, currency)
	if err != nil {
		return err
	}

	rawDate := r.layout.get(rec, colDate)
	date, err := utils.ParseStatementDate(rawDate)
	if err != nil {
		return r.fieldError(row, colDate, rawDate, err)
	}

	rawAmount := r.layout.get(rec, colAmount)
	amount, err := utils.ParseDecimal(rawAmount)
	if err != nil {
		return r.fieldError(row, colAmount, rawAmount, err)
	}

	description := r.layout.get(rec, colDescription)
	record := models.DividendRecord{
		Row:         row,
		Kind:        kind,
		Currency:    currency,
		Date:        date,
		Description: description,
		Amount:      amount.Abs(),
	}
	if m := dividendSymbolPattern.FindStringSubmatch(description); m != nil {
		record.Symbol = m[1]
		if utils.IsValidISIN(m[2]) {
			record.ISIN = m[2]
		}
	} else {
		logger.L.Warn("ibkr parser: dividend description without symbol", "row", row, "description", description)
	}
	r.out.Dividends = append(r.out.Dividends, record)
	return nil
}

func (r *parseRun) symbol(row int, raw string) (string, error) {
	if raw == "" {
		return "", r.fieldError(row, colSymbol, raw, fmt.Errorf("symbol is required"))
	}
	if len(raw) > r.p.security.MaxTickerLength {
		return "", r.fieldError(row, colSymbol, raw, fmt.Errorf("symbol longer than %d characters", r.p.security.MaxTickerLength))
	}
	return raw, nil
}

func (r *parseRun) currency(row int, raw string) (string, error) {
	if raw == "" || len(raw) > r.p.security.MaxCurrencyLength {
		return "", r.fieldError(row, colCurrency, raw, fmt.Errorf("currency must be 1-%d letters", r.p.security.MaxCurrencyLength))
	}
	for _, c := range raw {
		if c < 'A' || c > 'Z' {
			return "", r.fieldError(row, colCurrency, raw, fmt.Errorf("currency must be upper-case letters"))
		}
	}
	return raw, nil
}
