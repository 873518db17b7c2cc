package reports

import (
	"encoding/csv"
	"io"

	"github.com/shopspring/decimal"

	"github.com/username/taxfolio/sharesreport/src/logger"
	"github.com/username/taxfolio/sharesreport/src/models"
	"github.com/username/taxfolio/sharesreport/src/processors"
	"github.com/username/taxfolio/sharesreport/src/security/validation"
	"github.com/username/taxfolio/sharesreport/src/utils"
)

// ReviewPlaceholder marks lines whose buy side is synthetic.
const ReviewPlaceholder = "NEEDS_REVIEW: purchase missing, placeholder cost basis"

// ReviewInstrument marks lines whose instrument could not be resolved.
const ReviewInstrument = "NEEDS_REVIEW: instrument metadata missing"

var gainsHeader = []string{
	"Symbol", "ISIN", "Country", "Currency", "Quantity",
	"Buy Date", "Buy Price", "Buy Amount", "Sell Date", "Sell Price", "Sell Amount",
	"Expenses", "Gain", "Rate", "Gain Converted", "Review",
}

// StageCapitalGains adds the capital-gains report, one CSV row per line, to
// set. Converted columns stay empty when rates is nil.
func StageCapitalGains(set *OutputSet, path string, lines []models.CapitalGainLine, rates *processors.ExchangeRates) error {
	err := set.Stage(path, func(w io.Writer) error {
		return EncodeCapitalGains(w, lines, rates)
	})
	if err != nil {
		return err
	}
	logger.L.Debug("Capital gains report staged", "path", path, "lines", len(lines))
	return nil
}

// EncodeCapitalGains writes the capital-gains CSV to w.
func EncodeCapitalGains(w io.Writer, lines []models.CapitalGainLine, rates *processors.ExchangeRates) error {
	cw := csv.NewWriter(w)
	header := gainsHeader
	if target := rates.Target(); target != "" {
		header = append([]string(nil), gainsHeader...)
		header[14] = "Gain " + target
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, l := range lines {
		rateCell, convertedCell := "", ""
		if rates != nil {
			rate, err := rates.Rate(l.Instrument.Currency)
			if err != nil {
				return err
			}
			rateCell = rate.String()
			convertedCell = utils.RoundMoney(l.Gain().Mul(rate)).StringFixed(2)
		}

		review := ""
		switch {
		case l.Placeholder:
			review = ReviewPlaceholder
		case l.Instrument.NeedsAttention():
			review = ReviewInstrument
		}

		row := []string{
			validation.SanitizeForFormulaInjection(l.Instrument.Symbol),
			validation.SanitizeForFormulaInjection(l.Instrument.ISIN),
			validation.SanitizeForFormulaInjection(l.Instrument.Country),
			l.Instrument.Currency,
			l.Quantity.String(),
			l.BuyDate.String(),
			l.BuyPrice.String(),
			money(l.BuyAmount()),
			l.SellDate.String(),
			l.SellPrice.String(),
			money(l.SellAmount()),
			money(l.Expenses()),
			money(l.Gain()),
			rateCell,
			convertedCell,
			review,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func money(d decimal.Decimal) string {
	return utils.RoundMoney(d).StringFixed(2)
}
