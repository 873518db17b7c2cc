package reports

import (
	"encoding/csv"
	"io"

	"github.com/username/taxfolio/sharesreport/src/logger"
	"github.com/username/taxfolio/sharesreport/src/models"
	"github.com/username/taxfolio/sharesreport/src/security/validation"
)

// StageDividends adds the dividend report, one CSV row per instrument with
// dividend income, to set.
func StageDividends(set *OutputSet, path string, summaries []models.DividendSummary, target string) error {
	err := set.Stage(path, func(w io.Writer) error {
		return EncodeDividends(w, summaries, target)
	})
	if err != nil {
		return err
	}
	logger.L.Debug("Dividend report staged", "path", path, "instruments", len(summaries))
	return nil
}

// EncodeDividends writes the dividend CSV to w. Converted columns are only
// present when a target currency is configured.
func EncodeDividends(w io.Writer, summaries []models.DividendSummary, target string) error {
	cw := csv.NewWriter(w)
	header := []string{"Symbol", "ISIN", "Country", "Currency", "Gross", "Withholding Tax", "Net"}
	if target != "" {
		header = append(header, "Gross "+target, "Withholding Tax "+target)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, s := range summaries {
		row := []string{
			validation.SanitizeForFormulaInjection(s.Instrument.Symbol),
			validation.SanitizeForFormulaInjection(s.Instrument.ISIN),
			validation.SanitizeForFormulaInjection(s.Instrument.Country),
			s.Instrument.Currency,
			money(s.Gross),
			money(s.Tax),
			money(s.Net()),
		}
		if target != "" {
			row = append(row, money(s.GrossConverted), money(s.TaxConverted))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
