package reports

import (
	"encoding/csv"
	"io"

	"github.com/username/taxfolio/sharesreport/src/logger"
	"github.com/username/taxfolio/sharesreport/src/models"
	"github.com/username/taxfolio/sharesreport/src/utils"
)

var rolloverInstrumentHeader = []string{
	"Financial Instrument Information", "Header", "Asset Category", "Symbol", "Description", "Conid", "Security ID",
}

var rolloverTradesHeader = []string{
	"Trades", "Header", "DataDiscriminator", "Asset Category", "Currency", "Symbol",
	"Date/Time", "Quantity", "T. Price", "C. Price", "Proceeds", "Comm/Fee",
}

// StageRollover adds the carry-forward records to set as an activity
// statement with an instrument section and a trades section, so that the
// next run can read it with the regular parser.
func StageRollover(set *OutputSet, path string, records []models.CarryForwardRecord) error {
	err := set.Stage(path, func(w io.Writer) error {
		return EncodeRollover(w, records)
	})
	if err != nil {
		return err
	}
	logger.L.Debug("Rollover file staged", "path", path, "records", len(records))
	return nil
}

// EncodeRollover writes the rollover statement to w.
func EncodeRollover(w io.Writer, records []models.CarryForwardRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(rolloverInstrumentHeader); err != nil {
		return err
	}
	written := make(map[string]bool)
	for _, r := range records {
		isin := r.Instrument.ISIN
		if isin == "" || isin == models.MissingISIN || written[isin] {
			continue
		}
		written[isin] = true
		row := []string{"Financial Instrument Information", "Data", "Stocks", r.Instrument.Symbol, "", "", isin}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	if err := cw.Write(rolloverTradesHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			"Trades", "Data", "Order", "Stocks",
			r.Instrument.Currency,
			r.Instrument.Symbol,
			utils.FormatStatementDateTime(r.Date),
			r.SignedQuantity().String(),
			r.Price.String(),
			"",
			r.Proceeds().String(),
			r.Fee.Neg().String(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
