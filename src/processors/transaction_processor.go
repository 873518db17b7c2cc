// src/processors/transaction_processor.go
package processors

import (
	"github.com/username/taxfolio/sharesreport/src/logger"
	"github.com/username/taxfolio/sharesreport/src/models"
	"github.com/username/taxfolio/sharesreport/src/utils"
)

// TransactionProcessor fills in instrument metadata on trades.
type TransactionProcessor struct {
	countries *utils.CountryResolver
}

func NewTransactionProcessor(countries *utils.CountryResolver) *TransactionProcessor {
	if countries == nil {
		countries = utils.MustCountryResolver()
	}
	return &TransactionProcessor{countries: countries}
}

// Enrich returns a copy of trades with ISIN and country resolved. Each
// unresolved trade is looked up by symbol and currency in the given
// instrument tables, in order. Trades no table knows get sentinel metadata
// and are reported as gaps.
func (p *TransactionProcessor) Enrich(trades []models.TradeAction, tables ...*models.ParsedLog) ([]models.TradeAction, []models.EnrichmentGap) {
	out := make([]models.TradeAction, len(trades))
	var gaps []models.EnrichmentGap

	for i, t := range trades {
		inst := t.Instrument
		if inst.ISIN == "" || inst.ISIN == models.MissingISIN {
			if found, ok := lookupInstrument(inst.Symbol, inst.Currency, tables); ok {
				inst.ISIN = found.ISIN
				inst.Country = found.Country
			}
		}

		if inst.ISIN == "" || inst.ISIN == models.MissingISIN {
			inst.ISIN = models.MissingISIN
			inst.Country = models.UnknownCountry
			gaps = append(gaps, models.EnrichmentGap{Symbol: inst.Symbol, Currency: inst.Currency, Source: t.Source, Row: t.Row})
		} else if inst.Country == "" {
			inst.Country = p.countries.CountryOf(inst.ISIN)
		}

		t.Instrument = inst
		out[i] = t
	}

	if len(gaps) > 0 {
		logger.L.Warn("Trades without instrument metadata need attention", "count", len(gaps))
	}
	return out, gaps
}

func lookupInstrument(symbol, currency string, tables []*models.ParsedLog) (models.Instrument, bool) {
	for _, table := range tables {
		if inst, ok := table.InstrumentBySymbol(symbol, currency); ok {
			return inst, true
		}
	}
	return models.Instrument{}, false
}
