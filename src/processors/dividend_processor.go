package processors

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/username/taxfolio/sharesreport/src/models"
	"github.com/username/taxfolio/sharesreport/src/utils"
)

type dividendProcessorImpl struct {
	countries *utils.CountryResolver
}

func NewDividendProcessor(countries *utils.CountryResolver) DividendProcessor {
	if countries == nil {
		countries = utils.MustCountryResolver()
	}
	return &dividendProcessorImpl{countries: countries}
}

// Summarize groups dividends and withholding tax by (symbol, currency).
// Converted totals are filled only when rates are given.
func (p *dividendProcessorImpl) Summarize(records []models.DividendRecord, rates *ExchangeRates) ([]models.DividendSummary, error) {
	byKey := make(map[models.CycleKey]*models.DividendSummary)
	var keys []models.CycleKey

	for _, rec := range records {
		key := models.CycleKey{Symbol: rec.Symbol, Currency: rec.Currency}
		summary, ok := byKey[key]
		if !ok {
			summary = &models.DividendSummary{
				Instrument: models.Instrument{Symbol: rec.Symbol, Currency: rec.Currency, ISIN: models.MissingISIN, Country: models.UnknownCountry},
				Gross:      decimal.Zero,
				Tax:        decimal.Zero,
			}
			byKey[key] = summary
			keys = append(keys, key)
		}
		if rec.ISIN != "" && rec.ISIN != models.MissingISIN {
			summary.Instrument.ISIN = rec.ISIN
			summary.Instrument.Country = p.countries.CountryOf(rec.ISIN)
		}

		switch rec.Kind {
		case models.KindDividend:
			summary.Gross = summary.Gross.Add(rec.Amount)
		case models.KindWithholdingTax:
			summary.Tax = summary.Tax.Add(rec.Amount)
		}
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	out := make([]models.DividendSummary, 0, len(keys))
	for _, key := range keys {
		s := *byKey[key]
		if rates != nil {
			gross, err := rates.Convert(s.Gross, key.Currency)
			if err != nil {
				return nil, err
			}
			tax, err := rates.Convert(s.Tax, key.Currency)
			if err != nil {
				return nil, err
			}
			s.GrossConverted = utils.RoundMoney(gross)
			s.TaxConverted = utils.RoundMoney(tax)
		}
		out = append(out, s)
	}
	return out, nil
}
