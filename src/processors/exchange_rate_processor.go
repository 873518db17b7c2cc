package processors

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/username/taxfolio/sharesreport/src/config"
	"github.com/username/taxfolio/sharesreport/src/logger"
	"github.com/username/taxfolio/sharesreport/src/models"
)

// ExchangeRates converts amounts into the reporting currency. A nil
// *ExchangeRates means no conversion is configured.
type ExchangeRates struct {
	target string
	rates  map[string]decimal.Decimal
}

// NewExchangeRates builds the rate table from a validated rates file.
func NewExchangeRates(rf *models.RatesFile) (*ExchangeRates, error) {
	r := &ExchangeRates{target: rf.Target, rates: make(map[string]decimal.Decimal, len(rf.Rates)+1)}
	for currency, raw := range rf.Rates {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid exchange rate value for %s: %w", currency, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("exchange rate for %s must be positive, got %s", currency, raw)
		}
		r.rates[currency] = rate
	}
	if rate, ok := r.rates[rf.Target]; ok && !rate.Equal(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("exchange rate for target currency %s must be 1, got %s", rf.Target, rate)
	}
	r.rates[rf.Target] = decimal.NewFromInt(1)
	return r, nil
}

// LoadExchangeRates reads a rates file; an empty path disables conversion.
func LoadExchangeRates(path string) (*ExchangeRates, error) {
	if path == "" {
		return nil, nil
	}
	logger.L.Info("Loading exchange rates", "path", path)
	rf, err := config.LoadRates(path)
	if err != nil {
		return nil, err
	}
	rates, err := NewExchangeRates(rf)
	if err != nil {
		return nil, err
	}
	logger.L.Info("Exchange rates loaded", "target", rates.target, "currencies", len(rates.rates))
	return rates, nil
}

func (r *ExchangeRates) Target() string {
	if r == nil {
		return ""
	}
	return r.target
}

// Rate returns the multiplier from currency to the target currency.
func (r *ExchangeRates) Rate(currency string) (decimal.Decimal, error) {
	if r == nil {
		return decimal.Zero, fmt.Errorf("%w: no rates configured", models.ErrMissingRate)
	}
	rate, ok := r.rates[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s to %s", models.ErrMissingRate, currency, r.target)
	}
	return rate, nil
}

// Convert expresses amount, given in currency, in the target currency.
func (r *ExchangeRates) Convert(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	rate, err := r.Rate(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

// CheckCoverage fails when any of the currencies has no rate.
func (r *ExchangeRates) CheckCoverage(currencies []string) error {
	if r == nil {
		return nil
	}
	for _, c := range currencies {
		if _, err := r.Rate(c); err != nil {
			return err
		}
	}
	return nil
}
