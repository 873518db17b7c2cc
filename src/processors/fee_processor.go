// src/processors/fee_processor.go
package processors

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/username/taxfolio/sharesreport/src/models"
)

type feeProcessorImpl struct{}

func NewFeeProcessor() FeeProcessor {
	return &feeProcessorImpl{}
}

func (p *feeProcessorImpl) Summarize(lines []models.CapitalGainLine, carried []models.CarryForwardRecord) []models.FeeDetail {
	byCurrency := make(map[string]*models.FeeDetail)
	get := func(currency string) *models.FeeDetail {
		d, ok := byCurrency[currency]
		if !ok {
			d = &models.FeeDetail{Currency: currency, Allocated: decimal.Zero, Carried: decimal.Zero}
			byCurrency[currency] = d
		}
		return d
	}

	for _, l := range lines {
		d := get(l.Instrument.Currency)
		d.Allocated = d.Allocated.Add(l.Expenses())
	}
	for _, r := range carried {
		d := get(r.Instrument.Currency)
		d.Carried = d.Carried.Add(r.Fee)
	}

	feeDetails := make([]models.FeeDetail, 0, len(byCurrency))
	for _, d := range byCurrency {
		feeDetails = append(feeDetails, *d)
	}
	sort.Slice(feeDetails, func(i, j int) bool { return feeDetails[i].Currency < feeDetails[j].Currency })
	return feeDetails
}
