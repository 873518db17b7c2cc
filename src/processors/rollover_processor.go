package processors

import (
	"github.com/username/taxfolio/sharesreport/src/logger"
	"github.com/username/taxfolio/sharesreport/src/models"
)

type rolloverProcessorImpl struct {
	enricher *TransactionProcessor
}

func NewRolloverProcessor(enricher *TransactionProcessor) RolloverProcessor {
	return &rolloverProcessorImpl{enricher: enricher}
}

// Merge puts carry-forward trades ahead of the period's own trades and
// enriches both. Carried trades keep their original dates, so they land in
// the earliest buckets and, on a shared date, ahead of current trades.
// Instrument metadata comes from the current period first, then from the
// carry-forward file itself.
func (p *rolloverProcessorImpl) Merge(current, prior *models.ParsedLog) ([]models.TradeAction, []models.EnrichmentGap) {
	var merged []models.TradeAction
	if prior != nil {
		merged = append(merged, prior.Trades...)
	}
	if current != nil {
		merged = append(merged, current.Trades...)
	}

	enriched, gaps := p.enricher.Enrich(merged, current, prior)
	if prior != nil {
		logger.L.Info("Merged carry-forward trades", "carried", len(prior.Trades), "total", len(enriched), "gaps", len(gaps))
	}
	return enriched, gaps
}

// BuildCarryForward turns leftover trade parts into records for the next
// period. Each record carries the fee share of its remaining quantity.
func (p *rolloverProcessorImpl) BuildCarryForward(inventory []models.UnmatchedInventory) []models.CarryForwardRecord {
	var records []models.CarryForwardRecord
	for _, inv := range inventory {
		for _, part := range inv.Parts {
			if part.Placeholder || !part.Remaining.IsPositive() {
				continue
			}
			records = append(records, models.CarryForwardRecord{
				Instrument: part.Trade.Instrument,
				Side:       part.Trade.Side,
				Date:       part.Trade.Date,
				Quantity:   part.Remaining,
				Price:      part.Trade.Price,
				Fee:        part.Trade.FeeShare(part.Remaining),
			})
		}
	}
	return records
}
