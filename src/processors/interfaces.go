package processors

import (
	"context"

	"github.com/username/taxfolio/sharesreport/src/models"
)

// Partitioner groups trades into independent per-(symbol, currency) cycles.
type Partitioner interface {
	Partition(trades []models.TradeAction) []models.TradeCycle
}

// StockProcessor runs FIFO matching over trade cycles.
type StockProcessor interface {
	Match(ctx context.Context, cycles []models.TradeCycle) (*MatchResult, error)
	MatchCycle(cycle models.TradeCycle) (CycleResult, error)
}

// RolloverProcessor merges prior carry-forward trades into a period and
// turns leftover inventory into carry-forward records.
type RolloverProcessor interface {
	Merge(current, prior *models.ParsedLog) ([]models.TradeAction, []models.EnrichmentGap)
	BuildCarryForward(inventory []models.UnmatchedInventory) []models.CarryForwardRecord
}

// DividendProcessor aggregates dividend and withholding records per instrument.
type DividendProcessor interface {
	Summarize(records []models.DividendRecord, rates *ExchangeRates) ([]models.DividendSummary, error)
}

// FeeProcessor totals the commissions allocated to gain lines and carried inventory.
type FeeProcessor interface {
	Summarize(lines []models.CapitalGainLine, carried []models.CarryForwardRecord) []models.FeeDetail
}
