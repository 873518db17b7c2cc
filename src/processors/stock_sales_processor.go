package processors

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/username/taxfolio/sharesreport/src/logger"
	"github.com/username/taxfolio/sharesreport/src/models"
	"github.com/username/taxfolio/sharesreport/src/utils"
)

// MatchOptions configures the FIFO engine.
type MatchOptions struct {
	// PlaceholderBuys pairs a sell that precedes every buy of its cycle with
	// a zero-cost synthetic buy dated models.PlaceholderDate. Carried-forward
	// sells were already waiting for purchases and never get one.
	PlaceholderBuys bool
	// Workers bounds how many cycles are matched concurrently.
	Workers int
}

// CycleResult is the outcome of matching one trade cycle.
type CycleResult struct {
	Key          models.CycleKey
	Lines        []models.CapitalGainLine
	Unmatched    models.UnmatchedInventory
	Placeholders int
}

// MatchResult aggregates every cycle of a run, in cycle order.
type MatchResult struct {
	Cycles       []CycleResult
	Lines        []models.CapitalGainLine
	Unmatched    []models.UnmatchedInventory
	Placeholders int
}

type stockProcessorImpl struct {
	opts MatchOptions
}

func NewStockProcessor(opts MatchOptions) StockProcessor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &stockProcessorImpl{opts: opts}
}

// Match runs every cycle independently. Results keep the order of cycles
// regardless of which worker finished first.
func (p *stockProcessorImpl) Match(ctx context.Context, cycles []models.TradeCycle) (*MatchResult, error) {
	results := make([]CycleResult, len(cycles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i := range cycles {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.MatchCycle(cycles[i])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &MatchResult{Cycles: results}
	for _, res := range results {
		out.Lines = append(out.Lines, res.Lines...)
		out.Placeholders += res.Placeholders
		if len(res.Unmatched.Parts) > 0 {
			out.Unmatched = append(out.Unmatched, res.Unmatched)
		}
	}
	logger.FromContext(ctx).Info("FIFO matching complete",
		"cycles", len(cycles), "lines", len(out.Lines),
		"unmatchedCycles", len(out.Unmatched), "placeholders", out.Placeholders)
	return out, nil
}

// MatchCycle walks the cycle's buckets in date order and matches after each
// trade is queued, so the earliest open inventory is always consumed first.
func (p *stockProcessorImpl) MatchCycle(cycle models.TradeCycle) (CycleResult, error) {
	res := CycleResult{Key: cycle.Key}
	var buyQueue, sellQueue []models.TradePart
	seenBuy := false

	var prev models.TradeDate
	for bi, bucket := range cycle.Buckets {
		if bi > 0 && !prev.Before(bucket.Date) {
			return res, &models.ConsistencyError{Key: cycle.Key.String(), Reason: fmt.Sprintf("bucket %s is not after %s", bucket.Date, prev)}
		}
		prev = bucket.Date

		for _, trade := range bucket.Trades {
			if !trade.Date.Equal(bucket.Date) || trade.Key() != cycle.Key {
				return res, &models.ConsistencyError{Key: cycle.Key.String(), Reason: fmt.Sprintf("trade at row %d does not belong to bucket %s", trade.Row, bucket.Date)}
			}
			part := models.TradePart{Trade: trade, Remaining: trade.Quantity}

			switch trade.Side {
			case models.Buy:
				seenBuy = true
				buyQueue = append(buyQueue, part)
			case models.Sell:
				// A carried sell is inventory of an earlier period whose buys
				// were exhausted, so the position's purchase history exists.
				if trade.Source == models.SourceCarryForward {
					seenBuy = true
				}
				if !seenBuy && p.opts.PlaceholderBuys {
					logger.L.Warn("Sell without any prior purchase, using placeholder buy",
						"cycle", cycle.Key.String(), "date", trade.Date.String(),
						"quantity", trade.Quantity.String(), "row", trade.Row)
					buyQueue = append(buyQueue, placeholderBuy(trade))
					res.Placeholders++
				}
				sellQueue = append(sellQueue, part)
			default:
				return res, &models.ConsistencyError{Key: cycle.Key.String(), Reason: fmt.Sprintf("trade at row %d has no side", trade.Row)}
			}

			buyQueue, sellQueue, res.Lines = drainQueues(buyQueue, sellQueue, res.Lines)
		}
	}

	res.Unmatched = models.UnmatchedInventory{Key: cycle.Key}
	res.Unmatched.Parts = append(res.Unmatched.Parts, buyQueue...)
	res.Unmatched.Parts = append(res.Unmatched.Parts, sellQueue...)

	if err := verifyConservation(cycle, res); err != nil {
		return res, err
	}
	return res, nil
}

// drainQueues pairs queue fronts until one side is empty.
func drainQueues(buyQueue, sellQueue []models.TradePart, lines []models.CapitalGainLine) ([]models.TradePart, []models.TradePart, []models.CapitalGainLine) {
	for len(buyQueue) > 0 && len(sellQueue) > 0 {
		buy, sell := buyQueue[0], sellQueue[0]
		q := utils.MinDecimal(buy.Remaining, sell.Remaining)
		lines = append(lines, newGainLine(buy, sell, q))

		buy = buy.WithRemaining(buy.Remaining.Sub(q))
		sell = sell.WithRemaining(sell.Remaining.Sub(q))
		if buy.Remaining.IsZero() {
			buyQueue = buyQueue[1:]
		} else {
			buyQueue[0] = buy
		}
		if sell.Remaining.IsZero() {
			sellQueue = sellQueue[1:]
		} else {
			sellQueue[0] = sell
		}
	}
	return buyQueue, sellQueue, lines
}

func newGainLine(buy, sell models.TradePart, q decimal.Decimal) models.CapitalGainLine {
	inst := sell.Trade.Instrument
	if inst.NeedsAttention() && !buy.Placeholder && !buy.Trade.Instrument.NeedsAttention() {
		inst = buy.Trade.Instrument
	}
	return models.CapitalGainLine{
		Instrument:  inst,
		Quantity:    q,
		BuyDate:     buy.Trade.Date,
		BuyPrice:    buy.Trade.Price,
		BuyFee:      buy.Trade.FeeShare(q),
		SellDate:    sell.Trade.Date,
		SellPrice:   sell.Trade.Price,
		SellFee:     sell.Trade.FeeShare(q),
		Placeholder: buy.Placeholder,
	}
}

// placeholderBuy stands in for a purchase that is missing from the data.
func placeholderBuy(sell models.TradeAction) models.TradePart {
	return models.TradePart{
		Trade: models.TradeAction{
			Instrument: sell.Instrument,
			Side:       models.Buy,
			Date:       models.PlaceholderDate(),
			Quantity:   sell.Quantity,
			Price:      decimal.Zero,
			Fee:        decimal.Zero,
			Source:     sell.Source,
		},
		Remaining:   sell.Quantity,
		Placeholder: true,
	}
}

// verifyConservation checks, per side, that matched plus unmatched quantity
// equals what was traded. Placeholder buys are not traded quantity.
func verifyConservation(cycle models.TradeCycle, res CycleResult) error {
	traded := map[models.Side]decimal.Decimal{models.Buy: decimal.Zero, models.Sell: decimal.Zero}
	for _, b := range cycle.Buckets {
		for _, t := range b.Trades {
			traded[t.Side] = traded[t.Side].Add(t.Quantity)
		}
	}

	matchedBuy, matchedSell := decimal.Zero, decimal.Zero
	for _, l := range res.Lines {
		if !l.Quantity.IsPositive() {
			return &models.ConsistencyError{Key: cycle.Key.String(), Reason: fmt.Sprintf("emitted line with quantity %s", l.Quantity)}
		}
		matchedSell = matchedSell.Add(l.Quantity)
		if !l.Placeholder {
			matchedBuy = matchedBuy.Add(l.Quantity)
		}
	}
	for _, part := range res.Unmatched.Parts {
		if part.Placeholder {
			return &models.ConsistencyError{Key: cycle.Key.String(), Reason: "placeholder buy left unmatched"}
		}
	}

	if got := matchedBuy.Add(res.Unmatched.Total(models.Buy)); !got.Equal(traded[models.Buy]) {
		return &models.ConsistencyError{Key: cycle.Key.String(), Reason: fmt.Sprintf("buy quantity %s accounted as %s", traded[models.Buy], got)}
	}
	if got := matchedSell.Add(res.Unmatched.Total(models.Sell)); !got.Equal(traded[models.Sell]) {
		return &models.ConsistencyError{Key: cycle.Key.String(), Reason: fmt.Sprintf("sell quantity %s accounted as %s", traded[models.Sell], got)}
	}
	return nil
}
