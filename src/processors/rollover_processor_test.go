package processors

import (
	"context"
	"testing"
	"time"

	"github.com/username/taxfolio/sharesreport/src/models"
)

func currentLog(trades ...models.TradeAction) *models.ParsedLog {
	return &models.ParsedLog{
		Mode: models.Strict,
		Instruments: map[string]models.Instrument{
			"US0378331005": {Symbol: "AAPL", ISIN: "US0378331005", Country: "United States"},
		},
		Trades: trades,
	}
}

func bare(tr models.TradeAction, source models.TradeSource) models.TradeAction {
	tr.Instrument = models.Instrument{Symbol: tr.Instrument.Symbol, Currency: tr.Instrument.Currency}
	tr.Source = source
	return tr
}

func TestMergeEmptyCarryForwardIsNoOp(t *testing.T) {
	cur := currentLog(bare(buy(day(1), "10", "1"), models.SourceCurrent), bare(sell(day(2), "4", "2"), models.SourceCurrent))
	rp := NewRolloverProcessor(NewTransactionProcessor(nil))

	alone, gapsAlone := rp.Merge(cur, nil)
	withEmpty, gapsEmpty := rp.Merge(cur, &models.ParsedLog{Mode: models.Lenient})

	if len(alone) != len(withEmpty) || len(gapsAlone) != len(gapsEmpty) {
		t.Fatalf("expected identical merge results, got %d/%d trades", len(alone), len(withEmpty))
	}
	for i := range alone {
		if alone[i].Row != withEmpty[i].Row || alone[i].Instrument != withEmpty[i].Instrument || !alone[i].Quantity.Equal(withEmpty[i].Quantity) {
			t.Errorf("trade %d differs: %+v vs %+v", i, alone[i], withEmpty[i])
		}
	}
}

func TestMergeEnrichesAndPrependsCarryForward(t *testing.T) {
	cur := currentLog(bare(sell(day(5), "8", "20"), models.SourceCurrent))
	old := bare(newTestTrade("AAPL", "USD", models.Buy, models.NewTradeDate(2021, time.March, 3), "5", "10"), models.SourceCarryForward)
	orphan := bare(newTestTrade("XYZ", "USD", models.Buy, models.NewTradeDate(2021, time.April, 1), "7", "3"), models.SourceCarryForward)
	prior := &models.ParsedLog{Mode: models.Lenient, Instruments: map[string]models.Instrument{}, Trades: []models.TradeAction{old, orphan}}

	merged, gaps := NewRolloverProcessor(NewTransactionProcessor(nil)).Merge(cur, prior)
	if len(merged) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(merged))
	}
	if merged[0].Source != models.SourceCarryForward || merged[2].Source != models.SourceCurrent {
		t.Errorf("expected carry-forward trades first, got %+v", merged)
	}
	if merged[0].Instrument.ISIN != "US0378331005" || merged[0].Instrument.Country != "United States" {
		t.Errorf("expected carried AAPL to be enriched, got %+v", merged[0].Instrument)
	}
	if merged[1].Instrument.ISIN != models.MissingISIN || merged[1].Instrument.Country != models.UnknownCountry {
		t.Errorf("expected sentinel metadata, got %+v", merged[1].Instrument)
	}
	if len(gaps) != 1 || gaps[0].Symbol != "XYZ" || gaps[0].Source != models.SourceCarryForward {
		t.Errorf("expected one gap for XYZ, got %+v", gaps)
	}
	if prior.Trades[0].Instrument.ISIN != "" {
		t.Errorf("merge must not modify the prior log")
	}

	// Older carried inventory is consumed first.
	res := matchTrades(t, true, merged...)
	var aapl []models.CapitalGainLine
	for _, l := range res.Lines {
		if l.Instrument.Symbol == "AAPL" {
			aapl = append(aapl, l)
		}
	}
	if len(aapl) != 1 || aapl[0].BuyDate.Time().Year() != 2021 || !aapl[0].Quantity.Equal(dec("5")) {
		t.Errorf("expected carried buy to be matched first, got %+v", aapl)
	}
	if res.Placeholders != 0 {
		t.Errorf("expected no placeholder, got %d", res.Placeholders)
	}
}

func TestMergeFallsBackToCarryForwardInstruments(t *testing.T) {
	cur := currentLog()
	carried := bare(newTestTrade("SAP", "EUR", models.Buy, day(1), "2", "100"), models.SourceCarryForward)
	prior := &models.ParsedLog{
		Mode:        models.Lenient,
		Instruments: map[string]models.Instrument{"DE0007164600": {Symbol: "SAP", ISIN: "DE0007164600"}},
		Trades:      []models.TradeAction{carried},
	}
	merged, gaps := NewRolloverProcessor(NewTransactionProcessor(nil)).Merge(cur, prior)
	if len(gaps) != 0 {
		t.Errorf("expected no gaps, got %+v", gaps)
	}
	if merged[0].Instrument.ISIN != "DE0007164600" || merged[0].Instrument.Country != "Germany" {
		t.Errorf("expected SAP resolved from carry-forward metadata, got %+v", merged[0].Instrument)
	}
}

func TestBuildCarryForward(t *testing.T) {
	b := buy(day(1), "100", "10")
	b.Fee = dec("8")
	s := sell(day(2), "75", "12")
	res := matchTrades(t, true, b, s)

	records := NewRolloverProcessor(NewTransactionProcessor(nil)).BuildCarryForward(res.Unmatched)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if !r.Quantity.Equal(dec("25")) || !r.Price.Equal(dec("10")) || !r.Date.Equal(day(1)) {
		t.Errorf("unexpected record %+v", r)
	}
	if !r.Fee.Equal(dec("2")) {
		t.Errorf("expected fee share 2, got %s", r.Fee)
	}
	if !r.Proceeds().Equal(dec("-250")) {
		t.Errorf("expected proceeds -250, got %s", r.Proceeds())
	}
}

func TestBuildCarryForwardKeepsSellSide(t *testing.T) {
	cycles := NewPartitioner().Partition([]models.TradeAction{sell(day(1), "3", "9")})
	res, err := NewStockProcessor(MatchOptions{PlaceholderBuys: false}).Match(context.Background(), cycles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	records := NewRolloverProcessor(NewTransactionProcessor(nil)).BuildCarryForward(res.Unmatched)
	if len(records) != 1 || records[0].Side != models.Sell || !records[0].SignedQuantity().Equal(dec("-3")) {
		t.Errorf("expected one sell record of -3, got %+v", records)
	}
}

func TestCarriedSellMatchesNextPeriodBuy(t *testing.T) {
	rp := NewRolloverProcessor(NewTransactionProcessor(nil))

	first := matchTrades(t, true, buy(day(1), "10", "10"), sell(day(2), "15", "20"))
	if first.Placeholders != 0 {
		t.Fatalf("expected the short sell to wait, got %d placeholders", first.Placeholders)
	}
	records := rp.BuildCarryForward(first.Unmatched)
	if len(records) != 1 || records[0].Side != models.Sell || !records[0].Quantity.Equal(dec("5")) {
		t.Fatalf("expected a carried sell of 5, got %+v", records)
	}

	var carried []models.TradeAction
	for _, r := range records {
		carried = append(carried, models.TradeAction{
			Instrument: models.Instrument{Symbol: r.Instrument.Symbol, Currency: r.Instrument.Currency},
			Side:       r.Side,
			Date:       r.Date,
			Quantity:   r.Quantity,
			Price:      r.Price,
			Fee:        r.Fee,
			Source:     models.SourceCarryForward,
		})
	}
	prior := &models.ParsedLog{Mode: models.Lenient, Trades: carried}
	cur := currentLog(bare(buy(day(3), "5", "12"), models.SourceCurrent))

	merged, _ := rp.Merge(cur, prior)
	second := matchTrades(t, true, merged...)
	if second.Placeholders != 0 {
		t.Errorf("carried sell must not get a placeholder, got %d", second.Placeholders)
	}
	if len(second.Lines) != 1 {
		t.Fatalf("expected 1 line, got %+v", second.Lines)
	}
	l := second.Lines[0]
	if l.Placeholder || !l.BuyDate.Equal(day(3)) || !l.SellDate.Equal(day(2)) || !l.Quantity.Equal(dec("5")) {
		t.Errorf("expected the new buy to close the carried sell, got %+v", l)
	}
	if len(second.Unmatched) != 0 {
		t.Errorf("expected no inventory left, got %+v", second.Unmatched)
	}
}
