package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/username/taxfolio/sharesreport/src/config"
	"github.com/username/taxfolio/sharesreport/src/database"
	"github.com/username/taxfolio/sharesreport/src/models"
	"github.com/username/taxfolio/sharesreport/src/parsers/ibkr"
	"github.com/username/taxfolio/sharesreport/src/processors"
	"github.com/username/taxfolio/sharesreport/src/utils"
)

const instrumentSection = `Financial Instrument Information,Header,Asset Category,Symbol,Description,Conid,Security ID,Listing Exch,Multiplier,Type,Code
Financial Instrument Information,Data,Stocks,AAPL,APPLE INC,265598,US0378331005,NASDAQ,1,COMMON,
`

const tradesHeader = "Trades,Header,DataDiscriminator,Asset Category,Currency,Symbol,Date/Time,Quantity,T. Price,C. Price,Proceeds,Comm/Fee\n"

const period2023 = instrumentSection + tradesHeader +
	`Trades,Data,Order,Stocks,USD,AAPL,"2023-01-05, 10:30:00",10,150,,-1500,-1
Trades,Data,Order,Stocks,USD,AAPL,"2023-03-10, 14:00:00",-4,170,,680,-1
Dividends,Header,Currency,Date,Description,Amount
Dividends,Data,USD,2023-05-18,AAPL(US0378331005) Cash Dividend USD 0.24 per Share (Ordinary Dividend),24
`

const period2024 = instrumentSection + tradesHeader +
	`Trades,Data,Order,Stocks,USD,AAPL,"2024-02-01, 09:45:00",-6,180,,1080,-1
`

type fakeArchive struct {
	runs  []database.RunRecord
	lines int
	err   error
}

func (f *fakeArchive) SaveRun(_ context.Context, run database.RunRecord, lines []models.CapitalGainLine, _ []models.CarryForwardRecord) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.runs = append(f.runs, run)
	f.lines += len(lines)
	return run.ID, nil
}

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	return &config.AppConfig{
		LogLevel:        "warn",
		LogFormat:       "text",
		OutputDir:       t.TempDir(),
		MatchWorkers:    2,
		PlaceholderBuys: true,
		Security:        config.DefaultSecurityConfig(),
	}
}

func newTestService(t *testing.T, cfg *config.AppConfig, rates *processors.ExchangeRates, archive RunArchive) ReportService {
	t.Helper()
	countries := utils.MustCountryResolver()
	return NewReportService(cfg, ibkr.NewParser(cfg.Security, countries), NewProcessors(cfg, countries), rates, archive)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRunCarriesInventoryIntoNextPeriod(t *testing.T) {
	cfg := testConfig(t)
	archive := &fakeArchive{}
	svc := newTestService(t, cfg, nil, archive)
	in := t.TempDir()
	ctx := context.Background()

	out2023 := filepath.Join(t.TempDir(), "2023")
	first, err := svc.Run(ctx, RunInput{
		InputPath: writeFile(t, in, "2023.csv", period2023),
		OutputDir: out2023,
	})
	if err != nil {
		t.Fatalf("2023 run: %v", err)
	}
	if len(first.Lines) != 1 {
		t.Fatalf("2023: expected 1 line, got %d", len(first.Lines))
	}
	if got := first.Lines[0].Gain(); !got.Equal(dec("78.6")) {
		t.Errorf("2023 gain = %s, want 78.6", got)
	}
	if len(first.CarryForward) != 1 || !first.CarryForward[0].Quantity.Equal(dec("6")) {
		t.Fatalf("2023 carry-forward = %+v, want 6 shares", first.CarryForward)
	}
	if len(first.Dividends) != 1 || !first.Dividends[0].Gross.Equal(dec("24")) {
		t.Errorf("2023 dividends = %+v", first.Dividends)
	}
	for _, name := range []string{CapitalGainsFile, DividendsFile, CarryForwardFile} {
		if _, err := os.Stat(filepath.Join(out2023, name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}

	second, err := svc.Run(ctx, RunInput{
		InputPath:        writeFile(t, in, "2024.csv", period2024),
		CarryForwardPath: filepath.Join(out2023, CarryForwardFile),
		OutputDir:        filepath.Join(t.TempDir(), "2024"),
	})
	if err != nil {
		t.Fatalf("2024 run: %v", err)
	}
	if len(second.Lines) != 1 {
		t.Fatalf("2024: expected 1 line, got %d", len(second.Lines))
	}
	line := second.Lines[0]
	if line.Placeholder {
		t.Error("carried purchase must be consumed instead of a placeholder")
	}
	if line.BuyDate.String() != "2023-01-05" || !line.BuyPrice.Equal(dec("150")) {
		t.Errorf("2024 line buy side = %s @ %s, want 2023-01-05 @ 150", line.BuyDate, line.BuyPrice)
	}
	if !line.BuyFee.Equal(dec("0.6")) {
		t.Errorf("carried fee share = %s, want 0.6", line.BuyFee)
	}
	if got := line.Gain(); !got.Equal(dec("178.4")) {
		t.Errorf("2024 gain = %s, want 178.4", got)
	}
	if line.Instrument.ISIN != "US0378331005" || line.Instrument.Country != "United States" {
		t.Errorf("2024 line instrument = %+v", line.Instrument)
	}
	if len(second.CarryForward) != 0 {
		t.Errorf("2024 carry-forward = %+v, want none", second.CarryForward)
	}

	if len(archive.runs) != 2 || archive.lines != 2 {
		t.Errorf("archive saw %d runs and %d lines, want 2 and 2", len(archive.runs), archive.lines)
	}
}

func TestEmptyCarryForwardChangesNothing(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(t, cfg, nil, nil)
	in := t.TempDir()
	ctx := context.Background()

	stmt := writeFile(t, in, "stmt.csv", instrumentSection+tradesHeader+
		`Trades,Data,Order,Stocks,USD,AAPL,"2023-01-05, 10:30:00",5,100,,-500,-1
Trades,Data,Order,Stocks,USD,AAPL,"2023-02-05, 10:30:00",-5,110,,550,-1
`)
	empty := writeFile(t, in, "empty.csv", tradesHeader)

	without, err := svc.Run(ctx, RunInput{InputPath: stmt, OutputDir: filepath.Join(t.TempDir(), "a")})
	if err != nil {
		t.Fatalf("run without carry-forward: %v", err)
	}
	with, err := svc.Run(ctx, RunInput{InputPath: stmt, CarryForwardPath: empty, OutputDir: filepath.Join(t.TempDir(), "b")})
	if err != nil {
		t.Fatalf("run with empty carry-forward: %v", err)
	}
	if len(without.Lines) != len(with.Lines) {
		t.Fatalf("line counts differ: %d vs %d", len(without.Lines), len(with.Lines))
	}
	for i := range without.Lines {
		if !without.Lines[i].Gain().Equal(with.Lines[i].Gain()) {
			t.Errorf("line %d gain differs: %s vs %s", i, without.Lines[i].Gain(), with.Lines[i].Gain())
		}
	}
}

func TestRunParseFailureWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(t, cfg, nil, nil)
	out := filepath.Join(t.TempDir(), "out")

	// Strict mode needs the instrument section.
	stmt := writeFile(t, t.TempDir(), "stmt.csv", tradesHeader+
		`Trades,Data,Order,Stocks,USD,AAPL,"2023-01-05, 10:30:00",5,100,,-500,-1
`)
	_, err := svc.Run(context.Background(), RunInput{InputPath: stmt, OutputDir: out})
	if !errors.Is(err, models.ErrParsingFailed) {
		t.Fatalf("expected ErrParsingFailed, got %v", err)
	}
	var structural *models.StructuralError
	if !errors.As(err, &structural) {
		t.Errorf("expected a StructuralError in the chain, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Errorf("output directory must not exist after a failed run")
	}
}

func TestRunRejectsInvalidFile(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(t, cfg, nil, nil)
	path := writeFile(t, t.TempDir(), "stmt.pdf", period2023)

	_, err := svc.Run(context.Background(), RunInput{InputPath: path, OutputDir: t.TempDir()})
	if !errors.Is(err, models.ErrInvalidFile) {
		t.Fatalf("expected ErrInvalidFile, got %v", err)
	}
}

func TestRunMissingRate(t *testing.T) {
	cfg := testConfig(t)
	rates, err := processors.NewExchangeRates(&models.RatesFile{Target: "EUR", Rates: map[string]string{"GBP": "1.15"}})
	if err != nil {
		t.Fatalf("NewExchangeRates: %v", err)
	}
	svc := newTestService(t, cfg, rates, nil)
	out := filepath.Join(t.TempDir(), "out")

	_, err = svc.Run(context.Background(), RunInput{
		InputPath: writeFile(t, t.TempDir(), "2023.csv", period2023),
		OutputDir: out,
	})
	if !errors.Is(err, models.ErrMissingRate) {
		t.Fatalf("expected ErrMissingRate, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(out, CapitalGainsFile)); !os.IsNotExist(statErr) {
		t.Errorf("capital gains must not be written when a rate is missing")
	}
}

func TestRunConvertsToTargetCurrency(t *testing.T) {
	cfg := testConfig(t)
	rates, err := processors.NewExchangeRates(&models.RatesFile{Target: "EUR", Rates: map[string]string{"USD": "0.9"}})
	if err != nil {
		t.Fatalf("NewExchangeRates: %v", err)
	}
	svc := newTestService(t, cfg, rates, nil)
	out := filepath.Join(t.TempDir(), "out")

	res, err := svc.Run(context.Background(), RunInput{
		InputPath: writeFile(t, t.TempDir(), "2023.csv", period2023),
		OutputDir: out,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Target != "EUR" {
		t.Errorf("Target = %q, want EUR", res.Target)
	}
	data, err := os.ReadFile(filepath.Join(out, CapitalGainsFile))
	if err != nil {
		t.Fatalf("read gains: %v", err)
	}
	// 78.6 USD at 0.9
	if !strings.Contains(string(data), "70.74") {
		t.Errorf("converted gain missing from report:\n%s", data)
	}
	if !strings.Contains(string(data), "Gain EUR") {
		t.Errorf("converted column header missing:\n%s", data)
	}
}

func TestComputeGainsPlaceholderForMissingPurchase(t *testing.T) {
	cfg := testConfig(t)
	parsed := &models.ParsedLog{
		Mode: models.Strict,
		Instruments: map[string]models.Instrument{
			"US0378331005": {Symbol: "AAPL", ISIN: "US0378331005", Currency: "USD", Country: "United States"},
		},
		Trades: []models.TradeAction{{
			Instrument: models.Instrument{Symbol: "AAPL", Currency: "USD"},
			Side:       models.Sell,
			Date:       models.NewTradeDate(2023, 6, 1),
			Quantity:   dec("3"),
			Price:      dec("200"),
			Fee:        dec("1"),
			Source:     models.SourceCurrent,
		}},
	}

	gains, err := ComputeGains(context.Background(), cfg, parsed, nil)
	if err != nil {
		t.Fatalf("ComputeGains: %v", err)
	}
	if gains.Placeholders != 1 || len(gains.Lines) != 1 || !gains.Lines[0].Placeholder {
		t.Fatalf("expected one placeholder line, got %+v", gains)
	}
	if !gains.Lines[0].BuyDate.IsPlaceholder() {
		t.Errorf("placeholder buy date = %s", gains.Lines[0].BuyDate)
	}
	if len(gains.CarryForward) != 0 {
		t.Errorf("placeholders must not be carried forward: %+v", gains.CarryForward)
	}
}

func TestComputeGainsNilStatement(t *testing.T) {
	_, err := ComputeGains(context.Background(), testConfig(t), nil, nil)
	if !errors.Is(err, models.ErrMatchingFailed) {
		t.Fatalf("expected ErrMatchingFailed, got %v", err)
	}
}

func outputNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRunFailedWriteLeavesNoReports(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(t, cfg, nil, nil)
	out := t.TempDir()
	if err := os.Mkdir(filepath.Join(out, CarryForwardFile), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Run(context.Background(), RunInput{
		InputPath: writeFile(t, t.TempDir(), "2023.csv", period2023),
		OutputDir: out,
	})
	if err == nil {
		t.Fatal("expected the run to fail")
	}
	if names := outputNames(t, out); len(names) != 1 || names[0] != CarryForwardFile {
		t.Errorf("output directory = %v, want no reports", names)
	}
}

func TestRunArchiveFailureRestoresPreviousReports(t *testing.T) {
	cfg := testConfig(t)
	out := t.TempDir()
	previous := writeFile(t, out, CapitalGainsFile, "previous run")

	archive := &fakeArchive{err: errors.New("disk full")}
	_, err := newTestService(t, cfg, nil, archive).Run(context.Background(), RunInput{
		InputPath: writeFile(t, t.TempDir(), "2023.csv", period2023),
		OutputDir: out,
	})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected archive error, got %v", err)
	}
	if data, err := os.ReadFile(previous); err != nil || string(data) != "previous run" {
		t.Errorf("previous report not restored: %q, %v", data, err)
	}
	if names := outputNames(t, out); len(names) != 1 {
		t.Errorf("output directory = %v, want only the previous report", names)
	}
}
