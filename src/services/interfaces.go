package services

import (
	"context"

	"github.com/username/taxfolio/sharesreport/src/database"
	"github.com/username/taxfolio/sharesreport/src/models"
	"github.com/username/taxfolio/sharesreport/src/processors"
)

// Output file names written into RunInput.OutputDir.
const (
	CapitalGainsFile = "capital_gains.csv"
	DividendsFile    = "dividends.csv"
	CarryForwardFile = "carry_forward.csv"
)

// RunInput names the files of one report run.
type RunInput struct {
	InputPath        string
	CarryForwardPath string // optional rollover file from the previous period
	OutputDir        string
}

// Gains is the result of matching one period, with or without carry-forward.
type Gains struct {
	Trades       []models.TradeAction
	Lines        []models.CapitalGainLine
	Unmatched    []models.UnmatchedInventory
	CarryForward []models.CarryForwardRecord
	Gaps         []models.EnrichmentGap
	Placeholders int
}

// RunResult holds everything a report run produced.
type RunResult struct {
	RunID string
	Gains
	Dividends []models.DividendSummary
	Fees      []models.FeeDetail
	Target    string   // reporting currency, empty without a rates file
	Outputs   []string // written file paths
}

// ReportService drives a full run from statement files to report files.
type ReportService interface {
	Run(ctx context.Context, in RunInput) (*RunResult, error)
	ParseFile(path string, mode models.ParseMode) (*models.ParsedLog, error)
	ComputeGains(ctx context.Context, parsed, prior *models.ParsedLog) (*Gains, error)
}

// RunArchive persists finished runs.
type RunArchive interface {
	SaveRun(ctx context.Context, run database.RunRecord, lines []models.CapitalGainLine, carry []models.CarryForwardRecord) (string, error)
}

// Processors bundles the pipeline stages so tests can swap them.
type Processors struct {
	Partitioner processors.Partitioner
	Stocks      processors.StockProcessor
	Rollover    processors.RolloverProcessor
	Dividends   processors.DividendProcessor
	Fees        processors.FeeProcessor
}
