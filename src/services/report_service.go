package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/username/taxfolio/sharesreport/src/config"
	"github.com/username/taxfolio/sharesreport/src/database"
	"github.com/username/taxfolio/sharesreport/src/logger"
	"github.com/username/taxfolio/sharesreport/src/models"
	"github.com/username/taxfolio/sharesreport/src/parsers"
	"github.com/username/taxfolio/sharesreport/src/processors"
	"github.com/username/taxfolio/sharesreport/src/reports"
	"github.com/username/taxfolio/sharesreport/src/security/validation"
	"github.com/username/taxfolio/sharesreport/src/utils"
)

type reportServiceImpl struct {
	cfg     *config.AppConfig
	parser  parsers.Parser
	procs   Processors
	rates   *processors.ExchangeRates
	archive RunArchive
}

// NewProcessors wires the default pipeline stages.
func NewProcessors(cfg *config.AppConfig, countries *utils.CountryResolver) Processors {
	enricher := processors.NewTransactionProcessor(countries)
	return Processors{
		Partitioner: processors.NewPartitioner(),
		Stocks: processors.NewStockProcessor(processors.MatchOptions{
			PlaceholderBuys: cfg.PlaceholderBuys,
			Workers:         cfg.MatchWorkers,
		}),
		Rollover:  processors.NewRolloverProcessor(enricher),
		Dividends: processors.NewDividendProcessor(countries),
		Fees:      processors.NewFeeProcessor(),
	}
}

// NewReportService builds a service. rates and archive may be nil.
func NewReportService(cfg *config.AppConfig, parser parsers.Parser, procs Processors, rates *processors.ExchangeRates, archive RunArchive) ReportService {
	return &reportServiceImpl{cfg: cfg, parser: parser, procs: procs, rates: rates, archive: archive}
}

// ComputeGains runs the matching pipeline on an already parsed period with
// the default processors.
func ComputeGains(ctx context.Context, cfg *config.AppConfig, parsed, prior *models.ParsedLog) (*Gains, error) {
	s := &reportServiceImpl{cfg: cfg, procs: NewProcessors(cfg, utils.MustCountryResolver())}
	return s.ComputeGains(ctx, parsed, prior)
}

// ParseFile validates and parses one statement.
func (s *reportServiceImpl) ParseFile(path string, mode models.ParseMode) (*models.ParsedLog, error) {
	if err := validation.ValidateInputFile(path, s.cfg.Security); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidFile, err)
	}
	defer f.Close()

	parsed, err := s.parser.Parse(f, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrParsingFailed, filepath.Base(path), err)
	}
	return parsed, nil
}

// ComputeGains merges the prior carry-forward (nil when there is none),
// partitions, and matches.
func (s *reportServiceImpl) ComputeGains(ctx context.Context, parsed, prior *models.ParsedLog) (*Gains, error) {
	if parsed == nil {
		return nil, fmt.Errorf("%w: no parsed statement", models.ErrMatchingFailed)
	}

	trades, gaps := s.procs.Rollover.Merge(parsed, prior)
	for _, g := range gaps {
		logger.FromContext(ctx).Warn("Instrument metadata missing", "gap", g.String())
	}

	cycles := s.procs.Partitioner.Partition(trades)
	matched, err := s.procs.Stocks.Match(ctx, cycles)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", models.ErrMatchingFailed, err)
	}

	return &Gains{
		Trades:       trades,
		Lines:        matched.Lines,
		Unmatched:    matched.Unmatched,
		CarryForward: s.procs.Rollover.BuildCarryForward(matched.Unmatched),
		Gaps:         gaps,
		Placeholders: matched.Placeholders,
	}, nil
}

// Run executes a full report run. No output file is written unless every
// stage succeeded.
func (s *reportServiceImpl) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	started := time.Now()
	runID := uuid.NewString()
	log := logger.L.With("runID", runID)
	ctx = logger.WithContext(ctx, log)
	log.Info("Report run START", "input", in.InputPath, "carryForward", in.CarryForwardPath)

	parsed, err := s.ParseFile(in.InputPath, models.Strict)
	if err != nil {
		return nil, err
	}
	var prior *models.ParsedLog
	if in.CarryForwardPath != "" {
		if prior, err = s.ParseFile(in.CarryForwardPath, models.Lenient); err != nil {
			return nil, err
		}
	}

	gains, err := s.ComputeGains(ctx, parsed, prior)
	if err != nil {
		return nil, err
	}

	dividends, err := s.procs.Dividends.Summarize(parsed.Dividends, s.rates)
	if err != nil {
		return nil, err
	}
	if err := s.rates.CheckCoverage(currenciesOf(gains.Lines, dividends)); err != nil {
		return nil, err
	}

	res := &RunResult{
		RunID:     runID,
		Gains:     *gains,
		Dividends: dividends,
		Fees:      s.procs.Fees.Summarize(gains.Lines, gains.CarryForward),
		Target:    s.rates.Target(),
	}

	set, err := s.stageOutputs(in.OutputDir, res)
	if err != nil {
		return nil, err
	}
	if err := set.Commit(); err != nil {
		return nil, fmt.Errorf("failed to write reports: %w", err)
	}

	if s.archive != nil {
		_, err := s.archive.SaveRun(ctx, database.RunRecord{
			ID:               runID,
			StartedAt:        started,
			FinishedAt:       time.Now(),
			InputFile:        in.InputPath,
			CarryForwardFile: in.CarryForwardPath,
			Trades:           len(gains.Trades),
			Lines:            len(gains.Lines),
			Placeholders:     gains.Placeholders,
			EnrichmentGaps:   len(gains.Gaps),
		}, gains.Lines, gains.CarryForward)
		if err != nil {
			if rbErr := set.Rollback(); rbErr != nil {
				log.Error("Failed to restore previous reports", "error", rbErr)
			}
			return nil, fmt.Errorf("failed to archive run: %w", err)
		}
	}
	set.Finish()

	log.Info("Report run END",
		"trades", len(gains.Trades), "lines", len(gains.Lines),
		"carryForward", len(gains.CarryForward), "placeholders", gains.Placeholders, "outputs", res.Outputs,
		"duration", time.Since(started))
	return res, nil
}

// stageOutputs encodes every report into temporary files. Nothing replaces
// an existing report until the returned set is committed.
func (s *reportServiceImpl) stageOutputs(dir string, res *RunResult) (*reports.OutputSet, error) {
	if dir == "" {
		dir = s.cfg.OutputDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	set := reports.NewOutputSet()
	stage := func(name string, fn func(path string) error) error {
		if err := fn(filepath.Join(dir, name)); err != nil {
			return errors.Join(fmt.Errorf("failed to write %s: %w", name, err), set.Rollback())
		}
		return nil
	}
	if err := stage(CapitalGainsFile, func(path string) error {
		return reports.StageCapitalGains(set, path, res.Lines, s.rates)
	}); err != nil {
		return nil, err
	}
	if err := stage(DividendsFile, func(path string) error {
		return reports.StageDividends(set, path, res.Dividends, res.Target)
	}); err != nil {
		return nil, err
	}
	if err := stage(CarryForwardFile, func(path string) error {
		return reports.StageRollover(set, path, res.CarryForward)
	}); err != nil {
		return nil, err
	}
	res.Outputs = set.Paths()
	return set, nil
}

func currenciesOf(lines []models.CapitalGainLine, dividends []models.DividendSummary) []string {
	seen := make(map[string]bool)
	for _, l := range lines {
		seen[l.Instrument.Currency] = true
	}
	for _, d := range dividends {
		seen[d.Instrument.Currency] = true
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
