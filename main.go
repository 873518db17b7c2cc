package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/username/taxfolio/sharesreport/src/config"
	"github.com/username/taxfolio/sharesreport/src/database"
	"github.com/username/taxfolio/sharesreport/src/logger"
	"github.com/username/taxfolio/sharesreport/src/models"
	"github.com/username/taxfolio/sharesreport/src/parsers"
	"github.com/username/taxfolio/sharesreport/src/processors"
	"github.com/username/taxfolio/sharesreport/src/services"
	"github.com/username/taxfolio/sharesreport/src/utils"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logger.L.Error("sharesreport failed", "error", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "sharesreport",
		Usage: "FIFO capital gains from Interactive Brokers activity statements",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", EnvVars: []string{"LOG_LEVEL"}},
			&cli.StringFlag{Name: "log-format", Usage: "json or text", EnvVars: []string{"LOG_FORMAT"}},
		},
		Commands: []*cli.Command{
			{
				Name:  "report",
				Usage: "match trades and write capital gains, dividends and carry-forward files",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "activity statement CSV", Required: true},
					&cli.StringFlag{Name: "carry-forward", Aliases: []string{"c"}, Usage: "carry-forward file from the previous period"},
					&cli.StringFlag{Name: "output-dir", Aliases: []string{"o"}, Usage: "directory for report files"},
					&cli.StringFlag{Name: "rates", Usage: "YAML file with exchange rates to the reporting currency"},
					&cli.StringFlag{Name: "db", Usage: "SQLite file to archive runs in"},
					&cli.IntFlag{Name: "workers", Usage: "trade cycles matched in parallel"},
					&cli.BoolFlag{Name: "no-placeholders", Usage: "leave sells without a prior purchase unmatched"},
				},
				Action: reportAction,
			},
			{
				Name:  "validate",
				Usage: "parse a statement and print what it contains",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "activity statement CSV", Required: true},
					&cli.BoolFlag{Name: "lenient", Usage: "only require the trades section, as for carry-forward files"},
				},
				Action: validateAction,
			},
			{
				Name:  "history",
				Usage: "list archived runs, or the capital gain lines of one run",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "db", Usage: "SQLite file with archived runs"},
					&cli.StringFlag{Name: "run", Usage: "print the archived capital gain lines of this run id"},
				},
				Action: historyAction,
			},
		},
	}
}

// setup loads configuration and applies global flag overrides.
func setup(c *cli.Context) (*config.AppConfig, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.LogFormat = v
	}
	logger.InitLoggerTo(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

func newService(cfg *config.AppConfig, archive services.RunArchive) (services.ReportService, error) {
	countries, err := utils.NewCountryResolver(cfg.CountryDataPath)
	if err != nil {
		return nil, err
	}
	parser, err := parsers.GetParser("ibkr", cfg.Security, countries)
	if err != nil {
		return nil, err
	}
	rates, err := processors.LoadExchangeRates(cfg.RatesPath)
	if err != nil {
		return nil, err
	}
	return services.NewReportService(cfg, parser, services.NewProcessors(cfg, countries), rates, archive), nil
}

func reportAction(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	if c.IsSet("output-dir") {
		cfg.OutputDir = c.String("output-dir")
	}
	if c.IsSet("rates") {
		cfg.RatesPath = c.String("rates")
	}
	if c.IsSet("db") {
		cfg.DatabasePath = c.String("db")
	}
	if c.IsSet("workers") {
		cfg.MatchWorkers = c.Int("workers")
	}
	if c.Bool("no-placeholders") {
		cfg.PlaceholderBuys = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var archive services.RunArchive
	if cfg.DatabasePath != "" {
		db, err := database.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()
		archive = db
	}

	svc, err := newService(cfg, archive)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := svc.Run(ctx, services.RunInput{
		InputPath:        c.String("input"),
		CarryForwardPath: c.String("carry-forward"),
		OutputDir:        cfg.OutputDir,
	})
	if err != nil {
		return err
	}
	printSummary(res)
	return nil
}

func printSummary(res *services.RunResult) {
	fmt.Printf("Run %s\n", res.RunID)
	fmt.Printf("  trades:             %s\n", humanize.Comma(int64(len(res.Trades))))
	fmt.Printf("  capital gain lines: %s\n", humanize.Comma(int64(len(res.Lines))))
	fmt.Printf("  carried forward:    %s\n", humanize.Comma(int64(len(res.CarryForward))))
	fmt.Printf("  dividend lines:     %s\n", humanize.Comma(int64(len(res.Dividends))))
	if res.Placeholders > 0 {
		fmt.Printf("  placeholders:       %d (purchases missing, review required)\n", res.Placeholders)
	}
	if len(res.Gaps) > 0 {
		fmt.Printf("  metadata gaps:      %d (review required)\n", len(res.Gaps))
	}
	for _, fee := range res.Fees {
		fmt.Printf("  fees %s: allocated %s, carried %s\n", fee.Currency, fee.Allocated.StringFixed(2), fee.Carried.StringFixed(2))
	}
	for _, path := range res.Outputs {
		size := ""
		if info, err := os.Stat(path); err == nil {
			size = humanize.IBytes(uint64(info.Size()))
		}
		fmt.Printf("  wrote %s (%s)\n", path, size)
	}
}

func validateAction(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	svc, err := newService(cfg, nil)
	if err != nil {
		return err
	}

	mode := models.Strict
	if c.Bool("lenient") {
		mode = models.Lenient
	}
	parsed, err := svc.ParseFile(c.String("input"), mode)
	if err != nil {
		return err
	}

	attention := 0
	for _, t := range parsed.Trades {
		if t.Instrument.NeedsAttention() {
			attention++
		}
	}
	fmt.Printf("%s: valid (%s mode)\n", c.String("input"), mode)
	fmt.Printf("  instruments: %s\n", humanize.Comma(int64(len(parsed.Instruments))))
	fmt.Printf("  trades:      %s\n", humanize.Comma(int64(len(parsed.Trades))))
	fmt.Printf("  dividends:   %s\n", humanize.Comma(int64(len(parsed.Dividends))))
	if attention > 0 {
		fmt.Printf("  trades without instrument metadata: %d\n", attention)
	}
	return nil
}

func historyAction(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	if c.IsSet("db") {
		cfg.DatabasePath = c.String("db")
	}
	if cfg.DatabasePath == "" {
		return fmt.Errorf("no database configured: pass --db or set DATABASE_PATH")
	}
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if id := c.String("run"); id != "" {
		return printRunLines(c, db, id)
	}

	runs, err := db.ListRuns(c.Context)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Fprintf(c.App.Writer, "%s  %s  %s  lines=%d placeholders=%d gaps=%d\n",
			r.ID, humanize.Time(r.StartedAt), r.InputFile, r.Lines, r.Placeholders, r.EnrichmentGaps)
	}
	return nil
}

func printRunLines(c *cli.Context, db *database.Archive, runID string) error {
	lines, err := db.GainLines(c.Context, runID)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return fmt.Errorf("no capital gain lines archived for run %s", runID)
	}
	for _, l := range lines {
		review := ""
		if l.Placeholder {
			review = "  placeholder"
		}
		fmt.Fprintf(c.App.Writer, "%-8s %-4s %12s  bought %s @ %s  sold %s @ %s  gain %s%s\n",
			l.Instrument.Symbol, l.Instrument.Currency, l.Quantity.String(),
			l.BuyDate, l.BuyPrice.String(), l.SellDate, l.SellPrice.String(),
			l.Gain().StringFixed(2), review)
	}
	return nil
}
