package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/username/taxfolio/sharesreport/src/logger"
	"github.com/username/taxfolio/sharesreport/src/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunRecord describes one completed report run.
type RunRecord struct {
	ID               string
	StartedAt        time.Time
	FinishedAt       time.Time
	InputFile        string
	CarryForwardFile string
	Trades           int
	Lines            int
	Placeholders     int
	EnrichmentGaps   int
}

// Archive stores the results of report runs in a SQLite database.
type Archive struct {
	db *sql.DB
}

// Open opens (or creates) the archive at databasePath and applies pending
// migrations.
func Open(databasePath string) (*Archive, error) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", databasePath, err)
	}
	// A single connection keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	logger.L.Info("Checking database migrations", "databasePath", databasePath)
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Archive{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	// m.Close would close db through the driver.
	version, dirty, err := m.Version()
	if err == nil {
		logger.L.Info("Database schema ready", "version", version, "dirty", dirty)
	}
	return nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// SaveRun stores a run with its capital-gain lines and carry-forward records
// in one transaction. An empty run.ID is replaced by a new UUID, which is
// returned.
func (a *Archive) SaveRun(ctx context.Context, run RunRecord, lines []models.CapitalGainLine, carry []models.CarryForwardRecord) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, input_file, carry_forward_file, trades, lines, placeholders, enrichment_gaps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.InputFile, run.CarryForwardFile,
		run.Trades, run.Lines, run.Placeholders, run.EnrichmentGaps)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	lineStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO capital_gain_lines (run_id, symbol, isin, country, currency, quantity,
			buy_date, buy_price, buy_fee, sell_date, sell_price, sell_fee, placeholder)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare line insert: %w", err)
	}
	defer lineStmt.Close()
	for _, l := range lines {
		_, err := lineStmt.ExecContext(ctx, run.ID,
			l.Instrument.Symbol, l.Instrument.ISIN, l.Instrument.Country, l.Instrument.Currency,
			l.Quantity.String(),
			l.BuyDate.String(), l.BuyPrice.String(), l.BuyFee.String(),
			l.SellDate.String(), l.SellPrice.String(), l.SellFee.String(),
			l.Placeholder)
		if err != nil {
			return "", fmt.Errorf("failed to insert capital gain line: %w", err)
		}
	}

	carryStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO carry_forward (run_id, symbol, isin, currency, side, trade_date, quantity, price, fee)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare carry-forward insert: %w", err)
	}
	defer carryStmt.Close()
	for _, r := range carry {
		_, err := carryStmt.ExecContext(ctx, run.ID,
			r.Instrument.Symbol, r.Instrument.ISIN, r.Instrument.Currency,
			r.Side.String(), r.Date.String(),
			r.Quantity.String(), r.Price.String(), r.Fee.String())
		if err != nil {
			return "", fmt.Errorf("failed to insert carry-forward record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	logger.L.Info("Run archived", "runID", run.ID, "lines", len(lines), "carryForward", len(carry))
	return run.ID, nil
}

// ListRuns returns archived runs, newest first.
func (a *Archive) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, input_file, COALESCE(carry_forward_file, ''),
			trades, lines, placeholders, enrichment_gaps
		FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.InputFile, &r.CarryForwardFile,
			&r.Trades, &r.Lines, &r.Placeholders, &r.EnrichmentGaps); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GainLines returns the archived capital-gain lines of a run in insertion order.
func (a *Archive) GainLines(ctx context.Context, runID string) ([]models.CapitalGainLine, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT symbol, isin, country, currency, quantity, buy_date, buy_price, buy_fee,
			sell_date, sell_price, sell_fee, placeholder
		FROM capital_gain_lines WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query capital gain lines: %w", err)
	}
	defer rows.Close()

	var lines []models.CapitalGainLine
	for rows.Next() {
		var (
			l                              models.CapitalGainLine
			qty, buyDate, buyPrice, buyFee string
			sellDate, sellPrice, sellFee   string
		)
		if err := rows.Scan(&l.Instrument.Symbol, &l.Instrument.ISIN, &l.Instrument.Country, &l.Instrument.Currency,
			&qty, &buyDate, &buyPrice, &buyFee, &sellDate, &sellPrice, &sellFee, &l.Placeholder); err != nil {
			return nil, fmt.Errorf("failed to scan capital gain line: %w", err)
		}
		if err := decodeLine(&l, qty, buyDate, buyPrice, buyFee, sellDate, sellPrice, sellFee); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func decodeLine(l *models.CapitalGainLine, qty, buyDate, buyPrice, buyFee, sellDate, sellPrice, sellFee string) error {
	var err error
	if l.Quantity, err = decimal.NewFromString(qty); err != nil {
		return fmt.Errorf("invalid archived quantity %q: %w", qty, err)
	}
	if l.BuyDate, err = models.ParseTradeDate(buyDate); err != nil {
		return fmt.Errorf("invalid archived buy date %q: %w", buyDate, err)
	}
	if l.BuyPrice, err = decimal.NewFromString(buyPrice); err != nil {
		return fmt.Errorf("invalid archived buy price %q: %w", buyPrice, err)
	}
	if l.BuyFee, err = decimal.NewFromString(buyFee); err != nil {
		return fmt.Errorf("invalid archived buy fee %q: %w", buyFee, err)
	}
	if l.SellDate, err = models.ParseTradeDate(sellDate); err != nil {
		return fmt.Errorf("invalid archived sell date %q: %w", sellDate, err)
	}
	if l.SellPrice, err = decimal.NewFromString(sellPrice); err != nil {
		return fmt.Errorf("invalid archived sell price %q: %w", sellPrice, err)
	}
	if l.SellFee, err = decimal.NewFromString(sellFee); err != nil {
		return fmt.Errorf("invalid archived sell fee %q: %w", sellFee, err)
	}
	return nil
}
