package ibkr

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/time/rate"

	"github.com/username/taxfolio/sharesreport/src/config"
	"github.com/username/taxfolio/sharesreport/src/logger"
	"github.com/username/taxfolio/sharesreport/src/models"
	"github.com/username/taxfolio/sharesreport/src/utils"
)

type parserState int

const (
	stateSeekingSection parserState = iota
	stateInSection
	stateDone
)

func (s parserState) String() string {
	switch s {
	case stateSeekingSection:
		return "SeekingSection"
	case stateInSection:
		return "InSection"
	default:
		return "Done"
	}
}

// IBKRParser reads Interactive Brokers activity statements exported as CSV.
type IBKRParser struct {
	security  config.SecurityConfig
	countries *utils.CountryResolver
}

// NewParser creates a parser bound to the given limits and country table.
// A zero SecurityConfig selects the default limits.
func NewParser(security config.SecurityConfig, countries *utils.CountryResolver) *IBKRParser {
	if security.MaxTickerLength == 0 {
		security = config.DefaultSecurityConfig()
	}
	if countries == nil {
		countries = utils.MustCountryResolver()
	}
	return &IBKRParser{security: security, countries: countries}
}

// parseRun is the mutable state of one pass over a file.
type parseRun struct {
	p       *IBKRParser
	mode    models.ParseMode
	state   parserState
	current sectionKind
	layout  columnLayout
	seen    map[sectionKind]bool

	out          *models.ParsedLog
	symbolToISIN map[string]string
	filtered     int
	sample       rate.Sometimes
}

// Parse runs the section state machine over r.
func (p *IBKRParser) Parse(r io.Reader, mode models.ParseMode) (*models.ParsedLog, error) {
	logger.L.Debug("ibkr parser: START", "mode", mode.String())

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	run := &parseRun{
		p:     p,
		mode:  mode,
		state: stateSeekingSection,
		seen:  make(map[sectionKind]bool),
		out: &models.ParsedLog{
			Mode:        mode,
			Instruments: make(map[string]models.Instrument),
		},
		symbolToISIN: make(map[string]string),
		sample:       rate.Sometimes{First: 5, Every: 100},
	}

	// Rows are counted as CSV records, which differ from file lines once a
	// quoted cell spans several lines.
	row := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &models.StructuralError{Section: run.sectionName(), Row: row, Reason: fmt.Sprintf("line %d: %v", pe.Line, pe.Err)}
			}
			return nil, fmt.Errorf("ibkr parser: failed to read CSV: %w", err)
		}
		if err := run.consume(row, record); err != nil {
			return nil, err
		}
	}

	run.state = stateDone
	if err := run.finish(); err != nil {
		return nil, err
	}

	logger.L.Info("ibkr parser: DONE",
		"mode", mode.String(),
		"instruments", len(run.out.Instruments),
		"trades", len(run.out.Trades),
		"dividendRecords", len(run.out.Dividends),
		"filteredRows", run.filtered)
	return run.out, nil
}

func (r *parseRun) sectionName() string {
	if r.state != stateInSection {
		return ""
	}
	return r.current.String()
}

// consume feeds one row to the state machine. A row that ends the current
// section is evaluated again in the seeking state.
func (r *parseRun) consume(row int, rec []string) error {
	if isBlank(rec) {
		return nil
	}
	if r.state == stateInSection {
		if r.belongsToSection(rec) {
			return r.handleRow(row, rec)
		}
		logger.L.Debug("ibkr parser: section boundary", "section", r.current.String(), "row", row)
		r.state = stateSeekingSection
		r.current = 0
		r.layout = columnLayout{}
	}
	return r.seek(row, rec)
}

func (r *parseRun) belongsToSection(rec []string) bool {
	if len(rec) < 2 || sectionCell(rec) != r.current.String() {
		return false
	}
	switch strings.TrimSpace(rec[1]) {
	case rowData, rowSubTotal, rowTotal, rowNotes:
		return true
	default:
		return false
	}
}

func (r *parseRun) seek(row int, rec []string) error {
	if len(rec) < 2 {
		return nil
	}
	name := sectionCell(rec)
	kind, known := sectionKinds[name]
	rowKind := strings.TrimSpace(rec[1])

	switch {
	case known && rowKind == rowHeader:
		layout, err := newColumnLayout(kind, row, rec)
		if err != nil {
			return err
		}
		r.state = stateInSection
		r.current = kind
		r.layout = layout
		r.seen[kind] = true
		logger.L.Debug("ibkr parser: entering section", "section", name, "row", row)
		return nil
	case known && rowKind == rowData:
		return &models.StructuralError{Section: name, Row: row, Reason: "data row appears before the section header"}
	default:
		// Sections of no interest (account information, open positions...).
		return nil
	}
}

// handleRow dispatches a row of the current section to its handler.
func (r *parseRun) handleRow(row int, rec []string) error {
	if strings.TrimSpace(rec[1]) != rowData {
		return nil
	}
	if len(rec) <= r.layout.maxIndex {
		return &models.StructuralError{
			Section:  r.current.String(),
			Row:      row,
			Expected: r.current.requiredColumns(),
			Reason:   fmt.Sprintf("row has %d columns, header requires at least %d", len(rec), r.layout.maxIndex+1),
		}
	}

	switch r.current {
	case sectionFinancialInstrument:
		return r.instrumentRow(row, rec)
	case sectionTrades:
		return r.tradeRow(row, rec)
	case sectionDividends:
		return r.dividendRow(row, rec, models.KindDividend)
	case sectionWithholdingTax:
		return r.dividendRow(row, rec, models.KindWithholdingTax)
	default:
		return fmt.Errorf("ibkr parser: no handler for section %d", r.current)
	}
}

// finish checks required sections and resolves instrument references that
// could only be known once the whole file was read.
func (r *parseRun) finish() error {
	for _, kind := range requiredSections(r.mode) {
		if !r.seen[kind] {
			return &models.StructuralError{Section: kind.String(), Reason: fmt.Sprintf("required section missing (%s mode)", r.mode)}
		}
	}

	for i := range r.out.Trades {
		t := &r.out.Trades[i]
		if isin, ok := r.symbolToISIN[t.Instrument.Symbol]; ok {
			inst := r.out.Instruments[isin]
			if inst.Currency != "" && inst.Currency != t.Instrument.Currency {
				return &models.ConsistencyError{Key: isin, Reason: fmt.Sprintf("trade at row %d is in %s, instrument %s is declared in %s", t.Row, t.Instrument.Currency, inst.Symbol, inst.Currency)}
			}
			t.Instrument.ISIN = inst.ISIN
			t.Instrument.Country = inst.Country
		}
	}
	for i := range r.out.Dividends {
		d := &r.out.Dividends[i]
		if d.ISIN != "" {
			continue
		}
		if isin, ok := r.symbolToISIN[d.Symbol]; ok {
			d.ISIN = isin
		} else {
			d.ISIN = models.MissingISIN
		}
	}
	return nil
}

// sectionCell returns the section name of a row, without a leading BOM.
func sectionCell(rec []string) string {
	return strings.TrimSpace(strings.TrimPrefix(rec[0], "\ufeff"))
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
