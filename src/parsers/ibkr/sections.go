package ibkr

import (
	"strings"

	"github.com/username/taxfolio/sharesreport/src/models"
)

// sectionKind is the closed set of statement sections the parser reads.
type sectionKind int

const (
	sectionFinancialInstrument sectionKind = iota + 1
	sectionTrades
	sectionDividends
	sectionWithholdingTax
)

const (
	nameFinancialInstrument = "Financial Instrument Information"
	nameTrades              = "Trades"
	nameDividends           = "Dividends"
	nameWithholdingTax      = "Withholding Tax"
)

// Row kinds in column 1.
const (
	rowHeader   = "Header"
	rowData     = "Data"
	rowSubTotal = "SubTotal"
	rowTotal    = "Total"
	rowNotes    = "Notes"
)

// Column names.
const (
	colAssetCategory     = "Asset Category"
	colSymbol            = "Symbol"
	colSecurityID        = "Security ID"
	colCurrency          = "Currency"
	colDataDiscriminator = "DataDiscriminator"
	colDateTime          = "Date/Time"
	colQuantity          = "Quantity"
	colTradePrice        = "T. Price"
	colDate              = "Date"
	colDescription       = "Description"
	colAmount            = "Amount"
	colFee               = "Comm/Fee"
)

const (
	assetStocks        = "Stocks"
	discriminatorOrder = "Order"
)

var sectionKinds = map[string]sectionKind{
	nameFinancialInstrument: sectionFinancialInstrument,
	nameTrades:              sectionTrades,
	nameDividends:           sectionDividends,
	nameWithholdingTax:      sectionWithholdingTax,
}

func (k sectionKind) String() string {
	switch k {
	case sectionFinancialInstrument:
		return nameFinancialInstrument
	case sectionTrades:
		return nameTrades
	case sectionDividends:
		return nameDividends
	case sectionWithholdingTax:
		return nameWithholdingTax
	default:
		return "Unknown"
	}
}

// requiredColumns is the expected header shape of each section kind.
func (k sectionKind) requiredColumns() []string {
	switch k {
	case sectionFinancialInstrument:
		return []string{colAssetCategory, colSymbol}
	case sectionTrades:
		return []string{colDataDiscriminator, colAssetCategory, colCurrency, colSymbol, colDateTime, colQuantity, colTradePrice}
	case sectionDividends, sectionWithholdingTax:
		return []string{colCurrency, colDate, colDescription, colAmount}
	default:
		return nil
	}
}

// requiredSections lists the sections whose header must appear in a file.
func requiredSections(mode models.ParseMode) []sectionKind {
	if mode == models.Lenient {
		return []sectionKind{sectionTrades}
	}
	return []sectionKind{sectionFinancialInstrument, sectionTrades}
}

// columnLayout maps header column names to row indices.
type columnLayout struct {
	index    map[string]int
	maxIndex int
}

// newColumnLayout validates a header row against the section's shape.
func newColumnLayout(kind sectionKind, row int, header []string) (columnLayout, error) {
	layout := columnLayout{index: make(map[string]int, len(header))}
	for i, name := range header {
		if i < 2 {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := layout.index[name]; !dup {
			layout.index[name] = i
		}
		// Fee columns come as "Comm/Fee", "Comm in EUR", "Commission"...
		if strings.HasPrefix(name, "Comm") {
			if _, ok := layout.index[colFee]; !ok {
				layout.index[colFee] = i
			}
		}
	}

	var missing []string
	for _, col := range kind.requiredColumns() {
		idx, ok := layout.index[col]
		if !ok {
			missing = append(missing, col)
			continue
		}
		if idx > layout.maxIndex {
			layout.maxIndex = idx
		}
	}
	if len(missing) > 0 {
		return columnLayout{}, &models.StructuralError{
			Section:  kind.String(),
			Row:      row,
			Expected: kind.requiredColumns(),
			Reason:   "header is missing columns " + strings.Join(missing, ", "),
		}
	}
	return layout, nil
}

func (l columnLayout) has(col string) bool {
	_, ok := l.index[col]
	return ok
}

// get returns the trimmed value of col, or "" when the column is absent.
func (l columnLayout) get(rec []string, col string) string {
	idx, ok := l.index[col]
	if !ok || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}
