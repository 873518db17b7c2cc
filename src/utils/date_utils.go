package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/username/taxfolio/sharesreport/src/models"
)

const (
	// StatementDateTimeFormat is the Date/Time layout of activity statements.
	StatementDateTimeFormat = "2006-01-02, 15:04:05"
	StatementDateFormat     = "2006-01-02"
)

var statementLayouts = []string{
	StatementDateTimeFormat,
	"2006-01-02,15:04:05",
	"2006-01-02 15:04:05",
	StatementDateFormat,
}

// ParseStatementDate parses a statement date or date-time and drops the time
// of day.
func ParseStatementDate(s string) (models.TradeDate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.TradeDate{}, fmt.Errorf("empty date")
	}
	for _, layout := range statementLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.TradeDateOf(t), nil
		}
	}
	return models.TradeDate{}, fmt.Errorf("unrecognized date format %q", s)
}

// FormatStatementDateTime renders a trade date the way statements write it.
func FormatStatementDateTime(d models.TradeDate) string {
	return d.Time().Format(StatementDateTimeFormat)
}
