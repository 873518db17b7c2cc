// src/parsers/parser.go
package parsers

import (
	"io"

	"github.com/username/taxfolio/sharesreport/src/models"
)

// Parser turns a broker statement into typed records.
type Parser interface {
	Parse(file io.Reader, mode models.ParseMode) (*models.ParsedLog, error)
}
