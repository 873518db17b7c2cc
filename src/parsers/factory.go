// src/parsers/factory.go
package parsers

import (
	"fmt"

	"github.com/username/taxfolio/sharesreport/src/config"
	"github.com/username/taxfolio/sharesreport/src/parsers/ibkr"
	"github.com/username/taxfolio/sharesreport/src/utils"
)

// GetParser returns the statement parser for a broker.
func GetParser(source string, security config.SecurityConfig, countries *utils.CountryResolver) (Parser, error) {
	switch source {
	case "ibkr", "":
		return ibkr.NewParser(security, countries), nil
	default:
		return nil, fmt.Errorf("no parser available for source: %s", source)
	}
}
