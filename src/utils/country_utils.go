package utils

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/patrickmn/go-cache"

	"github.com/username/taxfolio/sharesreport/src/logger"
	"github.com/username/taxfolio/sharesreport/src/models"
)

//go:embed data/countries.json
var embeddedCountries []byte

type CountryInfo struct {
	Country string `json:"country"`
	Alpha2  string `json:"alpha2"`
	Alpha3  string `json:"alpha3"`
	Numeric string `json:"numeric"`
}

// CountryResolver maps ISIN prefixes to countries. Lookups are memoised.
type CountryResolver struct {
	countryMap map[string]CountryInfo
	resolved   *cache.Cache
}

// NewCountryResolver loads the embedded country table, then overlays the
// entries of filePath when it is not empty.
func NewCountryResolver(filePath string) (*CountryResolver, error) {
	r := &CountryResolver{
		countryMap: make(map[string]CountryInfo),
		resolved:   cache.New(cache.NoExpiration, 0),
	}
	if err := r.load(embeddedCountries); err != nil {
		return nil, fmt.Errorf("failed to load embedded country data: %w", err)
	}
	if filePath == "" {
		return r, nil
	}

	logger.L.Info("Loading country data override", "path", filePath)
	fileData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read country data file '%s': %w", filePath, err)
	}
	if err := r.load(fileData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal country data from '%s': %w", filePath, err)
	}
	logger.L.Info("Country data loaded successfully.", "path", filePath, "countryCount", len(r.countryMap))
	return r, nil
}

// MustCountryResolver returns a resolver backed by the embedded table only.
func MustCountryResolver() *CountryResolver {
	r, err := NewCountryResolver("")
	if err != nil {
		panic(err)
	}
	return r
}

func (r *CountryResolver) load(data []byte) error {
	var countries []CountryInfo
	if err := json.Unmarshal(data, &countries); err != nil {
		return err
	}
	for _, country := range countries {
		r.countryMap[strings.ToUpper(country.Alpha2)] = country
	}
	return nil
}

// CountryOf returns the country name for an ISIN, or models.UnknownCountry.
func (r *CountryResolver) CountryOf(isin string) string {
	if isin == "" || isin == models.MissingISIN || len(isin) < 2 {
		return models.UnknownCountry
	}
	if v, found := r.resolved.Get(isin); found {
		return v.(string)
	}

	country := models.UnknownCountry
	if info, found := r.countryMap[strings.ToUpper(isin[:2])]; found {
		country = info.Country
	}
	r.resolved.Set(isin, country, cache.NoExpiration)
	return country
}

// IsValidISIN performs a shape check: two letters, nine alphanumerics and a
// check digit. The Luhn check digit itself is not verified.
func IsValidISIN(isin string) bool {
	if len(isin) != 12 {
		return false
	}
	for i, c := range isin {
		switch {
		case i < 2:
			if c < 'A' || c > 'Z' {
				return false
			}
		case i < 11:
			if !unicode.IsDigit(c) && (c < 'A' || c > 'Z') {
				return false
			}
		default:
			if !unicode.IsDigit(c) {
				return false
			}
		}
	}
	return true
}
