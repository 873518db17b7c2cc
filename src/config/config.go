package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// SecurityConfig bounds what the parser accepts from an input file.
type SecurityConfig struct {
	MaxFileSizeMB     int      `validate:"gt=0"`
	MaxTickerLength   int      `validate:"gt=0"`
	MaxCurrencyLength int      `validate:"gt=0"`
	MaxQuantity       float64  `validate:"gt=0"`
	MaxPrice          float64  `validate:"gt=0"`
	AllowedExtensions []string `validate:"min=1,dive,startswith=."`
}

// DefaultSecurityConfig returns the limits used when nothing is configured.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxFileSizeMB:     100,
		MaxTickerLength:   10,
		MaxCurrencyLength: 3,
		MaxQuantity:       1e10,
		MaxPrice:          1e9,
		AllowedExtensions: []string{".csv", ".txt"},
	}
}

// MaxFileSizeBytes converts the size limit to bytes.
func (s SecurityConfig) MaxFileSizeBytes() int64 {
	return int64(s.MaxFileSizeMB) * 1024 * 1024
}

type AppConfig struct {
	LogLevel        string `validate:"oneof=debug info warn error"`
	LogFormat       string `validate:"oneof=json text"`
	DatabasePath    string
	CountryDataPath string
	RatesPath       string
	OutputDir       string `validate:"required"`
	MatchWorkers    int    `validate:"gte=1"`
	PlaceholderBuys bool
	Security        SecurityConfig
}

// LoadConfig reads the .env file if present and builds the configuration
// from environment variables and defaults.
func LoadConfig() (*AppConfig, error) {
	if errEnv := godotenv.Load(); errEnv != nil {
		log.Println("Info: No .env file found. Relying on OS environment variables and defaults.")
	}

	sec := DefaultSecurityConfig()
	sec.MaxFileSizeMB = getEnvAsInt("MAX_FILE_SIZE_MB", sec.MaxFileSizeMB)
	sec.MaxTickerLength = getEnvAsInt("MAX_TICKER_LENGTH", sec.MaxTickerLength)
	sec.MaxCurrencyLength = getEnvAsInt("MAX_CURRENCY_LENGTH", sec.MaxCurrencyLength)
	sec.MaxQuantity = getEnvAsFloat("MAX_QUANTITY", sec.MaxQuantity)
	sec.MaxPrice = getEnvAsFloat("MAX_PRICE", sec.MaxPrice)
	if exts := getEnv("ALLOWED_EXTENSIONS", ""); exts != "" {
		sec.AllowedExtensions = splitList(exts)
	}

	cfg := &AppConfig{
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "json")),
		DatabasePath:    getEnv("DATABASE_PATH", ""),
		CountryDataPath: getEnv("COUNTRY_DATA_PATH", ""),
		RatesPath:       getEnv("RATES_PATH", ""),
		OutputDir:       getEnv("OUTPUT_DIR", "."),
		MatchWorkers:    getEnvAsInt("MATCH_WORKERS", 4),
		PlaceholderBuys: getEnvAsBool("PLACEHOLDER_BUYS", true),
		Security:        sec,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field constraint of the configuration.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("Invalid number value for %s ('%s'), using default: %g", key, valueStr, fallback)
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid boolean value for %s ('%s'), using default: %t", key, valueStr, fallback)
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, ".") {
			part = "." + part
		}
		out = append(out, part)
	}
	return out
}
