package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"LOG_LEVEL", "LOG_FORMAT", "OUTPUT_DIR", "MATCH_WORKERS", "PLACEHOLDER_BUYS", "ALLOWED_EXTENSIONS", "MAX_FILE_SIZE_MB"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Errorf("log settings = %s/%s, want info/json", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.MatchWorkers != 4 || !cfg.PlaceholderBuys {
		t.Errorf("matching settings = workers %d placeholders %v", cfg.MatchWorkers, cfg.PlaceholderBuys)
	}
	if cfg.Security.MaxFileSizeBytes() != 100*1024*1024 {
		t.Errorf("MaxFileSizeBytes = %d", cfg.Security.MaxFileSizeBytes())
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("MATCH_WORKERS", "8")
	t.Setenv("PLACEHOLDER_BUYS", "false")
	t.Setenv("ALLOWED_EXTENSIONS", "csv, .TXT,")
	t.Setenv("MAX_TICKER_LENGTH", "not-a-number")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "text" {
		t.Errorf("log settings = %s/%s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.MatchWorkers != 8 || cfg.PlaceholderBuys {
		t.Errorf("matching settings = workers %d placeholders %v", cfg.MatchWorkers, cfg.PlaceholderBuys)
	}
	if got := strings.Join(cfg.Security.AllowedExtensions, ","); got != ".csv,.txt" {
		t.Errorf("AllowedExtensions = %s", got)
	}
	if cfg.Security.MaxTickerLength != DefaultSecurityConfig().MaxTickerLength {
		t.Errorf("invalid integer must fall back to the default, got %d", cfg.Security.MaxTickerLength)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"log level", "LOG_LEVEL", "verbose"},
		{"log format", "LOG_FORMAT", "xml"},
		{"workers", "MATCH_WORKERS", "0"},
		{"file size", "MAX_FILE_SIZE_MB", "-1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := LoadConfig(); err == nil {
				t.Errorf("expected an error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestDecodeRates(t *testing.T) {
	rf, err := DecodeRates([]byte("target: EUR\nrates:\n  USD: \"0.92\"\n  GBP: \"1.17\"\n"))
	if err != nil {
		t.Fatalf("DecodeRates: %v", err)
	}
	if rf.Target != "EUR" || rf.Rates["USD"] != "0.92" || rf.Rates["GBP"] != "1.17" {
		t.Errorf("unexpected rates: %+v", rf)
	}
}

func TestDecodeRatesValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing target", "rates:\n  USD: \"0.9\"\n"},
		{"lowercase target", "target: eur\n"},
		{"bad currency key", "target: EUR\nrates:\n  DOLLAR: \"0.9\"\n"},
		{"non-numeric rate", "target: EUR\nrates:\n  USD: abc\n"},
		{"empty rate", "target: EUR\nrates:\n  USD: \"\"\n"},
		{"unknown field", "target: EUR\nbase: USD\n"},
		{"not yaml", "target: [EUR\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeRates([]byte(tc.yaml)); err == nil {
				t.Errorf("expected an error for %q", tc.yaml)
			}
		})
	}
}

func TestLoadRatesMissingFile(t *testing.T) {
	_, err := LoadRates(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "absent.yaml") {
		t.Errorf("expected a read error naming the file, got %v", err)
	}
}
