package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/username/taxfolio/sharesreport/src/models"
)

// LoadRates reads and validates a currency-rate file.
func LoadRates(path string) (*models.RatesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading rates file '%s': %w", path, err)
	}
	return DecodeRates(data)
}

// DecodeRates decodes and validates rate configuration from YAML bytes.
func DecodeRates(data []byte) (*models.RatesFile, error) {
	var rf models.RatesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		return nil, fmt.Errorf("error decoding rates: %w", err)
	}
	if err := validator.New().Struct(&rf); err != nil {
		return nil, fmt.Errorf("invalid rates configuration: %w", err)
	}
	return &rf, nil
}
