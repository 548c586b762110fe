package devicemgmt

import (
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines device-management settings.
type Config struct {
	InventoryBaseURL string        `yaml:"inventory_base_url"`
	MerchantBaseURL  string        `yaml:"merchant_base_url"`
	WarehouseVenueID string        `yaml:"warehouse_venue_id"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	ClearTags        []string      `yaml:"clear_tags"`
	// APIToken is never read from the file.
	APIToken string `yaml:"-"`
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := Config{
		InventoryBaseURL: os.Getenv("DEVICEMGMT_INVENTORY_URL"),
		MerchantBaseURL:  os.Getenv("DEVICEMGMT_MERCHANT_URL"),
		WarehouseVenueID: getenvDefault("DEVICEMGMT_WAREHOUSE_VENUE_ID", "warehouse"),
		RequestTimeout:   getenvDurationDefault("DEVICEMGMT_REQUEST_TIMEOUT", defaultRequestTimeout),
		ClearTags:        splitCSV(getenvDefault("DEVICEMGMT_CLEAR_TAGS", "partner:")),
	}

	if path := os.Getenv("DEVICEMGMT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.APIToken = os.Getenv("DEVICE_API_TOKEN")
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.WarehouseVenueID == "" {
		return cfg, errors.New("devicemgmt: warehouse venue id required")
	}
	return cfg, nil
}

// Enabled reports whether releases can be attempted.
func (c Config) Enabled() bool {
	return c.APIToken != "" && c.InventoryBaseURL != "" && c.MerchantBaseURL != ""
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDurationDefault(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
