package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Amount is a decimal that unmarshals from either a YAML number or string.
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	d, err := decimal.NewFromString(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("parse amount %q: %w", value.Value, err)
	}
	a.Decimal = d
	return nil
}

func (a Amount) MarshalYAML() (interface{}, error) {
	return a.String(), nil
}

// Duration unmarshals from a YAML string like "90s" or "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Currency is the process-wide currency configuration. Loaded once at
// startup and read-only afterwards; owned by the ledger.
type Currency struct {
	DefaultBalance Amount `yaml:"default_balance"`
	Symbol         string `yaml:"symbol"`
	SymbolBefore   bool   `yaml:"symbol_before_amount"`
}

// Storage selects and parameterizes the persistence backend.
type Storage struct {
	Type        string `yaml:"type"` // JSON, SQLITE, MYSQL, POSTGRESQL
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Database    string `yaml:"database"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	TablePrefix string `yaml:"table_prefix"`

	// File is the data file for the JSON and SQLITE backends.
	File string `yaml:"file"`

	PoolSize        int      `yaml:"pool_size"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// Redis configures the cache-invalidation bus.
type Redis struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	Channel  string `yaml:"channel"`
}

// Audit configures the transaction audit log.
type Audit struct {
	// File is the append-only fallback log used when the backend has no
	// structured transaction table.
	File      string `yaml:"file"`
	QueueSize int    `yaml:"queue_size"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Currency Currency `yaml:"currency"`
	Storage  Storage  `yaml:"storage"`
	Redis    Redis    `yaml:"redis"`
	Audit    Audit    `yaml:"audit"`
	HTTP     HTTP     `yaml:"http"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Currency: Currency{
			DefaultBalance: Amount{decimal.NewFromInt(1000)},
			Symbol:         "$",
			SymbolBefore:   true,
		},
		Storage: Storage{
			Type:            "JSON",
			Host:            "localhost",
			Port:            3306,
			Database:        "econd",
			User:            "root",
			Password:        "",
			TablePrefix:     "eco_",
			File:            "data/balances.json",
			PoolSize:        10,
			ConnMaxLifetime: Duration{5 * time.Minute},
		},
		Redis: Redis{
			Enabled: false,
			Addr:    "localhost:6379",
			Channel: "econd:transactions",
		},
		Audit: Audit{
			File:      "logs/economy.log",
			QueueSize: 1024,
		},
		HTTP: HTTP{
			Addr: ":8080",
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error; the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
