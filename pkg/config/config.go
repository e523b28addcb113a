package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ethfolio/pkg/address"
	"ethfolio/pkg/models"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const ConfigFileName = ".ethfolio.json"

// DefaultAddress is viewed on startup when nothing else is configured.
const DefaultAddress = "0x276417be271dbeb696cb97cda7c6982fd89e6bd4"

// Env holds settings read from the process environment (and an optional .env file).
type Env struct {
	AlchemyAPIKey   string `env:"ALCHEMY_API_KEY"`
	AlchemyEndpoint string `env:"ALCHEMY_ENDPOINT" envDefault:"https://%s.g.alchemy.com"`
	LogLevel        string `env:"ETHFOLIO_LOG_LEVEL" envDefault:"info"`
}

// Config holds application-wide settings.
type Config struct {
	DefaultAddress        string         `json:"default_address"`
	Network               models.Network `json:"network"`
	BalanceDecimals       int            `json:"balance_decimals"`
	TokenDecimals         int            `json:"token_decimals"`
	MetadataConcurrency   int            `json:"metadata_concurrency"`
	RequestTimeoutSeconds int            `json:"request_timeout_seconds"`
	LogFile               string         `json:"log_file,omitempty"`
	ExplorerURL           string         `json:"explorer_url"`
	MarketplaceURL        string         `json:"marketplace_url"`

	Env Env `json:"-"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		DefaultAddress:  DefaultAddress,
		Network:         models.EthMainnet,
		BalanceDecimals: 4,
		TokenDecimals:   2,
		ExplorerURL:     "https://etherscan.io",
		MarketplaceURL:  "https://opensea.io",
	}
}

// RequestTimeout is zero when the upstream client defaults apply.
func (c Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func GetConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

func LoadConfigFromFile(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()
	return LoadConfig(f)
}

func LoadConfig(r io.Reader) (Config, error) {
	var raw struct {
		DefaultAddress        *string `json:"default_address"`
		Network               *string `json:"network"`
		BalanceDecimals       *int    `json:"balance_decimals"`
		TokenDecimals         *int    `json:"token_decimals"`
		MetadataConcurrency   *int    `json:"metadata_concurrency"`
		RequestTimeoutSeconds *int    `json:"request_timeout_seconds"`
		LogFile               *string `json:"log_file"`
		ExplorerURL           *string `json:"explorer_url"`
		MarketplaceURL        *string `json:"marketplace_url"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if raw.DefaultAddress != nil {
		cfg.DefaultAddress = strings.TrimSpace(*raw.DefaultAddress)
	}
	if raw.Network != nil {
		n, err := models.ParseNetwork(*raw.Network)
		if err != nil {
			return Config{}, err
		}
		cfg.Network = n
	}
	if raw.BalanceDecimals != nil {
		cfg.BalanceDecimals = *raw.BalanceDecimals
	}
	if raw.TokenDecimals != nil {
		cfg.TokenDecimals = *raw.TokenDecimals
	}
	if raw.MetadataConcurrency != nil {
		cfg.MetadataConcurrency = *raw.MetadataConcurrency
	}
	if raw.RequestTimeoutSeconds != nil {
		cfg.RequestTimeoutSeconds = *raw.RequestTimeoutSeconds
	}
	if raw.LogFile != nil {
		cfg.LogFile = *raw.LogFile
	}
	if raw.ExplorerURL != nil {
		cfg.ExplorerURL = strings.TrimRight(*raw.ExplorerURL, "/")
	}
	if raw.MarketplaceURL != nil {
		cfg.MarketplaceURL = strings.TrimRight(*raw.MarketplaceURL, "/")
	}

	return cfg, nil
}

// LoadEnv reads dotenv files (missing files are ignored) and parses the environment into cfg.Env.
func LoadEnv(cfg *Config, dotenvPaths ...string) error {
	for _, p := range dotenvPaths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	if err := env.Parse(&cfg.Env); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate reports configuration that cannot be used to start a load.
func Validate(cfg Config) error {
	if cfg.DefaultAddress != "" && !address.Valid(cfg.DefaultAddress) {
		return fmt.Errorf("validation failed: default_address %q is not a valid address", cfg.DefaultAddress)
	}
	if cfg.BalanceDecimals < 0 || cfg.TokenDecimals < 0 {
		return fmt.Errorf("validation failed: display decimals must not be negative")
	}
	if cfg.MetadataConcurrency < 0 {
		return fmt.Errorf("validation failed: metadata_concurrency must not be negative")
	}
	return nil
}

// Validate reports environment settings the upstream client cannot work with.
func (e Env) Validate() error {
	if strings.TrimSpace(e.AlchemyAPIKey) == "" {
		return fmt.Errorf("ALCHEMY_API_KEY is not set")
	}
	if !strings.Contains(e.AlchemyEndpoint, "%s") {
		return fmt.Errorf("ALCHEMY_ENDPOINT must contain %%s for the network")
	}
	return nil
}

func SaveConfig(cfg Config, path string) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return fmt.Errorf("validation failed: encoded configuration is empty")
	}

	// Create a backup of the existing file
	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing config for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0644); err != nil {
			return fmt.Errorf("failed to write backup config: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
