// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr   string            `mapstructure:"listen_addr"`
	LedgerPath   string            `mapstructure:"ledger_path"`
	DebugLogging bool              `mapstructure:"debug_logging"`
	Converter    ConverterConfig   `mapstructure:"converter"`
	Communities  []CommunityConfig `mapstructure:"communities"`
}

// ConverterConfig selects the platform currency converter. Kind "fixed"
// converts at rate_num/rate_den; kind "feed" expects a live rate source to
// be wired in at startup.
type ConverterConfig struct {
	Kind    string `mapstructure:"kind"`
	RateNum uint64 `mapstructure:"rate_num"`
	RateDen uint64 `mapstructure:"rate_den"`
}

// CommunityConfig describes one community deployed at startup. Amount
// fields are decimal strings so genesis values beyond 64 bits survive the
// config round trip.
type CommunityConfig struct {
	Name           string `mapstructure:"name"`
	TokenName      string `mapstructure:"token_name"`
	TokenSymbol    string `mapstructure:"token_symbol"`
	Creator        string `mapstructure:"creator"`
	CharityBPS     uint32 `mapstructure:"charity_bps"`
	BuyFormula     string `mapstructure:"buy_formula"`
	SellFormula    string `mapstructure:"sell_formula"`
	WeightPPM      uint32 `mapstructure:"weight_ppm"`
	SpreadPPM      uint32 `mapstructure:"spread_ppm"`
	InitialMint    string `mapstructure:"initial_mint"`
	InitialReserve string `mapstructure:"initial_reserve"`
	AssetKind      string `mapstructure:"asset_kind"`
}

const (
	DefaultListenAddr = ":8080"
	DefaultLedgerPath = "givecurve.db"
	DefaultWeightPPM  = 400_000
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"listen_addr":        DefaultListenAddr,
		"ledger_path":        DefaultLedgerPath,
		"converter.kind":     "fixed",
		"converter.rate_num": 1,
		"converter.rate_den": 1,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvironmentVariables(v, &cfg)

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return errors.New("missing listen_addr in configuration")
	}
	if cfg.LedgerPath == "" {
		return errors.New("missing ledger_path in configuration")
	}
	switch cfg.Converter.Kind {
	case "fixed":
		if cfg.Converter.RateNum == 0 || cfg.Converter.RateDen == 0 {
			return errors.New("fixed converter rate must be positive")
		}
	case "feed":
	default:
		return fmt.Errorf("unknown converter kind %q", cfg.Converter.Kind)
	}
	if len(cfg.Communities) == 0 {
		return errors.New("communities list is empty")
	}

	seen := make(map[string]bool, len(cfg.Communities))
	for i := range cfg.Communities {
		if err := validateCommunity(&cfg.Communities[i]); err != nil {
			return fmt.Errorf("community %d: %w", i, err)
		}
		if seen[cfg.Communities[i].Name] {
			return fmt.Errorf("duplicate community name %q", cfg.Communities[i].Name)
		}
		seen[cfg.Communities[i].Name] = true
	}
	return nil
}

func validateCommunity(c *CommunityConfig) error {
	if c.Name == "" {
		return errors.New("missing name")
	}
	if c.TokenSymbol == "" {
		return errors.New("missing token_symbol")
	}
	if c.Creator == "" {
		return errors.New("missing creator")
	}
	if c.CharityBPS >= 10_000 {
		return errors.New("charity_bps must leave a reserve share")
	}
	if c.BuyFormula == "" {
		c.BuyFormula = "bancor"
	}
	if c.SellFormula == "" {
		c.SellFormula = c.BuyFormula
	}
	if c.WeightPPM == 0 {
		c.WeightPPM = DefaultWeightPPM
	}
	if c.WeightPPM > 1_000_000 {
		return errors.New("weight_ppm exceeds one million")
	}
	if c.SpreadPPM >= 1_000_000 {
		return errors.New("spread_ppm must be below one million")
	}
	if c.InitialMint == "" || c.InitialReserve == "" {
		return errors.New("missing genesis amounts")
	}
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.AutomaticEnv()
	v.SetEnvPrefix("GIVECURVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if addr := v.GetString("LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if path := v.GetString("LEDGER_PATH"); path != "" {
		cfg.LedgerPath = path
	}
}
