package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Config struct {
	General  GeneralConfig  `toml:"general"`
	Ledger   LedgerConfig   `toml:"ledger"`
	API      APIConfig      `toml:"api"`
	Events   EventsConfig   `toml:"events"`
	Mirror   MirrorConfig   `toml:"mirror"`
	Schedule ScheduleConfig `toml:"schedule"`
}

type GeneralConfig struct {
	DBPath   string `toml:"db_path"`
	LogLevel string `toml:"log_level"`
}

type LedgerConfig struct {
	Authority     string `toml:"authority"`
	FeeRateBPS    uint64 `toml:"fee_rate_bps"`
	MaxFeeRateBPS uint64 `toml:"max_fee_rate_bps"`
}

type APIConfig struct {
	Listen string `toml:"listen"`
	// SignatureWindow bounds how far a signed request's timestamp may be
	// from the server clock.
	SignatureWindow Duration `toml:"signature_window"`
}

// EventsConfig controls the Redis event feed. An empty RedisAddr disables it.
type EventsConfig struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisChannel  string `toml:"redis_channel"`
}

type MirrorConfig struct {
	Enabled bool     `toml:"enabled"`
	Markets []string `toml:"markets"` // Manifold market ids
}

type ScheduleConfig struct {
	MirrorInterval Duration `toml:"mirror_interval"`
	ReportInterval Duration `toml:"report_interval"`
}

// Duration wraps time.Duration for TOML unmarshaling.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Load reads the TOML file at path over the defaults, then applies WAGER_*
// environment overrides (a .env file is loaded first if present).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	_ = godotenv.Load()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	setStr(&cfg.General.DBPath, "WAGER_DB_PATH")
	setStr(&cfg.General.LogLevel, "WAGER_LOG_LEVEL")
	setStr(&cfg.Ledger.Authority, "WAGER_AUTHORITY")
	setStr(&cfg.API.Listen, "WAGER_API_LISTEN")
	setStr(&cfg.Events.RedisAddr, "WAGER_REDIS_ADDR")
	setStr(&cfg.Events.RedisPassword, "WAGER_REDIS_PASSWORD")

	if v := os.Getenv("WAGER_FEE_RATE_BPS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing WAGER_FEE_RATE_BPS: %w", err)
		}
		cfg.Ledger.FeeRateBPS = n
	}
	return nil
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks the settings the ledger cannot start without.
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.Ledger.Authority) {
		return fmt.Errorf("ledger.authority %q is not a hex address", c.Ledger.Authority)
	}
	if c.AuthorityAddress() == (common.Address{}) {
		return fmt.Errorf("ledger.authority must not be the zero address")
	}
	if c.Ledger.MaxFeeRateBPS > 10000 {
		return fmt.Errorf("ledger.max_fee_rate_bps %d above 10000", c.Ledger.MaxFeeRateBPS)
	}
	if c.Ledger.FeeRateBPS > c.Ledger.MaxFeeRateBPS {
		return fmt.Errorf("ledger.fee_rate_bps %d above max %d", c.Ledger.FeeRateBPS, c.Ledger.MaxFeeRateBPS)
	}
	if c.Mirror.Enabled && c.Schedule.MirrorInterval.Duration <= 0 {
		return fmt.Errorf("schedule.mirror_interval must be positive when the mirror is enabled")
	}
	if c.API.SignatureWindow.Duration <= 0 {
		return fmt.Errorf("api.signature_window must be positive")
	}
	if c.Schedule.ReportInterval.Duration <= 0 {
		return fmt.Errorf("schedule.report_interval must be positive")
	}
	return nil
}

// AuthorityAddress returns the configured resolution authority.
func (c *Config) AuthorityAddress() common.Address {
	return common.HexToAddress(c.Ledger.Authority)
}

func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			DBPath:   "./data/wagerledger.db",
			LogLevel: "info",
		},
		Ledger: LedgerConfig{
			FeeRateBPS:    200,
			MaxFeeRateBPS: 1000,
		},
		API: APIConfig{
			Listen:          ":8080",
			SignatureWindow: Duration{5 * time.Minute},
		},
		Events: EventsConfig{
			RedisChannel: "wagerledger:events",
		},
		Schedule: ScheduleConfig{
			MirrorInterval: Duration{5 * time.Minute},
			ReportInterval: Duration{1 * time.Hour},
		},
	}
}
