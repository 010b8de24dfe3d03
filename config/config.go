package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"backsim/internal/adapters/logger"
	"backsim/internal/domain"
)

// Data source kinds selectable via DATA_SOURCE.
const (
	SourceBinance = "binance"
	SourceCSV     = "csv"
)

// Config holds all application configuration.
type Config struct {
	// Binance API (optional, kline endpoints are public)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Backtest Parameters
	StrategyID     string
	Symbol         string
	Interval       string
	StartTime      time.Time
	EndTime        time.Time
	InitialCapital float64
	CommissionRate float64 // e.g., 0.001 for 0.1%
	SlippageRate   float64 // e.g., 0.0005 for 0.05%

	// Strategy Parameters, forwarded to the strategy untouched.
	StrategyParams map[string]float64

	// Data Source
	DataSource string // "binance" or "csv"
	CSVPath    string

	// Engine
	SnapshotInterval int // bars between persisted snapshots

	// Database
	DBPath string

	// Logging
	LogLevel logrus.Level
}

// BacktestConfig converts the loaded configuration into the domain run config.
func (c *Config) BacktestConfig() domain.BacktestConfig {
	return domain.BacktestConfig{
		StrategyID:     c.StrategyID,
		Symbol:         c.Symbol,
		Interval:       c.Interval,
		StartTime:      c.StartTime,
		EndTime:        c.EndTime,
		InitialCapital: c.InitialCapital,
		CommissionRate: c.CommissionRate,
		SlippageRate:   c.SlippageRate,
		Params:         c.StrategyParams,
	}
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Backtest Parameters
	cfg.StrategyID = getEnv("STRATEGY_ID", "ma_crossover")
	if cfg.StrategyID == "" {
		errs = append(errs, "STRATEGY_ID must be set")
	}

	cfg.Symbol = getEnv("SYMBOL", "BTCUSDT")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}

	cfg.Interval = getEnv("INTERVAL", "1d")
	if cfg.Interval == "" {
		errs = append(errs, "INTERVAL must be set")
	}

	cfg.StartTime, err = getEnvAsTime("START_TIME")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid START_TIME: %v", err))
	}
	cfg.EndTime, err = getEnvAsTime("END_TIME")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid END_TIME: %v", err))
	}
	if !cfg.StartTime.IsZero() && !cfg.EndTime.IsZero() && !cfg.EndTime.After(cfg.StartTime) {
		errs = append(errs, "END_TIME must be after START_TIME")
	}

	cfg.InitialCapital, err = getEnvAsFloatRequired("INITIAL_CAPITAL", 10000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_CAPITAL: %v", err))
	} else if cfg.InitialCapital <= 0 {
		errs = append(errs, "INITIAL_CAPITAL must be positive")
	}

	cfg.CommissionRate, err = getEnvAsFloatRequired("COMMISSION_RATE", 0.001)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid COMMISSION_RATE: %v", err))
	} else if cfg.CommissionRate < 0 || cfg.CommissionRate >= 1.0 {
		errs = append(errs, "COMMISSION_RATE must be in [0.0, 1.0)")
	}

	cfg.SlippageRate, err = getEnvAsFloatRequired("SLIPPAGE_RATE", 0.0005)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SLIPPAGE_RATE: %v", err))
	} else if cfg.SlippageRate < 0 || cfg.SlippageRate >= 1.0 {
		errs = append(errs, "SLIPPAGE_RATE must be in [0.0, 1.0)")
	}

	// Strategy Parameters, e.g. STRATEGY_PARAMS="fast_period=10,slow_period=30"
	cfg.StrategyParams, err = parseParams(getEnv("STRATEGY_PARAMS", ""))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STRATEGY_PARAMS: %v", err))
	}

	// Data Source
	cfg.DataSource = strings.ToLower(getEnv("DATA_SOURCE", SourceBinance))
	switch cfg.DataSource {
	case SourceBinance:
	case SourceCSV:
		cfg.CSVPath = getEnv("CSV_PATH", "")
		if cfg.CSVPath == "" {
			errs = append(errs, "CSV_PATH must be set when DATA_SOURCE is csv")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown DATA_SOURCE %q (expected %q or %q)", cfg.DataSource, SourceBinance, SourceCSV))
	}

	// Engine
	cfg.SnapshotInterval = getEnvAsInt("SNAPSHOT_INTERVAL", 10)
	if cfg.SnapshotInterval <= 0 {
		errs = append(errs, "SNAPSHOT_INTERVAL must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/backsim.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// parseParams parses "key=value,key=value" pairs into strategy params.
func parseParams(raw string) (map[string]float64, error) {
	params := make(map[string]float64)
	if strings.TrimSpace(raw) == "" {
		return params, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("malformed pair %q (expected key=value)", pair)
		}
		value, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q for key %s: %w", parts[1], parts[0], err)
		}
		params[parts[0]] = value
	}
	return params, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsTime parses RFC3339 or date-only timestamps. The variable is
// required: backtests have no sensible default window.
func getEnvAsTime(key string) (time.Time, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return time.Time{}, fmt.Errorf("%s must be set", key)
	}
	if t, err := time.Parse(time.RFC3339, valueStr); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", valueStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time value '%s' for key %s (expected RFC3339 or YYYY-MM-DD)", valueStr, key)
	}
	return t, nil
}
