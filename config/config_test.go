package config

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("START_TIME", "2024-01-01")
	t.Setenv("END_TIME", "2024-06-01")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "ma_crossover", cfg.StrategyID)
	assert.Equal(t, "BTCUSDT", cfg.Symbol)
	assert.Equal(t, "1d", cfg.Interval)
	assert.InDelta(t, 10000.0, cfg.InitialCapital, 1e-12)
	assert.InDelta(t, 0.001, cfg.CommissionRate, 1e-12)
	assert.InDelta(t, 0.0005, cfg.SlippageRate, 1e-12)
	assert.Equal(t, SourceBinance, cfg.DataSource)
	assert.Equal(t, 10, cfg.SnapshotInterval)
	assert.Equal(t, "./data/backsim.db", cfg.DBPath)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Empty(t, cfg.StrategyParams)
}

func TestLoadConfig_MissingWindow(t *testing.T) {
	t.Setenv("START_TIME", "")
	t.Setenv("END_TIME", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "START_TIME")
	assert.Contains(t, err.Error(), "END_TIME")
}

func TestLoadConfig_WindowOrdering(t *testing.T) {
	t.Setenv("START_TIME", "2024-06-01")
	t.Setenv("END_TIME", "2024-01-01")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "END_TIME must be after START_TIME")
}

func TestLoadConfig_StrategyParams(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STRATEGY_PARAMS", "fast_period=5, slow_period=20")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.InDelta(t, 5.0, cfg.StrategyParams["fast_period"], 1e-12)
	assert.InDelta(t, 20.0, cfg.StrategyParams["slow_period"], 1e-12)
}

func TestLoadConfig_MalformedStrategyParams(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STRATEGY_PARAMS", "fast_period=abc")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRATEGY_PARAMS")
}

func TestLoadConfig_CSVSourceRequiresPath(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATA_SOURCE", "csv")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CSV_PATH")

	t.Setenv("CSV_PATH", "./data/bars.csv")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, SourceCSV, cfg.DataSource)
	assert.Equal(t, "./data/bars.csv", cfg.CSVPath)
}

func TestLoadConfig_UnknownDataSource(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATA_SOURCE", "ftp")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown DATA_SOURCE")
}

func TestLoadConfig_RateValidation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "negative commission", key: "COMMISSION_RATE", value: "-0.1"},
		{name: "commission of one", key: "COMMISSION_RATE", value: "1.0"},
		{name: "negative slippage", key: "SLIPPAGE_RATE", value: "-0.5"},
		{name: "zero capital", key: "INITIAL_CAPITAL", value: "0"},
		{name: "unparseable capital", key: "INITIAL_CAPITAL", value: "lots"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_AccumulatesErrors(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("INITIAL_CAPITAL", "-5")
	t.Setenv("COMMISSION_RATE", "2")
	t.Setenv("SNAPSHOT_INTERVAL", "-1")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INITIAL_CAPITAL")
	assert.Contains(t, err.Error(), "COMMISSION_RATE")
	assert.Contains(t, err.Error(), "SNAPSHOT_INTERVAL")
}

func TestLoadConfig_LogLevelParsing(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
}

func TestBacktestConfig_Conversion(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STRATEGY_ID", "rsi_reversion")
	t.Setenv("STRATEGY_PARAMS", "period=7")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	run := cfg.BacktestConfig()
	assert.Equal(t, "rsi_reversion", run.StrategyID)
	assert.Equal(t, cfg.Symbol, run.Symbol)
	assert.Equal(t, cfg.StartTime, run.StartTime)
	assert.Equal(t, cfg.EndTime, run.EndTime)
	assert.InDelta(t, 7.0, run.Params["period"], 1e-12)
}
