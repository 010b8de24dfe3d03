package main

import (
	"context"
	"fmt"
	"log"

	"backsim/config"
	"backsim/internal/adapters/binanceclient"
	"backsim/internal/adapters/csvsource"
	"backsim/internal/adapters/logger"
)

// fetch_bars downloads the configured backtest window from Binance and caches
// it as a CSV file that DATA_SOURCE=csv runs can replay offline.
func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogLevel)
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Exchange Client (Binance Adapter)
	client, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Interval:   cfg.Interval,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	fmt.Printf("Fetching bars for %s %s from %s to %s...\n", cfg.Symbol, cfg.Interval, cfg.StartTime, cfg.EndTime)
	bars, err := client.LoadBars(ctx, cfg.Symbol, cfg.StartTime, cfg.EndTime)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching bars")
		log.Fatalf("Error fetching bars: %v", err)
	}

	filename := cfg.CSVPath
	if filename == "" {
		filename = fmt.Sprintf("data/%s_%s_%s_to_%s.csv", cfg.Symbol, cfg.Interval,
			cfg.StartTime.Format("20060102"), cfg.EndTime.Format("20060102"))
	}
	if err := csvsource.WriteBars(bars, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Bars saved", map[string]interface{}{"filename": filename, "count": len(bars)})
}
