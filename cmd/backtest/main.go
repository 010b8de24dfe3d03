package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"backsim/config"
	"backsim/internal/adapters/binanceclient"
	"backsim/internal/adapters/csvsource"
	"backsim/internal/adapters/logger"
	"backsim/internal/adapters/sqlite"
	"backsim/internal/domain"
	"backsim/internal/engine"
	"backsim/internal/events"
	"backsim/internal/ports"
	"backsim/internal/strategy"
	"backsim/internal/strategy/strategies"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize Data Source
	var source ports.DataSource
	switch cfg.DataSource {
	case config.SourceCSV:
		source, err = csvsource.New(cfg.CSVPath, appLogger)
	default:
		source, err = binanceclient.New(binanceclient.Config{
			APIKey:     cfg.APIKey,
			SecretKey:  cfg.SecretKey,
			UseTestnet: cfg.IsTestnet,
			Interval:   cfg.Interval,
			Logger:     appLogger,
		})
	}
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize data source")
		log.Fatalf("FATAL: Failed to initialize data source: %v", err)
	}

	// 5. Register Strategies
	registry := strategy.NewRegistry()
	for _, factory := range strategies.BuiltinFactories(appLogger) {
		if err := registry.Register(factory); err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to register strategy")
			log.Fatalf("FATAL: Failed to register strategy: %v", err)
		}
	}

	runCfg := cfg.BacktestConfig()
	if result := registry.Validate(runCfg.StrategyID, runCfg.Params); !result.Valid {
		appLogger.Error(ctx, nil, "FATAL: Invalid strategy parameters", map[string]interface{}{"errors": result.Errors})
		log.Fatalf("FATAL: Invalid strategy parameters: %v", result.Errors)
	}

	// 6. Run the Backtest
	bus := events.NewBus(appLogger)
	eng, err := engine.New(runCfg, engine.Deps{
		Logger:           appLogger,
		DataSource:       source,
		Repository:       repo,
		Events:           bus,
		Registry:         registry,
		SnapshotInterval: cfg.SnapshotInterval,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to construct engine")
		log.Fatalf("FATAL: Failed to construct engine: %v", err)
	}

	result, err := eng.Run(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "Backtest failed", map[string]interface{}{"runID": eng.RunID()})
		os.Exit(1)
	}

	printSummary(result)
}

// printSummary writes the headline metrics to stdout for the operator.
func printSummary(result *domain.BacktestResult) {
	m := result.Metrics
	fmt.Printf("run:                 %s\n", result.RunID)
	fmt.Printf("strategy:            %s\n", result.Config.StrategyID)
	fmt.Printf("symbol:              %s (%s)\n", result.Config.Symbol, result.Config.Interval)
	fmt.Printf("total return:        %.2f%%\n", m.TotalReturn*100)
	fmt.Printf("annualized return:   %.2f%%\n", m.AnnualizedReturn*100)
	fmt.Printf("sharpe ratio:        %.2f\n", m.SharpeRatio)
	fmt.Printf("max drawdown:        %.2f%% (%d bars)\n", m.MaxDrawdown*100, m.MaxDrawdownDuration)
	fmt.Printf("profit factor:       %.2f\n", m.ProfitFactor)
	fmt.Printf("win rate:            %.2f%%\n", m.WinRate*100)
	fmt.Printf("trades:              %d (%d wins / %d losses)\n", m.TotalTrades, m.WinningTrades, m.LosingTrades)
	fmt.Printf("final equity:        %.2f\n", result.FinalPortfolio.TotalValue())
}
