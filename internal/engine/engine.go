// Package engine orchestrates one backtest run: it replays historical bars
// through a strategy, routes signals to the simulated broker, accumulates
// the equity curve and persists progress through its collaborators.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"backsim/internal/analytics"
	"backsim/internal/broker"
	"backsim/internal/clock"
	"backsim/internal/domain"
	"backsim/internal/ports"
	"backsim/internal/strategy"
)

const (
	// defaultSnapshotInterval is the number of bars between persisted
	// performance snapshots and progress events.
	defaultSnapshotInterval = 10

	// snapshotBuffer bounds the queue of pending snapshot writes. When the
	// writer falls this far behind, snapshots are dropped with a warning
	// rather than stalling bar processing.
	snapshotBuffer = 16
)

// Deps are the collaborators an engine needs. Logger, DataSource,
// Repository and Registry are required; Events may be nil when no consumer
// cares about progress.
type Deps struct {
	Logger     ports.Logger
	DataSource ports.DataSource
	Repository ports.RunRepository
	Events     ports.EventPublisher
	Registry   *strategy.Registry

	// SnapshotInterval overrides the snapshot/progress cadence in bars.
	SnapshotInterval int
}

// Engine executes exactly one backtest run. It owns its broker, clock and
// strategy instance; retrying a run means building a fresh engine.
type Engine struct {
	cfg  domain.BacktestConfig
	deps Deps

	mu     sync.Mutex
	status domain.RunStatus
	runID  string
}

// New validates the dependencies and builds an engine for one run.
func New(cfg domain.BacktestConfig, deps Deps) (*Engine, error) {
	if deps.Logger == nil || deps.DataSource == nil || deps.Repository == nil || deps.Registry == nil {
		return nil, fmt.Errorf("missing required dependencies for engine")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol must be set", ports.ErrConfigurationError)
	}
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("%w: initial capital must be positive", ports.ErrConfigurationError)
	}
	if !cfg.EndTime.After(cfg.StartTime) {
		return nil, fmt.Errorf("%w: end time must be after start time", ports.ErrConfigurationError)
	}
	if deps.SnapshotInterval <= 0 {
		deps.SnapshotInterval = defaultSnapshotInterval
	}
	if deps.Events == nil {
		deps.Events = nopPublisher{}
	}
	return &Engine{cfg: cfg, deps: deps, status: domain.RunPending}, nil
}

// Status returns the engine's current run status.
func (e *Engine) Status() domain.RunStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// RunID returns the persisted run identity, empty until Run is invoked.
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

func (e *Engine) setStatus(s domain.RunStatus) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// Run executes the backtest to completion or failure. Execution is strictly
// sequential with respect to simulated time; the context is checked between
// bars for cooperative cancellation.
func (e *Engine) Run(ctx context.Context) (*domain.BacktestResult, error) {
	runID, err := e.deps.Repository.CreateRun(ctx, &e.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create run record: %v", ports.ErrPersistence, err)
	}
	e.mu.Lock()
	e.runID = runID
	e.status = domain.RunRunning
	e.mu.Unlock()

	if err := e.deps.Repository.UpdateRunStatus(ctx, runID, domain.RunRunning, ""); err != nil {
		e.deps.Logger.Warn(ctx, "Failed to persist running status", map[string]interface{}{"runID": runID, "error": err.Error()})
	}
	e.deps.Logger.Info(ctx, "Backtest run started", map[string]interface{}{
		"runID":    runID,
		"strategy": e.cfg.StrategyID,
		"symbol":   e.cfg.Symbol,
		"start":    e.cfg.StartTime,
		"end":      e.cfg.EndTime,
	})

	result, err := e.execute(ctx, runID)
	if err != nil {
		return nil, e.fail(ctx, runID, err)
	}
	return result, nil
}

// execute runs the loop after the run record exists. Any returned error is
// a fatal run failure.
func (e *Engine) execute(ctx context.Context, runID string) (*domain.BacktestResult, error) {
	bars, err := e.deps.DataSource.LoadBars(ctx, e.cfg.Symbol, e.cfg.StartTime, e.cfg.EndTime)
	if err != nil {
		return nil, fmt.Errorf("loading historical data: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no data available for %s between %s and %s",
			ports.ErrNoHistoricalData, e.cfg.Symbol,
			e.cfg.StartTime.Format(time.RFC3339), e.cfg.EndTime.Format(time.RFC3339))
	}

	strat, err := e.deps.Registry.Create(e.cfg.StrategyID)
	if err != nil {
		return nil, fmt.Errorf("resolving strategy: %w", err)
	}
	if err := strat.Initialize(e.cfg.Params); err != nil {
		return nil, fmt.Errorf("initializing strategy %q: %w", e.cfg.StrategyID, err)
	}

	histClock := clock.NewHistorical(bars[0].Timestamp, barStep(bars))
	brk, err := broker.New(broker.Config{
		InitialCapital: e.cfg.InitialCapital,
		CommissionRate: e.cfg.CommissionRate,
		SlippageRate:   e.cfg.SlippageRate,
		Clock:          histClock,
		Logger:         e.deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("constructing broker: %w", err)
	}

	if err := strat.OnStart(ctx, e.cfg.InitialCapital); err != nil {
		return nil, fmt.Errorf("%w: OnStart: %v", ports.ErrStrategyExecution, err)
	}

	writer := e.startSnapshotWriter(ctx)
	defer writer.stop()

	equityCurve := make([]domain.EquityPoint, 0, len(bars))
	total := len(bars)

	for i, bar := range bars {
		// 1. Record the bar's close as the latest observed price.
		brk.UpdatePrice(e.cfg.Symbol, bar.Close)

		// 2. Let the strategy decide. A strategy error leaves it in an
		// unknown state and is fatal to the run.
		signal, err := strat.OnBar(ctx, bar, brk)
		if err != nil {
			return nil, fmt.Errorf("%w: bar %d (%s): %v", ports.ErrStrategyExecution, i, bar.Timestamp.Format(time.RFC3339), err)
		}

		// 3. Execute an actionable signal. Rejections are a normal
		// consequence of strategy logic and never abort the run.
		if signal.Actionable() {
			e.executeSignal(ctx, runID, brk, signal)
		}

		// 4. Sample the equity curve.
		equityCurve = append(equityCurve, domain.EquityPoint{
			Time:  bar.Timestamp,
			Value: brk.GetPortfolio().TotalValue(),
		})

		// 5. Periodic telemetry.
		if (i+1)%e.deps.SnapshotInterval == 0 || i == total-1 {
			writer.enqueue(e.buildSnapshot(runID, bar.Timestamp, brk, equityCurve))
			e.deps.Events.Publish(ports.Event{
				Kind:            ports.EventProgress,
				RunID:           runID,
				PercentComplete: float64(i+1) / float64(total) * 100,
				BarsProcessed:   i + 1,
			})
		}

		// 6. Advance simulated time and honor cancellation between bars.
		histClock.Advance()
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run canceled: %w", err)
		}
	}

	writer.stop()

	finalPortfolio := brk.GetPortfolio()
	if err := strat.OnEnd(ctx, finalPortfolio); err != nil {
		return nil, fmt.Errorf("%w: OnEnd: %v", ports.ErrStrategyExecution, err)
	}

	metrics := analytics.Compute(brk.Orders(), equityCurve, e.cfg.InitialCapital)
	result := &domain.BacktestResult{
		RunID:          runID,
		Config:         e.cfg,
		Metrics:        metrics,
		Orders:         brk.Orders(),
		EquityCurve:    equityCurve,
		DrawdownCurve:  analytics.DrawdownCurve(equityCurve),
		FinalPortfolio: finalPortfolio,
		CompletedAt:    time.Now().UTC(),
	}

	// The final result write is the one persistence call whose failure is
	// surfaced to the caller.
	if err := e.deps.Repository.SaveResult(ctx, result); err != nil {
		return nil, fmt.Errorf("%w: saving final result: %v", ports.ErrPersistence, err)
	}
	if err := e.deps.Repository.UpdateRunStatus(ctx, runID, domain.RunCompleted, ""); err != nil {
		e.deps.Logger.Warn(ctx, "Failed to persist completed status", map[string]interface{}{"runID": runID, "error": err.Error()})
	}

	e.setStatus(domain.RunCompleted)
	e.deps.Events.Publish(ports.Event{Kind: ports.EventComplete, RunID: runID, Result: result})
	e.deps.Logger.Info(ctx, "Backtest run completed", map[string]interface{}{
		"runID":       runID,
		"totalReturn": metrics.TotalReturn,
		"sharpe":      metrics.SharpeRatio,
		"maxDrawdown": metrics.MaxDrawdown,
		"totalTrades": metrics.TotalTrades,
	})
	return result, nil
}

// executeSignal submits the order a signal asks for and records the trade.
func (e *Engine) executeSignal(ctx context.Context, runID string, brk ports.Broker, signal *domain.Signal) {
	side := domain.Buy
	state := domain.TradeOpen
	if signal.Action == domain.ActionSell {
		side = domain.Sell
		state = domain.TradeClose
	}

	order, err := brk.SubmitOrder(signal.Symbol, side, domain.Market, signal.Quantity, 0)
	if err != nil {
		// A rejected order is logged and the bar continues.
		e.deps.Logger.Warn(ctx, "Order rejected", map[string]interface{}{
			"runID":    runID,
			"symbol":   signal.Symbol,
			"side":     side,
			"quantity": signal.Quantity,
			"reason":   err.Error(),
		})
		return
	}

	if err := e.deps.Repository.InsertTrade(ctx, runID, order, domain.DirectionLong, state); err != nil {
		e.deps.Logger.Warn(ctx, "Failed to persist trade", map[string]interface{}{
			"runID":   runID,
			"orderID": order.ID,
			"error":   err.Error(),
		})
	}
}

// buildSnapshot assembles the periodic telemetry row.
func (e *Engine) buildSnapshot(runID string, ts time.Time, brk ports.Broker, equityCurve []domain.EquityPoint) *domain.PerformanceSnapshot {
	portfolio := brk.GetPortfolio()
	totalValue := portfolio.TotalValue()

	peak := 0.0
	for _, pt := range equityCurve {
		if pt.Value > peak {
			peak = pt.Value
		}
	}
	drawdown := 0.0
	if peak > 0 {
		drawdown = (peak - totalValue) / peak
	}

	return &domain.PerformanceSnapshot{
		RunID:          runID,
		Timestamp:      ts,
		PortfolioValue: totalValue,
		CashBalance:    portfolio.Cash,
		PositionValue:  totalValue - portfolio.Cash,
		TotalReturn:    portfolio.TotalReturn(),
		Drawdown:       drawdown,
	}
}

// fail records the failure on the run record and publishes the failed event.
func (e *Engine) fail(ctx context.Context, runID string, cause error) error {
	e.setStatus(domain.RunFailed)
	e.deps.Logger.Error(ctx, cause, "Backtest run failed", map[string]interface{}{"runID": runID})

	if err := e.deps.Repository.UpdateRunStatus(ctx, runID, domain.RunFailed, cause.Error()); err != nil {
		e.deps.Logger.Warn(ctx, "Failed to persist failed status", map[string]interface{}{"runID": runID, "error": err.Error()})
	}
	e.deps.Events.Publish(ports.Event{Kind: ports.EventFailed, RunID: runID, Err: cause})
	return cause
}

// barStep infers the historical clock step from the first two bars, falling
// back to a day for a single-bar series.
func barStep(bars []*domain.Bar) time.Duration {
	if len(bars) >= 2 {
		if step := bars[1].Timestamp.Sub(bars[0].Timestamp); step > 0 {
			return step
		}
	}
	return 24 * time.Hour
}

// snapshotWriter persists snapshots off the bar-processing path. The queue
// is bounded; overflow drops the snapshot with a warning, and write failures
// are logged without aborting the run.
type snapshotWriter struct {
	ch     chan *domain.PerformanceSnapshot
	done   chan struct{}
	once   sync.Once
	logger ports.Logger
}

func (e *Engine) startSnapshotWriter(ctx context.Context) *snapshotWriter {
	w := &snapshotWriter{
		ch:     make(chan *domain.PerformanceSnapshot, snapshotBuffer),
		done:   make(chan struct{}),
		logger: e.deps.Logger,
	}
	go func() {
		defer close(w.done)
		for snap := range w.ch {
			if err := e.deps.Repository.InsertSnapshot(ctx, snap); err != nil {
				w.logger.Warn(ctx, "Failed to persist performance snapshot", map[string]interface{}{
					"runID":     snap.RunID,
					"timestamp": snap.Timestamp,
					"error":     err.Error(),
				})
			}
		}
	}()
	return w
}

// enqueue hands a snapshot to the writer without blocking.
func (w *snapshotWriter) enqueue(snap *domain.PerformanceSnapshot) {
	select {
	case w.ch <- snap:
	default:
		w.logger.Warn(context.Background(), "Snapshot queue full, dropping snapshot", map[string]interface{}{
			"runID":     snap.RunID,
			"timestamp": snap.Timestamp,
		})
	}
}

// stop closes the queue and waits for pending writes. Safe to call twice.
func (w *snapshotWriter) stop() {
	w.once.Do(func() { close(w.ch) })
	<-w.done
}

// nopPublisher is used when no event consumer is wired.
type nopPublisher struct{}

func (nopPublisher) Publish(ports.Event) {}

var _ ports.EventPublisher = nopPublisher{}
