package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"backsim/internal/domain"
	"backsim/internal/ports"
	"backsim/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// memorySource serves a fixed bar slice.
type memorySource struct {
	bars []*domain.Bar
	err  error
}

func (s *memorySource) LoadBars(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Bar, error) {
	return s.bars, s.err
}

// fakeRepo records repository calls and can inject failures.
type fakeRepo struct {
	mu            sync.Mutex
	statuses      []domain.RunStatus
	errorMessages []string
	trades        []*domain.Order
	snapshots     []*domain.PerformanceSnapshot
	result        *domain.BacktestResult
	saveResultErr error
	createRunErr  error
}

func (r *fakeRepo) CreateRun(ctx context.Context, cfg *domain.BacktestConfig) (string, error) {
	if r.createRunErr != nil {
		return "", r.createRunErr
	}
	return "run-1", nil
}

func (r *fakeRepo) UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	r.errorMessages = append(r.errorMessages, errorMessage)
	return nil
}

func (r *fakeRepo) InsertTrade(ctx context.Context, runID string, order *domain.Order, direction domain.TradeDirection, state domain.TradeState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, order)
	return nil
}

func (r *fakeRepo) InsertSnapshot(ctx context.Context, snap *domain.PerformanceSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snap)
	return nil
}

func (r *fakeRepo) SaveResult(ctx context.Context, result *domain.BacktestResult) error {
	if r.saveResultErr != nil {
		return r.saveResultErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = result
	return nil
}

func (r *fakeRepo) snapshotCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

// capturePublisher records all published events.
type capturePublisher struct {
	mu     sync.Mutex
	events []ports.Event
}

func (p *capturePublisher) Publish(event ports.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) byKind(kind ports.EventKind) []ports.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []ports.Event
	for _, e := range p.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// scriptedStrategy drives the engine with per-bar hooks.
type scriptedStrategy struct {
	onBar   func(barIndex int, bar *domain.Bar, view ports.BrokerView) (*domain.Signal, error)
	barSeen int
}

func (s *scriptedStrategy) ID() string                          { return "scripted" }
func (s *scriptedStrategy) Name() string                        { return "Scripted" }
func (s *scriptedStrategy) Description() string                 { return "test strategy" }
func (s *scriptedStrategy) Params() map[string]float64          { return nil }
func (s *scriptedStrategy) Initialize(map[string]float64) error { return nil }
func (s *scriptedStrategy) OnStart(context.Context, float64) error {
	return nil
}
func (s *scriptedStrategy) OnBar(ctx context.Context, bar *domain.Bar, view ports.BrokerView) (*domain.Signal, error) {
	idx := s.barSeen
	s.barSeen++
	if s.onBar == nil {
		return nil, nil
	}
	return s.onBar(idx, bar, view)
}
func (s *scriptedStrategy) OnEnd(context.Context, *domain.Portfolio) error { return nil }

func scriptedRegistry(t *testing.T, onBar func(int, *domain.Bar, ports.BrokerView) (*domain.Signal, error)) *strategy.Registry {
	t.Helper()
	r := strategy.NewRegistry()
	require.NoError(t, r.Register(func() strategy.Strategy {
		return &scriptedStrategy{onBar: onBar}
	}))
	return r
}

func testBars(n int, startPrice, step float64) []*domain.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]*domain.Bar, n)
	price := startPrice
	for i := range bars {
		bars[i] = &domain.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Symbol:    "BTCUSDT",
			Interval:  "1d",
			Open:      price, High: price, Low: price, Close: price,
			Volume: 1,
		}
		price += step
	}
	return bars
}

func testConfig() domain.BacktestConfig {
	return domain.BacktestConfig{
		StrategyID:     "scripted",
		Symbol:         "BTCUSDT",
		Interval:       "1d",
		StartTime:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		InitialCapital: 10000,
		CommissionRate: 0.001,
		SlippageRate:   0.0005,
	}
}

// buyThenSell buys a fixed quantity on one bar and flattens on another.
func buyThenSell(buyBar, sellBar int, qty float64) func(int, *domain.Bar, ports.BrokerView) (*domain.Signal, error) {
	return func(idx int, bar *domain.Bar, view ports.BrokerView) (*domain.Signal, error) {
		switch idx {
		case buyBar:
			return &domain.Signal{Symbol: bar.Symbol, Action: domain.ActionBuy, Quantity: qty, Timestamp: bar.Timestamp}, nil
		case sellBar:
			pos := view.GetPosition(bar.Symbol)
			if pos == nil {
				return nil, nil
			}
			return &domain.Signal{Symbol: bar.Symbol, Action: domain.ActionSell, Quantity: pos.Quantity, Timestamp: bar.Timestamp}, nil
		}
		return nil, nil
	}
}

func TestEngine_CompletedRun(t *testing.T) {
	repo := &fakeRepo{}
	pub := &capturePublisher{}
	bars := testBars(25, 100, 1)

	eng, err := New(testConfig(), Deps{
		Logger:     &mockLogger{},
		DataSource: &memorySource{bars: bars},
		Repository: repo,
		Events:     pub,
		Registry:   scriptedRegistry(t, buyThenSell(2, 10, 1.0)),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RunPending, eng.Status())

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, domain.RunCompleted, eng.Status())
	assert.Equal(t, "run-1", result.RunID)
	assert.Len(t, result.EquityCurve, len(bars))
	assert.Len(t, result.DrawdownCurve, len(bars))
	assert.NotNil(t, result.Metrics)
	assert.Equal(t, 1, result.Metrics.TotalTrades)

	// Both fills were persisted, and the final result was saved.
	assert.Len(t, repo.trades, 2)
	require.NotNil(t, repo.result)
	assert.Equal(t, "run-1", repo.result.RunID)
	assert.Contains(t, repo.statuses, domain.RunRunning)
	assert.Contains(t, repo.statuses, domain.RunCompleted)

	// 25 bars with the default interval of 10: snapshots at bars 10, 20, 25.
	assert.Equal(t, 3, repo.snapshotCount())
	assert.NotEmpty(t, pub.byKind(ports.EventProgress))
	complete := pub.byKind(ports.EventComplete)
	require.Len(t, complete, 1)
	assert.Equal(t, "run-1", complete[0].RunID)
	require.NotNil(t, complete[0].Result)

	// Final progress event reports 100%.
	progress := pub.byKind(ports.EventProgress)
	assert.InDelta(t, 100.0, progress[len(progress)-1].PercentComplete, 1e-9)
}

func TestEngine_DeterministicAcrossRuns(t *testing.T) {
	bars := testBars(40, 100, 2)

	run := func() *domain.BacktestResult {
		eng, err := New(testConfig(), Deps{
			Logger:     &mockLogger{},
			DataSource: &memorySource{bars: bars},
			Repository: &fakeRepo{},
			Registry:   scriptedRegistry(t, buyThenSell(5, 30, 2.0)),
		})
		require.NoError(t, err)
		result, err := eng.Run(context.Background())
		require.NoError(t, err)
		return result
	}

	first := run()
	second := run()

	require.Len(t, second.EquityCurve, len(first.EquityCurve))
	for i := range first.EquityCurve {
		assert.Equal(t, first.EquityCurve[i].Value, second.EquityCurve[i].Value, "equity curves must match bar for bar")
	}
	require.Len(t, second.Orders, len(first.Orders))
	for i := range first.Orders {
		assert.Equal(t, first.Orders[i].FilledPrice, second.Orders[i].FilledPrice)
		assert.Equal(t, first.Orders[i].Commission, second.Orders[i].Commission)
	}
	assert.Equal(t, first.Metrics.TotalReturn, second.Metrics.TotalReturn)
	assert.Equal(t, first.Metrics.SharpeRatio, second.Metrics.SharpeRatio)
}

func TestEngine_EmptyBarsFailsRun(t *testing.T) {
	repo := &fakeRepo{}
	pub := &capturePublisher{}

	eng, err := New(testConfig(), Deps{
		Logger:     &mockLogger{},
		DataSource: &memorySource{bars: nil},
		Repository: repo,
		Events:     pub,
		Registry:   scriptedRegistry(t, nil),
	})
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrNoHistoricalData)
	assert.Equal(t, domain.RunFailed, eng.Status())

	// The failure reason lands on the run record and the failed event.
	require.NotEmpty(t, repo.statuses)
	assert.Equal(t, domain.RunFailed, repo.statuses[len(repo.statuses)-1])
	assert.NotEmpty(t, repo.errorMessages[len(repo.errorMessages)-1])
	failed := pub.byKind(ports.EventFailed)
	require.Len(t, failed, 1)
	assert.Error(t, failed[0].Err)
}

func TestEngine_StrategyErrorIsFatal(t *testing.T) {
	eng, err := New(testConfig(), Deps{
		Logger:     &mockLogger{},
		DataSource: &memorySource{bars: testBars(10, 100, 1)},
		Repository: &fakeRepo{},
		Registry: scriptedRegistry(t, func(idx int, bar *domain.Bar, view ports.BrokerView) (*domain.Signal, error) {
			if idx == 3 {
				return nil, fmt.Errorf("indicator blew up")
			}
			return nil, nil
		}),
	})
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrStrategyExecution)
	assert.Equal(t, domain.RunFailed, eng.Status())
}

func TestEngine_RejectedOrderDoesNotAbortRun(t *testing.T) {
	eng, err := New(testConfig(), Deps{
		Logger:     &mockLogger{},
		DataSource: &memorySource{bars: testBars(10, 100, 1)},
		Repository: &fakeRepo{},
		// Asking for far more than the capital affords forces a rejection.
		Registry: scriptedRegistry(t, buyThenSell(2, 8, 1e6)),
	})
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, eng.Status())

	var rejected int
	for _, order := range result.Orders {
		if order.Status == domain.OrderRejected {
			rejected++
		}
	}
	assert.Equal(t, 1, rejected, "the rejected order stays in the history")
	assert.Zero(t, result.Metrics.TotalTrades)
}

func TestEngine_CancellationBetweenBars(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eng, err := New(testConfig(), Deps{
		Logger:     &mockLogger{},
		DataSource: &memorySource{bars: testBars(100, 100, 1)},
		Repository: &fakeRepo{},
		Registry: scriptedRegistry(t, func(idx int, bar *domain.Bar, view ports.BrokerView) (*domain.Signal, error) {
			if idx == 5 {
				cancel()
			}
			return nil, nil
		}),
	})
	require.NoError(t, err)

	_, err = eng.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.RunFailed, eng.Status())
}

func TestEngine_SaveResultFailureSurfaced(t *testing.T) {
	repo := &fakeRepo{saveResultErr: fmt.Errorf("disk full")}
	eng, err := New(testConfig(), Deps{
		Logger:     &mockLogger{},
		DataSource: &memorySource{bars: testBars(10, 100, 1)},
		Repository: repo,
		Registry:   scriptedRegistry(t, nil),
	})
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrPersistence)
	assert.Equal(t, domain.RunFailed, eng.Status())
}

func TestEngine_UnknownStrategyFailsRun(t *testing.T) {
	cfg := testConfig()
	cfg.StrategyID = "missing"
	eng, err := New(cfg, Deps{
		Logger:     &mockLogger{},
		DataSource: &memorySource{bars: testBars(10, 100, 1)},
		Repository: &fakeRepo{},
		Registry:   scriptedRegistry(t, nil),
	})
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.Equal(t, domain.RunFailed, eng.Status())
}

func TestEngine_ConfigValidation(t *testing.T) {
	deps := Deps{
		Logger:     &mockLogger{},
		DataSource: &memorySource{},
		Repository: &fakeRepo{},
		Registry:   strategy.NewRegistry(),
	}

	cfg := testConfig()
	cfg.InitialCapital = 0
	_, err := New(cfg, deps)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	cfg = testConfig()
	cfg.EndTime = cfg.StartTime
	_, err = New(cfg, deps)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	cfg = testConfig()
	_, err = New(cfg, Deps{})
	assert.Error(t, err)
}
