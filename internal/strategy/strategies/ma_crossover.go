package strategies

import (
	"context"
	"fmt"

	"backsim/internal/domain"
	"backsim/internal/ports"
	"backsim/internal/strategy/indicators"
)

// MACrossoverID is the registry identity of the crossover strategy.
const MACrossoverID = "ma_crossover"

// MACrossover trades simple moving average crossovers: it buys when the
// fast MA crosses above the slow MA and flattens the position on the
// cross-under. No signal is produced until the warm-up window has been
// observed.
type MACrossover struct {
	*BaseStrategy
	fastMA *indicators.MovingAverage
	slowMA *indicators.MovingAverage
}

// NewMACrossover creates the strategy with its default parameters.
func NewMACrossover(logger ports.Logger) *MACrossover {
	return &MACrossover{
		BaseStrategy: NewBaseStrategy(logger, map[string]float64{
			"fast_period":  10,
			"slow_period":  30,
			"position_pct": defaultPositionPct,
		}),
	}
}

// ID returns the registry identity.
func (m *MACrossover) ID() string { return MACrossoverID }

// Name returns the display name.
func (m *MACrossover) Name() string { return "Moving Average Crossover" }

// Description returns a short description of the strategy.
func (m *MACrossover) Description() string {
	return "Buys on fast-over-slow SMA cross, sells the position on cross-under"
}

// Initialize merges parameters and builds the indicators.
func (m *MACrossover) Initialize(params map[string]float64) error {
	m.merge(params)

	fast := int(m.param("fast_period"))
	slow := int(m.param("slow_period"))
	if fast <= 0 || slow <= 0 {
		return fmt.Errorf("%w: MA periods must be positive", ports.ErrInvalidRequest)
	}
	if fast >= slow {
		return fmt.Errorf("%w: fast period must be less than slow period", ports.ErrInvalidRequest)
	}
	if pct := m.param("position_pct"); pct <= 0 || pct > 1 {
		return fmt.Errorf("%w: position_pct must be in (0,1]", ports.ErrInvalidRequest)
	}

	m.fastMA = indicators.NewMovingAverage(indicators.MovingAverageConfig{
		IndicatorConfig: indicators.IndicatorConfig{Period: fast},
		Type:            indicators.SimpleMovingAverage,
	})
	m.slowMA = indicators.NewMovingAverage(indicators.MovingAverageConfig{
		IndicatorConfig: indicators.IndicatorConfig{Period: slow},
		Type:            indicators.SimpleMovingAverage,
	})
	return nil
}

// OnStart is invoked once before the first bar.
func (m *MACrossover) OnStart(ctx context.Context, initialCapital float64) error {
	m.logger.Info(ctx, "MA crossover starting", map[string]interface{}{
		"fastPeriod":     int(m.param("fast_period")),
		"slowPeriod":     int(m.param("slow_period")),
		"initialCapital": initialCapital,
	})
	return nil
}

// warmUp is the number of bars needed before both the current and the
// previous slow MA can be computed.
func (m *MACrossover) warmUp() int {
	return int(m.param("slow_period")) + 1
}

// OnBar evaluates the crossover on the bar just observed.
func (m *MACrossover) OnBar(ctx context.Context, bar *domain.Bar, view ports.BrokerView) (*domain.Signal, error) {
	m.observe(bar)
	if len(m.bars) < m.warmUp() {
		return nil, nil
	}

	fast, err := m.fastMA.Calculate(ctx, m.bars)
	if err != nil {
		return nil, fmt.Errorf("fast MA: %w", err)
	}
	slow, err := m.slowMA.Calculate(ctx, m.bars)
	if err != nil {
		return nil, fmt.Errorf("slow MA: %w", err)
	}
	prevBars := m.bars[:len(m.bars)-1]
	prevFast, err := m.fastMA.Calculate(ctx, prevBars)
	if err != nil {
		return nil, fmt.Errorf("previous fast MA: %w", err)
	}
	prevSlow, err := m.slowMA.Calculate(ctx, prevBars)
	if err != nil {
		return nil, fmt.Errorf("previous slow MA: %w", err)
	}

	position := view.GetPosition(bar.Symbol)

	crossedAbove := prevFast <= prevSlow && fast > slow
	crossedBelow := prevFast >= prevSlow && fast < slow

	switch {
	case crossedAbove && position == nil:
		qty := m.buyQuantity(view, bar.Close)
		if qty <= 0 {
			return nil, nil
		}
		return &domain.Signal{
			Symbol:    bar.Symbol,
			Action:    domain.ActionBuy,
			Quantity:  qty,
			Reason:    fmt.Sprintf("fast MA %.4f crossed above slow MA %.4f", fast, slow),
			Timestamp: bar.Timestamp,
		}, nil
	case crossedBelow && position != nil:
		return &domain.Signal{
			Symbol:    bar.Symbol,
			Action:    domain.ActionSell,
			Quantity:  position.Quantity,
			Reason:    fmt.Sprintf("fast MA %.4f crossed below slow MA %.4f", fast, slow),
			Timestamp: bar.Timestamp,
		}, nil
	}
	return nil, nil
}

// OnEnd is invoked once after the last bar.
func (m *MACrossover) OnEnd(ctx context.Context, portfolio *domain.Portfolio) error {
	m.logger.Info(ctx, "MA crossover finished", map[string]interface{}{
		"finalValue":  portfolio.TotalValue(),
		"totalReturn": portfolio.TotalReturn(),
	})
	return nil
}
