package strategies

import (
	"context"
	"fmt"

	"backsim/internal/domain"
	"backsim/internal/ports"
	"backsim/internal/strategy/indicators"
)

// RSIReversionID is the registry identity of the mean-reversion strategy.
const RSIReversionID = "rsi_reversion"

// RSIReversion buys when the RSI drops below the oversold threshold and
// sells the position when it rises above the overbought threshold. It stays
// silent until the RSI warm-up window has been observed.
type RSIReversion struct {
	*BaseStrategy
	rsi *indicators.RSI
}

// NewRSIReversion creates the strategy with its default parameters.
func NewRSIReversion(logger ports.Logger) *RSIReversion {
	return &RSIReversion{
		BaseStrategy: NewBaseStrategy(logger, map[string]float64{
			"period":       14,
			"oversold":     30,
			"overbought":   70,
			"position_pct": defaultPositionPct,
		}),
	}
}

// ID returns the registry identity.
func (r *RSIReversion) ID() string { return RSIReversionID }

// Name returns the display name.
func (r *RSIReversion) Name() string { return "RSI Mean Reversion" }

// Description returns a short description of the strategy.
func (r *RSIReversion) Description() string {
	return "Buys below the oversold RSI threshold, sells above the overbought threshold"
}

// Initialize merges parameters and builds the RSI indicator.
func (r *RSIReversion) Initialize(params map[string]float64) error {
	r.merge(params)

	period := int(r.param("period"))
	oversold := r.param("oversold")
	overbought := r.param("overbought")
	if period <= 0 {
		return fmt.Errorf("%w: RSI period must be positive", ports.ErrInvalidRequest)
	}
	if oversold < 0 || overbought > 100 || oversold >= overbought {
		return fmt.Errorf("%w: RSI thresholds must satisfy 0 <= oversold < overbought <= 100", ports.ErrInvalidRequest)
	}
	if pct := r.param("position_pct"); pct <= 0 || pct > 1 {
		return fmt.Errorf("%w: position_pct must be in (0,1]", ports.ErrInvalidRequest)
	}

	r.rsi = indicators.NewRSI(indicators.RSIConfig{
		IndicatorConfig: indicators.IndicatorConfig{Period: period},
		Overbought:      overbought,
		Oversold:        oversold,
	})
	return nil
}

// OnStart is invoked once before the first bar.
func (r *RSIReversion) OnStart(ctx context.Context, initialCapital float64) error {
	r.logger.Info(ctx, "RSI reversion starting", map[string]interface{}{
		"period":         int(r.param("period")),
		"oversold":       r.param("oversold"),
		"overbought":     r.param("overbought"),
		"initialCapital": initialCapital,
	})
	return nil
}

// OnBar evaluates the RSI thresholds on the bar just observed.
func (r *RSIReversion) OnBar(ctx context.Context, bar *domain.Bar, view ports.BrokerView) (*domain.Signal, error) {
	r.observe(bar)
	if len(r.bars) < r.rsi.RequiredDataPoints() {
		return nil, nil
	}

	value, err := r.rsi.Calculate(ctx, r.bars)
	if err != nil {
		return nil, fmt.Errorf("RSI: %w", err)
	}

	position := view.GetPosition(bar.Symbol)

	switch {
	case r.rsi.IsOversold(value) && position == nil:
		qty := r.buyQuantity(view, bar.Close)
		if qty <= 0 {
			return nil, nil
		}
		return &domain.Signal{
			Symbol:    bar.Symbol,
			Action:    domain.ActionBuy,
			Quantity:  qty,
			Reason:    fmt.Sprintf("RSI %.2f below oversold threshold %.2f", value, r.param("oversold")),
			Timestamp: bar.Timestamp,
		}, nil
	case r.rsi.IsOverbought(value) && position != nil:
		return &domain.Signal{
			Symbol:    bar.Symbol,
			Action:    domain.ActionSell,
			Quantity:  position.Quantity,
			Reason:    fmt.Sprintf("RSI %.2f above overbought threshold %.2f", value, r.param("overbought")),
			Timestamp: bar.Timestamp,
		}, nil
	}
	return nil, nil
}

// OnEnd is invoked once after the last bar.
func (r *RSIReversion) OnEnd(ctx context.Context, portfolio *domain.Portfolio) error {
	r.logger.Info(ctx, "RSI reversion finished", map[string]interface{}{
		"finalValue":  portfolio.TotalValue(),
		"totalReturn": portfolio.TotalReturn(),
	})
	return nil
}
