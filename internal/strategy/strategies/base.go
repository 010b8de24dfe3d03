// Package strategies contains the built-in strategy implementations.
package strategies

import (
	"backsim/internal/domain"
	"backsim/internal/ports"
)

const (
	// maxBarHistory bounds the in-memory bar window. The built-in
	// indicators only look at trailing windows far smaller than this.
	maxBarHistory = 500

	defaultPositionPct = 0.95
)

// BaseStrategy provides the bar history and parameter plumbing shared by
// the built-in strategies.
type BaseStrategy struct {
	logger ports.Logger
	params map[string]float64
	bars   []*domain.Bar
}

// NewBaseStrategy creates the shared strategy state.
func NewBaseStrategy(logger ports.Logger, defaults map[string]float64) *BaseStrategy {
	params := make(map[string]float64, len(defaults))
	for k, v := range defaults {
		params[k] = v
	}
	return &BaseStrategy{
		logger: logger,
		params: params,
		bars:   make([]*domain.Bar, 0, maxBarHistory),
	}
}

// Params returns the current parameter set.
func (b *BaseStrategy) Params() map[string]float64 {
	out := make(map[string]float64, len(b.params))
	for k, v := range b.params {
		out[k] = v
	}
	return out
}

// merge overlays the supplied parameters onto the defaults. Unknown keys
// are accepted silently; strategy-specific validation runs afterwards.
func (b *BaseStrategy) merge(params map[string]float64) {
	for k, v := range params {
		b.params[k] = v
	}
}

// param returns the current value for a parameter key.
func (b *BaseStrategy) param(key string) float64 {
	return b.params[key]
}

// observe appends a bar to the history, trimming the window when it grows
// past maxBarHistory.
func (b *BaseStrategy) observe(bar *domain.Bar) {
	b.bars = append(b.bars, bar)
	if len(b.bars) > maxBarHistory {
		b.bars = b.bars[len(b.bars)-maxBarHistory:]
	}
}

// buyQuantity sizes an entry from the portfolio's free cash, leaving
// headroom for commission and slippage via the position_pct parameter.
func (b *BaseStrategy) buyQuantity(view ports.BrokerView, price float64) float64 {
	pct := b.param("position_pct")
	if pct <= 0 || pct > 1 {
		pct = defaultPositionPct
	}
	if price <= 0 {
		return 0
	}
	return view.GetPortfolio().Cash * pct / price
}
