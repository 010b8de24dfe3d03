package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPosition_PNLAndValue(t *testing.T) {
	pos := &Position{Symbol: "BTCUSDT", Quantity: 0.5, AvgEntryPrice: 50000, MarkPrice: 52000}

	assert.InDelta(t, 1000.0, pos.UnrealizedPNL(), 1e-9)
	assert.InDelta(t, 26000.0, pos.MarketValue(), 1e-9)

	clone := pos.Clone()
	clone.Quantity = 99
	assert.InDelta(t, 0.5, pos.Quantity, 1e-12)
}

func TestPortfolio_TotalValueAndReturn(t *testing.T) {
	p := &Portfolio{
		Cash: 5000,
		Positions: map[string]*Position{
			"BTCUSDT": {Symbol: "BTCUSDT", Quantity: 0.1, AvgEntryPrice: 50000, MarkPrice: 55000},
		},
		InitialCapital: 10000,
	}

	assert.InDelta(t, 5000+5500, p.TotalValue(), 1e-9)
	assert.InDelta(t, 0.05, p.TotalReturn(), 1e-9)

	empty := &Portfolio{Positions: map[string]*Position{}}
	assert.Zero(t, empty.TotalReturn(), "zero initial capital must not divide by zero")
}

func TestPortfolio_CloneIsDeep(t *testing.T) {
	p := &Portfolio{
		Cash:           1000,
		Positions:      map[string]*Position{"ETHUSDT": {Symbol: "ETHUSDT", Quantity: 2}},
		InitialCapital: 1000,
	}

	c := p.Clone()
	c.Cash = 0
	c.Positions["ETHUSDT"].Quantity = 99

	assert.InDelta(t, 1000.0, p.Cash, 1e-12)
	assert.InDelta(t, 2.0, p.Positions["ETHUSDT"].Quantity, 1e-12)
}

func TestSignal_Actionable(t *testing.T) {
	tests := []struct {
		name   string
		signal *Signal
		want   bool
	}{
		{name: "nil signal", signal: nil, want: false},
		{name: "buy with quantity", signal: &Signal{Action: ActionBuy, Quantity: 1}, want: true},
		{name: "sell with quantity", signal: &Signal{Action: ActionSell, Quantity: 0.5}, want: true},
		{name: "hold", signal: &Signal{Action: ActionHold, Quantity: 1}, want: false},
		{name: "buy with zero quantity", signal: &Signal{Action: ActionBuy, Quantity: 0}, want: false},
		{name: "sell with negative quantity", signal: &Signal{Action: ActionSell, Quantity: -1}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.signal.Actionable())
		})
	}
}

func TestOrder_IsFilled(t *testing.T) {
	assert.True(t, (&Order{Status: OrderFilled}).IsFilled())
	assert.False(t, (&Order{Status: OrderRejected}).IsFilled())
	assert.False(t, (&Order{Status: OrderPending}).IsFilled())
}

func TestPerformanceMetrics_JSONRoundTrip(t *testing.T) {
	in := PerformanceMetrics{
		TotalReturn:         0.42,
		AnnualizedReturn:    0.84,
		SharpeRatio:         1.5,
		MaxDrawdown:         0.2,
		MaxDrawdownDuration: 7,
		WinRate:             0.6,
		ProfitFactor:        2.5,
		TotalTrades:         10,
		WinningTrades:       6,
		LosingTrades:        4,
		AverageWin:          120,
		AverageLoss:         -80,
		LargestWin:          300,
		LargestLoss:         -150,
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out PerformanceMetrics
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestPerformanceMetrics_JSONInfiniteProfitFactor(t *testing.T) {
	in := PerformanceMetrics{ProfitFactor: math.Inf(1), TotalTrades: 3, WinningTrades: 3}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out PerformanceMetrics
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, math.IsInf(out.ProfitFactor, 1))
	assert.Equal(t, 3, out.TotalTrades)
}
