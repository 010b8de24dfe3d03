package domain

import (
	"encoding/json"
	"math"
	"time"
)

// EquityPoint is one sample of total portfolio value on the equity curve.
type EquityPoint struct {
	Time  time.Time
	Value float64
}

// PerformanceSnapshot is the periodic telemetry row persisted during a run.
type PerformanceSnapshot struct {
	RunID          string
	Timestamp      time.Time
	PortfolioValue float64
	CashBalance    float64
	PositionValue  float64
	TotalReturn    float64
	Drawdown       float64
}

// PerformanceMetrics holds the return, risk and trade-quality metrics
// computed once at run completion.
type PerformanceMetrics struct {
	TotalReturn         float64 `json:"total_return"`
	AnnualizedReturn    float64 `json:"annualized_return"`
	SharpeRatio         float64 `json:"sharpe_ratio"`
	MaxDrawdown         float64 `json:"max_drawdown"`
	MaxDrawdownDuration int     `json:"max_drawdown_duration"` // Longest span below a prior peak, in bars
	WinRate             float64 `json:"win_rate"`
	ProfitFactor        float64 `json:"profit_factor"` // +Inf when there are wins but no losses
	TotalTrades         int     `json:"total_trades"`
	WinningTrades       int     `json:"winning_trades"`
	LosingTrades        int     `json:"losing_trades"`
	AverageWin          float64 `json:"average_win"`
	AverageLoss         float64 `json:"average_loss"`
	LargestWin          float64 `json:"largest_win"`
	LargestLoss         float64 `json:"largest_loss"`
}

// profitFactorInf is the JSON encoding of an infinite profit factor, which
// occurs whenever a run closes winning trades and no losing ones. Plain
// float64 JSON cannot carry +Inf.
const profitFactorInf = "inf"

// metricsAlias breaks the MarshalJSON recursion.
type metricsAlias PerformanceMetrics

type metricsJSON struct {
	metricsAlias
	ProfitFactor json.RawMessage `json:"profit_factor"`
}

// MarshalJSON encodes an infinite profit factor as the string "inf" so a
// loss-free run can still be persisted.
func (m PerformanceMetrics) MarshalJSON() ([]byte, error) {
	out := metricsJSON{metricsAlias: metricsAlias(m)}
	if math.IsInf(m.ProfitFactor, 1) {
		out.ProfitFactor = json.RawMessage(`"` + profitFactorInf + `"`)
	} else {
		raw, err := json.Marshal(m.ProfitFactor)
		if err != nil {
			return nil, err
		}
		out.ProfitFactor = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (m *PerformanceMetrics) UnmarshalJSON(data []byte) error {
	var in metricsJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = PerformanceMetrics(in.metricsAlias)
	if len(in.ProfitFactor) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(in.ProfitFactor, &s); err == nil && s == profitFactorInf {
		m.ProfitFactor = math.Inf(1)
		return nil
	}
	return json.Unmarshal(in.ProfitFactor, &m.ProfitFactor)
}

// BacktestResult is assembled once, at successful completion of a run.
type BacktestResult struct {
	RunID          string
	Config         BacktestConfig
	Metrics        *PerformanceMetrics
	Orders         []*Order
	EquityCurve    []EquityPoint
	DrawdownCurve  []float64 // Fractional drawdown aligned with EquityCurve
	FinalPortfolio *Portfolio
	CompletedAt    time.Time
}
