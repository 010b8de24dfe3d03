// Package analytics computes performance metrics from a completed run's
// order history and equity curve. Everything here is pure and stateless.
package analytics

import (
	"math"

	"backsim/internal/domain"
)

const (
	// tradingDaysPerYear is the conventional annualization basis.
	tradingDaysPerYear = 252

	// riskFreeRate is the per-period risk-free rate used in the Sharpe
	// ratio. The simulation's accounting carries no funding leg, so it
	// stays at zero.
	riskFreeRate = 0.0
)

// Compute derives the full metric set from the order history, the equity
// curve and the initial capital. It never mutates its inputs.
func Compute(orders []*domain.Order, equityCurve []domain.EquityPoint, initialCapital float64) *domain.PerformanceMetrics {
	m := &domain.PerformanceMetrics{}

	if len(equityCurve) > 0 && initialCapital > 0 {
		finalValue := equityCurve[len(equityCurve)-1].Value
		m.TotalReturn = (finalValue - initialCapital) / initialCapital
		m.AnnualizedReturn = annualize(m.TotalReturn, equityCurve)
		m.SharpeRatio = sharpeRatio(equityCurve)
		m.MaxDrawdown, m.MaxDrawdownDuration = maxDrawdown(equityCurve)
	}

	computeTradeStats(m, orders)
	return m
}

// DrawdownCurve returns the fractional decline from the running peak for
// every equity point, aligned with the input curve.
func DrawdownCurve(equityCurve []domain.EquityPoint) []float64 {
	curve := make([]float64, len(equityCurve))
	peak := 0.0
	for i, pt := range equityCurve {
		if pt.Value > peak {
			peak = pt.Value
		}
		if peak > 0 {
			curve[i] = (peak - pt.Value) / peak
		}
	}
	return curve
}

// annualize scales the total return by 252 over the number of distinct
// calendar dates in the curve, so intraday bars do not inflate the factor.
func annualize(totalReturn float64, equityCurve []domain.EquityPoint) float64 {
	days := make(map[string]struct{})
	for _, pt := range equityCurve {
		days[pt.Time.Format("2006-01-02")] = struct{}{}
	}
	if len(days) == 0 {
		return 0
	}
	return totalReturn * tradingDaysPerYear / float64(len(days))
}

// sharpeRatio computes the annualized Sharpe ratio over period-over-period
// returns of the equity curve. It is defined as 0 when the return standard
// deviation is 0.
func sharpeRatio(equityCurve []domain.EquityPoint) float64 {
	if len(equityCurve) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(equityCurve)-1)
	for i := 1; i < len(equityCurve); i++ {
		prev := equityCurve[i-1].Value
		if prev == 0 {
			continue
		}
		returns = append(returns, equityCurve[i].Value/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	stdDev := math.Sqrt(variance)

	if stdDev == 0 {
		return 0
	}
	return (mean - riskFreeRate) / stdDev * math.Sqrt(tradingDaysPerYear)
}

// maxDrawdown returns the largest peak-to-trough fractional decline and the
// longest span, in bars, spent below a prior peak.
func maxDrawdown(equityCurve []domain.EquityPoint) (float64, int) {
	var maxDD float64
	var maxDuration, currentDuration int
	peak := 0.0

	for _, pt := range equityCurve {
		if pt.Value >= peak {
			peak = pt.Value
			currentDuration = 0
			continue
		}
		currentDuration++
		if currentDuration > maxDuration {
			maxDuration = currentDuration
		}
		if peak > 0 {
			dd := (peak - pt.Value) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD, maxDuration
}

// computeTradeStats fills the trade-quality metrics from the realized P&L
// of closing fills. Rejected orders and opening buys carry no realized P&L
// and are not trades for counting purposes.
func computeTradeStats(m *domain.PerformanceMetrics, orders []*domain.Order) {
	var grossWin, grossLoss float64

	for _, order := range orders {
		if !order.IsFilled() || order.Side != domain.Sell {
			continue
		}
		pnl := order.RealizedPNL
		m.TotalTrades++
		switch {
		case pnl > 0:
			m.WinningTrades++
			grossWin += pnl
			if pnl > m.LargestWin {
				m.LargestWin = pnl
			}
		case pnl < 0:
			m.LosingTrades++
			grossLoss += pnl
			if pnl < m.LargestLoss {
				m.LargestLoss = pnl
			}
		default:
			// Break-even closes count against the win rate but contribute
			// no gross loss; totalTrades must stay winning + losing.
			m.LosingTrades++
		}
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	}
	if m.WinningTrades > 0 {
		m.AverageWin = grossWin / float64(m.WinningTrades)
	}
	if grossLoss < 0 {
		m.AverageLoss = grossLoss / float64(m.LosingTrades)
		m.ProfitFactor = grossWin / math.Abs(grossLoss)
	} else if m.WinningTrades > 0 {
		m.ProfitFactor = math.Inf(1)
	}
}
