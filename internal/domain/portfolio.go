package domain

// Portfolio holds the cash balance and open positions of one broker
// instance. It is owned by exactly one broker and never shared across runs.
type Portfolio struct {
	Cash           float64              // Free cash balance
	Positions      map[string]*Position // Open positions keyed by symbol
	InitialCapital float64              // Starting capital, never mutated
}

// TotalValue returns cash plus the market value of all open positions.
func (p *Portfolio) TotalValue() float64 {
	total := p.Cash
	for _, pos := range p.Positions {
		total += pos.MarketValue()
	}
	return total
}

// TotalReturn returns the fractional return relative to the initial capital.
func (p *Portfolio) TotalReturn() float64 {
	if p.InitialCapital == 0 {
		return 0
	}
	return (p.TotalValue() - p.InitialCapital) / p.InitialCapital
}

// Clone returns a deep copy, safe to hand out as a snapshot.
func (p *Portfolio) Clone() *Portfolio {
	c := &Portfolio{
		Cash:           p.Cash,
		Positions:      make(map[string]*Position, len(p.Positions)),
		InitialCapital: p.InitialCapital,
	}
	for sym, pos := range p.Positions {
		c.Positions[sym] = pos.Clone()
	}
	return c
}
