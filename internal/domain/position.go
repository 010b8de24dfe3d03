package domain

// Position represents the open long exposure in one symbol. Quantity is
// always >= 0; a fully closed position is removed from the portfolio rather
// than kept at zero.
type Position struct {
	Symbol        string  // Trading symbol
	Quantity      float64 // Held quantity
	AvgEntryPrice float64 // Volume-weighted average entry price
	MarkPrice     float64 // Latest observed price
	RealizedPNL   float64 // Cumulative realized P&L from partial closes
}

// UnrealizedPNL returns the mark-to-market profit of the open quantity.
func (p *Position) UnrealizedPNL() float64 {
	return (p.MarkPrice - p.AvgEntryPrice) * p.Quantity
}

// MarketValue returns the current market value of the open quantity.
func (p *Position) MarketValue() float64 {
	return p.MarkPrice * p.Quantity
}

// Clone returns an independent copy of the position.
func (p *Position) Clone() *Position {
	c := *p
	return &c
}
