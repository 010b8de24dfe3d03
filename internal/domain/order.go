package domain

import "time"

// Order records one order submission and its outcome. Once the status is
// filled or rejected the order is never mutated again.
type Order struct {
	ID          string      // Unique identifier assigned by the broker
	Symbol      string      // Trading symbol (e.g., "BTCUSDT")
	Side        OrderSide   // BUY or SELL
	Type        OrderType   // MARKET or LIMIT
	Quantity    float64     // Requested quantity
	LimitPrice  float64     // Limit price (0 for market orders)
	Status      OrderStatus // pending, filled or rejected
	Timestamp   time.Time   // Broker clock time at submission
	FilledPrice float64     // Execution price including slippage (0 if rejected)
	Commission  float64     // Commission charged on the fill
	Slippage    float64     // |execution price - observed price| for market fills
	RealizedPNL float64     // Realized P&L for closing fills, 0 otherwise
	Reason      string      // Human-readable rejection reason, empty on fills
}

// IsFilled reports whether the order executed.
func (o *Order) IsFilled() bool {
	return o.Status == OrderFilled
}
