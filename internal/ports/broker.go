package ports

import "backsim/internal/domain"

// BrokerView is the read-only slice of broker state a strategy may consult
// while deciding on a bar. Strategies must not mutate broker state directly;
// they act by returning a signal for the engine to execute.
type BrokerView interface {
	// GetPosition returns the open position for a symbol, or nil.
	GetPosition(symbol string) *domain.Position
	// GetPortfolio returns a snapshot of cash, positions and total value.
	GetPortfolio() *domain.Portfolio
	// LastPrice returns the most recent observed price for a symbol and
	// whether one has been recorded.
	LastPrice(symbol string) (float64, bool)
}

// Broker is the sole authority for cash, positions and fills within a run.
type Broker interface {
	BrokerView

	// UpdatePrice records the latest observed price for a symbol and
	// remarks any open position in it.
	UpdatePrice(symbol string, price float64)
	// SubmitOrder executes an order against the latest known price with
	// commission and slippage applied. On rejection the returned order has
	// status rejected and the error carries the rejection sentinel.
	SubmitOrder(symbol string, side domain.OrderSide, typ domain.OrderType, quantity, limitPrice float64) (*domain.Order, error)
	// Orders returns the full order history, fills and rejections alike,
	// in submission order.
	Orders() []*domain.Order
}
