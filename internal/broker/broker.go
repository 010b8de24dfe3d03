// Package broker implements the simulated broker: the sole authority for
// cash, positions and fills within one backtest run.
package broker

import (
	"context"
	"fmt"
	"math"

	"backsim/internal/clock"
	"backsim/internal/domain"
	"backsim/internal/ports"

	"github.com/google/uuid"
)

// Config holds construction parameters for the simulated broker.
type Config struct {
	InitialCapital float64     // Starting cash, must be positive
	CommissionRate float64     // Commission as a fraction of notional
	SlippageRate   float64     // Slippage as a fraction of price
	Clock          clock.Clock // Supplies order timestamps
	Logger         ports.Logger
}

// SimulatedBroker executes orders against the latest observed price with
// commission and slippage applied. It is not safe for concurrent use; each
// run owns exactly one instance.
type SimulatedBroker struct {
	cfg        Config
	cash       float64
	positions  map[string]*domain.Position
	lastPrices map[string]float64
	orders     []*domain.Order
}

// New creates a simulated broker.
func New(cfg Config) (*SimulatedBroker, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for broker")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("clock is required for broker")
	}
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("%w: initial capital must be positive", ports.ErrConfigurationError)
	}
	if cfg.CommissionRate < 0 || cfg.SlippageRate < 0 {
		return nil, fmt.Errorf("%w: commission and slippage rates cannot be negative", ports.ErrConfigurationError)
	}
	return &SimulatedBroker{
		cfg:        cfg,
		cash:       cfg.InitialCapital,
		positions:  make(map[string]*domain.Position),
		lastPrices: make(map[string]float64),
		orders:     make([]*domain.Order, 0),
	}, nil
}

// UpdatePrice records the latest observed price for a symbol and remarks any
// open position in it. No other side effects.
func (b *SimulatedBroker) UpdatePrice(symbol string, price float64) {
	b.lastPrices[symbol] = price
	if pos, ok := b.positions[symbol]; ok {
		pos.MarkPrice = price
	}
}

// LastPrice returns the most recent observed price for a symbol.
func (b *SimulatedBroker) LastPrice(symbol string) (float64, bool) {
	price, ok := b.lastPrices[symbol]
	return price, ok
}

// GetPosition returns a copy of the open position for a symbol, or nil.
func (b *SimulatedBroker) GetPosition(symbol string) *domain.Position {
	pos, ok := b.positions[symbol]
	if !ok {
		return nil
	}
	return pos.Clone()
}

// GetPortfolio returns a snapshot of cash, positions and initial capital.
func (b *SimulatedBroker) GetPortfolio() *domain.Portfolio {
	p := &domain.Portfolio{
		Cash:           b.cash,
		Positions:      make(map[string]*domain.Position, len(b.positions)),
		InitialCapital: b.cfg.InitialCapital,
	}
	for sym, pos := range b.positions {
		p.Positions[sym] = pos.Clone()
	}
	return p
}

// Orders returns the full order history in submission order.
func (b *SimulatedBroker) Orders() []*domain.Order {
	return b.orders
}

// SubmitOrder executes an order against the latest known price. Market
// orders fill at the observed price adjusted by slippage in the direction
// adverse to the trader; limit orders fill at the limit price as supplied.
// Rejected orders are recorded with status rejected and the rejection is
// returned as an error.
func (b *SimulatedBroker) SubmitOrder(symbol string, side domain.OrderSide, typ domain.OrderType, quantity, limitPrice float64) (*domain.Order, error) {
	order := &domain.Order{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Side:       side,
		Type:       typ,
		Quantity:   quantity,
		LimitPrice: limitPrice,
		Status:     domain.OrderPending,
		Timestamp:  b.cfg.Clock.Now(),
	}

	if quantity <= 0 {
		return b.reject(order, fmt.Errorf("%w: quantity must be positive", ports.ErrInvalidRequest))
	}

	observedPrice, ok := b.lastPrices[symbol]
	if !ok {
		return b.reject(order, fmt.Errorf("%w: %s", ports.ErrNoPriceData, symbol))
	}

	execPrice := b.executionPrice(side, typ, observedPrice, limitPrice)
	commission := execPrice * quantity * b.cfg.CommissionRate

	var err error
	switch side {
	case domain.Buy:
		err = b.fillBuy(symbol, quantity, execPrice, commission)
	case domain.Sell:
		err = b.fillSell(symbol, quantity, execPrice, commission, order)
	default:
		err = fmt.Errorf("%w: unknown order side %q", ports.ErrInvalidRequest, side)
	}
	if err != nil {
		return b.reject(order, err)
	}

	order.Status = domain.OrderFilled
	order.FilledPrice = execPrice
	order.Commission = commission
	if typ == domain.Market {
		order.Slippage = math.Abs(execPrice - observedPrice)
	}
	b.orders = append(b.orders, order)

	b.cfg.Logger.Debug(context.Background(), "Order filled", map[string]interface{}{
		"orderID":    order.ID,
		"symbol":     symbol,
		"side":       side,
		"quantity":   quantity,
		"price":      execPrice,
		"commission": commission,
		"cash":       b.cash,
	})
	return order, nil
}

// executionPrice applies the deterministic slippage model. Market buys fill
// above the observed price, market sells below it; limit orders fill at the
// supplied price with no slippage.
func (b *SimulatedBroker) executionPrice(side domain.OrderSide, typ domain.OrderType, observed, limit float64) float64 {
	if typ == domain.Limit {
		return limit
	}
	if side == domain.Buy {
		return observed * (1 + b.cfg.SlippageRate)
	}
	return observed * (1 - b.cfg.SlippageRate)
}

// fillBuy debits cash and creates or volume-weight-averages the position.
// Cash can never go negative as a result of a fill.
func (b *SimulatedBroker) fillBuy(symbol string, quantity, price, commission float64) error {
	cost := price*quantity + commission
	if cost > b.cash {
		return fmt.Errorf("%w: need %.8f, have %.8f", ports.ErrInsufficientFunds, cost, b.cash)
	}
	b.cash -= cost

	pos, ok := b.positions[symbol]
	if !ok {
		b.positions[symbol] = &domain.Position{
			Symbol:        symbol,
			Quantity:      quantity,
			AvgEntryPrice: price,
			MarkPrice:     price,
		}
		return nil
	}
	// Volume-weighted average entry price across the old and new quantity.
	newQty := pos.Quantity + quantity
	pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Quantity + price*quantity) / newQty
	pos.Quantity = newQty
	pos.MarkPrice = price
	return nil
}

// fillSell credits cash net of commission and realizes P&L against the
// volume-weighted entry price. Long-only: selling beyond the held quantity
// is rejected, never creating a short position.
func (b *SimulatedBroker) fillSell(symbol string, quantity, price, commission float64, order *domain.Order) error {
	pos, ok := b.positions[symbol]
	if !ok {
		return fmt.Errorf("%w: no open position in %s", ports.ErrInsufficientPosition, symbol)
	}
	if quantity > pos.Quantity {
		return fmt.Errorf("%w: selling %.8f, holding %.8f", ports.ErrInsufficientPosition, quantity, pos.Quantity)
	}

	proceeds := price*quantity - commission
	b.cash += proceeds

	realized := (price - pos.AvgEntryPrice) * quantity
	pos.RealizedPNL += realized
	pos.Quantity -= quantity
	pos.MarkPrice = price
	order.RealizedPNL = realized

	// A fully closed position is removed, never left at zero quantity.
	if pos.Quantity == 0 {
		delete(b.positions, symbol)
	}
	return nil
}

// reject records the order with status rejected and surfaces the cause.
func (b *SimulatedBroker) reject(order *domain.Order, cause error) (*domain.Order, error) {
	order.Status = domain.OrderRejected
	order.Reason = cause.Error()
	b.orders = append(b.orders, order)
	b.cfg.Logger.Debug(context.Background(), "Order rejected", map[string]interface{}{
		"orderID": order.ID,
		"symbol":  order.Symbol,
		"side":    order.Side,
		"reason":  order.Reason,
	})
	return order, cause
}

// Cash returns the current free cash balance.
func (b *SimulatedBroker) Cash() float64 { return b.cash }
