package strategies

import (
	"backsim/internal/ports"
	"backsim/internal/strategy"
)

// BuiltinFactories returns factories for every strategy shipped with the
// binary, ready to be registered.
func BuiltinFactories(logger ports.Logger) []strategy.Factory {
	return []strategy.Factory{
		func() strategy.Strategy { return NewMACrossover(logger) },
		func() strategy.Strategy { return NewRSIReversion(logger) },
	}
}
