package provider

import (
	"context"
	"errors"

	"levelflow/logger"
)

// ErrUnavailable marks a price that no provider in a chain could supply.
var ErrUnavailable = errors.New("no provider returned a price")

// PriceProvider fetches the current price of one symbol. ok is false when
// the provider answered but had no usable quote for the symbol; err is
// reserved for transport and protocol failures.
type PriceProvider interface {
	Name() string
	GetPrice(ctx context.Context, symbol string) (price float64, ok bool, err error)
}

// Chain resolves a price by trying symbols in order against one provider.
// The first symbol that yields a valid quote wins; later symbols are never
// consulted.
type Chain struct {
	provider PriceProvider
	log      *logger.Log
}

// NewChain wraps a provider with ordered-fallback symbol resolution.
func NewChain(p PriceProvider) *Chain {
	return &Chain{provider: p, log: logger.GetLogger()}
}

// Resolve tries each symbol in order and returns the first valid price
// together with the symbol that produced it. Per-symbol failures are
// logged and skipped; only exhausting the list is an error.
func (c *Chain) Resolve(ctx context.Context, symbols []string) (float64, string, error) {
	log := c.log.WithComponent("provider_chain").WithFields(logger.Fields{
		"provider": c.provider.Name(),
	})

	for _, symbol := range symbols {
		logger.IncrementProviderCall()
		price, ok, err := c.provider.GetPrice(ctx, symbol)
		if err != nil {
			logger.IncrementProviderFailure()
			log.WithError(err).WithFields(logger.Fields{
				"symbol": symbol,
			}).Warn("provider call failed, trying next symbol")
			continue
		}
		if !ok {
			log.WithFields(logger.Fields{
				"symbol": symbol,
			}).Debug("no quote for symbol, trying next")
			continue
		}
		return price, symbol, nil
	}

	return 0, "", ErrUnavailable
}
