package collector

import (
	"context"

	"PriceWatch/internal/model"
)

// Fetcher fetches the current price of a symbol from a data provider.
// Failures are returned as *FetchError so callers can tell throttling apart from
// everything else.
type Fetcher interface {
	FetchQuote(ctx context.Context, symbol string) (model.Quote, error)
	Name() string
}
