package collector

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"PriceWatch/internal/model"
)

// Step is one scripted fetch result: a price, or an error when Err is set.
type Step struct {
	Price decimal.Decimal
	Err   error
}

// PriceStep returns a step yielding the given decimal price.
func PriceStep(price string) Step {
	return Step{Price: decimal.RequireFromString(price)}
}

// ErrStep returns a step failing with err.
func ErrStep(err error) Step {
	return Step{Err: err}
}

// ScriptedFetcher returns controllable results for development and testing.
// Steps are replayed in order; once exhausted the last step repeats.
type ScriptedFetcher struct {
	mu    sync.Mutex
	steps []Step
	calls int
}

// NewScriptedFetcher creates a fetcher replaying steps.
func NewScriptedFetcher(steps ...Step) *ScriptedFetcher {
	return &ScriptedFetcher{steps: steps}
}

func (m *ScriptedFetcher) Name() string { return "mock" }

func (m *ScriptedFetcher) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	m.mu.Lock()
	i := m.calls
	m.calls++
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return model.Quote{}, Transient(err)
	}
	if len(m.steps) == 0 {
		return model.Quote{}, Transient(errors.New("mock: no scripted results"))
	}
	if i >= len(m.steps) {
		i = len(m.steps) - 1
	}
	step := m.steps[i]
	if step.Err != nil {
		var fe *FetchError
		if errors.As(step.Err, &fe) {
			return model.Quote{}, step.Err
		}
		return model.Quote{}, &FetchError{Kind: Classify(step.Err), Err: step.Err}
	}
	return model.Quote{
		Symbol: symbol,
		Price:  step.Price,
		Source: m.Name(),
	}, nil
}

// Calls returns how many times FetchQuote has been invoked.
func (m *ScriptedFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
