package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"PriceWatch/internal/model"
)

// RESTFetcher implements Fetcher against a generic quote REST API
// exposing GET {base}/api/v1/quote?symbol=... -> {"price": ...}.
type RESTFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewRESTFetcher creates a new fetcher with optional proxy support.
func NewRESTFetcher(baseURL, apiKey, proxyURL string) *RESTFetcher {
	return &RESTFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  newHTTPClient(proxyURL),
	}
}

func (f *RESTFetcher) Name() string { return "rest" }

type restQuote struct {
	Symbol   string              `json:"symbol"`
	Price    decimal.NullDecimal `json:"price"`
	Currency string              `json:"currency"`
}

func (f *RESTFetcher) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	endpoint := fmt.Sprintf("%s/api/v1/quote?symbol=%s", f.BaseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Quote{}, Transient(err)
	}
	req.Header.Set("Accept", "application/json")
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return model.Quote{}, Transient(fmt.Errorf("fetch quote: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return model.Quote{}, statusError("rest", resp.StatusCode, body)
	}
	var result restQuote
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return model.Quote{}, Transient(fmt.Errorf("decode quote: %w", err))
	}
	if !result.Price.Valid {
		return model.Quote{}, Transient(fmt.Errorf("quote for %s has no price", symbol))
	}
	q := model.Quote{
		Symbol:   result.Symbol,
		Price:    result.Price.Decimal,
		Currency: result.Currency,
		Source:   f.Name(),
	}
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	return q, nil
}
