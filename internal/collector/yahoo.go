package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"PriceWatch/internal/model"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooFetcher implements Fetcher using Yahoo Finance public API.
type YahooFetcher struct {
	BaseURL   string
	Client    *http.Client
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(proxyURL string) *YahooFetcher {
	return &YahooFetcher{
		BaseURL: yahooBaseURL,
		Client:  newHTTPClient(proxyURL),
		SymbolMap: map[string]string{
			"DJI":    "^DJI",
			"DOW":    "^DJI",
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
		},
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[strings.ToUpper(symbol)]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the subset of the chart API response we read.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string              `json:"symbol"`
				Currency           string              `json:"currency"`
				RegularMarketPrice decimal.NullDecimal `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchQuote returns the latest regular market price for symbol.
func (f *YahooFetcher) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1m&range=1d",
		f.BaseURL, url.PathEscape(f.yahooSymbol(symbol)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.Quote{}, Transient(err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return model.Quote{}, Transient(fmt.Errorf("yahoo fetch: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Quote{}, Transient(fmt.Errorf("yahoo read body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return model.Quote{}, statusError("yahoo", resp.StatusCode, body)
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return model.Quote{}, Transient(fmt.Errorf("yahoo decode: %w", err))
	}
	if chart.Chart.Error != nil {
		apiErr := fmt.Errorf("yahoo api error: %s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description)
		if strings.Contains(chart.Chart.Error.Description, "429") ||
			strings.EqualFold(chart.Chart.Error.Code, "Too Many Requests") {
			return model.Quote{}, RateLimited(apiErr)
		}
		return model.Quote{}, Transient(apiErr)
	}
	if len(chart.Chart.Result) == 0 || !chart.Chart.Result[0].Meta.RegularMarketPrice.Valid {
		return model.Quote{}, Transient(errors.New("yahoo: no price data"))
	}

	meta := chart.Chart.Result[0].Meta
	q := model.Quote{
		Symbol:   meta.Symbol,
		Price:    meta.RegularMarketPrice.Decimal,
		Currency: meta.Currency,
		Source:   f.Name(),
	}
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	return q, nil
}

func newHTTPClient(proxyURL string) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
}
