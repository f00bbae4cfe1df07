package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"levelflow/config"
	"levelflow/logger"
)

// FinnhubProvider fetches futures quotes over the Finnhub REST API. Calls
// are throttled by a shared token bucket so fallback attempts across
// symbols never exceed the configured request rate.
type FinnhubProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

type finnhubQuote struct {
	Current float64 `json:"c"`
}

// NewFinnhubProvider creates a provider from the futures provider config.
func NewFinnhubProvider(cfg config.FuturesProviderConfig) *FinnhubProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	interval := cfg.MinCallInterval
	if interval <= 0 {
		interval = 1500 * time.Millisecond
	}
	return &FinnhubProvider{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		log:     logger.GetLogger(),
	}
}

func (p *FinnhubProvider) Name() string { return "finnhub" }

// GetPrice requests the latest quote for one symbol. A response whose
// current price is zero or negative means the symbol is unknown to the
// venue and reports ok=false.
func (p *FinnhubProvider) GetPrice(ctx context.Context, symbol string) (float64, bool, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, false, err
	}

	endpoint := fmt.Sprintf("%s/quote?symbol=%s", p.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, false, fmt.Errorf("build quote request: %w", err)
	}
	req.Header.Set("X-Finnhub-Token", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("quote request for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("quote request for %s: status %d", symbol, resp.StatusCode)
	}

	var quote finnhubQuote
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return 0, false, fmt.Errorf("decode quote for %s: %w", symbol, err)
	}

	if quote.Current <= 0 {
		return 0, false, nil
	}

	p.log.WithComponent("finnhub").WithFields(logger.Fields{
		"symbol": symbol,
		"price":  quote.Current,
	}).Debug("quote received")

	return quote.Current, true, nil
}
