// Package exchange fetches currency exchange rates from an
// exchangerate.host-compatible API, with a rate cache in front.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.pilab.hu/fxapi/cache"
	serrors "go.pilab.hu/fxapi/errors"
	"go.pilab.hu/fxapi/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.exchangerate.host"
	DefaultTimeout = 10 * time.Second
	userAgent      = "FX-Converter-API/1.0"
)

// SupportedCurrencies is the set of currencies offered to clients.
var SupportedCurrencies = []string{
	"USD", "EUR", "GBP", "NGN", "JPY", "CAD", "AUD", "CHF", "CNY", "INR",
	"KRW", "MXN", "RUB", "ZAR", "BRL", "SGD", "HKD", "NOK", "SEK", "PLN",
}

// mockRates backs the development fallback.
var mockRates = map[string]float64{
	"USD_NGN": 1580,
	"USD_EUR": 0.85,
	"USD_GBP": 0.73,
	"EUR_USD": 1.18,
	"EUR_NGN": 1863,
	"GBP_USD": 1.37,
	"GBP_NGN": 2165,
	"NGN_USD": 0.00063,
	"NGN_EUR": 0.00054,
	"NGN_GBP": 0.00046,
}

var errNoRate = errors.New("response carries no rate")

type convertResponse struct {
	Success bool `json:"success"`
	Info    struct {
		Rate  float64 `json:"rate"`
		Quote float64 `json:"quote"`
	} `json:"info"`
	Result float64 `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Type string `json:"type"`
		Info string `json:"info"`
	} `json:"error"`
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// UseMockFallback answers from a fixed table when the upstream fails.
	// Only enabled in development.
	UseMockFallback bool
}

// Client resolves exchange rates.
type Client struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	fallback bool
	cache    cache.RateStore
}

// NewClient creates a Client. rates may be nil to disable caching.
func NewClient(cfg Config, rates cache.RateStore) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.APIKey == "" {
		log.Warn().Msg("No exchange rate API key configured, upstream requests may fail")
	}
	return &Client{
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		fallback: cfg.UseMockFallback,
		cache:    rates,
	}
}

// SupportedCurrencies returns the currencies offered to clients.
func (c *Client) SupportedCurrencies() []string {
	out := make([]string, len(SupportedCurrencies))
	copy(out, SupportedCurrencies)
	return out
}

// Rate returns the rate for converting one unit of from into to.
func (c *Client) Rate(ctx context.Context, from, to string) (float64, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)

	if c.cache != nil {
		entry, ok, err := c.cache.Get(ctx, from, to)
		if err != nil {
			log.Warn().Err(err).Msg("Rate cache lookup failed")
		} else if ok {
			metrics.RateLookupsTotal.WithLabelValues("cache").Inc()
			return entry.Rate, nil
		}
	}

	rate, err := c.fetch(ctx, from, to)
	if err != nil {
		log.Error().Err(err).Str("from", from).Str("to", to).Msg("Exchange rate API error")
		if c.fallback {
			metrics.RateLookupsTotal.WithLabelValues("mock").Inc()
			return MockRate(from, to), nil
		}
		return 0, serrors.NewUnavailable("exchange rate service temporarily unavailable", err)
	}
	metrics.RateLookupsTotal.WithLabelValues("upstream").Inc()

	if c.cache != nil {
		entry := &cache.RateEntry{From: from, To: to, Rate: rate, FetchedAt: time.Now().UTC()}
		if err := c.cache.Set(ctx, entry); err != nil {
			log.Warn().Err(err).Msg("Failed to cache exchange rate")
		}
	}
	return rate, nil
}

func (c *Client) fetch(ctx context.Context, from, to string) (float64, error) {
	params := url.Values{}
	params.Set("from", from)
	params.Set("to", to)
	params.Set("amount", "1")
	if c.apiKey != "" {
		params.Set("access_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/convert?"+params.Encode(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("exchange rate API returned status %d", resp.StatusCode)
	}

	var body convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode exchange rate response: %w", err)
	}
	if !body.Success {
		if body.Error != nil {
			return 0, fmt.Errorf("exchange rate API error %d: %s", body.Error.Code, body.Error.Type)
		}
		return 0, errors.New("exchange rate API returned success=false")
	}

	switch {
	case body.Info.Rate > 0:
		return body.Info.Rate, nil
	case body.Info.Quote > 0:
		return body.Info.Quote, nil
	case body.Result > 0:
		return body.Result, nil
	default:
		return 0, errNoRate
	}
}

// MockRate looks up the fixed development rate: direct, then inverse, then 1.
func MockRate(from, to string) float64 {
	if rate, ok := mockRates[cache.RateKey(from, to)]; ok {
		return rate
	}
	if rate, ok := mockRates[cache.RateKey(to, from)]; ok {
		return 1 / rate
	}
	return 1.0
}
