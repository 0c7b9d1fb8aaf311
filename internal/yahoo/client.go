// Package yahoo implements the quote source on top of the Yahoo Finance
// chart API.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/karnies/moomanager/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Quote source failure kinds. Callers branch on these to decide whether a
// symbol is misconfigured or the fetch should simply be retried later.
var (
	ErrNotFound        = errors.New("symbol not found")
	ErrRateLimited     = errors.New("rate limited by quote source")
	ErrInvalidResponse = errors.New("invalid response from quote source")
)

// Quote is a snapshot of a symbol's market data.
type Quote struct {
	Symbol            string
	CurrentPrice      float64
	PreviousClose     float64
	PreviousCloseDate *time.Time
	Change            float64
	ChangePercent     float64
}

// ClientInterface defines the quote source consumed by the price cache.
type ClientInterface interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	// GetDailyCloses returns recent daily closes in ascending chronological
	// order, for indicator calculations.
	GetDailyCloses(ctx context.Context, symbol string, rangeDays int) ([]float64, error)
}

// Client is a rate-limited client for the Yahoo Finance chart API.
// It implements ClientInterface.
type Client struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure Client implements the interface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new chart API client.
func NewClient(cfg *config.Yahoo, logger *zap.Logger) *Client {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	// Yahoo throttles aggressively; stay well under their limit.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &Client{
		client:  client,
		logger:  logger,
		limiter: limiter,
	}
}

// chartResponse mirrors the subset of the chart payload we read.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		PreviousClose      float64 `json:"previousClose"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// doRequest executes the request with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.SetContext(ctx).Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && err == nil {
			statusCode := resp.StatusCode()
			switch {
			case statusCode == http.StatusNotFound:
				return nil, ErrNotFound
			case statusCode == http.StatusTooManyRequests:
				shouldRetry = true
				if seconds, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
				// Last attempt exhausted below reports ErrRateLimited.
				err = ErrRateLimited
			case statusCode >= 500:
				shouldRetry = true
				err = fmt.Errorf("request failed with status %s", resp.Status())
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if errors.Is(err, ErrRateLimited) {
		return nil, ErrRateLimited
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// fetchChart retrieves one symbol's chart for the given daily range.
func (c *Client) fetchChart(ctx context.Context, symbol string, rangeDays int) (*chartResult, error) {
	var chart chartResponse

	req := c.client.R().
		SetResult(&chart).
		SetQueryParam("interval", "1d").
		SetQueryParam("range", fmt.Sprintf("%dd", rangeDays))

	if _, err := c.doRequest(ctx, "GET", "/"+symbol, req); err != nil {
		return nil, err
	}

	if chart.Chart.Error != nil {
		if chart.Chart.Error.Code == "Not Found" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidResponse, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, ErrNotFound
	}

	return &chart.Chart.Result[0], nil
}

// GetQuote fetches the current price and the previous completed session's
// close (with its date) for a symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	result, err := c.fetchChart(ctx, symbol, 5)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}

	if result.Meta.RegularMarketPrice == 0 {
		return nil, fmt.Errorf("%w: no market price for %s", ErrInvalidResponse, symbol)
	}

	quote := &Quote{
		Symbol:        symbol,
		CurrentPrice:  result.Meta.RegularMarketPrice,
		PreviousClose: result.Meta.PreviousClose,
	}
	if quote.PreviousClose == 0 {
		quote.PreviousClose = quote.CurrentPrice
	}

	// The second-to-last valid close is the previous completed session;
	// the last one may still be forming intraday.
	closes, timestamps := validCloses(result)
	if len(closes) >= 2 {
		quote.PreviousClose = closes[len(closes)-2]
		t := time.Unix(timestamps[len(timestamps)-2], 0)
		quote.PreviousCloseDate = &t
	}

	quote.Change = quote.CurrentPrice - quote.PreviousClose
	if quote.PreviousClose > 0 {
		quote.ChangePercent = quote.Change / quote.PreviousClose * 100
	}

	return quote, nil
}

// GetDailyCloses fetches the recent daily close series for a symbol,
// ascending chronologically.
func (c *Client) GetDailyCloses(ctx context.Context, symbol string, rangeDays int) ([]float64, error) {
	result, err := c.fetchChart(ctx, symbol, rangeDays)
	if err != nil {
		return nil, fmt.Errorf("failed to get closes for %s: %w", symbol, err)
	}

	closes, _ := validCloses(result)
	return closes, nil
}

// validCloses pairs the non-null closes with their timestamps. Yahoo pads
// the close array with nulls on halted or partial sessions.
func validCloses(result *chartResult) ([]float64, []int64) {
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}

	raw := result.Indicators.Quote[0].Close
	closes := make([]float64, 0, len(raw))
	timestamps := make([]int64, 0, len(raw))
	for i, c := range raw {
		if c == nil || i >= len(result.Timestamp) {
			continue
		}
		closes = append(closes, *c)
		timestamps = append(timestamps, result.Timestamp[i])
	}
	return closes, timestamps
}
