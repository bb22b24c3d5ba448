package bybit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/rewired-gh/sweepscope/internal/models"
)

const (
	DefaultRESTURL = "https://api.bybit.com"
	// MaxPageSize is the largest limit the recent-trade endpoint accepts.
	MaxPageSize = 1000
)

// Client fetches public trades over REST.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	retryDelay time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRateLimit caps requests per second.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithRetry sets the attempt count and the base delay between attempts.
func WithRetry(attempts int, delay time.Duration) ClientOption {
	return func(c *Client) {
		if attempts > 0 {
			c.maxRetries = attempts
		}
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

// NewClient creates a REST client. An empty baseURL selects the production host.
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultRESTURL
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(10), 10),
		maxRetries: 3,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "bybit-rest",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return c
}

type recentTradeResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List           []map[string]any `json:"list"`
		NextPageCursor string           `json:"nextPageCursor"`
	} `json:"result"`
}

// Page is one recent-trade response.
type Page struct {
	Ticks      []models.Tick
	IDs        []string
	NextCursor string
	Rejected   int
}

// RecentTrades fetches one page of public trades.
func (c *Client) RecentTrades(ctx context.Context, category, symbol string, limit int, cursor string) (Page, error) {
	u, err := url.Parse(c.baseURL + "/v5/market/recent-trade")
	if err != nil {
		return Page{}, fmt.Errorf("failed to parse URL: %w", err)
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	q := u.Query()
	q.Set("category", category)
	q.Set("symbol", symbol)
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u.RawQuery = q.Encode()

	body, err := c.doRequest(ctx, u.String())
	if err != nil {
		return Page{}, fmt.Errorf("failed to fetch trades: %w", err)
	}

	var resp recentTradeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Page{}, fmt.Errorf("failed to decode trades: %w", err)
	}
	if resp.RetCode != 0 {
		return Page{}, fmt.Errorf("bybit error %d: %s", resp.RetCode, resp.RetMsg)
	}

	page := Page{NextCursor: resp.Result.NextPageCursor}
	for _, raw := range resp.Result.List {
		t, err := ParseRESTTrade(raw)
		if err != nil {
			page.Rejected++
			continue
		}
		id, _ := raw["execId"].(string)
		page.Ticks = append(page.Ticks, t)
		page.IDs = append(page.IDs, id)
	}
	return page, nil
}

// FetchResult is the outcome of FetchTrades.
type FetchResult struct {
	Ticks    []models.Tick
	Pages    int
	Rejected int
}

// FetchTrades pages through recent trades until target unique trades are collected
// or the server stops returning a cursor. Trades are deduplicated by execution id
// and returned in time order.
func (c *Client) FetchTrades(ctx context.Context, category, symbol string, target int) (FetchResult, error) {
	var res FetchResult
	seen := make(map[string]struct{})
	cursor := ""
	for target <= 0 || len(res.Ticks) < target {
		page, err := c.RecentTrades(ctx, category, symbol, MaxPageSize, cursor)
		if err != nil {
			if len(res.Ticks) > 0 && !errors.Is(err, context.Canceled) {
				// Keep what was collected; the caller decides whether a short history is usable.
				return finish(res), fmt.Errorf("stopped after %d pages: %w", res.Pages, err)
			}
			return FetchResult{}, err
		}
		res.Pages++
		res.Rejected += page.Rejected
		added := 0
		for i, t := range page.Ticks {
			id := page.IDs[i]
			if id == "" {
				id = fmt.Sprintf("%v|%v|%v|%v", t.Ts, t.Price, t.Volume, t.Side)
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			res.Ticks = append(res.Ticks, t)
			added++
		}
		if page.NextCursor == "" || added == 0 {
			break
		}
		cursor = page.NextCursor
	}
	return finish(res), nil
}

func finish(res FetchResult) FetchResult {
	sort.SliceStable(res.Ticks, func(i, j int) bool { return res.Ticks[i].Ts < res.Ticks[j].Ts })
	return res
}

// ParseRESTTrade accepts the field spellings of the public trade, execution and
// legacy endpoints: T/time/execTime, p/price/execPrice, v/size/execQty and
// S/side/isBuyerMaker.
func ParseRESTTrade(raw map[string]any) (models.Tick, error) {
	ms, err := firstNumber(raw, "T", "time", "execTime")
	if err != nil {
		return models.Tick{}, fmt.Errorf("timestamp: %w", err)
	}
	price, err := firstNumber(raw, "p", "price", "execPrice")
	if err != nil {
		return models.Tick{}, fmt.Errorf("price: %w", err)
	}
	vol, err := firstNumber(raw, "v", "size", "execQty")
	if err != nil {
		return models.Tick{}, fmt.Errorf("volume: %w", err)
	}

	var side models.Side
	switch {
	case raw["S"] != nil:
		side, err = models.ParseSide(fmt.Sprint(raw["S"]))
	case raw["side"] != nil:
		side, err = models.ParseSide(fmt.Sprint(raw["side"]))
	case raw["isBuyerMaker"] != nil:
		maker, ok := raw["isBuyerMaker"].(bool)
		if !ok {
			err = fmt.Errorf("%w: isBuyerMaker is not a bool", models.ErrMalformedInput)
		}
		side = models.SideBuy
		if maker {
			side = models.SideSell
		}
	default:
		err = fmt.Errorf("%w: no side field", models.ErrMalformedInput)
	}
	if err != nil {
		return models.Tick{}, err
	}

	t := models.Tick{Ts: ms / 1000.0, Price: price, Volume: vol, Side: side}
	return t, t.Validate()
}

func firstNumber(raw map[string]any, keys ...string) (float64, error) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: %s=%q", models.ErrMalformedInput, k, n)
			}
			return f, nil
		default:
			return 0, fmt.Errorf("%w: %s has type %T", models.ErrMalformedInput, k, v)
		}
	}
	return 0, fmt.Errorf("%w: none of %v present", models.ErrMalformedInput, keys)
}

// doRequest performs an HTTP GET through the rate limiter and circuit breaker,
// retrying transport failures and 5xx responses.
func (c *Client) doRequest(ctx context.Context, urlStr string) ([]byte, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.get(ctx, urlStr)
		})
		if err == nil {
			return out.([]byte), nil
		}
		lastErr = err
		var perm permanentError
		if errors.As(err, &perm) || errors.Is(err, gobreaker.ErrOpenState) || ctx.Err() != nil {
			return nil, err
		}
		select {
		case <-time.After(time.Duration(i+1) * c.retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

type permanentError struct{ status int }

func (e permanentError) Error() string { return fmt.Sprintf("client error: %d", e.status) }

func (c *Client) get(ctx context.Context, urlStr string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("server error: %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, permanentError{status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}
