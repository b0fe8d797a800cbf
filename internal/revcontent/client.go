// Package revcontent is a small client for the Revcontent stats API.
package revcontent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"revstats/internal/auth"
	"revstats/internal/config"
	"revstats/internal/executor"
	"revstats/internal/httpclient"
	"revstats/internal/logging"
	"revstats/internal/metrics"
	"revstats/internal/util"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// APIPrefix is prepended to every resource path.
const APIPrefix = "/stats/api/v1.0"

// StatsLimit is the page size requested for per-boost widget stats.
const StatsLimit = 1000

// ErrInvalidMethod is returned by Fetch for an unsupported HTTP verb.
var ErrInvalidMethod = errors.New("invalid HTTP method")

// ErrMissingData is returned when a 2xx response has no data array.
var ErrMissingData = errors.New("expected data array")

var validMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodOptions: {},
	http.MethodHead:    {},
}

// APIError is a non-2xx response to a request made without retry.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Authenticator obtains a bearer token and applies it to requests.
type Authenticator interface {
	Login(ctx context.Context) error
	Refresh(ctx context.Context) error
	Apply(req *http.Request) error
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	HTTPClient        *http.Client
	Auth              Authenticator
	Retry             config.RetryConfig
	RequestsPerSecond float64 // 0 means unlimited
	BoostsPageSize    int
	MaxPages          int
	Metrics           *metrics.Recorder
}

// Client calls the Revcontent stats API with one authenticated session.
type Client struct {
	baseURL  string
	http     *http.Client
	auth     Authenticator
	retry    config.RetryConfig
	limiter  *rate.Limiter
	paging   executor.PagingConfig
	recorder *metrics.Recorder
}

// NewClient creates a Client. Login must succeed before any resource call.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = httpclient.NewClient(nil)
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http: httpclient.WithHeaders(httpClient, http.Header{
			"Content-Type":  []string{"application/json"},
			"Cache-Control": []string{"no-cache"},
		}),
		auth:    opts.Auth,
		retry:   opts.Retry,
		limiter: rate.NewLimiter(limit, 1),
		paging: executor.PagingConfig{
			PageSize: opts.BoostsPageSize,
			MaxPages: opts.MaxPages,
			IDPath:   "id",
		},
		recorder: opts.Metrics,
	}
}

// Login exchanges the client credentials for a bearer token.
func (c *Client) Login(ctx context.Context) error {
	return c.auth.Login(ctx)
}

// Fetch sends an authenticated request to APIPrefix+path. With retry set,
// the request is repeated while the response lacks a top-level "data"
// member; the returned Result says whether data ever arrived. Without retry
// a non-2xx status is returned as *APIError.
func (c *Client) Fetch(ctx context.Context, method, path string, query url.Values, retry bool) (executor.Result, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if _, ok := validMethods[method]; !ok {
		return executor.Result{}, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}

	target := c.baseURL + APIPrefix + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	endpoint := endpointLabel(path)
	attempt := func(ctx context.Context) (int, []byte, error) {
		return c.send(ctx, method, target, endpoint)
	}

	if retry {
		res, err := executor.RetryUntilData(ctx, attempt, c.retry)
		c.recorder.ObserveRetries(endpoint, res.Attempts-1)
		return res, err
	}

	status, body, err := attempt(ctx)
	res := executor.Result{StatusCode: status, Body: body, Attempts: 1, Outcome: executor.Success}
	if err != nil {
		return res, err
	}
	if status < 200 || status > 299 {
		return res, &APIError{Method: method, Path: path, StatusCode: status, Body: util.Snippet(body)}
	}
	return res, nil
}

// send performs one paced request. A 401 triggers one fresh login and one
// repeat; a second 401 is returned as *auth.Error.
func (c *Client) send(ctx context.Context, method, target, endpoint string) (int, []byte, error) {
	status, body, err := c.sendOnce(ctx, method, target, endpoint)
	if err != nil || status != http.StatusUnauthorized {
		return status, body, err
	}

	logging.Logf(logging.Warning, "%s %s returned 401, logging in again", method, endpoint)
	if err := c.auth.Refresh(ctx); err != nil {
		return status, body, err
	}
	status, body, err = c.sendOnce(ctx, method, target, endpoint)
	if err == nil && status == http.StatusUnauthorized {
		return status, body, &auth.Error{StatusCode: status, Body: util.Snippet(body)}
	}
	return status, body, err
}

func (c *Client) sendOnce(ctx context.Context, method, target, endpoint string) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.auth.Apply(req); err != nil {
		return 0, nil, err
	}
	resp, body, err := executor.ExecuteRequest(c.http, req)
	if err != nil {
		c.recorder.ObserveRequest(endpoint, 0)
		return 0, nil, err
	}
	c.recorder.ObserveRequest(endpoint, resp.StatusCode)
	return resp.StatusCode, body, nil
}

// endpointLabel collapses per-boost paths so metric labels stay bounded.
func endpointLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) > 2 && parts[0] == "boosts" {
		parts[1] = "{id}"
	}
	return strings.Join(parts, "/")
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*Response, error) {
	res, err := c.Fetch(ctx, http.MethodGet, path, query, false)
	if err != nil {
		return nil, err
	}
	return newResponse(res.StatusCode, res.Body)
}

// GetBoosts lists all boosts.
func (c *Client) GetBoosts(ctx context.Context) (*Response, error) {
	return c.get(ctx, "/boosts", nil)
}

// GetBrandTargets lists brand targets.
func (c *Client) GetBrandTargets(ctx context.Context) (*Response, error) {
	return c.get(ctx, "/boosts/brands", nil)
}

// GetTopicTargets lists topic targets.
func (c *Client) GetTopicTargets(ctx context.Context) (*Response, error) {
	return c.get(ctx, "/boosts/targets", nil)
}

// GetCountries lists countries.
func (c *Client) GetCountries(ctx context.Context) (*Response, error) {
	return c.get(ctx, "/countries", nil)
}

// GetDevices lists devices.
func (c *Client) GetDevices(ctx context.Context) (*Response, error) {
	return c.get(ctx, "/devices", nil)
}

// GetLanguages lists languages.
func (c *Client) GetLanguages(ctx context.Context) (*Response, error) {
	return c.get(ctx, "/languages", nil)
}

// GetInterests lists interests.
func (c *Client) GetInterests(ctx context.Context) (*Response, error) {
	return c.get(ctx, "/interests", nil)
}

// GetWidgets returns aggregated widget stats for the date range.
func (c *Client) GetWidgets(ctx context.Context, from, to string) (*Response, error) {
	query := url.Values{}
	query.Set("date_from", from)
	query.Set("date_to", to)
	query.Set("aggregate", "yes")
	return c.get(ctx, "/widgets", query)
}

// GetWidgetsStats returns the per-widget stats of one boost. Empty from or
// to are omitted from the query. If no data arrives within the retry budget
// the error wraps executor.ErrExhaustedRetries.
func (c *Client) GetWidgetsStats(ctx context.Context, boostID, from, to string) ([]WidgetStat, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(StatsLimit))
	query.Set("min_spend", "1")
	if from != "" {
		query.Set("date_from", from)
	}
	if to != "" {
		query.Set("date_to", to)
	}

	path := "/boosts/" + url.PathEscape(boostID) + "/widgets/stats"
	res, err := c.Fetch(ctx, http.MethodGet, path, query, true)
	if err != nil {
		return nil, err
	}
	if res.Outcome == executor.ExhaustedRetries {
		return nil, fmt.Errorf("boost %s: %w (%d attempts, last status %d: %s)",
			boostID, executor.ErrExhaustedRetries, res.Attempts, res.StatusCode, util.Snippet(res.Body))
	}

	data := gjson.GetBytes(res.Body, "data")
	if !data.IsArray() {
		return nil, fmt.Errorf("boost %s: %w, got %s", boostID, ErrMissingData, data.Type)
	}
	stats := make([]WidgetStat, 0, len(data.Array()))
	for i, item := range data.Array() {
		if !item.IsObject() {
			logging.Logf(logging.Warning, "Boost %s: skipping non-object stats entry %d: %s", boostID, i, util.Snippet([]byte(item.Raw)))
			continue
		}
		stats = append(stats, widgetStatFromJSON(item))
	}
	return stats, nil
}

// ListBoosts returns every boost as a typed value. When a page size is
// configured the listing is fetched with limit/offset paging.
func (c *Client) ListBoosts(ctx context.Context) ([]Boost, error) {
	items, err := executor.CollectOffsetPages(ctx, c.paging, func(ctx context.Context, limit, offset int) ([]gjson.Result, error) {
		var query url.Values
		if limit > 0 {
			query = url.Values{}
			query.Set("limit", strconv.Itoa(limit))
			query.Set("offset", strconv.Itoa(offset))
		}
		resp, err := c.get(ctx, "/boosts", query)
		if err != nil {
			return nil, err
		}
		data := resp.Data()
		if !data.IsArray() {
			return nil, fmt.Errorf("boosts: %w, got %s: %s", ErrMissingData, data.Type, util.Snippet(resp.Raw))
		}
		return data.Array(), nil
	})
	if err != nil {
		return nil, err
	}

	boosts := make([]Boost, 0, len(items))
	for _, item := range items {
		boosts = append(boosts, boostFromJSON(item))
	}
	logging.Logf(logging.Info, "Found %d boosts", len(boosts))
	return boosts, nil
}
