// Package lookup implements nutrilog.FactSource on the Open Food Facts API.
//
// The source fails open: transport errors, timeouts, bad payloads and unknown
// products are all reported as "not found" so a single slow dependency only
// pushes the affected item onto the estimation path.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"nutrilog"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://world.openfoodfacts.org"
	DefaultUserAgent = "nutrilog/0.1 (food logging)"
	defaultTimeout   = 10 * time.Second
	searchPageSize   = 5
	maxBodyBytes     = 4 << 20
)

var productFields = strings.Join([]string{
	"code", "product_name", "abbreviated_product_name", "generic_name",
	"nutriments", "serving_quantity", "serving_quantity_unit", "serving_size",
}, ",")

var barcodePattern = regexp.MustCompile(`^\d{6,14}$`)

type Options struct {
	BaseURL   string
	Country   string
	UserAgent string
	// RequestsPerMinute throttles outgoing calls; zero disables throttling.
	RequestsPerMinute int
	// Timeout bounds each request, including the wait for the limiter.
	Timeout    time.Duration
	HTTPClient nutrilog.HTTPClient
}

func OptionsFromConfig(cfg nutrilog.ResolverConfig) Options {
	return Options{
		BaseURL:           cfg.OFFBaseURL,
		Country:           cfg.OFFCountry,
		UserAgent:         cfg.OFFUserAgent,
		RequestsPerMinute: cfg.OFFRequestsPerMin,
		Timeout:           cfg.LookupTimeout,
	}
}

type Client struct {
	baseURL   string
	country   string
	userAgent string
	timeout   time.Duration
	http      nutrilog.HTTPClient
	limiter   *rate.Limiter
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/"),
		country:   strings.ToLower(strings.TrimSpace(opts.Country)),
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		http:      opts.HTTPClient,
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60), 1)
	}
	return c
}

type productResponse struct {
	Status  int             `json:"status"`
	Product json.RawMessage `json:"product"`
}

type searchResponse struct {
	Count    int               `json:"count"`
	Products []json.RawMessage `json:"products"`
}

// LookupByCode fetches one product by barcode.
func (c *Client) LookupByCode(ctx context.Context, code string) (nutrilog.NutritionFacts, bool) {
	code = strings.TrimSpace(code)
	if !barcodePattern.MatchString(code) {
		slog.Warn("LOOKUP: Rejecting malformed code", "code", code)
		return nutrilog.NutritionFacts{}, false
	}

	u := fmt.Sprintf("%s/api/v2/product/%s.json?fields=%s", c.baseURL, url.PathEscape(code), url.QueryEscape(productFields))

	var pr productResponse
	status, err := c.getJSON(ctx, u, &pr)
	if err != nil {
		slog.Warn("LOOKUP: Code lookup failed, treating as not found", "code", code, "error", err)
		return nutrilog.NutritionFacts{}, false
	}
	if status == http.StatusNotFound || pr.Status != 1 || len(pr.Product) == 0 {
		slog.Info("LOOKUP: Code not found", "code", code)
		return nutrilog.NutritionFacts{}, false
	}

	p, err := decodeProduct(pr.Product, c.country)
	if err != nil {
		slog.Warn("LOOKUP: Unreadable product", "code", code, "error", err)
		return nutrilog.NutritionFacts{}, false
	}

	facts, ok := p.Facts()
	if !ok {
		slog.Info("LOOKUP: Product has no energy value", "code", code)
		return nutrilog.NutritionFacts{}, false
	}
	slog.Info("LOOKUP: Code found", "code", code, "product", facts.ProductName)
	return facts, true
}

// LookupByName runs a text search and returns the first product that has an
// energy value.
func (c *Client) LookupByName(ctx context.Context, name string) (nutrilog.NutritionFacts, bool) {
	query := FoldQuery(name)
	if query == "" {
		return nutrilog.NutritionFacts{}, false
	}

	q := url.Values{}
	q.Set("search_terms", query)
	q.Set("search_simple", "1")
	q.Set("action", "process")
	q.Set("json", "1")
	q.Set("page_size", fmt.Sprint(searchPageSize))
	q.Set("fields", productFields)
	if c.country != "" {
		q.Set("countries_tags", c.country)
	}
	u := c.baseURL + "/cgi/search.pl?" + q.Encode()

	var sr searchResponse
	status, err := c.getJSON(ctx, u, &sr)
	if err != nil || status != http.StatusOK {
		slog.Warn("LOOKUP: Search failed, treating as not found", "query", query, "status", status, "error", err)
		return nutrilog.NutritionFacts{}, false
	}

	for _, raw := range sr.Products {
		p, err := decodeProduct(raw, c.country)
		if err != nil {
			continue
		}
		if facts, ok := p.Facts(); ok {
			slog.Info("LOOKUP: Name found", "query", query, "product", facts.ProductName)
			return facts, true
		}
	}

	slog.Info("LOOKUP: Name not found", "query", query, "candidates", len(sr.Products))
	return nutrilog.NutritionFacts{}, false
}

// getJSON performs a throttled GET and decodes a 200 body into v. Non-200
// statuses are returned without decoding.
func (c *Client) getJSON(ctx context.Context, u string, v any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
