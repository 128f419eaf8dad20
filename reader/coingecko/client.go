package coingecko

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appconfig "cryptolens/config"
	"cryptolens/internal/metrics/limits"
	"cryptolens/logger"

	"golang.org/x/time/rate"
)

const component = "coingecko_reader"

// maxErrorBody caps how much of a failed response body is kept in errors.
const maxErrorBody = 256

// Client reads coin identities, coin details and categories from the
// CoinGecko v3 API.
type Client struct {
	cfg        *appconfig.Config
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	log        *logger.Log
	loc        *time.Location
}

// NewClient builds a client from the coingecko section of cfg. Timestamps are
// converted into loc.
func NewClient(cfg *appconfig.Config, loc *time.Location) *Client {
	src := cfg.Source.Coingecko
	limiter := rate.NewLimiter(rate.Inf, 1)
	if src.DetailDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(src.DetailDelay), 1)
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: src.Timeout},
		baseURL:    strings.TrimRight(src.BaseURL, "/"),
		limiter:    limiter,
		log:        logger.GetLogger(),
		loc:        loc,
	}

	c.log.WithComponent(component).WithFields(logger.Fields{
		"base_url": c.baseURL,
		"timeout":  src.Timeout,
		"delay":    src.DetailDelay,
		"api_key":  src.APIKey != "",
	}).Info("coingecko client initialized")
	return c
}

// get issues a GET against path with query and returns the body of a 200
// response. Any other status is an error carrying the status and body.
func (c *Client) get(ctx context.Context, dataType, item, path string, query url.Values) ([]byte, error) {
	log := c.log.WithComponent(component).WithFields(logger.Fields{
		"operation": dataType,
		"item":      item,
	})

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", dataType, err)
	}
	req.Header.Set("accept", "application/json")
	if key := c.cfg.Source.Coingecko.APIKey; key != "" {
		req.Header.Set(c.cfg.Source.Coingecko.APIKeyHeader, key)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", dataType, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", dataType, err)
	}
	logger.LogPerformanceEntry(log, component, "api_request", time.Since(start), logger.Fields{
		"item":   item,
		"status": resp.StatusCode,
		"bytes":  len(body),
	})

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		err := fmt.Errorf("request %s: status %d: %s", dataType, resp.StatusCode, msg)
		limits.ReportLimitFromMessage(c.log, "coingecko", item, dataType, err.Error())
		return nil, err
	}
	return body, nil
}
