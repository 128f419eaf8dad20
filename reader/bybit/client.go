package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	appconfig "cryptolens/config"
	"cryptolens/internal/metrics/limits"
	"cryptolens/logger"

	bybit "github.com/bybit-exchange/bybit.go.api"
	"golang.org/x/time/rate"
)

const component = "bybit_reader"

// maxInstrumentPages bounds cursor pagination of instruments-info.
const maxInstrumentPages = 20

type bybitResponse = bybit.ServerResponse

// marketAPI is the subset of the Bybit v5 market REST API the client uses.
type marketAPI interface {
	InstrumentsInfo(ctx context.Context, params map[string]interface{}) (*bybitResponse, error)
	AccountRatio(ctx context.Context, params map[string]interface{}) (*bybitResponse, error)
}

type sdkMarket struct {
	client *bybit.Client
}

func (s sdkMarket) InstrumentsInfo(ctx context.Context, params map[string]interface{}) (*bybitResponse, error) {
	return s.client.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
}

func (s sdkMarket) AccountRatio(ctx context.Context, params map[string]interface{}) (*bybitResponse, error) {
	return s.client.NewUtaBybitServiceWithParams(params).GetLongShortRatio(ctx)
}

// Client reads linear perpetual listings and long/short account ratios from
// the Bybit public market API.
type Client struct {
	cfg     *appconfig.Config
	api     marketAPI
	limiter *rate.Limiter
	log     *logger.Log
	loc     *time.Location
}

// NewClient builds a client from the bybit section of cfg. Timestamps are
// converted into loc.
func NewClient(cfg *appconfig.Config, loc *time.Location) *Client {
	src := cfg.Source.Bybit
	httpClient := &http.Client{
		Timeout:   src.Timeout,
		Transport: &limits.UsageTransport{Log: logger.GetLogger(), Component: component},
	}

	client := bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(src.BaseURL))
	client.HTTPClient = httpClient

	c := newClient(cfg, sdkMarket{client: client}, loc)
	c.log.WithComponent(component).WithFields(logger.Fields{
		"base_url": src.BaseURL,
		"timeout":  src.Timeout,
		"delay":    src.RatioDelay,
	}).Info("bybit client initialized")
	return c
}

func newClient(cfg *appconfig.Config, api marketAPI, loc *time.Location) *Client {
	return &Client{
		cfg:     cfg,
		api:     api,
		limiter: newThrottle(cfg.Source.Bybit.RatioDelay),
		log:     logger.GetLogger(),
		loc:     loc,
	}
}

// newThrottle spaces calls at least delay apart. A zero delay disables it.
func newThrottle(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// call issues one request and checks the retCode envelope. The result
// payload is returned re-encoded as JSON.
func (c *Client) call(ctx context.Context, dataType, item string, fn func() (*bybitResponse, error)) ([]byte, error) {
	log := c.log.WithComponent(component).WithFields(logger.Fields{
		"operation": dataType,
		"item":      item,
	})

	start := time.Now()
	resp, err := fn()
	if err != nil {
		limits.ReportLimitFromMessage(c.log, "bybit", item, dataType, err.Error())
		return nil, fmt.Errorf("request %s: %w", dataType, err)
	}
	logger.LogPerformanceEntry(log, component, "api_request", time.Since(start), logger.Fields{"item": item})

	if resp == nil {
		return nil, fmt.Errorf("request %s: empty response", dataType)
	}
	if resp.RetCode != 0 {
		limits.ReportLimitFromMessage(c.log, "bybit", item, dataType, resp.RetMsg)
		return nil, fmt.Errorf("request %s: retCode %d: %s", dataType, resp.RetCode, strings.TrimSpace(resp.RetMsg))
	}

	payload, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", dataType, err)
	}
	return payload, nil
}
