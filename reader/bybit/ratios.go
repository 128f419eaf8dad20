package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cryptolens/internal/metrics/limits"
	"cryptolens/logger"
	"cryptolens/models"
	"cryptolens/normalizer"
)

type ratioPage struct {
	List []ratioEntry `json:"list"`
}

type ratioEntry struct {
	Symbol    string `json:"symbol"`
	BuyRatio  string `json:"buyRatio"`
	SellRatio string `json:"sellRatio"`
	Timestamp string `json:"timestamp"`
}

func parseFloatPtr(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseRatios decodes an account-ratio result into Ratio rows.
func parseRatios(payload []byte, loc *time.Location) ([]models.Ratio, error) {
	var page ratioPage
	if err := json.Unmarshal(payload, &page); err != nil {
		return nil, fmt.Errorf("decode account ratio: %w", err)
	}
	out := make([]models.Ratio, 0, len(page.List))
	for _, e := range page.List {
		ts, err := normalizer.ToLocalTime(e.Timestamp, normalizer.UnitMillis, loc)
		if err != nil {
			return nil, fmt.Errorf("account ratio %s: %w", e.Symbol, err)
		}
		out = append(out, models.Ratio{
			Symbol:     strings.TrimSpace(e.Symbol),
			BuyRatio:   parseFloatPtr(e.BuyRatio),
			SellRatio:  parseFloatPtr(e.SellRatio),
			UpdateTime: ts,
		})
	}
	return out, nil
}

func (c *Client) ratio(ctx context.Context, symbol string) ([]models.Ratio, error) {
	src := c.cfg.Source.Bybit
	params := map[string]interface{}{
		"category": src.Category,
		"symbol":   symbol,
		"period":   src.RatioPeriod,
		"limit":    src.RatioLimit,
	}
	payload, err := c.call(ctx, "ratio", symbol, func() (*bybitResponse, error) {
		return c.api.AccountRatio(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	return parseRatios(payload, c.loc)
}

// Ratios fetches the latest long/short account ratio for every symbol,
// spacing requests by the configured delay. Symbols that fail are skipped and
// returned as failures; the batch always runs to completion unless ctx ends.
func (c *Client) Ratios(ctx context.Context, symbols []string) ([]models.Ratio, []models.FetchFailure) {
	log := c.log.WithComponent(component).WithFields(logger.Fields{"operation": "ratios"})
	start := time.Now()

	ratios := []models.Ratio{}
	var failures []models.FetchFailure
	for i, symbol := range symbols {
		if err := c.limiter.Wait(ctx); err != nil {
			for _, rest := range symbols[i:] {
				failures = append(failures, models.FetchFailure{ID: rest, Err: err.Error()})
			}
			break
		}
		rows, err := c.ratio(ctx, symbol)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"symbol": symbol}).Warn("failed to fetch ratio, skipping")
			failures = append(failures, models.FetchFailure{ID: symbol, Err: err.Error()})
			continue
		}
		ratios = append(ratios, rows...)
	}

	limits.ReportFailures(log, component, "symbol", failures)
	logger.LogPerformanceEntry(log, component, "fetch_ratios", time.Since(start), logger.Fields{
		"requested": len(symbols),
		"rows":      len(ratios),
		"failed":    len(failures),
	})
	logger.LogDataFlowEntry(log, "bybit_api", "reconciler", len(ratios), "ratios")
	return ratios, failures
}
