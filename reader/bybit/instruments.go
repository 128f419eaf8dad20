package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	appconfig "cryptolens/config"
	"cryptolens/logger"
	"cryptolens/models"
	"cryptolens/normalizer"
)

type instrumentPage struct {
	Category       string            `json:"category"`
	List           []instrumentEntry `json:"list"`
	NextPageCursor string            `json:"nextPageCursor"`
}

type instrumentEntry struct {
	Symbol       string `json:"symbol"`
	ContractType string `json:"contractType"`
	Status       string `json:"status"`
	BaseCoin     string `json:"baseCoin"`
	QuoteCoin    string `json:"quoteCoin"`
	LaunchTime   string `json:"launchTime"`
}

func parseInstrumentPage(payload []byte) (instrumentPage, error) {
	var page instrumentPage
	if err := json.Unmarshal(payload, &page); err != nil {
		return instrumentPage{}, fmt.Errorf("decode instruments: %w", err)
	}
	return page, nil
}

// filterInstruments keeps trading linear perpetuals quoted in the configured
// coin and projects them to Instrument rows. Entries whose launch time does
// not parse are skipped and counted.
func filterInstruments(entries []instrumentEntry, src appconfig.BybitSourceConfig, loc *time.Location) ([]models.Instrument, int) {
	out := make([]models.Instrument, 0, len(entries))
	invalid := 0
	for _, e := range entries {
		if e.QuoteCoin != src.QuoteCoin || e.ContractType != src.ContractType || e.Status != src.Status {
			continue
		}
		launch, err := normalizer.ToLocalTime(e.LaunchTime, normalizer.UnitMillis, loc)
		if err != nil {
			invalid++
			continue
		}
		out = append(out, models.Instrument{
			Symbol:     strings.TrimSpace(e.Symbol),
			Coin:       normalizer.DescaleSymbol(strings.TrimSpace(e.BaseCoin)),
			LaunchTime: launch,
		})
	}
	return out, invalid
}

// Instruments lists the tradable linear perpetual instruments. On any failure
// the error is logged and an empty slice is returned with it.
func (c *Client) Instruments(ctx context.Context) ([]models.Instrument, error) {
	src := c.cfg.Source.Bybit
	log := c.log.WithComponent(component).WithFields(logger.Fields{"operation": "instruments"})

	instruments := []models.Instrument{}
	cursor := ""
	fetched, invalid := 0, 0
	for page := 0; page < maxInstrumentPages; page++ {
		params := map[string]interface{}{
			"category": src.Category,
			"limit":    src.InstrumentLimit,
		}
		if cursor != "" {
			params["cursor"] = cursor
		}

		payload, err := c.call(ctx, "instruments", src.Category, func() (*bybitResponse, error) {
			return c.api.InstrumentsInfo(ctx, params)
		})
		if err != nil {
			log.WithError(err).Error("failed to fetch bybit instruments")
			return []models.Instrument{}, err
		}
		parsed, err := parseInstrumentPage(payload)
		if err != nil {
			log.WithError(err).Error("failed to decode bybit instruments")
			return []models.Instrument{}, err
		}

		kept, bad := filterInstruments(parsed.List, src, c.loc)
		instruments = append(instruments, kept...)
		fetched += len(parsed.List)
		invalid += bad

		cursor = parsed.NextPageCursor
		if cursor == "" {
			break
		}
	}

	if invalid > 0 {
		log.WithFields(logger.Fields{"invalid": invalid}).Warn("skipped instruments with unparseable launch time")
	}
	log.WithFields(logger.Fields{
		"fetched": fetched,
		"kept":    len(instruments),
	}).Info("bybit instruments fetched")
	logger.LogDataFlowEntry(log, "bybit_api", "reconciler", len(instruments), "instruments")
	return instruments, nil
}
