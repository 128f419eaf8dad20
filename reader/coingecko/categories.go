package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cryptolens/logger"
	"cryptolens/models"
	"cryptolens/normalizer"
)

type categoryEntry struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	MarketCap          *float64 `json:"market_cap"`
	MarketCapChange24h *float64 `json:"market_cap_change_24h"`
	Volume24h          *float64 `json:"volume_24h"`
	UpdatedAt          *string  `json:"updated_at"`
}

func parseCategories(body []byte, loc *time.Location) ([]models.Category, error) {
	var entries []categoryEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	out := make([]models.Category, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.Category{
			CategoryID:         strings.TrimSpace(e.ID),
			CategoryName:       strings.TrimSpace(e.Name),
			CategoryCap:        e.MarketCap,
			CategoryCapChg24h:  e.MarketCapChange24h,
			CategoryVol24h:     e.Volume24h,
			CategoryUpdateTime: normalizer.OptionalISO(e.UpdatedAt, loc),
		})
	}
	return out, nil
}

// Categories fetches every category ordered by market cap. On failure the
// error is logged and an empty slice is returned with it.
func (c *Client) Categories(ctx context.Context) ([]models.Category, error) {
	log := c.log.WithComponent(component).WithFields(logger.Fields{"operation": "categories"})

	body, err := c.get(ctx, "categories", "all", "/coins/categories", url.Values{"order": {"market_cap_desc"}})
	if err != nil {
		log.WithError(err).Error("failed to fetch coingecko categories")
		return []models.Category{}, err
	}
	categories, err := parseCategories(body, c.loc)
	if err != nil {
		log.WithError(err).Error("failed to decode coingecko categories")
		return []models.Category{}, err
	}

	log.WithFields(logger.Fields{"categories": len(categories)}).Info("coingecko categories fetched")
	logger.LogDataFlowEntry(log, "coingecko_api", "reconciler", len(categories), "categories")
	return categories, nil
}
