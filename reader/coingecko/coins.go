package coingecko

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"cryptolens/logger"
	"cryptolens/models"
	"cryptolens/normalizer"
)

type coinListEntry struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Platforms json.RawMessage `json:"platforms"`
}

// objectKeys returns the keys of a JSON object in document order. Null or
// absent input yields no keys.
func objectKeys(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key token %v", tok)
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// parseCoinList decodes /coins/list with platforms into identities. Platform
// names keep the provider's key order and are cleaned.
func parseCoinList(body []byte) ([]models.CoinIdentity, error) {
	var entries []coinListEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode coin list: %w", err)
	}
	out := make([]models.CoinIdentity, 0, len(entries))
	for _, e := range entries {
		keys, err := objectKeys(e.Platforms)
		if err != nil {
			return nil, fmt.Errorf("decode platforms of %s: %w", e.ID, err)
		}
		out = append(out, models.CoinIdentity{
			CoinID:        strings.TrimSpace(e.ID),
			Coin:          strings.TrimSpace(e.Symbol),
			CoinName:      strings.TrimSpace(e.Name),
			CoinPlatforms: normalizer.CleanList(keys),
		})
	}
	return out, nil
}

// CoinList fetches every coin identity with its platforms. On failure the
// error is logged and an empty slice is returned with it.
func (c *Client) CoinList(ctx context.Context) ([]models.CoinIdentity, error) {
	log := c.log.WithComponent(component).WithFields(logger.Fields{"operation": "coin_list"})

	body, err := c.get(ctx, "coin_list", "all", "/coins/list", url.Values{"include_platform": {"true"}})
	if err != nil {
		log.WithError(err).Error("failed to fetch coingecko coin list")
		return []models.CoinIdentity{}, err
	}
	coins, err := parseCoinList(body)
	if err != nil {
		log.WithError(err).Error("failed to decode coingecko coin list")
		return []models.CoinIdentity{}, err
	}

	log.WithFields(logger.Fields{"coins": len(coins)}).Info("coingecko coin list fetched")
	logger.LogDataFlowEntry(log, "coingecko_api", "reconciler", len(coins), "coin_identities")
	return coins, nil
}
