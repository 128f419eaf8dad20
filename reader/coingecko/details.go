package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"cryptolens/internal/metrics/limits"
	"cryptolens/logger"
	"cryptolens/models"
	"cryptolens/normalizer"
)

type currencyValues map[string]*float64

func (v currencyValues) usd() *float64 { return v["usd"] }

type currencyDates map[string]*string

func (v currencyDates) usd() *string { return v["usd"] }

type coinDetailResponse struct {
	ID              string          `json:"id"`
	Symbol          string          `json:"symbol"`
	Name            string          `json:"name"`
	WebSlug         *string         `json:"web_slug"`
	Categories      []*string       `json:"categories"`
	AssetPlatformID *string         `json:"asset_platform_id"`
	Platforms       json.RawMessage `json:"platforms"`

	MarketCapRank              *float64 `json:"market_cap_rank"`
	MarketCapFdvRatio          *float64 `json:"market_cap_fdv_ratio"`
	SentimentVotesUpPercentage *float64 `json:"sentiment_votes_up_percentage"`
	WatchlistPortfolioUsers    *float64 `json:"watchlist_portfolio_users"`
	LastUpdated                *string  `json:"last_updated"`

	CommunityData *struct {
		FacebookLikes            *float64 `json:"facebook_likes"`
		RedditSubscribers        *float64 `json:"reddit_subscribers"`
		TelegramChannelUserCount *float64 `json:"telegram_channel_user_count"`
		TwitterFollowers         *float64 `json:"twitter_followers"`
	} `json:"community_data"`

	MarketData *struct {
		MarketCap                         currencyValues `json:"market_cap"`
		MarketCapFdvRatio                 *float64       `json:"market_cap_fdv_ratio"`
		MarketCapChangePercentage24h      currencyValues `json:"market_cap_change_percentage_24h_in_currency"`
		ATH                               currencyValues `json:"ath"`
		ATHChangePercentage               currencyValues `json:"ath_change_percentage"`
		ATHDate                           currencyDates  `json:"ath_date"`
		ATL                               currencyValues `json:"atl"`
		ATLChangePercentage               currencyValues `json:"atl_change_percentage"`
		ATLDate                           currencyDates  `json:"atl_date"`
		CurrentPrice                      currencyValues `json:"current_price"`
		PriceChangePercentage1hInCurrency currencyValues `json:"price_change_percentage_1h_in_currency"`
		PriceChangePercentage24h          currencyValues `json:"price_change_percentage_24h_in_currency"`
		PriceChangePercentage7d           currencyValues `json:"price_change_percentage_7d_in_currency"`
		PriceChangePercentage14d          currencyValues `json:"price_change_percentage_14d_in_currency"`
		PriceChangePercentage30d          currencyValues `json:"price_change_percentage_30d_in_currency"`
		PriceChangePercentage60d          currencyValues `json:"price_change_percentage_60d_in_currency"`
		PriceChangePercentage200d         currencyValues `json:"price_change_percentage_200d_in_currency"`
	} `json:"market_data"`
}

// count converts a JSON number to an integer count. Fractional or
// non-finite values are treated as missing.
func count(v *float64) *int64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v != math.Trunc(*v) {
		return nil
	}
	n := int64(*v)
	return &n
}

func nonNil(list []*string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// parseCoinDetail decodes /coins/{id} and normalizes it: strings trimmed,
// lists cleaned, dates moved into loc and percentages scaled to fractions.
func parseCoinDetail(body []byte, loc *time.Location) (models.CoinDetail, error) {
	var r coinDetailResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return models.CoinDetail{}, fmt.Errorf("decode coin detail: %w", err)
	}
	platforms, err := objectKeys(r.Platforms)
	if err != nil {
		return models.CoinDetail{}, fmt.Errorf("decode platforms of %s: %w", r.ID, err)
	}

	d := models.CoinDetail{
		CoinID:          strings.TrimSpace(r.ID),
		Coin:            strings.TrimSpace(r.Symbol),
		CoinName:        strings.TrimSpace(r.Name),
		CoinSlug:        normalizer.TrimPtr(r.WebSlug),
		Categories:      normalizer.CleanList(nonNil(r.Categories)),
		AssetPlatformID: normalizer.TrimPtr(r.AssetPlatformID),
		Platforms:       normalizer.CleanList(platforms),
		CoinCapRank:     count(r.MarketCapRank),
		CoinCapFdvRatio: r.MarketCapFdvRatio,
		SentimentUp:     normalizer.ScalePercentage(r.SentimentVotesUpPercentage),
		WatchlistUsers:  count(r.WatchlistPortfolioUsers),
		CoinUpdateTime:  normalizer.OptionalISO(r.LastUpdated, loc),
	}

	if cd := r.CommunityData; cd != nil {
		d.FacebookLikes = count(cd.FacebookLikes)
		d.RedditSubscribers = count(cd.RedditSubscribers)
		d.TelegramUserCount = count(cd.TelegramChannelUserCount)
		d.XFollowers = count(cd.TwitterFollowers)
	}

	if md := r.MarketData; md != nil {
		d.CoinCap = md.MarketCap.usd()
		if d.CoinCapFdvRatio == nil {
			d.CoinCapFdvRatio = md.MarketCapFdvRatio
		}
		d.CoinCapChg24h = normalizer.ScalePercentage(md.MarketCapChangePercentage24h.usd())
		d.ATH = md.ATH.usd()
		d.ATHChg = normalizer.ScalePercentage(md.ATHChangePercentage.usd())
		d.ATHDate = normalizer.OptionalISO(md.ATHDate.usd(), loc)
		d.ATL = md.ATL.usd()
		d.ATLChg = normalizer.ScalePercentage(md.ATLChangePercentage.usd())
		d.ATLDate = normalizer.OptionalISO(md.ATLDate.usd(), loc)
		d.CurrentPrice = md.CurrentPrice.usd()
		d.PriceChg1h = normalizer.ScalePercentage(md.PriceChangePercentage1hInCurrency.usd())
		d.PriceChg24h = normalizer.ScalePercentage(md.PriceChangePercentage24h.usd())
		d.PriceChg7d = normalizer.ScalePercentage(md.PriceChangePercentage7d.usd())
		d.PriceChg14d = normalizer.ScalePercentage(md.PriceChangePercentage14d.usd())
		d.PriceChg30d = normalizer.ScalePercentage(md.PriceChangePercentage30d.usd())
		d.PriceChg60d = normalizer.ScalePercentage(md.PriceChangePercentage60d.usd())
		d.PriceChg200d = normalizer.ScalePercentage(md.PriceChangePercentage200d.usd())
	}
	return d, nil
}

func (c *Client) coinDetail(ctx context.Context, id string) (models.CoinDetail, error) {
	body, err := c.get(ctx, "coin_detail", id, "/coins/"+url.PathEscape(id), url.Values{"sparkline": {"true"}})
	if err != nil {
		return models.CoinDetail{}, err
	}
	return parseCoinDetail(body, c.loc)
}

// CoinDetails fetches the detail of every id, spacing requests by the
// configured delay. Ids that fail are skipped and returned as failures.
func (c *Client) CoinDetails(ctx context.Context, ids []string) ([]models.CoinDetail, []models.FetchFailure) {
	log := c.log.WithComponent(component).WithFields(logger.Fields{"operation": "coin_details"})
	start := time.Now()

	details := []models.CoinDetail{}
	var failures []models.FetchFailure
	for i, id := range ids {
		if err := c.limiter.Wait(ctx); err != nil {
			for _, rest := range ids[i:] {
				failures = append(failures, models.FetchFailure{ID: rest, Err: err.Error()})
			}
			break
		}
		d, err := c.coinDetail(ctx, id)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"id": id}).Warn("failed to fetch coin detail, skipping")
			failures = append(failures, models.FetchFailure{ID: id, Err: err.Error()})
			continue
		}
		details = append(details, d)
	}

	limits.ReportFailures(log, component, "id", failures)
	logger.LogPerformanceEntry(log, component, "fetch_details", time.Since(start), logger.Fields{
		"requested": len(ids),
		"rows":      len(details),
		"failed":    len(failures),
	})
	logger.LogDataFlowEntry(log, "coingecko_api", "reconciler", len(details), "coin_details")
	return details, failures
}
