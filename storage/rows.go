package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"cryptolens/models"
)

// coinRow is the parquet layout of a CoinRecord. Times are UTC epoch millis;
// list columns hold JSON arrays so order and emptiness survive a round trip.
type coinRow struct {
	Symbol          string   `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	CoinLaunchTime  int64    `parquet:"name=coin_launch_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	CoinPlatforms   string   `parquet:"name=coin_platforms, type=BYTE_ARRAY, convertedtype=UTF8"`
	BuyRatio        *float64 `parquet:"name=buy_ratio, type=DOUBLE, repetitiontype=OPTIONAL"`
	SellRatio       *float64 `parquet:"name=sell_ratio, type=DOUBLE, repetitiontype=OPTIONAL"`
	RatioUpdateTime int64    `parquet:"name=ratio_update_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`

	CoinID          string  `parquet:"name=coin_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Coin            string  `parquet:"name=coin, type=BYTE_ARRAY, convertedtype=UTF8"`
	CoinName        string  `parquet:"name=coin_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	CoinSlug        *string `parquet:"name=coin_slug, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Categories      string  `parquet:"name=categories, type=BYTE_ARRAY, convertedtype=UTF8"`
	AssetPlatformID *string `parquet:"name=asset_platform_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Platforms       string  `parquet:"name=platforms, type=BYTE_ARRAY, convertedtype=UTF8"`

	FacebookLikes     *int64 `parquet:"name=facebook_likes, type=INT64, repetitiontype=OPTIONAL"`
	RedditSubscribers *int64 `parquet:"name=reddit_subscribers, type=INT64, repetitiontype=OPTIONAL"`
	TelegramUserCount *int64 `parquet:"name=telegram_user_count, type=INT64, repetitiontype=OPTIONAL"`
	XFollowers        *int64 `parquet:"name=x_followers, type=INT64, repetitiontype=OPTIONAL"`

	CoinCap         *float64 `parquet:"name=coin_cap, type=DOUBLE, repetitiontype=OPTIONAL"`
	CoinCapRank     *int64   `parquet:"name=coin_cap_rank, type=INT64, repetitiontype=OPTIONAL"`
	CoinCapFdvRatio *float64 `parquet:"name=coin_cap_fdv_ratio, type=DOUBLE, repetitiontype=OPTIONAL"`
	CoinCapChg24h   *float64 `parquet:"name=coin_cap_chg_24h, type=DOUBLE, repetitiontype=OPTIONAL"`

	ATH     *float64 `parquet:"name=ath, type=DOUBLE, repetitiontype=OPTIONAL"`
	ATHChg  *float64 `parquet:"name=ath_chg, type=DOUBLE, repetitiontype=OPTIONAL"`
	ATHDate *int64   `parquet:"name=ath_date, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL"`
	ATL     *float64 `parquet:"name=atl, type=DOUBLE, repetitiontype=OPTIONAL"`
	ATLChg  *float64 `parquet:"name=atl_chg, type=DOUBLE, repetitiontype=OPTIONAL"`
	ATLDate *int64   `parquet:"name=atl_date, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL"`

	CurrentPrice   *float64 `parquet:"name=current_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	PriceChg1h     *float64 `parquet:"name=price_chg_1h, type=DOUBLE, repetitiontype=OPTIONAL"`
	PriceChg24h    *float64 `parquet:"name=price_chg_24h, type=DOUBLE, repetitiontype=OPTIONAL"`
	PriceChg7d     *float64 `parquet:"name=price_chg_7d, type=DOUBLE, repetitiontype=OPTIONAL"`
	PriceChg14d    *float64 `parquet:"name=price_chg_14d, type=DOUBLE, repetitiontype=OPTIONAL"`
	PriceChg30d    *float64 `parquet:"name=price_chg_30d, type=DOUBLE, repetitiontype=OPTIONAL"`
	PriceChg60d    *float64 `parquet:"name=price_chg_60d, type=DOUBLE, repetitiontype=OPTIONAL"`
	PriceChg200d   *float64 `parquet:"name=price_chg_200d, type=DOUBLE, repetitiontype=OPTIONAL"`
	SentimentUp    *float64 `parquet:"name=sentiment_votes_up, type=DOUBLE, repetitiontype=OPTIONAL"`
	WatchlistUsers *int64   `parquet:"name=watchlist_users, type=INT64, repetitiontype=OPTIONAL"`

	CoinUpdateTime *int64 `parquet:"name=coin_update_time, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL"`
}

// categoryRow is the parquet layout of a Category.
type categoryRow struct {
	CategoryID         string   `parquet:"name=category_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	CategoryName       string   `parquet:"name=category_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	CategoryCap        *float64 `parquet:"name=category_cap, type=DOUBLE, repetitiontype=OPTIONAL"`
	CategoryCapChg24h  *float64 `parquet:"name=category_cap_chg_24h, type=DOUBLE, repetitiontype=OPTIONAL"`
	CategoryVol24h     *float64 `parquet:"name=category_vol_24h, type=DOUBLE, repetitiontype=OPTIONAL"`
	CategoryUpdateTime *int64   `parquet:"name=category_update_time, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL"`
}

func millisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func timePtr(ms *int64, loc *time.Location) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).In(loc)
	return &t
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList(s string) ([]string, error) {
	out := []string{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func toCoinRow(r models.CoinRecord) (coinRow, error) {
	coinPlatforms, err := encodeList(r.CoinPlatforms)
	if err != nil {
		return coinRow{}, fmt.Errorf("encode coin platforms of %s: %w", r.CoinID, err)
	}
	categories, err := encodeList(r.Categories)
	if err != nil {
		return coinRow{}, fmt.Errorf("encode categories of %s: %w", r.CoinID, err)
	}
	platforms, err := encodeList(r.Platforms)
	if err != nil {
		return coinRow{}, fmt.Errorf("encode platforms of %s: %w", r.CoinID, err)
	}
	return coinRow{
		Symbol:          r.Symbol,
		CoinLaunchTime:  r.CoinLaunchTime.UnixMilli(),
		CoinPlatforms:   coinPlatforms,
		BuyRatio:        r.BuyRatio,
		SellRatio:       r.SellRatio,
		RatioUpdateTime: r.RatioUpdateTime.UnixMilli(),

		CoinID:          r.CoinID,
		Coin:            r.Coin,
		CoinName:        r.CoinName,
		CoinSlug:        r.CoinSlug,
		Categories:      categories,
		AssetPlatformID: r.AssetPlatformID,
		Platforms:       platforms,

		FacebookLikes:     r.FacebookLikes,
		RedditSubscribers: r.RedditSubscribers,
		TelegramUserCount: r.TelegramUserCount,
		XFollowers:        r.XFollowers,

		CoinCap:         r.CoinCap,
		CoinCapRank:     r.CoinCapRank,
		CoinCapFdvRatio: r.CoinCapFdvRatio,
		CoinCapChg24h:   r.CoinCapChg24h,

		ATH:     r.ATH,
		ATHChg:  r.ATHChg,
		ATHDate: millisPtr(r.ATHDate),
		ATL:     r.ATL,
		ATLChg:  r.ATLChg,
		ATLDate: millisPtr(r.ATLDate),

		CurrentPrice:   r.CurrentPrice,
		PriceChg1h:     r.PriceChg1h,
		PriceChg24h:    r.PriceChg24h,
		PriceChg7d:     r.PriceChg7d,
		PriceChg14d:    r.PriceChg14d,
		PriceChg30d:    r.PriceChg30d,
		PriceChg60d:    r.PriceChg60d,
		PriceChg200d:   r.PriceChg200d,
		SentimentUp:    r.SentimentUp,
		WatchlistUsers: r.WatchlistUsers,

		CoinUpdateTime: millisPtr(r.CoinUpdateTime),
	}, nil
}

func fromCoinRow(row coinRow, loc *time.Location) (models.CoinRecord, error) {
	coinPlatforms, err := decodeList(row.CoinPlatforms)
	if err != nil {
		return models.CoinRecord{}, fmt.Errorf("decode coin platforms of %s: %w", row.CoinID, err)
	}
	categories, err := decodeList(row.Categories)
	if err != nil {
		return models.CoinRecord{}, fmt.Errorf("decode categories of %s: %w", row.CoinID, err)
	}
	platforms, err := decodeList(row.Platforms)
	if err != nil {
		return models.CoinRecord{}, fmt.Errorf("decode platforms of %s: %w", row.CoinID, err)
	}
	rec := models.CoinRecord{
		Symbol:          row.Symbol,
		CoinLaunchTime:  time.UnixMilli(row.CoinLaunchTime).In(loc),
		CoinPlatforms:   coinPlatforms,
		BuyRatio:        row.BuyRatio,
		SellRatio:       row.SellRatio,
		RatioUpdateTime: time.UnixMilli(row.RatioUpdateTime).In(loc),
		CoinDetail: models.CoinDetail{
			CoinID:          row.CoinID,
			Coin:            row.Coin,
			CoinName:        row.CoinName,
			CoinSlug:        row.CoinSlug,
			Categories:      categories,
			AssetPlatformID: row.AssetPlatformID,
			Platforms:       platforms,

			FacebookLikes:     row.FacebookLikes,
			RedditSubscribers: row.RedditSubscribers,
			TelegramUserCount: row.TelegramUserCount,
			XFollowers:        row.XFollowers,

			CoinCap:         row.CoinCap,
			CoinCapRank:     row.CoinCapRank,
			CoinCapFdvRatio: row.CoinCapFdvRatio,
			CoinCapChg24h:   row.CoinCapChg24h,

			ATH:     row.ATH,
			ATHChg:  row.ATHChg,
			ATHDate: timePtr(row.ATHDate, loc),
			ATL:     row.ATL,
			ATLChg:  row.ATLChg,
			ATLDate: timePtr(row.ATLDate, loc),

			CurrentPrice:   row.CurrentPrice,
			PriceChg1h:     row.PriceChg1h,
			PriceChg24h:    row.PriceChg24h,
			PriceChg7d:     row.PriceChg7d,
			PriceChg14d:    row.PriceChg14d,
			PriceChg30d:    row.PriceChg30d,
			PriceChg60d:    row.PriceChg60d,
			PriceChg200d:   row.PriceChg200d,
			SentimentUp:    row.SentimentUp,
			WatchlistUsers: row.WatchlistUsers,

			CoinUpdateTime: timePtr(row.CoinUpdateTime, loc),
		},
	}
	rec.FirstCoinPlatform = rec.FirstPlatform()
	return rec, nil
}

func toCategoryRow(c models.Category) categoryRow {
	return categoryRow{
		CategoryID:         c.CategoryID,
		CategoryName:       c.CategoryName,
		CategoryCap:        c.CategoryCap,
		CategoryCapChg24h:  c.CategoryCapChg24h,
		CategoryVol24h:     c.CategoryVol24h,
		CategoryUpdateTime: millisPtr(c.CategoryUpdateTime),
	}
}

func fromCategoryRow(row categoryRow, loc *time.Location) models.Category {
	return models.Category{
		CategoryID:         row.CategoryID,
		CategoryName:       row.CategoryName,
		CategoryCap:        row.CategoryCap,
		CategoryCapChg24h:  row.CategoryCapChg24h,
		CategoryVol24h:     row.CategoryVol24h,
		CategoryUpdateTime: timePtr(row.CategoryUpdateTime, loc),
	}
}
