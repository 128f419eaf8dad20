package models

import "time"

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// SOURCES ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Instrument is a Bybit linear perpetual listing.
type Instrument struct {
	Symbol     string    `json:"symbol"`
	Coin       string    `json:"coin"` // descaled, lowercase base coin
	LaunchTime time.Time `json:"coinLaunchTime"`
}

// CoinIdentity is one entry of the CoinGecko coin list.
type CoinIdentity struct {
	CoinID        string   `json:"coinId"`
	Coin          string   `json:"coin"`
	CoinName      string   `json:"coinName"`
	CoinPlatforms []string `json:"coinPlatforms"`
}

// Ratio is the latest Bybit long/short account ratio for a symbol.
type Ratio struct {
	Symbol     string    `json:"symbol"`
	BuyRatio   *float64  `json:"buyRatio"`
	SellRatio  *float64  `json:"sellRatio"`
	UpdateTime time.Time `json:"ratioUpdateTime"`
}

// CoinDetail is the normalized CoinGecko coin detail. Nil means missing.
// Percentage fields hold fractions (0.05 == 5%).
type CoinDetail struct {
	CoinID   string `json:"coinId"`
	Coin     string `json:"coin"`
	CoinName string `json:"coinName"`

	CoinSlug        *string  `json:"coinSlug"`
	Categories      []string `json:"categories"`
	AssetPlatformID *string  `json:"assetPlatformId"`
	Platforms       []string `json:"platforms"`

	FacebookLikes     *int64 `json:"facebookLikes"`
	RedditSubscribers *int64 `json:"redditSubscribers"`
	TelegramUserCount *int64 `json:"telegramUserCount"`
	XFollowers        *int64 `json:"xFollowers"`

	CoinCap         *float64 `json:"coinCap"`
	CoinCapRank     *int64   `json:"coinCapRank"`
	CoinCapFdvRatio *float64 `json:"coinCapFdvRatio"`
	CoinCapChg24h   *float64 `json:"coinCapChg24h"`

	ATH     *float64   `json:"ath"`
	ATHChg  *float64   `json:"athChg"`
	ATHDate *time.Time `json:"athDate"`
	ATL     *float64   `json:"atl"`
	ATLChg  *float64   `json:"atlChg"`
	ATLDate *time.Time `json:"atlDate"`

	CurrentPrice   *float64 `json:"currentPrice"`
	PriceChg1h     *float64 `json:"priceChg1h"`
	PriceChg24h    *float64 `json:"priceChg24h"`
	PriceChg7d     *float64 `json:"priceChg7d"`
	PriceChg14d    *float64 `json:"priceChg14d"`
	PriceChg30d    *float64 `json:"priceChg30d"`
	PriceChg60d    *float64 `json:"priceChg60d"`
	PriceChg200d   *float64 `json:"priceChg200d"`
	SentimentUp    *float64 `json:"sentimentVotesUp"`
	WatchlistUsers *int64   `json:"watchlistUsers"`

	CoinUpdateTime *time.Time `json:"coinUpdateTime"`
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// MERGED ////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// CoinRecord is one reconciled row: instrument, identity, ratio and detail
// joined together. CoinID, Coin and CoinName come from the embedded detail,
// which the join guarantees equal to the identity values.
type CoinRecord struct {
	Symbol          string    `json:"symbol"`
	CoinLaunchTime  time.Time `json:"coinLaunchTime"`
	CoinPlatforms   []string  `json:"coinPlatforms"`
	BuyRatio        *float64  `json:"buyRatio"`
	SellRatio       *float64  `json:"sellRatio"`
	RatioUpdateTime time.Time `json:"ratioUpdateTime"`

	CoinDetail

	FirstCoinPlatform *string `json:"1stCoinPlatform"`
}

// UpdateTimes returns the timestamps that date this record for staleness.
func (r CoinRecord) UpdateTimes() []time.Time {
	out := []time.Time{r.RatioUpdateTime}
	if r.CoinUpdateTime != nil {
		out = append(out, *r.CoinUpdateTime)
	}
	return out
}

// FirstPlatform returns the first identity platform or nil when the coin
// lists none.
func (r CoinRecord) FirstPlatform() *string {
	if len(r.CoinPlatforms) == 0 {
		return nil
	}
	p := r.CoinPlatforms[0]
	return &p
}

// FetchFailure records an item a batch fetch had to skip.
type FetchFailure struct {
	ID  string `json:"id"`
	Err string `json:"error"`
}
