package processor

import (
	"cryptolens/models"
)

// innerJoin pairs every left row with every right row sharing its key.
// Output follows left order, then right order within a key. Rows without a
// partner are dropped and counted in the returned stats.
func innerJoin[L, R any, K comparable](name string, left []L, right []R, leftKey func(L) K, rightKey func(R) K) ([]L, []R, models.JoinStats) {
	index := make(map[K][]int, len(right))
	for i, r := range right {
		k := rightKey(r)
		index[k] = append(index[k], i)
	}

	stats := models.JoinStats{Name: name, Left: len(left), Right: len(right)}
	usedRight := make([]bool, len(right))
	var outL []L
	var outR []R
	for _, l := range left {
		matches := index[leftKey(l)]
		if len(matches) == 0 {
			stats.LeftDropped++
			continue
		}
		for _, i := range matches {
			outL = append(outL, l)
			outR = append(outR, right[i])
			usedRight[i] = true
		}
	}
	for _, used := range usedRight {
		if !used {
			stats.RightDropped++
		}
	}
	stats.Matched = len(outL)
	return outL, outR, stats
}

// listing is an instrument matched with its coin identity.
type listing struct {
	models.Instrument
	Identity models.CoinIdentity
}

// joinListings matches Bybit instruments with CoinGecko identities on the
// descaled coin symbol.
func joinListings(instruments []models.Instrument, identities []models.CoinIdentity) ([]listing, models.JoinStats) {
	ls, rs, stats := innerJoin("instruments_coins", instruments, identities,
		func(i models.Instrument) string { return i.Coin },
		func(c models.CoinIdentity) string { return c.Coin },
	)
	out := make([]listing, len(ls))
	for i := range ls {
		out[i] = listing{Instrument: ls[i], Identity: rs[i]}
	}
	return out, stats
}

// ratedListing is a listing with its account ratio.
type ratedListing struct {
	listing
	Ratio models.Ratio
}

// joinRatios matches listings with account ratios on the contract symbol.
func joinRatios(listings []listing, ratios []models.Ratio) ([]ratedListing, models.JoinStats) {
	ls, rs, stats := innerJoin("listings_ratios", listings, ratios,
		func(l listing) string { return l.Symbol },
		func(r models.Ratio) string { return r.Symbol },
	)
	out := make([]ratedListing, len(ls))
	for i := range ls {
		out[i] = ratedListing{listing: ls[i], Ratio: rs[i]}
	}
	return out, stats
}

type detailKey struct {
	id, name, coin string
}

// joinDetails matches rated listings with coin details on coin id, name
// and symbol and builds the merged records.
func joinDetails(rated []ratedListing, details []models.CoinDetail) ([]models.CoinRecord, models.JoinStats) {
	ls, rs, stats := innerJoin("coins_details", rated, details,
		func(r ratedListing) detailKey {
			return detailKey{r.Identity.CoinID, r.Identity.CoinName, r.Identity.Coin}
		},
		func(d models.CoinDetail) detailKey { return detailKey{d.CoinID, d.CoinName, d.Coin} },
	)
	out := make([]models.CoinRecord, len(ls))
	for i, r := range ls {
		out[i] = models.CoinRecord{
			Symbol:          r.Symbol,
			CoinLaunchTime:  r.LaunchTime,
			CoinPlatforms:   r.Identity.CoinPlatforms,
			BuyRatio:        r.Ratio.BuyRatio,
			SellRatio:       r.Ratio.SellRatio,
			RatioUpdateTime: r.Ratio.UpdateTime,
			CoinDetail:      rs[i],
		}
	}
	return out, stats
}
