package processor

import (
	"sort"

	"cryptolens/models"
	"cryptolens/normalizer"
)

// lastUnique returns the distinct values in first-seen order, keeping only
// the last limit of them. A limit of zero or less keeps all.
func lastUnique(values []string, limit int) []string {
	seen := make(map[string]struct{}, len(values))
	unique := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		unique = append(unique, v)
	}
	if limit > 0 && len(unique) > limit {
		unique = unique[len(unique)-limit:]
	}
	return unique
}

// sampleKeys picks the symbols and coin ids the per-item fetches will use.
func sampleKeys(listings []listing, limit int) (symbols, ids []string) {
	allSymbols := make([]string, len(listings))
	allIDs := make([]string, len(listings))
	for i, l := range listings {
		allSymbols[i] = l.Symbol
		allIDs[i] = l.Identity.CoinID
	}
	return lastUnique(allSymbols, limit), lastUnique(allIDs, limit)
}

func recordFloats(r *models.CoinRecord) []**float64 {
	return []**float64{
		&r.BuyRatio, &r.SellRatio,
		&r.CoinCap, &r.CoinCapFdvRatio, &r.CoinCapChg24h,
		&r.ATH, &r.ATHChg, &r.ATL, &r.ATLChg,
		&r.CurrentPrice, &r.PriceChg1h, &r.PriceChg24h, &r.PriceChg7d,
		&r.PriceChg14d, &r.PriceChg30d, &r.PriceChg60d, &r.PriceChg200d,
		&r.SentimentUp,
	}
}

// sanitize replaces every non-finite number and blank optional string with
// nil so missing values have a single representation.
func sanitize(coins []models.CoinRecord) {
	for i := range coins {
		r := &coins[i]
		for _, f := range recordFloats(r) {
			if normalizer.Missing(*f) {
				*f = nil
			}
		}
		r.CoinSlug = normalizer.TrimPtr(r.CoinSlug)
		r.AssetPlatformID = normalizer.TrimPtr(r.AssetPlatformID)
		if r.CoinPlatforms == nil {
			r.CoinPlatforms = []string{}
		}
		if r.Categories == nil {
			r.Categories = []string{}
		}
		if r.Platforms == nil {
			r.Platforms = []string{}
		}
	}
}

func sameList(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// diagnosePlatforms derives the first identity platform of every record and
// returns the symbols whose identity and detail platform lists differ and
// those whose first platform disagrees with a set asset platform.
func diagnosePlatforms(coins []models.CoinRecord) (listMismatches, primaryDiffs []string) {
	for i := range coins {
		r := &coins[i]
		r.FirstCoinPlatform = r.FirstPlatform()
		if !sameList(r.CoinPlatforms, r.Platforms) {
			listMismatches = append(listMismatches, r.Symbol)
		}
		if r.AssetPlatformID == nil {
			continue
		}
		if r.FirstCoinPlatform == nil || *r.FirstCoinPlatform != *r.AssetPlatformID {
			primaryDiffs = append(primaryDiffs, r.Symbol)
		}
	}
	return listMismatches, primaryDiffs
}

// duplicateCoinPairs returns the "coinId/coin" pairs carried by more than one
// record, in first-seen order, with the symbols behind each. Scaled and
// unscaled contracts such as PEPEUSDT and 1000PEPEUSDT end up here.
func duplicateCoinPairs(coins []models.CoinRecord) ([]string, map[string][]string) {
	var order []string
	symbols := map[string][]string{}
	for _, r := range coins {
		key := r.CoinID + "/" + r.Coin
		if _, seen := symbols[key]; !seen {
			order = append(order, key)
		}
		symbols[key] = append(symbols[key], r.Symbol)
	}
	var pairs []string
	dups := map[string][]string{}
	for _, key := range order {
		if len(symbols[key]) > 1 {
			pairs = append(pairs, key)
			dups[key] = symbols[key]
		}
	}
	return pairs, dups
}

func positive(v *float64) bool {
	return !normalizer.Missing(v) && *v > 0
}

// RankCoins keeps coins with a known, strictly positive market cap and
// sorts them by market cap, largest first. Ties keep their input order.
func RankCoins(coins []models.CoinRecord) []models.CoinRecord {
	out := make([]models.CoinRecord, 0, len(coins))
	for _, c := range coins {
		if positive(c.CoinCap) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].CoinCap > *out[j].CoinCap })
	return out
}

// RankCategories applies the same market cap filter and order to categories.
func RankCategories(categories []models.Category) []models.Category {
	out := make([]models.Category, 0, len(categories))
	for _, c := range categories {
		if positive(c.CategoryCap) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].CategoryCap > *out[j].CategoryCap })
	return out
}

// MatchCategories explodes each coin's category names and outer-joins them
// with the category list on name. Matched and coin-only rows follow coin
// order; list-only rows follow list order at the end.
func MatchCategories(coins []models.CoinRecord, categories []models.Category) []models.CategoryMatch {
	byName := make(map[string][]int, len(categories))
	for i, c := range categories {
		byName[c.CategoryName] = append(byName[c.CategoryName], i)
	}

	used := make([]bool, len(categories))
	var out []models.CategoryMatch
	for i := range coins {
		coin := &coins[i]
		for _, name := range coin.Categories {
			if name == "" {
				continue
			}
			matches := byName[name]
			if len(matches) == 0 {
				out = append(out, models.CategoryMatch{CategoryName: name, Coin: coin, Status: models.MergeLeftOnly})
				continue
			}
			for _, j := range matches {
				used[j] = true
				out = append(out, models.CategoryMatch{CategoryName: name, Coin: coin, Category: &categories[j], Status: models.MergeBoth})
			}
		}
	}
	for j := range categories {
		if !used[j] {
			out = append(out, models.CategoryMatch{CategoryName: categories[j].CategoryName, Category: &categories[j], Status: models.MergeRightOnly})
		}
	}
	return out
}

// UnmatchedCategories returns the distinct left-only and right-only names
// of a category match, each in first-seen order.
func UnmatchedCategories(matches []models.CategoryMatch) (coinOnly, listOnly []string) {
	var left, right []string
	for _, m := range matches {
		switch m.Status {
		case models.MergeLeftOnly:
			left = append(left, m.CategoryName)
		case models.MergeRightOnly:
			right = append(right, m.CategoryName)
		}
	}
	return lastUnique(left, 0), lastUnique(right, 0)
}
