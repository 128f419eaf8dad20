package models

import "time"

// Category is a CoinGecko coin category with its market aggregates.
type Category struct {
	CategoryID         string     `json:"categoryId"`
	CategoryName       string     `json:"categoryName"`
	CategoryCap        *float64   `json:"categoryCap"`
	CategoryCapChg24h  *float64   `json:"categoryCapChg24h"`
	CategoryVol24h     *float64   `json:"categoryVol24h"`
	CategoryUpdateTime *time.Time `json:"categoryUpdateTime"`
}

// UpdateTimes returns the timestamps that date this category for staleness.
func (c Category) UpdateTimes() []time.Time {
	if c.CategoryUpdateTime == nil {
		return nil
	}
	return []time.Time{*c.CategoryUpdateTime}
}

// MergeStatus tags which side of the category outer join a row came from.
type MergeStatus string

const (
	MergeBoth      MergeStatus = "both"
	MergeLeftOnly  MergeStatus = "left_only"
	MergeRightOnly MergeStatus = "right_only"
)

// CategoryMatch is one row of the coin-category to category-list outer join.
// Coin is nil for right-only rows and Category is nil for left-only rows.
type CategoryMatch struct {
	CategoryName string      `json:"categoryName"`
	Coin         *CoinRecord `json:"coin,omitempty"`
	Category     *Category   `json:"category,omitempty"`
	Status       MergeStatus `json:"_merge"`
}

// JoinStats counts rows on each side of an inner join.
type JoinStats struct {
	Name        string `json:"name"`
	Left        int    `json:"left"`
	Right       int    `json:"right"`
	Matched     int    `json:"matched"`
	LeftDropped int    `json:"left_dropped"`
	// RightDropped counts right rows with no partner on the left.
	RightDropped int `json:"right_dropped"`
}

// Diagnostics collects the reconciliation mismatches of one run. They are
// reported as warnings and never stop the run.
type Diagnostics struct {
	PlatformListMismatches []string `json:"platform_list_mismatches"`
	PrimaryPlatformDiffs   []string `json:"primary_platform_diffs"`
	DuplicateCoinPairs     []string `json:"duplicate_coin_pairs"`
	CoinOnlyCategories     []string `json:"coin_only_categories"`
	ListOnlyCategories     []string `json:"list_only_categories"`
}
