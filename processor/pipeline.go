package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	appconfig "cryptolens/config"
	"cryptolens/logger"
	"cryptolens/models"
)

const component = "reconciler"

// MarketSource is the Bybit side of the pipeline.
type MarketSource interface {
	Instruments(ctx context.Context) ([]models.Instrument, error)
	Ratios(ctx context.Context, symbols []string) ([]models.Ratio, []models.FetchFailure)
}

// CoinSource is the CoinGecko side of the pipeline.
type CoinSource interface {
	CoinList(ctx context.Context) ([]models.CoinIdentity, error)
	CoinDetails(ctx context.Context, ids []string) ([]models.CoinDetail, []models.FetchFailure)
	Categories(ctx context.Context) ([]models.Category, error)
}

// SnapshotStore persists and reloads snapshots.
type SnapshotStore interface {
	LatestCoins() ([]models.CoinRecord, string, error)
	LatestCategories() ([]models.Category, string, error)
	SaveCoins(ctx context.Context, stamp time.Time, coins []models.CoinRecord) (string, error)
	SaveCategories(ctx context.Context, stamp time.Time, categories []models.Category) (string, error)
	LoadCoins(path string) ([]models.CoinRecord, error)
	LoadCategories(path string) ([]models.Category, error)
}

// Exporter writes the spreadsheet reports.
type Exporter interface {
	ExportCoins(path string, coins []models.CoinRecord) error
	ExportCategories(path string, categories []models.Category) error
}

// Result is the outcome of one run.
type Result struct {
	Refreshed      bool
	CoinsPath      string
	CategoriesPath string
	// Coins and Categories are filtered to positive market cap and ranked.
	Coins       []models.CoinRecord
	Categories  []models.Category
	Matches     []models.CategoryMatch
	Diagnostics models.Diagnostics
	Joins       []models.JoinStats
	Failures    []models.FetchFailure
}

// Pipeline runs the staleness check, refresh, reconciliation and export in
// order.
type Pipeline struct {
	cfg      *appconfig.Config
	market   MarketSource
	coins    CoinSource
	store    SnapshotStore
	exporter Exporter
	log      *logger.Log
	now      func() time.Time
}

// NewPipeline wires the stages together. exporter may be nil to skip
// reports.
func NewPipeline(cfg *appconfig.Config, market MarketSource, coins CoinSource, store SnapshotStore, exporter Exporter) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		market:   market,
		coins:    coins,
		store:    store,
		exporter: exporter,
		log:      logger.GetLogger(),
		now:      time.Now,
	}
}

// Run executes one pass. Snapshot and report failures are returned; fetch
// failures and reconciliation mismatches are logged and reported.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	log := p.log.WithComponent(component)
	start := time.Now()
	res := &Result{}

	coins, coinsPath, err := p.store.LatestCoins()
	if err != nil {
		return nil, fmt.Errorf("load coin snapshot: %w", err)
	}
	categories, categoriesPath, err := p.store.LatestCategories()
	if err != nil {
		return nil, fmt.Errorf("load category snapshot: %w", err)
	}

	now := p.now()
	threshold := p.cfg.Cache.StaleAfter()
	if NeedsRefresh(coins, categories, threshold, now) {
		log.WithFields(logger.Fields{
			"stale_after_days":  p.cfg.Cache.StaleAfterDays,
			"coins_cached":      len(coins),
			"categories_cached": len(categories),
		}).Info("snapshots missing or stale, refreshing")

		coins, categories, err = p.refresh(ctx, now, res)
		if err != nil {
			return nil, err
		}
		res.Refreshed = true
	} else {
		latest, _ := LatestUpdate(append(coinTimestamps(coins), categoryTimestamps(categories)...))
		res.CoinsPath, res.CategoriesPath = coinsPath, categoriesPath
		log.WithFields(logger.Fields{
			"coins_path":      coinsPath,
			"categories_path": categoriesPath,
			"latest_update":   latest.Format(time.RFC3339),
		}).Info("loaded cached snapshots")
	}

	listMismatches, primaryDiffs := diagnosePlatforms(coins)
	res.Diagnostics.PlatformListMismatches = listMismatches
	res.Diagnostics.PrimaryPlatformDiffs = primaryDiffs
	if len(listMismatches) > 0 {
		log.WithFields(logger.Fields{"count": len(listMismatches), "symbols": listMismatches}).
			Warn("identity and detail platform lists differ")
	}
	if len(primaryDiffs) > 0 {
		log.WithFields(logger.Fields{"count": len(primaryDiffs), "symbols": primaryDiffs}).
			Warn("asset platform differs from first identity platform")
	}

	pairs, pairSymbols := duplicateCoinPairs(coins)
	res.Diagnostics.DuplicateCoinPairs = pairs
	if len(pairs) > 0 {
		log.WithFields(logger.Fields{"count": len(pairs), "pairs": pairSymbols}).
			Warn("several symbols map to the same coin")
	}

	res.Coins = RankCoins(coins)
	res.Categories = RankCategories(categories)

	if err := p.export(res); err != nil {
		return nil, err
	}

	res.Matches = MatchCategories(res.Coins, res.Categories)
	coinOnly, listOnly := UnmatchedCategories(res.Matches)
	res.Diagnostics.CoinOnlyCategories = coinOnly
	res.Diagnostics.ListOnlyCategories = listOnly
	if len(coinOnly) > 0 {
		log.WithFields(logger.Fields{"count": len(coinOnly), "categories": coinOnly}).
			Warn("coin categories missing from the category list")
	}
	if len(listOnly) > 0 {
		log.WithFields(logger.Fields{"count": len(listOnly)}).
			Debug("listed categories without a ranked coin")
	}

	logger.LogPerformanceEntry(log, component, "run", time.Since(start), logger.Fields{
		"refreshed":  res.Refreshed,
		"coins":      len(res.Coins),
		"categories": len(res.Categories),
	})
	p.report(ctx, res)
	return res, nil
}

// refresh fetches both providers, merges the coin table and persists both
// snapshots under one stamp. The returned tables are the reloaded copies.
func (p *Pipeline) refresh(ctx context.Context, now time.Time, res *Result) ([]models.CoinRecord, []models.Category, error) {
	log := p.log.WithComponent(component)

	instruments, err := p.market.Instruments(ctx)
	if err != nil {
		log.WithError(err).Error("instrument list unavailable, continuing with no instruments")
	}
	identities, err := p.coins.CoinList(ctx)
	if err != nil {
		log.WithError(err).Error("coin list unavailable, continuing with no coins")
	}

	listings, stats := joinListings(instruments, identities)
	p.recordJoin(res, stats)

	symbols, ids := sampleKeys(listings, p.cfg.Reconcile.SampleLimit)
	log.WithFields(logger.Fields{
		"symbols":      len(symbols),
		"coin_ids":     len(ids),
		"sample_limit": p.cfg.Reconcile.SampleLimit,
	}).Info("sampled keys for per item fetches")

	ratios, failures := p.market.Ratios(ctx, symbols)
	res.Failures = append(res.Failures, failures...)
	rated, stats := joinRatios(listings, ratios)
	p.recordJoin(res, stats)

	details, failures := p.coins.CoinDetails(ctx, ids)
	res.Failures = append(res.Failures, failures...)
	merged, stats := joinDetails(rated, details)
	p.recordJoin(res, stats)

	sanitize(merged)

	categories, err := p.coins.Categories(ctx)
	if err != nil {
		log.WithError(err).Error("category list unavailable, continuing with no categories")
	}
	for i := range categories {
		categories[i].CategoryID = strings.TrimSpace(categories[i].CategoryID)
		categories[i].CategoryName = strings.TrimSpace(categories[i].CategoryName)
	}

	coinsPath, err := p.store.SaveCoins(ctx, now, merged)
	if err != nil {
		return nil, nil, fmt.Errorf("save coin snapshot: %w", err)
	}
	categoriesPath, err := p.store.SaveCategories(ctx, now, categories)
	if err != nil {
		return nil, nil, fmt.Errorf("save category snapshot: %w", err)
	}
	res.CoinsPath, res.CategoriesPath = coinsPath, categoriesPath

	coins, err := p.store.LoadCoins(coinsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reload coin snapshot: %w", err)
	}
	reloaded, err := p.store.LoadCategories(categoriesPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reload category snapshot: %w", err)
	}

	logger.LogDataFlowEntry(log, "providers", "snapshot", len(coins), "coins")
	logger.LogDataFlowEntry(log, "providers", "snapshot", len(reloaded), "categories")
	return coins, reloaded, nil
}

func (p *Pipeline) recordJoin(res *Result, stats models.JoinStats) {
	res.Joins = append(res.Joins, stats)
	entry := p.log.WithComponent(component).WithFields(logger.Fields{
		"join":          stats.Name,
		"left":          stats.Left,
		"right":         stats.Right,
		"matched":       stats.Matched,
		"left_dropped":  stats.LeftDropped,
		"right_dropped": stats.RightDropped,
	})
	entry.Info("join completed")
	entry.LogMetric(component, "join_left_dropped", stats.LeftDropped, "gauge", logger.Fields{"join": stats.Name})
}

func (p *Pipeline) export(res *Result) error {
	if p.exporter == nil || !p.cfg.Report.Enabled {
		return nil
	}
	dir := p.cfg.Report.Dir
	if dir == "" {
		dir = p.cfg.Cache.DataDir
	}
	if err := p.exporter.ExportCoins(filepath.Join(dir, p.cfg.Report.CoinsFile), res.Coins); err != nil {
		return fmt.Errorf("export coins report: %w", err)
	}
	if err := p.exporter.ExportCategories(filepath.Join(dir, p.cfg.Report.CategoriesFile), res.Categories); err != nil {
		return fmt.Errorf("export categories report: %w", err)
	}
	return nil
}

func (p *Pipeline) report(ctx context.Context, res *Result) {
	fields := logger.Fields{
		"refreshed":                res.Refreshed,
		"coins":                    len(res.Coins),
		"categories":               len(res.Categories),
		"fetch_failures":           len(res.Failures),
		"platform_list_mismatches": len(res.Diagnostics.PlatformListMismatches),
		"primary_platform_diffs":   len(res.Diagnostics.PrimaryPlatformDiffs),
		"duplicate_coin_pairs":     len(res.Diagnostics.DuplicateCoinPairs),
		"coin_only_categories":     len(res.Diagnostics.CoinOnlyCategories),
		"list_only_categories":     len(res.Diagnostics.ListOnlyCategories),
	}
	for _, j := range res.Joins {
		fields[j.Name+"_left_dropped"] = j.LeftDropped
		fields[j.Name+"_right_dropped"] = j.RightDropped
	}
	logger.LogRunReport(ctx, p.log, fields)
}
