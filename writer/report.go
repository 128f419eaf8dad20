package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	appconfig "cryptolens/config"
	"cryptolens/logger"
	"cryptolens/models"
	"cryptolens/normalizer"

	"github.com/xuri/excelize/v2"
)

const component = "report_writer"

const (
	CoinsSheet      = "df_coins"
	CategoriesSheet = "df_categories"
)

var coinColumns = []string{
	"symbol", "coin", "coinLaunchTime", "coinId", "coinName", "coinPlatforms",
	"buyRatio", "sellRatio", "ratioUpdateTime",
	"coinSlug", "categories", "assetPlatformId", "platforms",
	"facebookLikes", "redditSubscribers", "telegramUserCount", "xFollowers",
	"coinCap", "coinCapRank", "coinCapFdvRatio", "coinCapChg24h",
	"ath", "athChg", "athDate", "atl", "atlChg", "atlDate",
	"currentPrice", "priceChg1h", "priceChg24h", "priceChg7d", "priceChg14d",
	"priceChg30d", "priceChg60d", "priceChg200d",
	"sentimentVotesUp", "watchlistUsers", "coinUpdateTime", "1stCoinPlatform",
}

var categoryColumns = []string{
	"categoryId", "categoryName", "categoryCap", "categoryCapChg24h",
	"categoryVol24h", "categoryUpdateTime",
}

// ReportWriter exports coin and category tables as xlsx workbooks.
type ReportWriter struct {
	cfg *appconfig.Config
	log *logger.Log
}

func NewReportWriter(cfg *appconfig.Config) *ReportWriter {
	return &ReportWriter{cfg: cfg, log: logger.GetLogger()}
}

// nil cells are written empty.
func float(v *float64) interface{} {
	if normalizer.Missing(v) {
		return nil
	}
	return *v
}

func integer(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func text(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// wallClock drops the zone so the cell shows local time.
func wallClock(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return normalizer.Naive(t)
}

func optionalTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return wallClock(*t)
}

func list(v []string) string {
	return strings.Join(v, ", ")
}

func coinRow(c models.CoinRecord) []interface{} {
	return []interface{}{
		c.Symbol, c.Coin, wallClock(c.CoinLaunchTime), c.CoinID, c.CoinName, list(c.CoinPlatforms),
		float(c.BuyRatio), float(c.SellRatio), wallClock(c.RatioUpdateTime),
		text(c.CoinSlug), list(c.Categories), text(c.AssetPlatformID), list(c.Platforms),
		integer(c.FacebookLikes), integer(c.RedditSubscribers), integer(c.TelegramUserCount), integer(c.XFollowers),
		float(c.CoinCap), integer(c.CoinCapRank), float(c.CoinCapFdvRatio), float(c.CoinCapChg24h),
		float(c.ATH), float(c.ATHChg), optionalTime(c.ATHDate), float(c.ATL), float(c.ATLChg), optionalTime(c.ATLDate),
		float(c.CurrentPrice), float(c.PriceChg1h), float(c.PriceChg24h), float(c.PriceChg7d), float(c.PriceChg14d),
		float(c.PriceChg30d), float(c.PriceChg60d), float(c.PriceChg200d),
		float(c.SentimentUp), integer(c.WatchlistUsers), optionalTime(c.CoinUpdateTime), text(c.FirstCoinPlatform),
	}
}

func categoryRow(c models.Category) []interface{} {
	return []interface{}{
		c.CategoryID, c.CategoryName, float(c.CategoryCap), float(c.CategoryCapChg24h),
		float(c.CategoryVol24h), optionalTime(c.CategoryUpdateTime),
	}
}

// ExportCoins writes coins to a fresh workbook at path, replacing any
// existing file.
func (w *ReportWriter) ExportCoins(path string, coins []models.CoinRecord) error {
	rows := make([][]interface{}, len(coins))
	for i, c := range coins {
		rows[i] = coinRow(c)
	}
	return w.export(path, CoinsSheet, coinColumns, rows)
}

// ExportCategories writes categories to a fresh workbook at path, replacing
// any existing file.
func (w *ReportWriter) ExportCategories(path string, categories []models.Category) error {
	rows := make([][]interface{}, len(categories))
	for i, c := range categories {
		rows[i] = categoryRow(c)
	}
	return w.export(path, CategoriesSheet, categoryColumns, rows)
}

func (w *ReportWriter) export(path, sheet string, columns []string, rows [][]interface{}) error {
	log := w.log.WithComponent(component).WithFields(logger.Fields{"path": path, "sheet": sheet})
	start := time.Now()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name sheet %s: %w", sheet, err)
	}

	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		log.WithError(err).Error("failed to save report")
		return fmt.Errorf("save report %s: %w", path, err)
	}

	logger.LogPerformanceEntry(log, component, "export_report", time.Since(start), logger.Fields{"rows": len(rows)})
	log.WithFields(logger.Fields{"rows": len(rows)}).Info("report exported")
	return nil
}
