package processor

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	appconfig "cryptolens/config"
	"cryptolens/models"
)

type fakeMarket struct {
	instruments []models.Instrument
	ratios      map[string]models.Ratio
	asked       []string
	calls       int
}

func (f *fakeMarket) Instruments(context.Context) ([]models.Instrument, error) {
	f.calls++
	return f.instruments, nil
}

func (f *fakeMarket) Ratios(_ context.Context, symbols []string) ([]models.Ratio, []models.FetchFailure) {
	f.calls++
	f.asked = symbols
	var out []models.Ratio
	var failures []models.FetchFailure
	for _, s := range symbols {
		r, ok := f.ratios[s]
		if !ok {
			failures = append(failures, models.FetchFailure{ID: s, Err: "retCode 10001"})
			continue
		}
		out = append(out, r)
	}
	return out, failures
}

type fakeCoins struct {
	identities []models.CoinIdentity
	details    map[string]models.CoinDetail
	categories []models.Category
	asked      []string
	calls      int
}

func (f *fakeCoins) CoinList(context.Context) ([]models.CoinIdentity, error) {
	f.calls++
	return f.identities, nil
}

func (f *fakeCoins) CoinDetails(_ context.Context, ids []string) ([]models.CoinDetail, []models.FetchFailure) {
	f.calls++
	f.asked = ids
	var out []models.CoinDetail
	for _, id := range ids {
		if d, ok := f.details[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeCoins) Categories(context.Context) ([]models.Category, error) {
	f.calls++
	return f.categories, nil
}

type memStore struct {
	coins      map[string][]models.CoinRecord
	categories map[string][]models.Category
	latestCoin string
	latestCat  string
	saveErr    error
	stamps     []time.Time
}

func newMemStore() *memStore {
	return &memStore{coins: map[string][]models.CoinRecord{}, categories: map[string][]models.Category{}}
}

func (m *memStore) LatestCoins() ([]models.CoinRecord, string, error) {
	if m.latestCoin == "" {
		return nil, "", nil
	}
	return m.coins[m.latestCoin], m.latestCoin, nil
}

func (m *memStore) LatestCategories() ([]models.Category, string, error) {
	if m.latestCat == "" {
		return nil, "", nil
	}
	return m.categories[m.latestCat], m.latestCat, nil
}

func (m *memStore) SaveCoins(_ context.Context, stamp time.Time, coins []models.CoinRecord) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.stamps = append(m.stamps, stamp)
	path := "df_coins_" + stamp.Format("200601021504") + ".parquet"
	m.coins[path] = append([]models.CoinRecord(nil), coins...)
	m.latestCoin = path
	return path, nil
}

func (m *memStore) SaveCategories(_ context.Context, stamp time.Time, categories []models.Category) (string, error) {
	m.stamps = append(m.stamps, stamp)
	path := "df_categories_" + stamp.Format("200601021504") + ".parquet"
	m.categories[path] = append([]models.Category(nil), categories...)
	m.latestCat = path
	return path, nil
}

func (m *memStore) LoadCoins(path string) ([]models.CoinRecord, error) {
	return append([]models.CoinRecord(nil), m.coins[path]...), nil
}

func (m *memStore) LoadCategories(path string) ([]models.Category, error) {
	return append([]models.Category(nil), m.categories[path]...), nil
}

type fakeExporter struct {
	coinsPath      string
	categoriesPath string
	coins          int
	categories     int
}

func (e *fakeExporter) ExportCoins(path string, coins []models.CoinRecord) error {
	e.coinsPath, e.coins = path, len(coins)
	return nil
}

func (e *fakeExporter) ExportCategories(path string, categories []models.Category) error {
	e.categoriesPath, e.categories = path, len(categories)
	return nil
}

var testNow = time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)

func btcPepeSources() (*fakeMarket, *fakeCoins) {
	updated := testNow.Add(-time.Hour)
	eth := "ethereum"
	market := &fakeMarket{
		instruments: []models.Instrument{
			{Symbol: "BTCUSDT", Coin: "btc"},
			{Symbol: "1000PEPEUSDT", Coin: "pepe"},
			{Symbol: "DOGEUSDT", Coin: "doge"},
		},
		ratios: map[string]models.Ratio{
			"BTCUSDT":      {Symbol: "BTCUSDT", BuyRatio: fp(0.55), SellRatio: fp(0.45), UpdateTime: updated},
			"1000PEPEUSDT": {Symbol: "1000PEPEUSDT", BuyRatio: fp(0.61), SellRatio: fp(0.39), UpdateTime: updated},
		},
	}
	coins := &fakeCoins{
		identities: []models.CoinIdentity{
			{CoinID: "bitcoin", Coin: "btc", CoinName: "Bitcoin", CoinPlatforms: []string{}},
			{CoinID: "pepe", Coin: "pepe", CoinName: "Pepe", CoinPlatforms: []string{"ethereum"}},
			{CoinID: "cardano", Coin: "ada", CoinName: "Cardano", CoinPlatforms: []string{}},
		},
		details: map[string]models.CoinDetail{
			"bitcoin": {
				CoinID: "bitcoin", Coin: "btc", CoinName: "Bitcoin",
				Categories: []string{"Layer 1 (L1)"}, Platforms: []string{},
				CoinCap: fp(1.3e12), CoinUpdateTime: &updated,
			},
			"pepe": {
				CoinID: "pepe", Coin: "pepe", CoinName: "Pepe",
				Categories: []string{"Meme", "Frog-Themed"}, Platforms: []string{"ethereum"},
				AssetPlatformID: &eth, CoinCap: fp(3.5e9), CoinUpdateTime: &updated,
			},
		},
		categories: []models.Category{
			{CategoryID: " meme-token ", CategoryName: " Meme ", CategoryCap: fp(5e10), CategoryUpdateTime: &updated},
			{CategoryID: "layer-1", CategoryName: "Layer 1 (L1)", CategoryCap: fp(2e12), CategoryUpdateTime: &updated},
			{CategoryID: "gaming", CategoryName: "Gaming", CategoryCap: fp(1e10), CategoryUpdateTime: &updated},
			{CategoryID: "dead", CategoryName: "Dead"},
		},
	}
	return market, coins
}

func testPipeline(market MarketSource, coins CoinSource, store SnapshotStore, exporter Exporter) *Pipeline {
	cfg := appconfig.Default()
	cfg.Report.Dir = "/reports"
	p := NewPipeline(cfg, market, coins, store, exporter)
	p.now = func() time.Time { return testNow }
	return p
}

func TestRunRefreshesBTCAndPEPE(t *testing.T) {
	market, coins := btcPepeSources()
	store := newMemStore()
	exporter := &fakeExporter{}
	p := testPipeline(market, coins, store, exporter)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Refreshed {
		t.Fatal("empty cache should refresh")
	}
	if !reflect.DeepEqual(market.asked, []string{"BTCUSDT", "1000PEPEUSDT"}) {
		t.Errorf("ratio symbols = %v", market.asked)
	}
	if !reflect.DeepEqual(coins.asked, []string{"bitcoin", "pepe"}) {
		t.Errorf("detail ids = %v", coins.asked)
	}

	if len(res.Coins) != 2 {
		t.Fatalf("expected 2 coins, got %d", len(res.Coins))
	}
	btc, pepe := res.Coins[0], res.Coins[1]
	if btc.Symbol != "BTCUSDT" || btc.CoinID != "bitcoin" || *btc.BuyRatio != 0.55 {
		t.Errorf("btc row = %+v", btc)
	}
	if pepe.Symbol != "1000PEPEUSDT" || pepe.CoinID != "pepe" || pepe.FirstCoinPlatform == nil || *pepe.FirstCoinPlatform != "ethereum" {
		t.Errorf("pepe row = %+v", pepe)
	}
	if len(res.Diagnostics.PlatformListMismatches) != 0 || len(res.Diagnostics.PrimaryPlatformDiffs) != 0 || len(res.Diagnostics.DuplicateCoinPairs) != 0 {
		t.Errorf("unexpected diagnostics %+v", res.Diagnostics)
	}

	if len(store.stamps) != 2 || !store.stamps[0].Equal(store.stamps[1]) {
		t.Errorf("both snapshots should share a stamp: %v", store.stamps)
	}
	if res.CoinsPath != "df_coins_202403061200.parquet" || res.CategoriesPath != "df_categories_202403061200.parquet" {
		t.Errorf("paths = %s %s", res.CoinsPath, res.CategoriesPath)
	}
	if saved := store.categories[res.CategoriesPath]; saved[0].CategoryID != "meme-token" || saved[0].CategoryName != "Meme" {
		t.Errorf("category names not trimmed: %+v", saved[0])
	}

	if len(res.Categories) != 3 || res.Categories[0].CategoryName != "Layer 1 (L1)" {
		t.Errorf("ranked categories = %+v", res.Categories)
	}
	if !reflect.DeepEqual(res.Diagnostics.CoinOnlyCategories, []string{"Frog-Themed"}) {
		t.Errorf("coin only = %v", res.Diagnostics.CoinOnlyCategories)
	}
	if !reflect.DeepEqual(res.Diagnostics.ListOnlyCategories, []string{"Gaming"}) {
		t.Errorf("list only = %v", res.Diagnostics.ListOnlyCategories)
	}

	if len(res.Joins) != 3 {
		t.Fatalf("joins = %+v", res.Joins)
	}
	if j := res.Joins[0]; j.LeftDropped != 1 || j.RightDropped != 1 || j.Matched != 2 {
		t.Errorf("listing join = %+v", j)
	}

	if exporter.coinsPath != filepath.Join("/reports", "df_coins.xlsx") || exporter.coins != 2 || exporter.categories != 3 {
		t.Errorf("export = %+v", exporter)
	}
}

func TestRunReportsScaledAndUnscaledContractsOfOneCoin(t *testing.T) {
	market, coins := btcPepeSources()
	market.instruments = append(market.instruments, models.Instrument{Symbol: "PEPEUSDT", Coin: "pepe"})
	market.ratios["PEPEUSDT"] = models.Ratio{Symbol: "PEPEUSDT", BuyRatio: fp(0.5), SellRatio: fp(0.5), UpdateTime: testNow.Add(-time.Hour)}

	res, err := testPipeline(market, coins, newMemStore(), nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Coins) != 3 {
		t.Fatalf("both pepe contracts should be kept, got %+v", res.Coins)
	}
	if !reflect.DeepEqual(res.Diagnostics.DuplicateCoinPairs, []string{"pepe/pepe"}) {
		t.Errorf("duplicate pairs = %v", res.Diagnostics.DuplicateCoinPairs)
	}
}

func TestRunSampleLimitKeepsLastKeys(t *testing.T) {
	market, coins := btcPepeSources()
	p := testPipeline(market, coins, newMemStore(), nil)
	p.cfg.Reconcile.SampleLimit = 1

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(market.asked, []string{"1000PEPEUSDT"}) || !reflect.DeepEqual(coins.asked, []string{"pepe"}) {
		t.Fatalf("sampled %v %v", market.asked, coins.asked)
	}
	if len(res.Coins) != 1 || res.Coins[0].CoinID != "pepe" {
		t.Fatalf("coins = %+v", res.Coins)
	}
}

func TestRunUsesFreshCache(t *testing.T) {
	store := newMemStore()
	fresh := testNow.Add(-24 * time.Hour)
	store.coins["df_coins_202403051200.parquet"] = []models.CoinRecord{
		{Symbol: "BTCUSDT", RatioUpdateTime: fresh, CoinDetail: models.CoinDetail{CoinID: "bitcoin", CoinCap: fp(1e12)}},
	}
	store.latestCoin = "df_coins_202403051200.parquet"
	store.categories["df_categories_202403051200.parquet"] = []models.Category{
		{CategoryName: "Layer 1 (L1)", CategoryCap: fp(2e12), CategoryUpdateTime: &fresh},
	}
	store.latestCat = "df_categories_202403051200.parquet"

	market, coins := &fakeMarket{}, &fakeCoins{}
	res, err := testPipeline(market, coins, store, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Refreshed || market.calls != 0 || coins.calls != 0 {
		t.Fatalf("fresh cache should not refetch (refreshed=%v calls=%d/%d)", res.Refreshed, market.calls, coins.calls)
	}
	if res.CoinsPath != store.latestCoin || len(res.Coins) != 1 || len(res.Categories) != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestRunFailsWhenSnapshotCannotBeSaved(t *testing.T) {
	market, coins := btcPepeSources()
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	if _, err := testPipeline(market, coins, store, nil).Run(context.Background()); err == nil {
		t.Fatal("expected save failure to be returned")
	}
}

func TestRunWithNoProviderData(t *testing.T) {
	res, err := testPipeline(&fakeMarket{}, &fakeCoins{}, newMemStore(), &fakeExporter{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Refreshed || len(res.Coins) != 0 || len(res.Categories) != 0 || len(res.Matches) != 0 {
		t.Fatalf("result = %+v", res)
	}
}
