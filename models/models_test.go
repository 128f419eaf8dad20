package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestCoinRecordJSONUsesReportColumnNames(t *testing.T) {
	mcap := 1.5e12
	rec := CoinRecord{
		Symbol:        "BTCUSDT",
		CoinPlatforms: []string{},
		CoinDetail:    CoinDetail{CoinID: "bitcoin", Coin: "btc", CoinName: "Bitcoin", CoinCap: &mcap},
	}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"symbol":"BTCUSDT"`, `"coinId":"bitcoin"`, `"coinCap":1500000000000`, `"1stCoinPlatform":null`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("missing %s in %s", key, data)
		}
	}
}

func TestCoinRecordUpdateTimes(t *testing.T) {
	ratio := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := CoinRecord{RatioUpdateTime: ratio}
	if got := rec.UpdateTimes(); len(got) != 1 || !got[0].Equal(ratio) {
		t.Fatalf("UpdateTimes without detail time = %v", got)
	}
	coin := ratio.Add(time.Hour)
	rec.CoinUpdateTime = &coin
	if got := rec.UpdateTimes(); len(got) != 2 || !got[1].Equal(coin) {
		t.Fatalf("UpdateTimes = %v", got)
	}
}

func TestFirstPlatform(t *testing.T) {
	if (CoinRecord{}).FirstPlatform() != nil {
		t.Fatal("empty platforms should give nil")
	}
	rec := CoinRecord{CoinPlatforms: []string{"ethereum", "solana"}}
	if p := rec.FirstPlatform(); p == nil || *p != "ethereum" {
		t.Fatalf("FirstPlatform = %v", p)
	}
}

func TestCategoryUpdateTimes(t *testing.T) {
	if (Category{}).UpdateTimes() != nil {
		t.Fatal("missing update time should give no timestamps")
	}
	ts := time.Now()
	if got := (Category{CategoryUpdateTime: &ts}).UpdateTimes(); len(got) != 1 {
		t.Fatalf("UpdateTimes = %v", got)
	}
}
