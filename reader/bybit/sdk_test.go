package bybit

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	appconfig "cryptolens/config"
	"cryptolens/internal/metrics/limits"
	"cryptolens/logger"
	"cryptolens/normalizer"
)

type recordedRequest struct {
	path  string
	query url.Values
}

// bybitServer serves the two market endpoints the client uses and records
// every request it sees.
type bybitServer struct {
	mu   sync.Mutex
	reqs []recordedRequest
}

func (s *bybitServer) requests() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedRequest(nil), s.reqs...)
}

func (s *bybitServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.reqs = append(s.reqs, recordedRequest{path: r.URL.Path, query: r.URL.Query()})
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Bapi-Limit", "600")
	w.Header().Set("X-Bapi-Limit-Status", "597")

	switch r.URL.Path {
	case "/v5/market/instruments-info":
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"category":"linear","nextPageCursor":"","list":[
		  {"symbol":"1000PEPEUSDT","contractType":"LinearPerpetual","status":"Trading","baseCoin":"1000PEPE","quoteCoin":"USDT","launchTime":"1683100800000"}
		]},"retExtInfo":{},"time":1709251200000}`))
	case "/v5/market/account-ratio":
		if r.URL.Query().Get("symbol") != "1000PEPEUSDT" {
			w.Write([]byte(`{"retCode":10001,"retMsg":"params error: symbol invalid","result":{},"retExtInfo":{},"time":1709251200000}`))
			return
		}
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[
		  {"symbol":"1000PEPEUSDT","buyRatio":"0.6","sellRatio":"0.4","timestamp":"1709251200000"}
		]},"retExtInfo":{},"time":1709251200000}`))
	default:
		http.NotFound(w, r)
	}
}

func TestNewClientTalksToBaseURL(t *testing.T) {
	var buf bytes.Buffer
	logger.GetLogger().SetOutput(&buf)
	t.Cleanup(func() { logger.GetLogger().SetOutput(os.Stdout) })

	srv := &bybitServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	cfg := appconfig.Default()
	cfg.Source.Bybit.BaseURL = ts.URL
	cfg.Source.Bybit.RatioDelay = 0
	loc, err := normalizer.LoadLocation("")
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	c := NewClient(cfg, loc)

	sdk, ok := c.api.(sdkMarket)
	if !ok {
		t.Fatalf("api = %T, want sdkMarket", c.api)
	}
	if _, ok := sdk.client.HTTPClient.Transport.(*limits.UsageTransport); !ok {
		t.Fatalf("transport = %T, want *limits.UsageTransport", sdk.client.HTTPClient.Transport)
	}
	if sdk.client.HTTPClient.Timeout != cfg.Source.Bybit.Timeout {
		t.Errorf("timeout = %v", sdk.client.HTTPClient.Timeout)
	}

	instruments, err := c.Instruments(context.Background())
	if err != nil {
		t.Fatalf("Instruments: %v", err)
	}
	if len(instruments) != 1 || instruments[0].Symbol != "1000PEPEUSDT" || instruments[0].Coin != "pepe" {
		t.Fatalf("unexpected instruments %+v", instruments)
	}

	ratios, failures := c.Ratios(context.Background(), []string{"1000PEPEUSDT", "NOPEUSDT"})
	if len(ratios) != 1 || ratios[0].BuyRatio == nil || *ratios[0].BuyRatio != 0.6 {
		t.Fatalf("unexpected ratios %+v", ratios)
	}
	if !ratios[0].UpdateTime.Equal(time.UnixMilli(1709251200000)) {
		t.Errorf("ratio time = %v", ratios[0].UpdateTime)
	}
	if len(failures) != 1 || failures[0].ID != "NOPEUSDT" || !strings.Contains(failures[0].Err, "10001") {
		t.Fatalf("unexpected failures %+v", failures)
	}

	reqs := srv.requests()
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requests, got %+v", reqs)
	}
	want := []struct {
		path  string
		query map[string]string
	}{
		{"/v5/market/instruments-info", map[string]string{"category": "linear", "limit": "1000"}},
		{"/v5/market/account-ratio", map[string]string{"category": "linear", "limit": "1", "period": "1d", "symbol": "1000PEPEUSDT"}},
		{"/v5/market/account-ratio", map[string]string{"category": "linear", "limit": "1", "period": "1d", "symbol": "NOPEUSDT"}},
	}
	for i, w := range want {
		if reqs[i].path != w.path {
			t.Errorf("request %d path = %s, want %s", i, reqs[i].path, w.path)
		}
		if len(reqs[i].query) != len(w.query) {
			t.Errorf("request %d query = %v", i, reqs[i].query)
		}
		for k, v := range w.query {
			if got := reqs[i].query.Get(k); got != v {
				t.Errorf("request %d %s = %q, want %q", i, k, got, v)
			}
		}
	}

	// the quota headers went through the usage transport
	if !strings.Contains(buf.String(), `"metric":"used_weight"`) || !strings.Contains(buf.String(), `"path":"/v5/market/account-ratio"`) {
		t.Errorf("used_weight metric not logged:\n%s", buf.String())
	}
}
