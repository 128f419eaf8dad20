package limits

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"cryptolens/logger"
)

func TestReportBybitUsageParsesHeaders(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("X-Bapi-Limit", "120")
	resp.Header.Set("X-Bapi-Limit-Status", "110")

	limit, remaining, emitted := ReportBybitUsage(logger.GetLogger(), resp, "bybit_reader", "/v5/market/account-ratio")
	if !emitted || limit != 120 || remaining != 110 {
		t.Fatalf("got limit=%v remaining=%v emitted=%v", limit, remaining, emitted)
	}
}

func TestReportBybitUsageWithoutHeaders(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	if _, _, emitted := ReportBybitUsage(logger.GetLogger(), resp, "bybit_reader", "/"); emitted {
		t.Fatal("expected no metrics when headers are missing")
	}
	if _, _, emitted := ReportBybitUsage(logger.GetLogger(), nil, "bybit_reader", "/"); emitted {
		t.Fatal("expected no metrics for a nil response")
	}
}

func TestReportBybitUsageInvalidNumbers(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("X-Bapi-Limit", "abc")
	resp.Header.Set("X-Bapi-Limit-Status", "def")
	limit, remaining, emitted := ReportBybitUsage(logger.GetLogger(), resp, "bybit_reader", "/")
	if !emitted || limit != 0 || remaining != 0 {
		t.Fatalf("got limit=%v remaining=%v emitted=%v", limit, remaining, emitted)
	}
}

func TestUsageTransportPassesResponseThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Bapi-Limit", "50")
		w.Header().Set("X-Bapi-Limit-Status", "49")
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &UsageTransport{Log: logger.GetLogger(), Component: "bybit_reader"}}
	resp, err := client.Get(srv.URL + "/v5/market/instruments-info")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot || resp.Header.Get("X-Bapi-Limit") != "50" {
		t.Fatalf("response altered: %d %v", resp.StatusCode, resp.Header)
	}
}
