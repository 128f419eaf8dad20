package limits

import (
	"net/http"
	"strconv"

	"cryptolens/logger"
)

const (
	headerLimit  = "X-Bapi-Limit"
	headerStatus = "X-Bapi-Limit-Status"
)

// ReportBybitUsage reads the Bybit rate limit headers of resp and emits the
// consumed quota as a used_weight gauge. emitted is false when the response
// carries no limit headers.
func ReportBybitUsage(log *logger.Log, resp *http.Response, component, path string) (limit, remaining float64, emitted bool) {
	if log == nil || resp == nil {
		return 0, 0, false
	}
	rawLimit := resp.Header.Get(headerLimit)
	rawRemaining := resp.Header.Get(headerStatus)
	if rawLimit == "" && rawRemaining == "" {
		return 0, 0, false
	}

	entry := log.WithComponent(component)
	if rawLimit != "" {
		if v, err := strconv.ParseFloat(rawLimit, 64); err == nil {
			limit = v
		} else {
			entry.WithFields(logger.Fields{"header": headerLimit, "value": rawLimit}).WithError(err).Debug("failed to parse bybit limit header")
		}
	}
	if rawRemaining != "" {
		if v, err := strconv.ParseFloat(rawRemaining, 64); err == nil {
			remaining = v
		} else {
			entry.WithFields(logger.Fields{"header": headerStatus, "value": rawRemaining}).WithError(err).Debug("failed to parse bybit remaining header")
		}
	}

	if limit > 0 && remaining >= 0 {
		used := limit - remaining
		if used < 0 {
			used = 0
		}
		entry.LogMetric(component, "used_weight", used, "gauge", logger.Fields{"path": path})
	}
	return limit, remaining, true
}

// UsageTransport reports Bybit quota headers for every response passing
// through it.
type UsageTransport struct {
	Base      http.RoundTripper
	Log       *logger.Log
	Component string
}

func (t *UsageTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	ReportBybitUsage(t.Log, resp, t.Component, req.URL.Path)
	return resp, nil
}
