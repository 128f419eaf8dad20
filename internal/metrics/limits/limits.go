package limits

import (
	"fmt"
	"strings"

	"cryptolens/logger"
)

// ReportRateLimitExceeded counts a throttled request against the provider and
// item that triggered it.
func ReportRateLimitExceeded(log *logger.Log, provider, item, dataType string) {
	component := fmt.Sprintf("%s_%s", strings.ToLower(provider), strings.ToLower(dataType))
	l := log.WithComponent(component)
	fields := logger.Fields{
		"provider": strings.ToLower(provider),
		"item":     item,
		"type":     strings.ToLower(dataType),
	}
	l.LogMetric(component, "rate_limit_exceeded", int64(1), "counter", fields)
	l.WithFields(fields).Warn("rate limit exceeded")
}

// ReportIPBan counts a request rejected because the caller's address is
// blocked.
func ReportIPBan(log *logger.Log, provider, item, dataType string) {
	component := fmt.Sprintf("%s_%s", strings.ToLower(provider), strings.ToLower(dataType))
	l := log.WithComponent(component)
	fields := logger.Fields{
		"provider": strings.ToLower(provider),
		"item":     item,
		"type":     strings.ToLower(dataType),
	}
	l.LogMetric(component, "ip_ban", int64(1), "counter", fields)
	l.WithFields(fields).Error("ip banned")
}

// detectLimit classifies a provider error message. Each provider words its
// throttling responses differently.
func detectLimit(provider, msg string) (rateLimit bool, ipBan bool) {
	lowerMsg := strings.ToLower(msg)
	switch strings.ToLower(provider) {
	case "bybit":
		ipBan = strings.Contains(lowerMsg, "ip rate limit") || (strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban"))
		rateLimit = !ipBan && (strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "too many visits"))
	case "coingecko":
		rateLimit = strings.Contains(lowerMsg, "429") || strings.Contains(lowerMsg, "exceeded the rate limit") || strings.Contains(lowerMsg, "throttled")
		ipBan = strings.Contains(lowerMsg, "403") && strings.Contains(lowerMsg, "ip")
	default:
		rateLimit = strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	}
	return
}

// ReportLimitFromMessage records rate limit or IP ban metrics when msg matches
// the provider's wording. Other messages are ignored.
func ReportLimitFromMessage(log *logger.Log, provider, item, dataType, msg string) (rateLimit bool, ipBan bool) {
	rateLimit, ipBan = detectLimit(provider, msg)
	if rateLimit {
		ReportRateLimitExceeded(log, provider, item, dataType)
	}
	if ipBan {
		ReportIPBan(log, provider, item, dataType)
	}
	return rateLimit, ipBan
}
