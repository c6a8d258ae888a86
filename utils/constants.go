package utils

import (
	"time"
)

// Token and session time constants
const (
	// AccessTokenTTL is the time-to-live for access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour

	// AccessTokenTTLSeconds is the time-to-live for access tokens in seconds (86400 seconds = 24 hours)
	AccessTokenTTLSeconds = 86400

	// RefreshTokenTTL is the time-to-live for refresh tokens (7 days)
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Attribution defaults
const (
	// AttributionWindow is the maximum click-to-order gap that can be attributed
	AttributionWindow = 7 * 24 * time.Hour

	// DefaultOrderLimit caps the number of orders scanned by one correlation pass
	DefaultOrderLimit = 500

	// DefaultOrderPageSize is the page size requested from the order feed
	DefaultOrderPageSize = 50

	// DefaultOrderMaxOffset is the deepest offset the order feed will serve
	DefaultOrderMaxOffset = 1000

	// DefaultItemIDPattern matches marketplace item ids such as MLM-123456789
	DefaultItemIDPattern = `(?i)\b(ML[A-Z])-?(\d{6,})\b`

	// PaidOrderStatus is the only order status considered for attribution
	PaidOrderStatus = "paid"
)

// Request context keys
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	UserAgentKey ContextKey = "user_agent"
	IPAddressKey ContextKey = "ip_address"
	EndpointKey  ContextKey = "endpoint"
	TimeoutKey   ContextKey = "timeout"
	BotIDKey     ContextKey = "bot_id"
)
