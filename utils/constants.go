package utils

import (
	"time"
)

// Token and session time constants
const (
	// AccessTokenTTL is the time-to-live for access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour

	// RefreshTokenTTL is the time-to-live for refresh tokens (7 days)
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Randomizer constants
const (
	// StatsCacheTTL is how long derived fairness statistics stay cached
	StatsCacheTTL = 10 * time.Minute

	// MaxShuffleParticipants caps the participant set accepted for a single run
	MaxShuffleParticipants = 500
)

// Cache key templates, joined with the configured Redis prefix
const (
	ShuffleStatsCacheKey = "shuffler:stats:%s:%s"
	PickStatsCacheKey    = "picker:stats:%s"
)

// Context keys for request-scoped values
const (
	RequestIDKey = "X-Request-ID"
	UserAgentKey = "User-Agent"
	IPAddressKey = "IP-Address"
	EndpointKey  = "Endpoint"
	TimeoutKey   = "Timeout"
)

