package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Headers consumed by the checks.
const (
	HeaderAPIKey    = "X-API-Key"
	HeaderSignature = "X-Signature"
)

// RateLimitKeyPrefix namespaces rate-limit counters in the shared store.
const RateLimitKeyPrefix = "rate_limit:"

// Reason strings returned to clients. Legacy callers match on these.
const (
	ReasonBlacklistedIP       = "Forbidden: Blacklisted IP"
	ReasonBlacklistedHostname = "Forbidden: Blacklisted Hostname"
	ReasonInvalidAPIKey       = "Unauthorized: Invalid API Key"
	ReasonMissingSignature    = "Unauthorized: Missing Signature"
	ReasonInvalidSignature    = "Unauthorized: Invalid Signature"
	ReasonTooManyRequests     = "Too Many Requests"
	reasonStoreFailure        = "Internal Server Error"
)

// IPBlacklistCheck rejects requests whose resolved client IP appears in the
// blacklist table.
type IPBlacklistCheck struct {
	Store BlacklistReader
}

// Name implements Check.
func (c *IPBlacklistCheck) Name() string { return "ip_blacklist" }

// Evaluate implements Check.
func (c *IPBlacklistCheck) Evaluate(req *Request) Decision {
	banned, err := c.Store.IsBlacklisted("", req.ClientIP)
	if err != nil {
		log.Error().Err(err).Str("check", c.Name()).Msg("Blacklist lookup failed")
		return reject(http.StatusInternalServerError, reasonStoreFailure)
	}
	if banned {
		return reject(http.StatusForbidden, ReasonBlacklistedIP)
	}

	return Decision{}
}

// HostnameBlacklistCheck rejects requests whose Host header appears in the
// blacklist table.
type HostnameBlacklistCheck struct {
	Store BlacklistReader
}

// Name implements Check.
func (c *HostnameBlacklistCheck) Name() string { return "hostname_blacklist" }

// Evaluate implements Check.
func (c *HostnameBlacklistCheck) Evaluate(req *Request) Decision {
	banned, err := c.Store.IsBlacklisted(req.Host, "")
	if err != nil {
		log.Error().Err(err).Str("check", c.Name()).Msg("Blacklist lookup failed")
		return reject(http.StatusInternalServerError, reasonStoreFailure)
	}
	if banned {
		return reject(http.StatusForbidden, ReasonBlacklistedHostname)
	}

	return Decision{}
}

// APIKeyCheck compares the presented key header against the configured secret.
type APIKeyCheck struct {
	Key string
}

// Name implements Check.
func (c *APIKeyCheck) Name() string { return "api_key" }

// Evaluate implements Check.
func (c *APIKeyCheck) Evaluate(req *Request) Decision {
	presented := req.Header.Get(HeaderAPIKey)
	if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(c.Key)) != 1 {
		return reject(http.StatusUnauthorized, ReasonInvalidAPIKey)
	}

	return Decision{}
}

// HMACSignatureCheck recomputes an HMAC-SHA256 over the raw request body and
// compares it with the presented hex signature in constant time. A request
// with no signature at all is rejected with a distinct reason so callers can
// tell signing bugs from missing integration.
type HMACSignatureCheck struct {
	Secret []byte
}

// Name implements Check.
func (c *HMACSignatureCheck) Name() string { return "hmac_signature" }

// Evaluate implements Check.
func (c *HMACSignatureCheck) Evaluate(req *Request) Decision {
	signature := req.Header.Get(HeaderSignature)
	if signature == "" {
		return reject(http.StatusUnauthorized, ReasonMissingSignature)
	}

	mac := hmac.New(sha256.New, c.Secret)
	mac.Write(req.Body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) != 1 {
		return reject(http.StatusUnauthorized, ReasonInvalidSignature)
	}

	return Decision{}
}

// RateLimitCheck rejects a client IP once its counter for the current fixed
// window exceeds the threshold. With threshold N, the first N requests in a
// window pass and request N+1 is rejected.
type RateLimitCheck struct {
	Counter   Counter
	Threshold int64
	Window    time.Duration
}

// Name implements Check.
func (c *RateLimitCheck) Name() string { return "rate_limit" }

// Evaluate implements Check.
func (c *RateLimitCheck) Evaluate(req *Request) Decision {
	count, err := c.Counter.Increment(req.Context, RateLimitKeyPrefix+req.ClientIP, c.Window)
	if err != nil {
		log.Error().Err(err).Str("check", c.Name()).Msg("Counter increment failed")
		return reject(http.StatusInternalServerError, reasonStoreFailure)
	}

	if count > c.Threshold {
		return reject(http.StatusTooManyRequests, ReasonTooManyRequests)
	}

	return Decision{}
}
