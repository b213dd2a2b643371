// Package security implements the ordered checks that gate registry writes.
//
// Each check inspects one aspect of a request (source address, claimed
// hostname, credentials, abuse rate) and either lets it continue or rejects
// it with a status code and a reason string. Legacy clients parse the reason
// strings, so they are part of the wire contract and must not change.
package security

import (
	"context"
	"net/http"
	"time"
)

// Request carries the request attributes the checks evaluate. The body is
// captured up front because the HMAC check signs the raw bytes and the
// adapter still needs to parse them afterwards.
type Request struct {
	Context  context.Context
	Header   http.Header
	ClientIP string
	Host     string
	Body     []byte
}

// Decision is the outcome of a single check. The zero value means the
// request may continue; a non-zero Status rejects it.
type Decision struct {
	Reason string
	Status int
}

// Rejected reports whether the decision terminates the request.
func (d Decision) Rejected() bool {
	return d.Status != 0
}

// reject builds a terminating decision.
func reject(status int, reason string) Decision {
	return Decision{Status: status, Reason: reason}
}

// Check is one configurable gate in the pipeline.
type Check interface {
	// Name identifies the check in logs.
	Name() string

	// Evaluate inspects the request. Only the rate-limit check mutates
	// shared state; every other check is a pure read.
	Evaluate(req *Request) Decision
}

// BlacklistReader is the slice of the registry store the blacklist checks use.
type BlacklistReader interface {
	IsBlacklisted(hostname, ip string) (bool, error)
}

// Counter is the shared fixed-window counter the rate-limit check drives.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}
