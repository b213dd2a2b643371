package security

import "github.com/rs/zerolog/log"

// Pipeline evaluates checks in configured order and stops at the first
// rejection. It holds no per-request state.
type Pipeline struct {
	checks []Check
}

// NewPipeline builds a pipeline over the given checks, kept in order.
func NewPipeline(checks ...Check) *Pipeline {
	return &Pipeline{checks: checks}
}

// Len returns the number of configured checks.
func (p *Pipeline) Len() int {
	return len(p.checks)
}

// Evaluate runs the checks against the request. Checks after the first
// rejecting one are never invoked.
func (p *Pipeline) Evaluate(req *Request) Decision {
	for _, check := range p.checks {
		if d := check.Evaluate(req); d.Rejected() {
			log.Debug().
				Str("check", check.Name()).
				Str("ip", req.ClientIP).
				Str("host", req.Host).
				Int("status", d.Status).
				Str("reason", d.Reason).
				Msg("Request rejected")

			return d
		}
	}

	return Decision{}
}
