package decision

import (
	"github.com/miragesec/mirage/internal/netutil"
)

// Outcome is the verdict for a single request. Each evaluation is
// independent; the engine holds no state between requests.
type Outcome int

const (
	Forward Outcome = iota
	ServeDecoy
)

func (o Outcome) String() string {
	if o == ServeDecoy {
		return "deception_served"
	}
	return "proxied"
}

// Input carries everything a single evaluation depends on.
type Input struct {
	DecoyMatched bool
	ClientIP     string
	TrustedIPs   map[string]bool
	Suspicious   map[string]bool
	Aggressive   bool
}

// Evaluate decides whether to forward the request or serve the matched
// decoy. Trust unconditionally overrides suspicion; aggressive mode drops
// the suspicion requirement and deceives every non-trusted client.
func Evaluate(in Input) Outcome {
	if !in.DecoyMatched {
		return Forward
	}

	ip := netutil.CanonicalIP(in.ClientIP)
	if in.TrustedIPs[ip] {
		return Forward
	}
	if !in.Aggressive && !in.Suspicious[ip] {
		return Forward
	}
	return ServeDecoy
}
