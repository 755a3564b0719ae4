package signal

import (
	"github.com/dkeye/Meet/internal/protocol"
	"golang.org/x/time/rate"
)

// maxStrikes is how many rejected messages in a row a connection may send before it is closed.
const maxStrikes = 50

// ConnRateLimiter limits inbound messages of one connection. Negotiation traffic
// (offers, answers, candidates, link reports) draws from its own budget so chatter
// never starves it. Only the connection's read pump uses it.
type ConnRateLimiter struct {
	lim         *rate.Limiter
	negotiation *rate.Limiter
	strikes     int
}

func NewConnRateLimiter(perSecond float64, burst int, negotiationPerSecond float64, negotiationBurst int) *ConnRateLimiter {
	return &ConnRateLimiter{
		lim:         rate.NewLimiter(rate.Limit(perSecond), burst),
		negotiation: rate.NewLimiter(rate.Limit(negotiationPerSecond), negotiationBurst),
	}
}

// Allow reports whether the next message of kind may pass and whether the connection
// exhausted its strikes.
func (rl *ConnRateLimiter) Allow(kind protocol.Kind) (allowed, exhausted bool) {
	lim := rl.lim
	if kind.Negotiation() {
		lim = rl.negotiation
	}
	if lim.Allow() {
		rl.strikes = 0
		return true, false
	}
	rl.strikes++
	return false, rl.strikes >= maxStrikes
}
