package server

import (
	"net"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// DefaultMaxCallers bounds how many callers keep a bucket at once.
const DefaultMaxCallers = 4096

// RateConfig bounds request rates per caller. A zero Rate disables limiting.
type RateConfig struct {
	Rate  float64
	Burst int
	// MaxCallers caps tracked callers; the least recently seen one is dropped
	// and starts over with a full bucket if it returns.
	MaxCallers int
}

// limiters hands out one token bucket per caller key.
type limiters struct {
	cfg RateConfig
	mu  sync.Mutex
	c   *lru.Cache[string, *rate.Limiter]
}

func newLimiters(cfg RateConfig) (*limiters, error) {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxCallers <= 0 {
		cfg.MaxCallers = DefaultMaxCallers
	}
	c, err := lru.New[string, *rate.Limiter](cfg.MaxCallers)
	if err != nil {
		return nil, err
	}
	return &limiters{cfg: cfg, c: c}, nil
}

func (l *limiters) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.c.Get(key)
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.cfg.Rate), l.cfg.Burst)
		l.c.Add(key, lim)
	}
	return lim
}

func (l *limiters) len() int { return l.c.Len() }

// callerKey is the authenticated player, or the remote IP for anonymous calls.
func callerKey(req *http.Request) string {
	if p, ok := principalFromContext(req.Context()); ok && p.PlayerID != "" {
		return "player:" + p.PlayerID
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	return "ip:" + host
}

// newRateLimitMiddleware must run after the auth middleware so tokens key the
// bucket by player.
func newRateLimitMiddleware(cfg RateConfig) (func(http.Handler) http.Handler, error) {
	if cfg.Rate <= 0 {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	l, err := newLimiters(cfg)
	if err != nil {
		return nil, err
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !l.get(callerKey(req)).Allow() {
				w.Header().Set("Retry-After", "1")
				respondStatusError(w, newAPIError(http.StatusTooManyRequests, "rate_limited", "too many requests", nil))
				return
			}
			next.ServeHTTP(w, req)
		})
	}, nil
}
