package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/earthdata/granule-bridge/internal/core/observability"
	"github.com/earthdata/granule-bridge/internal/granules"
)

type KeyFunc func(r *http.Request) string

// RateLimitConfig configures a per-client token bucket.
type RateLimitConfig struct {
	RPS       float64
	Burst     int
	KeyHeader string
	TrustXFF  bool
	// MaxClients bounds the limiter table; the least recently seen client is evicted.
	MaxClients int
	KeyFn      KeyFunc
}

// Limiters hands out one token bucket per client key.
type Limiters struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *rate.Limiter]
	rps   rate.Limit
	burst int
}

func NewLimiters(rps float64, burst, maxClients int) (*Limiters, error) {
	if maxClients <= 0 {
		maxClients = 10_000
	}
	if burst <= 0 {
		burst = 1
	}
	c, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		return nil, err
	}
	return &Limiters{cache: c, rps: rate.Limit(rps), burst: burst}, nil
}

func (l *Limiters) Get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.cache.Get(key); ok {
		return lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.cache.Add(key, lim)
	return lim
}

// Len reports how many clients currently hold a bucket.
func (l *Limiters) Len() int { return l.cache.Len() }

// DefaultKeyFunc identifies a client by header, then first X-Forwarded-For hop, then remote host.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
					return ip
				}
			}
		}
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

func RateLimit(l *slog.Logger, cfg RateLimitConfig) (func(http.Handler) http.Handler, error) {
	lims, err := NewLimiters(cfg.RPS, cfg.Burst, cfg.MaxClients)
	if err != nil {
		return nil, err
	}
	keyFn := cfg.KeyFn
	if keyFn == nil {
		keyFn = DefaultKeyFunc(cfg.KeyHeader, cfg.TrustXFF)
	}

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			lim := lims.Get(key)
			observability.SetRateLimitClients(lims.Len())
			res := lim.Reserve()
			if !res.OK() {
				reject(l, w, r, key, time.Second)
				return
			}
			if d := res.Delay(); d > 0 {
				res.Cancel()
				reject(l, w, r, key, d)
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}, nil
}

func reject(l *slog.Logger, w http.ResponseWriter, r *http.Request, key string, retry time.Duration) {
	observability.IncRateLimited()
	l.WarnContext(r.Context(), "rate limited", "client", key, "retry_after", retry.String())
	secs := int(math.Ceil(retry.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	granules.ErrorEnvelope(http.StatusTooManyRequests, nil, "rate limit exceeded").Write(w)
}
