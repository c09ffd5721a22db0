package handlers

import (
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"
)

// limiterCacheSize bounds how many distinct clients have live token
// buckets. Old buckets fall out of the LRU; a returning client simply
// starts a fresh one.
const limiterCacheSize = 8192

// clientLimiter applies per-client request budgets: one bucket per remote
// IP for anonymous traffic and a far larger one per verified token.
// Budgets are configured in requests per minute; zero disables the
// corresponding limit.
type clientLimiter struct {
	anonymous     rate.Limit
	authenticated rate.Limit
	anonBurst     int
	authBurst     int

	clients *lru.Cache
}

func newClientLimiter(anonymousPerMinute, authenticatedPerMinute int) *clientLimiter {
	clients, _ := lru.New(limiterCacheSize)
	return &clientLimiter{
		anonymous:     rate.Limit(float64(anonymousPerMinute) / 60),
		authenticated: rate.Limit(float64(authenticatedPerMinute) / 60),
		anonBurst:     anonymousPerMinute,
		authBurst:     authenticatedPerMinute,
		clients:       clients,
	}
}

// allowAnonymous charges one request to the remote IP's bucket.
func (cl *clientLimiter) allowAnonymous(ip string) bool {
	return cl.allow("ip:"+ip, cl.anonymous, cl.anonBurst)
}

// allowToken charges one request to the token's bucket, so clients
// behind one NAT do not share a budget. The caller must have verified
// the token: keying on attacker-minted strings would hand out a fresh
// authenticated budget per forged header and churn honest clients'
// buckets out of the cache.
func (cl *clientLimiter) allowToken(token string) bool {
	return cl.allow("token:"+token, cl.authenticated, cl.authBurst)
}

func (cl *clientLimiter) allow(key string, limit rate.Limit, burst int) bool {
	if limit <= 0 {
		return true
	}

	if cached, ok := cl.clients.Get(key); ok {
		return cached.(*rate.Limiter).Allow()
	}

	limiter := rate.NewLimiter(limit, burst)
	cl.clients.Add(key, limiter)
	return limiter.Allow()
}
