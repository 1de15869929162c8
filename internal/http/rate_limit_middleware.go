package httpx

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// rateScope names what a counter is charged to.
type rateScope string

const (
	// rateScopeClient charges anonymous traffic to the client address.
	rateScopeClient rateScope = "ip"
	// rateScopeUser charges the signed-in user across all their sessions.
	rateScopeUser rateScope = "user"
	// rateScopeMember charges one user inside one project.
	rateScopeMember rateScope = "member"
	// rateScopeProject is shared by every member of a project.
	rateScopeProject rateScope = "project"
)

type rateKey struct {
	route   string
	scope   rateScope
	subject string
}

func (k rateKey) String() string {
	return k.route + "|" + string(k.scope) + ":" + k.subject
}

// ratePolicy allows limit requests per fixed window.
type ratePolicy struct {
	limit  int
	window time.Duration
}

var (
	policySignup        = ratePolicy{limit: 5, window: time.Minute}
	policyLogin         = ratePolicy{limit: 12, window: time.Minute}
	policyPassword      = ratePolicy{limit: 5, window: time.Minute}
	policyUserRead      = ratePolicy{limit: 240, window: time.Minute}
	policyUserWrite     = ratePolicy{limit: 60, window: time.Minute}
	policyDiscussion    = ratePolicy{limit: 30, window: time.Minute}
	policyIntegrationOp = ratePolicy{limit: 20, window: time.Minute}
	policyRealtime      = ratePolicy{limit: 30, window: 30 * time.Second}
)

// RateLimiter counts requests per key within fixed windows. An error means
// the backend could not answer; callers let the request through.
type RateLimiter interface {
	Allow(ctx context.Context, key rateKey, policy ratePolicy) (rateDecision, error)
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

type memoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]rateDecision
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryRateLimiter returns a process-local limiter. Use the Redis
// limiter when several API replicas share traffic.
func NewMemoryRateLimiter() RateLimiter {
	rl := &memoryRateLimiter{
		windows: make(map[string]rateDecision),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go rl.sweepLoop(5 * time.Minute)
	return rl
}

func (rl *memoryRateLimiter) Allow(_ context.Context, key rateKey, policy ratePolicy) (rateDecision, error) {
	now := rl.now()
	id := key.String()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	w, ok := rl.windows[id]
	if !ok || !now.Before(w.windowEnd) {
		w = rateDecision{windowEnd: now.Add(policy.window)}
	}
	if w.count >= policy.limit {
		w.allowed = false
		return w, nil
	}
	w.count++
	w.allowed = true
	rl.windows[id] = w
	return w, nil
}

func (rl *memoryRateLimiter) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep(rl.now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *memoryRateLimiter) sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for id, w := range rl.windows {
		if !now.Before(w.windowEnd) {
			delete(rl.windows, id)
			removed++
		}
	}
	return removed
}

func (rl *memoryRateLimiter) Close() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// limited charges each request to the counter picked by scope. When the
// limiter backend fails the request goes through and the failure is counted
// in the store metrics.
func (r *Router) limited(route string, policy ratePolicy, scope rateScope, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if policy.limit <= 0 || r.limiter == nil {
			next(w, req)
			return
		}
		key := rateKeyFor(route, scope, req)
		decision, err := r.limiter.Allow(req.Context(), key, policy)
		r.recordStoreOp("ratelimit", string(key.scope), err)
		if err != nil {
			r.logger.Warn("rate limiter unavailable", "route", route, "scope", key.scope, "error", err)
			next(w, req)
			return
		}
		r.applyRateHeaders(w, policy.limit, decision)
		if !decision.allowed {
			r.recordRateLimitHit(route, string(key.scope))
			if wait := time.Until(decision.windowEnd); wait > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			}
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, req)
	}
}

// authLimited authenticates, then charges the request to the user.
func (r *Router) authLimited(route string, policy ratePolicy, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.limited(route, policy, rateScopeUser, next))
}

// projectLimited authenticates, charges the request to scope inside the
// project from the path and rejects projects outside the catalog.
func (r *Router) projectLimited(route string, policy ratePolicy, scope rateScope, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.limited(route, policy, scope, r.withProject(next)))
}

// rateKeyFor falls back to the client scope when the request carries
// nothing to charge the wanted scope to.
func rateKeyFor(route string, scope rateScope, req *http.Request) rateKey {
	info, _ := authInfoFromContext(req.Context())
	vars := mux.Vars(req)
	project := vars["team"] + "/" + vars["project"]
	hasProject := vars["team"] != "" && vars["project"] != ""

	switch {
	case scope == rateScopeUser && info.UserID != "":
		return rateKey{route: route, scope: rateScopeUser, subject: info.UserID}
	case scope == rateScopeMember && info.UserID != "" && hasProject:
		return rateKey{route: route, scope: rateScopeMember, subject: project + "/" + info.UserID}
	case scope == rateScopeProject && hasProject:
		return rateKey{route: route, scope: rateScopeProject, subject: project}
	}
	ip := clientIP(req)
	if ip == "" {
		ip = "unknown"
	}
	return rateKey{route: route, scope: rateScopeClient, subject: ip}
}
