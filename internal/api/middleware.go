/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/friendsincode/inspectd/internal/auth"
	"github.com/friendsincode/inspectd/internal/cache"
	"github.com/friendsincode/inspectd/internal/telemetry"
)

const idempotencyHeader = "Idempotency-Key"

// callerLimiter keeps a token bucket per authenticated caller, falling back
// to the remote address.
type callerLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

func newCallerLimiter(r rate.Limit, b int) *callerLimiter {
	return &callerLimiter{limiters: make(map[string]*rate.Limiter), r: r, b: b}
}

func (l *callerLimiter) get(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[key]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok = l.limiters[key]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(l.r, l.b)
	l.limiters[key] = limiter
	return limiter
}

func (a *API) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.get(callerKey(r)).Allow() {
			telemetry.APIRateLimitedTotal.Inc()
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerKey(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return "uid:" + claims.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// withIdempotency runs create at most once per caller, scope and
// Idempotency-Key. A repeated key answers with the id of the resource the
// first request created.
func (a *API) withIdempotency(w http.ResponseWriter, r *http.Request, scope string, create func() (string, any, error)) {
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key == "" || a.cache == nil {
		_, body, err := create()
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, body)
		return
	}
	if len(key) > 255 {
		writeError(w, http.StatusBadRequest, "validation", "Idempotency-Key must be at most 255 characters")
		return
	}

	ctx := r.Context()
	storageKey := cache.IdempotencyKey(scope, actor(r).ID, key)
	res, err := a.cache.Reserve(ctx, storageKey)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	switch {
	case res.InFlight:
		writeError(w, http.StatusConflict, "idempotency_in_progress", "a request with this Idempotency-Key is still in progress")
		return
	case res.ResourceID != "":
		w.Header().Set("Idempotent-Replay", "true")
		writeJSON(w, http.StatusOK, map[string]string{"id": res.ResourceID})
		return
	}

	id, body, err := create()
	if err != nil {
		a.cache.Release(ctx, storageKey)
		a.fail(w, r, err)
		return
	}
	a.cache.Complete(ctx, storageKey, id)
	writeJSON(w, http.StatusCreated, body)
}
