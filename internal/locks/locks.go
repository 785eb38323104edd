/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package locks serializes work on shared keys, such as one actor's bookings
// for one calendar date.
package locks

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrLockTimeout is returned when a key stays held past the wait budget.
var ErrLockTimeout = errors.New("lock wait timed out")

// Unlock releases every key acquired by a Lock call. It is safe to call once.
type Unlock func()

// Locker acquires a set of keys as a unit.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (Unlock, error)
}

// BookingKey names the lock guarding one actor's bookings on one date (YYYY-MM-DD).
func BookingKey(actorID, date string) string {
	return "booking:" + actorID + ":" + date
}

// normalizeKeys sorts and deduplicates keys so every caller acquires in the
// same order.
func normalizeKeys(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}

// Local is an in-process keyed mutex.
type Local struct {
	mu   sync.Mutex
	held map[string]*localEntry
}

type localEntry struct {
	sem  chan struct{}
	refs int
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]*localEntry)}
}

// Lock blocks until all keys are held or ctx is done.
func (l *Local) Lock(ctx context.Context, keys ...string) (Unlock, error) {
	keys = normalizeKeys(keys)
	acquired := make([]*localEntry, 0, len(keys))
	names := make([]string, 0, len(keys))

	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			<-acquired[i].sem
			l.unref(names[i], acquired[i])
		}
	}

	for _, key := range keys {
		e := l.ref(key)
		select {
		case e.sem <- struct{}{}:
			acquired = append(acquired, e)
			names = append(names, key)
		case <-ctx.Done():
			l.unref(key, e)
			release()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *Local) ref(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.held[key]
	if !ok {
		e = &localEntry{sem: make(chan struct{}, 1)}
		l.held[key] = e
	}
	e.refs++
	return e
}

func (l *Local) unref(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.held, key)
	}
}
