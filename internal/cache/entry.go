package cache

import (
	"sync/atomic"
	"time"
)

// Options are the expiration bounds of one entry. A zero duration means the
// bound is not set; an entry expires at whichever set bound comes first.
type Options struct {
	Absolute time.Duration
	Sliding  time.Duration
}

// DefaultOptions apply when both bounds are zero.
var DefaultOptions = Options{Absolute: 10 * time.Minute}

func (o Options) orDefault() Options {
	if o.Absolute <= 0 && o.Sliding <= 0 {
		return DefaultOptions
	}
	return o
}

// entry is owned by the local tier. Only lastAccess changes after creation.
type entry struct {
	value      []byte
	expiresAt  time.Time // zero: no absolute bound
	sliding    time.Duration
	lastAccess atomic.Int64 // unix nanos
}

func newEntry(value []byte, opts Options, now time.Time) *entry {
	e := &entry{value: value, sliding: opts.Sliding}
	if opts.Absolute > 0 {
		e.expiresAt = now.Add(opts.Absolute)
	}
	e.lastAccess.Store(now.UnixNano())
	return e
}

func (e *entry) expired(now time.Time) bool {
	if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
		return true
	}
	if e.sliding > 0 && now.UnixNano()-e.lastAccess.Load() >= int64(e.sliding) {
		return true
	}
	return false
}

func (e *entry) touch(now time.Time) {
	e.lastAccess.Store(now.UnixNano())
}

// remaining is the time left before the entry expires, used as the remote TTL.
func (e *entry) remaining(now time.Time) time.Duration {
	var ttl time.Duration
	if !e.expiresAt.IsZero() {
		ttl = e.expiresAt.Sub(now)
	}
	if e.sliding > 0 && (ttl <= 0 || e.sliding < ttl) {
		ttl = e.sliding
	}
	return ttl
}

// envelope is the remote tier payload: the value plus its expiration bounds,
// so a back-filled local entry keeps the original deadlines.
type envelope struct {
	Value     []byte `json:"v"`
	ExpiresAt int64  `json:"e,omitempty"` // unix nanos, 0 when unset
	Sliding   int64  `json:"s,omitempty"` // nanos
}

func (e *entry) envelope() envelope {
	env := envelope{Value: e.value, Sliding: int64(e.sliding)}
	if !e.expiresAt.IsZero() {
		env.ExpiresAt = e.expiresAt.UnixNano()
	}
	return env
}

func (env envelope) entry(now time.Time) *entry {
	e := &entry{value: env.Value, sliding: time.Duration(env.Sliding)}
	if env.ExpiresAt > 0 {
		e.expiresAt = time.Unix(0, env.ExpiresAt)
	}
	e.lastAccess.Store(now.UnixNano())
	return e
}
