// Package locking provides per-domain mutual exclusion and throttling
// for crawl sessions, backed by a shared TTL key-value store. One
// active session per domain; minimum spacing between consecutive
// sessions for the same domain.
package locking

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Store is the shared TTL-keyed store contract: atomic set-if-absent
// with expiry, plus plain get/set/delete. Redis satisfies it in
// production; memstore satisfies it in-process for tests and bypass
// paths. No component other than the Coordinator touches these keys.
type Store interface {
	// SetNX sets key to value with a TTL only if the key is absent.
	// Returns true when the key was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Get returns the value for key, or "" with ok=false when absent
	// or expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set unconditionally sets key to value with a TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes key.
	Del(ctx context.Context, key string) error
}

const (
	lockKeyPrefix     = "lock:domain:"
	throttleKeyPrefix = "throttle:domain:"
)

// NormalizeDomain lowercases, strips the scheme and a leading "www.".
//
//	https://www.example.com/path -> example.com
//	Example.com                  -> example.com
func NormalizeDomain(urlOrHost string) string {
	s := strings.ToLower(strings.TrimSpace(urlOrHost))
	host := s
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			host = u.Host
		}
	}
	if h, _, ok := strings.Cut(host, ":"); ok && h != "" {
		host = h
	}
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return s
	}
	return host
}

func lockKey(domain string) string     { return lockKeyPrefix + domain }
func throttleKey(domain string) string { return throttleKeyPrefix + domain }
