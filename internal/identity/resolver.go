package identity

import (
	"crypto/ed25519"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Resolver resolves a DID to its current Ed25519 verification key.
// Implementations must return an error, not a zero key, when resolution fails.
type Resolver interface {
	Resolve(did string) (ed25519.PublicKey, error)
}

// KeyResolver resolves did:key identifiers locally.
type KeyResolver struct{}

// Resolve extracts the key embedded in a did:key identifier.
func (KeyResolver) Resolve(did string) (ed25519.PublicKey, error) {
	return PublicKey(did)
}

// CachedResolver wraps a Resolver with an expiring in-memory cache, so
// repeated admissions by the same signer do not re-resolve the key material.
// Failed resolutions are never cached.
type CachedResolver struct {
	inner Resolver
	cache *gocache.Cache
}

// NewCachedResolver creates a caching wrapper around inner with the given TTL.
func NewCachedResolver(inner Resolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Resolve returns the cached key for did, consulting inner on a miss.
func (r *CachedResolver) Resolve(did string) (ed25519.PublicKey, error) {
	if v, ok := r.cache.Get(did); ok {
		return v.(ed25519.PublicKey), nil
	}
	pub, err := r.inner.Resolve(did)
	if err != nil {
		return nil, err
	}
	r.cache.Set(did, pub, gocache.DefaultExpiration)
	return pub, nil
}
