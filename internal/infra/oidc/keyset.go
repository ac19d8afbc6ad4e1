package oidc

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrUnknownKey is returned when the issuer does not publish the requested key id.
var ErrUnknownKey = errors.New("oidc: unknown key id")

type jwks struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// KeySet caches the RSA signing keys an OpenID Connect issuer publishes. Keys are
// refetched after an hour, or when a token names a key id not in the cache and the last
// fetch is at least a minute old. Concurrent refreshes share one fetch.
type KeySet struct {
	issuer     string
	ttl        time.Duration
	minRefresh time.Duration
	mu         sync.RWMutex
	cache      map[string]*rsa.PublicKey
	fetched    time.Time
	flight     singleflight.Group
	now        func() time.Time
	httpClient *http.Client
}

func NewKeySet(issuer string) *KeySet {
	return &KeySet{
		issuer:     strings.TrimRight(issuer, "/"),
		ttl:        time.Hour,
		minRefresh: time.Minute,
		cache:      make(map[string]*rsa.PublicKey),
		now:        time.Now,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Issuer is the issuer URL tokens must carry.
func (k *KeySet) Issuer() string { return k.issuer }

// Key returns the public key for kid.
func (k *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if err := k.refreshOlderThan(ctx, k.ttl); err != nil {
		return nil, err
	}
	if key, ok := k.lookup(kid); ok {
		return key, nil
	}
	// rotated since the last fetch, or a forged kid
	if err := k.refreshOlderThan(ctx, k.minRefresh); err != nil {
		return nil, err
	}
	if key, ok := k.lookup(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownKey, kid)
}

func (k *KeySet) youngerThan(age time.Duration) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.cache) > 0 && k.now().Sub(k.fetched) < age
}

// refreshOlderThan refetches the key set unless it was fetched within age. Callers that
// arrive while a fetch is running wait for it instead of starting their own.
func (k *KeySet) refreshOlderThan(ctx context.Context, age time.Duration) error {
	if k.youngerThan(age) {
		return nil
	}
	_, err, _ := k.flight.Do("jwks", func() (any, error) {
		if k.youngerThan(age) {
			return nil, nil
		}
		return nil, k.refresh(ctx)
	})
	return err
}

func (k *KeySet) refresh(ctx context.Context) error {
	var discovery struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := k.getJSON(ctx, k.issuer+"/.well-known/openid-configuration", &discovery); err != nil {
		return fmt.Errorf("oidc: discovery: %w", err)
	}
	if discovery.JWKSURI == "" {
		return errors.New("oidc: discovery document has no jwks_uri")
	}
	var set jwks
	if err := k.getJSON(ctx, discovery.JWKSURI, &set); err != nil {
		return fmt.Errorf("oidc: fetch jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey)
	for _, key := range set.Keys {
		if key.Kty != "RSA" {
			continue
		}
		pub, err := rsaKeyFromJWK(key)
		if err != nil {
			continue
		}
		keys[key.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("oidc: no usable keys published")
	}
	k.mu.Lock()
	k.cache = keys
	k.fetched = k.now()
	k.mu.Unlock()
	return nil
}

func (k *KeySet) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := k.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (k *KeySet) lookup(kid string) (*rsa.PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pk, ok := k.cache[kid]
	return pk, ok
}

func rsaKeyFromJWK(j jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, err
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}
	if e == 0 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}
