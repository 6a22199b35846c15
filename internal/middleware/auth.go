package middleware

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// AnonymousPrincipal is the caller identity when authentication is disabled.
const AnonymousPrincipal = "anonymous"

type principalCtxKey struct{}

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/ready": true,
}

// KeyVerifier checks API keys against bcrypt hashes. A key that verified once
// is remembered by its SHA-256 digest so later requests skip bcrypt.
type KeyVerifier struct {
	hashes [][]byte

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]string
}

// NewKeyVerifier creates a verifier for the configured hashes.
func NewKeyVerifier(hashes []string) *KeyVerifier {
	v := &KeyVerifier{verified: make(map[[sha256.Size]byte]string)}
	for _, h := range hashes {
		if h = strings.TrimSpace(h); h != "" {
			v.hashes = append(v.hashes, []byte(h))
		}
	}
	return v
}

// Verify returns the principal for key. Principals are named after the
// position of the matching hash in the configuration ("key-0", "key-1", ...).
func (v *KeyVerifier) Verify(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	digest := sha256.Sum256([]byte(key))
	v.mu.RLock()
	p, ok := v.verified[digest]
	v.mu.RUnlock()
	if ok {
		return p, true
	}

	for i, h := range v.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) != nil {
			continue
		}
		p = fmt.Sprintf("key-%d", i)
		v.mu.Lock()
		v.verified[digest] = p
		v.mu.Unlock()
		return p, true
	}
	return "", false
}

// HashKey returns the bcrypt hash of key for the api_key_hashes setting.
func HashKey(key string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(h), nil
}

// Auth returns middleware that requires a valid API key, passed as X-API-Key,
// as a bearer token, or as ?token= on the WebSocket endpoint.
// When enabled is false every request runs as AnonymousPrincipal.
func Auth(v *KeyVerifier, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), AnonymousPrincipal)))
				return
			}
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := credential(r)
			if key == "" {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}
			p, ok := v.Verify(key)
			if !ok {
				http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func credential(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if r.URL.Path == "/ws" {
		return r.URL.Query().Get("token")
	}
	return ""
}

// WithPrincipal stores the caller identity in ctx.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, principal)
}

// PrincipalFromContext returns the caller identity, or "" when unauthenticated.
func PrincipalFromContext(ctx context.Context) string {
	p, _ := ctx.Value(principalCtxKey{}).(string)
	return p
}
