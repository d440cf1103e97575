package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"sync"

	"github.com/crewchat/crewseal/internal/util"
	"github.com/crewchat/crewseal/messaging"
)

type contextKey int

const (
	identityKey contextKey = iota
	tokenKey
)

const tokenBytes = 32

// tokenStore maps bearer tokens to in-process identities. Tokens are opaque
// random values; losing one only loses the handle, the key records in the
// directory are untouched.
type tokenStore struct {
	mu   sync.RWMutex
	data map[string]*messaging.Identity
}

func newTokenStore() *tokenStore {
	return &tokenStore{data: make(map[string]*messaging.Identity)}
}

func (s *tokenStore) issue(id *messaging.Identity) (string, error) {
	raw, err := util.RandomBytes(tokenBytes)
	if err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	s.mu.Lock()
	s.data[token] = id
	s.mu.Unlock()
	return token, nil
}

func (s *tokenStore) lookup(token string) (*messaging.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.data[token]
	return id, ok
}

func (s *tokenStore) revoke(token string) {
	s.mu.Lock()
	delete(s.data, token)
	s.mu.Unlock()
}

// AuthMiddleware resolves the bearer token to an identity and stores it on
// the request context.
func (a *API) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, ok := a.tokens.lookup(token)
		if !ok {
			a.audit.logFailure(AuditAuthFailure, r, "unknown token")
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

func identityFromContext(ctx context.Context) *messaging.Identity {
	id, _ := ctx.Value(identityKey).(*messaging.Identity)
	return id
}

func tokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}
