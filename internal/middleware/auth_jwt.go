package middleware

import (
	"context"
	"crypto/rsa"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the bearer token payload. The subject is the acting user id.
type Claims struct {
	jwt.RegisteredClaims
}

type userKey string

const (
	userIDKey userKey = "user_id"
)

// SignToken issues an HS256 token for subject, valid for ttl.
func SignToken(secret, issuer, subject string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject is required")
	}
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyToken checks signature, expiry and issuer and returns the claims.
func VerifyToken(secret, issuer, raw string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// TokenVerifier returns the subject of a valid bearer token.
type TokenVerifier func(ctx context.Context, raw string) (string, error)

// HMACVerifier accepts tokens minted by SignToken.
func HMACVerifier(secret, issuer string) TokenVerifier {
	return func(_ context.Context, raw string) (string, error) {
		claims, err := VerifyToken(secret, issuer, raw)
		if err != nil {
			return "", err
		}
		return claims.Subject, nil
	}
}

// KeySource resolves an issuer's RSA signing key by key id.
type KeySource interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// OIDCVerifier accepts RS256 tokens from an external OpenID Connect issuer. An empty
// audience skips the audience check.
func OIDCVerifier(keys KeySource, issuer, audience string) TokenVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return func(ctx context.Context, raw string) (string, error) {
		claims := &Claims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			return keys.Key(ctx, kid)
		}, opts...)
		if err != nil {
			return "", err
		}
		if claims.Subject == "" {
			return "", errors.New("token has no subject")
		}
		return claims.Subject, nil
	}
}

// AuthJWT requires a token signed with the shared secret.
func AuthJWT(secret, issuer string) func(http.Handler) http.Handler {
	return Authenticate(HMACVerifier(secret, issuer))
}

// Authenticate requires a bearer token that one of the verifiers accepts. Browsers cannot
// set headers on a WebSocket handshake, so the token is also read from the access_token
// query parameter.
func Authenticate(verifiers ...TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			for _, verify := range verifiers {
				if subject, err := verify(r.Context(), raw); err == nil {
					noteUser(r.Context(), subject)
					next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), subject)))
					return
				}
			}
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("access_token")
}

func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if strings.TrimSpace(userID) == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, userID)
}
