// Package auth issues and verifies bearer tokens and hashes passwords.
//
// Tokens are HS256-signed JWTs carrying the user id and email. There is no
// revocation: a token stays valid until it expires.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/diewo77/devispro/httpx"
	"github.com/diewo77/devispro/i18n"
)

type ctxKey string

const (
	userIDCtxKey = ctxKey("userID")
	claimsCtxKey = ctxKey("claims")
)

// DefaultTTL is the fixed lifetime of an issued token.
const DefaultTTL = 30 * 24 * time.Hour

var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the token payload.
type Claims struct {
	UserID uint   `json:"id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// UserVerifier is an optional callback to validate that a token's user still exists.
type UserVerifier func(ctx context.Context, uid uint) bool

// Authenticator issues tokens and guards handlers.
type Authenticator struct {
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	verifier UserVerifier
	// Unauthorized writes the 401 response. Defaults to a French JSON error.
	Unauthorized func(w http.ResponseWriter, r *http.Request, code string)
}

// New returns an Authenticator signing with secret. A zero ttl means DefaultTTL.
func New(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Authenticator{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		Unauthorized: func(w http.ResponseWriter, _ *http.Request, code string) {
			httpx.JSONError(w, http.StatusUnauthorized, i18n.T(i18n.FR, code), nil)
		},
	}
}

// SetUserVerifier configures the verifier used by RequireAuth.
func (a *Authenticator) SetUserVerifier(v UserVerifier) { a.verifier = v }

// Issue signs a token for the user.
func (a *Authenticator) Issue(userID uint, email string) (string, error) {
	now := a.now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return token, nil
}

// Verify decodes and checks a token. Malformed, tampered and expired tokens
// all yield ErrInvalidToken.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !parsed.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// WithUserID stores user id in context.
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userIDCtxKey, userID)
}

// UserIDFromContext extracts user id.
func UserIDFromContext(ctx context.Context) (uint, bool) {
	v := ctx.Value(userIDCtxKey)
	if v == nil {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// ClaimsFromContext returns the verified claims of the request, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsCtxKey).(*Claims)
	return c, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireAuth rejects requests without a valid bearer token and stores the
// user id and claims in the request context otherwise.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			a.Unauthorized(w, r, "unauthorized")
			return
		}
		claims, err := a.Verify(token)
		if err != nil {
			a.Unauthorized(w, r, "invalid_token")
			return
		}
		if a.verifier != nil && !a.verifier(r.Context(), claims.UserID) {
			// token refers to a user that no longer exists
			a.Unauthorized(w, r, "invalid_token")
			return
		}
		ctx := WithUserID(r.Context(), claims.UserID)
		ctx = context.WithValue(ctx, claimsCtxKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

var dummyHash = sync.OnceValue(func() []byte {
	b, _ := bcrypt.GenerateFromPassword([]byte("devispro-no-such-user"), bcrypt.DefaultCost)
	return b
})

// CompareDummy spends one bcrypt comparison against a fixed hash, so a
// lookup miss takes as long as a wrong password.
func CompareDummy(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
}

// HashPassword returns a salted bcrypt hash.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
