package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"commerce-access/internal/domain/model"
	"commerce-access/internal/infra/logging"
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

// CallerClaims is the token issued by the auth provider: sub is the user id.
type CallerClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AuthManager verifies HS256 bearer tokens of the auth provider.
type AuthManager struct {
	secret []byte
	issuer string
}

func NewAuthManager(secret, issuer string) *AuthManager {
	return &AuthManager{secret: []byte(secret), issuer: issuer}
}

// Mint signs a token for caller. Used by tooling and tests.
func (a *AuthManager) Mint(caller model.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := CallerClaims{
		Email: caller.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   caller.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseFromRequest returns the caller of the Authorization bearer token.
func (a *AuthManager) ParseFromRequest(r *http.Request) (*model.Caller, error) {
	tok, ok := bearer(r)
	if !ok {
		return nil, errMissingToken
	}
	return a.parse(tok)
}

func (a *AuthManager) parse(tok string) (*model.Caller, error) {
	claims := &CallerClaims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !tkn.Valid {
		return nil, errInvalidToken
	}
	if claims.Subject == "" || model.NormalizeEmail(claims.Email) == "" {
		return nil, errInvalidToken
	}
	return &model.Caller{ID: claims.Subject, Email: model.NormalizeEmail(claims.Email)}, nil
}

type callerKey struct{}

// CallerFrom returns the authenticated caller attached by the auth middleware.
func CallerFrom(ctx context.Context) *model.Caller {
	c, _ := ctx.Value(callerKey{}).(*model.Caller)
	return c
}

func withCaller(ctx context.Context, c *model.Caller) context.Context {
	ctx = context.WithValue(ctx, callerKey{}, c)
	return logging.WithUserID(ctx, c.ID)
}

// OptionalCaller attaches the caller when a token is sent. A bad token is rejected
// rather than treated as anonymous.
func (a *AuthManager) OptionalCaller() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := a.ParseFromRequest(r)
			switch {
			case errors.Is(err, errMissingToken):
				next.ServeHTTP(w, r)
			case err != nil:
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
			default:
				next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), c)))
			}
		})
	}
}

// RequireCaller rejects requests without a valid token.
func (a *AuthManager) RequireCaller() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := a.ParseFromRequest(r)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
				return
			}
			next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), c)))
		})
	}
}

// SharedSecret guards provider and admin routes with a static bearer secret.
func SharedSecret(secret string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
				return
			}
			tok, ok := bearer(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
				return
			}
			if subtle.ConstantTimeCompare([]byte(tok), []byte(secret)) != 1 {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	hdr := r.Header.Get("Authorization")
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}
