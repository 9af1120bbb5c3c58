package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/config"
	"museum-ticketing-platform/internal/models"
)

type contextKey string

const principalContextKey contextKey = "principal"

// Claims are the bearer token claims issued by the hosted auth service
type Claims struct {
	Email string          `json:"email"`
	Role  models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator validates HS256 bearer tokens
type Authenticator struct {
	secret []byte
	issuer string
	logger *logrus.Logger
}

// NewAuthenticator creates an authenticator for the configured secret and issuer
func NewAuthenticator(cfg config.AuthConfig, logger *logrus.Logger) *Authenticator {
	return &Authenticator{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		logger: logger,
	}
}

// Parse validates a raw token and returns its principal
func (a *Authenticator) Parse(raw string) (*models.Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("token is not valid")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	role := claims.Role
	if role == "" {
		role = models.UserRoleVisitor
	}

	return &models.Principal{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   role,
	}, nil
}

// Issue signs a token for p. Used by museumctl and tests.
func (a *Authenticator) Issue(p models.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: p.Email,
		Role:  p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// LoadPrincipal puts the bearer token's principal in the request context.
// Requests without a token pass through; a bad token is rejected.
func (a *Authenticator) LoadPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, models.CodeAuth, "Missing bearer token")
			return
		}

		principal, err := a.Parse(raw)
		if err != nil {
			a.logger.WithError(err).WithField("path", r.URL.Path).Debug("Rejected bearer token")
			writeError(w, http.StatusUnauthorized, models.CodeAuth, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// RequireAuth rejects requests without an authenticated principal
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFrom(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, models.CodeAuth, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin allows only principals with the admin role
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := PrincipalFrom(r.Context())
		if principal == nil {
			writeError(w, http.StatusUnauthorized, models.CodeAuth, "Authentication required")
			return
		}
		if !principal.IsAdmin() {
			writeError(w, http.StatusForbidden, models.CodeAuth, "Access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PrincipalFrom returns the authenticated caller, or nil
func PrincipalFrom(ctx context.Context) *models.Principal {
	p, _ := ctx.Value(principalContextKey).(*models.Principal)
	return p
}

// WithPrincipal stores p in ctx
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok && p != nil {
		info.userID = p.UserID
	}
	return context.WithValue(ctx, principalContextKey, p)
}
