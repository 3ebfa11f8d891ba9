// Package auth resolves the owner of an inbound request, either from a
// Supabase-issued JWT or, for local development, from a trusted header.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/competition-radar/internal/analysis"
)

// DefaultAudience is the audience Supabase stamps on user access tokens.
const DefaultAudience = "authenticated"

// DefaultOwnerHeader carries the owner id in header mode.
const DefaultOwnerHeader = "X-Owner-ID"

type contextKey string

const ownerKey contextKey = "owner_id"

// Authenticator resolves the owner id of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// Claims are the Supabase access token claims used here.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// SupabaseConfig configures JWT verification.
type SupabaseConfig struct {
	// URL is the Supabase project URL; its JWKS endpoint is derived from it.
	URL string
	// JWTSecret enables HS256 verification with the project secret instead of JWKS.
	JWTSecret       string
	Audience        string
	Leeway          time.Duration
	ClientTimeout   time.Duration
	RefreshInterval time.Duration
}

// Supabase verifies bearer tokens issued by Supabase Auth.
type Supabase struct {
	keyfunc  jwt.Keyfunc
	methods  []string
	audience string
	leeway   time.Duration
	logger   *zap.Logger
}

// JWKSURL returns the JWKS endpoint of a Supabase project.
func JWKSURL(projectURL string) string {
	return strings.TrimRight(projectURL, "/") + "/auth/v1/.well-known/jwks.json"
}

// NewSupabase builds a verifier. A JWTSecret selects HS256; otherwise keys
// are fetched from the project JWKS and refreshed in the background.
func NewSupabase(ctx context.Context, cfg SupabaseConfig, logger *zap.Logger) (*Supabase, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.JWTSecret != "" {
		secret := []byte(cfg.JWTSecret)
		return newSupabase(func(*jwt.Token) (any, error) {
			return secret, nil
		}, []string{"HS256"}, cfg, logger), nil
	}
	if cfg.URL == "" {
		return nil, errors.New("supabase url or jwt secret is required")
	}
	if cfg.ClientTimeout <= 0 {
		cfg.ClientTimeout = 10 * time.Second
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Hour
	}

	jwksURL := JWKSURL(cfg.URL)
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: cfg.ClientTimeout},
		Ctx:                       ctx,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("jwks refresh failed", zap.String("url", jwksURL), zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create jwks storage: %w", err)
	}
	k, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("create keyfunc: %w", err)
	}
	return NewSupabaseWithKeyfunc(k, cfg, logger), nil
}

// NewSupabaseWithKeyfunc builds a JWKS verifier around an existing keyfunc.
func NewSupabaseWithKeyfunc(k keyfunc.Keyfunc, cfg SupabaseConfig, logger *zap.Logger) *Supabase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return newSupabase(k.Keyfunc, []string{"RS256", "ES256"}, cfg, logger)
}

func newSupabase(kf jwt.Keyfunc, methods []string, cfg SupabaseConfig, logger *zap.Logger) *Supabase {
	audience := cfg.Audience
	if audience == "" {
		audience = DefaultAudience
	}
	return &Supabase{
		keyfunc:  kf,
		methods:  methods,
		audience: audience,
		leeway:   cfg.Leeway,
		logger:   logger.Named("auth"),
	}
}

// Authenticate validates the bearer token and returns its subject.
func (s *Supabase) Authenticate(r *http.Request) (string, error) {
	tokenString, err := bearerToken(r)
	if err != nil {
		return "", err
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.keyfunc,
		jwt.WithValidMethods(s.methods),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(s.audience),
		jwt.WithLeeway(s.leeway),
	)
	if err != nil || !token.Valid {
		s.logger.Debug("jwt validation failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return "", fmt.Errorf("%w: invalid or expired token", analysis.ErrUnauthenticated)
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("%w: token has no subject", analysis.ErrUnauthenticated)
	}
	return subject, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: missing Authorization header", analysis.ErrUnauthenticated)
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("%w: expected Bearer token", analysis.ErrUnauthenticated)
	}
	return strings.TrimSpace(parts[1]), nil
}

// Header trusts an owner id supplied in a request header.
type Header struct {
	Name        string
	// RequireUUID rejects owners that are not UUIDs, matching a uuid
	// owner_id column.
	RequireUUID bool
}

// Authenticate returns the header value.
func (h Header) Authenticate(r *http.Request) (string, error) {
	name := h.Name
	if name == "" {
		name = DefaultOwnerHeader
	}
	owner := strings.TrimSpace(r.Header.Get(name))
	if owner == "" {
		return "", fmt.Errorf("%w: missing %s header", analysis.ErrUnauthenticated, name)
	}
	if h.RequireUUID {
		if _, err := uuid.Parse(owner); err != nil {
			return "", fmt.Errorf("%w: %s is not a uuid", analysis.ErrUnauthenticated, name)
		}
	}
	return owner, nil
}

// Middleware rejects requests without a principal and stores the owner id
// in the request context.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, err := a.Authenticate(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="radar"`)
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

// WithOwner returns a context carrying owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// OwnerFromContext returns the owner id stored by Middleware, or "".
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey).(string)
	return owner
}
