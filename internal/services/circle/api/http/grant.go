package http

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/osusu/osusu/internal/platform/config"
	apperrors "github.com/osusu/osusu/internal/platform/errors"
	"github.com/osusu/osusu/internal/platform/requestctx"
)

// grantEnv holds raw env values before post-parse validation.
type grantEnv struct {
	Issuer    string `env:"OSUSU_GRANT_ISSUER"`
	Audience  string `env:"OSUSU_GRANT_AUDIENCE"`
	PublicKey string `env:"OSUSU_GRANT_PUBLIC_KEY"`
}

// GrantConfig defines how principal grants are verified.
type GrantConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// GrantClaims captures validated principal grant claims.
type GrantClaims struct {
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	NotBefore time.Time
	IssuedAt  time.Time
	JWTID     string
	Subject   string
}

// LoadGrantConfigFromEnv reads grant verification configuration.
func LoadGrantConfigFromEnv(now func() time.Time) (GrantConfig, error) {
	var raw grantEnv
	if err := config.ParseEnv(&raw); err != nil {
		return GrantConfig{}, fmt.Errorf("parse grant env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return GrantConfig{}, fmt.Errorf("OSUSU_GRANT_ISSUER is required")
	}
	if audience == "" {
		return GrantConfig{}, fmt.Errorf("OSUSU_GRANT_AUDIENCE is required")
	}
	if publicKey == "" {
		return GrantConfig{}, fmt.Errorf("OSUSU_GRANT_PUBLIC_KEY is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return GrantConfig{}, fmt.Errorf("decode grant public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return GrantConfig{}, fmt.Errorf("grant public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return GrantConfig{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// ValidateGrant verifies a principal grant token and validates its claims.
// The subject claim is the trusted caller identity.
func ValidateGrant(grant string, cfg GrantConfig) (GrantClaims, error) {
	grant = strings.TrimSpace(grant)
	if grant == "" {
		return GrantClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "grant is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return GrantClaims{}, errors.New("grant verifier is not configured")
	}

	var parsed jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return GrantClaims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return GrantClaims{}, apperrors.WithMetadata(
			apperrors.CodeGrantMismatch,
			"grant issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return GrantClaims{}, apperrors.WithMetadata(
			apperrors.CodeGrantMismatch,
			"grant audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}

	if parsed.ID == "" {
		return GrantClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "grant jti is required")
	}
	if parsed.ExpiresAt == nil {
		return GrantClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "grant exp is required")
	}

	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return GrantClaims{}, apperrors.New(apperrors.CodeGrantExpired, "grant is expired")
	}
	if parsed.NotBefore != nil {
		nbf := parsed.NotBefore.Time.UTC()
		if now.Before(nbf) {
			return GrantClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "grant not active yet")
		}
	}

	if strings.TrimSpace(parsed.Subject) == "" {
		return GrantClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "grant sub is required")
	}

	claims := GrantClaims{
		Issuer:    parsed.Issuer,
		Audience:  []string(parsed.Audience),
		ExpiresAt: exp,
		JWTID:     parsed.ID,
		Subject:   strings.TrimSpace(parsed.Subject),
	}
	if parsed.NotBefore != nil {
		claims.NotBefore = parsed.NotBefore.Time.UTC()
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// bearerToken extracts the grant from the Authorization header, falling back
// to the access_token query parameter for websocket clients that cannot set
// headers.
func bearerToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

// Authenticate resolves the grant on each request and stores the subject as
// the caller identity in the request context.
func Authenticate(cfg GrantConfig) Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := ValidateGrant(bearerToken(r), cfg)
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(requestctx.WithUserID(r.Context(), claims.Subject)))
		})
	}
}

// principal returns the authenticated caller identity for the request.
func principal(r *http.Request) string {
	if r == nil {
		return ""
	}
	return requestctx.UserIDFromContext(r.Context())
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeGrantInvalid, "grant signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeGrantInvalid, "grant alg is invalid")
	}
	return apperrors.New(apperrors.CodeGrantInvalid, "grant is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
