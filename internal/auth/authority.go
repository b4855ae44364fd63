// Package auth implements the token authority and the ABAC policy engine.
//
// Tokens are HMAC-SHA256 signed: base64url(claims JSON) + "." +
// base64url(signature). Claims carry a per-tenant email pseudonym instead
// of the raw address, and a random token ID (jti) that addresses the
// Redis-backed revocation set.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/datamind/dispatch/internal/core"
	"github.com/datamind/dispatch/internal/infra"
)

// Token failure kinds. All map to 401 at the HTTP surface; the distinction
// is for logs and tests.
var (
	ErrExpired          = errors.New("token expired")
	ErrNotYetValid      = errors.New("token not yet valid")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMalformed        = errors.New("malformed token")
	ErrRevoked          = errors.New("token has been revoked")
)

// AuthorityConfig fixes the signing setup at process start. Key rotation
// is out of scope; changing the secret means redeploying.
type AuthorityConfig struct {
	SigningSecret   string
	KeyID           string
	DefaultLifetime time.Duration
	MaxLifetime     time.Duration
}

// TokenAuthority issues, verifies, and revokes access tokens. Revocation
// state lives in the shared key-value store under revoked:<jti> so every
// replica sees it.
type TokenAuthority struct {
	secret          []byte
	keyID           string
	defaultLifetime time.Duration
	maxLifetime     time.Duration
	store           infra.KVStore
}

// NewTokenAuthority creates the authority. store may be nil in tests that
// do not exercise revocation.
func NewTokenAuthority(cfg AuthorityConfig, store infra.KVStore) *TokenAuthority {
	if cfg.DefaultLifetime == 0 {
		cfg.DefaultLifetime = time.Hour
	}
	if cfg.MaxLifetime == 0 {
		cfg.MaxLifetime = 24 * time.Hour
	}
	return &TokenAuthority{
		secret:          []byte(cfg.SigningSecret),
		keyID:           cfg.KeyID,
		defaultLifetime: cfg.DefaultLifetime,
		maxLifetime:     cfg.MaxLifetime,
		store:           store,
	}
}

// PseudonymizeEmail computes the tenant-scoped email pseudonym:
// HMAC-SHA256 over the lowercased email, keyed by secret":"tenant, hex,
// truncated to 16 bytes (32 chars). The same email under two tenants
// yields uncorrelatable pseudonyms.
func (a *TokenAuthority) PseudonymizeEmail(email, tenantID string) string {
	key := append(append([]byte{}, a.secret...), []byte(":"+tenantID)...)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(strings.ToLower(email)))
	return hex.EncodeToString(mac.Sum(nil))[:32]
}

// IssueToken creates a signed token. The requested lifetime is capped at
// the configured maximum; zero means the default lifetime.
func (a *TokenAuthority) IssueToken(
	userID, tenantID string,
	role core.UserRole,
	email string,
	lifetime time.Duration,
) (string, core.TokenClaims, error) {
	if lifetime <= 0 {
		lifetime = a.defaultLifetime
	}
	if lifetime > a.maxLifetime {
		lifetime = a.maxLifetime
	}

	now := time.Now().Unix()
	claims := core.TokenClaims{
		Subject:   userID,
		TenantID:  tenantID,
		Role:      role,
		EmailHash: a.PseudonymizeEmail(email, tenantID),
		ExpiresAt: now + int64(lifetime.Seconds()),
		NotBefore: now,
		IssuedAt:  now,
		KeyID:     a.keyID,
		TokenID:   uuid.NewString(),
	}

	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", core.TokenClaims{}, fmt.Errorf("serialize claims: %w", err)
	}

	token := base64.RawURLEncoding.EncodeToString(claimsJSON) +
		"." +
		base64.RawURLEncoding.EncodeToString(a.sign(claimsJSON))

	slog.Info("token issued",
		"user_id", userID, "tenant_id", tenantID, "role", role,
		"jti", claims.TokenID, "exp", claims.ExpiresAt)
	return token, claims, nil
}

// DecodeToken verifies signature and validity window and returns the
// claims. It does not consult the revocation set; use Verify for that.
func (a *TokenAuthority) DecodeToken(token string) (core.TokenClaims, error) {
	dot := strings.LastIndexByte(token, '.')
	if dot <= 0 || dot == len(token)-1 {
		return core.TokenClaims{}, ErrMalformed
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(token[:dot])
	if err != nil {
		return core.TokenClaims{}, ErrMalformed
	}
	sig, err := base64.RawURLEncoding.DecodeString(token[dot+1:])
	if err != nil {
		return core.TokenClaims{}, ErrMalformed
	}

	if !hmac.Equal(sig, a.sign(claimsJSON)) {
		return core.TokenClaims{}, ErrInvalidSignature
	}

	var claims core.TokenClaims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return core.TokenClaims{}, ErrMalformed
	}
	if claims.TokenID == "" || claims.Subject == "" || claims.TenantID == "" {
		return core.TokenClaims{}, ErrMalformed
	}

	now := time.Now().Unix()
	if now >= claims.ExpiresAt {
		return core.TokenClaims{}, ErrExpired
	}
	if now < claims.NotBefore {
		return core.TokenClaims{}, ErrNotYetValid
	}
	return claims, nil
}

// Revoke marks the token's jti revoked until its natural expiry. Idempotent.
func (a *TokenAuthority) Revoke(ctx context.Context, claims core.TokenClaims) error {
	ttl := time.Until(time.Unix(claims.ExpiresAt, 0))
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := a.store.SetEx(ctx, revocationKey(claims.TokenID), []byte("1"), ttl); err != nil {
		return fmt.Errorf("write revocation entry: %w", err)
	}
	slog.Info("token revoked", "user_id", claims.Subject, "jti", claims.TokenID)
	return nil
}

// Verify decodes the token and checks the revocation set.
func (a *TokenAuthority) Verify(ctx context.Context, token string) (core.TokenClaims, error) {
	claims, err := a.DecodeToken(token)
	if err != nil {
		return core.TokenClaims{}, err
	}
	if a.store != nil {
		revoked, err := a.store.Exists(ctx, revocationKey(claims.TokenID))
		if err != nil {
			return core.TokenClaims{}, fmt.Errorf("revocation check: %w", err)
		}
		if revoked {
			return core.TokenClaims{}, ErrRevoked
		}
	}
	return claims, nil
}

func (a *TokenAuthority) sign(data []byte) []byte {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write(data)
	return mac.Sum(nil)
}

func revocationKey(tokenID string) string {
	return "revoked:" + tokenID
}
