package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datamind/dispatch/internal/core"
	"github.com/datamind/dispatch/internal/infra"
)

func testAuthority(t *testing.T) *TokenAuthority {
	t.Helper()
	mr := miniredis.RunT(t)
	store := infra.NewGoRedisAdapterFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	return NewTokenAuthority(AuthorityConfig{
		SigningSecret: "unit-test-secret",
		KeyID:         "demo-tenant-key",
	}, store)
}

// ============================================================================
// EMAIL PSEUDONYMIZATION
// ============================================================================

func TestPseudonymizeEmail(t *testing.T) {
	a := testAuthority(t)

	p1 := a.PseudonymizeEmail("Alice@Example.com", "tenant-a")
	p2 := a.PseudonymizeEmail("alice@example.com", "tenant-a")
	assert.Equal(t, p1, p2, "case-insensitive on the email")
	assert.Len(t, p1, 32)
	assert.Regexp(t, `^[0-9a-f]{32}$`, p1)

	p3 := a.PseudonymizeEmail("alice@example.com", "tenant-b")
	assert.NotEqual(t, p1, p3, "same email under two tenants must not correlate")
}

// ============================================================================
// ISSUE / DECODE
// ============================================================================

func TestIssueAndDecodeToken(t *testing.T) {
	a := testAuthority(t)

	token, issued, err := a.IssueToken("user-1", "tenant-a", core.RoleAnalyst, "alice@example.com", 0)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := a.DecodeToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "tenant-a", claims.TenantID)
	assert.Equal(t, core.RoleAnalyst, claims.Role)
	assert.Equal(t, issued.TokenID, claims.TokenID)
	assert.Equal(t, "demo-tenant-key", claims.KeyID)
	assert.Equal(t, int64(3600), claims.ExpiresAt-claims.IssuedAt, "default lifetime is one hour")

	// The raw email never appears in the wire format.
	assert.NotContains(t, strings.ToLower(token), "alice")
	assert.Equal(t, a.PseudonymizeEmail("alice@example.com", "tenant-a"), claims.EmailHash)
}

func TestIssueTokenCapsLifetime(t *testing.T) {
	a := testAuthority(t)

	_, claims, err := a.IssueToken("user-1", "tenant-a", core.RoleAdmin, "a@b.co", 100*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64((24*time.Hour).Seconds()), claims.ExpiresAt-claims.IssuedAt)
}

func TestDecodeTokenRejectsTampering(t *testing.T) {
	a := testAuthority(t)
	token, _, err := a.IssueToken("user-1", "tenant-a", core.RoleViewer, "v@x.io", 0)
	require.NoError(t, err)

	// Flip the role inside the claims segment and keep the old signature.
	dot := strings.LastIndexByte(token, '.')
	payload, err := base64.RawURLEncoding.DecodeString(token[:dot])
	require.NoError(t, err)
	forged := strings.Replace(string(payload), `"viewer"`, `"admin"`, 1)
	forgedToken := base64.RawURLEncoding.EncodeToString([]byte(forged)) + token[dot:]

	_, err = a.DecodeToken(forgedToken)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestDecodeTokenRejectsMalformed(t *testing.T) {
	a := testAuthority(t)
	for _, token := range []string{"", "justonesegment", ".", "a.", ".b", "!!!.###"} {
		_, err := a.DecodeToken(token)
		assert.ErrorIs(t, err, ErrMalformed, "token: %q", token)
	}
}

func TestDecodeTokenRejectsExpired(t *testing.T) {
	a := testAuthority(t)

	now := time.Now().Unix()
	claims := core.TokenClaims{
		Subject: "user-1", TenantID: "tenant-a", Role: core.RoleAnalyst,
		ExpiresAt: now - 60, NotBefore: now - 3660, IssuedAt: now - 3660,
		TokenID: "jti-1",
	}
	raw, err := json.Marshal(claims)
	require.NoError(t, err)
	token := base64.RawURLEncoding.EncodeToString(raw) + "." +
		base64.RawURLEncoding.EncodeToString(a.sign(raw))

	_, err = a.DecodeToken(token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestDecodeTokenRejectsNotYetValid(t *testing.T) {
	a := testAuthority(t)

	now := time.Now().Unix()
	claims := core.TokenClaims{
		Subject: "user-1", TenantID: "tenant-a", Role: core.RoleAnalyst,
		ExpiresAt: now + 7200, NotBefore: now + 3600, IssuedAt: now,
		TokenID: "jti-2",
	}
	raw, err := json.Marshal(claims)
	require.NoError(t, err)
	token := base64.RawURLEncoding.EncodeToString(raw) + "." +
		base64.RawURLEncoding.EncodeToString(a.sign(raw))

	_, err = a.DecodeToken(token)
	assert.ErrorIs(t, err, ErrNotYetValid)
}

func TestDecodeTokenRejectsWrongSecret(t *testing.T) {
	a := testAuthority(t)
	other := NewTokenAuthority(AuthorityConfig{SigningSecret: "a-different-secret"}, nil)

	token, _, err := other.IssueToken("user-1", "tenant-a", core.RoleAnalyst, "a@b.co", 0)
	require.NoError(t, err)

	_, err = a.DecodeToken(token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

// ============================================================================
// REVOCATION
// ============================================================================

func TestRevokeThenVerify(t *testing.T) {
	a := testAuthority(t)
	ctx := context.Background()

	token, claims, err := a.IssueToken("user-1", "tenant-a", core.RoleAnalyst, "a@b.co", 0)
	require.NoError(t, err)

	_, err = a.Verify(ctx, token)
	require.NoError(t, err, "fresh token verifies")

	require.NoError(t, a.Revoke(ctx, claims))

	_, err = a.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrRevoked)

	// Decode alone still succeeds; only Verify consults the set.
	_, err = a.DecodeToken(token)
	assert.NoError(t, err)

	// Revocation is idempotent.
	assert.NoError(t, a.Revoke(ctx, claims))
}
