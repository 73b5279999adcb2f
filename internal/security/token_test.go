package security

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer() *TokenIssuer {
	return NewTokenIssuer("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
}

func TestIssueAndVerify(t *testing.T) {
	issuer := newTestIssuer()

	access, err := issuer.IssueAccessToken("user-1")
	require.NoError(t, err)
	refresh, err := issuer.IssueRefreshToken("user-1")
	require.NoError(t, err)

	claims, err := issuer.Verify(access, TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, TokenKindAccess, claims.Kind)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 5*time.Second)

	claims, err = issuer.Verify(refresh, TokenKindRefresh)
	require.NoError(t, err)
	assert.Equal(t, TokenKindRefresh, claims.Kind)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestIssue_TokensAreUnique(t *testing.T) {
	issuer := newTestIssuer()

	a, err := issuer.IssueRefreshToken("user-1")
	require.NoError(t, err)
	b, err := issuer.IssueRefreshToken("user-1")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVerify_CrossKindRejected(t *testing.T) {
	issuer := newTestIssuer()

	access, err := issuer.IssueAccessToken("user-1")
	require.NoError(t, err)
	refresh, err := issuer.IssueRefreshToken("user-1")
	require.NoError(t, err)

	_, err = issuer.Verify(access, TokenKindRefresh)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = issuer.Verify(refresh, TokenKindAccess)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_KindClaimCheckedEvenWithSharedKey(t *testing.T) {
	issuer := NewTokenIssuer("shared", "shared", time.Minute, time.Hour)

	refresh, err := issuer.IssueRefreshToken("user-1")
	require.NoError(t, err)

	_, err = issuer.Verify(refresh, TokenKindAccess)
	assert.ErrorIs(t, err, ErrWrongTokenKind)
}

func TestVerify_Expired(t *testing.T) {
	issuer := newTestIssuer()
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	access, err := issuer.IssueAccessToken("user-1")
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.Verify(access, TokenKindAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_WrongSecret(t *testing.T) {
	access, err := newTestIssuer().IssueAccessToken("user-1")
	require.NoError(t, err)

	other := NewTokenIssuer("other-access", "other-refresh", time.Minute, time.Hour)
	_, err = other.Verify(access, TokenKindAccess)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_Malformed(t *testing.T) {
	issuer := newTestIssuer()

	for _, tok := range []string{"", "not.a.jwt", "abc", strings.Repeat("x", 40)} {
		_, err := issuer.Verify(tok, TokenKindAccess)
		assert.ErrorIs(t, err, ErrMalformedToken, tok)
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{
		Kind: TokenKindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestIssuer().Verify(unsigned, TokenKindAccess)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_MissingSubject(t *testing.T) {
	claims := Claims{
		Kind: TokenKindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("access-secret"))
	require.NoError(t, err)

	_, err = newTestIssuer().Verify(signed, TokenKindAccess)
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestHashRefreshToken(t *testing.T) {
	assert.Equal(t, HashRefreshToken("abc"), HashRefreshToken("abc"))
	assert.NotEqual(t, HashRefreshToken("abc"), HashRefreshToken("abd"))
	assert.Len(t, HashRefreshToken("abc"), 32)
}
