package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storyblok-sync/pkg/config"
)

var testCfg = config.JWTConfig{Secret: "secret", Issuer: "storyblok-sync", ExpirationMinutes: 30}

func TestMintThenParseRoundTripsClaims(t *testing.T) {
	now := time.Now().UTC()
	token, err := MintAccessToken(testCfg, now, AccessTokenPayload{Subject: " user_01 ", Role: "admin"})
	require.NoError(t, err)

	claims, err := ParseAccessToken(testCfg, token)
	require.NoError(t, err)
	assert.Equal(t, "user_01", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, testCfg.Issuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestMintKeepsExplicitJTI(t *testing.T) {
	token, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{Subject: "u", Role: "editor", JTI: "jti-7"})
	require.NoError(t, err)
	claims, err := ParseAccessToken(testCfg, token)
	require.NoError(t, err)
	assert.Equal(t, "jti-7", claims.ID)
}

func TestParseRejects(t *testing.T) {
	valid, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{Subject: "user_01", Role: "admin"})
	require.NoError(t, err)
	expired, err := MintAccessToken(testCfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{Subject: "user_01", Role: "admin"})
	require.NoError(t, err)
	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user_01",
			Issuer:    testCfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	otherIssuer := testCfg
	otherIssuer.Issuer = "someone-else"
	otherSecret := testCfg
	otherSecret.Secret = "rotated"

	cases := []struct {
		name  string
		cfg   config.JWTConfig
		token string
		is    error
	}{
		{"expired", testCfg, expired, jwt.ErrTokenExpired},
		{"wrong issuer", otherIssuer, valid, jwt.ErrTokenInvalidIssuer},
		{"wrong secret", otherSecret, valid, jwt.ErrTokenSignatureInvalid},
		{"alg none", testCfg, noneAlg, jwt.ErrTokenSignatureInvalid},
		{"garbage", testCfg, "not-a-jwt", jwt.ErrTokenMalformed},
		{"no secret", config.JWTConfig{}, valid, ErrMissingSecret},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAccessToken(tc.cfg, tc.token)
			assert.ErrorIs(t, err, tc.is)
		})
	}
}

func TestMintReportsEveryProblem(t *testing.T) {
	_, err := MintAccessToken(config.JWTConfig{}, time.Now(), AccessTokenPayload{})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 5)
	assert.True(t, errors.Is(err, ErrMissingSecret))
	assert.True(t, errors.Is(err, ErrNoSubject))

	_, err = MintAccessToken(testCfg, time.Now(), AccessTokenPayload{Subject: "user_01"})
	assert.ErrorContains(t, err, "role")
}
