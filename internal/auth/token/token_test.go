package token

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quickcart/internal/clock"
	"github.com/smallbiznis/quickcart/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newSigner(t *testing.T, clk clock.Clock) *Signer {
	t.Helper()
	signer, err := NewSigner(config.Config{AuthTokenSecret: testSecret}, clk)
	require.NoError(t, err)
	return signer
}

func TestSignAndParse(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	signer := newSigner(t, clk)

	raw, err := signer.Sign(snowflake.ID(11), snowflake.ID(22), "user", clk.Now(), clk.Now().Add(time.Hour))
	require.NoError(t, err)

	claims, err := signer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "user", claims.Guard)

	tokenID, err := claims.TokenID()
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(11), tokenID)

	subject, err := claims.SubjectID()
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(22), subject)
}

func TestParseRejectsExpired(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	signer := newSigner(t, clk)

	raw, err := signer.Sign(1, 2, "admin", clk.Now(), clk.Now().Add(time.Minute))
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = signer.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsForeignSecret(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	other, err := NewSigner(config.Config{AuthTokenSecret: "another-secret-another-secret-xx"}, clk)
	require.NoError(t, err)

	raw, err := other.Sign(1, 2, "user", clk.Now(), clk.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = newSigner(t, clk).Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsGarbage(t *testing.T) {
	signer := newSigner(t, clock.NewFakeClock(time.Now()))
	for _, raw := range []string{"", "   ", "not.a.jwt"} {
		_, err := signer.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestNewSignerRequiresSecret(t *testing.T) {
	_, err := NewSigner(config.Config{}, clock.NewSystemClock())
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = NewSigner(config.Config{AuthTokenSecret: "short", Environment: "production"}, clock.NewSystemClock())
	assert.Error(t, err)
}
