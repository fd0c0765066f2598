package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	ti, err := NewTokenIssuer(strings.Repeat("k", 32), time.Hour)
	require.NoError(t, err)

	token, err := ti.Issue("operator")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."), "JWT состоит из трёх частей")

	op, err := ti.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", op)
}

func TestTokenIssuer_RejectsForeignAndExpired(t *testing.T) {
	a, err := NewTokenIssuer("", time.Hour)
	require.NoError(t, err)
	b, err := NewTokenIssuer("", time.Hour)
	require.NoError(t, err)

	token, err := a.Issue("operator")
	require.NoError(t, err)
	_, err = b.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "чужой секрет")

	_, err = a.Validate("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewTokenIssuer(strings.Repeat("k", 32), time.Nanosecond)
	require.NoError(t, err)
	token, err = expired.Issue("operator")
	require.NoError(t, err)
	time.Sleep(time.Second + 10*time.Millisecond)
	_, err = expired.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "просроченный токен")
}

func TestNewTokenIssuer_ShortSecret(t *testing.T) {
	_, err := NewTokenIssuer("short", time.Hour)
	assert.Error(t, err)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("ChangeMe123!")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "ChangeMe123!"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("", "ChangeMe123!"), "пустой хэш ничего не пропускает")

	_, err = HashPassword("short")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)

	assert.Len(t, a, 44)
	assert.NotEqual(t, a, b, "ключи должны быть случайными")

	issuer, err := NewTokenIssuer(a, time.Minute)
	require.NoError(t, err, "сгенерированный ключ проходит проверку длины")
	token, err := issuer.Issue("ops")
	require.NoError(t, err)
	op, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", op)
}
