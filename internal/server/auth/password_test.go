package auth

import (
	"errors"
	"testing"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestVault_HashVerify(t *testing.T) {
	v, err := NewVault(bcrypt.MinCost)
	require.NoError(t, err)

	for _, p := range []string{"Secret123!", "", "пароль", "a much longer passphrase with spaces"} {
		h, err := v.Hash(p)
		require.NoError(t, err)
		assert.NotEqual(t, p, h)

		ok, err := v.Verify(p, h)
		require.NoError(t, err)
		assert.True(t, ok, "password %q must verify", p)

		ok, err = v.Verify(p+"x", h)
		require.NoError(t, err)
		assert.False(t, ok, "altered password %q must not verify", p)
	}
}

func TestVault_HashIsSalted(t *testing.T) {
	v, err := NewVault(bcrypt.MinCost)
	require.NoError(t, err)

	a, err := v.Hash("Secret123!")
	require.NoError(t, err)
	b, err := v.Hash("Secret123!")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVault_UsesConfiguredCost(t *testing.T) {
	v, err := NewVault(bcrypt.MinCost + 1)
	require.NoError(t, err)

	h, err := v.Hash("pw")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(h))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost)
}

func TestVault_MalformedHash(t *testing.T) {
	v, err := NewVault(bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := v.Verify("pw", "plaintext-not-a-hash")
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrMalformedHash))
}

func TestVault_TooLongPassword(t *testing.T) {
	v, err := NewVault(bcrypt.MinCost)
	require.NoError(t, err)

	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a'
	}

	_, err = v.Hash(string(long))
	require.ErrorIs(t, err, common.ErrHashing)
}

func TestNewVault_BadCost(t *testing.T) {
	_, err := NewVault(bcrypt.MaxCost + 1)
	require.Error(t, err)

	_, err = NewVault(0)
	require.Error(t, err)
}

func TestVault_DummyVerify(t *testing.T) {
	v, err := NewVault(bcrypt.MinCost)
	require.NoError(t, err)

	assert.NotPanics(t, func() { v.DummyVerify("anything") })
}
