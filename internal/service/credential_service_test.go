package service

import (
	"strings"
	"testing"

	"agent-payment-ledger/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialService_HashAndVerify(t *testing.T) {
	svc := NewCredentialService()

	apiKey := domain.NewAPIKey()
	hash, err := svc.Hash(apiKey)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	// Format check
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v="), "hash should start with $argon2id$v=")

	match, err := svc.Verify(apiKey, hash)
	require.NoError(t, err)
	assert.True(t, match, "correct credential should verify")
}

func TestCredentialService_VerifyWrongCredential(t *testing.T) {
	svc := NewCredentialService()

	hash, err := svc.Hash(domain.NewAPIKey())
	require.NoError(t, err)

	match, err := svc.Verify(domain.NewAPIKey(), hash)
	require.NoError(t, err)
	assert.False(t, match, "wrong credential should not verify")
}

func TestCredentialService_UniqueSalts(t *testing.T) {
	svc := NewCredentialService()

	apiKey := domain.NewAPIKey()
	hash1, err := svc.Hash(apiKey)
	require.NoError(t, err)

	hash2, err := svc.Hash(apiKey)
	require.NoError(t, err)

	assert.NotEqual(t, hash1, hash2, "same credential should produce different hashes (different salts)")
}

func TestCredentialService_VerifyInvalidFormat(t *testing.T) {
	svc := NewCredentialService()

	_, err := svc.Verify("apl_whatever", "not-a-valid-hash")
	assert.Error(t, err)
}

func TestCredentialService_HashContainsParams(t *testing.T) {
	svc := NewCredentialService()

	hash, err := svc.Hash("apl_test")
	require.NoError(t, err)

	assert.Contains(t, hash, "m=65536,t=1,p=4", "hash should contain Argon2id params")
}
