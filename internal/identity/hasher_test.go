package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHasher() *PasswordHasher {
	// Small parameters to keep the tests fast
	return NewPasswordHasher(1024, 1, 1, 16, 32)
}

// TestPurpose: Validates the Argon2id hash and verify round trip.
// Scope: Unit Test
// Expected: The correct password verifies; any other password does not.
// Test Case ID: ID-HASH-01
func TestPasswordHasher_RoundTrip(t *testing.T) {
	hasher := testHasher()

	encoded, err := hasher.Hash("correct-horse-battery")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	ok, err := hasher.Verify("correct-horse-battery", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("wrong-password", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestPurpose: Validates that each hash carries a fresh salt.
// Scope: Unit Test
// Expected: Hashing the same password twice yields distinct encodings that
// both verify.
// Test Case ID: ID-HASH-02
func TestPasswordHasher_UniqueSalts(t *testing.T) {
	hasher := testHasher()

	first, err := hasher.Hash("correct-horse-battery")
	require.NoError(t, err)
	second, err := hasher.Hash("correct-horse-battery")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	ok, err := hasher.Verify("correct-horse-battery", second)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestPurpose: Validates rejection of malformed encoded hashes.
// Scope: Unit Test
// Expected: Verify returns an error rather than a silent false for garbage input.
// Test Case ID: ID-HASH-03
func TestPasswordHasher_MalformedEncoding(t *testing.T) {
	hasher := testHasher()

	for _, encoded := range []string{
		"",
		"not-a-hash",
		"$bcrypt$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$%%%$aGFzaA",
	} {
		_, err := hasher.Verify("anything", encoded)
		assert.Error(t, err, "encoded=%q", encoded)
	}
}

// TestPurpose: Validates that verification honors the parameters embedded in
// the hash rather than the hasher's own.
// Scope: Unit Test
// Expected: A hash produced with one parameter set verifies through a hasher
// configured with another.
// Test Case ID: ID-HASH-04
func TestPasswordHasher_ParametersFromEncoding(t *testing.T) {
	encoded, err := NewPasswordHasher(2048, 2, 1, 16, 32).Hash("correct-horse-battery")
	require.NoError(t, err)

	ok, err := testHasher().Verify("correct-horse-battery", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}
