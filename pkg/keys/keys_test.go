package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

func TestDeriveIsDeterministic(t *testing.T) {
	var secret [SecretSize]byte
	for i := range secret {
		secret[i] = byte(i)
	}
	space := tctypes.SpaceID("tinycloud:pkh:eip155:1:0xAAAA:default")

	pub1, priv1, err := Derive(secret, space)
	require.NoError(t, err)
	pub2, priv2, err := Derive(secret, space)
	require.NoError(t, err)

	assert.Equal(t, pub1, pub2)
	assert.Equal(t, priv1, priv2)
}

func TestDeriveDiffersAcrossSpaces(t *testing.T) {
	var secret [SecretSize]byte
	pub1, _, err := Derive(secret, "tinycloud:pkh:eip155:1:0xAAAA:default")
	require.NoError(t, err)
	pub2, _, err := Derive(secret, "tinycloud:pkh:eip155:1:0xBBBB:default")
	require.NoError(t, err)

	assert.NotEqual(t, pub1, pub2)
}

func TestDeriveDIDRoundTripsThroughDIDKeyEncoding(t *testing.T) {
	var secret [SecretSize]byte
	did, err := DeriveDID(secret, "tinycloud:pkh:eip155:1:0xAAAA:default")
	require.NoError(t, err)
	assert.Contains(t, string(did), "did:key:z")
}

func TestParseSecretRejectsWrongLength(t *testing.T) {
	_, err := ParseSecret(make([]byte, 16))
	require.Error(t, err)
}
