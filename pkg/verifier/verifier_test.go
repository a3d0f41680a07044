package verifier

import (
	"crypto/ed25519"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/codec"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

func TestDIDKeyRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	did, err := EncodeDIDKey(pub)
	require.NoError(t, err)
	assert.Contains(t, string(did), "did:key:z")

	resolved, err := ResolveDIDKey(did)
	require.NoError(t, err)
	assert.Equal(t, pub, resolved)
}

func TestResolveDIDKeyRejectsNonKeyDID(t *testing.T) {
	_, err := ResolveDIDKey("did:pkh:eip155:1:0xabc")
	require.Error(t, err)
	assert.Equal(t, tcerr.UnsupportedSignatureType, tcerr.KindOf(err))
}

func TestVerifyUCANSignatureAndTimeBound(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	issuer, err := EncodeDIDKey(pub)
	require.NoError(t, err)

	nbf := float64(time.Now().Add(-time.Hour).Unix())
	exp := float64(time.Now().Add(time.Hour).Unix())
	claims := codec.UCANClaims{
		Iss: string(issuer),
		Aud: "did:key:zSomeAudience",
		Nbf: &nbf,
		Exp: &exp,
		Att: map[string]map[string][]json.RawMessage{},
	}
	token, err := codec.EncodeUCAN(claims, jwt.SigningMethodEdDSA, priv)
	require.NoError(t, err)

	env, err := codec.DecodeUCAN(token)
	require.NoError(t, err)

	verified, err := VerifyUCAN(env)
	require.NoError(t, err)
	assert.Equal(t, issuer, verified.Issuer)
	assert.NoError(t, CheckTime(verified.TimeBound, time.Now()))
}

func TestVerifyUCANRejectsPKHIssuer(t *testing.T) {
	env := &codec.UCANEnvelope{
		Claims: codec.UCANClaims{Iss: "did:pkh:eip155:1:0xabc"},
	}
	_, err := VerifyUCAN(env)
	require.Error(t, err)
	assert.Equal(t, tcerr.UnsupportedSignatureType, tcerr.KindOf(err))
}

func TestVerifyUCANRejectsBadSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	issuer, err := EncodeDIDKey(pub)
	require.NoError(t, err)

	token, err := codec.EncodeUCAN(codec.UCANClaims{
		Iss: string(issuer),
		Att: map[string]map[string][]json.RawMessage{},
	}, jwt.SigningMethodEdDSA, priv)
	require.NoError(t, err)

	// Flip a byte in the signature segment to invalidate it.
	tampered := token[:len(token)-1] + "A"
	env, err := codec.DecodeUCAN(tampered)
	require.NoError(t, err)

	_, err = VerifyUCAN(env)
	require.Error(t, err)
	assert.Equal(t, tcerr.InvalidSignature, tcerr.KindOf(err))
}

func TestCheckTimeBoundary(t *testing.T) {
	now := time.Now()
	exp := now
	tb := tctypes.TimeBound{Expiry: &exp}
	// exp == now is expired: the invariant is exp must be strictly after now.
	assert.Error(t, CheckTime(tb, now))

	future := now.Add(time.Minute)
	tb2 := tctypes.TimeBound{Expiry: &future}
	assert.NoError(t, CheckTime(tb2, now))
}

func TestBuildSIWEMessageOmitsEmptyOptionalLines(t *testing.T) {
	p := codec.SIWEPayload{
		Domain:   "example.com",
		Iss:      "did:pkh:eip155:1:0xabc",
		Aud:      "https://example.com/login",
		Version:  "1",
		Nonce:    "abcdef",
		IssuedAt: "2024-01-01T00:00:00Z",
	}
	msg := BuildSIWEMessage(p, "0xabc")
	assert.NotContains(t, msg, "Expiration Time")
	assert.NotContains(t, msg, "Resources:")
	assert.Contains(t, msg, "Chain ID: 1")
	assert.Contains(t, msg, "example.com wants you to sign in with your Ethereum account:\n0xabc")
}

func TestExtractReCapEmptyWhenAbsent(t *testing.T) {
	caps, err := ExtractReCap([]string{"https://example.com/unrelated"})
	require.NoError(t, err)
	assert.Nil(t, caps)
}
