/*
Package codec implements the Credential Codec of spec.md §4.1: decoding
both wire formats (UCAN JWT, CACAO-SIWE CBOR) into a common shape while
preserving the exact received bytes as the event hash preimage. Codec
never re-serializes to compute a hash — canonicality comes from reusing
the bytes the client sent, never from round-tripping through a marshaler.
*/
package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
)

// UCANClaims is the JWT payload shape of spec.md §4.1. Caveats and facts
// are kept as raw JSON; facts are decoded only by pkg/core, for a
// capabilities/read request, and caveat contents are not interpreted.
type UCANClaims struct {
	Iss string                                   `json:"iss"`
	Aud string                                   `json:"aud"`
	Nbf *float64                                 `json:"nbf,omitempty"`
	Exp *float64                                 `json:"exp,omitempty"`
	Nnc string                                   `json:"nnc,omitempty"`
	Prf []string                                 `json:"prf,omitempty"`
	Att map[string]map[string][]json.RawMessage  `json:"att"`
	Fct []json.RawMessage                        `json:"fct,omitempty"`
}

// Valid satisfies jwt.Claims. Time-bound enforcement is the Verifier's
// job (spec.md §4.3), not the codec's — a malformed-but-well-formed-JSON
// UCAN must still decode so the caller can report a specific error kind.
func (UCANClaims) Valid() error { return nil }

// UCANEnvelope is a decoded UCAN together with the pieces the Verifier
// needs to check its signature.
type UCANEnvelope struct {
	Header       map[string]interface{}
	Claims       UCANClaims
	SigningInput []byte // "header.payload", the bytes the signature covers
	Signature    []byte
	Raw          string // the original three-segment JWT string
}

var ucanParser = jwt.NewParser(jwt.WithValidMethods([]string{"EdDSA"}))

// DecodeUCAN parses a three-segment UCAN JWT without verifying its
// signature (that happens in pkg/verifier, which needs to first resolve
// the signing key from Claims.Iss).
func DecodeUCAN(raw string) (*UCANEnvelope, error) {
	segments := strings.Split(raw, ".")
	if len(segments) != 3 {
		return nil, tcerr.New(tcerr.MalformedCredential, "UCAN must have 3 dot-separated segments, got %d", len(segments))
	}

	var claims UCANClaims
	token, _, err := ucanParser.ParseUnverified(raw, &claims)
	if err != nil {
		return nil, tcerr.Wrap(tcerr.MalformedCredential, err, "parse UCAN JWT")
	}
	if claims.Att == nil {
		return nil, tcerr.New(tcerr.MalformedCredential, "UCAN missing att claim")
	}

	sig, err := base64.RawURLEncoding.DecodeString(segments[2])
	if err != nil {
		return nil, tcerr.Wrap(tcerr.MalformedCredential, err, "decode UCAN signature segment")
	}

	return &UCANEnvelope{
		Header:       token.Header,
		Claims:       claims,
		SigningInput: []byte(segments[0] + "." + segments[1]),
		Signature:    sig,
		Raw:          raw,
	}, nil
}

// EncodeUCAN signs claims with the given Ed25519 private key (exposed for
// building test fixtures and for SDK-side credential minting; the server
// itself only decodes).
func EncodeUCAN(claims UCANClaims, signer jwt.SigningMethod, key interface{}) (string, error) {
	token := jwt.NewWithClaims(signer, claims)
	return token.SignedString(key)
}
