package codec

import (
	"encoding/base64"

	"github.com/fxamacker/cbor/v2"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
)

// CACAOHeader names the signing convention wrapped by the CBOR envelope.
type CACAOHeader struct {
	T string `cbor:"t"`
}

// CACAOSignature carries the 65-byte EIP-191/secp256k1 signature.
type CACAOSignature struct {
	T string `cbor:"t"`
	S []byte `cbor:"s"`
}

// SIWEPayload is the SIWE message, reduced to the fields TinyCloud cares
// about. Times are kept as the original ISO-8601 strings so the Verifier
// can reconstruct the exact SIWE message text for EIP-191 hashing.
type SIWEPayload struct {
	Domain         string   `cbor:"domain"`
	Iss            string   `cbor:"iss"` // did:pkh DID of the signer
	Aud            string   `cbor:"aud,omitempty"`
	Version        string   `cbor:"version"`
	Nonce          string   `cbor:"nonce"`
	IssuedAt       string   `cbor:"iat"`
	ExpiresAt      string   `cbor:"exp,omitempty"`
	NotBefore      string   `cbor:"nbf,omitempty"`
	Statement      string   `cbor:"statement,omitempty"`
	RequestID      string   `cbor:"requestId,omitempty"`
	Resources      []string `cbor:"resources,omitempty"`
}

// CACAO is the dag-cbor envelope of spec.md §4.1:
// {h: {t: "eip4361"}, p: SIWE-payload, s: {t: "eip191", s: <65-byte sig>}}.
type CACAO struct {
	H CACAOHeader    `cbor:"h"`
	P SIWEPayload    `cbor:"p"`
	S CACAOSignature `cbor:"s"`
}

// CACAOEnvelope is a decoded CACAO plus the exact CBOR bytes it was
// decoded from (the event hash preimage).
type CACAOEnvelope struct {
	CACAO CACAO
	Bytes []byte
}

var cborDecMode = func() cbor.DecMode {
	m, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// DecodeCACAO url-safe-base64-decodes raw, then dag-cbor-decodes the
// result into a CACAO envelope. The decoded CBOR bytes (not the base64
// text) are the canonical preimage per spec.md §6.
func DecodeCACAO(raw string) (*CACAOEnvelope, error) {
	cborBytes, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(raw)
	if err != nil {
		// Some clients emit padded URL-safe base64; accept both.
		cborBytes, err = base64.URLEncoding.DecodeString(raw)
		if err != nil {
			return nil, tcerr.Wrap(tcerr.MalformedCredential, err, "base64url-decode CACAO")
		}
	}

	var cacao CACAO
	if err := cborDecMode.Unmarshal(cborBytes, &cacao); err != nil {
		return nil, tcerr.Wrap(tcerr.MalformedCredential, err, "dag-cbor decode CACAO")
	}
	if cacao.P.Iss == "" {
		return nil, tcerr.New(tcerr.MalformedCredential, "CACAO payload missing iss")
	}
	if len(cacao.S.S) != 65 {
		return nil, tcerr.New(tcerr.MalformedCredential, "CACAO signature must be 65 bytes, got %d", len(cacao.S.S))
	}

	return &CACAOEnvelope{CACAO: cacao, Bytes: cborBytes}, nil
}

// EncodeCACAO dag-cbor-encodes and url-safe-base64-encodes a CACAO, for
// building test fixtures / SDK-side credential minting.
func EncodeCACAO(c CACAO) (string, []byte, error) {
	cborBytes, err := cbor.Marshal(c)
	if err != nil {
		return "", nil, tcerr.Wrap(tcerr.EncodingError, err, "cbor-encode CACAO")
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(cborBytes), cborBytes, nil
}
