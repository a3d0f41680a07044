package core

import (
	"encoding/json"
	"time"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/codec"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/verifier"
)

// verified is a decoded, signature-checked credential lowered into the one
// shape both the delegate and invoke paths build their events from. It
// does not distinguish delegation from invocation — the caller decides
// that from context (which endpoint was hit) and from the single-capability
// revocation shape (see isRevocation in delegate.go).
type verified struct {
	Format       tctypes.CredentialFormat
	Issuer       tctypes.DID
	Audience     tctypes.DID
	TimeBound    tctypes.TimeBound
	IssuedAt     time.Time
	Parents      []string
	Capabilities []tctypes.Capability
	// Facts is the raw UCAN "fct" array (json-encoded), nil for CACAO —
	// SIWE has no facts-equivalent field, so a capabilities/read query
	// invoked via CACAO always gets the "list, no filters" default.
	Facts []byte
	Bytes []byte
}

// decodeAndVerify runs spec.md §4.1 (codec) then §4.3 (verifier) against a
// raw Authorization header value, producing one uniform credential
// regardless of wire format.
func decodeAndVerify(raw string) (*verified, error) {
	decoded, err := codec.Decode(raw)
	if err != nil {
		return nil, err
	}

	if decoded.Format == tctypes.FormatUCAN {
		return lowerUCAN(decoded)
	}
	return lowerCACAO(decoded)
}

func lowerUCAN(decoded *codec.Decoded) (*verified, error) {
	vu, err := verifier.VerifyUCAN(decoded.UCAN)
	if err != nil {
		return nil, err
	}

	var facts []byte
	if len(vu.Envelope.Claims.Fct) > 0 {
		facts, err = json.Marshal(vu.Envelope.Claims.Fct)
		if err != nil {
			return nil, err
		}
	}

	return &verified{
		Format:       tctypes.FormatUCAN,
		Issuer:       vu.Issuer,
		Audience:     vu.Audience,
		TimeBound:    vu.TimeBound,
		IssuedAt:     vu.IssuedAt,
		Parents:      vu.Envelope.Claims.Prf,
		Capabilities: codec.AttToCapabilities(vu.Envelope.Claims.Att),
		Facts:        facts,
		Bytes:        decoded.Bytes,
	}, nil
}

func lowerCACAO(decoded *codec.Decoded) (*verified, error) {
	vc, err := verifier.VerifyCACAO(decoded.CACAO)
	if err != nil {
		return nil, err
	}

	resources := vc.Envelope.CACAO.P.Resources
	caps, err := verifier.ExtractReCap(resources)
	if err != nil {
		return nil, err
	}
	parentHashes, err := verifier.ExtractParents(resources)
	if err != nil {
		return nil, err
	}
	parents := make([]string, len(parentHashes))
	for i, h := range parentHashes {
		parents[i] = h.String()
	}

	var issuedAt time.Time
	if p := vc.Envelope.CACAO.P.IssuedAt; p != "" {
		issuedAt, _ = time.Parse(time.RFC3339, p)
	}

	// The SIWE "aud"/URI field is the session or service DID the CACAO
	// delegates to (tinycloud-core/src/util.rs treats it identically to a
	// UCAN's aud claim when deriving a delegatee).
	return &verified{
		Format:       tctypes.FormatCACAO,
		Issuer:       vc.Issuer,
		Audience:     tctypes.DID(vc.Envelope.CACAO.P.Aud),
		TimeBound:    vc.TimeBound,
		IssuedAt:     issuedAt,
		Parents:      parents,
		Capabilities: caps,
		Bytes:        decoded.Bytes,
	}, nil
}
