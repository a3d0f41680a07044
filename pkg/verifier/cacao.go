package verifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/sha3"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/codec"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// VerifiedCACAO is a CACAO whose EIP-191 signature has been confirmed to
// recover to the address embedded in its iss DID.
type VerifiedCACAO struct {
	Envelope  *codec.CACAOEnvelope
	Issuer    tctypes.DID
	TimeBound tctypes.TimeBound
}

// VerifyCACAO reconstructs the SIWE message, hashes it per EIP-191,
// recovers the signer address from the 65-byte signature, and requires
// address equality with the DID's account suffix — spec.md §4.3.
func VerifyCACAO(env *codec.CACAOEnvelope) (*VerifiedCACAO, error) {
	p := env.CACAO.P
	if env.CACAO.H.T != "eip4361" {
		return nil, tcerr.New(tcerr.UnsupportedSignatureType, "unsupported CACAO header type %q", env.CACAO.H.T)
	}
	if env.CACAO.S.T != "eip191" {
		return nil, tcerr.New(tcerr.UnsupportedSignatureType, "unsupported CACAO signature type %q", env.CACAO.S.T)
	}

	issuer := tctypes.DID(p.Iss)
	_, _, account, ok := issuer.PKHAccount()
	if !ok {
		return nil, tcerr.New(tcerr.MalformedCredential, "CACAO iss %q is not a did:pkh DID", p.Iss)
	}

	message := BuildSIWEMessage(p, account)
	digest := eip191Hash([]byte(message))

	recovered, err := recoverAddress(env.CACAO.S.S, digest)
	if err != nil {
		return nil, tcerr.Wrap(tcerr.InvalidSignature, err, "recover CACAO signer")
	}
	if !strings.EqualFold(recovered, account) {
		return nil, tcerr.New(tcerr.InvalidSignature, "recovered address %s does not match DID account %s", recovered, account)
	}

	tb := tctypes.TimeBound{}
	if p.NotBefore != "" {
		t, err := time.Parse(time.RFC3339, p.NotBefore)
		if err != nil {
			return nil, tcerr.Wrap(tcerr.MalformedCredential, err, "parse CACAO nbf")
		}
		tb.NotBefore = &t
	}
	if p.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, p.ExpiresAt)
		if err != nil {
			return nil, tcerr.Wrap(tcerr.MalformedCredential, err, "parse CACAO exp")
		}
		tb.Expiry = &t
	}

	return &VerifiedCACAO{Envelope: env, Issuer: issuer, TimeBound: tb}, nil
}

// BuildSIWEMessage renders the EIP-4361 message text the signature
// covers. Optional lines are omitted when the corresponding field is
// empty, matching the SIWE ABNF grammar.
func BuildSIWEMessage(p codec.SIWEPayload, address string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s wants you to sign in with your Ethereum account:\n%s\n\n", p.Domain, address)
	if p.Statement != "" {
		fmt.Fprintf(&b, "%s\n\n", p.Statement)
	}
	fmt.Fprintf(&b, "URI: %s\n", p.Aud)
	fmt.Fprintf(&b, "Version: %s\n", p.Version)
	if _, chainRef, _, ok := tctypes.DID(p.Iss).PKHAccount(); ok {
		fmt.Fprintf(&b, "Chain ID: %s\n", chainRef)
	}
	fmt.Fprintf(&b, "Nonce: %s\n", p.Nonce)
	fmt.Fprintf(&b, "Issued At: %s", p.IssuedAt)
	if p.ExpiresAt != "" {
		fmt.Fprintf(&b, "\nExpiration Time: %s", p.ExpiresAt)
	}
	if p.NotBefore != "" {
		fmt.Fprintf(&b, "\nNot Before: %s", p.NotBefore)
	}
	if p.RequestID != "" {
		fmt.Fprintf(&b, "\nRequest ID: %s", p.RequestID)
	}
	if len(p.Resources) > 0 {
		b.WriteString("\nResources:")
		for _, r := range p.Resources {
			fmt.Fprintf(&b, "\n- %s", r)
		}
	}
	return b.String()
}

// eip191Hash computes keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
func eip191Hash(message []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(prefix))
	h.Write(message)
	return h.Sum(nil)
}

// recoverAddress recovers the 0x-prefixed Ethereum address that produced
// an Ethereum-style (r||s||v, v in {27,28}) 65-byte signature over digest.
func recoverAddress(sig, digest []byte) (string, error) {
	if len(sig) != 65 {
		return "", fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 3 {
		return "", fmt.Errorf("invalid recovery id %d", sig[64])
	}

	compact := make([]byte, 65)
	compact[0] = 27 + v
	copy(compact[1:], sig[:64])

	pub, _, err := secp256k1.RecoverCompact(compact, digest)
	if err != nil {
		return "", fmt.Errorf("ecrecover: %w", err)
	}

	uncompressed := pub.SerializeUncompressed() // 0x04 || X(32) || Y(32)
	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:])
	addrHash := h.Sum(nil)
	addr := addrHash[len(addrHash)-20:]
	return "0x" + hexEncode(addr), nil
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xf]
	}
	return string(out)
}
