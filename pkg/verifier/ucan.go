package verifier

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/codec"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// Clock allows tests to fix "now"; production code uses RealClock.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// VerifiedUCAN is a UCAN whose signature is authentic and whose time
// bound has been range-checked (not necessarily still valid — callers
// that want a hard exp/nbf cutoff call CheckTime explicitly, since the
// KV executor tolerates a short invocation TTL while delegations don't).
type VerifiedUCAN struct {
	Envelope  *codec.UCANEnvelope
	Issuer    tctypes.DID
	Audience  tctypes.DID
	TimeBound tctypes.TimeBound
	IssuedAt  time.Time
}

// VerifyUCAN checks the JWS signature of env against the key resolved
// from its iss DID URL. did:pkh issuers are rejected here — PKH keys can
// sign only CACAOs (spec.md §4.3).
func VerifyUCAN(env *codec.UCANEnvelope) (*VerifiedUCAN, error) {
	if env.Claims.Iss == "" {
		return nil, tcerr.New(tcerr.MalformedCredential, "UCAN missing iss")
	}
	issuer := tctypes.DID(env.Claims.Iss)
	if issuer.IsPKH() {
		return nil, tcerr.New(tcerr.UnsupportedSignatureType, "did:pkh %s cannot sign a UCAN, only a CACAO", issuer)
	}

	pub, err := ResolveDIDKey(issuer)
	if err != nil {
		return nil, err
	}

	if err := jwt.SigningMethodEdDSA.Verify(string(env.SigningInput), env.Signature, pub); err != nil {
		return nil, tcerr.Wrap(tcerr.InvalidSignature, err, "verify UCAN EdDSA signature")
	}

	tb := tctypes.TimeBound{}
	if env.Claims.Nbf != nil {
		t := secondsToTime(*env.Claims.Nbf)
		tb.NotBefore = &t
	}
	if env.Claims.Exp != nil {
		t := secondsToTime(*env.Claims.Exp)
		tb.Expiry = &t
	}

	var iat time.Time
	if env.Claims.Nbf != nil {
		iat = *tb.NotBefore
	}

	return &VerifiedUCAN{
		Envelope:  env,
		Issuer:    issuer,
		Audience:  tctypes.DID(env.Claims.Aud),
		TimeBound: tb,
		IssuedAt:  iat,
	}, nil
}

func secondsToTime(secs float64) time.Time {
	whole := int64(secs)
	frac := secs - float64(whole)
	return time.Unix(whole, int64(frac*1e9)).UTC()
}

// CheckTime verifies exp > now and nbf <= now (or either absent), the
// bound spec.md §4.3 requires in addition to signature validity.
func CheckTime(tb tctypes.TimeBound, now time.Time) error {
	if tb.Expiry != nil && !now.Before(*tb.Expiry) {
		return tcerr.New(tcerr.InvalidTime, "expired at %s", tb.Expiry)
	}
	if tb.NotBefore != nil && now.Before(*tb.NotBefore) {
		return tcerr.New(tcerr.InvalidTime, "not yet valid until %s", tb.NotBefore)
	}
	return nil
}
