package tctypes

import "time"

// TimeBound is a [nbf, exp] interval. A nil pointer in either field means
// "unbounded" (⊥ = -∞ for NotBefore, ⊥ = +∞ for Expiry) per spec.md §3
// invariant 3.
type TimeBound struct {
	NotBefore *time.Time
	Expiry    *time.Time
}

// Contains reports whether child is contained within parent, treating nil
// as the appropriate infinity on each side (spec.md §9 open question).
func (parent TimeBound) Contains(child TimeBound) (ok bool, nbfViolation, expViolation bool) {
	nbfOK := true
	if parent.NotBefore != nil {
		if child.NotBefore == nil || child.NotBefore.Before(*parent.NotBefore) {
			nbfOK = false
		}
	}
	expOK := true
	if parent.Expiry != nil {
		if child.Expiry == nil || child.Expiry.After(*parent.Expiry) {
			expOK = false
		}
	}
	return nbfOK && expOK, !nbfOK, !expOK
}

// CredentialFormat distinguishes the two wire encodings of spec.md §4.1.
type CredentialFormat int

const (
	FormatUCAN CredentialFormat = iota
	FormatCACAO
)

func (f CredentialFormat) String() string {
	if f == FormatUCAN {
		return "ucan"
	}
	return "cacao"
}

// DelegationEvent is a signed statement transferring a subset of
// capabilities from Delegator to Delegate — spec.md §3.
type DelegationEvent struct {
	Format     CredentialFormat
	Delegator  DID
	Delegate   DID
	Parents    []Hash
	Capabilities []Capability
	IssuedAt   time.Time
	TimeBound  TimeBound
	// Bytes is the canonical received byte preimage (UTF-8 JWT or raw
	// CBOR) that hashes to this event's Hash. Never re-serialized.
	Bytes []byte
}

// Hash is the Blake3 digest of the event's canonical byte serialization.
func (d *DelegationEvent) Hash() Hash { return SumBlake3(d.Bytes) }

// InvocationEvent is a signed statement exercising one or more
// capabilities — spec.md §3.
type InvocationEvent struct {
	Format       CredentialFormat
	Invoker      DID
	Parents      []Hash
	Capabilities []Capability
	Facts        []byte // raw JSON, parsed lazily by pkg/core for capabilities/read
	TimeBound    TimeBound
	Bytes        []byte
}

func (i *InvocationEvent) Hash() Hash { return SumBlake3(i.Bytes) }

// RevocationEvent nullifies a prior delegation identified by CID —
// spec.md §3.
type RevocationEvent struct {
	Revoker DID
	Revoked Hash
	Bytes   []byte
}

func (r *RevocationEvent) Hash() Hash { return SumBlake3(r.Bytes) }

// EventRef is a polymorphic reference to one of the three event kinds,
// used where the engine needs to treat them uniformly (event log
// insertion, space-touch computation).
type EventRef struct {
	Delegation *DelegationEvent
	Invocation *InvocationEvent
	Revocation *RevocationEvent
}

// Hash dispatches to whichever concrete event is set.
func (e EventRef) Hash() Hash {
	switch {
	case e.Delegation != nil:
		return e.Delegation.Hash()
	case e.Invocation != nil:
		return e.Invocation.Hash()
	case e.Revocation != nil:
		return e.Revocation.Hash()
	default:
		return Hash{}
	}
}

// Capabilities returns the capability set of a delegation or invocation;
// revocations carry none.
func (e EventRef) Capabilities() []Capability {
	switch {
	case e.Delegation != nil:
		return e.Delegation.Capabilities
	case e.Invocation != nil:
		return e.Invocation.Capabilities
	default:
		return nil
	}
}

// Epoch is a deterministic batch of concurrently-committed events in a
// space — spec.md §3.
type Epoch struct {
	ID      Hash
	Space   SpaceID
	Seq     uint64
	Parents []Hash
	Events  []Hash
}

// KVWriteRecord is the metadata row committed by a kv/put or kv/del —
// spec.md §3.
type KVWriteRecord struct {
	Space    SpaceID
	Key      string
	Value    Hash
	Metadata map[string]string
	Seq      uint64
	Epoch    Hash
	EpochSeq uint64
	Deleted  bool
}

// Position is the tuple that must be unique within a space (invariant 1).
type Position struct {
	Seq      uint64
	Epoch    Hash
	EpochSeq uint64
}

// Less orders positions lexicographically by (Seq, Epoch, EpochSeq), the
// order readers rely on (spec.md §5).
func (p Position) Less(o Position) bool {
	if p.Seq != o.Seq {
		return p.Seq < o.Seq
	}
	if p.Epoch != o.Epoch {
		return string(p.Epoch[:]) < string(o.Epoch[:])
	}
	return p.EpochSeq < o.EpochSeq
}
