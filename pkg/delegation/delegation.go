/*
Package delegation implements the Delegation Validator of spec.md §4.4:
partitioning a delegation's capabilities into self-rooted and dependent,
resolving and filtering candidate parents, checking attenuation, and
persisting the result. It has no opinion on wire format — callers (pkg/
core) hand it an already-verified, already-lowered event.
*/
package delegation

import (
	"fmt"
	"time"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/capability"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/metadb"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// Input is a verified delegation ready for validation.
type Input struct {
	ID            string // canonical CID string of this delegation event
	Delegator     tctypes.DID
	Delegatee     tctypes.DID
	Parents       []string // parent delegation CID strings
	Capabilities  []tctypes.Capability
	IssuedAt      *time.Time
	TimeBound     tctypes.TimeBound
	Serialization []byte
}

// Validate runs the §4.4 procedure against tx and, on success, persists
// the delegation, its capabilities, parent edges, and both actors.
func Validate(tx *metadb.Tx, in Input) error {
	if err := Authorize(tx, in.Delegator, in.ID, in.Parents, in.TimeBound, in.Capabilities); err != nil {
		return err
	}
	return persist(tx, in)
}

// Authorize runs §4.4 steps 1-5 for any actor exercising capabilities
// against declared parent proofs — the delegation validator's own
// entry point, and also how pkg/core authorizes an invocation's
// dependent capabilities (an invocation grants nothing new, so it never
// persists; it only needs this same partition/attenuation check).
// Self-rooted capabilities (the resource's root DID is actor) always
// pass; every other capability must be extended by some parent
// delegation to actor whose time bound contains tb and that cites one of
// parents (or, if parents is empty, any matching delegation at all).
func Authorize(tx *metadb.Tx, actor tctypes.DID, id string, parents []string, tb tctypes.TimeBound, capabilities []tctypes.Capability) error {
	var dependent []tctypes.Capability
	for _, c := range capabilities {
		if !capability.IsSelfRooted(c, actor) {
			dependent = append(dependent, c)
		}
	}
	if len(dependent) == 0 {
		return nil
	}
	return validateDependent(tx, actor, id, parents, tb, dependent)
}

// validateDependent implements §4.4 steps 3-5: load, filter, and check
// attenuation for the capabilities that aren't self-rooted.
func validateDependent(tx *metadb.Tx, actor tctypes.DID, id string, declaredParents []string, tb tctypes.TimeBound, dependent []tctypes.Capability) error {
	candidateIDs, err := tx.DelegationsByDelegatee(actor)
	if err != nil {
		return err
	}
	candidateIDs = restrictTo(candidateIDs, declaredParents)
	if len(candidateIDs) == 0 {
		return tcerr.New(tcerr.MissingParents, "%s cites no parent delegated to %s", id, actor)
	}

	type survivor struct {
		id  string
		cap []tctypes.Capability
	}
	var survivors []survivor
	droppedForExpiry := false
	droppedForNbf := false

	for _, pid := range candidateIDs {
		parentRow, ok, err := tx.GetDelegation(pid)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if revoked, err := tx.IsRevoked(pid); err != nil {
			return err
		} else if revoked {
			continue
		}

		ok2, nbfViolation, expViolation := parentRow.TimeBound.Contains(tb)
		if !ok2 {
			if expViolation {
				droppedForExpiry = true
			}
			if nbfViolation {
				droppedForNbf = true
			}
			continue
		}

		abilities, err := tx.GetAbilities(pid)
		if err != nil {
			return err
		}
		caps := make([]tctypes.Capability, 0, len(abilities))
		for _, a := range abilities {
			caps = append(caps, capability.FromURI(a.Resource, tctypes.Ability(a.Ability)))
		}
		survivors = append(survivors, survivor{id: pid, cap: caps})
	}

	if len(survivors) == 0 {
		if droppedForExpiry {
			return tcerr.New(tcerr.ExpiryExceedsParent, "%s's expiry exceeds every matching parent's", id)
		}
		return tcerr.New(tcerr.NotBeforePrecedesParent, "%s's nbf precedes every matching parent's", id)
	}

	var allParentCaps []tctypes.Capability
	for _, s := range survivors {
		allParentCaps = append(allParentCaps, s.cap...)
	}

	for _, c := range dependent {
		if !capability.ExtendsAny(c, allParentCaps) {
			res := c.OpaqueResource
			if !c.Opaque {
				res = c.Resource.String()
			}
			return tcerr.Unauthorized(res, string(c.Ability))
		}
	}
	return nil
}

// restrictTo intersects candidateIDs with the delegation's declared
// parent CIDs, preserving the order parents were declared in. If the
// delegation declared no parents at all, every delegatee-matching
// candidate is considered: the extension check then runs against the
// capabilities of every delegation made to the delegator, and only a
// delegator with no such delegation at all fails with MissingParents.
func restrictTo(candidateIDs, declaredParents []string) []string {
	if len(declaredParents) == 0 {
		return candidateIDs
	}
	set := make(map[string]bool, len(candidateIDs))
	for _, id := range candidateIDs {
		set[id] = true
	}
	var out []string
	for _, p := range declaredParents {
		if set[p] {
			out = append(out, p)
		}
	}
	return out
}

func persist(tx *metadb.Tx, in Input) error {
	if err := tx.UpsertActor(in.Delegator); err != nil {
		return err
	}
	if err := tx.UpsertActor(in.Delegatee); err != nil {
		return err
	}

	row := metadb.DelegationRow{
		ID:            in.ID,
		Delegator:     in.Delegator,
		Delegatee:     in.Delegatee,
		IssuedAt:      in.IssuedAt,
		TimeBound:     in.TimeBound,
		Serialization: in.Serialization,
	}
	if err := tx.InsertDelegation(row); err != nil {
		return err
	}

	for _, c := range in.Capabilities {
		res := c.OpaqueResource
		if !c.Opaque {
			res = c.Resource.String()
		}
		if err := tx.InsertAbility(in.ID, res, string(c.Ability), "[]"); err != nil {
			return err
		}
	}

	for _, p := range in.Parents {
		if err := tx.InsertParentEdge(in.ID, p); err != nil {
			return fmt.Errorf("insert parent edge %s->%s: %w", in.ID, p, err)
		}
	}

	return nil
}
