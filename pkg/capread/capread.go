/*
Package capread implements the Capabilities Query of spec.md §4.7:
`tinycloud.capabilities/read` on `{space}/capabilities/all`, either
listing the invoker's capability grants (optionally filtered) or
following one delegation's chain up to its root.
*/
package capread

import (
	"strings"
	"time"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/capability"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/metadb"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// Filters narrows a list query — spec.md §4.7.
type Filters struct {
	// Direction is "created", "received", or "" for both.
	Direction string
	// Path matches a delegation if any of its capabilities targets a
	// path with this prefix. Empty matches every delegation.
	Path string
	// Actions matches a delegation if any of its capabilities has an
	// ability in this list. Empty matches every delegation.
	Actions []string
}

// Grant is one delegation surfaced by a capabilities query, with its
// capability set resolved from the abilities table.
type Grant struct {
	DelegationID string
	Delegator    tctypes.DID
	Delegatee    tctypes.DID
	IssuedAt     *time.Time
	TimeBound    tctypes.TimeBound
	Capabilities []tctypes.Capability
}

// ResolveRootPKH walks delegatee → delegator backwards from did until a
// did:pkh: identifier is reached, or returns did unchanged if it has no
// incoming delegation (it already is the root, or the chain is broken).
// A delegatee with more than one incoming delegation follows the first
// one metadb returns, matching the chain variant's "first parent at each
// step" convention.
func ResolveRootPKH(tx *metadb.Tx, did tctypes.DID) (tctypes.DID, error) {
	current := did.WithoutFragment()
	visited := make(map[tctypes.DID]bool)
	for !current.IsPKH() {
		if visited[current] {
			return current, nil
		}
		visited[current] = true

		ids, err := tx.DelegationsByDelegatee(current)
		if err != nil {
			return "", err
		}
		if len(ids) == 0 {
			return current, nil
		}
		row, ok, err := tx.GetDelegation(ids[0])
		if err != nil {
			return "", err
		}
		if !ok {
			return current, nil
		}
		current = row.Delegator.WithoutFragment()
	}
	return current, nil
}

// List runs the "list" query variant for invoker, resolving its root PKH
// DID and applying f. Expired, not-yet-valid, and revoked delegations are
// always excluded.
func List(tx *metadb.Tx, invoker tctypes.DID, f Filters) ([]Grant, error) {
	rootPKH, err := ResolveRootPKH(tx, invoker)
	if err != nil {
		return nil, err
	}

	ids, err := delegationIDsForDirection(tx, rootPKH, f.Direction)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]Grant, 0, len(ids))
	for _, id := range ids {
		row, ok, err := tx.GetDelegation(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		revoked, err := tx.IsRevoked(id)
		if err != nil {
			return nil, err
		}
		if revoked || !validNow(row.TimeBound, now) {
			continue
		}

		caps, err := loadCapabilities(tx, id)
		if err != nil {
			return nil, err
		}
		if f.Path != "" && !anyPathPrefix(caps, f.Path) {
			continue
		}
		if len(f.Actions) > 0 && !anyAction(caps, f.Actions) {
			continue
		}

		out = append(out, Grant{
			DelegationID: id,
			Delegator:    row.Delegator,
			Delegatee:    row.Delegatee,
			IssuedAt:     row.IssuedAt,
			TimeBound:    row.TimeBound,
			Capabilities: caps,
		})
	}
	return out, nil
}

// Chain runs the "chain" query variant, returning startCID and every
// ancestor reachable by following the first parent edge at each step. It
// stops at a revoked, time-invalid, or space-mismatched ancestor, or when
// no further parents exist.
func Chain(tx *metadb.Tx, startCID string) ([]Grant, error) {
	var out []Grant
	visited := make(map[string]bool)
	now := time.Now()
	current := startCID

	for current != "" {
		if visited[current] {
			break
		}
		visited[current] = true

		row, ok, err := tx.GetDelegation(current)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		revoked, err := tx.IsRevoked(current)
		if err != nil {
			return nil, err
		}
		if revoked || !validNow(row.TimeBound, now) {
			break
		}

		caps, err := loadCapabilities(tx, current)
		if err != nil {
			return nil, err
		}
		out = append(out, Grant{
			DelegationID: current,
			Delegator:    row.Delegator,
			Delegatee:    row.Delegatee,
			IssuedAt:     row.IssuedAt,
			TimeBound:    row.TimeBound,
			Capabilities: caps,
		})

		parents, err := tx.GetParents(current)
		if err != nil {
			return nil, err
		}
		if len(parents) == 0 {
			break
		}
		parentID := parents[0]
		parentCaps, err := loadCapabilities(tx, parentID)
		if err != nil {
			return nil, err
		}
		if !sharesSpace(caps, parentCaps) {
			break
		}
		current = parentID
	}
	return out, nil
}

func delegationIDsForDirection(tx *metadb.Tx, rootPKH tctypes.DID, direction string) ([]string, error) {
	switch direction {
	case "created":
		return tx.DelegationsByActor(rootPKH, true)
	case "received":
		return tx.DelegationsByActor(rootPKH, false)
	case "":
		created, err := tx.DelegationsByActor(rootPKH, true)
		if err != nil {
			return nil, err
		}
		received, err := tx.DelegationsByActor(rootPKH, false)
		if err != nil {
			return nil, err
		}
		return dedupeStrings(append(created, received...)), nil
	default:
		return nil, tcerr.New(tcerr.BadRequest, "unknown capabilities query direction %q", direction)
	}
}

func loadCapabilities(tx *metadb.Tx, delegationID string) ([]tctypes.Capability, error) {
	abilities, err := tx.GetAbilities(delegationID)
	if err != nil {
		return nil, err
	}
	caps := make([]tctypes.Capability, 0, len(abilities))
	for _, a := range abilities {
		caps = append(caps, capability.FromURI(a.Resource, tctypes.Ability(a.Ability)))
	}
	return caps, nil
}

func validNow(tb tctypes.TimeBound, now time.Time) bool {
	if tb.NotBefore != nil && now.Before(*tb.NotBefore) {
		return false
	}
	if tb.Expiry != nil && now.After(*tb.Expiry) {
		return false
	}
	return true
}

func anyPathPrefix(caps []tctypes.Capability, prefix string) bool {
	for _, c := range caps {
		if !c.Opaque && strings.HasPrefix(c.Resource.Path, prefix) {
			return true
		}
	}
	return false
}

func anyAction(caps []tctypes.Capability, actions []string) bool {
	for _, c := range caps {
		for _, a := range actions {
			if string(c.Ability) == a {
				return true
			}
		}
	}
	return false
}

func sharesSpace(a, b []tctypes.Capability) bool {
	spaces := make(map[tctypes.SpaceID]bool)
	for _, c := range a {
		if !c.Opaque {
			spaces[c.Resource.Space] = true
		}
	}
	for _, c := range b {
		if !c.Opaque && spaces[c.Resource.Space] {
			return true
		}
	}
	return false
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
