package core

import (
	"context"
	"strings"
	"time"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/capability"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/delegation"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/eventbus"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/eventlog"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/metadb"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/metrics"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/verifier"
)

// isRevocation reports whether caps is the single-capability shape the §9
// Open Question assigns to a revocation submitted to POST /delegate:
// exactly one opaque capability, ability tinycloud.revocation/revoke, on
// resource "urn:cid:{revoked-cid}".
func isRevocation(caps []tctypes.Capability) (revokedID string, ok bool) {
	if len(caps) != 1 {
		return "", false
	}
	c := caps[0]
	if c.Ability != tctypes.AbilityRevocationRevoke || !c.Opaque {
		return "", false
	}
	if !strings.HasPrefix(c.OpaqueResource, tctypes.RevokedCIDPrefix) {
		return "", false
	}
	return strings.TrimPrefix(c.OpaqueResource, tctypes.RevokedCIDPrefix), true
}

// Delegate runs POST /delegate: decode, verify, then either record a
// revocation or validate and persist a delegation — spec.md §4.4, and the
// revocation shape decided in DESIGN.md's Open Question section. Returns
// the new event's CID string on success.
func (c *Core) Delegate(ctx context.Context, raw string) (string, error) {
	id, err := c.delegate(ctx, raw)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(string(tcerr.KindOf(err))).Inc()
	}
	return id, err
}

func (c *Core) delegate(ctx context.Context, raw string) (string, error) {
	v, err := decodeAndVerify(raw)
	if err != nil {
		return "", err
	}
	if err := verifier.CheckTime(v.TimeBound, c.clock.Now()); err != nil {
		return "", err
	}

	tx, err := c.db.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	timer := metrics.NewTimer()
	var id string
	var spaces []tctypes.SpaceID
	revoked := false
	if revokedID, ok := isRevocation(v.Capabilities); ok {
		revoked = true
		id, spaces, err = commitRevocation(tx, v, revokedID)
	} else {
		id, spaces, err = commitDelegation(tx, v)
	}
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	timer.ObserveDuration(metrics.EpochCommitDuration)

	evType := eventbus.DelegationCommitted
	if revoked {
		metrics.RevocationsTotal.Inc()
		evType = eventbus.RevocationCommitted
	} else {
		metrics.DelegationsTotal.WithLabelValues(v.Format.String()).Inc()
	}
	for _, s := range spaces {
		c.bus.Publish(&eventbus.Event{Type: evType, Space: s, EventCID: id, Actor: v.Issuer})
	}
	return id, nil
}

func commitDelegation(tx *metadb.Tx, v *verified) (string, []tctypes.SpaceID, error) {
	event := &tctypes.DelegationEvent{
		Format:       v.Format,
		Delegator:    v.Issuer,
		Delegate:     v.Audience,
		Capabilities: v.Capabilities,
		IssuedAt:     v.IssuedAt,
		TimeBound:    v.TimeBound,
		Bytes:        v.Bytes,
	}
	id := event.Hash().String()

	// A delegation whose self-rooted capabilities include tinycloud.
	// space/host on a bare space resource lazily creates that space
	// (spec.md §3 Lifecycles) — every other reference to an unknown space
	// surfaces as SpaceNotFound (404) once eventlog.CommitSpace runs.
	for _, cp := range v.Capabilities {
		if capability.IsSpaceHostGrant(cp) && capability.IsSelfRooted(cp, v.Issuer) {
			if err := tx.CreateSpace(cp.Resource.Space); err != nil {
				return "", nil, err
			}
		}
	}

	var issuedAt *time.Time
	if !v.IssuedAt.IsZero() {
		issuedAt = &v.IssuedAt
	}
	in := delegation.Input{
		ID:            id,
		Delegator:     v.Issuer,
		Delegatee:     v.Audience,
		Parents:       v.Parents,
		Capabilities:  v.Capabilities,
		IssuedAt:      issuedAt,
		TimeBound:     v.TimeBound,
		Serialization: v.Bytes,
	}
	if err := delegation.Validate(tx, in); err != nil {
		return "", nil, err
	}

	spaces := eventlog.TouchedSpaces(tctypes.EventRef{Delegation: event}, nil)
	if err := commitOneEventPerSpace(tx, spaces, event.Hash()); err != nil {
		return "", nil, err
	}
	return id, spaces, nil
}

func commitRevocation(tx *metadb.Tx, v *verified, revokedID string) (string, []tctypes.SpaceID, error) {
	revoked, ok, err := tx.GetDelegation(revokedID)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, tcerr.New(tcerr.BadRequest, "revoked delegation %s not found", revokedID)
	}
	if revoked.Delegator.WithoutFragment() != v.Issuer.WithoutFragment() {
		return "", nil, tcerr.Unauthorized(tctypes.RevokedCIDPrefix+revokedID, string(tctypes.AbilityRevocationRevoke))
	}

	revokedHash, err := tctypes.ParseHash(revokedID)
	if err != nil {
		return "", nil, tcerr.Wrap(tcerr.MalformedCredential, err, "parse revoked delegation cid")
	}
	event := &tctypes.RevocationEvent{
		Revoker: v.Issuer,
		Revoked: revokedHash,
		Bytes:   v.Bytes,
	}
	id := event.Hash().String()

	if err := tx.InsertRevocation(id, v.Issuer, revokedID, v.Bytes); err != nil {
		return "", nil, err
	}

	revokedSpaces, err := delegationSpaces(tx, revokedID)
	if err != nil {
		return "", nil, err
	}
	spaces := eventlog.TouchedSpaces(tctypes.EventRef{Revocation: event}, revokedSpaces)
	if err := commitOneEventPerSpace(tx, spaces, event.Hash()); err != nil {
		return "", nil, err
	}
	return id, spaces, nil
}

// delegationSpaces loads every space a delegation's capabilities name, used
// to resolve which epoch chains a revocation touches (spec.md §4.5: "a
// revocation touches the spaces of the event it revokes").
func delegationSpaces(tx *metadb.Tx, delegationID string) ([]tctypes.SpaceID, error) {
	abilities, err := tx.GetAbilities(delegationID)
	if err != nil {
		return nil, err
	}
	seen := make(map[tctypes.SpaceID]bool)
	var spaces []tctypes.SpaceID
	for _, a := range abilities {
		res, err := tctypes.ParseResource(a.Resource)
		if err != nil {
			continue // opaque resource, no space to touch
		}
		if !seen[res.Space] {
			seen[res.Space] = true
			spaces = append(spaces, res.Space)
		}
	}
	return spaces, nil
}

// commitOneEventPerSpace runs §4.5 over spaces, each carrying exactly one
// event hash and no op hashes — the delegation/revocation path never has
// KV-style op-hash augmentation, unlike an invocation's epoch entries.
func commitOneEventPerSpace(tx *metadb.Tx, spaces []tctypes.SpaceID, hash tctypes.Hash) error {
	entries := make(map[tctypes.SpaceID][]eventlog.CommitEntry, len(spaces))
	for _, s := range spaces {
		entries[s] = []eventlog.CommitEntry{{EventHash: hash}}
	}
	_, err := eventlog.CommitAll(tx, entries)
	return err
}
