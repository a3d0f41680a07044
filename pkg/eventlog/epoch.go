/*
Package eventlog implements the Event Log / Epoch Engine of spec.md §4.5:
grouping a transaction's events by the spaces they touch and, per space,
folding them into a new epoch whose hash commits to both the events and
(for KV-bearing invocations) their effects.

The package has no opinion on credential formats or KV semantics — callers
hand it the event hashes (and, for invocations with KV operations, the op
hashes computed by pkg/kv) already resolved to the spaces they belong to.
*/
package eventlog

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/metadb"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// CommitEntry is one event's contribution to a space's epoch hash. OpHashes
// is nil for delegations, revocations, and invocations with no KV effects;
// for an invocation that performed KV operations it holds one hash per
// operation, in capability-declaration order, per spec.md §3's "this
// construction makes the epoch hash commit not just to events but to their
// effects".
type CommitEntry struct {
	EventHash tctypes.Hash
	OpHashes  []tctypes.Hash
}

// Result is the position assigned to a space's new epoch.
type Result struct {
	EpochHash tctypes.Hash
	EpochID   string // the exact string persisted in the epoch table
	Seq       int64
}

// TouchedSpaces computes the set of spaces an event touches, per spec.md
// §4.5: a delegation or invocation touches every space named by its
// (non-opaque) capabilities; a revocation touches the spaces of the event
// it revokes, which the caller must resolve (by CID lookup against the
// revoked delegation's abilities) and pass as revokedSpaces. Order is
// first-seen across the capability list.
func TouchedSpaces(e tctypes.EventRef, revokedSpaces []tctypes.SpaceID) []tctypes.SpaceID {
	if e.Revocation != nil {
		return dedupeSpaces(revokedSpaces)
	}
	var spaces []tctypes.SpaceID
	seen := make(map[tctypes.SpaceID]bool)
	for _, c := range e.Capabilities() {
		if c.Opaque {
			continue
		}
		if !seen[c.Resource.Space] {
			seen[c.Resource.Space] = true
			spaces = append(spaces, c.Resource.Space)
		}
	}
	return spaces
}

func dedupeSpaces(in []tctypes.SpaceID) []tctypes.SpaceID {
	seen := make(map[tctypes.SpaceID]bool, len(in))
	var out []tctypes.SpaceID
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// epochDoc is the dag-cbor preimage of an epoch's id: {parents, events}
// where each event entry is either a bare event-hash or, for a KV-bearing
// invocation, [event-hash, op-hash, op-hash, ...].
type epochDoc struct {
	Parents [][]byte      `cbor:"parents"`
	Events  []interface{} `cbor:"events"`
}

func computeEpochHash(parents []tctypes.Hash, entries []CommitEntry) (tctypes.Hash, error) {
	doc := epochDoc{
		Parents: make([][]byte, 0, len(parents)),
		Events:  make([]interface{}, 0, len(entries)),
	}
	for _, p := range parents {
		doc.Parents = append(doc.Parents, p.Bytes())
	}
	for _, e := range entries {
		if len(e.OpHashes) == 0 {
			doc.Events = append(doc.Events, e.EventHash.Bytes())
			continue
		}
		list := make([][]byte, 0, len(e.OpHashes)+1)
		list = append(list, e.EventHash.Bytes())
		for _, op := range e.OpHashes {
			list = append(list, op.Bytes())
		}
		doc.Events = append(doc.Events, list)
	}

	raw, err := cbor.Marshal(doc)
	if err != nil {
		return tctypes.Hash{}, tcerr.Wrap(tcerr.EncodingError, err, "cbor-encode epoch document")
	}
	return tctypes.SumBlake3(raw), nil
}

// epochIDString renders an epoch hash as a dag-cbor-codec CID, per
// spec.md §3 ("dag-cbor 0x71 for epochs").
func epochIDString(h tctypes.Hash) (string, error) {
	c, err := h.CID(tctypes.CodecDagCBOR)
	if err != nil {
		return "", tcerr.Wrap(tcerr.EncodingError, err, "build epoch CID")
	}
	return c.String(), nil
}

// CommitSpace runs §4.5 steps 1-5 for one space: load tip epochs, compute
// the new epoch hash over entries and the tips, assign the next sequence
// number, and persist the epoch row, parent edges, and per-event
// positions. entries must already be in the order the events were
// declared in the request (tie-breaking within an epoch is input order).
func CommitSpace(tx *metadb.Tx, space tctypes.SpaceID, entries []CommitEntry) (Result, error) {
	exists, err := tx.SpaceExists(space)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		return Result{}, tcerr.New(tcerr.SpaceNotFound, "space %s does not exist", space)
	}

	tipIDs, err := tx.TipEpochs(space)
	if err != nil {
		return Result{}, err
	}
	tipHashes := make([]tctypes.Hash, 0, len(tipIDs))
	for _, id := range tipIDs {
		h, err := tctypes.ParseHash(id)
		if err != nil {
			return Result{}, tcerr.Wrap(tcerr.EncodingError, err, "parse tip epoch id")
		}
		tipHashes = append(tipHashes, h)
	}

	epochHash, err := computeEpochHash(tipHashes, entries)
	if err != nil {
		return Result{}, err
	}
	epochID, err := epochIDString(epochHash)
	if err != nil {
		return Result{}, err
	}

	seq, err := tx.MaxSeq(space)
	if err != nil {
		return Result{}, err
	}
	seq++

	if err := tx.InsertEpoch(epochID, space, seq); err != nil {
		return Result{}, err
	}
	for _, tip := range tipIDs {
		if err := tx.InsertEpochOrder(space, tip, epochID); err != nil {
			return Result{}, err
		}
	}
	for i, e := range entries {
		if err := tx.InsertEventOrder(space, epochID, i, e.EventHash.String(), seq); err != nil {
			return Result{}, err
		}
	}

	return Result{EpochHash: epochHash, EpochID: epochID, Seq: seq}, nil
}

// CommitAll runs CommitSpace once per space in bySpace and returns the
// resulting position of each. Each space's epoch chain is independent, so
// the order spaces are processed in has no observable effect.
func CommitAll(tx *metadb.Tx, bySpace map[tctypes.SpaceID][]CommitEntry) (map[tctypes.SpaceID]Result, error) {
	results := make(map[tctypes.SpaceID]Result, len(bySpace))
	for space, entries := range bySpace {
		res, err := CommitSpace(tx, space, entries)
		if err != nil {
			return nil, err
		}
		results[space] = res
	}
	return results, nil
}
