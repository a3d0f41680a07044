/*
Package kv implements the KV Invocation Executor of spec.md §4.6: turning
an invocation's kv-service capabilities into blob-store and metadata-store
side effects, sharing the single transaction and epoch commit that pkg/
core also uses for every other capability the same invocation declares
(notably capabilities/read, §4.7, which touches spaces too but has no
blob-store effect of its own).

Stage does the pre-scan, quota-checked blob staging, and read-only
effects (get/list/metadata); it reports which spaces its writes touch and
their op hashes, but does not itself decide the invocation's position —
that is §4.5's job, shared across every capability in the request, so
pkg/core runs it once over the union of every package's touched spaces.
Commit takes the resulting per-space epoch positions and persists the
staged put and any deletes.
*/
package kv

import (
	"encoding/json"
	"io"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/blobstore"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/eventlog"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/metadb"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// Config controls per-space storage limits.
type Config struct {
	// MaxSpaceBytes bounds the total blob bytes a space may hold. Zero
	// means unlimited.
	MaxSpaceBytes int64
}

// Input is a verified invocation ready for KV execution.
type Input struct {
	ID            string // canonical CID string of this invocation event
	Invoker       tctypes.DID
	Capabilities  []tctypes.Capability
	Body          io.Reader         // the request body; required iff a kv/put capability is present
	Metadata      map[string]string // attached to a kv/put's write record, if any
	Serialization []byte
}

// GetResult is the payload returned by a kv/get.
type GetResult struct {
	Metadata    map[string]string
	ContentHash tctypes.Hash
	Length      int64
	Content     io.ReadCloser
}

// Result is the outcome of one entry of in.Capabilities. Handled is false
// for capabilities Stage does not own; callers dispatch those elsewhere
// (e.g. to pkg/capread) while keeping the original index to reconstruct
// declaration order in a response.
type Result struct {
	Capability tctypes.Capability
	Handled    bool
	Get        *GetResult
	List       []string
	Metadata   map[string]string
}

type pendingDel struct {
	space tctypes.SpaceID
	key   string
}

type pendingPut struct {
	space    tctypes.SpaceID
	key      string
	staged   blobstore.Staged
	metadata map[string]string
}

// Plan is the outcome of Stage: the read-only results, plus everything
// Commit needs once the caller has computed this invocation's epoch
// position in every space it touches.
type Plan struct {
	Results []Result

	// EventHash is in.ID parsed back to a Hash, ready for the epoch-hash
	// preimage pkg/eventlog builds.
	EventHash tctypes.Hash

	// TouchedSpaces lists, in first-declaration order, every space a
	// kv-service capability of this invocation names — including pure
	// reads, which touch a space without producing an op hash.
	TouchedSpaces []tctypes.SpaceID

	// OpHashesBySpace holds one hash per put/del effect, per space, in
	// declaration order — spec.md §3's "this construction makes the
	// epoch hash commit not just to events but to their effects".
	OpHashesBySpace map[tctypes.SpaceID][]tctypes.Hash

	put  *pendingPut
	dels []pendingDel
}

// PutBytes reports the size of this plan's staged write, if any — used by
// pkg/core to observe the tinycloud_kv_put_bytes_total counter.
func (p *Plan) PutBytes() int64 {
	if p == nil || p.put == nil {
		return 0
	}
	return p.put.staged.Size()
}

// Discard releases a staged put's resources without persisting it. Call
// this if the invocation is abandoned after Stage but before Commit (for
// example because a sibling capability, such as capabilities/read, failed
// validation).
func (p *Plan) Discard() {
	if p != nil && p.put != nil {
		p.put.staged.Discard()
	}
}

// Stage runs spec.md §4.6 steps 1, 2, and the read half of step 4 against
// the kv-service capabilities of in. It opens at most one staged write
// (enforcing "at most one put per request") and performs get/list/
// metadata reads immediately, since those never conflict with this
// invocation's own not-yet-committed effects.
func Stage(tx *metadb.Tx, store blobstore.Store, cfg Config, in Input) (*Plan, error) {
	if err := checkAtMostOnePut(in.Capabilities); err != nil {
		return nil, err
	}

	eventHash, err := tctypes.ParseHash(in.ID)
	if err != nil {
		return nil, tcerr.Wrap(tcerr.EncodingError, err, "parse invocation id")
	}

	plan := &Plan{
		Results:         make([]Result, len(in.Capabilities)),
		EventHash:       eventHash,
		OpHashesBySpace: make(map[tctypes.SpaceID][]tctypes.Hash),
	}
	for i, c := range in.Capabilities {
		plan.Results[i].Capability = c
	}

	seenSpace := make(map[tctypes.SpaceID]bool)
	touchSpace := func(space tctypes.SpaceID) {
		if !seenSpace[space] {
			seenSpace[space] = true
			plan.TouchedSpaces = append(plan.TouchedSpaces, space)
		}
	}
	addOp := func(space tctypes.SpaceID, h tctypes.Hash) {
		touchSpace(space)
		plan.OpHashesBySpace[space] = append(plan.OpHashesBySpace[space], h)
	}

	for i, c := range in.Capabilities {
		if c.Opaque || c.Resource.Service != tctypes.ServiceKV {
			continue
		}
		space := c.Resource.Space
		key := c.Resource.Path
		touchSpace(space)

		switch c.Ability {
		case tctypes.AbilityKVGet:
			row, ok, err := tx.LatestKVWrite(space, key)
			if err != nil {
				plan.Discard()
				return nil, err
			}
			plan.Results[i].Handled = true
			if !ok {
				continue
			}
			length, content, ok, err := store.Read(space, row.Value)
			if err != nil {
				plan.Discard()
				return nil, err
			}
			if !ok {
				plan.Discard()
				return nil, tcerr.New(tcerr.BlobStoreError, "blob for %s %s missing from store", space, key)
			}
			plan.Results[i].Get = &GetResult{
				Metadata:    decodeMetadata(row.Metadata),
				ContentHash: row.Value,
				Length:      length,
				Content:     content,
			}

		case tctypes.AbilityKVList:
			keys, err := tx.ListKVKeys(space, key)
			if err != nil {
				plan.Discard()
				return nil, err
			}
			plan.Results[i].Handled = true
			plan.Results[i].List = keys

		case tctypes.AbilityKVMetadata:
			row, ok, err := tx.LatestKVWrite(space, key)
			if err != nil {
				plan.Discard()
				return nil, err
			}
			plan.Results[i].Handled = true
			if ok {
				plan.Results[i].Metadata = decodeMetadata(row.Metadata)
			}

		case tctypes.AbilityKVDel:
			row, ok, err := tx.LatestKVWrite(space, key)
			if err != nil {
				plan.Discard()
				return nil, err
			}
			var pos tctypes.Position
			if ok {
				epochHash, err := tctypes.ParseHash(row.Epoch)
				if err != nil {
					plan.Discard()
					return nil, tcerr.Wrap(tcerr.EncodingError, err, "parse kv write epoch id")
				}
				pos = tctypes.Position{Seq: uint64(row.Seq), Epoch: epochHash, EpochSeq: uint64(row.EpochSeq)}
			}
			opHash, err := eventlog.DelOpHash(key, pos)
			if err != nil {
				plan.Discard()
				return nil, err
			}
			addOp(space, opHash)
			plan.dels = append(plan.dels, pendingDel{space: space, key: key})
			plan.Results[i].Handled = true

		case tctypes.AbilityKVPut:
			remaining := int64(-1)
			if cfg.MaxSpaceBytes > 0 {
				used, _, err := store.TotalSize(space)
				if err != nil {
					return nil, err
				}
				remaining = cfg.MaxSpaceBytes - used
				if remaining < 0 {
					remaining = 0
				}
			}
			staged, err := stageWithQuota(store, space, in.Body, remaining)
			if err != nil {
				return nil, err
			}
			opHash, err := eventlog.PutOpHash(key, staged.Hash())
			if err != nil {
				staged.Discard()
				return nil, err
			}
			addOp(space, opHash)
			plan.put = &pendingPut{space: space, key: key, staged: staged, metadata: in.Metadata}
			plan.Results[i].Handled = true
		}
	}

	return plan, nil
}

// Commit persists plan's staged put and pending deletes, given the epoch
// position assigned to this invocation's event in each touched space
// (normally the result of calling pkg/eventlog.CommitAll over the union
// of every package's TouchedSpaces, after tx.InsertInvocation). Every
// space in plan.OpHashesBySpace must have a position, or Commit fails.
func (p *Plan) Commit(tx *metadb.Tx, store blobstore.Store, invocationID string, positions map[tctypes.SpaceID]eventlog.Result) error {
	for _, d := range p.dels {
		pos, ok := positions[d.space]
		if !ok {
			return tcerr.New(tcerr.BlobStoreError, "no epoch position computed for del's space %s", d.space)
		}
		previous, _, err := tx.LatestKVWrite(d.space, d.key)
		if err != nil {
			return err
		}
		if previous != nil {
			if _, err := store.Remove(d.space, previous.Value); err != nil {
				return err
			}
		}
		if err := tx.InsertKVWrite(d.space, d.key, tctypes.Hash{}, "", pos.Seq, pos.EpochID, 0, true); err != nil {
			return err
		}
		if err := tx.InsertKVDelete(invocationID, d.space, d.key); err != nil {
			return err
		}
	}

	if p.put != nil {
		pos, ok := positions[p.put.space]
		if !ok {
			p.put.staged.Discard()
			return tcerr.New(tcerr.BlobStoreError, "no epoch position computed for put's space %s", p.put.space)
		}
		hash := p.put.staged.Hash()
		if err := store.PersistKeyed(p.put.space, p.put.staged, hash); err != nil {
			return err
		}
		metadataJSON, err := encodeMetadata(p.put.metadata)
		if err != nil {
			return err
		}
		return tx.InsertKVWrite(p.put.space, p.put.key, hash, metadataJSON, pos.Seq, pos.EpochID, 0, false)
	}
	return nil
}

// checkAtMostOnePut enforces spec.md §4.6 step 1: "require exactly zero
// or one put per request (multi-put returns BadRequest)".
func checkAtMostOnePut(caps []tctypes.Capability) error {
	puts := 0
	for _, c := range caps {
		if !c.Opaque && c.Resource.Service == tctypes.ServiceKV && c.Ability == tctypes.AbilityKVPut {
			puts++
		}
	}
	if puts > 1 {
		return tcerr.New(tcerr.BadRequest, "invocation declares %d kv/put capabilities, at most one is allowed", puts)
	}
	return nil
}

// stageWithQuota stages body through store's hasher, truncating the copy
// at remaining+1 bytes so an oversized write is detected without buffering
// it fully — spec.md §4.6 step 2. remaining < 0 means unlimited.
func stageWithQuota(store blobstore.Store, space tctypes.SpaceID, body io.Reader, remaining int64) (blobstore.Staged, error) {
	if body == nil {
		return nil, tcerr.New(tcerr.BadRequest, "kv/put requires a request body")
	}
	staged, err := store.Stage(space)
	if err != nil {
		return nil, err
	}
	var reader io.Reader = body
	if remaining >= 0 {
		reader = io.LimitReader(body, remaining+1)
	}
	n, err := io.Copy(staged, reader)
	if err != nil {
		staged.Discard()
		return nil, tcerr.Wrap(tcerr.BlobStoreError, err, "stage put body")
	}
	if remaining >= 0 && n > remaining {
		staged.Discard()
		return nil, tcerr.New(tcerr.PayloadTooLarge, "write exceeds remaining quota of %d bytes", remaining)
	}
	return staged, nil
}

func decodeMetadata(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", tcerr.Wrap(tcerr.EncodingError, err, "encode kv write metadata")
	}
	return string(raw), nil
}
