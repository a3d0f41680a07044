package core

import (
	"context"
	"encoding/json"
	"io"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/capread"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/delegation"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/eventbus"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/eventlog"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/kv"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/metadb"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/metrics"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/verifier"
)

// ResultKind says which of InvokeResult's payload fields is populated,
// mirroring spec.md §6's "response shape determined by the first invoked
// capability".
type ResultKind int

const (
	// ResultEmpty is a put or del — no response body.
	ResultEmpty ResultKind = iota
	// ResultJSON covers list, metadata, and capabilities/read.
	ResultJSON
	// ResultGet carries a content stream and its metadata headers.
	ResultGet
)

// InvokeResult is the outcome of Invoke, shaped for pkg/httpapi to render.
type InvokeResult struct {
	Kind ResultKind
	JSON any
	Get  *kv.GetResult
}

// capreadRequest is the fct parameter object spec.md §4.7 defines for a
// tinycloud.capabilities/read invocation.
type capreadRequest struct {
	Type          string `json:"type"`
	DelegationCID string `json:"delegation_cid"`
	Filters       struct {
		Direction string   `json:"direction"`
		Path      string   `json:"path"`
		Actions   []string `json:"actions"`
	} `json:"filters"`
}

// Invoke runs POST /invoke: decode, verify, authorize every capability
// against the invoker's delegation chain (pkg/delegation.Authorize), then
// execute kv-service and capabilities/read effects and commit the epoch
// entry they produce across every touched space in one pkg/eventlog.
// CommitAll call — spec.md §4.6, §4.7. metadata is attached to a kv/put's
// write record verbatim, the caller's concern to populate (pkg/httpapi
// fills it from the request's non-Authorization headers).
func (c *Core) Invoke(ctx context.Context, raw string, body io.Reader, metadata map[string]string) (*InvokeResult, error) {
	res, err := c.invoke(ctx, raw, body, metadata)
	if err != nil {
		metrics.InvocationsTotal.WithLabelValues("error").Inc()
		metrics.ErrorsTotal.WithLabelValues(string(tcerr.KindOf(err))).Inc()
	} else {
		metrics.InvocationsTotal.WithLabelValues("ok").Inc()
	}
	return res, err
}

func (c *Core) invoke(ctx context.Context, raw string, body io.Reader, metadata map[string]string) (*InvokeResult, error) {
	v, err := decodeAndVerify(raw)
	if err != nil {
		return nil, err
	}
	if err := verifier.CheckTime(v.TimeBound, c.clock.Now()); err != nil {
		return nil, err
	}

	event := &tctypes.InvocationEvent{
		Format:       v.Format,
		Invoker:      v.Issuer,
		Capabilities: v.Capabilities,
		Facts:        v.Facts,
		TimeBound:    v.TimeBound,
		Bytes:        v.Bytes,
	}
	id := event.Hash().String()

	tx, err := c.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := delegation.Authorize(tx, v.Issuer, id, v.Parents, v.TimeBound, v.Capabilities); err != nil {
		return nil, err
	}

	plan, err := kv.Stage(tx, c.store, c.kvCfg, kv.Input{
		ID:            id,
		Invoker:       v.Issuer,
		Capabilities:  v.Capabilities,
		Body:          body,
		Metadata:      metadata,
		Serialization: v.Bytes,
	})
	if err != nil {
		return nil, err
	}

	capreadResult, err := runCapabilitiesRead(tx, v.Issuer, v.Capabilities, v.Facts)
	if err != nil {
		plan.Discard()
		return nil, err
	}

	if err := tx.InsertInvocation(id, v.Issuer, v.Bytes); err != nil {
		plan.Discard()
		return nil, err
	}

	spaces := eventlog.TouchedSpaces(tctypes.EventRef{Invocation: event}, nil)
	entries := make(map[tctypes.SpaceID][]eventlog.CommitEntry, len(spaces))
	for _, s := range spaces {
		entries[s] = []eventlog.CommitEntry{{EventHash: event.Hash(), OpHashes: plan.OpHashesBySpace[s]}}
	}
	timer := metrics.NewTimer()
	positions, err := eventlog.CommitAll(tx, entries)
	if err != nil {
		plan.Discard()
		return nil, err
	}

	if err := plan.Commit(tx, c.store, id, positions); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	timer.ObserveDuration(metrics.EpochCommitDuration)
	if n := plan.PutBytes(); n > 0 {
		metrics.KVPutBytesTotal.Add(float64(n))
	}
	for _, s := range spaces {
		c.bus.Publish(&eventbus.Event{Type: eventbus.InvocationCommitted, Space: s, EventCID: id, Actor: v.Issuer})
	}

	return buildResult(v.Capabilities, plan, capreadResult), nil
}

// runCapabilitiesRead executes the tinycloud.capabilities/read side effect
// if caps contains it, else returns nil with no error.
func runCapabilitiesRead(tx *metadb.Tx, invoker tctypes.DID, caps []tctypes.Capability, facts []byte) (any, error) {
	if !hasCapabilitiesRead(caps) {
		return nil, nil
	}

	req, err := parseCapreadRequest(facts)
	if err != nil {
		return nil, err
	}

	if req.Type == "chain" {
		if req.DelegationCID == "" {
			return nil, tcerr.New(tcerr.MalformedFacts, "capabilities/read chain query requires delegation_cid")
		}
		return capread.Chain(tx, req.DelegationCID)
	}
	return capread.List(tx, invoker, capread.Filters{
		Direction: req.Filters.Direction,
		Path:      req.Filters.Path,
		Actions:   req.Filters.Actions,
	})
}

func hasCapabilitiesRead(caps []tctypes.Capability) bool {
	for _, c := range caps {
		if !c.Opaque && c.Resource.Service == tctypes.ServiceCapabilities && c.Ability == tctypes.AbilityCapabilitiesRead {
			return true
		}
	}
	return false
}

// parseCapreadRequest decodes the first element of the invocation's fct
// array as the §4.7 parameter object; an empty or absent fct means "list,
// no filters".
func parseCapreadRequest(facts []byte) (capreadRequest, error) {
	req := capreadRequest{Type: "list"}
	if len(facts) == 0 {
		return req, nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(facts, &arr); err != nil {
		return req, tcerr.Wrap(tcerr.MalformedFacts, err, "decode invocation facts array")
	}
	if len(arr) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(arr[0], &req); err != nil {
		return req, tcerr.Wrap(tcerr.MalformedFacts, err, "decode capabilities/read facts object")
	}
	if req.Type == "" {
		req.Type = "list"
	}
	return req, nil
}

// buildResult shapes the response per spec.md §6: determined by the first
// capability in the invocation's declared order, not by which one actually
// produced data.
func buildResult(caps []tctypes.Capability, plan *kv.Plan, capreadResult any) *InvokeResult {
	if len(caps) == 0 {
		return &InvokeResult{Kind: ResultEmpty}
	}
	first := caps[0]
	if first.Opaque {
		return &InvokeResult{Kind: ResultEmpty}
	}

	switch first.Ability {
	case tctypes.AbilityKVGet:
		return &InvokeResult{Kind: ResultGet, Get: plan.Results[0].Get}
	case tctypes.AbilityKVList:
		return &InvokeResult{Kind: ResultJSON, JSON: plan.Results[0].List}
	case tctypes.AbilityKVMetadata:
		return &InvokeResult{Kind: ResultJSON, JSON: plan.Results[0].Metadata}
	case tctypes.AbilityCapabilitiesRead:
		return &InvokeResult{Kind: ResultJSON, JSON: capreadResult}
	default:
		return &InvokeResult{Kind: ResultEmpty}
	}
}
