package capread

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/delegation"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/metadb"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

const testSpace = tctypes.SpaceID("tinycloud:pkh:eip155:1:0xAAAA:default")

var rootPKH = tctypes.DID("did:pkh:eip155:1:0xAAAA")

func openTx(t *testing.T) (*metadb.DB, *metadb.Tx) {
	t.Helper()
	db, err := metadb.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	tx, err := db.Begin(context.Background())
	require.NoError(t, err)
	return db, tx
}

func cap(service, path, ability string) tctypes.Capability {
	return tctypes.Capability{
		Resource: tctypes.ResourceID{Space: testSpace, Service: service, Path: path},
		Ability:  tctypes.Ability(ability),
	}
}

func delegate(t *testing.T, tx *metadb.Tx, in delegation.Input) {
	t.Helper()
	require.NoError(t, delegation.Validate(tx, in))
}

func TestResolveRootPKHReturnsUnchangedForPKHDID(t *testing.T) {
	_, tx := openTx(t)

	got, err := ResolveRootPKH(tx, rootPKH)
	require.NoError(t, err)
	assert.Equal(t, rootPKH, got)
}

func TestResolveRootPKHWalksSessionKeyToRoot(t *testing.T) {
	_, tx := openTx(t)

	delegate(t, tx, delegation.Input{
		ID:           "cid-root",
		Delegator:    rootPKH,
		Delegatee:    tctypes.DID("did:key:zSession"),
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")},
	})

	got, err := ResolveRootPKH(tx, tctypes.DID("did:key:zSession"))
	require.NoError(t, err)
	assert.Equal(t, rootPKH, got)
}

func TestResolveRootPKHReturnsUnchangedWhenChainIsBroken(t *testing.T) {
	_, tx := openTx(t)

	got, err := ResolveRootPKH(tx, tctypes.DID("did:key:zOrphan"))
	require.NoError(t, err)
	assert.Equal(t, tctypes.DID("did:key:zOrphan"), got)
}

func TestListFiltersByDirection(t *testing.T) {
	_, tx := openTx(t)

	delegate(t, tx, delegation.Input{
		ID:           "cid-created",
		Delegator:    rootPKH,
		Delegatee:    tctypes.DID("did:key:zSession"),
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")},
	})
	delegate(t, tx, delegation.Input{
		ID:           "cid-received",
		Delegator:    tctypes.DID("did:pkh:eip155:1:0xBBBB"),
		Delegatee:    rootPKH,
		Capabilities: []tctypes.Capability{cap("kv", "shared", "tinycloud.kv/get")},
	})

	created, err := List(tx, rootPKH, Filters{Direction: "created"})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "cid-created", created[0].DelegationID)

	received, err := List(tx, rootPKH, Filters{Direction: "received"})
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "cid-received", received[0].DelegationID)

	both, err := List(tx, rootPKH, Filters{})
	require.NoError(t, err)
	assert.Len(t, both, 2)
}

func TestListFiltersByPathPrefix(t *testing.T) {
	_, tx := openTx(t)

	delegate(t, tx, delegation.Input{
		ID:           "cid-notes",
		Delegator:    rootPKH,
		Delegatee:    tctypes.DID("did:key:zSession"),
		Capabilities: []tctypes.Capability{cap("kv", "notes/a", "tinycloud.kv/put")},
	})
	delegate(t, tx, delegation.Input{
		ID:           "cid-other",
		Delegator:    rootPKH,
		Delegatee:    tctypes.DID("did:key:zSession2"),
		Capabilities: []tctypes.Capability{cap("kv", "other/b", "tinycloud.kv/put")},
	})

	got, err := List(tx, rootPKH, Filters{Direction: "created", Path: "notes"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cid-notes", got[0].DelegationID)
}

func TestListFiltersByActions(t *testing.T) {
	_, tx := openTx(t)

	delegate(t, tx, delegation.Input{
		ID:           "cid-put",
		Delegator:    rootPKH,
		Delegatee:    tctypes.DID("did:key:zSession"),
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")},
	})
	delegate(t, tx, delegation.Input{
		ID:           "cid-get",
		Delegator:    rootPKH,
		Delegatee:    tctypes.DID("did:key:zSession2"),
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/get")},
	})

	got, err := List(tx, rootPKH, Filters{Direction: "created", Actions: []string{"tinycloud.kv/get"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cid-get", got[0].DelegationID)
}

func TestListExcludesRevokedDelegation(t *testing.T) {
	_, tx := openTx(t)

	delegate(t, tx, delegation.Input{
		ID:           "cid-revoked",
		Delegator:    rootPKH,
		Delegatee:    tctypes.DID("did:key:zSession"),
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")},
	})
	require.NoError(t, tx.InsertRevocation("cid-revoke-event", rootPKH, "cid-revoked", []byte{}))

	got, err := List(tx, rootPKH, Filters{Direction: "created"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListExcludesExpiredDelegation(t *testing.T) {
	_, tx := openTx(t)

	past := time.Now().Add(-time.Hour)
	delegate(t, tx, delegation.Input{
		ID:           "cid-expired",
		Delegator:    rootPKH,
		Delegatee:    tctypes.DID("did:key:zSession"),
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")},
		TimeBound:    tctypes.TimeBound{Expiry: &past},
	})

	got, err := List(tx, rootPKH, Filters{Direction: "created"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChainFollowsParentsToRoot(t *testing.T) {
	_, tx := openTx(t)

	delegate(t, tx, delegation.Input{
		ID:           "cid-root",
		Delegator:    rootPKH,
		Delegatee:    tctypes.DID("did:key:zSession"),
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")},
	})
	delegate(t, tx, delegation.Input{
		ID:           "cid-child",
		Delegator:    tctypes.DID("did:key:zSession"),
		Delegatee:    tctypes.DID("did:key:zOther"),
		Parents:      []string{"cid-root"},
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")},
	})

	chain, err := Chain(tx, "cid-child")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "cid-child", chain[0].DelegationID)
	assert.Equal(t, "cid-root", chain[1].DelegationID)
}

func TestChainStopsAtRevokedAncestor(t *testing.T) {
	_, tx := openTx(t)

	delegate(t, tx, delegation.Input{
		ID:           "cid-root",
		Delegator:    rootPKH,
		Delegatee:    tctypes.DID("did:key:zSession"),
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")},
	})
	delegate(t, tx, delegation.Input{
		ID:           "cid-child",
		Delegator:    tctypes.DID("did:key:zSession"),
		Delegatee:    tctypes.DID("did:key:zOther"),
		Parents:      []string{"cid-root"},
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")},
	})
	require.NoError(t, tx.InsertRevocation("cid-revoke-event", rootPKH, "cid-root", []byte{}))

	chain, err := Chain(tx, "cid-child")
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, "cid-child", chain[0].DelegationID)
}

func TestChainUnknownCIDReturnsEmpty(t *testing.T) {
	_, tx := openTx(t)

	chain, err := Chain(tx, "cid-nowhere")
	require.NoError(t, err)
	assert.Empty(t, chain)
}
