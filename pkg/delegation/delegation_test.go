package delegation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/metadb"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

const testSpace = tctypes.SpaceID("tinycloud:pkh:eip155:1:0xAAAA:default")

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

func TestValidateSelfRootedAcceptsWithoutParents(t *testing.T) {
	_, tx := openTx(t)

	in := Input{
		ID:           "cid-root",
		Delegator:    tctypes.DID("did:pkh:eip155:1:0xAAAA"),
		Delegatee:    tctypes.DID("did:key:zSession"),
		Capabilities: []tctypes.Capability{cap("space", "", "tinycloud.space/host")},
	}
	require.NoError(t, Validate(tx, in))

	row, ok, err := tx.GetDelegation(in.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in.Delegator, row.Delegator)
}

func TestValidateDependentRequiresMatchingParent(t *testing.T) {
	_, tx := openTx(t)

	root := Input{
		ID:           "cid-root",
		Delegator:    tctypes.DID("did:pkh:eip155:1:0xAAAA"),
		Delegatee:    tctypes.DID("did:key:zSession"),
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")},
	}
	require.NoError(t, Validate(tx, root))

	child := Input{
		ID:           "cid-child",
		Delegator:    tctypes.DID("did:key:zSession"),
		Delegatee:    tctypes.DID("did:key:zOther"),
		Parents:      []string{"cid-root"},
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")},
	}
	require.NoError(t, Validate(tx, child))
}

func TestValidateDependentRejectsUnauthorizedCapability(t *testing.T) {
	_, tx := openTx(t)

	root := Input{
		ID:           "cid-root",
		Delegator:    tctypes.DID("did:pkh:eip155:1:0xAAAA"),
		Delegatee:    tctypes.DID("did:key:zSession"),
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/get")},
	}
	require.NoError(t, Validate(tx, root))

	child := Input{
		ID:           "cid-child",
		Delegator:    tctypes.DID("did:key:zSession"),
		Delegatee:    tctypes.DID("did:key:zOther"),
		Parents:      []string{"cid-root"},
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")},
	}
	err := Validate(tx, child)
	require.Error(t, err)
	assert.Equal(t, tcerr.UnauthorizedCapability, tcerr.KindOf(err))
}

func TestValidateMissingParentsWhenNoneDelegatedToDelegator(t *testing.T) {
	_, tx := openTx(t)

	child := Input{
		ID:           "cid-child",
		Delegator:    tctypes.DID("did:key:zSession"),
		Delegatee:    tctypes.DID("did:key:zOther"),
		Parents:      []string{"cid-nonexistent"},
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")},
	}
	err := Validate(tx, child)
	require.Error(t, err)
	assert.Equal(t, tcerr.MissingParents, tcerr.KindOf(err))
}

func TestValidateExpiryExactlyAtParentBoundaryIsAccepted(t *testing.T) {
	_, tx := openTx(t)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	root := Input{
		ID:           "cid-root",
		Delegator:    tctypes.DID("did:pkh:eip155:1:0xAAAA"),
		Delegatee:    tctypes.DID("did:key:zSession"),
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")},
		TimeBound:    tctypes.TimeBound{Expiry: &exp},
	}
	require.NoError(t, Validate(tx, root))

	childExp := exp // exactly equal, not exceeding
	child := Input{
		ID:           "cid-child",
		Delegator:    tctypes.DID("did:key:zSession"),
		Delegatee:    tctypes.DID("did:key:zOther"),
		Parents:      []string{"cid-root"},
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")},
		TimeBound:    tctypes.TimeBound{Expiry: &childExp},
	}
	require.NoError(t, Validate(tx, child))
}

func TestValidateExpiryExceedingParentIsRejected(t *testing.T) {
	_, tx := openTx(t)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	root := Input{
		ID:           "cid-root",
		Delegator:    tctypes.DID("did:pkh:eip155:1:0xAAAA"),
		Delegatee:    tctypes.DID("did:key:zSession"),
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")},
		TimeBound:    tctypes.TimeBound{Expiry: &exp},
	}
	require.NoError(t, Validate(tx, root))

	childExp := exp.Add(time.Minute)
	child := Input{
		ID:           "cid-child",
		Delegator:    tctypes.DID("did:key:zSession"),
		Delegatee:    tctypes.DID("did:key:zOther"),
		Parents:      []string{"cid-root"},
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")},
		TimeBound:    tctypes.TimeBound{Expiry: &childExp},
	}
	err := Validate(tx, child)
	require.Error(t, err)
	assert.Equal(t, tcerr.ExpiryExceedsParent, tcerr.KindOf(err))
}

func TestAuthorizeAcceptsSelfRootedInvocationWithoutAnyDelegation(t *testing.T) {
	_, tx := openTx(t)

	owner := tctypes.DID("did:pkh:eip155:1:0xAAAA")
	err := Authorize(tx, owner, "cid-invocation", nil, tctypes.TimeBound{},
		[]tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")})
	require.NoError(t, err)
}

func TestAuthorizeAcceptsInvocationCoveredByDelegation(t *testing.T) {
	_, tx := openTx(t)

	root := Input{
		ID:           "cid-root",
		Delegator:    tctypes.DID("did:pkh:eip155:1:0xAAAA"),
		Delegatee:    tctypes.DID("did:key:zSession"),
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")},
	}
	require.NoError(t, Validate(tx, root))

	err := Authorize(tx, tctypes.DID("did:key:zSession"), "cid-invocation", []string{"cid-root"}, tctypes.TimeBound{},
		[]tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")})
	require.NoError(t, err)
}

func TestAuthorizeRejectsInvocationExceedingDelegatedCapability(t *testing.T) {
	_, tx := openTx(t)

	root := Input{
		ID:           "cid-root",
		Delegator:    tctypes.DID("did:pkh:eip155:1:0xAAAA"),
		Delegatee:    tctypes.DID("did:key:zSession"),
		Capabilities: []tctypes.Capability{cap("kv", "notes", "tinycloud.kv/get")},
	}
	require.NoError(t, Validate(tx, root))

	err := Authorize(tx, tctypes.DID("did:key:zSession"), "cid-invocation", []string{"cid-root"}, tctypes.TimeBound{},
		[]tctypes.Capability{cap("kv", "notes", "tinycloud.kv/put")})
	require.Error(t, err)
	assert.Equal(t, tcerr.UnauthorizedCapability, tcerr.KindOf(err))
}
