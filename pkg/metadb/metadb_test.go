package metadb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSpaceCreateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	space := tctypes.SpaceID("tinycloud:pkh:eip155:1:0xAAAA:default")

	tx, err := db.Begin(ctx)
	require.NoError(t, err)

	exists, err := tx.SpaceExists(space)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, tx.CreateSpace(space))
	require.NoError(t, tx.CreateSpace(space))

	exists, err = tx.SpaceExists(space)
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, tx.Commit())
}

func TestDelegationRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, err := db.Begin(ctx)
	require.NoError(t, err)

	nbf := time.Now().Add(-time.Hour).Truncate(time.Second)
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	row := DelegationRow{
		ID:        "bafy-delegation-1",
		Delegator: "did:pkh:eip155:1:0xAAAA",
		Delegatee: "did:key:zSession#zSession",
		TimeBound: tctypes.TimeBound{NotBefore: &nbf, Expiry: &exp},
	}
	require.NoError(t, tx.InsertDelegation(row))
	require.NoError(t, tx.InsertAbility(row.ID, "tinycloud:pkh:eip155:1:0xAAAA:default/kv/notes", "tinycloud.kv/put", "[]"))

	loaded, ok, err := tx.GetDelegation(row.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, row.Delegator, loaded.Delegator)
	// Delegatee is stored fragment-stripped per spec.md §4.4.
	assert.Equal(t, tctypes.DID("did:key:zSession"), loaded.Delegatee)
	require.NotNil(t, loaded.TimeBound.NotBefore)
	assert.Equal(t, nbf.Unix(), loaded.TimeBound.NotBefore.Unix())
	require.NotNil(t, loaded.TimeBound.Expiry)
	assert.Equal(t, exp.Unix(), loaded.TimeBound.Expiry.Unix())

	abilities, err := tx.GetAbilities(row.ID)
	require.NoError(t, err)
	require.Len(t, abilities, 1)
	assert.Equal(t, "tinycloud.kv/put", abilities[0].Ability)

	revoked, err := tx.IsRevoked(row.ID)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, tx.InsertRevocation("bafy-revocation-1", "did:pkh:eip155:1:0xAAAA", row.ID, []byte("cbor-bytes")))
	revoked, err = tx.IsRevoked(row.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	require.NoError(t, tx.Commit())
}

func TestInsertDelegationIsIdempotentOnConflict(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tx, err := db.Begin(ctx)
	require.NoError(t, err)

	row := DelegationRow{ID: "bafy-1", Delegator: "did:key:zA", Delegatee: "did:key:zB"}
	require.NoError(t, tx.InsertDelegation(row))
	require.NoError(t, tx.InsertDelegation(row))

	require.NoError(t, tx.Commit())
}

func TestKVWriteLatestWinsOverOlder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tx, err := db.Begin(ctx)
	require.NoError(t, err)

	space := tctypes.SpaceID("tinycloud:pkh:eip155:1:0xAAAA:default")
	require.NoError(t, tx.CreateSpace(space))

	h1 := tctypes.SumBlake3([]byte("v1"))
	h2 := tctypes.SumBlake3([]byte("v2"))
	require.NoError(t, tx.InsertKVWrite(space, "notes", h1, "", 1, "epoch-1", 0, false))
	require.NoError(t, tx.InsertKVWrite(space, "notes", h2, "", 2, "epoch-2", 0, false))

	latest, ok, err := tx.LatestKVWrite(space, "notes")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, h2, latest.Value)

	require.NoError(t, tx.Commit())
}

func TestKVWriteGetAfterDeleteReturnsNothing(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tx, err := db.Begin(ctx)
	require.NoError(t, err)

	space := tctypes.SpaceID("tinycloud:pkh:eip155:1:0xAAAA:default")
	require.NoError(t, tx.CreateSpace(space))

	h1 := tctypes.SumBlake3([]byte("v1"))
	require.NoError(t, tx.InsertKVWrite(space, "notes", h1, "", 1, "epoch-1", 0, false))
	require.NoError(t, tx.InsertKVWrite(space, "notes", tctypes.Hash{}, "", 2, "epoch-2", 0, true))

	_, ok, err := tx.LatestKVWrite(space, "notes")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := tx.ListKVKeys(space, "")
	require.NoError(t, err)
	assert.NotContains(t, keys, "notes")

	require.NoError(t, tx.Commit())
}

func TestEpochTipsAndSeqAssignment(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tx, err := db.Begin(ctx)
	require.NoError(t, err)

	space := tctypes.SpaceID("tinycloud:pkh:eip155:1:0xAAAA:default")
	require.NoError(t, tx.CreateSpace(space))

	tips, err := tx.TipEpochs(space)
	require.NoError(t, err)
	assert.Empty(t, tips)

	maxSeq, err := tx.MaxSeq(space)
	require.NoError(t, err)
	assert.Equal(t, int64(0), maxSeq)

	require.NoError(t, tx.InsertEpoch("epoch-1", space, 1))
	require.NoError(t, tx.InsertEventOrder(space, "epoch-1", 0, "event-1", 1))

	tips, err = tx.TipEpochs(space)
	require.NoError(t, err)
	assert.Equal(t, []string{"epoch-1"}, tips)

	require.NoError(t, tx.InsertEpoch("epoch-2", space, 2))
	require.NoError(t, tx.InsertEpochOrder(space, "epoch-1", "epoch-2"))

	tips, err = tx.TipEpochs(space)
	require.NoError(t, err)
	assert.Equal(t, []string{"epoch-2"}, tips)

	maxSeq, err = tx.MaxSeq(space)
	require.NoError(t, err)
	assert.Equal(t, int64(2), maxSeq)

	require.NoError(t, tx.Commit())
}
