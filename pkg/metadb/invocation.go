package metadb

import "github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"

// InsertInvocation records an invocation event, idempotent on id.
func (t *Tx) InsertInvocation(id string, invoker tctypes.DID, serialization []byte) error {
	_, err := t.tx.Exec(`
		INSERT INTO invocation(id, invoker, serialization)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, string(invoker.WithoutFragment()), serialization,
	)
	return wrapExec(err, "insert invocation")
}

// InsertKVDelete records that invocationID deleted (space, key), so a
// later capabilities/read or audit trail can find which invocation
// performed a given delete.
func (t *Tx) InsertKVDelete(invocationID string, space tctypes.SpaceID, key string) error {
	_, err := t.tx.Exec(`
		INSERT INTO kv_delete(invocation_id, space, key) VALUES (?, ?, ?)`,
		invocationID, string(space), key,
	)
	return wrapExec(err, "insert kv delete")
}
