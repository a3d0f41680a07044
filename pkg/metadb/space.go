package metadb

import (
	"database/sql"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// SpaceExists reports whether a space row has been created.
func (t *Tx) SpaceExists(space tctypes.SpaceID) (bool, error) {
	var id string
	err := t.tx.QueryRow(`SELECT id FROM space WHERE id = ?`, string(space)).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrapExec(err, "check space existence")
	}
	return true, nil
}

// CreateSpace inserts a space row if absent (idempotent).
func (t *Tx) CreateSpace(space tctypes.SpaceID) error {
	_, err := t.tx.Exec(`INSERT INTO space(id) VALUES (?) ON CONFLICT(id) DO NOTHING`, string(space))
	return wrapExec(err, "create space")
}

// CountSpaces reports the total number of hosted spaces, for metrics.
func (t *Tx) CountSpaces() (int64, error) {
	var n int64
	if err := t.tx.QueryRow(`SELECT COUNT(*) FROM space`).Scan(&n); err != nil {
		return 0, wrapExec(err, "count spaces")
	}
	return n, nil
}

// UpsertActor records a DID as a known actor (idempotent).
func (t *Tx) UpsertActor(did tctypes.DID) error {
	_, err := t.tx.Exec(`INSERT INTO actor(id) VALUES (?) ON CONFLICT(id) DO NOTHING`, string(did.WithoutFragment()))
	return wrapExec(err, "upsert actor")
}
