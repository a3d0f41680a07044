package metadb

import "github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"

// InsertRevocation records a revocation event, idempotent on id.
func (t *Tx) InsertRevocation(id string, revoker tctypes.DID, revoked string, serialization []byte) error {
	_, err := t.tx.Exec(`
		INSERT INTO revocation(id, revoker, revoked, serialization)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, string(revoker.WithoutFragment()), revoked, serialization,
	)
	return wrapExec(err, "insert revocation")
}
