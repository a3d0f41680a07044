package metadb

import (
	"database/sql"
	"strings"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// KVWriteRow is the latest write record for a (space, key) pair.
type KVWriteRow struct {
	Value    tctypes.Hash
	Metadata string
	Seq      int64
	Epoch    string
	EpochSeq int
	Deleted  bool
}

// InsertKVWrite inserts one kv_write row as part of the current epoch's
// commit.
func (t *Tx) InsertKVWrite(space tctypes.SpaceID, key string, value tctypes.Hash, metadata string, seq int64, epoch string, epochSeq int, deleted bool) error {
	_, err := t.tx.Exec(`
		INSERT INTO kv_write(space, key, seq, epoch, epoch_seq, value, metadata, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(space), key, seq, epoch, epochSeq, value.Bytes(), metadata, boolToInt(deleted),
	)
	return wrapExec(err, "insert kv write")
}

// LatestKVWrite returns the current value for (space, key): the
// write with the lexicographically greatest (seq, epoch_seq) — spec.md §3's "latest by (seq, epoch, epoch_seq)
// lexicographic max". A key whose latest write is a delete, or that was
// never written, yields ok=false.
func (t *Tx) LatestKVWrite(space tctypes.SpaceID, key string) (*KVWriteRow, bool, error) {
	var row KVWriteRow
	var deleted int
	var metadata sql.NullString
	var value []byte
	err := t.tx.QueryRow(`
		SELECT value, metadata, seq, epoch, epoch_seq, deleted
		FROM kv_write
		WHERE space = ? AND key = ?
		ORDER BY seq DESC, epoch_seq DESC
		LIMIT 1`, string(space), key,
	).Scan(&value, &metadata, &row.Seq, &row.Epoch, &row.EpochSeq, &deleted)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapExec(err, "load latest kv write")
	}
	if deleted != 0 {
		return nil, false, nil
	}
	copy(row.Value[:], value)
	row.Metadata = metadata.String
	row.Deleted = false
	return &row, true, nil
}

// ListKVKeys returns every distinct, non-deleted key in space whose
// latest write has the given path prefix (empty prefix matches all),
// spec.md §4.6 kv/list.
func (t *Tx) ListKVKeys(space tctypes.SpaceID, prefix string) ([]string, error) {
	rows, err := t.tx.Query(`
		SELECT key FROM (
			SELECT key, deleted,
			       ROW_NUMBER() OVER (PARTITION BY key ORDER BY seq DESC, epoch_seq DESC) AS rn
			FROM kv_write
			WHERE space = ?
		)
		WHERE rn = 1 AND deleted = 0`, string(space))
	if err != nil {
		return nil, wrapExec(err, "list kv keys")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, wrapExec(err, "scan kv key")
		}
		if prefix == "" || strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	return out, wrapExec(rows.Err(), "iterate kv keys")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
