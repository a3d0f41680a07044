package metadb

import (
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// TipEpochs returns the ids of epochs in space with no child in
// epoch_order — the parents of the next epoch to be inserted, spec.md
// §4.5 step 1. A space with no prior epochs returns an empty slice.
func (t *Tx) TipEpochs(space tctypes.SpaceID) ([]string, error) {
	rows, err := t.tx.Query(`
		SELECT e.id FROM epoch e
		WHERE e.space = ?
		AND NOT EXISTS (
			SELECT 1 FROM epoch_order eo WHERE eo.space = e.space AND eo.parent = e.id
		)`, string(space))
	if err != nil {
		return nil, wrapExec(err, "load tip epochs")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapExec(err, "scan tip epoch")
		}
		out = append(out, id)
	}
	return out, wrapExec(rows.Err(), "iterate tip epochs")
}

// MaxSeq returns the highest epoch seq recorded for space, or 0 if none.
func (t *Tx) MaxSeq(space tctypes.SpaceID) (int64, error) {
	var seq *int64
	err := t.tx.QueryRow(`SELECT MAX(seq) FROM epoch WHERE space = ?`, string(space)).Scan(&seq)
	if err != nil {
		return 0, wrapExec(err, "load max epoch seq")
	}
	if seq == nil {
		return 0, nil
	}
	return *seq, nil
}

// InsertEpoch inserts the new epoch row.
func (t *Tx) InsertEpoch(id string, space tctypes.SpaceID, seq int64) error {
	_, err := t.tx.Exec(`INSERT INTO epoch(id, space, seq) VALUES (?, ?, ?)`, id, string(space), seq)
	return wrapExec(err, "insert epoch")
}

// InsertEpochOrder records a parent→child edge from a tip epoch to the
// newly inserted epoch.
func (t *Tx) InsertEpochOrder(space tctypes.SpaceID, parent, child string) error {
	_, err := t.tx.Exec(`
		INSERT INTO epoch_order(space, parent, child) VALUES (?, ?, ?)
		ON CONFLICT(space, parent, child) DO NOTHING`,
		string(space), parent, child,
	)
	return wrapExec(err, "insert epoch order")
}

// InsertEventOrder records one event's position within its epoch.
func (t *Tx) InsertEventOrder(space tctypes.SpaceID, epoch string, epochSeq int, event string, seq int64) error {
	_, err := t.tx.Exec(`
		INSERT INTO event_order(space, epoch, epoch_seq, event, seq) VALUES (?, ?, ?, ?, ?)`,
		string(space), epoch, epochSeq, event, seq,
	)
	return wrapExec(err, "insert event order")
}
