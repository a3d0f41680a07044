package metadb

import (
	"database/sql"
	"time"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// DelegationRow is a persisted delegation event, without its capabilities
// (fetched separately via GetAbilities — spec.md §6 normalizes them into
// the abilities table).
type DelegationRow struct {
	ID            string
	Delegator     tctypes.DID
	Delegatee     tctypes.DID
	IssuedAt      *time.Time
	TimeBound     tctypes.TimeBound
	Serialization []byte
}

// AbilityRow is one row of the abilities table, joined to a delegation.
type AbilityRow struct {
	Resource string
	Ability  string
	Caveats  string
}

func toUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}

// InsertDelegation inserts a delegation row, ON CONFLICT DO NOTHING on id
// so byte-identical resubmission is a no-op (spec.md §3 invariant 6).
func (t *Tx) InsertDelegation(row DelegationRow) error {
	_, err := t.tx.Exec(`
		INSERT INTO delegation(id, delegator, delegatee, iat, nbf, exp, serialization)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		row.ID, string(row.Delegator.WithoutFragment()), string(row.Delegatee.WithoutFragment()),
		toUnix(row.IssuedAt), toUnix(row.TimeBound.NotBefore), toUnix(row.TimeBound.Expiry),
		row.Serialization,
	)
	return wrapExec(err, "insert delegation")
}

// InsertAbility inserts one (delegation, resource, ability) row.
func (t *Tx) InsertAbility(delegationID, resource, ability, caveats string) error {
	_, err := t.tx.Exec(`
		INSERT INTO abilities(delegation, resource, ability, caveats)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(delegation, resource, ability) DO NOTHING`,
		delegationID, resource, ability, caveats,
	)
	return wrapExec(err, "insert ability")
}

// InsertParentEdge records that child's delegation cites parent among its
// proofs.
func (t *Tx) InsertParentEdge(child, parent string) error {
	_, err := t.tx.Exec(`
		INSERT INTO parent_delegations(child, parent) VALUES (?, ?)
		ON CONFLICT(child, parent) DO NOTHING`,
		child, parent,
	)
	return wrapExec(err, "insert parent edge")
}

// GetDelegation loads a delegation row by CID. ok is false if absent.
func (t *Tx) GetDelegation(id string) (*DelegationRow, bool, error) {
	var row DelegationRow
	var delegator, delegatee string
	var iat, nbf, exp sql.NullInt64
	err := t.tx.QueryRow(`
		SELECT id, delegator, delegatee, iat, nbf, exp, serialization
		FROM delegation WHERE id = ?`, id,
	).Scan(&row.ID, &delegator, &delegatee, &iat, &nbf, &exp, &row.Serialization)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapExec(err, "load delegation")
	}
	row.Delegator = tctypes.DID(delegator)
	row.Delegatee = tctypes.DID(delegatee)
	row.IssuedAt = fromUnix(iat)
	row.TimeBound = tctypes.TimeBound{NotBefore: fromUnix(nbf), Expiry: fromUnix(exp)}
	return &row, true, nil
}

// GetAbilities loads every capability row attached to a delegation.
func (t *Tx) GetAbilities(delegationID string) ([]AbilityRow, error) {
	rows, err := t.tx.Query(`SELECT resource, ability, caveats FROM abilities WHERE delegation = ?`, delegationID)
	if err != nil {
		return nil, wrapExec(err, "load abilities")
	}
	defer rows.Close()

	var out []AbilityRow
	for rows.Next() {
		var a AbilityRow
		var caveats sql.NullString
		if err := rows.Scan(&a.Resource, &a.Ability, &caveats); err != nil {
			return nil, wrapExec(err, "scan ability")
		}
		a.Caveats = caveats.String
		out = append(out, a)
	}
	return out, wrapExec(rows.Err(), "iterate abilities")
}

// GetParents returns the CIDs of child's declared parent delegations.
func (t *Tx) GetParents(childID string) ([]string, error) {
	rows, err := t.tx.Query(`SELECT parent FROM parent_delegations WHERE child = ?`, childID)
	if err != nil {
		return nil, wrapExec(err, "load parent edges")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, wrapExec(err, "scan parent edge")
		}
		out = append(out, p)
	}
	return out, wrapExec(rows.Err(), "iterate parent edges")
}

// IsRevoked reports whether any revocation row names delegationID.
func (t *Tx) IsRevoked(delegationID string) (bool, error) {
	var id string
	err := t.tx.QueryRow(`SELECT id FROM revocation WHERE revoked = ? LIMIT 1`, delegationID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrapExec(err, "check revocation")
	}
	return true, nil
}

// DelegatorOf returns the delegator DID of a delegation, used to walk
// delegatee→delegator chains when resolving an invoker's root PKH DID
// (spec.md §4.7, §9).
func (t *Tx) DelegatorOf(delegationID string) (tctypes.DID, bool, error) {
	var delegator string
	err := t.tx.QueryRow(`SELECT delegator FROM delegation WHERE id = ?`, delegationID).Scan(&delegator)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapExec(err, "load delegator")
	}
	return tctypes.DID(delegator), true, nil
}

// DelegationsByDelegatee finds every delegation whose delegatee equals
// did (after fragment-stripping), used by the Delegation Validator to
// find candidate parents by delegatee match (spec.md §4.4 step 3).
func (t *Tx) DelegationsByDelegatee(did tctypes.DID) ([]string, error) {
	rows, err := t.tx.Query(`SELECT id FROM delegation WHERE delegatee = ?`, string(did.WithoutFragment()))
	if err != nil {
		return nil, wrapExec(err, "load delegations by delegatee")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapExec(err, "scan delegation id")
		}
		out = append(out, id)
	}
	return out, wrapExec(rows.Err(), "iterate delegations by delegatee")
}

// DelegationsByActor finds every delegation where did is the delegator
// (direction "created") or the delegatee (direction "received") — spec.md
// §4.7.
func (t *Tx) DelegationsByActor(did tctypes.DID, asDelegator bool) ([]string, error) {
	column := "delegatee"
	if asDelegator {
		column = "delegator"
	}
	rows, err := t.tx.Query(`SELECT id FROM delegation WHERE `+column+` = ?`, string(did.WithoutFragment()))
	if err != nil {
		return nil, wrapExec(err, "load delegations by actor")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapExec(err, "scan delegation id")
		}
		out = append(out, id)
	}
	return out, wrapExec(rows.Err(), "iterate delegations by actor")
}
