package metadb

// schema is applied once at Open; every statement uses IF NOT EXISTS so
// repeated opens against the same file are safe. Table names and columns
// mirror spec.md §6's persisted-state layout.
const schema = `
CREATE TABLE IF NOT EXISTS space (
	id TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS actor (
	id TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS delegation (
	id TEXT PRIMARY KEY,
	delegator TEXT NOT NULL,
	delegatee TEXT NOT NULL,
	iat INTEGER,
	nbf INTEGER,
	exp INTEGER,
	serialization BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_delegation_delegator ON delegation(delegator);
CREATE INDEX IF NOT EXISTS idx_delegation_delegatee ON delegation(delegatee);

CREATE TABLE IF NOT EXISTS abilities (
	delegation TEXT NOT NULL REFERENCES delegation(id),
	resource TEXT NOT NULL,
	ability TEXT NOT NULL,
	caveats TEXT,
	PRIMARY KEY (delegation, resource, ability)
);

CREATE TABLE IF NOT EXISTS parent_delegations (
	child TEXT NOT NULL REFERENCES delegation(id),
	parent TEXT NOT NULL REFERENCES delegation(id),
	PRIMARY KEY (child, parent)
);

CREATE TABLE IF NOT EXISTS revocation (
	id TEXT PRIMARY KEY,
	revoker TEXT NOT NULL,
	revoked TEXT NOT NULL REFERENCES delegation(id),
	serialization BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_revocation_revoked ON revocation(revoked);

CREATE TABLE IF NOT EXISTS invocation (
	id TEXT PRIMARY KEY,
	invoker TEXT NOT NULL,
	serialization BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS kv_write (
	space TEXT NOT NULL REFERENCES space(id),
	key TEXT NOT NULL,
	seq INTEGER NOT NULL,
	epoch TEXT NOT NULL,
	epoch_seq INTEGER NOT NULL,
	value BLOB NOT NULL,
	metadata TEXT,
	deleted INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (space, key, seq, epoch, epoch_seq)
);
CREATE INDEX IF NOT EXISTS idx_kv_write_lookup ON kv_write(space, key, seq DESC, epoch_seq DESC);

CREATE TABLE IF NOT EXISTS kv_delete (
	invocation_id TEXT NOT NULL REFERENCES invocation(id),
	space TEXT NOT NULL,
	key TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS epoch (
	id TEXT PRIMARY KEY,
	space TEXT NOT NULL REFERENCES space(id),
	seq INTEGER NOT NULL,
	UNIQUE (space, seq)
);

CREATE TABLE IF NOT EXISTS epoch_order (
	space TEXT NOT NULL,
	parent TEXT NOT NULL,
	child TEXT NOT NULL REFERENCES epoch(id),
	PRIMARY KEY (space, parent, child)
);

CREATE TABLE IF NOT EXISTS event_order (
	space TEXT NOT NULL,
	epoch TEXT NOT NULL REFERENCES epoch(id),
	epoch_seq INTEGER NOT NULL,
	event TEXT NOT NULL,
	seq INTEGER NOT NULL,
	PRIMARY KEY (space, epoch, epoch_seq)
);
`
