/*
Package sqlsvc implements the SQL sub-service authorizer policy summarized
in spec.md §9: a per-statement allowlist gating what a `tinycloud.sql/*`
invocation may do against its space's embedded SQL engine, layered under
the same capability/caveat envelope as KV.

modernc.org/sqlite (the pure-Go driver the rest of this module already
uses, via pkg/metadb) exposes no equivalent of SQLite's native
sqlite3_set_authorizer hook through database/sql, so Authorize classifies
a statement's text before it ever reaches the driver rather than vetting
it action-by-action during execution. This is coarser than the
hook-driven original (it cannot see every column reference inside a
subquery, and trusts SQLite itself to reject unknown functions), but it
enforces the same boundary that actually matters here: no ATTACH, no DDL
or write outside the invocation's ability, and no table outside its
caveats.
*/
package sqlsvc

import (
	"regexp"
	"strings"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

type kind int

const (
	kindUnknown kind = iota
	kindSelect
	kindInsert
	kindUpdate
	kindDelete
	kindDDL
	kindPragma
	kindAttach
	kindTransaction
)

// statement is the result of a best-effort classification of one SQL
// text — enough to apply the allowlist, not a general-purpose parse.
type statement struct {
	kind    kind
	tables  []string
	pragma  string
}

var (
	insertRe  = regexp.MustCompile(`(?is)^\s*insert\s+(?:or\s+\w+\s+)?into\s+"?'?\[?([\w.]+)\]?'?"?`)
	deleteRe  = regexp.MustCompile(`(?is)^\s*delete\s+from\s+"?'?\[?([\w.]+)\]?'?"?`)
	updateRe  = regexp.MustCompile(`(?is)^\s*update\s+(?:or\s+\w+\s+)?"?'?\[?([\w.]+)\]?'?"?`)
	createRe  = regexp.MustCompile(`(?is)^\s*create\s+(?:temp(?:orary)?\s+)?(table|index|trigger|view)\b`)
	dropRe    = regexp.MustCompile(`(?is)^\s*drop\s+(?:temp(?:orary)?\s+)?(table|index|trigger|view)\b`)
	alterRe   = regexp.MustCompile(`(?is)^\s*alter\s+table\b`)
	pragmaRe  = regexp.MustCompile(`(?is)^\s*pragma\s+([\w.]+)`)
	attachRe  = regexp.MustCompile(`(?is)^\s*(attach|detach)\b`)
	selectRe  = regexp.MustCompile(`(?is)^\s*(select|with)\b`)
	txnRe     = regexp.MustCompile(`(?is)^\s*(begin|commit|end|rollback|savepoint|release)\b`)
	fromRe    = regexp.MustCompile(`(?is)\b(?:from|join)\s+"?'?\[?([\w.]+)\]?'?"?`)
)

var readonlyPragmas = map[string]bool{
	"table_info":       true,
	"table_list":       true,
	"table_xinfo":      true,
	"database_list":    true,
	"index_list":       true,
	"index_info":       true,
	"foreign_key_list": true,
}

func classify(sql string) statement {
	if attachRe.MatchString(sql) {
		return statement{kind: kindAttach}
	}
	if m := pragmaRe.FindStringSubmatch(sql); m != nil {
		return statement{kind: kindPragma, pragma: m[1]}
	}
	if m := insertRe.FindStringSubmatch(sql); m != nil {
		return statement{kind: kindInsert, tables: []string{m[1]}}
	}
	if m := deleteRe.FindStringSubmatch(sql); m != nil {
		return statement{kind: kindDelete, tables: []string{m[1]}}
	}
	if m := updateRe.FindStringSubmatch(sql); m != nil {
		return statement{kind: kindUpdate, tables: []string{m[1]}}
	}
	if createRe.MatchString(sql) || dropRe.MatchString(sql) || alterRe.MatchString(sql) {
		return statement{kind: kindDDL}
	}
	if selectRe.MatchString(sql) {
		return statement{kind: kindSelect, tables: fromTables(sql)}
	}
	if txnRe.MatchString(sql) {
		return statement{kind: kindTransaction}
	}
	return statement{kind: kindUnknown}
}

// fromTables collects every table named after a FROM or JOIN keyword at
// the top level of a SELECT. It does not descend into subquery text
// beyond what the regex happens to also match there — a nested SELECT
// referencing a forbidden table is still caught, a table hidden behind a
// derived-table alias may not be.
func fromTables(sql string) []string {
	matches := fromRe.FindAllStringSubmatch(sql, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func isAdmin(ability tctypes.Ability) bool {
	return ability == tctypes.AbilitySQLAdmin || ability == tctypes.AbilitySQLWildcard
}

func isWriteCapable(ability tctypes.Ability) bool {
	return ability == tctypes.AbilitySQLWrite || isAdmin(ability)
}

func deny(reason string) error {
	return tcerr.New(tcerr.UnauthorizedCapability, "sql statement denied: %s", reason)
}

// Authorize classifies sql and decides whether ability, constrained by
// caveats, may execute it. A statement Authorize cannot confidently
// classify is denied — spec.md §9's authorizer denies everything it
// doesn't explicitly allow.
func Authorize(ability tctypes.Ability, caveats *Caveats, sql string) error {
	stmt := classify(strings.TrimSpace(sql))

	switch stmt.kind {
	case kindAttach:
		return deny("ATTACH/DETACH is never permitted")

	case kindPragma:
		if isAdmin(ability) || readonlyPragmas[strings.ToLower(stmt.pragma)] {
			return nil
		}
		return deny("pragma " + stmt.pragma + " is not on the read-only allowlist")

	case kindTransaction:
		return nil

	case kindSelect:
		for _, t := range stmt.tables {
			if !caveats.tableAllowed(t) {
				return deny("table " + t + " is outside this delegation's caveats")
			}
		}
		return nil

	case kindInsert, kindDelete:
		if !isWriteCapable(ability) {
			return deny("ability " + string(ability) + " does not permit writes")
		}
		if !caveats.writeAllowed() {
			return deny("caveats mark this delegation read-only")
		}
		for _, t := range stmt.tables {
			if !caveats.tableAllowed(t) {
				return deny("table " + t + " is outside this delegation's caveats")
			}
		}
		return nil

	case kindUpdate:
		if !isWriteCapable(ability) {
			return deny("ability " + string(ability) + " does not permit writes")
		}
		if !caveats.writeAllowed() {
			return deny("caveats mark this delegation read-only")
		}
		for _, t := range stmt.tables {
			if !caveats.tableAllowed(t) {
				return deny("table " + t + " is outside this delegation's caveats")
			}
		}
		return nil

	case kindDDL:
		if !isAdmin(ability) && ability != tctypes.AbilitySQLWrite {
			return deny("DDL requires tinycloud.sql/write or tinycloud.sql/admin")
		}
		return nil

	default:
		return deny("statement could not be classified")
	}
}
