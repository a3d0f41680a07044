package sqlsvc

import "strings"

// Caveats narrows what a tinycloud.sql/* invocation may touch, carried in
// the delegation's `fct` facts the same way kv caveats are — spec.md §9's
// "SQL sub-service authorization override" open question. A nil Caveats
// means unrestricted (subject still to the ability gate in Authorize).
type Caveats struct {
	// Tables restricts statements to this table list. Nil permits any.
	Tables []string
	// Columns lists the columns an UPDATE may assign. Authorize does not
	// check statements against it: UPDATE column lists are not parsed.
	Columns []string
	// ReadOnly forbids INSERT/UPDATE/DELETE even if the ability would
	// otherwise allow them. Nil is equivalent to false.
	ReadOnly *bool
}

func (c *Caveats) tableAllowed(table string) bool {
	if c == nil || c.Tables == nil {
		return true
	}
	for _, t := range c.Tables {
		if strings.EqualFold(t, table) {
			return true
		}
	}
	return false
}

func (c *Caveats) columnAllowed(column string) bool {
	if c == nil || c.Columns == nil {
		return true
	}
	for _, col := range c.Columns {
		if strings.EqualFold(col, column) {
			return true
		}
	}
	return false
}

func (c *Caveats) writeAllowed() bool {
	if c == nil || c.ReadOnly == nil {
		return true
	}
	return !*c.ReadOnly
}
