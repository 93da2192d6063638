package catalog

import "strings"

// Filter selects tables by schema and table name. A nil name slice selects
// everything at that level; an empty non-nil slice selects nothing. Tables
// flagged meta.ignore are excluded unless tableNames names them explicitly.
//
// With stratify, tables are interleaved across schemas round-robin
// (schema0.t0, schema1.t0, ..., schema0.t1, ...) so that concurrent
// dispatch spreads load across source systems.
func (w *Warehouse) Filter(schemaNames, tableNames []string, stratify bool) []*Table {
	var wantSchema = nameSet(schemaNames)
	var wantTable = nameSet(tableNames)

	var perSchema [][]*Table
	for _, schema := range w.Schemas() {
		if wantSchema != nil && !wantSchema[strings.ToLower(schema.Name)] {
			continue
		}
		var tables []*Table
		for _, table := range schema.Tables() {
			if wantTable != nil {
				if !wantTable[strings.ToLower(table.Name)] {
					continue
				}
			} else if table.Meta.Ignore {
				continue
			}
			tables = append(tables, table)
		}
		perSchema = append(perSchema, tables)
	}

	var out = []*Table{}
	if stratify {
		for i := 0; ; i++ {
			var found = false
			for _, tables := range perSchema {
				if i < len(tables) {
					out = append(out, tables[i])
					found = true
				}
			}
			if !found {
				return out
			}
		}
	}
	for _, tables := range perSchema {
		out = append(out, tables...)
	}
	return out
}

// nameSet lowercases a name filter; it keeps the nil/empty distinction.
func nameSet(names []string) map[string]bool {
	if names == nil {
		return nil
	}
	var set = make(map[string]bool, len(names))
	for _, name := range names {
		set[strings.ToLower(name)] = true
	}
	return set
}
