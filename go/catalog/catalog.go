// Package catalog models a data warehouse as a graph of schemas, tables and
// columns, loaded from (and round-tripped to) a declarative YAML document.
// The catalog is read-mostly: once loaded it may be shared by reference
// across workers, and is mutated only through the explicit add/drop methods
// of the owning parent.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sluicedata/sluice/go/config"
)

var (
	// ErrParse reports a malformed catalog document or an unknown option key.
	ErrParse = errors.New("catalog parse error")
	// ErrSchemaNotFound reports a lookup of an undeclared schema.
	ErrSchemaNotFound = errors.New("schema not found")
	// ErrTableNotFound reports a lookup of an undeclared table.
	ErrTableNotFound = errors.New("table not found")
)

// orderedMap is a map which preserves insertion order. Iteration order of
// schemas, tables and columns is load-bearing: it defines stage column order
// and the COPY projection list.
type orderedMap[T any] struct {
	keys []string
	m    map[string]T
}

func (o *orderedMap[T]) set(key string, value T) {
	if o.m == nil {
		o.m = make(map[string]T)
	}
	if _, ok := o.m[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.m[key] = value
}

func (o *orderedMap[T]) get(key string) (T, bool) {
	v, ok := o.m[key]
	return v, ok
}

func (o *orderedMap[T]) delete(key string) bool {
	if _, ok := o.m[key]; !ok {
		return false
	}
	delete(o.m, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

func (o *orderedMap[T]) len() int { return len(o.keys) }

// Column is a single declared column. Identity is the name within its table.
type Column struct {
	Name        string
	Dtype       string
	Description string
	Source      string
	Meta        map[string]interface{}
	Tests       []interface{}
}

// NewColumn builds a column with its dtype normalized to lowercase.
func NewColumn(name, dtype string) *Column {
	return &Column{Name: name, Dtype: strings.ToLower(dtype)}
}

// Table is one declared warehouse table with its ingestion policy and
// ordered columns. It references its owning Schema weakly.
type Table struct {
	Name        string
	Description string
	Meta        TableMeta

	schema  *Schema
	columns orderedMap[*Column]
}

// Schema returns the owning schema.
func (t *Table) Schema() *Schema { return t.schema }

// SchemaName returns the owning schema's name.
func (t *Table) SchemaName() string { return t.schema.Name }

// DatabaseName returns the database of the owning warehouse.
func (t *Table) DatabaseName() string { return t.schema.warehouse.DatabaseName() }

// URI is the fully qualified database.schema.table identifier.
func (t *Table) URI() string {
	return fmt.Sprintf("%s.%s.%s", t.DatabaseName(), t.SchemaName(), t.Name)
}

// Columns returns the columns in declaration order.
func (t *Table) Columns() []*Column {
	var out = make([]*Column, 0, t.columns.len())
	for _, name := range t.columns.keys {
		out = append(out, t.columns.m[name])
	}
	return out
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	return append([]string(nil), t.columns.keys...)
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	return t.columns.get(name)
}

// AddColumn appends or replaces a column.
func (t *Table) AddColumn(col *Column) {
	col.Dtype = strings.ToLower(col.Dtype)
	t.columns.set(col.Name, col)
}

// DropColumn removes a column by name.
func (t *Table) DropColumn(name string) bool { return t.columns.delete(name) }

// Schema is a named group of tables owned by a Warehouse.
type Schema struct {
	Name        string
	Description string
	Meta        map[string]interface{}

	warehouse *Warehouse
	tables    orderedMap[*Table]
}

// Warehouse returns the owning warehouse.
func (s *Schema) Warehouse() *Warehouse { return s.warehouse }

// Tables returns the tables in declaration order.
func (s *Schema) Tables() []*Table {
	var out = make([]*Table, 0, s.tables.len())
	for _, name := range s.tables.keys {
		out = append(out, s.tables.m[name])
	}
	return out
}

// Table looks up a table by name.
func (s *Schema) Table(name string) (*Table, error) {
	if table, ok := s.tables.get(name); ok {
		return table, nil
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrTableNotFound, s.Name, name)
}

// AddTable attaches a table to this schema, replacing any previous table of
// the same name.
func (s *Schema) AddTable(table *Table) {
	table.schema = s
	s.tables.set(table.Name, table)
}

// DropTable removes a table by name.
func (s *Schema) DropTable(name string) bool { return s.tables.delete(name) }

// Warehouse is the root of the catalog graph.
type Warehouse struct {
	// SourceFile is the path the catalog was loaded from, when known.
	SourceFile string

	schemas orderedMap[*Schema]
}

// DatabaseName is derived from the active environment, never serialized.
func (w *Warehouse) DatabaseName() string { return config.DatabaseName() }

// Schemas returns the schemas in declaration order.
func (w *Warehouse) Schemas() []*Schema {
	var out = make([]*Schema, 0, w.schemas.len())
	for _, name := range w.schemas.keys {
		out = append(out, w.schemas.m[name])
	}
	return out
}

// Schema looks up a schema by name.
func (w *Warehouse) Schema(name string) (*Schema, error) {
	if schema, ok := w.schemas.get(name); ok {
		return schema, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
}

// Table resolves a schema-qualified table.
func (w *Warehouse) Table(schemaName, tableName string) (*Table, error) {
	var schema, err = w.Schema(schemaName)
	if err != nil {
		return nil, err
	}
	return schema.Table(tableName)
}

// AddSchema attaches a schema, replacing any previous schema of the same name.
func (w *Warehouse) AddSchema(schema *Schema) {
	schema.warehouse = w
	w.schemas.set(schema.Name, schema)
}

// DropSchema removes a schema by name.
func (w *Warehouse) DropSchema(name string) bool { return w.schemas.delete(name) }
