package catalog

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sluicedata/sluice/go/config"
)

// The catalog document is a two-level mapping of schema name to table name
// to table body. Key order is significant and preserved, which is why this
// file walks yaml.Node trees instead of decoding into maps.

// Load parses a catalog document.
func Load(doc []byte) (*Warehouse, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrParse, err)
	}
	var warehouse = &Warehouse{}
	if root.Kind == 0 || len(root.Content) == 0 {
		return warehouse, nil
	}
	var top = root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: document root must be a mapping", ErrParse)
	}
	for i := 0; i < len(top.Content); i += 2 {
		var schema, err = loadSchema(top.Content[i].Value, top.Content[i+1])
		if err != nil {
			return nil, err
		}
		warehouse.AddSchema(schema)
	}
	return warehouse, nil
}

// LoadFile reads the catalog document from path, or from the configured
// location when path is empty.
func LoadFile(path string) (*Warehouse, error) {
	if path == "" {
		path = config.TablesPath()
		log.WithField("path", path).Info("using table definition file")
	}
	var doc, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	warehouse, err := Load(doc)
	if err != nil {
		return nil, err
	}
	warehouse.SourceFile = path
	return warehouse, nil
}

func loadSchema(name string, node *yaml.Node) (*Schema, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: schema %q must be a mapping", ErrParse, name)
	}
	var schema = &Schema{Name: name}
	for i := 0; i < len(node.Content); i += 2 {
		var key, value = node.Content[i].Value, node.Content[i+1]
		switch key {
		case "_description":
			schema.Description = value.Value
		case "_meta":
			if err := value.Decode(&schema.Meta); err != nil {
				return nil, fmt.Errorf("%w: schema %q _meta: %s", ErrParse, name, err)
			}
		default:
			var table, err = loadTable(key, value)
			if err != nil {
				return nil, fmt.Errorf("schema %q: %w", name, err)
			}
			schema.AddTable(table)
		}
	}
	return schema, nil
}

func loadTable(name string, node *yaml.Node) (*Table, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: table %q must be a mapping", ErrParse, name)
	}
	var table = &Table{Name: name, Meta: DefaultTableMeta()}
	for i := 0; i < len(node.Content); i += 2 {
		var key, value = node.Content[i].Value, node.Content[i+1]
		switch key {
		case "_description":
			table.Description = value.Value
		case "_meta", "meta":
			if err := loadMeta(&table.Meta, value); err != nil {
				return nil, fmt.Errorf("table %q: %w", name, err)
			}
		case "columns":
			// Compatibility form: an explicit columns block.
			if value.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("%w: table %q columns must be a mapping", ErrParse, name)
			}
			for j := 0; j < len(value.Content); j += 2 {
				var col, err = loadColumn(value.Content[j].Value, value.Content[j+1])
				if err != nil {
					return nil, fmt.Errorf("table %q: %w", name, err)
				}
				table.AddColumn(col)
			}
		default:
			var col, err = loadColumn(key, value)
			if err != nil {
				return nil, fmt.Errorf("table %q: %w", name, err)
			}
			table.AddColumn(col)
		}
	}
	return table, nil
}

func loadMeta(meta *TableMeta, node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: _meta must be a mapping", ErrParse)
	}
	for i := 0; i < len(node.Content); i += 2 {
		var value interface{}
		if err := node.Content[i+1].Decode(&value); err != nil {
			return fmt.Errorf("%w: %s", ErrParse, err)
		}
		if err := meta.setOption(node.Content[i].Value, value); err != nil {
			return err
		}
	}
	return nil
}

func loadColumn(name string, node *yaml.Node) (*Column, error) {
	if node.Kind == yaml.ScalarNode {
		return NewColumn(name, node.Value), nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: column %q must be a dtype string or a mapping", ErrParse, name)
	}
	var col = &Column{Name: name}
	for i := 0; i < len(node.Content); i += 2 {
		var key, value = node.Content[i].Value, node.Content[i+1]
		switch key {
		case "dtype":
			col.Dtype = value.Value
		case "description":
			col.Description = value.Value
		case "source":
			col.Source = value.Value
		case "meta":
			if err := value.Decode(&col.Meta); err != nil {
				return nil, fmt.Errorf("%w: column %q meta: %s", ErrParse, name, err)
			}
		case "tests":
			if err := value.Decode(&col.Tests); err != nil {
				return nil, fmt.Errorf("%w: column %q tests: %s", ErrParse, name, err)
			}
		default:
			return nil, fmt.Errorf("%w: column %q has unknown key %q", ErrParse, name, key)
		}
	}
	if col.Dtype == "" {
		return nil, fmt.Errorf("%w: column %q has no dtype", ErrParse, name)
	}
	col.Dtype = strings.ToLower(col.Dtype)
	return col, nil
}

// Dump serializes the warehouse back to its document form. Defaults are
// elided and key order follows declaration order.
func Dump(warehouse *Warehouse) ([]byte, error) {
	var top = mappingNode()
	for _, schema := range warehouse.Schemas() {
		appendPair(top, schema.Name, dumpSchema(schema))
	}
	var buf bytes.Buffer
	var enc = yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(top); err != nil {
		return nil, fmt.Errorf("encoding catalog: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding catalog: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveFile writes the document to path, or back to its source location
// when path is empty.
func SaveFile(warehouse *Warehouse, path string) error {
	if path == "" {
		path = warehouse.SourceFile
	}
	if path == "" {
		path = config.TablesPath()
	}
	var doc, err = Dump(warehouse)
	if err != nil {
		return err
	}
	return os.WriteFile(path, doc, 0o644)
}

func dumpSchema(schema *Schema) *yaml.Node {
	var node = mappingNode()
	if schema.Description != "" {
		appendPair(node, "_description", scalarNode(schema.Description))
	}
	if len(schema.Meta) > 0 {
		appendPair(node, "_meta", encodeNode(schema.Meta))
	}
	for _, table := range schema.Tables() {
		appendPair(node, table.Name, dumpTable(table))
	}
	return node
}

func dumpTable(table *Table) *yaml.Node {
	var node = mappingNode()
	if table.Description != "" {
		appendPair(node, "_description", scalarNode(table.Description))
	}
	if meta := table.Meta.serialized(); len(meta) > 0 {
		var metaNode = mappingNode()
		for _, kv := range meta {
			appendPair(metaNode, kv.key, encodeNode(kv.value))
		}
		appendPair(node, "_meta", metaNode)
	}
	for _, col := range table.Columns() {
		appendPair(node, col.Name, dumpColumn(col))
	}
	return node
}

func dumpColumn(col *Column) *yaml.Node {
	if col.Description == "" && col.Source == "" && len(col.Meta) == 0 && len(col.Tests) == 0 {
		return scalarNode(col.Dtype)
	}
	var node = mappingNode()
	appendPair(node, "dtype", scalarNode(col.Dtype))
	if col.Description != "" {
		appendPair(node, "description", scalarNode(col.Description))
	}
	if col.Source != "" {
		appendPair(node, "source", scalarNode(col.Source))
	}
	if len(col.Meta) > 0 {
		appendPair(node, "meta", encodeNode(col.Meta))
	}
	if len(col.Tests) > 0 {
		appendPair(node, "tests", encodeNode(col.Tests))
	}
	return node
}

func mappingNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func scalarNode(value string) *yaml.Node {
	var node = &yaml.Node{}
	node.SetString(value)
	return node
}

func encodeNode(value interface{}) *yaml.Node {
	var node = &yaml.Node{}
	if err := node.Encode(value); err != nil {
		// Values originate from decoded YAML or plain Go literals; encoding
		// them back cannot fail.
		panic(err)
	}
	return node
}

func appendPair(mapping *yaml.Node, key string, value *yaml.Node) {
	mapping.Content = append(mapping.Content, scalarNode(key), value)
}
