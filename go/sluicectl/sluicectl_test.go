package sluicectl

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sluicedata/sluice/go/catalog"
)

const selectionFixtureDoc = `schema0:
  orders: {column0: varchar}
  orders_archive: {column0: varchar}
  shipments: {column0: varchar}
`

func selectionWarehouse(t *testing.T) *catalog.Warehouse {
	t.Helper()
	var warehouse, err = catalog.Load([]byte(selectionFixtureDoc))
	require.NoError(t, err)
	return warehouse
}

func tableNames(tables []*catalog.Table) []string {
	var names = make([]string, len(tables))
	for i, table := range tables {
		names[i] = table.Name
	}
	return names
}

func TestSelectionPrefixMatch(t *testing.T) {
	var warehouse = selectionWarehouse(t)
	var sel = selection{Prefix: "orders", PrefixFilter: "match"}
	require.Equal(t, []string{"orders", "orders_archive"}, tableNames(sel.tables(warehouse)))
}

func TestSelectionPrefixBefore(t *testing.T) {
	var warehouse = selectionWarehouse(t)
	var sel = selection{Prefix: "orders_archive", PrefixFilter: "before"}
	require.Equal(t, []string{"orders"}, tableNames(sel.tables(warehouse)))
}

func TestSelectionPrefixAfter(t *testing.T) {
	var warehouse = selectionWarehouse(t)
	var sel = selection{Prefix: "orders_archive", PrefixFilter: "after"}
	require.Equal(t, []string{"shipments"}, tableNames(sel.tables(warehouse)))
}

func TestSelectionByName(t *testing.T) {
	var warehouse = selectionWarehouse(t)
	var sel = selection{Tables: []string{"shipments"}}
	require.Equal(t, []string{"shipments"}, tableNames(sel.tables(warehouse)))
}

func TestLineWindow(t *testing.T) {
	var lines = []string{"a", "b", "c", "d"}
	require.Equal(t, []string{"a", "b"}, lineWindow(lines, 1, 2))
	require.Equal(t, []string{"c", "d"}, lineWindow(lines, 3, 10))
	require.Nil(t, lineWindow(lines, 5, 2))
	require.Equal(t, []string{"a"}, lineWindow(lines, 0, 1))
}

func TestWindowOptions(t *testing.T) {
	var w = window{Start: "2024-01-01", End: "2024-01-02", Limit: 5}
	var opts = w.options()
	require.Equal(t, "2024-01-01", opts.Start)
	require.Equal(t, 5, opts.Limit)
	require.Equal(t, 1, opts.Batches)
}
