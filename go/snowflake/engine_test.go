package snowflake

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sluicedata/sluice/go/catalog"
)

type fakeCursor struct {
	executed []string
	results  map[string]*Rows
}

func (c *fakeCursor) Execute(ctx context.Context, stmt string) (*Rows, error) {
	c.executed = append(c.executed, stmt)
	var verb = strings.ToLower(firstWord(stmt))
	if rows, ok := c.results[verb]; ok {
		return rows, nil
	}
	return &Rows{}, nil
}

type fakeWatermarks struct {
	values map[string]string
}

func (f *fakeWatermarks) Latest(ctx context.Context, table *catalog.Table) (string, error) {
	return f.values[table.URI()], nil
}

func (f *fakeWatermarks) SetLatest(ctx context.Context, table *catalog.Table, value string) error {
	f.values[table.URI()] = value
	return nil
}

func TestEngineLoadOverwrite(t *testing.T) {
	var gen, table = fixture(t, "table_csv_overwrite")
	var cursor = &fakeCursor{results: map[string]*Rows{
		"truncate": {Data: [][]interface{}{{"Statement executed successfully."}}},
		"copy": {Data: [][]interface{}{
			{"schema0/table_csv_overwrite/table_csv_overwrite_b00_f01.csv.gz", "LOADED", 2, 2},
		}},
		"update": {Data: [][]interface{}{{2}}},
	}}
	var engine = &Engine{Cursor: cursor, Gen: gen, Watermarks: &fakeWatermarks{values: map[string]string{}}}

	result, err := engine.Load(context.Background(), table, nil)
	require.NoError(t, err)
	require.Len(t, cursor.executed, 3)
	require.Equal(t, "TRUNCATE TABLE IF EXISTS sources_dev.schema0.table_csv_overwrite", cursor.executed[0])
	require.Contains(t, result, "truncate: Statement executed successfully.")
	require.Contains(t, result, "copy: file: schema0/table_csv_overwrite/table_csv_overwrite_b00_f01.csv.gz, status: LOADED, parsed 2, loaded 2")
	require.Contains(t, result, "update: 2 rows affected.")
}

func TestEngineLoadCopyError(t *testing.T) {
	var gen, table = fixture(t, "table_csv_overwrite")
	var cursor = &fakeCursor{results: map[string]*Rows{
		// Error results come back as single-column rows, not statement
		// failures; the load keeps going.
		"copy": {Data: [][]interface{}{{"Numeric value 'x' is not recognized"}}},
	}}
	var engine = &Engine{Cursor: cursor, Gen: gen, Watermarks: &fakeWatermarks{values: map[string]string{}}}

	result, err := engine.Load(context.Background(), table, nil)
	require.NoError(t, err)
	require.Contains(t, result, "copy: Numeric value 'x' is not recognized")
}

func TestEngineLoadUpdatesWatermark(t *testing.T) {
	var gen, table = fixture(t, "table_csv_overwrite")
	table.Meta.TimestampField = "column1"
	var max = time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
	var cursor = &fakeCursor{results: map[string]*Rows{
		"select": {Data: [][]interface{}{{max}}},
	}}
	var watermarks = &fakeWatermarks{values: map[string]string{}}
	var engine = &Engine{Cursor: cursor, Gen: gen, Watermarks: watermarks}

	var _, err = engine.Load(context.Background(), table, nil)
	require.NoError(t, err)
	require.Equal(t, "SELECT MAX(column1) FROM sources_dev.schema0.table_csv_overwrite",
		cursor.executed[len(cursor.executed)-1])
	require.Equal(t, "2024-02-02T10:00:00", watermarks.values[table.URI()])
}

func TestEngineWatermarkUnchangedOnEmptyTable(t *testing.T) {
	var gen, table = fixture(t, "table_csv_overwrite")
	table.Meta.TimestampField = "column1"
	var cursor = &fakeCursor{results: map[string]*Rows{
		"select": {Data: [][]interface{}{{nil}}},
	}}
	var watermarks = &fakeWatermarks{values: map[string]string{}}
	var engine = &Engine{Cursor: cursor, Gen: gen, Watermarks: watermarks}

	var _, err = engine.Load(context.Background(), table, nil)
	require.NoError(t, err)
	require.Empty(t, watermarks.values)
}

func TestEngineCreateTables(t *testing.T) {
	var gen, table = fixture(t, "table_csv_overwrite")
	var cursor = &fakeCursor{results: map[string]*Rows{}}
	var engine = &Engine{Cursor: cursor, Gen: gen}

	var err = engine.CreateTables(context.Background(), []*catalog.Table{table}, CreateTablesOptions{})
	require.NoError(t, err)
	require.Len(t, cursor.executed, 1)
	require.True(t, strings.HasPrefix(cursor.executed[0], "CREATE TABLE sources_dev.schema0.table_csv_overwrite (\n"))

	cursor.executed = nil
	err = engine.CreateTables(context.Background(), []*catalog.Table{table}, CreateTablesOptions{Overwrite: true})
	require.NoError(t, err)
	require.Len(t, cursor.executed, 2)
	require.Equal(t, "DROP TABLE IF EXISTS sources_dev.schema0.table_csv_overwrite", cursor.executed[0])
}
