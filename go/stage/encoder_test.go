package stage

import (
	"bytes"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/sluicedata/sluice/go/catalog"
)

type sliceSource struct {
	rows [][]interface{}
	next int
}

func (s *sliceSource) Next() ([]interface{}, error) {
	if s.next >= len(s.rows) {
		return nil, io.EOF
	}
	var row = s.rows[s.next]
	s.next++
	return row, nil
}

func gunzip(t *testing.T, body []byte) string {
	t.Helper()
	var r, err = gzip.NewReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer r.Close()
	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(raw)
}

func drain(t *testing.T, e Encoder) []*File {
	t.Helper()
	var files []*File
	for {
		var file, err = e.Next()
		if err == io.EOF {
			return files
		}
		require.NoError(t, err)
		files = append(files, file)
	}
}

func testRows() [][]interface{} {
	return [][]interface{}{{"a", "b"}, {"c", "d"}, {"e", "f"}}
}

func TestCSVEncoderSingleFile(t *testing.T) {
	var files = drain(t, NewCSVEncoder(&sliceSource{rows: testRows()}, 100, 100))
	require.Len(t, files, 1)
	require.Equal(t, 1, files[0].FileNumber)
	require.Equal(t, 3, files[0].RowCount)
	require.Equal(t, "a;b\nc;d\ne;f\n", gunzip(t, files[0].Body))
}

func TestCSVEncoderRotation(t *testing.T) {
	var files = drain(t, NewCSVEncoder(&sliceSource{rows: testRows()}, 10, 2))
	require.Len(t, files, 2)
	require.Equal(t, "a;b\nc;d\n", gunzip(t, files[0].Body))
	require.Equal(t, "e;f\n", gunzip(t, files[1].Body))
	require.Equal(t, []int{1, 2}, []int{files[0].FileNumber, files[1].FileNumber})
	require.Equal(t, []int{2, 1}, []int{files[0].RowCount, files[1].RowCount})
}

func TestCSVEncoderRotationEveryRow(t *testing.T) {
	var files = drain(t, NewCSVEncoder(&sliceSource{rows: testRows()}, 10, 1))
	require.Len(t, files, 3)
	var expect = []string{"a;b\n", "c;d\n", "e;f\n"}
	for i, file := range files {
		require.Equal(t, expect[i], gunzip(t, file.Body))
		require.Equal(t, i+1, file.FileNumber)
		require.Equal(t, 1, file.RowCount)
	}
}

func TestCSVEncoderEmptyInput(t *testing.T) {
	var files = drain(t, NewCSVEncoder(&sliceSource{}, 10, 2))
	require.Empty(t, files)
}

// Concatenating the decompressed bodies and re-parsing them yields exactly
// the input sequence.
func TestCSVEncoderConservation(t *testing.T) {
	var rows = [][]interface{}{
		{"plain", "x"},
		{"semi;colon", "quote\"inside"},
		{"multi\nline", ""},
		{nil, "after nil"},
	}
	var files = drain(t, NewCSVEncoder(&sliceSource{rows: rows}, 16, 2))
	var all bytes.Buffer
	for _, file := range files {
		all.WriteString(gunzip(t, file.Body))
	}
	parsed, err := ReadCSV(all.Bytes())
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"plain", "x"},
		{"semi;colon", "quote\"inside"},
		{"multi\nline", ""},
		{"", "after nil"},
	}, parsed)
}

func TestFormatValue(t *testing.T) {
	require.Equal(t, "", formatValue(nil))
	require.Equal(t, "x", formatValue("x"))
	require.Equal(t, "42", formatValue(42))
	require.Equal(t, "true", formatValue(true))
	require.Equal(t, "1.5", formatValue(1.5))
	require.Equal(t, "2024-01-02 03:04:05",
		formatValue(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestKeyFormat(t *testing.T) {
	require.Equal(t, "schema0/table0/table0_b01_f01.csv.gz", Key("schema0", "table0", 1, 1, catalog.FormatCSV))
	require.Equal(t, "schema0/table0/table0_b00_f02.parquet", Key("schema0", "table0", 0, 2, catalog.FormatParquet))

	var pattern = regexp.MustCompile(`^schema0/table0/table0_b\d{2,}_f\d{2,}\.(csv\.gz|parquet)$`)
	for _, b := range []int{0, 1, 99, 100, 12345} {
		for _, f := range []int{0, 9, 10, 100} {
			require.Regexp(t, pattern, Key("schema0", "table0", b, f, catalog.FormatCSV))
		}
	}
}

func TestParquetEncoderRoundTrip(t *testing.T) {
	var table = parquetTable(t)
	var when = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	var source = &sliceSource{rows: [][]interface{}{
		{"a", int64(1), when},
		{"b", int64(2), nil},
	}}
	var files = drain(t, NewParquetEncoder(table, source, 0, 0))
	require.Len(t, files, 1)
	require.Equal(t, 1, files[0].FileNumber)
	require.Equal(t, 2, files[0].RowCount)
	// Parquet magic bytes at both ends.
	require.Equal(t, "PAR1", string(files[0].Body[:4]))
	require.Equal(t, "PAR1", string(files[0].Body[len(files[0].Body)-4:]))
}

func TestParquetValueDatetime(t *testing.T) {
	var when = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	v, err := parquetValue("datetime", when)
	require.NoError(t, err)
	require.Equal(t, when.UnixMicro(), v)

	v, err = parquetValue("datetime", "2024-03-01 10:30:00")
	require.NoError(t, err)
	require.Equal(t, when.UnixMicro(), v)

	v, err = parquetValue("datetime", nil)
	require.NoError(t, err)
	require.Nil(t, v)

	_, err = parquetValue("datetime", 1.5)
	require.Error(t, err)
}

func parquetTable(t *testing.T) *catalog.Table {
	t.Helper()
	var warehouse = &catalog.Warehouse{}
	var schema = &catalog.Schema{Name: "schema0"}
	warehouse.AddSchema(schema)
	var meta = catalog.DefaultTableMeta()
	meta.FileFormat = catalog.FormatParquet
	var table = &catalog.Table{Name: "table0", Meta: meta}
	schema.AddTable(table)
	table.AddColumn(catalog.NewColumn("column0", "varchar"))
	table.AddColumn(catalog.NewColumn("column1", "number"))
	table.AddColumn(catalog.NewColumn("column2", "datetime"))
	return table
}
