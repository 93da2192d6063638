package stage

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sluicedata/sluice/go/catalog"
)

// parquetEncoder mirrors the CSV encoder for tables staged as parquet. The
// row-group schema is derived from the catalog's column dtypes; datetime
// columns are written as microsecond timestamps and cast back in COPY.
type parquetEncoder struct {
	columns     []*catalog.Column
	schema      *parquet.Schema
	source      RowSource
	maxFileSize int
	batchSize   int

	buf        bytes.Buffer
	w          *parquet.GenericWriter[map[string]interface{}]
	fileNumber int
	rowCount   int
	exhausted  bool
}

// NewParquetEncoder builds a parquet encoder over the source for the given
// table. Zero sizes get the defaults.
func NewParquetEncoder(table *catalog.Table, source RowSource, maxFileSize, batchSize int) Encoder {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	var e = &parquetEncoder{
		columns:     table.Columns(),
		schema:      parquetSchema(table),
		source:      source,
		maxFileSize: maxFileSize,
		batchSize:   batchSize,
	}
	e.reset()
	return e
}

func parquetSchema(table *catalog.Table) *parquet.Schema {
	var group = parquet.Group{}
	for _, col := range table.Columns() {
		group[col.Name] = parquet.Optional(parquetNode(col.Dtype))
	}
	return parquet.NewSchema(table.Name, group)
}

func parquetNode(dtype string) parquet.Node {
	switch baseDtype(dtype) {
	case "datetime", "timestamp", "timestamp_ntz":
		return parquet.Timestamp(parquet.Microsecond)
	case "int", "integer", "bigint", "smallint", "tinyint", "number":
		return parquet.Int(64)
	case "float", "double", "real":
		return parquet.Leaf(parquet.DoubleType)
	case "boolean", "bool":
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

// baseDtype strips a length or precision suffix, e.g. number(10,2).
func baseDtype(dtype string) string {
	if i := strings.IndexByte(dtype, '('); i >= 0 {
		dtype = dtype[:i]
	}
	return strings.TrimSpace(dtype)
}

func (e *parquetEncoder) reset() {
	e.buf.Reset()
	e.w = parquet.NewGenericWriter[map[string]interface{}](&e.buf, e.schema)
	e.rowCount = 0
}

func (e *parquetEncoder) Next() (*File, error) {
	for !e.exhausted {
		var written, err = e.writeBatch()
		if err != nil {
			return nil, err
		}
		if written == 0 {
			break
		}
		if e.buf.Len() >= e.maxFileSize {
			return e.rotate()
		}
	}
	if e.rowCount > 0 {
		return e.rotate()
	}
	return nil, io.EOF
}

func (e *parquetEncoder) writeBatch() (int, error) {
	var records []map[string]interface{}
	for len(records) < e.batchSize {
		var row, err = e.source.Next()
		if err == io.EOF {
			e.exhausted = true
			break
		}
		if err != nil {
			return 0, fmt.Errorf("reading rows: %w", err)
		}
		record, err := e.record(row)
		if err != nil {
			return 0, err
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return 0, nil
	}
	if _, err := e.w.Write(records); err != nil {
		return 0, fmt.Errorf("encoding rows: %w", err)
	}
	// Ends the row group so the buffer length reflects encoded bytes.
	if err := e.w.Flush(); err != nil {
		return 0, fmt.Errorf("encoding rows: %w", err)
	}
	e.rowCount += len(records)
	return len(records), nil
}

func (e *parquetEncoder) record(row []interface{}) (map[string]interface{}, error) {
	if len(row) != len(e.columns) {
		return nil, fmt.Errorf("row has %d values, table has %d columns", len(row), len(e.columns))
	}
	var record = make(map[string]interface{}, len(row))
	for i, col := range e.columns {
		var value, err = parquetValue(col.Dtype, row[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		record[col.Name] = value
	}
	return record, nil
}

func parquetValue(dtype string, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch baseDtype(dtype) {
	case "datetime", "timestamp", "timestamp_ntz":
		switch v := v.(type) {
		case time.Time:
			return v.UnixMicro(), nil
		case int64:
			return v, nil
		case string:
			var t, err = parseTimestamp(v)
			if err != nil {
				return nil, err
			}
			return t.UnixMicro(), nil
		}
		return nil, fmt.Errorf("cannot encode %T as timestamp", v)
	default:
		return v, nil
	}
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q", s)
}

func (e *parquetEncoder) rotate() (*File, error) {
	if err := e.w.Close(); err != nil {
		return nil, fmt.Errorf("closing file: %w", err)
	}
	e.fileNumber++
	var file = &File{
		Body:       append([]byte(nil), e.buf.Bytes()...),
		FileNumber: e.fileNumber,
		RowCount:   e.rowCount,
	}
	e.reset()
	return file, nil
}

// NewEncoderForTable picks the encoder matching the table's stage format.
func NewEncoderForTable(table *catalog.Table, source RowSource, maxFileSize, batchSize int) Encoder {
	if table.Meta.FileFormat == catalog.FormatParquet {
		return NewParquetEncoder(table, source, maxFileSize, batchSize)
	}
	return NewCSVEncoder(source, maxFileSize, batchSize)
}
