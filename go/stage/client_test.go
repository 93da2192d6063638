package stage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sluicedata/sluice/go/catalog"
)

type fakeBucket struct {
	name    string
	objects map[string][]byte
	deletes [][]string
}

func newFakeBucket(name string) *fakeBucket {
	return &fakeBucket{name: name, objects: make(map[string][]byte)}
}

func (b *fakeBucket) Name() string { return b.name }

func (b *fakeBucket) Put(ctx context.Context, key string, body []byte) error {
	b.objects[key] = append([]byte(nil), body...)
	return nil
}

func (b *fakeBucket) Get(ctx context.Context, key string) ([]byte, error) {
	var body, ok = b.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return body, nil
}

func (b *fakeBucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *fakeBucket) Delete(ctx context.Context, keys []string) error {
	if len(keys) > deleteBatchSize {
		return fmt.Errorf("delete batch of %d exceeds limit", len(keys))
	}
	b.deletes = append(b.deletes, keys)
	for _, key := range keys {
		delete(b.objects, key)
	}
	return nil
}

func csvTable(t *testing.T) *catalog.Table {
	t.Helper()
	var warehouse = &catalog.Warehouse{}
	var schema = &catalog.Schema{Name: "schema0"}
	warehouse.AddSchema(schema)
	var table = &catalog.Table{Name: "table0", Meta: catalog.DefaultTableMeta()}
	schema.AddTable(table)
	table.AddColumn(catalog.NewColumn("column0", "varchar"))
	table.AddColumn(catalog.NewColumn("column1", "varchar"))
	return table
}

func TestClean(t *testing.T) {
	var bucket = newFakeBucket("snowflake-staging-bucket-dev")
	bucket.objects["schema0/table0/file"] = []byte("test")
	bucket.objects["schema0/other/file"] = []byte("keep")
	var client = NewClient(bucket)

	message, err := client.Clean(context.Background(), "schema0", "table0")
	require.NoError(t, err)
	require.Equal(t, "Deleted 1 file(s) from s3://snowflake-staging-bucket-dev/schema0/table0/", message)
	require.Contains(t, bucket.objects, "schema0/other/file")
	require.NotContains(t, bucket.objects, "schema0/table0/file")
}

func TestCleanBatchesDeletes(t *testing.T) {
	var bucket = newFakeBucket("bucket")
	for i := 0; i < 2500; i++ {
		bucket.objects[fmt.Sprintf("schema0/table0/file%04d", i)] = nil
	}
	var client = NewClient(bucket)

	message, err := client.Clean(context.Background(), "schema0", "table0")
	require.NoError(t, err)
	require.Equal(t, "Deleted 2500 file(s) from s3://bucket/schema0/table0/", message)
	require.Len(t, bucket.deletes, 3)
	require.Len(t, bucket.deletes[0], 1000)
	require.Len(t, bucket.deletes[2], 500)
}

func TestUpload(t *testing.T) {
	var bucket = newFakeBucket("bucket")
	var client = NewClient(bucket)
	var source = &sliceSource{rows: testRows()}

	result, err := client.Upload(context.Background(), csvTable(t), 0, source, UploadOptions{
		MaxFileSize: 10,
		BatchSize:   2,
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.Files)
	require.Equal(t, 3, result.Rows)
	require.Contains(t, bucket.objects, "schema0/table0/table0_b00_f01.csv.gz")
	require.Contains(t, bucket.objects, "schema0/table0/table0_b00_f02.csv.gz")
	require.Contains(t, result.Message, "[2 file(s), 3 rows] to s3://bucket")

	body, err := client.Download(context.Background(), csvTable(t), 0, 1)
	require.NoError(t, err)
	require.Equal(t, "a;b\nc;d\n", string(body))
}

func TestHumanBytes(t *testing.T) {
	require.Equal(t, "52 bytes", humanBytes(52))
	require.Equal(t, "1.5 KB", humanBytes(1536))
	require.Equal(t, "15.0 MB", humanBytes(15*1024*1024))
}
