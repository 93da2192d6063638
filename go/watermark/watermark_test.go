package watermark

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/stretchr/testify/require"

	"github.com/sluicedata/sluice/go/catalog"
)

type fakeDynamo struct {
	dynamodbiface.DynamoDBAPI
	items map[string]map[string]*dynamodb.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]*dynamodb.AttributeValue)}
}

func (f *fakeDynamo) GetItemWithContext(ctx aws.Context, in *dynamodb.GetItemInput, _ ...request.Option) (*dynamodb.GetItemOutput, error) {
	var item = f.items[aws.StringValue(in.Key["table_uri"].S)]
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) PutItemWithContext(ctx aws.Context, in *dynamodb.PutItemInput, _ ...request.Option) (*dynamodb.PutItemOutput, error) {
	f.items[aws.StringValue(in.Item["table_uri"].S)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func watermarkTable(t *testing.T, timestampField string) *catalog.Table {
	t.Helper()
	t.Setenv("APP_ENV", "dev")
	var warehouse = &catalog.Warehouse{}
	var schema = &catalog.Schema{Name: "schema0"}
	warehouse.AddSchema(schema)
	var meta = catalog.DefaultTableMeta()
	meta.TimestampField = timestampField
	var table = &catalog.Table{Name: "table0", Meta: meta}
	schema.AddTable(table)
	return table
}

func TestDynamoStoreRoundTrip(t *testing.T) {
	var store = NewDynamoStore(newFakeDynamo(), "extract-time-dev")
	var table = watermarkTable(t, "column1")
	var ctx = context.Background()

	latest, err := store.Latest(ctx, table)
	require.NoError(t, err)
	require.Empty(t, latest)

	require.NoError(t, store.SetLatest(ctx, table, "2024-01-01T00:00:00"))

	latest, err = store.Latest(ctx, table)
	require.NoError(t, err)
	require.Equal(t, "2024-01-01T00:00:00", latest)

	// Last write wins.
	require.NoError(t, store.SetLatest(ctx, table, "2024-02-01T00:00:00"))
	latest, err = store.Latest(ctx, table)
	require.NoError(t, err)
	require.Equal(t, "2024-02-01T00:00:00", latest)
}

func TestDynamoStoreRequiresTimestampField(t *testing.T) {
	var store = NewDynamoStore(newFakeDynamo(), "extract-time-dev")
	var table = watermarkTable(t, "")
	var ctx = context.Background()

	var _, err = store.Latest(ctx, table)
	require.ErrorIs(t, err, ErrTimestampFieldRequired)
	require.ErrorIs(t, store.SetLatest(ctx, table, "x"), ErrTimestampFieldRequired)
}
