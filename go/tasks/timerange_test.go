package tasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sluicedata/sluice/go/catalog"
	"github.com/sluicedata/sluice/go/watermark"
)

const rangeFixtureDoc = `schema0:
  plain_table:
    column0: varchar
    column1: datetime
  batched_table:
    _meta:
      timestamp_key: column1
      timestamp_field: column1
    column0: varchar
    column1: datetime
`

func rangeFixture(t *testing.T, tableName string) *catalog.Table {
	t.Helper()
	var warehouse, err = catalog.Load([]byte(rangeFixtureDoc))
	require.NoError(t, err)
	table, err := warehouse.Table("schema0", tableName)
	require.NoError(t, err)
	return table
}

type staticWatermarks struct {
	latest map[string]string
}

func (s *staticWatermarks) Latest(ctx context.Context, table *catalog.Table) (string, error) {
	return s.latest[table.URI()], nil
}

func (s *staticWatermarks) SetLatest(ctx context.Context, table *catalog.Table, value string) error {
	s.latest[table.URI()] = value
	return nil
}

var _ watermark.Store = (*staticWatermarks)(nil)

func TestTimeRangeOpenBounds(t *testing.T) {
	r, err := NewTimeRange("", "", "Europe/Berlin")
	require.NoError(t, err)
	require.Equal(t, "1900-01-01T00:00:00", r.StartString())
	require.Equal(t, "2100-12-31T23:59:59", r.EndString())

	_, err = r.BatchN()
	require.ErrorIs(t, err, ErrInvalidRange)
	_, err = r.BatchDate(0)
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestTimeRangeDateWidening(t *testing.T) {
	r, err := NewTimeRange("2024-01-01", "2024-01-03", "Europe/Berlin")
	require.NoError(t, err)

	start, err := r.StartDatetime()
	require.NoError(t, err)
	require.Equal(t, "2024-01-01T00:00:00", start.Format("2006-01-02T15:04:05"))

	end, err := r.EndDatetime()
	require.NoError(t, err)
	require.Equal(t, "2024-01-03T23:59:59", end.Format("2006-01-02T15:04:05"))
}

func TestTimeRangeBatchN(t *testing.T) {
	r, err := NewTimeRange("2024-01-01", "2024-01-03", "Europe/Berlin")
	require.NoError(t, err)
	n, err := r.BatchN()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	// A single day is one batch.
	r, err = NewTimeRange("2024-01-01T08:00:00", "2024-01-01T20:00:00", "Europe/Berlin")
	require.NoError(t, err)
	n, err = r.BatchN()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestTimeRangeBatchNAcrossDSTTransition(t *testing.T) {
	// Berlin switches to summer time on 2024-03-31; the short day must
	// still count as one.
	r, err := NewTimeRange("2024-03-30", "2024-04-01", "Europe/Berlin")
	require.NoError(t, err)
	n, err := r.BatchN()
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestTimeRangeBatchDate(t *testing.T) {
	r, err := NewTimeRange("2024-01-01", "2024-01-03", "Europe/Berlin")
	require.NoError(t, err)

	for i, want := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		date, err := r.BatchDate(i)
		require.NoError(t, err)
		require.Equal(t, want, date)
	}

	_, err = r.BatchDate(3)
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestTimeRangeInvalidDate(t *testing.T) {
	r, err := NewTimeRange("01.02.2024", "2024-01-03", "Europe/Berlin")
	require.NoError(t, err)
	_, err = r.StartDatetime()
	require.ErrorIs(t, err, ErrInvalidDateFormat)
}

func TestTimeRangeUnknownTimezone(t *testing.T) {
	var _, err = NewTimeRange("", "", "Mars/Olympus_Mons")
	require.Error(t, err)
}

func TestTimeRangeForUsesWatermark(t *testing.T) {
	var table = rangeFixture(t, "batched_table")
	var watermarks = &staticWatermarks{latest: map[string]string{
		table.URI(): "2024-01-05T12:30:00",
	}}

	r, err := TimeRangeFor(context.Background(), Options{}, table, watermarks)
	require.NoError(t, err)
	require.Equal(t, "2024-01-05T12:30:00", r.StartString())
	require.Equal(t, MaxEnd, r.EndString())
}

func TestTimeRangeForExplicitStartWins(t *testing.T) {
	var table = rangeFixture(t, "batched_table")
	var watermarks = &staticWatermarks{latest: map[string]string{
		table.URI(): "2024-01-05T12:30:00",
	}}

	r, err := TimeRangeFor(context.Background(), Options{Start: "2024-02-01"}, table, watermarks)
	require.NoError(t, err)
	require.Equal(t, "2024-02-01", r.StartString())
}

func TestTimeRangeForNoTimestampField(t *testing.T) {
	var table = rangeFixture(t, "plain_table")
	var watermarks = &staticWatermarks{latest: map[string]string{
		table.URI(): "2024-01-05T12:30:00",
	}}

	r, err := TimeRangeFor(context.Background(), Options{}, table, watermarks)
	require.NoError(t, err)
	require.Equal(t, MinStart, r.StartString())
}
