package tasks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sluicedata/sluice/go/catalog"
	"github.com/sluicedata/sluice/go/config"
	"github.com/sluicedata/sluice/go/watermark"
)

var (
	// ErrInvalidDateFormat reports a date string which does not parse.
	ErrInvalidDateFormat = errors.New("invalid date format")
	// ErrInvalidRange reports a batched operation over an open time range.
	ErrInvalidRange = errors.New("both start and end are required for batched tasks")
)

// Bounds applied when a range is open at either end.
const (
	MinStart = "1900-01-01T00:00:00"
	MaxEnd   = "2100-12-31T23:59:59"
)

// TimeRange is the effective extraction window of a task. Start and End may
// be empty (open); date-only values are widened to the enclosing day.
type TimeRange struct {
	Start string
	End   string

	loc *time.Location
}

// NewTimeRange builds a range in the named zone.
func NewTimeRange(start, end, timezone string) (*TimeRange, error) {
	var loc, err = time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}
	return &TimeRange{Start: start, End: end, loc: loc}, nil
}

// TimeRangeFor resolves the window of a task against a table. An unset start
// falls back to the table's stored watermark when it has a timestamp_field.
func TimeRangeFor(ctx context.Context, opts Options, table *catalog.Table, watermarks watermark.Store) (*TimeRange, error) {
	var start, end = opts.Start, opts.End
	if start == "" && table.Meta.TimestampField != "" && watermarks != nil {
		var latest, err = watermarks.Latest(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("reading watermark for %s: %w", table.URI(), err)
		}
		start = latest
	}
	return NewTimeRange(start, end, table.Meta.Timezone)
}

// StartString returns the start bound, or MinStart when open.
func (r *TimeRange) StartString() string {
	if r.Start == "" {
		return MinStart
	}
	return r.Start
}

// EndString returns the end bound, or MaxEnd when open.
func (r *TimeRange) EndString() string {
	if r.End == "" {
		return MaxEnd
	}
	return r.End
}

// StartDatetime parses the effective start. Date-only values are widened to
// the start of day.
func (r *TimeRange) StartDatetime() (time.Time, error) {
	var s = r.StartString()
	if len(s) == 10 {
		s += "T00:00:00"
	}
	return r.parse(s)
}

// EndDatetime parses the effective end. Date-only values are widened to the
// end of day.
func (r *TimeRange) EndDatetime() (time.Time, error) {
	var s = r.EndString()
	if len(s) == 10 {
		s += "T23:59:59"
	}
	return r.parse(s)
}

// BatchN is the inclusive day span of the range.
func (r *TimeRange) BatchN() (int, error) {
	if r.Start == "" || r.End == "" {
		return 0, ErrInvalidRange
	}
	start, err := r.StartDatetime()
	if err != nil {
		return 0, err
	}
	end, err := r.EndDatetime()
	if err != nil {
		return 0, err
	}
	return daysBetween(start, end) + 1, nil
}

// BatchDate returns the date covered by the given batch number, formatted
// YYYY-MM-DD.
func (r *TimeRange) BatchDate(batchNumber int) (string, error) {
	if r.Start == "" || r.End == "" {
		return "", ErrInvalidRange
	}
	start, err := r.StartDatetime()
	if err != nil {
		return "", err
	}
	end, err := r.EndDatetime()
	if err != nil {
		return "", err
	}
	var date = startOfDay(start).AddDate(0, 0, batchNumber)
	if date.After(startOfDay(end)) {
		return "", fmt.Errorf("%w: batch date %s exceeds end date", ErrInvalidRange, date.Format(config.DateFormat))
	}
	return date.Format(config.DateFormat), nil
}

func (r *TimeRange) parse(s string) (time.Time, error) {
	var t, err = time.ParseInLocation(config.TimestampFormat, s, r.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unable to parse %q, required format %s",
			ErrInvalidDateFormat, s, config.TimestampFormat)
	}
	return t, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// daysBetween rounds so that DST transitions do not shift the day count.
func daysBetween(start, end time.Time) int {
	return int(math.Round(startOfDay(end).Sub(startOfDay(start)).Hours() / 24))
}
