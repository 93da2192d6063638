package tasks

import "encoding/json"

// Options are the user-supplied knobs of one scheduling request. They are
// copied by value at job construction so that per-job adjustments never
// leak between jobs.
type Options struct {
	// Start and End bound extraction, formatted YYYY-MM-DDTHH:MM:SS or
	// YYYY-MM-DD. Empty means unset.
	Start string
	End   string
	// Batches partitions extraction work; the planner takes the maximum of
	// this and the table's own batches option.
	Batches int
	// TotalRows is a progress-reporting hint, filled from table metadata.
	TotalRows int
	// Limit caps extracted rows; 0 means unbounded.
	Limit int
	// TestError makes the schedule task fail on purpose, to exercise the
	// workflow engine's error path.
	TestError bool
	// FailOnError is the value bound to the FAIL_ON_ERROR environment
	// variable by the error path, as a string per the engine's contract.
	FailOnError string
}

// DefaultOptions returns the options applied when a request carries none.
func DefaultOptions() Options {
	return Options{Batches: 1, FailOnError: "false"}
}

type optionsWire struct {
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
	Batches     int    `json:"batches,omitempty"`
	TotalRows   int    `json:"total_rows,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	TestError   bool   `json:"test_error,omitempty"`
	FailOnError string `json:"fail_on_error,omitempty"`
}

// MarshalJSON emits only non-default fields.
func (o Options) MarshalJSON() ([]byte, error) {
	var w = optionsWire(o)
	if o.Batches == 1 {
		w.Batches = 0
	}
	if o.FailOnError == "false" {
		w.FailOnError = ""
	}
	return json.Marshal(w)
}

// UnmarshalJSON applies defaults for absent fields.
func (o *Options) UnmarshalJSON(data []byte) error {
	var w = optionsWire(DefaultOptions())
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Batches == 0 {
		w.Batches = 1
	}
	if w.FailOnError == "" {
		w.FailOnError = "false"
	}
	*o = Options(w)
	return nil
}
