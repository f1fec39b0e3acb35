package metrics

// Value is a metric sample.
type Value float64

// Dimension adds labels to a metric, e.g. {"kind": "SubmitScore"}.
type Dimension map[string]string
