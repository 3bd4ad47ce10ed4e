package store

import (
	"encoding/json"

	"github.com/google/uuid"
)

// runJSON holds the JSON-encoded columns of a run row.
type runJSON struct {
	weights, metrics, outputs, warnings []byte
}

func encodeRunJSON(r *Run) runJSON {
	var j runJSON
	j.weights, _ = json.Marshal(r.Weights)
	j.metrics, _ = json.Marshal(r.Metrics)
	j.outputs, _ = json.Marshal(r.Outputs)
	j.warnings, _ = json.Marshal(r.Warnings)
	return j
}

func (j runJSON) decodeInto(r *Run) {
	if j.weights != nil {
		_ = json.Unmarshal(j.weights, &r.Weights)
	}
	if j.metrics != nil {
		_ = json.Unmarshal(j.metrics, &r.Metrics)
	}
	if j.outputs != nil {
		_ = json.Unmarshal(j.outputs, &r.Outputs)
	}
	if j.warnings != nil {
		_ = json.Unmarshal(j.warnings, &r.Warnings)
	}
}

func ensureRunID(r *Run) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
}

func ensureReportID(r *Report) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
}
