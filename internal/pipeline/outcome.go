package pipeline

import (
	"encoding/json"

	"github.com/raphaelgruber/reachbox/internal/models"
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageValidate  Stage = "validate"
	StageClassify  Stage = "classify"
	StageIndex     Stage = "index"
	StageVectorize Stage = "vectorize"
	StageNotify    Stage = "notify"
)

// Kind tags an Outcome.
type Kind string

const (
	KindSuccess        Kind = "success"
	KindPartialFailure Kind = "partial_failure"
)

// StageResult is the result of one stage. Err is nil on success.
// Skipped stages are not recorded.
type StageResult struct {
	Stage      Stage
	Err        error
	DurationMs int64
}

// MarshalJSON renders Err as a string.
func (r StageResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Stage      Stage  `json:"stage"`
		Error      string `json:"error,omitempty"`
		DurationMs int64  `json:"duration_ms"`
	}{Stage: r.Stage, DurationMs: r.DurationMs}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Outcome is the result of processing one email.
// For KindPartialFailure, Stage and Cause name the stage that could not
// complete. Errors in stages with a safe default (classify, vectorize)
// appear only in Stages.
type Outcome struct {
	Key      models.Key
	Category models.Category
	Kind     Kind
	Stage    Stage
	Cause    error
	Stages   []StageResult
	Notified bool
}

// OK reports whether processing fully succeeded.
func (o Outcome) OK() bool {
	return o.Kind == KindSuccess
}

// MarshalJSON renders Cause as a string.
func (o Outcome) MarshalJSON() ([]byte, error) {
	out := struct {
		Account  string          `json:"account"`
		UID      string          `json:"uid"`
		Category models.Category `json:"category"`
		Kind     Kind            `json:"kind"`
		Stage    Stage           `json:"stage,omitempty"`
		Cause    string          `json:"cause,omitempty"`
		Stages   []StageResult   `json:"stages"`
		Notified bool            `json:"notified"`
	}{
		Account:  o.Key.Account,
		UID:      o.Key.UID,
		Category: o.Category,
		Kind:     o.Kind,
		Stage:    o.Stage,
		Stages:   o.Stages,
		Notified: o.Notified,
	}
	if o.Cause != nil {
		out.Cause = o.Cause.Error()
	}
	return json.Marshal(out)
}
