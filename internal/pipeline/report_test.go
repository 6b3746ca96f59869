package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

func TestReport_Summary(t *testing.T) {
	rep := &Report{
		RunID:      "run-1",
		Pages:      []string{"a.pdf", "b.pdf"},
		Incomplete: []string{"b.pdf"},
		Merged:     []string{"RECY R1.pdf"},
		Published:  []string{"s3://prints/RECY R1.pdf"},
		Failures: []Failure{
			{Round: "RECY R1", Group: "DL6 2AA", Step: StepFetch, Err: errors.New("timeout")},
		},
	}

	s := rep.Summary()
	assert.Contains(t, s, "Run run-1")
	assert.Contains(t, s, "- Pages: 2 (1 incomplete)")
	assert.Contains(t, s, "- Rounds merged: 1")
	assert.Contains(t, s, "- Published: s3://prints/RECY R1.pdf")
	assert.Contains(t, s, "round RECY R1 group DL6 2AA failed at fetch: timeout")
	assert.True(t, rep.Failed())
}

func TestReport_NoFailures(t *testing.T) {
	rep := &Report{RunID: "run-2"}
	assert.False(t, rep.Failed())
	assert.NotContains(t, rep.Summary(), "Failures")
}

func TestFailureOf(t *testing.T) {
	cause := &model.DataError{Reason: "no map images pasted"}

	f := failureOf("R1", "DL6 2AA", atStep(StepCompose, cause), StepSave)
	assert.Equal(t, StepCompose, f.Step)
	assert.Same(t, cause, f.Err)

	plain := errors.New("boom")
	f = failureOf("", "g", plain, StepMerge)
	assert.Equal(t, StepMerge, f.Step)
	assert.Equal(t, plain, f.Err)

	assert.NoError(t, atStep(StepFetch, nil))
}
