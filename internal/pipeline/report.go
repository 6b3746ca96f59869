package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Steps a group or round can fail at.
const (
	StepGroup   = "group"
	StepRequest = "request"
	StepFetch   = "fetch"
	StepCompose = "compose"
	StepSave    = "save"
	StepMerge   = "merge"
	StepPublish = "publish"
)

// Failure is one group or round that did not produce its artifact.
type Failure struct {
	Round string
	Group string
	Step  string
	Err   error
}

func (f Failure) String() string {
	var b strings.Builder
	if f.Round != "" {
		fmt.Fprintf(&b, "round %s ", f.Round)
	}
	if f.Group != "" {
		fmt.Fprintf(&b, "group %s ", f.Group)
	}
	fmt.Fprintf(&b, "failed at %s: %v", f.Step, f.Err)
	return b.String()
}

// Report is the outcome of one run.
type Report struct {
	RunID      string
	Pages      []string
	Merged     []string
	Published  []string
	Incomplete []string
	Failures   []Failure
}

// Failed reports whether any group or round failed.
func (r *Report) Failed() bool { return len(r.Failures) > 0 }

// Summary renders the report for the terminal.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s\n", r.RunID)
	fmt.Fprintf(&b, "- Pages: %d (%d incomplete)\n", len(r.Pages), len(r.Incomplete))
	if len(r.Merged) > 0 {
		fmt.Fprintf(&b, "- Rounds merged: %d\n", len(r.Merged))
	}
	for _, p := range r.Published {
		fmt.Fprintf(&b, "- Published: %s\n", p)
	}
	for _, p := range r.Incomplete {
		fmt.Fprintf(&b, "- Incomplete: %s\n", p)
	}
	if len(r.Failures) > 0 {
		fmt.Fprintf(&b, "- Failures: %d\n", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  %s\n", f)
		}
	}
	return b.String()
}

// stepError tags an error with the step that produced it.
type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string { return e.step + ": " + e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func atStep(step string, err error) error {
	if err == nil {
		return nil
	}
	return &stepError{step: step, err: err}
}

// failureOf builds a Failure, taking the step from err when it was tagged.
func failureOf(round, group string, err error, fallback string) Failure {
	f := Failure{Round: round, Group: group, Step: fallback, Err: err}
	var se *stepError
	if errors.As(err, &se) {
		f.Step = se.step
		f.Err = se.err
	}
	return f
}
