package model

import "time"

type StepOutcome int

const (
	STEP_CONTINUE StepOutcome = iota
	STEP_PARK
	STEP_COMPLETE
	STEP_FAIL
)

// StepResult is the outcome of executing one node. Continue carries the
// updated context, Park carries the reason and optional resume time.
type StepResult struct {
	Outcome    StepOutcome
	Context    RunContext
	ParkReason ParkReason
	ResumeAt   *time.Time
	FailReason string
}

func ContinueStep(ctx RunContext) StepResult {
	return StepResult{Outcome: STEP_CONTINUE, Context: ctx}
}

func ParkStep(reason ParkReason, resumeAt *time.Time) StepResult {
	return StepResult{Outcome: STEP_PARK, ParkReason: reason, ResumeAt: resumeAt}
}

func CompleteStep() StepResult {
	return StepResult{Outcome: STEP_COMPLETE}
}

func FailStep(reason string) StepResult {
	return StepResult{Outcome: STEP_FAIL, FailReason: reason}
}
