package scoring

import (
	"context"
	"fmt"
)

// CaseRunner executes one opaque test case body. Implementations decide what
// a body means: a shell command in a working directory, a request to an
// embedded interpreter, etc. A returned error marks the case failed without
// aborting the rest of the file.
type CaseRunner interface {
	RunCase(ctx context.Context, c TestCase) (passed bool, message string, err error)
}

// CaseRunnerFunc adapts a function to the CaseRunner interface.
type CaseRunnerFunc func(ctx context.Context, c TestCase) (bool, string, error)

func (f CaseRunnerFunc) RunCase(ctx context.Context, c TestCase) (bool, string, error) {
	return f(ctx, c)
}

// Run executes the file's cases in declared order and populates Results,
// Grade and PassedAll. It may be called exactly once; a second call is an
// error. A runtime failure in one case is recorded as a failed result and
// does not abort the remaining cases.
func (tf *TestFile) Run(ctx context.Context, runner CaseRunner) error {
	if tf.state != StateNotRun {
		return fmt.Errorf("test file %s has already been run (state %s)", tf.Name, tf.state)
	}
	if err := tf.Resolve(); err != nil {
		return err
	}
	tf.state = StateRunning

	results := make([]TestCaseResult, 0, len(tf.Cases))
	earned := 0.0
	passedAll := true
	anyPassed := false

	for _, c := range tf.Cases {
		res := runCaseIsolated(ctx, runner, c)
		if res.Passed {
			anyPassed = true
			if !tf.AllOrNothing {
				res.Points = *c.Points
				earned += res.Points
			}
		} else {
			passedAll = false
		}
		results = append(results, res)
	}

	tf.Results = results
	tf.PassedAll = passedAll

	switch {
	case tf.AllOrNothing && passedAll:
		tf.Grade = 1.0
	case tf.AllOrNothing:
		tf.Grade = 0.0
	case tf.TotalPoints > 0:
		tf.Grade = earned / tf.TotalPoints
	default:
		tf.Grade = 0.0
	}

	switch {
	case passedAll:
		tf.state = StatePassedAll
	case anyPassed:
		tf.state = StatePartial
	default:
		tf.state = StateFailedAll
	}
	return nil
}

// runCaseIsolated runs a single case and converts every failure mode,
// including a panic in the runner, into a failed TestCaseResult.
func runCaseIsolated(ctx context.Context, runner CaseRunner, c TestCase) (res TestCaseResult) {
	defer func() {
		if r := recover(); r != nil {
			res = TestCaseResult{
				Case:    c,
				Passed:  false,
				Message: fmt.Sprintf("test case %s panicked: %v", c.Name, r),
			}
		}
	}()

	passed, msg, err := runner.RunCase(ctx, c)
	if err != nil {
		return TestCaseResult{
			Case:    c,
			Passed:  false,
			Message: fmt.Sprintf("test case %s failed to execute: %v", c.Name, err),
		}
	}
	return TestCaseResult{
		Case:    c,
		Passed:  passed,
		Message: caseMessage(c, passed, msg),
	}
}

func caseMessage(c TestCase, passed bool, runnerMsg string) string {
	if passed {
		if c.SuccessMessage != "" {
			return c.SuccessMessage
		}
		return fmt.Sprintf("%s passed", c.Name)
	}
	switch {
	case runnerMsg != "" && c.FailureMessage != "":
		return runnerMsg + "\n" + c.FailureMessage
	case runnerMsg != "":
		return runnerMsg
	case c.FailureMessage != "":
		return c.FailureMessage
	}
	return fmt.Sprintf("%s failed", c.Name)
}
