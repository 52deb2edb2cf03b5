package scoring

// TestCase is one parsed test case within a test file. The body is opaque to
// the grading engine; a CaseRunner decides how to execute it. Points is nil
// until allocation resolves a weight for the case.
type TestCase struct {
	Name           string   `toml:"name" json:"name"`
	Body           string   `toml:"body" json:"body"`
	Hidden         bool     `toml:"hidden" json:"hidden"`
	SuccessMessage string   `toml:"success_message" json:"success_message"`
	FailureMessage string   `toml:"failure_message" json:"failure_message"`
	Points         *float64 `toml:"points" json:"points"`
}

// TestCaseResult records the outcome of one test case. It is created exactly
// once per case per run and never mutated afterwards.
type TestCaseResult struct {
	Case    TestCase
	Passed  bool
	Message string
	Points  float64
}

// RunState tracks the lifecycle of a test file through grading.
type RunState int

const (
	StateNotRun RunState = iota
	StateRunning
	StatePassedAll
	StatePartial
	StateFailedAll
)

func (s RunState) String() string {
	switch s {
	case StateNotRun:
		return "not_run"
	case StateRunning:
		return "running"
	case StatePassedAll:
		return "passed_all"
	case StatePartial:
		return "partial"
	case StateFailedAll:
		return "failed_all"
	}
	return "unknown"
}

// TestFile is a named bundle of test cases contributing one score column to
// the final table. It is constructed by a format parser with unresolved
// weights; Resolve assigns weights and Run populates Results, Grade and
// PassedAll exactly once.
type TestFile struct {
	Name         string
	Path         string
	Format       Format
	TotalPoints  float64
	AllOrNothing bool
	Cases        []TestCase

	Results   []TestCaseResult
	Grade     float64
	PassedAll bool

	state    RunState
	resolved bool
}

func (tf *TestFile) State() RunState { return tf.state }

// Resolve replaces the owned case sequence with one whose point weights are
// fully populated. Safe to call more than once; later calls are no-ops.
func (tf *TestFile) Resolve() error {
	if tf.resolved {
		return nil
	}
	cases, err := ResolvePoints(tf.Name, tf.TotalPoints, tf.Cases)
	if err != nil {
		return err
	}
	tf.Cases = cases
	tf.resolved = true
	return nil
}
