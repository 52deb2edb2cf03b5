package scoring

import (
	"fmt"
	"math"
)

// pointsEpsilon is the tolerance used when comparing point sums.
const pointsEpsilon = 1e-9

// OverallocatedError reports explicitly specified case points exceeding the
// total value of their test file.
type OverallocatedError struct {
	File      string
	Specified float64
	Total     float64
}

func (e *OverallocatedError) Error() string {
	return fmt.Sprintf("test file %s: individual case point values sum to %g, exceeding the total value %g",
		e.File, e.Specified, e.Total)
}

// AllocationError reports a point budget that cannot be distributed: every
// case carries explicit points, yet a nonzero remainder is left over.
type AllocationError struct {
	File      string
	Remainder float64
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("test file %s: all cases have explicit points but %g of the total value remains unallocated",
		e.File, e.Remainder)
}

// ResolvePoints distributes a test file's total point value across its cases.
// Cases with explicit points keep them; the remaining budget is divided
// evenly across unspecified cases. The input slice is never mutated; a fresh
// slice with populated weights is returned.
func ResolvePoints(file string, total float64, cases []TestCase) ([]TestCase, error) {
	specified := 0.0
	unspecified := 0
	for _, c := range cases {
		if c.Points != nil {
			specified += *c.Points
		} else {
			unspecified++
		}
	}

	if specified > total+pointsEpsilon {
		return nil, &OverallocatedError{File: file, Specified: specified, Total: total}
	}

	remaining := total - specified
	out := make([]TestCase, len(cases))
	copy(out, cases)

	if unspecified == 0 {
		if math.Abs(remaining) > pointsEpsilon {
			return nil, &AllocationError{File: file, Remainder: remaining}
		}
		return out, nil
	}

	share := remaining / float64(unspecified)
	for i := range out {
		if out[i].Points == nil {
			p := share
			out[i].Points = &p
		}
	}
	return out, nil
}
