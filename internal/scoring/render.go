package scoring

import (
	"fmt"
	"strings"
)

// Summary renders a plain-text report for a graded test file. It is a pure
// function over the file's snapshot; hidden case diagnostics are withheld.
func Summary(tf *TestFile) string {
	var b strings.Builder
	if tf.State() == StatePassedAll {
		fmt.Fprintf(&b, "%s passed!\n", tf.Name)
		return b.String()
	}

	fmt.Fprintf(&b, "%s results (grade %.2f):\n", tf.Name, tf.Grade)
	for _, res := range tf.Results {
		if res.Passed {
			continue
		}
		if res.Case.Hidden {
			fmt.Fprintf(&b, "  %s: failed (hidden)\n", res.Case.Name)
			continue
		}
		fmt.Fprintf(&b, "  %s: %s\n", res.Case.Name, res.Message)
	}
	return b.String()
}
