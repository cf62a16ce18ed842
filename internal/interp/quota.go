package interp

// DefaultMaxSteps bounds the number of ops executed by a single Call.
// Kernels with large iteration spaces need WithMaxSteps.
const DefaultMaxSteps = 1_000_000

// quota counts executed ops and enforces a maximum.
//
// A non-positive limit disables the check.
type quota struct {
	limit   int
	current int
}

func newQuota(limit int) *quota {
	return &quota{limit: limit}
}

// charge counts one executed op and reports whether the limit is exceeded.
func (q *quota) charge() bool {
	q.current++
	return q.limit > 0 && q.current > q.limit
}

// Current returns the number of ops executed so far.
func (q *quota) Current() int {
	return q.current
}
