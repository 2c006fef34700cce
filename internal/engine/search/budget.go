package search

// Budget caps the number of provider calls in one traversal. The counter is
// incremented before each query is issued, so the final count is exactly
// min(queriesAttempted, max) and never max+1. One Budget per traversal,
// passed by reference into the scheduler; not safe for concurrent use.
type Budget struct {
	made int
	max  int
}

func NewBudget(maxCalls int) *Budget {
	return &Budget{max: maxCalls}
}

// Spend reserves one call. It returns false once the budget is exhausted,
// and no further calls may be issued for this traversal.
func (b *Budget) Spend() bool {
	if b.made >= b.max {
		return false
	}
	b.made++
	return true
}

func (b *Budget) Made() int { return b.made }

func (b *Budget) Remaining() int { return b.max - b.made }
