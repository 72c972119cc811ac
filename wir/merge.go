package wir

// MergeStrategy combines the per-branch values produced by a Parallel edge's
// branches at its Join. The set enumerated here resolves the Open Question
// in spec.md §9 ("the exact set of merge strategies... is only partially
// defined"); this is the full, explicit list this implementation supports.
type MergeStrategy int

const (
	// MergeAll requires every branch to succeed; the merged value is an
	// Array of the branch results in branch order. A branch failure aborts
	// the Parallel edge.
	MergeAll MergeStrategy = iota
	// MergeAny requires at least one branch to succeed; the merged value is
	// the first successful branch's result in branch order. Other branches'
	// failures are tolerated.
	MergeAny
	// MergeFirst takes the value of whichever branch completes first,
	// success or not; a failing first-completing branch fails the edge.
	MergeFirst
	// MergeSum requires Int or Real branch values and merges them with +.
	MergeSum
	// MergeProduct requires Int or Real branch values and merges them with *.
	MergeProduct
	// MergeMax requires Int or Real branch values and takes the maximum.
	MergeMax
	// MergeMin requires Int or Real branch values and takes the minimum.
	MergeMin
	// MergeNone discards branch results; the merged value is Void. Used for
	// parallel blocks run purely for side effects.
	MergeNone
)

func (m MergeStrategy) String() string {
	switch m {
	case MergeAll:
		return "all"
	case MergeAny:
		return "any"
	case MergeFirst:
		return "first"
	case MergeSum:
		return "sum"
	case MergeProduct:
		return "product"
	case MergeMax:
		return "max"
	case MergeMin:
		return "min"
	case MergeNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseMergeStrategy parses a DSL merge-strategy keyword, as written after
// a parallel block's `merge` clause.
func ParseMergeStrategy(s string) (MergeStrategy, bool) {
	switch s {
	case "all":
		return MergeAll, true
	case "any":
		return MergeAny, true
	case "first":
		return MergeFirst, true
	case "sum":
		return MergeSum, true
	case "product":
		return MergeProduct, true
	case "max":
		return MergeMax, true
	case "min":
		return MergeMin, true
	case "none":
		return MergeNone, true
	default:
		return 0, false
	}
}

// ArithmeticOnly reports whether the strategy requires Int/Real branch
// values (spec.md §8: "A Parallel with zero branches... errors under
// Sum/Product/Max/Min").
func (m MergeStrategy) ArithmeticOnly() bool {
	switch m {
	case MergeSum, MergeProduct, MergeMax, MergeMin:
		return true
	default:
		return false
	}
}
