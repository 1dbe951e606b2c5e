package merge

import "strconv"

// Policy selects the merge behavior applied at every node of the
// recursion. Exactly one policy is active per merge call.
type Policy int

const (
	// PolicyIdentic makes the expected tree win verbatim, at any depth
	// and for any shape combination.
	PolicyIdentic Policy = iota
	// PolicyPresent folds expected into current: expected values are
	// added or overwrite, lists grow, null expected values are skipped.
	PolicyPresent
	// PolicyAbsent removes entries of current whose value exactly
	// matches the corresponding entry of expected.
	PolicyAbsent
)

// String returns the policy token as accepted by ParsePolicy.
func (p Policy) String() string {
	switch p {
	case PolicyIdentic:
		return "identic"
	case PolicyPresent:
		return "present"
	case PolicyAbsent:
		return "absent"
	default:
		return "policy(" + strconv.Itoa(int(p)) + ")"
	}
}

func (p Policy) valid() bool { return p >= PolicyIdentic && p <= PolicyAbsent }

// ParsePolicy converts a policy token into a Policy. It fails with an
// InvalidPolicyError carrying the offending token.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "identic":
		return PolicyIdentic, nil
	case "present":
		return PolicyPresent, nil
	case "absent":
		return PolicyAbsent, nil
	default:
		return 0, &InvalidPolicyError{Value: s}
	}
}

// ListDiff selects how sequence elements are identified when two
// sequences are merged.
type ListDiff int

const (
	// DiffByValue identifies an element by its deeply-compared value:
	// present computes a union, absent a subtraction.
	DiffByValue ListDiff = iota
	// DiffByIndex identifies an element by its position: each index is
	// merged independently under the mapping leaf rules.
	DiffByIndex
)

// String returns the strategy token as accepted by ParseListDiff.
func (d ListDiff) String() string {
	switch d {
	case DiffByValue:
		return "value"
	case DiffByIndex:
		return "index"
	default:
		return "listdiff(" + strconv.Itoa(int(d)) + ")"
	}
}

func (d ListDiff) valid() bool { return d == DiffByValue || d == DiffByIndex }

// ParseListDiff converts a list-diff token into a ListDiff. It fails
// with an InvalidListDiffError carrying the offending token.
func ParseListDiff(s string) (ListDiff, error) {
	switch s {
	case "value":
		return DiffByValue, nil
	case "index":
		return DiffByIndex, nil
	default:
		return 0, &InvalidListDiffError{Value: s}
	}
}
