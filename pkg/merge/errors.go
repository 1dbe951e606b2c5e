package merge

import "fmt"

// InvalidPolicyError is returned when an unrecognized merge policy token
// or value is supplied. It carries the exact offending value for
// diagnostics.
type InvalidPolicyError struct {
	Value string
}

// Error implements the error interface.
func (e *InvalidPolicyError) Error() string {
	return fmt.Sprintf("invalid merge policy %q (want identic, present or absent)", e.Value)
}

// InvalidListDiffError is returned when an unrecognized list-diff
// strategy token or value is supplied.
type InvalidListDiffError struct {
	Value string
}

// Error implements the error interface.
func (e *InvalidListDiffError) Error() string {
	return fmt.Sprintf("invalid list diff strategy %q (want value or index)", e.Value)
}

// TypeMismatchError is returned when a node's kind is outside the closed
// scalar/sequence/mapping set. The type system rules this out for nodes
// built through the package constructors; the check exists for
// hand-assembled Node values with a corrupted Kind.
type TypeMismatchError struct {
	Kind Kind
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("unrecognized node kind %d", int(e.Kind))
}

// DepthError is returned when the recursion depth guard is exceeded.
// It protects against pathologically deep trees from untrusted sources.
type DepthError struct {
	MaxDepth int
}

// Error implements the error interface.
func (e *DepthError) Error() string {
	return fmt.Sprintf("merge recursion exceeded maximum depth %d", e.MaxDepth)
}
