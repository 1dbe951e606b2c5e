// Package merge implements the policy-driven structural merge at the core
// of openmerge. It combines two arbitrarily nested document trees (a
// "current" tree and an "expected" tree) into a single result according to
// a merge policy and a list-diff strategy.
//
// Three policies are supported:
//
//   - identic: the expected tree wins verbatim, at every depth.
//   - present: everything in expected is folded into current; expected
//     values overwrite or extend current ones, and null expected values
//     leave the current value untouched.
//   - absent: entries of current that exactly match their counterpart in
//     expected are removed; everything else is left alone.
//
// Sequences are compared either by element value (set-like union and
// subtraction) or by element index (each position merged independently),
// selected by the ListDiff option.
//
// The engine is pure: it performs no I/O, holds no state between calls,
// never mutates its inputs, and a Merger may be shared across goroutines.
package merge
