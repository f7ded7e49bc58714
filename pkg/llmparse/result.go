// Package llmparse turns model output into typed values without panicking.
//
// Every parse returns a Result that is either Parsed (with a value) or Failed
// (with a reason). Callers substitute their own fallback with Or.
package llmparse

// Shape is the expected top-level layout of a response.
type Shape int

const (
	ShapeObject Shape = iota + 1
	ShapeArray
	ShapeKeyValue
)

func (s Shape) String() string {
	switch s {
	case ShapeObject:
		return "object"
	case ShapeArray:
		return "array"
	case ShapeKeyValue:
		return "key_value"
	}
	return "unknown"
}

// Result is either Parsed or Failed.
type Result[T any] struct {
	value   T
	ok      bool
	lenient bool
	reason  string
}

// Parsed wraps a successfully decoded value.
func Parsed[T any](v T, lenient bool) Result[T] {
	return Result[T]{value: v, ok: true, lenient: lenient}
}

// Failed reports a parse failure. It is a value, not an error.
func Failed[T any](reason string) Result[T] {
	return Result[T]{reason: reason}
}

func (r Result[T]) OK() bool { return r.ok }

// Value returns the decoded value and whether parsing succeeded.
func (r Result[T]) Value() (T, bool) { return r.value, r.ok }

// Lenient reports whether the value was only recovered after cleanup.
func (r Result[T]) Lenient() bool { return r.lenient }

// Reason explains a failure. Empty when parsing succeeded.
func (r Result[T]) Reason() string { return r.reason }

// Or returns the parsed value or fallback.
func (r Result[T]) Or(fallback T) T {
	if r.ok {
		return r.value
	}
	return fallback
}
