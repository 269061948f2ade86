package fanout

import "errors"

// Predicate inspects a finished operation. RunUntil aborts its batch on the
// first outcome for which the predicate returns true.
type Predicate[Resp any] func(Outcome[Resp]) bool

// IsFailure matches operations that failed or timed out.
func IsFailure[Resp any](o Outcome[Resp]) bool {
	return o.Kind == Failed || o.Kind == TimedOut
}

// IsTimeout matches operations that timed out.
func IsTimeout[Resp any](o Outcome[Resp]) bool {
	return o.Kind == TimedOut
}

// ErrorIs matches failed operations whose error wraps target, such as an
// authorization rejection that makes the rest of the batch pointless.
func ErrorIs[Resp any](target error) Predicate[Resp] {
	return func(o Outcome[Resp]) bool {
		return o.Kind == Failed && errors.Is(o.Err, target)
	}
}

// ErrorMatches matches failed operations whose error satisfies match.
func ErrorMatches[Resp any](match func(error) bool) Predicate[Resp] {
	return func(o Outcome[Resp]) bool {
		return o.Kind == Failed && match(o.Err)
	}
}
