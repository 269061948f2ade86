// Package validation holds the argument checks shared by fanflow constructors.
//
// Every helper returns a *errors.ValidationError, so callers can match
// errors.ErrInvalidConfiguration regardless of which component rejected
// the value.
package validation
