package bridge

import "fmt"

// TypeError reports a wrong script-value kind, missing internal fields,
// mismatched type descriptor, or use-after-destroy.
type TypeError struct {
	TypeName string
	Msg      string
}

func (e *TypeError) Error() string {
	if e.TypeName == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.TypeName, e.Msg)
}

func NewTypeError(typeName, format string, args ...any) *TypeError {
	return &TypeError{TypeName: typeName, Msg: fmt.Sprintf(format, args...)}
}

// RangeError reports an argument-count mismatch.
type RangeError struct {
	Msg string
}

func (e *RangeError) Error() string { return e.Msg }

func NewRangeError(format string, args ...any) *RangeError {
	return &RangeError{Msg: fmt.Sprintf(format, args...)}
}

// OverloadError reports zero or multiple matching constructors for a class.
type OverloadError struct {
	TypeName string
	Matches  int
}

func (e *OverloadError) Error() string {
	if e.Matches == 0 {
		return fmt.Sprintf("%s: no constructor overload matches the given arguments", e.TypeName)
	}
	return fmt.Sprintf("%s: ambiguous constructor call, %d overloads match", e.TypeName, e.Matches)
}

func NewOverloadError(typeName string, matches int) *OverloadError {
	return &OverloadError{TypeName: typeName, Matches: matches}
}
