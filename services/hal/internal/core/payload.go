package core

import "rotary-go/errcode"

// As[T] asserts a payload to the concrete value type T.
// A pointer to T is accepted too. A nil payload is treated as the zero value.
func As[T any](v any) (T, errcode.Code) {
	var zero T
	switch t := v.(type) {
	case nil:
		return zero, ""
	case T:
		return t, ""
	case *T:
		if t == nil {
			return zero, ""
		}
		return *t, ""
	}
	return zero, errcode.InvalidPayload
}
