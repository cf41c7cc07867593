// Package nilcheck detects nil values hiding behind non-nil interfaces.
package nilcheck

import "reflect"

// Interface reports whether value is nil, including the typed-nil case where
// a nil concrete pointer has been boxed into a non-nil interface.
func Interface(value any) bool {
	if value == nil {
		return true
	}

	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}
