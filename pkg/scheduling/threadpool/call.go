package threadpool

import (
	"fmt"
	"math"
	"reflect"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
	"github.com/vnykmshr/threadpool/pkg/scheduling/future"
)

var errorType = reflect.TypeFor[error]()

// SubmitCall queues a call of an arbitrary function with the given
// arguments and returns a future for its results.
//
// Arguments are checked against fn's signature when SubmitCall is called
// and bound immediately. Numeric arguments are converted to the parameter
// type when the value is represented exactly: an out-of-range value, a
// negative value for an unsigned parameter or a fractional value for an
// integer parameter is rejected. Nil is accepted for pointer, interface, map, slice, chan and func
// parameters. If the last result of fn is an error it is removed from the
// result slice and reported as the future's error.
func SubmitCall(p *Pool, fn any, args ...any) (*future.Future[[]any], error) {
	fv := reflect.ValueOf(fn)
	if !fv.IsValid() || fv.Kind() != reflect.Func || fv.IsNil() {
		return nil, tperrors.NewValidationError(module, "fn", fn, "must be a non-nil function")
	}
	ft := fv.Type()

	in, err := bindArgs(ft, args)
	if err != nil {
		return nil, err
	}

	returnsErr := ft.NumOut() > 0 && ft.Out(ft.NumOut()-1) == errorType

	return submit(p, func() ([]any, error) {
		out := fv.Call(in)

		var callErr error
		if returnsErr {
			last := out[len(out)-1]
			out = out[:len(out)-1]
			if !last.IsNil() {
				callErr = last.Interface().(error)
			}
		}

		results := make([]any, len(out))
		for i, v := range out {
			results[i] = v.Interface()
		}
		return results, callErr
	})
}

// bindArgs converts args into call values for a function of type ft.
func bindArgs(ft reflect.Type, args []any) ([]reflect.Value, error) {
	fixed := ft.NumIn()
	if ft.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, arityError(ft, len(args))
		}
	} else if len(args) != fixed {
		return nil, arityError(ft, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var want reflect.Type
		if i < fixed {
			want = ft.In(i)
		} else {
			want = ft.In(fixed).Elem()
		}

		v, err := convertArg(arg, want)
		if err != nil {
			return nil, tperrors.NewValidationError(module, fmt.Sprintf("args[%d]", i), arg, err.Error())
		}
		in[i] = v
	}
	return in, nil
}

func convertArg(arg any, want reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch want.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
			return reflect.Zero(want), nil
		}
		return reflect.Value{}, fmt.Errorf("nil is not assignable to %s", want)
	}

	v := reflect.ValueOf(arg)
	switch {
	case v.Type().AssignableTo(want):
		return v, nil
	case isNumeric(v.Kind()) && isNumeric(want.Kind()):
		out, ok := convertNumeric(v, want)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%v does not fit in %s", arg, want)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("%s is not assignable to %s", v.Type(), want)
}

// convertNumeric converts v to want, reporting false if the value would
// change on the way.
func convertNumeric(v reflect.Value, want reflect.Type) (reflect.Value, bool) {
	out := reflect.New(want).Elem()

	switch {
	case isSigned(v.Kind()):
		n := v.Int()
		switch {
		case isSigned(want.Kind()):
			if out.OverflowInt(n) {
				return out, false
			}
			out.SetInt(n)
		case isUnsigned(want.Kind()):
			if n < 0 || out.OverflowUint(uint64(n)) {
				return out, false
			}
			out.SetUint(uint64(n))
		default:
			out.SetFloat(float64(n))
		}

	case isUnsigned(v.Kind()):
		u := v.Uint()
		switch {
		case isSigned(want.Kind()):
			if u > math.MaxInt64 || out.OverflowInt(int64(u)) {
				return out, false
			}
			out.SetInt(int64(u))
		case isUnsigned(want.Kind()):
			if out.OverflowUint(u) {
				return out, false
			}
			out.SetUint(u)
		default:
			out.SetFloat(float64(u))
		}

	default:
		f := v.Float()
		switch {
		case isSigned(want.Kind()):
			// 2^63 itself is out of range for int64.
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 || out.OverflowInt(int64(f)) {
				return out, false
			}
			out.SetInt(int64(f))
		case isUnsigned(want.Kind()):
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 || out.OverflowUint(uint64(f)) {
				return out, false
			}
			out.SetUint(uint64(f))
		default:
			if out.OverflowFloat(f) {
				return out, false
			}
			out.SetFloat(f)
		}
	}
	return out, true
}

func isSigned(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUnsigned(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func isNumeric(k reflect.Kind) bool {
	return isSigned(k) || isUnsigned(k) || k == reflect.Float32 || k == reflect.Float64
}

func arityError(ft reflect.Type, got int) error {
	want := fmt.Sprintf("%d", ft.NumIn())
	if ft.IsVariadic() {
		want = fmt.Sprintf("at least %d", ft.NumIn()-1)
	}
	return tperrors.NewValidationError(module, "args", got, "wrong argument count").
		WithHint(fmt.Sprintf("%s takes %s arguments", ft, want))
}
