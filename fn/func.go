package fn

// Map applies the given mapping function to each element of the given slice
// and generates a new slice.
func Map[I, O any, S []I](s S, f func(I) O) []O {
	output := make([]O, len(s))

	for i, x := range s {
		output[i] = f(x)
	}

	return output
}

// Filter applies the given predicate function to each element of the given
// slice and generates a new slice containing only the elements for which the
// predicate returned true.
func Filter[T any](s []T, f func(T) bool) []T {
	output := make([]T, 0, len(s))

	for _, x := range s {
		if f(x) {
			output = append(output, x)
		}
	}

	return output
}

// MapErr applies the given fallible mapping function to each element of the
// given slice and generates a new slice. This is identical to Map, but
// returns early if any single mapping fails.
func MapErr[I, O any, S []I](s S, f func(I) (O, error)) ([]O, error) {
	output := make([]O, len(s))
	var err error

	for i, x := range s {
		output[i], err = f(x)
		if err != nil {
			return nil, err
		}
	}

	return output, nil
}

// Any returns true if the passed predicate returns true for any item in the
// slice.
func Any[T any](xs []T, pred func(T) bool) bool {
	for i := range xs {
		if pred(xs[i]) {
			return true
		}
	}

	return false
}
