package utils

// SliceSelect provides a way of querying a specific element from a slice's elements into a slice of its own.
func SliceSelect[T any, K any](x []T, f func(x T) K) []K {
	r := make([]K, len(x))
	for i := 0; i < len(x); i++ {
		r[i] = f(x[i])
	}
	return r
}
