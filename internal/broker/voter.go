package broker

import "github.com/Gyro91/CBSD-Project/internal/wire"

// Vote applies the plurality rule over a cohort's collected replies. For
// N=3 this reduces exactly to: v0 wins if it matches either other value,
// else v1 wins if it matches v2, else no majority. The general rule below
// returns the value whose multiplicity reaches ⌈(N+1)/2⌉; a tie at or
// above threshold cannot occur since two values can't simultaneously
// clear a majority of the same N, so ties always mean failure.
func Vote(values []int32) (result int32, ok bool) {
	threshold := wire.MajorityThreshold(len(values))

	counts := make(map[int32]int, len(values))
	for _, v := range values {
		counts[v]++
	}

	for v, n := range counts {
		if n >= threshold {
			return v, true
		}
	}
	return 0, false
}
