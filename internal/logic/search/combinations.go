package search

// multisets walks every non-decreasing index tuple of length 1..maxSize over
// n items, in size order then lexicographic order. visit receives a buffer
// that is reused between calls and returns false to stop the walk.
func multisets(n, maxSize int, visit func(idx []int) bool) {
	if n <= 0 || maxSize <= 0 {
		return
	}
	idx := make([]int, maxSize)
	for size := 1; size <= maxSize; size++ {
		cur := idx[:size]
		for i := range cur {
			cur[i] = 0
		}
		for {
			if !visit(cur) {
				return
			}
			// Advance to the next combination with replacement.
			i := size - 1
			for i >= 0 && cur[i] == n-1 {
				i--
			}
			if i < 0 {
				break
			}
			cur[i]++
			for j := i + 1; j < size; j++ {
				cur[j] = cur[i]
			}
		}
	}
}

// multisetCount returns C(n+k-1, k) summed over k in 1..maxSize, saturating
// at the largest int64.
func multisetCount(n, maxSize int) int64 {
	const maxInt64 = int64(^uint64(0) >> 1)
	if n <= 0 {
		return 0
	}
	var total int64
	for k := 1; k <= maxSize; k++ {
		c := int64(1)
		for i := 1; i <= k; i++ {
			num := int64(n + i - 1)
			if c > maxInt64/num {
				return maxInt64
			}
			c = c * num / int64(i)
		}
		if total > maxInt64-c {
			return maxInt64
		}
		total += c
	}
	return total
}
