package registry

import (
	"slices"

	"golang.org/x/exp/constraints"
)

// chunk splits items into consecutive groups of at most size elements.
func chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// uniqueSorted returns the distinct ids in ascending order.
func uniqueSorted[T constraints.Integer](ids []T) []T {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
