// Package sortedset provides ordered, duplicate-free slices kept sorted by a
// caller-supplied comparator, and a linear diff between two such slices.
package sortedset

import "slices"

// Insert adds v to the sorted slice s if no equal element is present.
// It returns the possibly grown slice and whether v was added.
func Insert[T any](s []T, v T, cmp func(a, b T) int) ([]T, bool) {
	i, found := slices.BinarySearchFunc(s, v, cmp)
	if found {
		return s, false
	}
	return slices.Insert(s, i, v), true
}

// Remove deletes the element equal to v from the sorted slice s.
func Remove[T any](s []T, v T, cmp func(a, b T) int) ([]T, bool) {
	i, found := slices.BinarySearchFunc(s, v, cmp)
	if !found {
		return s, false
	}
	return slices.Delete(s, i, i+1), true
}

// Contains reports whether the sorted slice s holds an element equal to v.
func Contains[T any](s []T, v T, cmp func(a, b T) int) bool {
	_, found := slices.BinarySearchFunc(s, v, cmp)
	return found
}

// From sorts a copy of items and drops duplicates.
func From[T any](items []T, cmp func(a, b T) int) []T {
	out := slices.Clone(items)
	slices.SortFunc(out, cmp)
	return slices.CompactFunc(out, func(a, b T) bool { return cmp(a, b) == 0 })
}

// IsSorted reports whether s is strictly increasing under cmp.
func IsSorted[T any](s []T, cmp func(a, b T) int) bool {
	for i := 1; i < len(s); i++ {
		if cmp(s[i-1], s[i]) >= 0 {
			return false
		}
	}
	return true
}

// Diff walks two strictly sorted slices in lock-step. onInsert is called for
// each element only in newItems and onDelete for each element only in
// oldItems. Either callback may be nil.
func Diff[T any](newItems, oldItems []T, cmp func(a, b T) int, onInsert, onDelete func(T)) {
	if onInsert == nil {
		onInsert = func(T) {}
	}
	if onDelete == nil {
		onDelete = func(T) {}
	}

	i, j := 0, 0
	for i < len(newItems) && j < len(oldItems) {
		switch c := cmp(newItems[i], oldItems[j]); {
		case c < 0:
			onInsert(newItems[i])
			i++
		case c > 0:
			onDelete(oldItems[j])
			j++
		default:
			i++
			j++
		}
	}
	for ; i < len(newItems); i++ {
		onInsert(newItems[i])
	}
	for ; j < len(oldItems); j++ {
		onDelete(oldItems[j])
	}
}
