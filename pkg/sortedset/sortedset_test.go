package sortedset

import (
	"cmp"
	"math/rand"
	"slices"
	"testing"
)

func TestInsertKeepsOrderAndUniqueness(t *testing.T) {
	var s []string
	for _, v := range []string{"c.ts", "a.ts", "b.ts", "a.ts", "c.ts"} {
		s, _ = Insert(s, v, cmp.Compare[string])
	}

	want := []string{"a.ts", "b.ts", "c.ts"}
	if !slices.Equal(s, want) {
		t.Errorf("Insert() = %v, want %v", s, want)
	}

	if _, added := Insert(s, "b.ts", cmp.Compare[string]); added {
		t.Error("Insert() of existing element reported added")
	}
}

func TestRemove(t *testing.T) {
	s := []string{"a.ts", "b.ts", "c.ts"}

	s, removed := Remove(s, "b.ts", cmp.Compare[string])
	if !removed {
		t.Fatal("Remove() did not remove b.ts")
	}
	if !slices.Equal(s, []string{"a.ts", "c.ts"}) {
		t.Errorf("Remove() = %v", s)
	}

	if _, removed := Remove(s, "z.ts", cmp.Compare[string]); removed {
		t.Error("Remove() of missing element reported removed")
	}
}

func TestFromSortsAndDeduplicates(t *testing.T) {
	got := From([]int{5, 1, 3, 1, 5, 2}, cmp.Compare[int])
	want := []int{1, 2, 3, 5}
	if !slices.Equal(got, want) {
		t.Errorf("From() = %v, want %v", got, want)
	}
	if !IsSorted(got, cmp.Compare[int]) {
		t.Error("From() result not strictly sorted")
	}
	if !Contains(got, 3, cmp.Compare[int]) || Contains(got, 4, cmp.Compare[int]) {
		t.Error("Contains() disagrees with From() result")
	}
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name        string
		newItems    []int
		oldItems    []int
		wantInserts []int
		wantDeletes []int
	}{
		{"both empty", nil, nil, nil, nil},
		{"all new", []int{1, 2}, nil, []int{1, 2}, nil},
		{"all gone", nil, []int{1, 2}, nil, []int{1, 2}},
		{"unchanged", []int{1, 2, 3}, []int{1, 2, 3}, nil, nil},
		{"interleaved", []int{1, 3, 5, 7}, []int{2, 3, 4, 7, 9}, []int{1, 5}, []int{2, 4, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inserts, deletes []int
			Diff(tt.newItems, tt.oldItems, cmp.Compare[int],
				func(v int) { inserts = append(inserts, v) },
				func(v int) { deletes = append(deletes, v) })

			if !slices.Equal(inserts, tt.wantInserts) {
				t.Errorf("inserts = %v, want %v", inserts, tt.wantInserts)
			}
			if !slices.Equal(deletes, tt.wantDeletes) {
				t.Errorf("deletes = %v, want %v", deletes, tt.wantDeletes)
			}
		})
	}
}

// The merge diff must agree with plain set difference for arbitrary inputs.
func TestDiffMatchesSetDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		newItems := randomSet(rng)
		oldItems := randomSet(rng)

		var inserts, deletes []int
		Diff(newItems, oldItems, cmp.Compare[int],
			func(v int) { inserts = append(inserts, v) },
			func(v int) { deletes = append(deletes, v) })

		wantInserts := difference(newItems, oldItems)
		wantDeletes := difference(oldItems, newItems)

		if !slices.Equal(inserts, wantInserts) {
			t.Fatalf("round %d: inserts = %v, want %v (new=%v old=%v)", round, inserts, wantInserts, newItems, oldItems)
		}
		if !slices.Equal(deletes, wantDeletes) {
			t.Fatalf("round %d: deletes = %v, want %v (new=%v old=%v)", round, deletes, wantDeletes, newItems, oldItems)
		}
	}
}

func randomSet(rng *rand.Rand) []int {
	n := rng.Intn(12)
	items := make([]int, n)
	for i := range items {
		items[i] = rng.Intn(20)
	}
	return From(items, cmp.Compare[int])
}

func difference(a, b []int) []int {
	in := make(map[int]bool, len(b))
	for _, v := range b {
		in[v] = true
	}
	var out []int
	for _, v := range a {
		if !in[v] {
			out = append(out, v)
		}
	}
	return out
}
