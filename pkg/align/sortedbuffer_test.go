// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package align

import "testing"

func mustPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic, got none", name)
		}
	}()
	f()
}

func TestNewSortedBufferZeroSizePanics(t *testing.T) {
	mustPanic(t, "NewSortedBuffer(0)", func() {
		NewSortedBuffer[string](0)
	})
}

// TestOrderingCorrectness is Scenario C from spec.md §8: inserting
// timestamps 2,5,1,4,3 on an empty buffer must report positions 0,0,2,1,2
// and leave the buffer descending as [5,4,3,2,1].
func TestOrderingCorrectness(t *testing.T) {
	b := NewSortedBuffer[string](10)

	inserts := []uint64{2, 5, 1, 4, 3}
	wantPositions := []int{0, 0, 2, 1, 2}

	for i, ts := range inserts {
		got := b.Insert(Entry[string]{Value: "v", IndexValue: ts})
		if got != wantPositions[i] {
			t.Errorf("insert(%d) position = %d, want %d", ts, got, wantPositions[i])
		}
	}

	wantOrder := []uint64{5, 4, 3, 2, 1}
	if b.Len() != len(wantOrder) {
		t.Fatalf("Len() = %d, want %d", b.Len(), len(wantOrder))
	}
	for i, want := range wantOrder {
		if got := b.At(i).IndexValue; got != want {
			t.Errorf("At(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestInsertTieBreaksBeforeExistingEquals(t *testing.T) {
	b := NewSortedBuffer[string](10)
	b.Insert(Entry[string]{Value: "old", IndexValue: 5})
	pos := b.Insert(Entry[string]{Value: "new", IndexValue: 5})

	if pos != 0 {
		t.Fatalf("tie-inserted entry position = %d, want 0", pos)
	}
	if b.At(0).Value != "new" {
		t.Errorf("At(0).Value = %q, want %q (newest tying entry goes first)", b.At(0).Value, "new")
	}
	if b.At(1).Value != "old" {
		t.Errorf("At(1).Value = %q, want %q", b.At(1).Value, "old")
	}
}

func TestInsertSameEntryTwicePreservesOrdering(t *testing.T) {
	b := NewSortedBuffer[int](10)
	b.Insert(Entry[int]{Value: 1, IndexValue: 7})
	b.Insert(Entry[int]{Value: 1, IndexValue: 7})

	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (duplicate insert must not dedupe)", b.Len())
	}
	for i := 0; i < b.Len(); i++ {
		if b.At(i).IndexValue != 7 {
			t.Errorf("At(%d).IndexValue = %d, want 7", i, b.At(i).IndexValue)
		}
	}
}

func TestOverflowEvictsOldest(t *testing.T) {
	b := NewSortedBuffer[int](3)
	for _, ts := range []uint64{10, 20, 30, 40} {
		b.Insert(Entry[int]{Value: int(ts), IndexValue: ts})
	}

	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
	wantOrder := []uint64{40, 30, 20}
	for i, want := range wantOrder {
		if got := b.At(i).IndexValue; got != want {
			t.Errorf("At(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestGetReturnsNearestWithinDelta(t *testing.T) {
	b := NewSortedBuffer[string](10)
	for _, ts := range []uint64{100, 104, 110, 120} {
		b.Insert(Entry[string]{IndexValue: ts})
	}

	res, ok := b.Get(102, 5)
	if !ok {
		t.Fatal("Get(102, 5) = not found, want found")
	}
	if res.Entry.IndexValue != 104 {
		t.Errorf("Get(102,5).Entry.IndexValue = %d, want 104", res.Entry.IndexValue)
	}
	if res.Delta != 2 {
		t.Errorf("Get(102,5).Delta = %d, want 2", res.Delta)
	}
}

func TestGetOutsideToleranceReturnsNotFound(t *testing.T) {
	b := NewSortedBuffer[string](10)
	b.Insert(Entry[string]{IndexValue: 100})

	if _, ok := b.Get(200, 5); ok {
		t.Error("Get(200,5) = found, want not found (out of tolerance)")
	}
}

func TestGetZeroDeltaRequiresExactMatch(t *testing.T) {
	b := NewSortedBuffer[string](10)
	b.Insert(Entry[string]{IndexValue: 100})

	if _, ok := b.Get(101, 0); ok {
		t.Error("Get(101,0) = found, want not found (Δ=0 requires exact match)")
	}
	if res, ok := b.Get(100, 0); !ok || res.Delta != 0 {
		t.Errorf("Get(100,0) = (%+v, %v), want exact match with delta 0", res, ok)
	}
}

func TestGetTieBreaksToLowerPosition(t *testing.T) {
	b := NewSortedBuffer[string](10)
	// Descending buffer: [110, 90]. Querying the midpoint 100 with Δ=10
	// makes both entries (110 at pos 0, 90 at pos 1) equidistant with no
	// exact hit, so the tie-break decides.
	b.Insert(Entry[string]{IndexValue: 110})
	b.Insert(Entry[string]{IndexValue: 90})

	res, ok := b.Get(100, 10)
	if !ok {
		t.Fatal("Get(100,10) = not found")
	}
	if res.Position != 0 {
		t.Errorf("Get(100,10) tie-break position = %d, want 0 (lower position wins)", res.Position)
	}
}

func TestGetDoesNotMutate(t *testing.T) {
	b := NewSortedBuffer[string](10)
	b.Insert(Entry[string]{IndexValue: 100})

	before := b.Len()
	b.Get(100, 0)
	if b.Len() != before {
		t.Errorf("Get mutated buffer length: before=%d after=%d", before, b.Len())
	}
}

func TestRemoveSingleEntry(t *testing.T) {
	b := NewSortedBuffer[string](10)
	for _, ts := range []uint64{30, 20, 10} {
		b.Insert(Entry[string]{IndexValue: ts})
	}

	res := b.Remove(1, false)
	if res.Count != 1 {
		t.Errorf("Remove(1,false).Count = %d, want 1", res.Count)
	}
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
	if b.At(0).IndexValue != 30 || b.At(1).IndexValue != 10 {
		t.Errorf("remaining entries = [%d,%d], want [30,10]", b.At(0).IndexValue, b.At(1).IndexValue)
	}
}

func TestRemoveDropOlder(t *testing.T) {
	b := NewSortedBuffer[string](10)
	for _, ts := range []uint64{40, 30, 20, 10} {
		b.Insert(Entry[string]{IndexValue: ts})
	}

	res := b.Remove(1, true)
	if res.Count != 3 {
		t.Errorf("Remove(1,true).Count = %d, want 3", res.Count)
	}
	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}
	if b.At(0).IndexValue != 40 {
		t.Errorf("surviving entry = %d, want 40", b.At(0).IndexValue)
	}
}

func TestRemoveOutOfRangePanics(t *testing.T) {
	b := NewSortedBuffer[string](10)
	b.Insert(Entry[string]{IndexValue: 1})

	mustPanic(t, "Remove(5,false)", func() {
		b.Remove(5, false)
	})
}
