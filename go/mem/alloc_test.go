package mem

import (
	"bytes"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func check(t *testing.T, a *Allocator) {
	t.Helper()
	if err := a.Check(); err != nil {
		t.Fatal(err)
	}
	total, used := a.Status()
	if a.FreeFrames()+used != total {
		t.Fatalf("free %d + used %d != total %d", a.FreeFrames(), used, total)
	}
}

func TestAllocScenario(t *testing.T) {
	a := New(20, nil)
	if err := a.Reserve(Run{0, 2}); err != nil {
		t.Fatal(err)
	}
	if _, used := a.Status(); used != 2 {
		t.Fatalf("used = %d after boot reservation", used)
	}
	runs, err := a.Alloc(5)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(runs, []Run{{2, 5}}) {
		t.Fatalf("Alloc(5) = %v, expecting [2,7)", runs)
	}
	if _, used := a.Status(); used != 7 {
		t.Fatalf("used = %d, expecting 7", used)
	}
	check(t, a)
}

func TestAllocRoundTrip(t *testing.T) {
	a := New(64, nil)
	a.Reserve(Run{0, 3})
	before := a.FreeFrames()
	var all [][]Run
	for _, n := range []int{1, 7, 3, 16, 2} {
		runs, err := a.Alloc(n)
		if err != nil {
			t.Fatal(err)
		}
		all = append(all, runs)
		check(t, a)
	}
	// free out of order
	for _, i := range []int{3, 0, 4, 1, 2} {
		a.Free(all[i])
		check(t, a)
	}
	if a.FreeFrames() != before {
		t.Fatalf("free frames %d after round trip, expecting %d", a.FreeFrames(), before)
	}
}

func TestAllocSplitsAcrossRegions(t *testing.T) {
	a := New(16, nil)
	// leave holes [0,2) [4,6) [8,16)
	a.Reserve(Run{2, 2})
	a.Reserve(Run{6, 2})
	runs, err := a.Alloc(10)
	if err != nil {
		t.Fatal(err)
	}
	want := []Run{{0, 2}, {4, 2}, {8, 6}}
	if !reflect.DeepEqual(runs, want) {
		t.Fatalf("Alloc(10) = %v, expecting %v", runs, want)
	}
	check(t, a)

	// a request that fits a single region is not split, even if lower regions are free
	a = New(16, nil)
	a.Reserve(Run{2, 2})
	runs, _ = a.Alloc(4)
	if !reflect.DeepEqual(runs, []Run{{4, 4}}) {
		t.Fatalf("Alloc(4) = %v, expecting [4,8)", runs)
	}
}

func TestAllocExhaustionDoesNotCommit(t *testing.T) {
	a := New(8, nil)
	a.Reserve(Run{3, 1})
	before := a.Regions()
	if _, err := a.Alloc(8); errors.Cause(err) != ErrNoMemory {
		t.Fatalf("expected ErrNoMemory, got %v", err)
	}
	if !reflect.DeepEqual(before, a.Regions()) {
		t.Fatalf("free list changed on failed alloc: %v -> %v", before, a.Regions())
	}
	if _, used := a.Status(); used != 1 {
		t.Fatalf("used = %d after failed alloc", used)
	}
	if _, err := a.Alloc(0); err == nil {
		t.Fatal("Alloc(0) succeeded")
	}
}

func TestFreeMergesOneNeighbour(t *testing.T) {
	a := New(10, nil)
	runs, _ := a.Alloc(10)
	// free list: [0,2) [5,10)
	a.Free([]Run{{0, 2}})
	a.Free([]Run{{5, 5}})
	if got := a.Regions(); !reflect.DeepEqual(got, []Run{{0, 2}, {5, 5}}) {
		t.Fatalf("regions %v", got)
	}
	// [2,5) touches both sides but only merges into its predecessor
	a.Free([]Run{{2, 3}})
	if got := a.Regions(); !reflect.DeepEqual(got, []Run{{0, 5}, {5, 5}}) {
		t.Fatalf("regions %v, expecting [0,5) [5,10)", got)
	}
	check(t, a)
	_ = runs

	// without a contiguous predecessor the successor absorbs the run
	a = New(10, nil)
	a.Alloc(10)
	a.Free([]Run{{6, 4}})
	a.Free([]Run{{3, 3}})
	if got := a.Regions(); !reflect.DeepEqual(got, []Run{{3, 7}}) {
		t.Fatalf("regions %v, expecting [3,10)", got)
	}
	check(t, a)
}

func TestAllocAligned(t *testing.T) {
	a := New(32, nil)
	a.Reserve(Run{0, 1})
	run, err := a.AllocAligned(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if run != (Run{4, 4}) {
		t.Fatalf("AllocAligned = %v", run)
	}
	// frames 1..3 stay free in front of the aligned run
	if got := a.Regions(); !reflect.DeepEqual(got, []Run{{1, 3}, {8, 24}}) {
		t.Fatalf("regions %v", got)
	}
	check(t, a)
	if _, err := a.AllocAligned(32, 4); errors.Cause(err) != ErrNoMemory {
		t.Fatalf("expected ErrNoMemory, got %v", err)
	}
}

func TestUsageWarningOnce(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	a := New(10, log)
	a.Alloc(8)
	if strings.Contains(buf.String(), "90%") {
		t.Fatal("warned below 90%")
	}
	a.Alloc(1)
	a.Alloc(1)
	if n := strings.Count(buf.String(), "90%"); n != 1 {
		t.Fatalf("warned %d times, expecting once", n)
	}
}

func TestReserveRejectsUsedFrames(t *testing.T) {
	a := New(8, nil)
	a.Alloc(4)
	if err := a.Reserve(Run{2, 2}); err == nil {
		t.Fatal("reserved frames that were already allocated")
	}
}

func TestDoubleFreePanics(t *testing.T) {
	a := New(8, nil)
	runs, _ := a.Alloc(2)
	a.Free(runs)
	defer func() {
		if recover() == nil {
			t.Fatal("double free did not panic")
		}
	}()
	a.Free(runs)
}
