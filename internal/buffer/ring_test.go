package buffer

import (
	"reflect"
	"testing"
)

func TestRingWrapsOldestFirst(t *testing.T) {
	ring := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		ring.Add(i)
	}

	if got := ring.List(); !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Fatalf("list = %v", got)
	}
	if ring.Len() != 3 {
		t.Fatalf("len = %d", ring.Len())
	}
}

func TestRingLast(t *testing.T) {
	ring := NewRing[string](4)
	for _, value := range []string{"a", "b", "c", "d", "e"} {
		ring.Add(value)
	}

	if got := ring.Last(2); !reflect.DeepEqual(got, []string{"d", "e"}) {
		t.Fatalf("last(2) = %v", got)
	}
	if got := ring.Last(10); !reflect.DeepEqual(got, []string{"b", "c", "d", "e"}) {
		t.Fatalf("last(10) = %v", got)
	}
	if got := ring.Last(0); got != nil {
		t.Fatalf("last(0) = %v", got)
	}
}

func TestRingNilSafety(t *testing.T) {
	var ring *Ring[int]
	ring.Add(1)
	if ring.Len() != 0 || ring.List() != nil || ring.Last(1) != nil {
		t.Fatalf("nil ring should be inert")
	}
}
