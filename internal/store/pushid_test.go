package store

import (
	"sort"
	"testing"
	"time"
)

func TestNextIDLengthAndAlphabet(t *testing.T) {
	gen := NewIDGenerator(1)
	id := gen.NextID(time.UnixMilli(1_700_000_000_000))
	if len(id) != 20 {
		t.Fatalf("id length = %d, want 20", len(id))
	}
	for i := 0; i < len(id); i++ {
		found := false
		for j := 0; j < len(pushAlphabet); j++ {
			if id[i] == pushAlphabet[j] {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("id byte %q outside the push alphabet", id[i])
		}
	}
}

func TestIDsSortByCreationTime(t *testing.T) {
	gen := NewIDGenerator(1)
	base := time.UnixMilli(1_700_000_000_000)

	var ids []string
	for i := 0; i < 50; i++ {
		ids = append(ids, gen.NextID(base.Add(time.Duration(i)*time.Millisecond)))
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatal("ids minted at increasing times must sort lexicographically")
	}
}

func TestSameMillisecondIDsStayOrdered(t *testing.T) {
	gen := NewIDGenerator(1)
	now := time.UnixMilli(1_700_000_000_000)

	prev := gen.NextID(now)
	for i := 0; i < 1000; i++ {
		id := gen.NextID(now)
		if id <= prev {
			t.Fatalf("id %q does not sort after %q within one millisecond", id, prev)
		}
		prev = id
	}
}

func TestClockBackwardsDoesNotReorder(t *testing.T) {
	gen := NewIDGenerator(1)
	first := gen.NextID(time.UnixMilli(1_700_000_000_000))
	second := gen.NextID(time.UnixMilli(1_699_999_999_000))
	if second <= first {
		t.Fatalf("id minted after a clock step back must still sort later: %q then %q", first, second)
	}
}

func TestIDsAreUnique(t *testing.T) {
	gen := NewIDGenerator(42)
	now := time.UnixMilli(1_700_000_000_000)
	seen := make(map[string]struct{}, 5000)
	for i := 0; i < 5000; i++ {
		id := gen.NextID(now.Add(time.Duration(i%3) * time.Millisecond))
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestSplitPath(t *testing.T) {
	cases := []struct {
		in         string
		collection string
		key        string
		wantErr    bool
	}{
		{"rooms/plaza/users/ada", "rooms/plaza/users", "ada", false},
		{"rooms/plaza/messages/-Nabc", "rooms/plaza/messages", "-Nabc", false},
		{"ada", "", "", true},
		{"/ada", "", "", true},
		{"rooms/plaza/users/", "", "", true},
		{"", "", "", true},
	}
	for _, tc := range cases {
		collection, key, err := SplitPath(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("SplitPath(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if collection != tc.collection || key != tc.key {
			t.Fatalf("SplitPath(%q) = (%q, %q), want (%q, %q)", tc.in, collection, key, tc.collection, tc.key)
		}
	}
}

func TestSnapshotTail(t *testing.T) {
	snap := Snapshot{{Key: "a"}, {Key: "b"}, {Key: "c"}}
	if got := snap.Tail(2); len(got) != 2 || got[0].Key != "b" {
		t.Fatalf("Tail(2) = %v", got)
	}
	if got := snap.Tail(0); len(got) != 3 {
		t.Fatalf("Tail(0) should return everything, got %v", got)
	}
	if got := snap.Tail(10); len(got) != 3 {
		t.Fatalf("Tail larger than the snapshot should return everything, got %v", got)
	}
}
