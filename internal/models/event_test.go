package models

import (
	"testing"
)

func TestSeverity_Rank(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"low", 1},
		{"Medium", 2},
		{" HIGH ", 3},
		{"critical", 4},
		{"extreme", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ParseSeverity(tt.in).Rank(); got != tt.want {
			t.Errorf("ParseSeverity(%q).Rank() = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLocation_Valid(t *testing.T) {
	if !(Location{Lat: 90, Lng: -180}).Valid() {
		t.Error("expected boundary coordinates to be valid")
	}
	if (Location{Lat: 91, Lng: 0}).Valid() {
		t.Error("expected lat 91 to be invalid")
	}
	if (Location{Lat: 0, Lng: 180.5}).Valid() {
		t.Error("expected lng 180.5 to be invalid")
	}
}

func TestSortByRecency(t *testing.T) {
	events := []DisasterEvent{
		{ID: "old", Timestamp: "2024-01-15T10:45:00Z"},
		{ID: "bad", Timestamp: "yesterday"},
		{ID: "new", Timestamp: "2024-01-15T14:30:00Z"},
		{ID: "mid", Timestamp: "2024-01-15T12:15:00Z"},
	}
	SortByRecency(events)

	want := []string{"new", "mid", "old", "bad"}
	for i, id := range want {
		if events[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, events[i].ID)
		}
	}
}

func TestSnapshot_Find(t *testing.T) {
	s := &Snapshot{Events: []DisasterEvent{{ID: "a"}, {ID: "b"}}}
	if _, ok := s.Find("b"); !ok {
		t.Error("expected to find b")
	}
	if _, ok := s.Find("z"); ok {
		t.Error("did not expect to find z")
	}
	var nilSnap *Snapshot
	if _, ok := nilSnap.Find("a"); ok {
		t.Error("nil snapshot should find nothing")
	}
}
