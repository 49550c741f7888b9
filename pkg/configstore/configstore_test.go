package configstore

import (
	"reflect"
	"testing"

	"github.com/vango-dev/statekit/pkg/eventmap"
)

func TestStoreSetMerges(t *testing.T) {
	s := New(nil)
	s.Set("nourl", "true")
	s.SetAll(map[string]any{"stateCss": "brand|year"})

	want := eventmap.Snapshot{"nourl": "true", "stateCss": "brand|year"}
	if !reflect.DeepEqual(s.GetAll(), want) {
		t.Errorf("GetAll() = %v, want %v", s.GetAll(), want)
	}
}

func TestStoreSetAllNotifiesOnce(t *testing.T) {
	s := New(nil)
	calls := 0
	s.OnChange(func(eventmap.Event, eventmap.Snapshot, eventmap.Snapshot) { calls++ })

	s.SetAll(map[string]any{"a": "1", "b": "2"})

	if calls != 2 {
		t.Errorf("calls = %d, want 2 (catch-up plus one change)", calls)
	}
}

func TestStoreOnPropertyChange(t *testing.T) {
	s := New(nil)
	var got []eventmap.Changes
	sub := s.OnPropertyChange([]string{"stateCss"}, func(changes eventmap.Changes, _, _ eventmap.Snapshot) {
		got = append(got, changes)
	})
	defer sub.Destroy()

	s.Set("other", "x")
	s.Set("stateCss", "brand")
	s.Set("stateCss", "brand")

	if len(got) != 1 {
		t.Fatalf("got %d callbacks, want 1: %v", len(got), got)
	}
	if c := got[0]["stateCss"]; c.OldValue != nil || c.NewValue != "brand" {
		t.Errorf("change = %+v", c)
	}
}

func TestStoreReset(t *testing.T) {
	s := New(nil)
	s.Set("a", "1")
	s.Reset()
	if s.Get("a") != nil {
		t.Error("Reset should remove values")
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{nil, false},
		{"", false},
		{"false", false},
		{"0", false},
		{"true", true},
		{"1", true},
		{"yes", true},
		{true, true},
		{false, false},
		{0, false},
		{2, true},
	}
	for _, tt := range tests {
		if got := Truthy(tt.in); got != tt.want {
			t.Errorf("Truthy(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"nil", nil, nil},
		{"delimited", "brand|year| |carline", []string{"brand", "year", "carline"}},
		{"sequence", []string{"a", "b"}, []string{"a", "b"}},
		{"any sequence", []any{"a", 1}, []string{"a", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Split(tt.in, "|"); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultIsSingleton(t *testing.T) {
	if Default() != Default() {
		t.Error("Default() should return the same store")
	}
}
