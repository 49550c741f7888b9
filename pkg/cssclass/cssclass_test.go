package cssclass

import (
	"context"
	"reflect"
	"testing"

	"github.com/vango-dev/statekit/pkg/configstore"
	"github.com/vango-dev/statekit/pkg/eventmap"
	"github.com/vango-dev/statekit/pkg/state"
)

var mockState = state.Values{
	"bodystyle":  "sierra_1500",
	"brand":      "gmc",
	"carline":    "sierra",
	"lang":       "en",
	"locale":     "en_US",
	"postalcode": "85224",
	"region":     "US",
	"year":       "2017",
	"foo":        "bar",
	"bad":        "val*ue:omg(76)I'm a bad string11--1!",
	"array":      []string{"is", "array", "value"},
}

var wantClasses = []string{
	"bodystyle__sierra_1500",
	"brand__gmc",
	"carline__sierra",
	"bad__val_ue_omg_76_I_m_a_bad_string11__1_",
	"array__is",
	"array__array",
	"array__value",
}

const listenParams = "bodystyle|brand|carline|bad|array"

func TestProjectorStateThenConfig(t *testing.T) {
	cs := configstore.New(nil)
	m := state.New(state.WithConfig(cs))
	if _, err := m.Set(context.Background(), mockState); err != nil {
		t.Fatal(err)
	}

	p := New(m, cs)
	defer p.Close()
	if len(p.Classes()) != 0 {
		t.Errorf("Classes() = %v before config", p.Classes())
	}

	cs.Set(ConfigKey, listenParams)
	if got := p.Classes(); !reflect.DeepEqual(got, wantClasses) {
		t.Errorf("Classes() = %v, want %v", got, wantClasses)
	}
}

func TestProjectorConfigThenState(t *testing.T) {
	cs := configstore.New(nil)
	cs.Set(ConfigKey, listenParams)
	m := state.New(state.WithConfig(cs))

	var updates [][]string
	p := New(m, cs, OnUpdate(func(c []string) { updates = append(updates, c) }))
	defer p.Close()

	if _, err := m.Set(context.Background(), mockState); err != nil {
		t.Fatal(err)
	}
	if got := p.Classes(); !reflect.DeepEqual(got, wantClasses) {
		t.Errorf("Classes() = %v, want %v", got, wantClasses)
	}
	if len(updates) == 0 {
		t.Error("OnUpdate was not called")
	}

	n := len(updates)
	m.SetParam(context.Background(), "foo", "baz")
	if len(updates) != n {
		t.Error("unwatched key should not recompute classes")
	}

	m.SetParam(context.Background(), "brand", "chevrolet")
	if got := p.Classes(); got[1] != "brand__chevrolet" {
		t.Errorf("Classes() = %v", got)
	}
}

func TestProjectorSwitchesKeys(t *testing.T) {
	cs := configstore.New(nil)
	m := state.New(state.WithConfig(cs))
	m.Seed(state.Values{"brand": "gmc", "year": "2017"})

	p := New(m, cs)
	defer p.Close()

	cs.Set(ConfigKey, "brand")
	if got := p.Classes(); !reflect.DeepEqual(got, []string{"brand__gmc"}) {
		t.Errorf("Classes() = %v", got)
	}

	cs.Set(ConfigKey, "year")
	if got := p.Classes(); !reflect.DeepEqual(got, []string{"year__2017"}) {
		t.Errorf("Classes() = %v", got)
	}
	if !reflect.DeepEqual(p.Keys(), []string{"year"}) {
		t.Errorf("Keys() = %v", p.Keys())
	}

	m.SetParam(context.Background(), "brand", "chevrolet")
	if got := p.Classes(); !reflect.DeepEqual(got, []string{"year__2017"}) {
		t.Errorf("old key still watched: %v", got)
	}

	cs.Set(ConfigKey, "")
	if got := p.Classes(); len(got) != 0 {
		t.Errorf("Classes() = %v, want none", got)
	}
}

func TestProjectorClose(t *testing.T) {
	cs := configstore.New(nil)
	m := state.New(state.WithConfig(cs))
	p := New(m, cs)
	cs.Set(ConfigKey, "brand")
	p.Close()

	m.SetParam(context.Background(), "brand", "gmc")
	if len(p.Classes()) != 0 {
		t.Errorf("Classes() = %v after Close", p.Classes())
	}
	cs.Set(ConfigKey, "brand|year")
	if len(p.Keys()) != 1 {
		t.Errorf("config change after Close was applied: %v", p.Keys())
	}
}

func TestProject(t *testing.T) {
	st := eventmap.Snapshot{"a": "", "b": nil, "c": []any{"x", ""}, "d": 3}
	got := Project([]string{"a", "b", "c", "d", "missing"}, st)
	want := []string{"c__x", "d__3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Project() = %v, want %v", got, want)
	}
}

func TestSafeClass(t *testing.T) {
	tests := map[string]string{
		"brand--gmc":      "brand__gmc",
		"a b.c/d":         "a_b_c_d",
		"already_safe_01": "already_safe_01",
	}
	for in, want := range tests {
		if got := SafeClass(in); got != want {
			t.Errorf("SafeClass(%q) = %q, want %q", in, got, want)
		}
	}
}
