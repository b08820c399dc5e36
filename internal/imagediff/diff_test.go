package imagediff

import (
	"reflect"
	"sort"
	"testing"
)

func TestDiffScenario(t *testing.T) {
	urlToID := map[string]string{"old.jpg": "img_old", "new.jpg": "img_new", "keep.jpg": "img_keep"}
	res := Diff([]string{"keep.jpg", "new.jpg", "unknown.jpg"}, urlToID, []string{"img_keep", "img_old"})
	if !reflect.DeepEqual(res.Add, []string{"img_new"}) {
		t.Fatalf("unexpected add %v", res.Add)
	}
	if !reflect.DeepEqual(res.Remove, []string{"img_old"}) {
		t.Fatalf("unexpected remove %v", res.Remove)
	}
}

func TestDiffProperties(t *testing.T) {
	urlToID := map[string]string{"a": "1", "b": "2", "c": "3", "d": "4"}
	cases := []struct {
		desired []string
		current []string
	}{
		{desired: []string{"a", "b"}, current: []string{"3", "4"}},
		{desired: []string{"a", "a", "c"}, current: []string{"1", "1", "2"}},
		{desired: nil, current: []string{"1"}},
		{desired: []string{"d", "x"}, current: nil},
	}
	for _, tc := range cases {
		res := Diff(tc.desired, urlToID, tc.current)

		current := map[string]bool{}
		for _, id := range tc.current {
			current[id] = true
		}
		desired := map[string]bool{}
		for _, u := range tc.desired {
			if id, ok := urlToID[u]; ok {
				desired[id] = true
			}
		}
		for _, id := range res.Add {
			if current[id] {
				t.Fatalf("add %s already current", id)
			}
		}
		for _, id := range res.Remove {
			if desired[id] {
				t.Fatalf("remove %s is desired", id)
			}
		}

		applied := map[string]bool{}
		for id := range current {
			applied[id] = true
		}
		for _, id := range res.Add {
			applied[id] = true
		}
		for _, id := range res.Remove {
			delete(applied, id)
		}
		if !reflect.DeepEqual(keys(applied), keys(desired)) {
			t.Fatalf("applying diff gave %v, want %v", keys(applied), keys(desired))
		}

		again := Diff(tc.desired, urlToID, keys(applied))
		if !again.Empty() {
			t.Fatalf("second diff should be empty, got %+v", again)
		}
	}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestPlanProduct(t *testing.T) {
	pool := []Image{{URL: "a.jpg", Alt: "A"}, {URL: "n.jpg", Alt: "N"}}
	current := []CurrentImage{{ID: "img_a", URL: "a.jpg"}, {ID: "img_stale", URL: "stale.jpg"}}

	plan := PlanProduct(pool, current)
	if !reflect.DeepEqual(plan.Keep, []string{"img_a"}) {
		t.Fatalf("unexpected keep %v", plan.Keep)
	}
	if len(plan.New) != 1 || plan.New[0].URL != "n.jpg" || plan.New[0].Alt != "N" {
		t.Fatalf("unexpected new %v", plan.New)
	}
	if !reflect.DeepEqual(plan.Remove, []string{"img_stale"}) {
		t.Fatalf("unexpected remove %v", plan.Remove)
	}
}
