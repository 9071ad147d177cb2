package executor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCollectFields(t *testing.T) {
	sch := buildSchema(t, flatSDL)
	cases := []struct {
		name  string
		query string
		// want lists response names with the number of merged field nodes
		want map[string]int
		keys []string
	}{
		{
			name:  "fragments merge into one entry per response name",
			query: `{ a ...F1 ...F2 } fragment F1 on Query { a __typename } fragment F2 on Query { __typename }`,
			keys:  []string{"a", "__typename"},
			want:  map[string]int{"a": 2, "__typename": 2},
		},
		{
			name:  "skip and include on fields",
			query: `{ a b @skip(if: true) c @include(if: false) }`,
			keys:  []string{"a"},
			want:  map[string]int{"a": 1},
		},
		{
			name:  "directives on spreads",
			query: `{ a ...F1 @include(if: true) ...F2 @skip(if: true) } fragment F1 on Query { b } fragment F2 on Query { c }`,
			keys:  []string{"a", "b"},
			want:  map[string]int{"a": 1, "b": 1},
		},
		{
			name:  "directives on inline fragments",
			query: `{ a ... on Query @include(if: true) { b } ... on Query @skip(if: true) { c } }`,
			keys:  []string{"a", "b"},
			want:  map[string]int{"a": 1, "b": 1},
		},
		{
			name:  "directives on untyped inline fragments",
			query: `{ a ... @include(if: true) { b } ... @skip(if: true) { c } }`,
			keys:  []string{"a", "b"},
			want:  map[string]int{"a": 1, "b": 1},
		},
		{
			name:  "aliases keep separate entries",
			query: `{ x: a y: a a }`,
			keys:  []string{"x", "y", "a"},
			want:  map[string]int{"x": 1, "y": 1, "a": 1},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := mustParseQuery(t, tc.query)
			state := &executionState{schema: sch, document: doc, variableValues: map[string]any{}}

			grouped, deferred := collectFields(state, sch.Types["Query"], doc.Operations[0].SelectionSet)

			var keys []string
			got := map[string]int{}
			for _, f := range grouped.orderedFields() {
				keys = append(keys, f.ResponseName)
				got[f.ResponseName] = len(f.Fields)
			}
			if diff := cmp.Diff(tc.keys, keys); diff != "" {
				t.Fatalf("response order mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("merged fields mismatch (-want +got):\n%s", diff)
			}
			if len(deferred) != 0 {
				t.Fatalf("unexpected deferred fragments: %d", len(deferred))
			}
		})
	}
}

func TestCollectFields_DeferredFragments(t *testing.T) {
	sch := buildSchema(t, flatSDL)
	doc := mustParseQuery(t, `{ a ... @defer(label: "later") { b } ... @defer(if: false) { c } }`)
	state := &executionState{schema: sch, document: doc, variableValues: map[string]any{}, incremental: &incrementalState{}}

	grouped, deferred := collectFields(state, sch.Types["Query"], doc.Operations[0].SelectionSet)

	var keys []string
	for _, f := range grouped.orderedFields() {
		keys = append(keys, f.ResponseName)
	}
	if diff := cmp.Diff([]string{"a", "c"}, keys); diff != "" {
		t.Fatalf("inline fields mismatch (-want +got):\n%s", diff)
	}
	if len(deferred) != 1 || deferred[0].Label != "later" {
		t.Fatalf("deferred = %+v", deferred)
	}
}
