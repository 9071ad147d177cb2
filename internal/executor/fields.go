package executor

import (
	language "github.com/hanpama/gqlserve/internal/language"
	schema "github.com/hanpama/gqlserve/internal/schema"
)

// collectedField is the set of field nodes answering one response name.
type collectedField struct {
	ResponseName string
	Fields       []*language.Field
}

// fieldGroups keeps response names in the order they first appear.
type fieldGroups struct {
	fields []collectedField
	index  map[string]int
}

func (g *fieldGroups) add(f *language.Field) {
	name := f.Alias
	if name == "" {
		name = f.Name
	}
	if i, ok := g.index[name]; ok {
		g.fields[i].Fields = append(g.fields[i].Fields, f)
		return
	}
	g.index[name] = len(g.fields)
	g.fields = append(g.fields, collectedField{ResponseName: name, Fields: []*language.Field{f}})
}

func (g *fieldGroups) orderedFields() []collectedField { return g.fields }

// deferredFragment is a fragment marked with @defer whose fields are left out
// of the current payload.
type deferredFragment struct {
	Label        string
	SelectionSet language.SelectionSet
}

// collectFields groups the fields selectionSet selects on objectType. When the
// execution delivers incrementally, fragments with an active @defer are
// returned apart instead of being merged.
func collectFields(state *executionState, objectType *schema.Type, selectionSet language.SelectionSet) (*fieldGroups, []deferredFragment) {
	c := &collector{
		state:      state,
		objectType: objectType,
		groups:     &fieldGroups{index: map[string]int{}},
		visited:    map[string]bool{},
	}
	c.walk(selectionSet)
	return c.groups, c.deferred
}

type collector struct {
	state      *executionState
	objectType *schema.Type
	groups     *fieldGroups
	visited    map[string]bool // named fragments already merged
	deferred   []deferredFragment
}

func (c *collector) walk(selectionSet language.SelectionSet) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			if c.included(sel.Directives) {
				c.groups.add(sel)
			}

		case *language.InlineFragment:
			if !c.included(sel.Directives) || !c.applies(sel.TypeCondition) {
				continue
			}
			if label, ok := deferLabel(c.state, sel.Directives); ok {
				c.deferred = append(c.deferred, deferredFragment{Label: label, SelectionSet: sel.SelectionSet})
				continue
			}
			c.walk(sel.SelectionSet)

		case *language.FragmentSpread:
			if !c.included(sel.Directives) {
				continue
			}
			label, deferred := deferLabel(c.state, sel.Directives)
			if !deferred {
				if c.visited[sel.Name] {
					continue
				}
				c.visited[sel.Name] = true
			}
			def := c.state.document.Fragments.ForName(sel.Name)
			if def == nil || !c.applies(def.TypeCondition) || !c.included(def.Directives) {
				continue
			}
			if deferred {
				c.deferred = append(c.deferred, deferredFragment{Label: label, SelectionSet: def.SelectionSet})
				continue
			}
			c.walk(def.SelectionSet)
		}
	}
}

// included applies @skip and @include.
func (c *collector) included(directives language.DirectiveList) bool {
	if directiveIf(c.state, directives.ForName("skip"), false) {
		return false
	}
	return directiveIf(c.state, directives.ForName("include"), true)
}

// applies reports whether a fragment with typeCondition selects on the
// collected object type. Interface and union conditions match their possible
// types.
func (c *collector) applies(typeCondition string) bool {
	return typeCondition == "" || c.state.schema.IsPossibleType(typeCondition, c.objectType.Name)
}

// directiveIf evaluates the "if" argument of d. It returns absent when d is
// nil or its argument is not a boolean.
func directiveIf(state *executionState, d *language.Directive, absent bool) bool {
	if d == nil {
		return absent
	}
	v, _ := directiveArg(state, d, "if")
	b, ok := v.(bool)
	if !ok {
		return absent
	}
	return b
}

func directiveArg(state *executionState, d *language.Directive, name string) (any, bool) {
	arg := d.Arguments.ForName(name)
	if arg == nil {
		return nil, false
	}
	v, ok, _ := literal(arg.Value, state.variableValues)
	return v, ok
}

// deferLabel reports whether directives defer the fragment in this execution.
func deferLabel(state *executionState, directives language.DirectiveList) (string, bool) {
	if state.incremental == nil {
		return "", false
	}
	d := directives.ForName("defer")
	if d == nil || !directiveIf(state, d, true) {
		return "", false
	}
	label, _ := directiveArg(state, d, "label")
	s, _ := label.(string)
	return s, true
}

// streamDirective returns the label and initial count of an active @stream on
// the field group.
func streamDirective(state *executionState, fields []*language.Field) (label string, initialCount int, ok bool) {
	if state.incremental == nil {
		return "", 0, false
	}
	d := fields[0].Directives.ForName("stream")
	if d == nil || !directiveIf(state, d, true) {
		return "", 0, false
	}
	if v, ok := directiveArg(state, d, "initialCount"); ok {
		if n, err := coerceToInt(v); err == nil {
			initialCount = max(n.(int), 0)
		}
	}
	l, _ := directiveArg(state, d, "label")
	label, _ = l.(string)
	return label, initialCount, true
}
