// Package introspection answers the __schema and __type meta fields on top of
// another executor.Runtime.
package introspection

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	executor "github.com/hanpama/gqlserve/internal/executor"
	schema "github.com/hanpama/gqlserve/internal/schema"
	"github.com/hanpama/gqlserve/internal/stream"
)

// Wrapped is a runtime that resolves introspection, paired with the schema
// declaring the meta fields it serves.
type Wrapped struct {
	Runtime executor.Runtime
	Schema  *schema.Schema
}

// Wrap layers introspection over base. Fields outside the meta types go to
// base, and so do subscriptions when base implements
// executor.SubscriptionRuntime.
func Wrap(base executor.Runtime, sch *schema.Schema) *Wrapped {
	ext := extend(sch)
	return &Wrapped{
		Runtime: &runtime{Runtime: base, query: ext.QueryType, source: sch},
		Schema:  ext,
	}
}

type runtime struct {
	executor.Runtime

	query  string
	source *schema.Schema // reported by __schema, without the meta fields
}

func (r *runtime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	if v, ok := r.meta(source, field, args); ok {
		return v, nil
	}
	if objectType == r.query {
		switch field {
		case "__schema":
			return r.source, nil
		case "__type":
			name, _ := args["name"].(string)
			return typeOrNil(r.source.Types[name]), nil
		}
	}
	return r.Runtime.ResolveSync(ctx, objectType, field, source, args)
}

func (r *runtime) Subscribe(ctx context.Context, objectType, field string, args map[string]any) (stream.Iterator[any], error) {
	sub, ok := r.Runtime.(executor.SubscriptionRuntime)
	if !ok {
		return nil, fmt.Errorf("subscriptions are not supported")
	}
	return sub.Subscribe(ctx, objectType, field, args)
}

// meta resolves a field of one of the introspection types. ok is false when
// source is not a schema element.
func (r *runtime) meta(source any, field string, args map[string]any) (v any, ok bool) {
	all, _ := args["includeDeprecated"].(bool)
	switch src := source.(type) {
	case *schema.Schema:
		return r.schemaField(src, field)
	case *schema.Type:
		return r.typeField(src, field, all)
	case *schema.TypeRef:
		return r.typeRefField(src, field, all)
	case *schema.Field:
		return fieldField(src, field, all)
	case *schema.InputValue:
		return inputValueField(src, field)
	case *schema.EnumValue:
		return enumValueField(src, field)
	case *schema.Directive:
		return directiveField(src, field, all)
	}
	return nil, false
}

func (r *runtime) schemaField(s *schema.Schema, field string) (any, bool) {
	switch field {
	case "description":
		return nullable(s.Description), true
	case "queryType":
		return typeOrNil(s.GetQueryType()), true
	case "mutationType":
		return typeOrNil(s.GetMutationType()), true
	case "subscriptionType":
		return typeOrNil(s.GetSubscriptionType()), true
	case "types":
		types := make([]*schema.Type, 0, len(s.Types))
		for _, t := range s.Types {
			types = append(types, t)
		}
		sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
		return types, true
	case "directives":
		dirs := make([]*schema.Directive, 0, len(s.Directives))
		for _, d := range s.Directives {
			dirs = append(dirs, d)
		}
		sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
		return dirs, true
	}
	return nil, false
}

func (r *runtime) typeField(t *schema.Type, field string, all bool) (any, bool) {
	composite := t.Kind == schema.TypeKindObject || t.Kind == schema.TypeKindInterface
	switch field {
	case "kind":
		return string(t.Kind), true
	case "name":
		return t.Name, true
	case "description":
		return nullable(t.Description), true
	case "specifiedByURL":
		if t.SpecifiedByURL == nil {
			return nil, true
		}
		return *t.SpecifiedByURL, true
	case "isOneOf":
		return t.OneOf, true
	case "ofType":
		// named types never wrap another type
		return nil, true
	case "fields":
		if !composite {
			return nil, true
		}
		return active(t.GetOrderedFields(), all, func(f *schema.Field) bool { return f.IsDeprecated }), true
	case "interfaces":
		if !composite {
			return nil, true
		}
		return r.lookup(t.Interfaces), true
	case "possibleTypes":
		if t.Kind != schema.TypeKindInterface && t.Kind != schema.TypeKindUnion {
			return nil, true
		}
		return r.lookup(t.PossibleTypes), true
	case "enumValues":
		if t.Kind != schema.TypeKindEnum {
			return nil, true
		}
		return active(t.EnumValues, all, func(v *schema.EnumValue) bool { return v.IsDeprecated }), true
	case "inputFields":
		if t.Kind != schema.TypeKindInputObject {
			return nil, true
		}
		return active(t.GetOrderedInputFields(), all, inputDeprecated), true
	}
	return nil, false
}

// typeRefField reports wrapper refs (LIST, NON_NULL) itself and hands named
// refs to the type they name.
func (r *runtime) typeRefField(ref *schema.TypeRef, field string, all bool) (any, bool) {
	if ref.Kind == schema.TypeRefKindNamed {
		if t := r.source.Types[ref.Named]; t != nil {
			return r.typeField(t, field, all)
		}
		if field == "name" {
			return ref.Named, true
		}
		return nil, true
	}
	switch field {
	case "kind":
		return string(ref.Kind), true
	case "ofType":
		return ref.OfType, true
	}
	return nil, true
}

// lookup returns the named types sorted by name, skipping unknown names.
func (r *runtime) lookup(names []string) []*schema.Type {
	out := make([]*schema.Type, 0, len(names))
	for _, name := range names {
		if t := r.source.Types[name]; t != nil {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func fieldField(f *schema.Field, field string, all bool) (any, bool) {
	switch field {
	case "name":
		return f.Name, true
	case "description":
		return nullable(f.Description), true
	case "args":
		return active(f.GetOrderedArguments(), all, inputDeprecated), true
	case "type":
		return f.Type, true
	case "isDeprecated":
		return f.IsDeprecated, true
	case "deprecationReason":
		return reason(f.IsDeprecated, f.DeprecationReason), true
	}
	return nil, false
}

func inputValueField(v *schema.InputValue, field string) (any, bool) {
	switch field {
	case "name":
		return v.Name, true
	case "description":
		return nullable(v.Description), true
	case "type":
		return v.Type, true
	case "defaultValue":
		switch {
		case v.DefaultLiteral != "":
			return v.DefaultLiteral, true
		case v.DefaultValue != nil:
			return literal(v.DefaultValue), true
		}
		return nil, true
	case "isDeprecated":
		return v.IsDeprecated, true
	case "deprecationReason":
		return reason(v.IsDeprecated, v.DeprecationReason), true
	}
	return nil, false
}

func enumValueField(v *schema.EnumValue, field string) (any, bool) {
	switch field {
	case "name":
		return v.Name, true
	case "description":
		return nullable(v.Description), true
	case "isDeprecated":
		return v.IsDeprecated, true
	case "deprecationReason":
		return reason(v.IsDeprecated, v.DeprecationReason), true
	}
	return nil, false
}

func directiveField(d *schema.Directive, field string, all bool) (any, bool) {
	switch field {
	case "name":
		return d.Name, true
	case "description":
		return nullable(d.Description), true
	case "isRepeatable":
		return d.IsRepeatable, true
	case "locations":
		locs := append([]string(nil), d.Locations...)
		sort.Strings(locs)
		return locs, true
	case "args":
		return active(d.Arguments, all, inputDeprecated), true
	}
	return nil, false
}

// active drops deprecated items unless all is set.
func active[T any](items []T, all bool, deprecated func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if all || !deprecated(it) {
			out = append(out, it)
		}
	}
	return out
}

func inputDeprecated(v *schema.InputValue) bool { return v.IsDeprecated }

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func reason(deprecated bool, why string) any {
	if !deprecated {
		return nil
	}
	return why
}

func typeOrNil(t *schema.Type) any {
	if t == nil {
		return nil
	}
	return t
}

// literal prints a coerced default value in GraphQL input syntax.
func literal(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = literal(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + literal(v[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(v)
	}
}
