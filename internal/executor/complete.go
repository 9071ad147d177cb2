package executor

import (
	"context"
	"fmt"
	"reflect"

	language "github.com/hanpama/gqlserve/internal/language"
	schema "github.com/hanpama/gqlserve/internal/schema"
	"github.com/hanpama/gqlserve/internal/stream"
)

var typenameType = schema.NonNullType(schema.NamedType("String"))

// executeSelectionSet resolves the fields selectionSet selects on
// objectValue. Sync fields are resolved and completed right away; async
// fields leave a placeholder and wait for the batch of their depth. A
// non-null field that comes back null nulls the whole object.
func executeSelectionSet(state *executionState, objectType *schema.Type, selectionSet language.SelectionSet, objectValue any, path Path) map[string]any {
	groups, deferred := collectFields(state, objectType, selectionSet)
	out := make(map[string]any, len(groups.fields))
	for _, group := range groups.orderedFields() {
		v, typ := executeField(state, objectType, objectValue, group.Fields, appendPath(path, group.ResponseName))
		if typ == nil {
			continue
		}
		if isNullish(v) {
			if schema.IsNonNull(typ) {
				return nil
			}
			v = nil
		}
		out[group.ResponseName] = v
	}
	state.deferFragments(deferred, objectType, objectValue, path)
	return out
}

func (s *executionState) deferFragments(deferred []deferredFragment, objectType *schema.Type, objectValue any, path Path) {
	for _, d := range deferred {
		s.incremental.queue = append(s.incremental.queue, &deferRecord{
			parent:       s,
			path:         path,
			label:        d.Label,
			objectType:   objectType,
			objectValue:  objectValue,
			selectionSet: d.SelectionSet,
		})
	}
}

// executeField resolves one field group and returns its value with the
// field's type. The type is nil when objectType has no such field.
func executeField(state *executionState, objectType *schema.Type, source any, fields []*language.Field, path Path) (any, *schema.TypeRef) {
	name := fields[0].Name
	if name == "__typename" {
		return objectType.Name, typenameType
	}
	def := objectType.Field(name)
	if def == nil {
		state.addError(fmt.Sprintf("Cannot query field '%s' on type '%s'", name, objectType.Name), path, fields)
		return nil, nil
	}
	args := coerceArgumentValues(def, fields[0].Arguments, state.variableValues, state, path, fields)
	if schema.IsNonNull(def.Type) {
		state.markNonNull(path)
	}

	switch {
	case state.hasEvent && len(path) == 1:
		return completeValue(state, def.Type, fields, state.event, path), def.Type
	case def.Async:
		state.pending = append(state.pending, pendingField{
			task:   AsyncResolveTask{ObjectType: objectType.Name, Field: name, Source: source, Args: args},
			path:   path,
			typ:    def.Type,
			fields: fields,
		})
		return placeholder{}, def.Type
	}

	v, err := state.runtime.ResolveSync(state.ctx, objectType.Name, name, source, args)
	if err != nil {
		state.addFieldError(err, path, fields)
		v = nil
	}
	return completeValue(state, def.Type, fields, v, path), def.Type
}

// completeValue shapes a resolved value according to typ. A resolver null for
// a non-null type records an error unless one was already raised at path.
func completeValue(state *executionState, typ *schema.TypeRef, fields []*language.Field, value any, path Path) any {
	if schema.IsNonNull(typ) {
		if isNullish(value) {
			if !state.hasErrorAt(path) {
				state.addError(fmt.Sprintf("Cannot return null for non-nullable field %s", path), path, fields)
			}
			return nil
		}
		// A null from completing the inner type was reported where it arose.
		if value = completeValue(state, typ.OfType, fields, value, path); isNullish(value) {
			return nil
		}
		return value
	}
	if isNullish(value) {
		return nil
	}
	if typ.Kind == schema.TypeRefKindList {
		return completeList(state, typ.OfType, fields, value, path)
	}

	named := state.schema.Types[typ.Named]
	if named == nil {
		state.addError(fmt.Sprintf("Unknown type: %s", typ.Named), path, fields)
		return nil
	}
	switch named.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		out, err := state.runtime.SerializeLeafValue(state.ctx, named.Name, value)
		if err != nil {
			state.addFieldError(err, path, fields)
			return nil
		}
		return out
	case schema.TypeKindObject:
		return executeSelectionSet(state, named, subSelection(fields), value, path)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		return completeAbstract(state, named.Name, fields, value, path)
	}
	state.addError(fmt.Sprintf("Cannot complete value of unexpected type: %s", named.Kind), path, fields)
	return nil
}

// completeList completes each item of a list. Iterators are drained, or
// under @stream pulled up to the initial count with the rest queued for
// incremental delivery.
func completeList(state *executionState, item *schema.TypeRef, fields []*language.Field, value any, path Path) any {
	label, initialCount, streaming := streamDirective(state, fields)

	items, rest, err := listItems(state.ctx, value, streaming, initialCount)
	if err != nil {
		state.addFieldError(err, path, fields)
		return nil
	}
	if items == nil && rest == nil {
		state.addError(fmt.Sprintf("Expected list value, got %T", value), path, fields)
		return nil
	}

	out := make([]any, len(items))
	for i, v := range items {
		itemPath := appendPath(path, i)
		if schema.IsNonNull(item) {
			state.markNonNull(itemPath)
		}
		c := completeValue(state, item, fields, v, itemPath)
		if isNullish(c) && schema.IsNonNull(item) {
			if rest != nil {
				rest.Close()
			}
			return nil
		}
		out[i] = c
	}
	if rest != nil {
		state.incremental.queue = append(state.incremental.queue, &streamRecord{
			parent:   state,
			path:     path,
			label:    label,
			itemType: item,
			fields:   fields,
			index:    len(items),
			items:    rest,
		})
	}
	return out
}

// listItems reads a list value. When streaming, only the first initialCount
// items are returned and rest yields the others. Both results are nil when
// value is not a list.
func listItems(ctx context.Context, value any, streaming bool, initialCount int) (items []any, rest stream.Iterator[any], err error) {
	switch v := value.(type) {
	case stream.Iterator[any]:
		if !streaming {
			items, err = stream.Collect(ctx, v)
			if items == nil && err == nil {
				items = []any{}
			}
			return items, nil, err
		}
		items = []any{}
		for len(items) < initialCount {
			next, err := v.Next(ctx)
			if err == stream.Done {
				v.Close()
				return items, nil, nil
			}
			if err != nil {
				v.Close()
				return nil, nil, err
			}
			items = append(items, next)
		}
		return items, v, nil
	case []any:
		items = v
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice {
			return nil, nil, nil
		}
		items = make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
	}
	if streaming && len(items) > initialCount {
		return items[:initialCount], stream.FromSlice(items[initialCount:]), nil
	}
	if items == nil {
		items = []any{}
	}
	return items, nil, nil
}

func completeAbstract(state *executionState, abstractType string, fields []*language.Field, value any, path Path) any {
	typeName, err := state.runtime.ResolveType(state.ctx, abstractType, value)
	if err != nil {
		state.addFieldError(err, path, fields)
		return nil
	}
	objectType := state.schema.Types[typeName]
	if objectType == nil || objectType.Kind != schema.TypeKindObject {
		state.addError(fmt.Sprintf("Abstract type %s must resolve to an Object type at runtime. Got: %s", abstractType, typeName), path, fields)
		return nil
	}
	return executeSelectionSet(state, objectType, subSelection(fields), value, path)
}

// subSelection merges the selection sets of every node in a field group.
func subSelection(fields []*language.Field) language.SelectionSet {
	if len(fields) == 1 {
		return fields[0].SelectionSet
	}
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

// isNullish is true for nil and for typed nils a resolver may return.
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
