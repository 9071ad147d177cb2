package executor

import (
	"fmt"
	"math"
	"strconv"

	language "github.com/hanpama/gqlserve/internal/language"
	schema "github.com/hanpama/gqlserve/internal/schema"
)

// scalarCoercers maps the built-in scalars to their input coercion. Custom
// scalars have no entry and pass through unchanged.
var scalarCoercers = map[string]func(any) (any, error){
	"Int":     coerceToInt,
	"Float":   coerceToFloat,
	"String":  coerceToString,
	"Boolean": coerceToBoolean,
	"ID":      coerceToID,
}

// coerceVariableValues checks the request variables against the operation's
// variable definitions. Variables that are neither provided nor defaulted are
// left out of the result so arguments referring to them fall back to their
// own defaults.
func coerceVariableValues(
	sch *schema.Schema,
	operation *language.OperationDefinition,
	variableValues map[string]any,
) (map[string]any, error) {
	coerced := make(map[string]any, len(operation.VariableDefinitions))
	for _, def := range operation.VariableDefinitions {
		typ := def.Type.String()
		raw, provided := variableValues[def.Variable]
		switch {
		case provided:
		case def.DefaultValue != nil:
			v, err := def.DefaultValue.Value(nil)
			if err != nil {
				return nil, fmt.Errorf("variable $%s of type %s has an invalid default: %v", def.Variable, typ, err)
			}
			raw = v
		case def.Type.NonNull:
			return nil, fmt.Errorf("variable $%s of required type %s was not provided", def.Variable, typ)
		default:
			continue
		}
		if raw == nil && def.Type.NonNull {
			return nil, fmt.Errorf("variable $%s of type %s cannot be null", def.Variable, typ)
		}
		v, err := coerceValue(sch, raw, typeRefFromAST(def.Type))
		if err != nil {
			return nil, fmt.Errorf("variable $%s of type %s cannot be coerced: %v", def.Variable, typ, err)
		}
		coerced[def.Variable] = v
	}
	return coerced, nil
}

// coerceArgumentValues builds the argument map handed to the resolver of
// fieldDef. Problems are recorded as field errors at path; the arguments that
// could be coerced are still returned.
func coerceArgumentValues(
	fieldDef *schema.Field,
	arguments language.ArgumentList,
	variableValues map[string]any,
	state *executionState,
	path Path,
	fields []*language.Field,
) map[string]any {
	coerced := make(map[string]any, len(fieldDef.Arguments))
	for _, def := range fieldDef.Arguments {
		if arg := arguments.ForName(def.Name); arg != nil {
			raw, ok, err := literal(arg.Value, variableValues)
			if err != nil {
				state.addError(fmt.Sprintf("argument '%s' cannot be coerced: %v", def.Name, err), path, fields)
				continue
			}
			if ok {
				v, err := coerceValue(state.schema, raw, def.Type)
				if err != nil {
					state.addError(fmt.Sprintf("argument '%s' cannot be coerced: %v", def.Name, err), path, fields)
					continue
				}
				coerced[def.Name] = v
				continue
			}
		}
		switch {
		case def.DefaultValue != nil:
			coerced[def.Name] = coerceDefault(state.schema, def)
		case schema.IsNonNull(def.Type):
			state.addError(fmt.Sprintf("argument '%s' of required type was not provided", def.Name), path, fields)
		}
	}
	return coerced
}

// literal evaluates value with variables substituted. ok is false when value
// is a bare variable that has no coerced value.
func literal(value *language.Value, variableValues map[string]any) (v any, ok bool, err error) {
	if value == nil {
		return nil, false, nil
	}
	if value.Kind == language.Variable {
		v, ok = variableValues[value.Raw]
		return v, ok, nil
	}
	v, err = value.Value(variableValues)
	return v, err == nil, err
}

// coerceValue coerces an input value to typ, walking its wrappers.
func coerceValue(sch *schema.Schema, value any, typ *schema.TypeRef) (any, error) {
	if schema.IsNonNull(typ) {
		if value == nil {
			return nil, fmt.Errorf("cannot provide null for non-null type")
		}
		return coerceValue(sch, value, typ.OfType)
	}
	if value == nil {
		return nil, nil
	}
	if typ.Kind == schema.TypeRefKindList {
		return coerceList(sch, value, typ.OfType)
	}

	if coerce, ok := scalarCoercers[typ.Named]; ok {
		return coerce(value)
	}
	t := sch.Types[typ.Named]
	if t == nil {
		return value, nil
	}
	switch t.Kind {
	case schema.TypeKindInputObject:
		return coerceInputObject(sch, value, t)
	case schema.TypeKindEnum:
		return coerceEnum(value, t)
	}
	return value, nil
}

// coerceList coerces each item of a list. A single value is treated as a list
// of one.
func coerceList(sch *schema.Schema, value any, item *schema.TypeRef) (any, error) {
	items, ok := value.([]any)
	if !ok {
		items = []any{value}
	}
	out := make([]any, len(items))
	for i, v := range items {
		c, err := coerceValue(sch, v, item)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func coerceEnum(value any, t *schema.Type) (any, error) {
	name, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("enum %s cannot represent non-string value %v", t.Name, value)
	}
	for _, ev := range t.EnumValues {
		if ev.Name == name {
			return name, nil
		}
	}
	return nil, fmt.Errorf("value %q does not exist in enum %s", name, t.Name)
}

func coerceInputObject(sch *schema.Schema, value any, t *schema.Type) (any, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected input object %s, got %T", t.Name, value)
	}
	for k := range m {
		if inputField(t, k) == nil {
			return nil, fmt.Errorf("field '%s' is not defined by type %s", k, t.Name)
		}
	}
	out := make(map[string]any, len(t.InputFields))
	set := 0
	for _, f := range t.InputFields {
		raw, present := m[f.Name]
		if !present {
			switch {
			case f.DefaultValue != nil:
				out[f.Name] = coerceDefault(sch, f)
				set++
			case schema.IsNonNull(f.Type):
				return nil, fmt.Errorf("required field '%s' of type %s was not provided", f.Name, t.Name)
			}
			continue
		}
		v, err := coerceValue(sch, raw, f.Type)
		if err != nil {
			return nil, fmt.Errorf("field '%s': %w", f.Name, err)
		}
		out[f.Name] = v
		if v != nil {
			set++
		}
	}
	if t.OneOf && set != 1 {
		return nil, fmt.Errorf("exactly one field must be specified for oneOf type %s", t.Name)
	}
	return out, nil
}

// coerceDefault coerces a schema default. Defaults the schema could not parse
// into the declared type are handed over as written.
func coerceDefault(sch *schema.Schema, in *schema.InputValue) any {
	v, err := coerceValue(sch, in.DefaultValue, in.Type)
	if err != nil {
		return in.DefaultValue
	}
	return v
}

func inputField(t *schema.Type, name string) *schema.InputValue {
	for _, f := range t.InputFields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// coerceToInt accepts integral numbers within the 32-bit range. JSON decoding
// hands numbers over as float64.
func coerceToInt(value any) (any, error) {
	var f float64
	switch v := value.(type) {
	case int:
		f = float64(v)
	case int32:
		return int(v), nil
	case int64:
		f = float64(v)
	case float32:
		f = float64(v)
	case float64:
		f = v
	default:
		return nil, fmt.Errorf("cannot coerce %v (%T) to int", value, value)
	}
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return nil, fmt.Errorf("cannot coerce %v (%T) to int", value, value)
	}
	return int(f), nil
}

func coerceToFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to float", value, value)
}

func coerceToString(value any) (any, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to string", value, value)
}

func coerceToBoolean(value any) (any, error) {
	if b, ok := value.(bool); ok {
		return b, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to boolean", value, value)
}

// coerceToID accepts strings and integral numbers, always yielding a string.
func coerceToID(value any) (any, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	n, err := coerceToInt(value)
	if err != nil {
		if i, ok := value.(int64); ok {
			return strconv.FormatInt(i, 10), nil
		}
		return nil, fmt.Errorf("cannot coerce %v (%T) to ID", value, value)
	}
	return strconv.Itoa(n.(int)), nil
}
