package resolver

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// DefaultResolve reads field from source. Maps are indexed by the field name;
// structs are matched by a `graphql` tag, then by exported field name
// ignoring case. A nil source resolves to nil.
func DefaultResolve(source any, field string) (any, error) {
	if source == nil {
		return nil, nil
	}
	if m, ok := source.(map[string]any); ok {
		return m[field], nil
	}
	v := reflect.ValueOf(source)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			break
		}
		mv := v.MapIndex(reflect.ValueOf(field).Convert(v.Type().Key()))
		if !mv.IsValid() {
			return nil, nil
		}
		return mv.Interface(), nil
	case reflect.Struct:
		t := v.Type()
		fallback := -1
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			if tag, ok := sf.Tag.Lookup("graphql"); ok {
				if name, _, _ := strings.Cut(tag, ","); name == field {
					return v.Field(i).Interface(), nil
				}
				continue
			}
			if fallback < 0 && strings.EqualFold(sf.Name, field) {
				fallback = i
			}
		}
		if fallback >= 0 {
			return v.Field(fallback).Interface(), nil
		}
		return nil, nil
	}
	return nil, fmt.Errorf("cannot resolve field %q on %T", field, source)
}

// SerializeLeaf converts a scalar or enum value into a JSON-safe value.
// Pointers are dereferenced, times are formatted as RFC 3339, byte slices are
// base64-encoded and named string or number types lose their name.
func SerializeLeaf(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string, bool, int, int32, int64, float32, float64:
		return v, nil
	case []byte:
		return base64.StdEncoding.EncodeToString(v), nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		if k := reflect.ValueOf(v).Kind(); k != reflect.Pointer && k != reflect.String {
			return v.String(), nil
		}
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return SerializeLeaf(rv.Elem().Interface())
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return nil, fmt.Errorf("cannot serialize %T as a leaf value", value)
}
