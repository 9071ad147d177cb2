package schema

import (
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// streamDirectiveSDL declares @stream for schemas that do not bring their own.
// The gqlparser prelude only ships @defer.
const streamDirectiveSDL = `"Directs the executor to stream plural fields when the ` + "`if`" + ` argument is true or undefined."
directive @stream(
  "Stream when true or undefined."
  if: Boolean! = true
  "Unique name"
  label: String
  "Number of items to return immediately"
  initialCount: Int = 0
) on FIELD
`

// BuildFromSDL parses and validates SDL sources and returns the executable
// schema. A schema definition is optional; types named Query, Mutation and
// Subscription become the root types.
func BuildFromSDL(sdl ...string) (*Schema, error) {
	sources := make([]*ast.Source, 0, len(sdl)+1)
	declaresStream := false
	for i, s := range sdl {
		if strings.Contains(s, "directive @stream") {
			declaresStream = true
		}
		name := "schema.graphql"
		if len(sdl) > 1 {
			name = "schema_" + string(rune('a'+i)) + ".graphql"
		}
		sources = append(sources, &ast.Source{Name: name, Input: s})
	}
	if !declaresStream {
		sources = append(sources, &ast.Source{Name: "stream.graphql", Input: streamDirectiveSDL, BuiltIn: true})
	}
	src, err := gqlparser.LoadSchema(sources...)
	if err != nil {
		return nil, err
	}
	return FromAST(src), nil
}

// FromAST converts a validated gqlparser schema. Introspection meta fields
// (__schema, __type) are left out of the root query type; introspection.Wrap
// adds them back.
func FromAST(src *ast.Schema) *Schema {
	s := NewSchema(src.Description)
	if src.Query != nil {
		s.SetQueryType(src.Query.Name)
	}
	if src.Mutation != nil {
		s.SetMutationType(src.Mutation.Name)
	}
	if src.Subscription != nil {
		s.SetSubscriptionType(src.Subscription.Name)
	}
	for _, def := range src.Types {
		s.AddType(buildType(src, def))
	}
	for _, dir := range src.Directives {
		s.AddDirective(buildDirective(dir))
	}
	s.AST = src
	return s
}

func buildType(src *ast.Schema, def *ast.Definition) *Type {
	t := NewType(def.Name, TypeKind(def.Kind), def.Description)
	switch def.Kind {
	case ast.Object, ast.Interface:
		for _, name := range def.Interfaces {
			t.AddInterface(name)
		}
		for _, f := range def.Fields {
			if strings.HasPrefix(f.Name, "__") {
				continue
			}
			t.AddField(buildField(f))
		}
		if def.Kind == ast.Interface {
			for _, pt := range src.PossibleTypes[def.Name] {
				t.AddPossibleType(pt.Name)
			}
		}
	case ast.Union:
		for _, pt := range src.PossibleTypes[def.Name] {
			t.AddPossibleType(pt.Name)
		}
	case ast.Enum:
		for _, v := range def.EnumValues {
			ev := NewEnumValue(v.Name, v.Description)
			if reason, ok := deprecation(v.Directives); ok {
				ev.Deprecate(reason)
			}
			t.AddEnumValue(ev)
		}
	case ast.InputObject:
		t.SetOneOf(def.Directives.ForName("oneOf") != nil)
		for _, f := range def.Fields {
			in := NewInputValue(f.Name, f.Description, buildTypeRef(f.Type)).SetDefault(defaultValue(f.DefaultValue))
			in.DefaultLiteral = defaultLiteral(f.DefaultValue)
			if reason, ok := deprecation(f.Directives); ok {
				in.Deprecate(reason)
			}
			t.AddInputField(in)
		}
	case ast.Scalar:
		if d := def.Directives.ForName("specifiedBy"); d != nil {
			if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
				t.SetSpecifiedByURL(arg.Value.Raw)
			}
		}
	}
	return t
}

func buildField(def *ast.FieldDefinition) *Field {
	f := NewField(def.Name, def.Description, buildTypeRef(def.Type))
	if reason, ok := deprecation(def.Directives); ok {
		f.Deprecate(reason)
	}
	for _, arg := range def.Arguments {
		f.AddArgument(buildArgument(arg))
	}
	return f
}

func buildArgument(arg *ast.ArgumentDefinition) *InputValue {
	in := NewInputValue(arg.Name, arg.Description, buildTypeRef(arg.Type)).SetDefault(defaultValue(arg.DefaultValue))
	in.DefaultLiteral = defaultLiteral(arg.DefaultValue)
	if reason, ok := deprecation(arg.Directives); ok {
		in.Deprecate(reason)
	}
	return in
}

func buildDirective(dir *ast.DirectiveDefinition) *Directive {
	d := NewDirective(dir.Name, dir.Description).SetRepeatable(dir.IsRepeatable)
	for _, loc := range dir.Locations {
		d.Locations = append(d.Locations, string(loc))
	}
	for _, arg := range dir.Arguments {
		d.AddArgument(buildArgument(arg))
	}
	return d
}

func buildTypeRef(t *ast.Type) *TypeRef {
	if t == nil {
		return nil
	}
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(buildTypeRef(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		return NonNullType(ref)
	}
	return ref
}

func defaultValue(v *ast.Value) any {
	if v == nil {
		return nil
	}
	out, err := v.Value(nil)
	if err != nil {
		return nil
	}
	return out
}

func defaultLiteral(v *ast.Value) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func deprecation(directives ast.DirectiveList) (string, bool) {
	d := directives.ForName("deprecated")
	if d == nil {
		return "", false
	}
	reason := "No longer supported"
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		reason = arg.Value.Raw
	}
	return reason, true
}
