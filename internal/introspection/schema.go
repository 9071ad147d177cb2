package introspection

import (
	"slices"
	"strings"
	"sync"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	schema "github.com/hanpama/gqlserve/internal/schema"
)

// preludeTypes are the __-prefixed types of the gqlparser prelude together
// with the scalars they reference. Schemas built from SDL already carry them;
// schemas assembled by hand borrow them from here.
var preludeTypes = sync.OnceValue(func() map[string]*schema.Type {
	src := gqlparser.MustLoadSchema(&ast.Source{Name: "introspection.graphql", Input: "type Query { ok: Boolean }"})
	types := map[string]*schema.Type{}
	for name, t := range schema.FromAST(src).Types {
		if strings.HasPrefix(name, "__") || name == "String" || name == "Boolean" {
			types[name] = t
		}
	}
	return types
})

// extend returns a copy of sch whose query root also answers __schema and
// __type. sch itself is left untouched.
func extend(sch *schema.Schema) *schema.Schema {
	out := *sch
	out.Types = make(map[string]*schema.Type, len(sch.Types)+len(preludeTypes()))
	for name, t := range preludeTypes() {
		out.Types[name] = t
	}
	for name, t := range sch.Types {
		out.Types[name] = t
	}

	query := sch.GetQueryType()
	if query == nil || query.Field("__schema") != nil {
		return &out
	}
	root := *query
	root.Fields = append(slices.Clip(query.Fields),
		schema.NewField("__schema", "Access the current type schema of this server.",
			schema.NonNullType(schema.NamedType("__Schema"))),
		schema.NewField("__type", "Request the type information of a single type.",
			schema.NamedType("__Type")).
			AddArgument(schema.NewInputValue("name", "The name of the type to look up.",
				schema.NonNullType(schema.NamedType("String")))),
	)
	out.Types[root.Name] = &root
	return &out
}
