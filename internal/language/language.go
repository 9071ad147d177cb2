package language

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
	"github.com/vektah/gqlparser/v2/validator/core"
	validatorrules "github.com/vektah/gqlparser/v2/validator/rules"
)

// ParseQuery parses an executable document. Syntax errors are returned as
// *gqlerror.Error with a location.
func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Rules is a set of validation rules.
type Rules = validatorrules.Rules

// DefaultRules returns a fresh copy of the specified validation rules.
func DefaultRules() *Rules { return validatorrules.NewDefaultRules() }

// Validate checks doc against schema. A nil rules set means the default rules.
func Validate(schema *ast.Schema, doc *QueryDocument, rules *Rules) ErrorList {
	return validator.ValidateWithRules(schema, doc, rules)
}

// NoIntrospection is a validation rule rejecting __schema and __type.
func NoIntrospection(observers *core.Events, addError core.AddErrFunc) {
	observers.OnField(func(_ *core.Walker, field *ast.Field) {
		if field.Name == "__schema" || field.Name == "__type" {
			addError(
				core.Message(`GraphQL introspection has been disabled, but the requested query contained the field "%s".`, field.Name),
				core.At(field.Position),
			)
		}
	})
}
