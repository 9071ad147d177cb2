// Package schema is the executable form of a GraphQL schema: the types and
// directives the executor walks, plus the validated gqlparser source used to
// validate query documents.
package schema

import "github.com/vektah/gqlparser/v2/ast"

// Schema holds every named type and directive, keyed by name, and the names
// of the root operation types.
type Schema struct {
	QueryType        string
	MutationType     string
	SubscriptionType string
	Types            map[string]*Type
	Directives       map[string]*Directive
	Description      string

	// AST is the validated source the schema was built from. Query documents
	// are validated against it. Nil for schemas assembled by hand.
	AST *ast.Schema `json:"-"`
}

// GetQueryType returns the query root, or nil.
func (s *Schema) GetQueryType() *Type { return s.Types[s.QueryType] }

// GetMutationType returns the mutation root, or nil.
func (s *Schema) GetMutationType() *Type { return s.Types[s.MutationType] }

// GetSubscriptionType returns the subscription root, or nil.
func (s *Schema) GetSubscriptionType() *Type { return s.Types[s.SubscriptionType] }

// IsPossibleType reports whether objectType is abstractType itself or one of
// its possible types.
func (s *Schema) IsPossibleType(abstractType, objectType string) bool {
	if abstractType == objectType {
		return true
	}
	t := s.Types[abstractType]
	if t == nil {
		return false
	}
	for _, name := range t.PossibleTypes {
		if name == objectType {
			return true
		}
	}
	return false
}

// Type is a named type. Which slices are set depends on Kind.
type Type struct {
	Name        string
	Kind        TypeKind
	Description string

	Fields        []*Field      // objects and interfaces
	Interfaces    []string      // objects and interfaces
	PossibleTypes []string      // interfaces and unions
	EnumValues    []*EnumValue  // enums
	InputFields   []*InputValue // input objects

	SpecifiedByURL *string
	OneOf          bool
}

// Field is a field of an object or interface type. Async fields are resolved
// in the per-depth batch rather than one by one.
type Field struct {
	Name              string
	Description       string
	Type              *TypeRef
	Arguments         []*InputValue
	Async             bool
	IsDeprecated      bool
	DeprecationReason string
}

// TypeKind is the introspection kind of a named type.
type TypeKind string

const (
	TypeKindScalar      TypeKind = "SCALAR"
	TypeKindObject      TypeKind = "OBJECT"
	TypeKindInterface   TypeKind = "INTERFACE"
	TypeKindUnion       TypeKind = "UNION"
	TypeKindEnum        TypeKind = "ENUM"
	TypeKindInputObject TypeKind = "INPUT_OBJECT"
)

// TypeRef is a possibly wrapped reference to a named type. Wrappers point
// at their inner type through OfType.
type TypeRef struct {
	Kind   TypeRefKind
	OfType *TypeRef
	Named  string
}

type TypeRefKind string

const (
	TypeRefKindNamed   TypeRefKind = "NAMED"
	TypeRefKindList    TypeRefKind = "LIST"
	TypeRefKindNonNull TypeRefKind = "NON_NULL"
)

func NonNullType(t *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindNonNull, OfType: t} }
func ListType(t *TypeRef) *TypeRef    { return &TypeRef{Kind: TypeRefKindList, OfType: t} }
func NamedType(name string) *TypeRef  { return &TypeRef{Kind: TypeRefKindNamed, Named: name} }

// IsNonNull reports whether t is a Non-Null wrapper.
func IsNonNull(t *TypeRef) bool { return t != nil && t.Kind == TypeRefKindNonNull }

// IsList reports whether t is a list, directly or under Non-Null.
func IsList(t *TypeRef) bool {
	if IsNonNull(t) {
		t = t.OfType
	}
	return t != nil && t.Kind == TypeRefKindList
}

// Unwrap strips one wrapper. Named refs are returned as is.
func Unwrap(t *TypeRef) *TypeRef {
	if t.Kind == TypeRefKindNamed {
		return t
	}
	return t.OfType
}

// GetNamedType returns the name at the bottom of t.
func GetNamedType(t *TypeRef) string {
	for t != nil && t.Kind != TypeRefKindNamed {
		t = t.OfType
	}
	if t == nil {
		return ""
	}
	return t.Named
}

type EnumValue struct {
	Name              string
	Description       string
	IsDeprecated      bool
	DeprecationReason string
}

// InputValue is an argument or an input object field.
type InputValue struct {
	Name              string
	Description       string
	Type              *TypeRef
	DefaultValue      any
	DefaultLiteral    string // default in GraphQL syntax, as reported by introspection
	IsDeprecated      bool
	DeprecationReason string
}

type Directive struct {
	Name         string
	Description  string
	Locations    []string
	Arguments    []*InputValue
	IsRepeatable bool
}
