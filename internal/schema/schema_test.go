package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const testSDL = `
"Root query"
type Query {
  node(id: ID!): Node
  search(term: String = "all", first: Int = 10): [Result!]!
  old: String @deprecated(reason: "use node")
}

type Mutation { touch(id: ID!): Boolean }

type Subscription { ticks: Int! }

interface Node { id: ID! }

type User implements Node { id: ID! name: String }
type Post implements Node { id: ID! title: String }

union Result = User | Post

enum Color { RED GREEN @deprecated }

input Filter { color: Color = RED, limit: Int }
`

func TestBuildFromSDL(t *testing.T) {
	sch, err := BuildFromSDL(testSDL)
	require.NoError(t, err)

	require.Equal(t, "Query", sch.QueryType)
	require.Equal(t, "Mutation", sch.MutationType)
	require.Equal(t, "Subscription", sch.SubscriptionType)
	require.NotNil(t, sch.AST)

	query := sch.GetQueryType()
	require.NotNil(t, query)
	var names []string
	for _, f := range query.Fields {
		names = append(names, f.Name)
	}
	if diff := cmp.Diff([]string{"node", "search", "old"}, names); diff != "" {
		t.Fatalf("query fields mismatch (-want +got):\n%s", diff)
	}

	search := query.Field("search")
	require.Equal(t, NonNullType(ListType(NonNullType(NamedType("Result")))), search.Type)
	require.Equal(t, "all", search.Arguments[0].DefaultValue)
	require.EqualValues(t, 10, search.Arguments[1].DefaultValue)

	old := query.Field("old")
	require.True(t, old.IsDeprecated)
	require.Equal(t, "use node", old.DeprecationReason)

	require.ElementsMatch(t, []string{"User", "Post"}, sch.Types["Node"].PossibleTypes)
	require.ElementsMatch(t, []string{"User", "Post"}, sch.Types["Result"].PossibleTypes)
	require.Equal(t, []string{"Node"}, sch.Types["User"].Interfaces)
	require.True(t, sch.IsPossibleType("Node", "User"))
	require.False(t, sch.IsPossibleType("Result", "Color"))

	color := sch.Types["Color"]
	require.Equal(t, TypeKindEnum, color.Kind)
	require.True(t, color.EnumValues[1].IsDeprecated)

	filter := sch.Types["Filter"]
	require.Equal(t, TypeKindInputObject, filter.Kind)
	require.Equal(t, "RED", filter.InputFields[0].DefaultValue)
}

func TestBuildFromSDLDeclaresIncrementalDirectives(t *testing.T) {
	sch, err := BuildFromSDL(`type Query { a: String }`)
	require.NoError(t, err)
	require.Contains(t, sch.Directives, "defer")
	require.Contains(t, sch.Directives, "stream")
	require.Contains(t, sch.Directives, "skip")
	require.Contains(t, sch.Types, "__Schema")
	require.Nil(t, sch.GetQueryType().Field("__schema"))
}

func TestBuildFromSDLRejectsInvalidSchema(t *testing.T) {
	_, err := BuildFromSDL(`type Query { a: Missing }`)
	require.Error(t, err)
}
