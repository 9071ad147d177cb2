package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type color string

type level int

type tagged struct {
	Name   string `graphql:"displayName"`
	Hidden string `graphql:"-"`
	Count  int
	secret string
}

func TestDefaultResolve(t *testing.T) {
	src := &tagged{Name: "n", Hidden: "h", Count: 3, secret: "s"}
	cases := []struct {
		source any
		field  string
		want   any
	}{
		{nil, "x", nil},
		{map[string]any{"x": 1}, "x", 1},
		{map[string]string{"x": "y"}, "x", "y"},
		{map[string]string{}, "x", nil},
		{src, "displayName", "n"},
		{src, "name", nil},
		{src, "count", 3},
		{src, "secret", nil},
		{*src, "Count", 3},
		{(*tagged)(nil), "count", nil},
	}
	for _, c := range cases {
		got, err := DefaultResolve(c.source, c.field)
		require.NoError(t, err, "%T.%s", c.source, c.field)
		assert.Equal(t, c.want, got, "%T.%s", c.source, c.field)
	}

	_, err := DefaultResolve(42, "x")
	require.Error(t, err)
}

func TestSerializeLeaf(t *testing.T) {
	s := "ptr"
	var nilPtr *string
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{"s", "s"},
		{true, true},
		{int32(2), int32(2)},
		{float64(2.5), float64(2.5)},
		{[]byte{0x01, 0x02, 0xFF}, "AQL/"},
		{&s, "ptr"},
		{nilPtr, nil},
		{ts, "2025-01-02T03:04:05Z"},
		{&ts, "2025-01-02T03:04:05Z"},
		{color("RED"), "RED"},
		{level(4), int64(4)},
		{uint8(7), uint64(7)},
		{time.Second, "1s"},
	}
	for _, c := range cases {
		got, err := SerializeLeaf(c.in)
		require.NoError(t, err, "%T", c.in)
		assert.Equal(t, c.want, got, "%T", c.in)
	}

	_, err := SerializeLeaf(struct{}{})
	require.Error(t, err)
}
