package executor

import (
	"strconv"
	"strings"
)

// Path addresses a value in the response.
type Path []PathElement

// PathElement is a response key (string) or a list index (int).
type PathElement any

// String renders p as "a.b[2].c".
func (p Path) String() string {
	var b strings.Builder
	for _, elem := range p {
		switch v := elem.(type) {
		case string:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(v)
		case int:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(v))
			b.WriteByte(']')
		}
	}
	return b.String()
}

// appendPath returns a copy of path extended by elem. Paths are shared
// between sibling fields, so they are never appended to in place.
func appendPath(path Path, elem PathElement) Path {
	out := make(Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}

// setValueAtPath writes value into the response tree rooted at root.
// Missing intermediate objects are created. Writes below a null value or past
// the end of a list are dropped.
func setValueAtPath(root map[string]any, path Path, value any) {
	if len(path) == 0 {
		return
	}
	var cur any = root
	for _, elem := range path[:len(path)-1] {
		cur = descend(cur, elem)
		if cur == nil {
			return
		}
	}
	switch last := path[len(path)-1].(type) {
	case string:
		if m, ok := cur.(map[string]any); ok {
			m[last] = value
		}
	case int:
		if l, ok := cur.([]any); ok && last < len(l) {
			l[last] = value
		}
	}
}

func descend(cur any, elem PathElement) any {
	switch e := elem.(type) {
	case string:
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		next, ok := m[e]
		if !ok {
			next = map[string]any{}
			m[e] = next
		}
		return next
	case int:
		l, ok := cur.([]any)
		if !ok || e >= len(l) {
			return nil
		}
		return l[e]
	}
	return nil
}
