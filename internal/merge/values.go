package merge

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/spoolhq/spool/internal/record"
)

func toSet(vs []string) map[string]bool {
	s := make(map[string]bool, len(vs))
	for _, v := range vs {
		s[v] = true
	}
	return s
}

func depSet(ds []record.Dependency) map[string]bool {
	s := make(map[string]bool, len(ds))
	for _, d := range ds {
		s[d.Key()] = true
	}
	return s
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func strSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func renderTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func renderStrSlice(vs []string) string {
	return strings.Join(vs, ",")
}

// renderAny produces a deterministic string form of an extension value for
// conflict reporting and tie-breaking. Maps render with sorted keys.
func renderAny(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+":"+renderAny(t[k]))
		}
		return "{" + strings.Join(parts, ",") + "}"
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, renderAny(e))
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprintf("%v", t)
	}
}

func equalAny(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
