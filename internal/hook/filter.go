package hook

import (
	"reflect"
	"strings"

	"github.com/Priya8975/hookrelay/internal/domain"
)

// Filter decides, from the decoded payload, whether a handler wants an event
// its type already matched.
type Filter func(ev *domain.Event) bool

// Field walks a dotted path ("pull_request.base.ref") through the payload.
func Field(payload map[string]any, path string) (any, bool) {
	var cur any = payload
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// FieldEquals matches events whose payload has want at path. Values compare
// deeply, so arrays ([]any) and objects (map[string]any) work too. JSON
// numbers decode as float64, so compare numbers as float64.
func FieldEquals(path string, want any) Filter {
	return func(ev *domain.Event) bool {
		got, ok := Field(ev.Payload, path)
		return ok && reflect.DeepEqual(got, want)
	}
}

// Action matches the "action" field most GitHub events carry.
func Action(action string) Filter {
	return FieldEquals("action", action)
}

// All matches when every filter matches.
func All(filters ...Filter) Filter {
	return func(ev *domain.Event) bool {
		for _, f := range filters {
			if !f(ev) {
				return false
			}
		}
		return true
	}
}
