package query

import "fmt"

// Matches evaluates a filter tree against a record in memory. Plain keys
// compare with loose equality (numeric types compare by value via string
// formatting, matching how generic rows come back from drivers). Used by
// in-memory handles and tests; SQL and document backends compile the tree
// instead.
func Matches(record map[string]any, f Filter) bool {
	for k, v := range f {
		switch k {
		case OpAnd:
			sub, ok := v.([]Filter)
			if !ok {
				return false
			}
			for _, s := range sub {
				if !Matches(record, s) {
					return false
				}
			}
		case OpOr:
			sub, ok := v.([]Filter)
			if !ok {
				return false
			}
			any := false
			for _, s := range sub {
				if Matches(record, s) {
					any = true
					break
				}
			}
			if !any {
				return false
			}
		default:
			got, present := record[k]
			if v == nil {
				if present && got != nil {
					return false
				}
				continue
			}
			if !present || !looseEqual(got, v) {
				return false
			}
		}
	}
	return true
}

func looseEqual(a, b any) bool {
	if a == b {
		return true
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
