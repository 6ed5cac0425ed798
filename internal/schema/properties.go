package schema

import (
	"fmt"
	"sort"

	"pulsemetrics/internal/apperr"
)

// Limits on the free-form properties bag of an engagement event.
const (
	MaxPropertyKeys     = 50
	MaxPropertyKeyLen   = 64
	MaxPropertyValueLen = 1024
)

// PropertiesViolations checks that props is a flat map of primitive values
// within the size caps. Keys are visited in sorted order so the result is
// stable.
func PropertiesViolations(field string, props map[string]any) []apperr.FieldError {
	if len(props) == 0 {
		return nil
	}
	var out []apperr.FieldError
	if len(props) > MaxPropertyKeys {
		out = append(out, apperr.FieldError{
			Field:   field,
			Rule:    "max_keys",
			Message: fmt.Sprintf("must have at most %d keys", MaxPropertyKeys),
		})
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path := field + "." + k
		if k == "" || len(k) > MaxPropertyKeyLen {
			out = append(out, apperr.FieldError{
				Field:   path,
				Rule:    "key",
				Message: fmt.Sprintf("key must be 1-%d characters", MaxPropertyKeyLen),
			})
			continue
		}
		switch v := props[k].(type) {
		case nil, bool, float64, float32, int, int32, int64, uint, uint32, uint64:
		case string:
			if len(v) > MaxPropertyValueLen {
				out = append(out, apperr.FieldError{
					Field:   path,
					Rule:    "max",
					Message: fmt.Sprintf("must be at most %d characters", MaxPropertyValueLen),
				})
			}
		default:
			out = append(out, apperr.FieldError{
				Field:   path,
				Rule:    "primitive",
				Message: "must be a string, number, boolean or null",
			})
		}
	}
	return out
}
