package validation

import (
	"math"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// Context sections recognised by ValidateContextData.
const (
	ContextUserInfo    = "user_info"
	ContextConstraints = "constraints"
	ContextPreferences = "preferences"
)

var contextSections = []string{ContextUserInfo, ContextConstraints, ContextPreferences}

var reservedKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

func isReservedKey(key string) bool {
	if strings.Contains(key, ".") {
		return true
	}
	_, reserved := reservedKeys[strings.ToLower(strings.TrimSpace(key))]
	return reserved
}

// ValidateContextData validates the research context. The user_info,
// constraints and preferences sections must be mappings when present; the
// whole structure then passes through ValidatePersonalizationData.
func (v *Validator) ValidateContextData(data map[string]interface{}) (map[string]interface{}, error) {
	if data == nil {
		return map[string]interface{}{}, nil
	}
	for _, section := range contextSections {
		raw, present := data[section]
		if !present || raw == nil {
			continue
		}
		if _, isMap := raw.(map[string]interface{}); !isMap {
			return nil, Invalidf(section, "must be a mapping, got %T", raw)
		}
	}
	return v.ValidatePersonalizationData(data)
}

// ValidatePersonalizationData recursively bounds and sanitizes a mapping.
// Reserved keys are rejected; keys whose sanitized value is empty are dropped.
// Numbers are normalised to float64 so the result survives a JSON round trip
// unchanged.
func (v *Validator) ValidatePersonalizationData(data map[string]interface{}) (map[string]interface{}, error) {
	if data == nil {
		return map[string]interface{}{}, nil
	}
	return v.validateMapping("context", data, 0)
}

func (v *Validator) validateMapping(path string, data map[string]interface{}, depth int) (map[string]interface{}, error) {
	if depth > v.limits.MaxDepth {
		return nil, Invalidf(path, "nesting deeper than %d levels", v.limits.MaxDepth)
	}
	if len(data) > v.limits.MaxDictKeys {
		return nil, Invalidf(path, "has %d keys, maximum is %d", len(data), v.limits.MaxDictKeys)
	}

	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make(map[string]interface{}, len(data))
	rawKeys := make(map[string]string, len(data))
	for _, key := range keys {
		if isReservedKey(key) {
			return nil, Invalidf(path, "key %q is not allowed", key)
		}
		cleanKey := SanitizeString(key, v.limits.MaxKeyLength)
		if cleanKey == "" {
			continue
		}
		if isReservedKey(cleanKey) {
			return nil, Invalidf(path, "key %q is not allowed", cleanKey)
		}
		if first, taken := rawKeys[cleanKey]; taken {
			return nil, Invalidf(path, "keys %q and %q both sanitize to %q", first, key, cleanKey)
		}
		rawKeys[cleanKey] = key

		value, keep, err := v.validateValue(path+"/"+cleanKey, data[key], depth)
		if err != nil {
			return nil, err
		}
		if keep {
			out[cleanKey] = value
		}
	}
	return out, nil
}

func (v *Validator) validateValue(path string, value interface{}, depth int) (interface{}, bool, error) {
	switch typed := value.(type) {
	case nil:
		return nil, false, nil
	case string:
		clean := SanitizeString(typed, v.limits.MaxValueLength)
		return clean, clean != "", nil
	case bool:
		return typed, true, nil
	case map[string]interface{}:
		nested, err := v.validateMapping(path, typed, depth+1)
		if err != nil {
			return nil, false, err
		}
		return nested, len(nested) > 0, nil
	case []interface{}:
		list, err := v.validateList(path, typed, depth)
		if err != nil {
			return nil, false, err
		}
		return list, len(list) > 0, nil
	case []string:
		items := make([]interface{}, len(typed))
		for i, item := range typed {
			items[i] = item
		}
		list, err := v.validateList(path, items, depth)
		if err != nil {
			return nil, false, err
		}
		return list, len(list) > 0, nil
	}

	if number, err := cast.ToFloat64E(value); err == nil {
		if math.IsNaN(number) || math.IsInf(number, 0) {
			return nil, false, nil
		}
		return number, true, nil
	}

	clean := SanitizeString(value, v.limits.MaxValueLength)
	return clean, clean != "", nil
}

func (v *Validator) validateList(path string, items []interface{}, depth int) ([]interface{}, error) {
	if len(items) > v.limits.MaxListLength {
		items = items[:v.limits.MaxListLength]
	}

	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		switch typed := item.(type) {
		case nil:
			continue
		case string:
			if clean := SanitizeString(typed, v.limits.MaxListItemLength); clean != "" {
				out = append(out, clean)
			}
		case bool:
			out = append(out, typed)
		case map[string]interface{}:
			nested, err := v.validateMapping(path, typed, depth+1)
			if err != nil {
				return nil, err
			}
			if len(nested) > 0 {
				out = append(out, nested)
			}
		case []interface{}, []string:
			// nested lists are not part of the context shape
			continue
		default:
			if number, err := cast.ToFloat64E(typed); err == nil && !math.IsNaN(number) && !math.IsInf(number, 0) {
				out = append(out, number)
				continue
			}
			if clean := SanitizeString(typed, v.limits.MaxListItemLength); clean != "" {
				out = append(out, clean)
			}
		}
	}
	return out, nil
}
