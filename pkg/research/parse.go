package research

import (
	"encoding/json"
	"errors"
	"strings"

	"deep-research-agent/internal/constant"
	"deep-research-agent/internal/entity"
)

type ParseOutcome int

const (
	// Parsed: a JSON object was found and merged over the stage defaults.
	Parsed ParseOutcome = iota
	// Fallback: no usable JSON; the raw text became the summary.
	Fallback
)

func (o ParseOutcome) String() string {
	if o == Parsed {
		return "parsed"
	}
	return "fallback"
}

// ParseResult is either Parsed(Finding) or Fallback(RawText, Finding).
// Finding is always populated with every default field.
type ParseResult struct {
	Outcome ParseOutcome
	Finding entity.Finding
	RawText string
	// Cause explains a Fallback.
	Cause error
}

var errNoJSONObject = errors.New("no JSON object in response")

// ParseFinding extracts the first top-level JSON object from text and merges
// it over defaults. Anything else falls back to a summary built from text.
func ParseFinding(text string, defaults entity.Finding) ParseResult {
	candidate, ok := firstJSONObject(text)
	if !ok {
		return fallback(text, defaults, errNoJSONObject)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return fallback(text, defaults, err)
	}

	return ParseResult{
		Outcome: Parsed,
		Finding: MergeOverDefaults(defaults, parsed),
		RawText: text,
	}
}

func fallback(text string, defaults entity.Finding, cause error) ParseResult {
	finding := MergeOverDefaults(defaults, nil)
	if summary := truncate(strings.TrimSpace(text), constant.FallbackSummaryLength); summary != "" {
		finding["summary"] = summary
	}
	finding["raw_response"] = text

	return ParseResult{
		Outcome: Fallback,
		Finding: finding,
		RawText: text,
		Cause:   cause,
	}
}

// MergeOverDefaults returns a deep copy of defaults with parsed laid on top.
// Nested objects merge key by key; a null in parsed keeps the default.
// Neither argument is modified.
func MergeOverDefaults(defaults entity.Finding, parsed map[string]interface{}) entity.Finding {
	merged := entity.Finding(copyMap(defaults))
	mergeInto(merged, parsed)
	return merged
}

func mergeInto(dst, src map[string]interface{}) {
	for key, value := range src {
		if value == nil {
			if _, present := dst[key]; !present {
				dst[key] = nil
			}
			continue
		}
		srcMap, srcIsMap := value.(map[string]interface{})
		dstMap, dstIsMap := dst[key].(map[string]interface{})
		if srcIsMap && dstIsMap {
			mergeInto(dstMap, srcMap)
			continue
		}
		dst[key] = copyValue(value)
	}
}

func copyMap(src map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(src))
	for key, value := range src {
		out[key] = copyValue(value)
	}
	return out
}

func copyValue(value interface{}) interface{} {
	switch typed := value.(type) {
	case map[string]interface{}:
		return copyMap(typed)
	case entity.Finding:
		return copyMap(typed)
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = copyValue(item)
		}
		return out
	default:
		return typed
	}
}

// firstJSONObject returns the first balanced top-level {...} span. Braces
// inside JSON strings are ignored; quotes in surrounding prose are not
// treated as strings.
func firstJSONObject(text string) (string, bool) {
	depth := 0
	start := -1
	inString := false
	escape := false

	for i := 0; i < len(text); i++ {
		b := text[i]

		if depth > 0 {
			if escape {
				escape = false
				continue
			}
			if inString {
				if b == '\\' {
					escape = true
				} else if b == '"' {
					inString = false
				}
				continue
			}
			if b == '"' {
				inString = true
				continue
			}
		}

		switch b {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}

func truncate(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes])
}
