// Package validation is the sanitation gate for every externally supplied
// string or structure entering the research pipeline or the session store.
// All functions are pure: they return a normalized copy or a *ValidationError
// and never mutate their arguments.
package validation

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/spf13/cast"
)

// Report depths accepted by ValidateReportDepth.
const (
	DepthQuick    = "quick"
	DepthStandard = "standard"
	DepthDetailed = "detailed"
)

var sessionIDPattern = regexp.MustCompile(`^DRA_\d{8}_\d{6}(_\d{6})?$`)

// Limits bounds the size of validated input.
type Limits struct {
	MinQueryLength    int
	MaxQueryLength    int
	MaxStages         int
	MaxDictKeys       int
	MaxKeyLength      int
	MaxValueLength    int
	MaxListLength     int
	MaxListItemLength int
	MaxDepth          int
}

// DefaultLimits returns the production bounds.
func DefaultLimits() Limits {
	return Limits{
		MinQueryLength:    5,
		MaxQueryLength:    500,
		MaxStages:         6,
		MaxDictKeys:       100,
		MaxKeyLength:      50,
		MaxValueLength:    200,
		MaxListLength:     10,
		MaxListItemLength: 100,
		MaxDepth:          5,
	}
}

// Validator holds the limits it was constructed with; it has no other state.
type Validator struct {
	limits Limits
}

// New creates a Validator. Non-positive limits fall back to DefaultLimits.
func New(limits Limits) *Validator {
	def := DefaultLimits()
	fill := func(v *int, fallback int) {
		if *v <= 0 {
			*v = fallback
		}
	}
	fill(&limits.MinQueryLength, def.MinQueryLength)
	fill(&limits.MaxQueryLength, def.MaxQueryLength)
	fill(&limits.MaxStages, def.MaxStages)
	fill(&limits.MaxDictKeys, def.MaxDictKeys)
	fill(&limits.MaxKeyLength, def.MaxKeyLength)
	fill(&limits.MaxValueLength, def.MaxValueLength)
	fill(&limits.MaxListLength, def.MaxListLength)
	fill(&limits.MaxListItemLength, def.MaxListItemLength)
	fill(&limits.MaxDepth, def.MaxDepth)
	return &Validator{limits: limits}
}

// Limits returns the effective limits.
func (v *Validator) Limits() Limits {
	return v.limits
}

// ValidateQuery sanitizes a research query and checks its length and that it
// contains at least one letter.
func (v *Validator) ValidateQuery(query interface{}) (string, error) {
	raw, ok := query.(string)
	if !ok {
		return "", Invalid("query", "must be a string")
	}
	if strings.TrimSpace(raw) == "" {
		return "", Invalid("query", "must not be empty")
	}

	clean := SanitizeString(raw, v.limits.MaxQueryLength)
	if len([]rune(clean)) < v.limits.MinQueryLength {
		return "", Invalidf("query", "must be at least %d characters after sanitization", v.limits.MinQueryLength)
	}
	if !strings.ContainsFunc(clean, unicode.IsLetter) {
		return "", Invalid("query", "must contain at least one letter")
	}
	return clean, nil
}

// ValidateSessionID accepts only identifiers of the form
// DRA_<YYYYMMDD>_<HHMMSS>[_<ffffff>] that sanitization leaves untouched.
func ValidateSessionID(sessionID string) (string, error) {
	if sessionID == "" {
		return "", Invalid("session_id", "must not be empty")
	}
	if SanitizeString(sessionID, len(sessionID)) != sessionID {
		return "", Invalid("session_id", "contains disallowed characters")
	}
	if !sessionIDPattern.MatchString(sessionID) {
		return "", Invalidf("session_id", "%q does not match DRA_YYYYMMDD_HHMMSS[_ffffff]", sessionID)
	}
	return sessionID, nil
}

// ValidateSessionID is the method form of the package-level function.
func (v *Validator) ValidateSessionID(sessionID string) (string, error) {
	return ValidateSessionID(sessionID)
}

// ValidateConfidenceScore coerces score to float64 and requires 0 <= score <= 1.
func ValidateConfidenceScore(score interface{}) (float64, error) {
	if score == nil {
		return 0, Invalid("confidence_score", "must not be empty")
	}
	value, err := cast.ToFloat64E(score)
	if err != nil {
		return 0, Wrap("confidence_score", "must be a number", err)
	}
	if math.IsNaN(value) || value < 0 || value > 1 {
		return 0, Invalidf("confidence_score", "%v is outside [0, 1]", value)
	}
	return value, nil
}

// ValidateResearchStage coerces stage to int and requires 1 <= stage <= MaxStages.
func (v *Validator) ValidateResearchStage(stage interface{}) (int, error) {
	if stage == nil {
		return 0, Invalid("stage", "must not be empty")
	}
	value, err := cast.ToIntE(stage)
	if err != nil {
		return 0, Wrap("stage", "must be an integer", err)
	}
	if value < 1 || value > v.limits.MaxStages {
		return 0, Invalidf("stage", "%d is outside [1, %d]", value, v.limits.MaxStages)
	}
	return value, nil
}

// ValidateReportDepth normalizes depth to one of quick, standard, detailed.
func ValidateReportDepth(depth string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(depth))
	switch normalized {
	case DepthQuick, DepthStandard, DepthDetailed:
		return normalized, nil
	}
	return "", Invalidf("depth", "%q must be one of quick, standard, detailed", depth)
}
