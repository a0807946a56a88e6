package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateQuery(t *testing.T) {
	v := New(DefaultLimits())

	tests := []struct {
		name    string
		query   interface{}
		want    string
		wantErr bool
	}{
		{name: "valid query", query: "Best budget laptop for students", want: "Best budget laptop for students"},
		{name: "trimmed", query: "   What is RAG?  ", want: "What is RAG?"},
		{name: "truncated to 500", query: strings.Repeat("a", 800), want: strings.Repeat("a", 500)},
		{name: "empty", query: "", wantErr: true},
		{name: "whitespace only", query: "    ", wantErr: true},
		{name: "not a string", query: 12345, wantErr: true},
		{name: "too short", query: "abc", wantErr: true},
		{name: "too short after sanitization", query: "<<<>>>hi", wantErr: true},
		{name: "no letters", query: "12345 67890", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.ValidateQuery(tt.query)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidInput))
				var vErr *ValidationError
				assert.True(t, errors.As(err, &vErr))
				assert.Equal(t, "query", vErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateQuery_Idempotent(t *testing.T) {
	v := New(DefaultLimits())
	queries := []string{
		"Best budget laptop for students",
		"Compare <b>PostgreSQL</b> vs MySQL; for analytics -- 2024",
		"What's the 'best' approach & why?",
		strings.Repeat("research ", 80),
		"hello world " + strings.Repeat("/", 9) + strings.Repeat("*", 9),
	}

	for _, q := range queries {
		first, err := v.ValidateQuery(q)
		require.NoError(t, err)
		second, err := v.ValidateQuery(first)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestValidateSessionID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"DRA_20240101_120000", false},
		{"DRA_20240101_120000_123456", false},
		{"", true},
		{"DRA_2024_1200", true},
		{"DRA_20240101_120000_12345", true},
		{"dra_20240101_120000", true},
		{"DRA_20240101_120000;rm", true},
		{"../DRA_20240101_120000", true},
		{"DRA_20240101_120000\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := ValidateSessionID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, got)
		})
	}
}

func TestValidateConfidenceScore(t *testing.T) {
	tests := []struct {
		name    string
		score   interface{}
		want    float64
		wantErr bool
	}{
		{name: "zero", score: 0.0, want: 0},
		{name: "one", score: 1, want: 1},
		{name: "string number", score: "0.7", want: 0.7},
		{name: "above range", score: 1.5, wantErr: true},
		{name: "below range", score: -0.1, wantErr: true},
		{name: "not a number", score: "high", wantErr: true},
		{name: "nil", score: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateConfidenceScore(tt.score)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestValidateResearchStage(t *testing.T) {
	v := New(DefaultLimits())

	for _, stage := range []interface{}{1, 6, "3", int64(4)} {
		_, err := v.ValidateResearchStage(stage)
		assert.NoError(t, err, "stage %v", stage)
	}
	for _, stage := range []interface{}{0, 7, -1, "x", nil} {
		_, err := v.ValidateResearchStage(stage)
		assert.Error(t, err, "stage %v", stage)
	}

	wide := New(Limits{MaxStages: 8})
	got, err := wide.ValidateResearchStage(7)
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestValidateReportDepth(t *testing.T) {
	got, err := ValidateReportDepth(" Detailed ")
	require.NoError(t, err)
	assert.Equal(t, DepthDetailed, got)

	_, err = ValidateReportDepth("deep")
	assert.Error(t, err)
}

func TestNew_FillsDefaults(t *testing.T) {
	v := New(Limits{MaxQueryLength: 50})
	limits := v.Limits()

	assert.Equal(t, 50, limits.MaxQueryLength)
	assert.Equal(t, 5, limits.MinQueryLength)
	assert.Equal(t, 6, limits.MaxStages)
	assert.Equal(t, 100, limits.MaxDictKeys)
}
