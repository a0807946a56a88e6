package research

import (
	"strings"
	"testing"
	"time"

	"deep-research-agent/internal/entity"

	"github.com/stretchr/testify/assert"
)

func TestBuildStagePrompt_FirstStage(t *testing.T) {
	state := NewResearchState(&entity.Session{
		SessionID: "DRA_20240315_103000_000001",
		Query:     "Best budget laptop for students",
		Context:   map[string]interface{}{},
	})

	prompt := BuildStagePrompt(1, state)

	assert.Contains(t, prompt, "<research_question>\nBest budget laptop for students\n</research_question>")
	assert.NotContains(t, prompt, "<user_context>")
	assert.NotContains(t, prompt, "<previous_findings>")
	assert.NotContains(t, prompt, "<open_gaps>")
	assert.Contains(t, prompt, `<task stage="1" name="Query Analysis">`)
}

func TestBuildStagePrompt_CarriesEarlierStages(t *testing.T) {
	state := NewResearchState(&entity.Session{
		Query:   "Best budget laptop for students",
		Context: map[string]interface{}{"constraints": map[string]interface{}{"budget": 500.0}},
	})
	for i := 1; i <= 2; i++ {
		finding := entity.Finding{"summary": "stage finding", "gaps": []interface{}{"Need benchmark data"}}
		state.Stages = append(state.Stages, entity.StageResult{
			Stage: i, StageName: StageName(i), Finding: finding, Timestamp: time.Now(),
		})
		state.Knowledge.Absorb(finding)
	}

	prompt := BuildStagePrompt(3, state)

	assert.Contains(t, prompt, `"budget": 500`)
	assert.Contains(t, prompt, "--- Stage 1: Query Analysis ---")
	assert.Contains(t, prompt, "--- Stage 2: Information Gathering ---")
	assert.Equal(t, 1, strings.Count(prompt, "- Need benchmark data"))
	assert.Contains(t, prompt, `<task stage="3" name="Evidence Analysis">`)
}

func TestBuildStagePrompt_UnknownStage(t *testing.T) {
	state := NewResearchState(&entity.Session{Query: "q"})
	prompt := BuildStagePrompt(9, state)
	assert.Contains(t, prompt, `name="Stage 9"`)
	assert.Contains(t, prompt, "Continue the research.")
}
