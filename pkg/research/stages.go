package research

import (
	"context"
	"fmt"

	"deep-research-agent/internal/constant"
	"deep-research-agent/internal/entity"
)

// StageHandler produces the finding for one stage from the accumulated state.
type StageHandler func(ctx context.Context, state *ResearchState) (entity.Finding, error)

type Stage struct {
	Number  int
	Name    string
	Handler StageHandler
	// Defaults is the shape every finding of this stage is merged over.
	Defaults entity.Finding
}

var stageNames = []string{
	constant.StageQueryAnalysis,
	constant.StageInformationGathering,
	constant.StageEvidenceAnalysis,
	constant.StageOptionsEvaluation,
	constant.StageRiskAssessment,
	constant.StageSynthesis,
}

// StageName returns the display name of stage n, or "Stage n" when unknown.
func StageName(n int) string {
	if n >= 1 && n <= len(stageNames) {
		return stageNames[n-1]
	}
	return fmt.Sprintf("Stage %d", n)
}

func baseDefaults() entity.Finding {
	return entity.Finding{
		"summary":  "No summary provided.",
		"evidence": []interface{}{},
		"facts":    []interface{}{},
		"gaps":     []interface{}{},
	}
}

// StageDefaults returns a fresh default finding for stage n.
func StageDefaults(n int) entity.Finding {
	d := baseDefaults()
	switch n {
	case 1:
		d["core_question"] = ""
		d["sub_questions"] = []interface{}{}
		d["key_concepts"] = []interface{}{}
		d["success_criteria"] = []interface{}{}
	case 2:
		d["sources"] = []interface{}{}
	case 3:
		d["patterns"] = []interface{}{}
		d["contradictions"] = []interface{}{}
	case 4:
		d["options"] = []interface{}{}
	case 5:
		d["risks"] = []interface{}{}
	case 6:
		d["recommendations"] = []interface{}{}
		d["next_steps"] = []interface{}{}
	}
	return d
}

// DefaultStages builds the six research stages on top of gen.
func DefaultStages(gen Generator) []Stage {
	stages := make([]Stage, len(stageNames))
	for i := range stageNames {
		number := i + 1
		stages[i] = Stage{
			Number:   number,
			Name:     StageName(number),
			Handler:  generativeHandler(gen, number),
			Defaults: StageDefaults(number),
		}
	}
	return stages
}

func generativeHandler(gen Generator, number int) StageHandler {
	return func(ctx context.Context, state *ResearchState) (entity.Finding, error) {
		prompt := BuildStagePrompt(number, state)

		text, err := gen.Generate(ctx, prompt)
		if err != nil {
			return nil, err
		}

		result := ParseFinding(text, StageDefaults(number))
		if result.Outcome == Fallback && state.OnFallback != nil {
			state.OnFallback(number, result.Cause)
		}
		return result.Finding, nil
	}
}

// WithHandler returns a copy of stages with the handler of stage n replaced.
func WithHandler(stages []Stage, n int, handler StageHandler) []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	for i := range out {
		if out[i].Number == n {
			out[i].Handler = handler
		}
	}
	return out
}
