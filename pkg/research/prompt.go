package research

import (
	"encoding/json"
	"fmt"
	"strings"

	"deep-research-agent/internal/constant"
)

// BuildStagePrompt renders the request for stage n. It depends only on state:
// the question, the context, every earlier finding and the open gaps.
func BuildStagePrompt(n int, state *ResearchState) string {
	var prompt strings.Builder

	writeQuestion(&prompt, state)
	writeContext(&prompt, state)
	writePreviousFindings(&prompt, state)
	writeOpenGaps(&prompt, state)
	writeTask(&prompt, n)

	return prompt.String()
}

func writeQuestion(prompt *strings.Builder, state *ResearchState) {
	prompt.WriteString("<research_question>\n")
	prompt.WriteString(state.Query)
	prompt.WriteString("\n</research_question>\n\n")
}

func writeContext(prompt *strings.Builder, state *ResearchState) {
	if len(state.Context) == 0 {
		return
	}
	raw, err := json.MarshalIndent(state.Context, "", "  ")
	if err != nil {
		return
	}
	prompt.WriteString("<user_context>\n")
	prompt.Write(raw)
	prompt.WriteString("\n</user_context>\n\n")
}

func writePreviousFindings(prompt *strings.Builder, state *ResearchState) {
	if len(state.Stages) == 0 {
		return
	}
	prompt.WriteString("<previous_findings>\n")
	for _, stage := range state.Stages {
		raw, err := json.Marshal(stage.Finding)
		if err != nil {
			continue
		}
		fmt.Fprintf(prompt, "--- Stage %d: %s ---\n", stage.Stage, stage.StageName)
		prompt.Write(raw)
		prompt.WriteString("\n")
	}
	prompt.WriteString("</previous_findings>\n\n")
}

func writeOpenGaps(prompt *strings.Builder, state *ResearchState) {
	if state.Knowledge == nil {
		return
	}
	gaps := state.Knowledge.Gaps()
	if len(gaps) == 0 {
		return
	}
	prompt.WriteString("<open_gaps>\n")
	for _, gap := range gaps {
		prompt.WriteString("- ")
		prompt.WriteString(gap)
		prompt.WriteString("\n")
	}
	prompt.WriteString("</open_gaps>\n\n")
}

func writeTask(prompt *strings.Builder, n int) {
	fmt.Fprintf(prompt, "<task stage=\"%d\" name=\"%s\">\n", n, StageName(n))
	if task, ok := constant.StageTaskPromptsV1[n]; ok {
		prompt.WriteString(task)
	} else {
		prompt.WriteString(`Continue the research. Return: {"summary": "", "evidence": [], "facts": [], "gaps": []}`)
	}
	prompt.WriteString("\n</task>\n")
}
