package constant

const (
	StageQueryAnalysis        = "Query Analysis"
	StageInformationGathering = "Information Gathering"
	StageEvidenceAnalysis     = "Evidence Analysis"
	StageOptionsEvaluation    = "Options Evaluation"
	StageRiskAssessment       = "Risk Assessment"
	StageSynthesis            = "Synthesis & Recommendations"

	// Logger module names
	LogModuleSessionStore    = "SESSION_STORE"
	LogModulePipeline        = "PIPELINE"
	LogModuleGenClient       = "GEN_CLIENT"
	LogModuleResearchService = "RESEARCH_SERVICE"
	LogModuleProgress        = "PROGRESS"
	LogModuleHTTP            = "HTTP"
	LogModuleBoot            = "BOOT"

	// Session ids look like DRA_20240101_120000_123456
	SessionIDPrefix     = "DRA"
	SessionIDTimeLayout = "20060102_150405"

	StuckSessionThresholdHours = 24
	ListQueryPreviewLength     = 100
	FallbackSummaryLength      = 500

	ResearchSystemPromptV1 = `You are a meticulous research analyst working through a structured, multi-stage investigation.

RULES:
- Work only on the task of the current stage
- Build on the findings of earlier stages, do not repeat them
- Separate established facts from assumptions
- Rate every piece of evidence with reliability_score and relevance_score between 0 and 1
- Name what is still unknown under "gaps"

OUTPUT FORMAT:
Respond with ONE JSON object and nothing else. No markdown fences, no commentary.`
)

// StageTaskPromptsV1 holds the task instruction for each stage, indexed by stage number.
var StageTaskPromptsV1 = map[int]string{
	1: `Break the research question down. Identify the core question, its sub-questions, the key concepts involved and the criteria a good answer must satisfy.
Return: {"summary": "", "core_question": "", "sub_questions": [], "key_concepts": [], "success_criteria": [], "evidence": [], "facts": [], "gaps": []}`,

	2: `Gather the information needed to answer the sub-questions. Collect facts, data points and sources. Quote short extracts as evidence.
Return: {"summary": "", "sources": [], "evidence": [{"extract": "", "source": "", "reliability_score": 0.0, "relevance_score": 0.0}], "facts": [], "gaps": []}`,

	3: `Analyse the gathered evidence. Weigh its reliability, resolve contradictions and note patterns.
Return: {"summary": "", "patterns": [], "contradictions": [], "evidence": [], "facts": [], "gaps": []}`,

	4: `Identify the realistic options that answer the research question and evaluate each one against the success criteria.
Return: {"summary": "", "options": [{"name": "", "pros": [], "cons": [], "score": 0.0}], "evidence": [], "facts": [], "gaps": []}`,

	5: `Assess the risks of the leading options: likelihood, impact and mitigation.
Return: {"summary": "", "risks": [{"description": "", "likelihood": "", "impact": "", "mitigation": ""}], "evidence": [], "facts": [], "gaps": []}`,

	6: `Synthesize all earlier stages into a final answer with concrete, prioritised recommendations and next steps.
Return: {"summary": "", "recommendations": [], "next_steps": [], "evidence": [], "facts": [], "gaps": []}`,
}
