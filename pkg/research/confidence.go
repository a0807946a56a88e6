package research

import (
	"math"

	"deep-research-agent/internal/entity"

	"github.com/spf13/cast"
)

const (
	stageCompletionWeight = 0.6
	evidenceQualityWeight = 0.4
	// neutralEvidenceScore stands in when no stage produced scored evidence.
	neutralEvidenceScore = 0.5
	DefaultMinConfidence = 0.1
)

// ComputeConfidence scores a run:
//
//	clamp(0.6*successful/totalStages + 0.4*meanReliability, floor, 1)
//
// meanReliability pools reliability_score over every evidence item of every
// stage and is 0.5 when the pool is empty. No stages yields the floor.
func ComputeConfidence(stages []entity.StageResult, totalStages int, floor float64) float64 {
	floor = normalizeFloor(floor)
	if len(stages) == 0 {
		return floor
	}
	if totalStages <= 0 {
		totalStages = len(stages)
	}

	successful := 0
	var sum float64
	var count int
	for _, stage := range stages {
		if !stage.Degraded() {
			successful++
		}
		for _, score := range reliabilityScores(stage.Finding) {
			sum += score
			count++
		}
	}

	stageConfidence := float64(successful) / float64(totalStages)
	evidenceConfidence := neutralEvidenceScore
	if count > 0 {
		evidenceConfidence = sum / float64(count)
	}

	score := stageCompletionWeight*stageConfidence + evidenceQualityWeight*evidenceConfidence
	return math.Max(floor, math.Min(1.0, score))
}

func normalizeFloor(floor float64) float64 {
	switch {
	case math.IsNaN(floor) || floor < 0:
		return DefaultMinConfidence
	case floor > 1:
		return 1
	default:
		return floor
	}
}

func reliabilityScores(finding entity.Finding) []float64 {
	items, ok := finding["evidence"].([]interface{})
	if !ok {
		return nil
	}
	scores := make([]float64, 0, len(items))
	for _, item := range items {
		evidence, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		raw, present := evidence["reliability_score"]
		if !present || raw == nil {
			continue
		}
		score, err := cast.ToFloat64E(raw)
		if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}
		scores = append(scores, math.Max(0, math.Min(1, score)))
	}
	return scores
}

const maxConclusionItems = 10

// BuildConclusions folds the stage history and knowledge base into the final
// conclusions of a run.
func BuildConclusions(stages []entity.StageResult, knowledge *KnowledgeBase) *entity.FinalConclusions {
	conclusions := &entity.FinalConclusions{
		Summary:         "No conclusions could be drawn.",
		KeyFindings:     []string{},
		Recommendations: []string{},
		KnowledgeGaps:   []string{},
	}

	var synthesis entity.Finding
	for _, stage := range stages {
		if stage.Degraded() {
			conclusions.StagesDegraded++
			continue
		}
		conclusions.StagesCompleted++
		synthesis = stage.Finding
	}

	if synthesis != nil {
		if summary, ok := synthesis["summary"].(string); ok && summary != "" {
			conclusions.Summary = summary
		}
		conclusions.Recommendations = capItems(textItems(synthesis["recommendations"]))
	}
	if knowledge != nil {
		conclusions.KeyFindings = capItems(knowledge.Facts())
		conclusions.KnowledgeGaps = capItems(knowledge.Gaps())
	}
	return conclusions
}

func capItems(items []string) []string {
	if items == nil {
		return []string{}
	}
	if len(items) > maxConclusionItems {
		return items[:maxConclusionItems]
	}
	return items
}
