package research

import (
	"encoding/json"
	"strings"

	"deep-research-agent/internal/entity"
)

// ResearchState is what a stage handler sees: the question, its context and
// everything earlier stages produced in this run.
type ResearchState struct {
	SessionID string
	Query     string
	Context   map[string]interface{}
	Stages    []entity.StageResult
	Knowledge *KnowledgeBase

	// OnFallback, when set, is told that a stage response had no usable JSON.
	OnFallback func(stage int, cause error)
}

func NewResearchState(session *entity.Session) *ResearchState {
	return &ResearchState{
		SessionID: session.SessionID,
		Query:     session.Query,
		Context:   session.Context,
		Stages:    make([]entity.StageResult, 0, 6),
		Knowledge: NewKnowledgeBase(),
	}
}

// KnowledgeBase accumulates facts and gaps across the stages of one run.
// It is never persisted on its own.
type KnowledgeBase struct {
	facts []string
	gaps  []string
	seen  map[string]struct{}
}

func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{seen: make(map[string]struct{})}
}

// Absorb records the facts and gaps of a finding, skipping duplicates.
func (k *KnowledgeBase) Absorb(finding entity.Finding) {
	for _, fact := range textItems(finding["facts"]) {
		k.add(&k.facts, "fact", fact)
	}
	for _, gap := range textItems(finding["gaps"]) {
		k.add(&k.gaps, "gap", gap)
	}
}

func (k *KnowledgeBase) add(list *[]string, kind, text string) {
	key := kind + ":" + strings.ToLower(text)
	if _, dup := k.seen[key]; dup {
		return
	}
	k.seen[key] = struct{}{}
	*list = append(*list, text)
}

func (k *KnowledgeBase) Facts() []string {
	return append([]string(nil), k.facts...)
}

func (k *KnowledgeBase) Gaps() []string {
	return append([]string(nil), k.gaps...)
}

var textKeys = []string{"text", "description", "recommendation", "name", "fact", "gap", "summary"}

// textItems flattens a loosely typed list into display strings. Objects
// contribute their first text-like field, or their JSON encoding.
func textItems(value interface{}) []string {
	var items []interface{}
	switch typed := value.(type) {
	case nil:
		return nil
	case string:
		items = []interface{}{typed}
	case []interface{}:
		items = typed
	case []string:
		for _, s := range typed {
			items = append(items, s)
		}
	default:
		items = []interface{}{typed}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		var text string
		switch typed := item.(type) {
		case string:
			text = typed
		case map[string]interface{}:
			for _, key := range textKeys {
				if s, ok := typed[key].(string); ok && strings.TrimSpace(s) != "" {
					text = s
					break
				}
			}
			if text == "" {
				if raw, err := json.Marshal(typed); err == nil {
					text = string(raw)
				}
			}
		case nil:
			continue
		default:
			if raw, err := json.Marshal(typed); err == nil {
				text = string(raw)
			}
		}
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, text)
		}
	}
	return out
}
