package orchestrator

import "strings"

// Classification says whether an utterance asks for information or provides
// it. Selection states use this to tell side questions from bad selections.
type Classification int

const (
	ClassProvide Classification = iota
	ClassQuery
)

// Classifier decides whether an utterance is a question. Pluggable so a
// model-based implementation can replace the rule-based one without touching
// the state machine.
type Classifier interface {
	Classify(text string) Classification
}

// KeywordClassifier is the rule-based default.
type KeywordClassifier struct{}

var questionStarters = []string{
	"what", "which", "when", "where", "who", "whose", "why", "how",
	"is", "are", "do", "does", "can", "could", "will", "would",
	"show", "list", "tell",
}

// Classify flags question marks and interrogative leads as queries.
func (KeywordClassifier) Classify(text string) Classification {
	trimmed := strings.TrimSpace(strings.ToLower(text))
	if trimmed == "" {
		return ClassProvide
	}
	if strings.Contains(trimmed, "?") {
		return ClassQuery
	}
	first := strings.Fields(trimmed)[0]
	for _, starter := range questionStarters {
		if first == starter {
			return ClassQuery
		}
	}
	return ClassProvide
}
