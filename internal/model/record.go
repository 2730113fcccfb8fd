package model

import "time"

// ProcessingMethod identifies which analysis strategy produced a record.
type ProcessingMethod string

const (
	MethodDirect       ProcessingMethod = "direct"
	MethodConversation ProcessingMethod = "conversation"
	MethodRetrieval    ProcessingMethod = "retrieval"
)

// DocumentType distinguishes the two source documents a jurisdiction may
// carry within a domain.
type DocumentType string

const (
	DocumentStatute  DocumentType = "statute"
	DocumentGuidance DocumentType = "guidance"
)

// AnswerRecord is one answered catalog question for a jurisdiction/domain
// pair. QuestionText is the catalog text at analysis time; the planner
// compares it against the current catalog to detect drift. Error is set when
// the underlying model call failed; the record still carries a sentinel
// answer and a zero score so downstream consumers never see a hole.
type AnswerRecord struct {
	QuestionID    string    `json:"question_id"`
	QuestionText  string    `json:"question_text"`
	AnswerText    string    `json:"answer_text"`
	Confidence    float64   `json:"confidence"`
	SourceRefs    []string  `json:"source_refs,omitempty"`
	Score         float64   `json:"score"`
	AnalyzedAt    time.Time `json:"analyzed_at"`
	Gap           string    `json:"gap,omitempty"`
	Error         string    `json:"error,omitempty"`
	DefersToState bool      `json:"defers_to_state,omitempty"`
}

// Grades holds letter grades derived from normalized scores.
type Grades struct {
	Overall    string            `json:"overall"`
	ByCategory map[string]string `json:"by_category,omitempty"`
}

// AnalysisRecord is the current analysis for one jurisdiction/domain pair.
// It is the sole contract consumed by the presentation layer. AggregateScore
// is always recomputed from the per-question scores and weights, never
// hand-set. Superseded records are archived by the version manager, not
// deleted.
type AnalysisRecord struct {
	JurisdictionID    string           `json:"jurisdiction_id"`
	DomainID          string           `json:"domain_id"`
	Questions         []AnswerRecord   `json:"questions"`
	AggregateScore    float64          `json:"aggregate_score"`
	AverageConfidence float64          `json:"average_confidence"`
	QuestionsAnswered int              `json:"questions_answered"`
	TotalQuestions    int              `json:"total_questions"`
	ProcessingMethod  ProcessingMethod `json:"processing_method"`
	LastUpdated       time.Time        `json:"last_updated"`
	Grades            *Grades          `json:"grades,omitempty"`
}

// AnswersByID builds a lookup map keyed by question ID.
func AnswersByID(answers []AnswerRecord) map[string]AnswerRecord {
	m := make(map[string]AnswerRecord, len(answers))
	for _, a := range answers {
		m[a.QuestionID] = a
	}
	return m
}

// DocumentChunk is a bounded-size slice of a source document prepared for
// embedding. Chunks are derived state: fully regenerable from the document
// and replaced wholesale on re-indexing.
type DocumentChunk struct {
	JurisdictionID string       `json:"jurisdiction_id"`
	DomainID       string       `json:"domain_id"`
	DocumentType   DocumentType `json:"document_type"`
	ChunkIndex     int          `json:"chunk_index"`
	Text           string       `json:"text"`
	Embedding      []float32    `json:"embedding,omitempty"`
}
