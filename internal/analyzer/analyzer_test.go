package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JGarfunkel/ordinizer-sub000/internal/budget"
	"github.com/JGarfunkel/ordinizer-sub000/internal/indexer"
	"github.com/JGarfunkel/ordinizer-sub000/internal/model"
	"github.com/JGarfunkel/ordinizer-sub000/internal/resilience"
	"github.com/JGarfunkel/ordinizer-sub000/internal/vecstore"
	"github.com/JGarfunkel/ordinizer-sub000/pkg/anthropic"
	"github.com/JGarfunkel/ordinizer-sub000/pkg/jina"
)

// fakeLLM replays canned responses in call order and captures every request.
type fakeLLM struct {
	requests []anthropic.MessageRequest
	replies  []string
	errs     []error
}

func (f *fakeLLM) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := `{"answer": "not specified", "sources": []}`
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: reply}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) (*jina.EmbedResponse, error) {
	f.calls++
	resp := &jina.EmbedResponse{Usage: jina.EmbedUsage{TotalTokens: 5 * len(texts)}}
	for i := range texts {
		resp.Data = append(resp.Data, jina.Embedding{Index: i, Embedding: []float32{1, 0, 0}})
	}
	return resp, nil
}

func newTestAnalyzer(t *testing.T, llm anthropic.Client, cfg Config) (*Analyzer, vecstore.Store) {
	t.Helper()
	store, err := vecstore.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { store.Close() })

	emb := &fakeEmbedder{}
	bm := budget.NewManager(budget.Config{})
	ix := indexer.New(emb, store, bm, indexer.Config{MaxChunkChars: 200})
	return New(llm, emb, store, ix, bm, nil, cfg), store
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("permit ", n))
}

func question(id, text string) model.Question {
	return model.Question{ID: id, Text: text, Weight: 1}
}

func TestSelectMethod(t *testing.T) {
	a, _ := newTestAnalyzer(t, &fakeLLM{}, Config{})

	tests := []struct {
		name    string
		doc     string
		pending int
		want    model.ProcessingMethod
	}{
		{"short doc", words(999), 5, model.MethodDirect},
		{"mid doc many questions", words(1001), 2, model.MethodConversation},
		{"mid doc single question", words(1001), 1, model.MethodRetrieval},
		{"large doc", strings.Repeat(words(100)+"\n", 80), 5, model.MethodRetrieval},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := a.SelectMethod(Document{Text: tc.doc}, tc.pending)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSelectMethod_LargeDocExceedsConversationCeiling(t *testing.T) {
	a, _ := newTestAnalyzer(t, &fakeLLM{}, Config{})

	// Over 1000 words and over 50k chars: retrieval even with pending > 1.
	doc := strings.Repeat("stormwater ", 6000)
	require.Greater(t, len(doc), 50_000)
	assert.Equal(t, model.MethodRetrieval, a.SelectMethod(Document{Text: doc}, 3))
}

func TestAnalyze_Direct(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		`{"answer": "Permits are required per § 240-5.1(B).", "sources": ["§ 240-5.1(B)"]}`,
	}}
	a, _ := newTestAnalyzer(t, llm, Config{Model: "claude-test"})

	doc := Document{JurisdictionID: "rye", DomainID: "trees", Type: model.DocumentStatute, Text: words(50)}
	answers, method, err := a.Analyze(context.Background(), doc, []model.Question{question("q1", "Is a permit required?")}, nil)
	require.NoError(t, err)

	assert.Equal(t, model.MethodDirect, method)
	require.Len(t, answers, 1)
	assert.Equal(t, "q1", answers[0].QuestionID)
	assert.Equal(t, "Is a permit required?", answers[0].QuestionText)
	assert.Equal(t, 90.0, answers[0].Confidence, "cited answer gets the higher confidence")
	assert.Equal(t, []string{"§ 240-5.1(B)"}, answers[0].SourceRefs)
	assert.Greater(t, answers[0].Score, 0.9)
	assert.False(t, answers[0].AnalyzedAt.IsZero())

	require.Len(t, llm.requests, 1)
	assert.Contains(t, llm.requests[0].Messages[0].Content, "Is a permit required?")
	assert.Contains(t, llm.requests[0].Messages[0].Content, doc.Text)
}

func TestAnalyze_DirectSentinel(t *testing.T) {
	llm := &fakeLLM{replies: []string{`{"answer": "Not specified", "sources": []}`}}
	a, _ := newTestAnalyzer(t, llm, Config{Model: "claude-test"})

	doc := Document{JurisdictionID: "rye", DomainID: "trees", Type: model.DocumentStatute, Text: words(50)}
	answers, _, err := a.Analyze(context.Background(), doc, []model.Question{question("q1", "Any bond requirement?")}, nil)
	require.NoError(t, err)

	require.Len(t, answers, 1)
	assert.Equal(t, model.SentinelAnswer, answers[0].AnswerText)
	assert.Zero(t, answers[0].Confidence)
	assert.Zero(t, answers[0].Score)
	assert.Empty(t, answers[0].Error)
}

func TestAnalyze_DirectUncitedConfidence(t *testing.T) {
	llm := &fakeLLM{replies: []string{`{"answer": "Yes, removal requires prior approval.", "sources": []}`}}
	a, _ := newTestAnalyzer(t, llm, Config{Model: "claude-test"})

	doc := Document{JurisdictionID: "rye", DomainID: "trees", Type: model.DocumentStatute, Text: words(50)}
	answers, _, err := a.Analyze(context.Background(), doc, []model.Question{question("q1", "Is approval required?")}, nil)
	require.NoError(t, err)

	require.Len(t, answers, 1)
	assert.Equal(t, 80.0, answers[0].Confidence)
	assert.Empty(t, answers[0].SourceRefs)
}

func TestAnalyze_FailureDoesNotAbortBatch(t *testing.T) {
	llm := &fakeLLM{
		errs: []error{errors.New("overloaded"), nil},
		replies: []string{
			"",
			`{"answer": "Fines up to $250 per tree.", "sources": ["§ 12-3"]}`,
		},
	}
	a, _ := newTestAnalyzer(t, llm, Config{Model: "claude-test"})

	doc := Document{JurisdictionID: "rye", DomainID: "trees", Type: model.DocumentStatute, Text: words(50)}
	qs := []model.Question{question("q1", "Is a permit required?"), question("q2", "What are the penalties?")}
	answers, _, err := a.Analyze(context.Background(), doc, qs, nil)
	require.NoError(t, err)
	require.Len(t, answers, 2)

	assert.Equal(t, model.SentinelAnswer, answers[0].AnswerText)
	assert.Contains(t, answers[0].Error, "overloaded")
	assert.Zero(t, answers[0].Score)

	assert.Empty(t, answers[1].Error)
	assert.Contains(t, answers[1].AnswerText, "$250")
}

func TestAnalyze_ConversationTranscript(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		`{"answer": "Permits issued by the tree warden, § 5.", "sources": ["§ 5"]}`,
		`{"answer": "Appeals go to the council, § 9.", "sources": ["§ 9"]}`,
	}}
	a, _ := newTestAnalyzer(t, llm, Config{Model: "claude-test"})

	doc := Document{JurisdictionID: "rye", DomainID: "trees", Type: model.DocumentStatute, Text: words(1500)}
	qs := []model.Question{question("q1", "Who issues permits?"), question("q2", "Is there an appeal process?")}
	answers, method, err := a.Analyze(context.Background(), doc, qs, nil)
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, model.MethodConversation, method)

	require.Len(t, llm.requests, 2)

	// Document rides in the cached system block, not the messages.
	require.Len(t, llm.requests[0].System, 1)
	assert.Contains(t, llm.requests[0].System[0].Text, doc.Text)
	require.NotNil(t, llm.requests[0].System[0].CacheControl)
	require.Len(t, llm.requests[0].Messages, 1)

	// Second turn carries the full prior exchange.
	require.Len(t, llm.requests[1].Messages, 3)
	assert.Equal(t, "user", llm.requests[1].Messages[0].Role)
	assert.Contains(t, llm.requests[1].Messages[0].Content, "Who issues permits?")
	assert.Equal(t, "assistant", llm.requests[1].Messages[1].Role)
	assert.Contains(t, llm.requests[1].Messages[1].Content, "tree warden")
	assert.Contains(t, llm.requests[1].Messages[2].Content, "Is there an appeal process?")
}

func TestAnalyze_ConversationFailedTurnOmittedFromTranscript(t *testing.T) {
	llm := &fakeLLM{
		errs: []error{errors.New("timeout"), nil},
		replies: []string{
			"",
			`{"answer": "Replanting is required, § 7.", "sources": ["§ 7"]}`,
		},
	}
	a, _ := newTestAnalyzer(t, llm, Config{Model: "claude-test"})

	doc := Document{JurisdictionID: "rye", DomainID: "trees", Type: model.DocumentStatute, Text: words(1500)}
	qs := []model.Question{question("q1", "Is a permit required?"), question("q2", "Is replanting required?")}
	answers, _, err := a.Analyze(context.Background(), doc, qs, nil)
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Contains(t, answers[0].Error, "timeout")

	// The failed exchange must not appear in the next turn's transcript.
	require.Len(t, llm.requests, 2)
	require.Len(t, llm.requests[1].Messages, 1)
	assert.Contains(t, llm.requests[1].Messages[0].Content, "Is replanting required?")
}

func TestAnalyze_RetrievalIndexesAndAnswers(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		`{"answer": "Heritage trees over 30 inches DBH are protected, § 4-2.", "sources": ["§ 4-2"]}`,
	}}
	a, store := newTestAnalyzer(t, llm, Config{Model: "claude-test", ShortDocWords: 5})

	text := strings.Repeat("Heritage trees over thirty inches DBH are protected from removal. ", 20)
	doc := Document{JurisdictionID: "rye", DomainID: "trees", Type: model.DocumentStatute, Text: text}
	answers, method, err := a.Analyze(context.Background(), doc, []model.Question{question("q1", "Which trees are protected?")}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.MethodRetrieval, method)
	require.Len(t, answers, 1)
	assert.Contains(t, answers[0].AnswerText, "Heritage")

	// The document was indexed on demand.
	count, err := store.CountDocument(context.Background(), "rye", "trees", model.DocumentStatute)
	require.NoError(t, err)
	assert.Greater(t, count, 0)

	// The prompt carried retrieved excerpts rather than the full document.
	require.Len(t, llm.requests, 1)
	assert.Contains(t, llm.requests[0].Messages[0].Content, "excerpt")
	assert.Contains(t, llm.requests[0].Messages[0].Content, "Heritage trees")
}

func TestAnalyze_RetrievalReusesIndexOfUnchangedDocument(t *testing.T) {
	llm := &fakeLLM{replies: []string{`{"answer": "Yes.", "sources": []}`}}
	a, store := newTestAnalyzer(t, llm, Config{Model: "claude-test", ShortDocWords: 5})

	chunk := model.DocumentChunk{
		JurisdictionID: "rye", DomainID: "trees", DocumentType: model.DocumentStatute,
		ChunkIndex: 0, Text: "Existing chunk.", Embedding: []float32{1, 0, 0},
	}
	require.NoError(t, store.Upsert(context.Background(), []model.DocumentChunk{chunk}))

	doc := Document{JurisdictionID: "rye", DomainID: "trees", Type: model.DocumentStatute, Text: words(100)}
	_, _, err := a.Analyze(context.Background(), doc, []model.Question{question("q1", "Is a permit required?")}, nil)
	require.NoError(t, err)

	count, err := store.CountDocument(context.Background(), "rye", "trees", model.DocumentStatute)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "unchanged document keeps its stored chunks")
}

func TestAnalyze_RetrievalReindexesChangedDocument(t *testing.T) {
	llm := &fakeLLM{replies: []string{`{"answer": "Yes.", "sources": []}`}}
	a, store := newTestAnalyzer(t, llm, Config{Model: "claude-test", ShortDocWords: 5})

	// Chunks left over from a superseded revision of the statute.
	stale := model.DocumentChunk{
		JurisdictionID: "rye", DomainID: "trees", DocumentType: model.DocumentStatute,
		ChunkIndex: 0, Text: "No permit is ever required for tree removal.", Embedding: []float32{1, 0, 0},
	}
	require.NoError(t, store.Upsert(context.Background(), []model.DocumentChunk{stale}))

	doc := Document{
		JurisdictionID: "rye", DomainID: "trees", Type: model.DocumentStatute,
		Text:    strings.Repeat("A removal permit is required for every protected tree. ", 12),
		Changed: true,
	}
	_, _, err := a.Analyze(context.Background(), doc, []model.Question{question("q1", "Is a permit required?")}, nil)
	require.NoError(t, err)

	// The prompt quotes the current text, never the superseded chunk.
	require.Len(t, llm.requests, 1)
	prompt := llm.requests[0].Messages[0].Content
	assert.Contains(t, prompt, "A removal permit is required")
	assert.NotContains(t, prompt, "No permit is ever required")

	results, err := store.Search(context.Background(), []float32{1, 0, 0}, vecstore.Filter{
		JurisdictionID: "rye", DomainID: "trees", DocumentType: model.DocumentStatute,
	}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, c := range results {
		assert.NotContains(t, c.Text, "No permit is ever required")
	}
}

func TestAnalyze_RetrievalInjectsKeptHints(t *testing.T) {
	llm := &fakeLLM{replies: []string{`{"answer": "Yes.", "sources": []}`}}
	a, _ := newTestAnalyzer(t, llm, Config{Model: "claude-test", ShortDocWords: 5})

	kept := []model.AnswerRecord{
		{QuestionID: "q1", AnswerText: "Permits are issued by the tree warden."},
		{QuestionID: "q2", AnswerText: model.SentinelAnswer},
		{QuestionID: "q3", AnswerText: "irrelevant", Error: "failed"},
	}
	doc := Document{JurisdictionID: "rye", DomainID: "trees", Type: model.DocumentStatute, Text: words(100)}
	_, _, err := a.Analyze(context.Background(), doc, []model.Question{question("q4", "What about penalties?")}, kept)
	require.NoError(t, err)

	require.Len(t, llm.requests, 1)
	prompt := llm.requests[0].Messages[0].Content
	assert.Contains(t, prompt, "tree warden")
	assert.NotContains(t, prompt, model.SentinelAnswer)
	assert.NotContains(t, prompt, "irrelevant")
}

func TestAnalyze_EmptyPending(t *testing.T) {
	a, _ := newTestAnalyzer(t, &fakeLLM{}, Config{})
	_, _, err := a.Analyze(context.Background(), Document{Text: "x"}, nil, nil)
	assert.Error(t, err)
}

func TestKeptHints_TruncatesLongAnswers(t *testing.T) {
	long := strings.Repeat("a", keptSummaryChars+40)
	hints := keptHints([]model.AnswerRecord{{QuestionID: "q1", AnswerText: long}})
	assert.Contains(t, hints, "…")
	assert.NotContains(t, hints, long)
}

func TestKeptHints_TruncationKeepsRunesWhole(t *testing.T) {
	// The odd leading byte puts a two-byte rune astride the cut point.
	long := "a" + strings.Repeat("§", keptSummaryChars)
	hints := keptHints([]model.AnswerRecord{{QuestionID: "q1", AnswerText: long}})
	assert.True(t, utf8.ValidString(hints))
	assert.Contains(t, hints, "…")
}

func TestCall_OpenCircuitLeavesBudgetUntouched(t *testing.T) {
	llm := &fakeLLM{errs: []error{errors.New("provider down")}}
	a, _ := newTestAnalyzer(t, llm, Config{Model: "claude-test"})
	a.breakers = resilience.NewServiceBreakers(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		ShouldTrip:       func(error) bool { return true },
	})

	req := anthropic.MessageRequest{
		Model:     "claude-test",
		MaxTokens: 100,
		Messages:  []anthropic.Message{{Role: "user", Content: "Is a permit required?"}},
	}

	_, err := a.call(context.Background(), req, "direct")
	require.Error(t, err)
	assert.Equal(t, 1, a.budget.Calls(), "a failed wire attempt counts")

	_, err = a.call(context.Background(), req, "direct")
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Len(t, llm.requests, 1, "open circuit must not reach the provider")
	assert.Equal(t, 1, a.budget.Calls(), "a rejected call must not count toward pacing")
}

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantAnswer  string
		wantSources []string
	}{
		{
			"plain json",
			`{"answer": "Yes, § 5 requires a permit.", "sources": ["§ 5"]}`,
			"Yes, § 5 requires a permit.",
			[]string{"§ 5"},
		},
		{
			"fenced json",
			"```json\n{\"answer\": \"Yes.\", \"sources\": []}\n```",
			"Yes.",
			nil,
		},
		{
			"embedded in prose",
			`Here is the result: {"answer": "No bond is required.", "sources": []} Hope that helps.`,
			"No bond is required.",
			nil,
		},
		{
			"bare text fallback",
			"The ordinance requires a permit for removal.",
			"The ordinance requires a permit for removal.",
			nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := parseAnswer(tc.in)
			assert.Equal(t, tc.wantAnswer, got.Answer)
			if tc.wantSources == nil {
				assert.Empty(t, got.Sources)
			} else {
				assert.Equal(t, tc.wantSources, got.Sources)
			}
		})
	}
}

func TestEstimateRequest_CoversAllBlocks(t *testing.T) {
	a, _ := newTestAnalyzer(t, &fakeLLM{}, Config{MaxTokens: 100})
	req := anthropic.MessageRequest{
		MaxTokens: 100,
		System:    []anthropic.SystemBlock{{Text: strings.Repeat("s", 400)}},
		Messages:  []anthropic.Message{{Role: "user", Content: strings.Repeat("m", 400)}},
	}
	est := a.estimateRequest(req)
	assert.Equal(t, 100+100+100, est, fmt.Sprintf("got %d", est))
}
