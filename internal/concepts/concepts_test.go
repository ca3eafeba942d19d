package concepts

import (
	"context"
	"strings"
	"testing"

	"github.com/yungbote/videograph/internal/domain"
	"github.com/yungbote/videograph/internal/platform/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

type fakeLLM struct {
	response string
	err      error
	lastUser string
	calls    int
}

func (f *fakeLLM) ChatJSON(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.lastUser = user
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeLLM) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (f *fakeLLM) Model() string { return "test-model" }

func testGroup() *domain.SegmentGroup {
	return &domain.SegmentGroup{
		GroupID: 2,
		VideoID: "vid1",
		Segments: []*domain.SegmentNode{
			{ID: "s0", VideoID: "vid1", Index: 0, Text: "gradient descent minimizes loss", StartTime: 10, EndTime: 20, WordCount: 4},
			{ID: "s1", VideoID: "vid1", Index: 1, Text: "the learning rate controls step size", StartTime: 20, EndTime: 30, WordCount: 6},
		},
	}
}

func TestExtractFromGroup(t *testing.T) {
	llm := &fakeLLM{response: `Here you go:
{
  "concepts": [
    {"name": "Gradient Descent", "definition": "An iterative optimization method that follows the negative gradient.", "type": "method", "importance": 0.9, "confidence": 0.85, "aliases": ["GD"]},
    {"name": "Learning Rate", "definition": "The step size used at each update of gradient descent."}
  ]
}`}
	x := NewExtractor(newTestLogger(t), llm)

	got, err := x.ExtractFromGroup(context.Background(), testGroup())
	if err != nil {
		t.Fatalf("ExtractFromGroup: %v", err)
	}
	if len(got.Concepts) != 2 {
		t.Fatalf("concepts: got %d", len(got.Concepts))
	}
	if got.VideoID != "vid1" || got.GroupID != 2 || got.ModelUsed != "test-model" {
		t.Fatalf("envelope: %+v", got)
	}

	gd := got.Concepts[0]
	if gd.Type != domain.ConceptTypeMethod || gd.Importance != 0.9 || gd.Confidence != 0.85 {
		t.Fatalf("explicit fields: %+v", gd)
	}
	if gd.ID != domain.CandidateConceptID("vid1", 2, "Gradient Descent") {
		t.Fatalf("candidate id not deterministic")
	}
	if gd.FirstMentionTime != 10 || gd.LastMentionTime != 30 || gd.MentionCount != 1 {
		t.Fatalf("mention bounds: %+v", gd)
	}

	lr := got.Concepts[1]
	if lr.Type != domain.ConceptTypeConcept {
		t.Fatalf("default type: %s", lr.Type)
	}
	if lr.Importance != 0.5 || lr.Confidence != 0.7 {
		t.Fatalf("defaults: %+v", lr)
	}
	if lr.Aliases == nil || len(lr.Aliases) != 0 {
		t.Fatalf("aliases should default empty: %v", lr.Aliases)
	}

	if !strings.Contains(llm.lastUser, "Group: 2") || !strings.Contains(llm.lastUser, "gradient descent minimizes loss") {
		t.Fatalf("user prompt missing context: %q", llm.lastUser)
	}
}

func TestExtractFromGroupDropsIncomplete(t *testing.T) {
	llm := &fakeLLM{response: `{
  "concepts": [
    {"name": "", "definition": "A definition without a name attached to it."},
    {"name": "Orphan", "definition": ""},
    {"name": "X", "definition": "Name is below the minimum length for a concept."},
    {"name": "Kept", "definition": "A concept with both fields present and long enough."}
  ]
}`}
	x := NewExtractor(newTestLogger(t), llm)

	got, err := x.ExtractFromGroup(context.Background(), testGroup())
	if err != nil {
		t.Fatalf("ExtractFromGroup: %v", err)
	}
	if len(got.Concepts) != 1 || got.Concepts[0].Name != "Kept" {
		t.Fatalf("expected only the complete concept: %+v", got.Concepts)
	}
}

func TestExtractFromGroupInvalidJSON(t *testing.T) {
	for _, response := range []string{"no json here", "{broken", `{"wrong": []}`} {
		llm := &fakeLLM{response: response}
		x := NewExtractor(newTestLogger(t), llm)
		if _, err := x.ExtractFromGroup(context.Background(), testGroup()); err == nil {
			t.Fatalf("expected parse error for %q", response)
		}
	}
}

func TestConsolidate(t *testing.T) {
	llm := &fakeLLM{response: `{
  "consolidatedConcepts": [
    {
      "name": "Gradient Descent",
      "definition": "An iterative optimization method following the negative gradient of the loss.",
      "type": "Method",
      "importance": 0.95,
      "confidence": 0.9,
      "aliases": ["GD", "steepest descent"],
      "groupIds": [1, 3],
      "sourceConceptIds": ["a", "b"],
      "firstMentionTime": 12.0,
      "lastMentionTime": 400.0,
      "mentionCount": 2
    }
  ]
}`}
	c := NewConsolidator(newTestLogger(t), llm)

	candidates := []domain.Concept{
		{
			ID:         domain.CandidateConceptID("vid1", 1, "gradient descent"),
			Name:       "gradient descent",
			Definition: "Optimization by following the negative gradient downhill.",
			Type:       domain.ConceptTypeMethod,
			Importance: 0.9, Confidence: 0.8,
			VideoID: "vid1", GroupID: 1, MentionCount: 1,
		},
		{
			ID:         domain.CandidateConceptID("vid1", 3, "steepest descent"),
			Name:       "steepest descent",
			Definition: "Another name for gradient descent in the excerpt.",
			Type:       domain.ConceptTypeMethod,
			Importance: 0.6, Confidence: 0.7,
			VideoID: "vid1", GroupID: 3, MentionCount: 1,
		},
	}

	got, err := c.Consolidate(context.Background(), "vid1", candidates)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("consolidated: got %d", len(got))
	}
	merged := got[0]
	if merged.GroupID != 1 {
		t.Fatalf("group id should come from first groupIds entry: %d", merged.GroupID)
	}
	if merged.MentionCount != 2 || merged.FirstMentionTime != 12.0 || merged.LastMentionTime != 400.0 {
		t.Fatalf("mention fields: %+v", merged)
	}
	if merged.VideoID != "vid1" || merged.ID == candidates[0].ID {
		t.Fatalf("consolidated id should be freshly minted: %+v", merged)
	}

	// Candidates travel to the model as a JSON array with their ids.
	if !strings.Contains(llm.lastUser, candidates[0].ID.String()) {
		t.Fatalf("candidate ids missing from prompt")
	}
}

func TestConsolidateEmptyInput(t *testing.T) {
	llm := &fakeLLM{}
	c := NewConsolidator(newTestLogger(t), llm)
	got, err := c.Consolidate(context.Background(), "vid1", nil)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if got != nil || llm.calls != 0 {
		t.Fatalf("empty input should short-circuit: %v calls=%d", got, llm.calls)
	}
}

func TestConsolidateParseFailure(t *testing.T) {
	llm := &fakeLLM{response: "not json"}
	c := NewConsolidator(newTestLogger(t), llm)
	candidates := []domain.Concept{{
		ID: domain.CandidateConceptID("vid1", 0, "thing"), Name: "Thing",
		Definition: "Some definition long enough to validate.",
		Type:       domain.ConceptTypeConcept, VideoID: "vid1", MentionCount: 1,
	}}
	if _, err := c.Consolidate(context.Background(), "vid1", candidates); err == nil {
		t.Fatalf("expected parse error")
	}
}
