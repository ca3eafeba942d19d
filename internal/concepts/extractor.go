package concepts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/videograph/internal/domain"
	"github.com/yungbote/videograph/internal/pkg/ctxutil"
	"github.com/yungbote/videograph/internal/platform/logger"
	"github.com/yungbote/videograph/internal/platform/openai"
)

const extractionSystemPrompt = `You extract the key concepts from a transcript excerpt of an educational video.

Return ONLY a JSON object, no prose, with this shape:
{
  "concepts": [
    {
      "name": "short concept name",
      "definition": "one or two sentence definition grounded in the excerpt",
      "type": "Person|Organization|Technology|Method|Problem|Solution|Concept|Metric|Dataset|Event|Place",
      "importance": 0.0,
      "confidence": 0.0,
      "aliases": ["alternate surface forms"]
    }
  ]
}

Rules:
- Name every distinct concept the speaker actually discusses, not passing mentions.
- importance reflects how central the concept is to this excerpt, in [0,1].
- confidence reflects how certain you are the concept is real, in [0,1].
- Use the excerpt's own wording for definitions where possible.`

// Extractor runs Pass-1 concept extraction: one chat call per segment group.
type Extractor struct {
	llm openai.Client
	log *logger.Logger
}

func NewExtractor(log *logger.Logger, llm openai.Client) *Extractor {
	return &Extractor{
		llm: llm,
		log: log.With("service", "ConceptExtractor"),
	}
}

type extractionPayload struct {
	Concepts []extractedItem `json:"concepts"`
}

type extractedItem struct {
	Name       string   `json:"name"`
	Definition string   `json:"definition"`
	Type       string   `json:"type"`
	Importance *float64 `json:"importance"`
	Confidence *float64 `json:"confidence"`
	Aliases    []string `json:"aliases"`
}

// ExtractFromGroup extracts candidate concepts from one group's text.
func (x *Extractor) ExtractFromGroup(ctx context.Context, group *domain.SegmentGroup) (*domain.ExtractedConcepts, error) {
	ctx = ctxutil.Default(ctx)
	start := time.Now()

	user := fmt.Sprintf(
		"Video: %s\nGroup: %d\nTime range: %.1fs to %.1fs\n\nTranscript excerpt:\n%s",
		group.VideoID, group.GroupID, group.StartTime(), group.EndTime(), group.Text(),
	)
	content, err := x.llm.ChatJSON(ctx, extractionSystemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("concept extraction call for group %d: %w", group.GroupID, err)
	}

	payload, err := parseExtractionPayload(content)
	if err != nil {
		return nil, fmt.Errorf("concept extraction parse for group %d: %w", group.GroupID, err)
	}

	out := &domain.ExtractedConcepts{
		VideoID:        group.VideoID,
		GroupID:        group.GroupID,
		GroupText:      group.Text(),
		StartTime:      group.StartTime(),
		EndTime:        group.EndTime(),
		ModelUsed:      x.llm.Model(),
		ExtractionTime: start,
	}
	for _, item := range payload.Concepts {
		c, ok := x.buildCandidate(group, item)
		if !ok {
			continue
		}
		out.Concepts = append(out.Concepts, c)
	}

	x.log.Info("Extracted concepts",
		"video_id", group.VideoID,
		"group_id", group.GroupID,
		"concepts", len(out.Concepts),
		"elapsed", time.Since(start).String(),
	)
	return out, nil
}

func (x *Extractor) buildCandidate(group *domain.SegmentGroup, item extractedItem) (domain.Concept, bool) {
	name := strings.TrimSpace(item.Name)
	definition := strings.TrimSpace(item.Definition)
	if name == "" || definition == "" {
		x.log.Warn("Dropping concept with missing name or definition",
			"video_id", group.VideoID,
			"group_id", group.GroupID,
			"name", item.Name,
		)
		return domain.Concept{}, false
	}

	importance := 0.5
	if item.Importance != nil {
		importance = *item.Importance
	}
	confidence := 0.7
	if item.Confidence != nil {
		confidence = *item.Confidence
	}
	aliases := item.Aliases
	if aliases == nil {
		aliases = []string{}
	}

	c := domain.Concept{
		ID:               domain.CandidateConceptID(group.VideoID, group.GroupID, name),
		Name:             name,
		Definition:       definition,
		Type:             domain.ConceptTypeFromString(item.Type),
		Importance:       importance,
		Confidence:       confidence,
		VideoID:          group.VideoID,
		GroupID:          group.GroupID,
		FirstMentionTime: group.StartTime(),
		LastMentionTime:  group.EndTime(),
		MentionCount:     1,
		Aliases:          aliases,
		ExtractedAt:      time.Now().UTC(),
	}
	if err := c.Validate(); err != nil {
		x.log.Warn("Dropping invalid concept",
			"video_id", group.VideoID,
			"group_id", group.GroupID,
			"name", name,
			"error", err,
		)
		return domain.Concept{}, false
	}
	return c, true
}

func parseExtractionPayload(content string) (extractionPayload, error) {
	var payload extractionPayload
	raw, err := extractJSONObject(content)
	if err != nil {
		return payload, err
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, fmt.Errorf("invalid JSON: %w", err)
	}
	if payload.Concepts == nil {
		return payload, fmt.Errorf("response has no concepts list")
	}
	return payload, nil
}

// extractJSONObject slices the outermost JSON object out of model output that
// may be wrapped in prose or code fences.
func extractJSONObject(content string) (string, error) {
	first := strings.Index(content, "{")
	last := strings.LastIndex(content, "}")
	if first < 0 || last <= first {
		return "", fmt.Errorf("no JSON object in model output")
	}
	return content[first : last+1], nil
}
