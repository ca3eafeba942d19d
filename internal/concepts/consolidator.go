package concepts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/videograph/internal/domain"
	"github.com/yungbote/videograph/internal/pkg/ctxutil"
	"github.com/yungbote/videograph/internal/platform/logger"
	"github.com/yungbote/videograph/internal/platform/openai"
)

const consolidationSystemPrompt = `You consolidate candidate concepts extracted independently from groups of one video's transcript.

Merge candidates that describe the same underlying concept (same idea under different names or granularity). Keep distinct concepts separate. For each consolidated concept pick the clearest name, write a merged definition, and carry over the source candidates.

Return ONLY a JSON object, no prose, with this shape:
{
  "consolidatedConcepts": [
    {
      "name": "canonical name",
      "definition": "merged definition",
      "type": "Person|Organization|Technology|Method|Problem|Solution|Concept|Metric|Dataset|Event|Place",
      "importance": 0.0,
      "confidence": 0.0,
      "aliases": ["other names"],
      "groupIds": [0],
      "sourceConceptIds": ["uuid"],
      "firstMentionTime": 0.0,
      "lastMentionTime": 0.0,
      "mentionCount": 1
    }
  ]
}`

// Consolidator runs Pass-2: one chat call over all of a video's candidate
// concepts, merging duplicates across groups.
type Consolidator struct {
	llm openai.Client
	log *logger.Logger
}

func NewConsolidator(log *logger.Logger, llm openai.Client) *Consolidator {
	return &Consolidator{
		llm: llm,
		log: log.With("service", "ConceptConsolidator"),
	}
}

type candidateJSON struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Definition       string   `json:"definition"`
	Type             string   `json:"type"`
	Importance       float64  `json:"importance"`
	Confidence       float64  `json:"confidence"`
	GroupID          int      `json:"groupId"`
	FirstMentionTime float64  `json:"firstMentionTime"`
	LastMentionTime  float64  `json:"lastMentionTime"`
	MentionCount     int      `json:"mentionCount"`
	Aliases          []string `json:"aliases"`
}

type consolidationPayload struct {
	ConsolidatedConcepts []consolidatedItem `json:"consolidatedConcepts"`
}

type consolidatedItem struct {
	Name             string   `json:"name"`
	Definition       string   `json:"definition"`
	Type             string   `json:"type"`
	Importance       *float64 `json:"importance"`
	Confidence       *float64 `json:"confidence"`
	Aliases          []string `json:"aliases"`
	GroupIDs         []int    `json:"groupIds"`
	SourceConceptIDs []string `json:"sourceConceptIds"`
	FirstMentionTime *float64 `json:"firstMentionTime"`
	LastMentionTime  *float64 `json:"lastMentionTime"`
	MentionCount     *int     `json:"mentionCount"`
}

// Consolidate merges candidate concepts for one video. Callers fall back to
// the un-merged candidates when it errors.
func (c *Consolidator) Consolidate(ctx context.Context, videoID string, candidates []domain.Concept) ([]domain.Concept, error) {
	ctx = ctxutil.Default(ctx)
	if len(candidates) == 0 {
		return nil, nil
	}
	start := time.Now()

	rows := make([]candidateJSON, 0, len(candidates))
	for i := range candidates {
		cd := &candidates[i]
		rows = append(rows, candidateJSON{
			ID:               cd.ID.String(),
			Name:             cd.Name,
			Definition:       cd.Definition,
			Type:             string(cd.Type),
			Importance:       cd.Importance,
			Confidence:       cd.Confidence,
			GroupID:          cd.GroupID,
			FirstMentionTime: cd.FirstMentionTime,
			LastMentionTime:  cd.LastMentionTime,
			MentionCount:     cd.MentionCount,
			Aliases:          cd.Aliases,
		})
	}
	encoded, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode candidates: %w", err)
	}

	user := fmt.Sprintf("Video: %s\n\nCandidate concepts:\n%s", videoID, string(encoded))
	content, err := c.llm.ChatJSON(ctx, consolidationSystemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("consolidation call: %w", err)
	}

	raw, err := extractJSONObject(content)
	if err != nil {
		return nil, fmt.Errorf("consolidation parse: %w", err)
	}
	var payload consolidationPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("consolidation parse: %w", err)
	}
	if payload.ConsolidatedConcepts == nil {
		return nil, fmt.Errorf("response has no consolidatedConcepts list")
	}

	var out []domain.Concept
	for _, item := range payload.ConsolidatedConcepts {
		merged, ok := c.buildConsolidated(videoID, item)
		if !ok {
			continue
		}
		out = append(out, merged)
	}

	c.log.Info("Consolidated concepts",
		"video_id", videoID,
		"candidates", len(candidates),
		"consolidated", len(out),
		"elapsed", time.Since(start).String(),
	)
	return out, nil
}

func (c *Consolidator) buildConsolidated(videoID string, item consolidatedItem) (domain.Concept, bool) {
	name := strings.TrimSpace(item.Name)
	definition := strings.TrimSpace(item.Definition)
	if name == "" || definition == "" {
		c.log.Warn("Dropping consolidated concept with missing name or definition",
			"video_id", videoID,
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
	groupID := 0
	if len(item.GroupIDs) > 0 {
		groupID = item.GroupIDs[0]
	}
	mentions := len(item.SourceConceptIDs)
	if item.MentionCount != nil {
		mentions = *item.MentionCount
	}
	var first, last float64
	if item.FirstMentionTime != nil {
		first = *item.FirstMentionTime
	}
	if item.LastMentionTime != nil {
		last = *item.LastMentionTime
	}
	aliases := item.Aliases
	if aliases == nil {
		aliases = []string{}
	}

	merged := domain.Concept{
		ID:               uuid.New(),
		Name:             name,
		Definition:       definition,
		Type:             domain.ConceptTypeFromString(item.Type),
		Importance:       importance,
		Confidence:       confidence,
		VideoID:          videoID,
		GroupID:          groupID,
		FirstMentionTime: first,
		LastMentionTime:  last,
		MentionCount:     mentions,
		Aliases:          aliases,
		ExtractedAt:      time.Now().UTC(),
	}
	if err := merged.Validate(); err != nil {
		c.log.Warn("Dropping invalid consolidated concept",
			"video_id", videoID,
			"name", name,
			"error", err,
		)
		return domain.Concept{}, false
	}
	return merged, true
}
