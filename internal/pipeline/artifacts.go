package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yungbote/videograph/internal/domain"
)

// relationshipJSON is one edge in the relationships artifact.
type relationshipJSON struct {
	ID               string  `json:"id"`
	SourceConceptID  string  `json:"source_concept_id"`
	TargetConceptID  string  `json:"target_concept_id"`
	Type             string  `json:"type"`
	Confidence       float64 `json:"confidence"`
	Evidence         string  `json:"evidence"`
	DetectionMethod  string  `json:"detection_method"`
	SourceGroupID    int     `json:"source_group_id"`
	TargetGroupID    int     `json:"target_group_id"`
	TemporalDistance float64 `json:"temporal_distance"`
}

// relationshipsDocument is the on-disk relationships artifact for one video.
type relationshipsDocument struct {
	VideoID            string             `json:"video_id"`
	NumRelationships   int                `json:"num_relationships"`
	AvgConfidence      float64            `json:"avg_confidence"`
	TypeDistribution   map[string]int     `json:"type_distribution"`
	MethodDistribution map[string]int     `json:"method_distribution"`
	ExtractionTime     string             `json:"extraction_time"`
	Relationships      []relationshipJSON `json:"relationships"`
}

func (p *Pipeline) writeRelationshipsArtifact(videoID string, extracted *domain.ExtractedRelationships) (string, error) {
	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return "", err
	}
	doc := relationshipsDocument{
		VideoID:            videoID,
		NumRelationships:   len(extracted.Relationships),
		AvgConfidence:      extracted.AvgConfidence(),
		TypeDistribution:   extracted.TypeDistribution(),
		MethodDistribution: extracted.MethodDistribution(),
		ExtractionTime:     extracted.ExtractionTime.UTC().Format(time.RFC3339),
		Relationships:      make([]relationshipJSON, 0, len(extracted.Relationships)),
	}
	for _, r := range extracted.Relationships {
		doc.Relationships = append(doc.Relationships, relationshipJSON{
			ID:               r.ID.String(),
			SourceConceptID:  r.SourceConceptID.String(),
			TargetConceptID:  r.TargetConceptID.String(),
			Type:             string(r.Type),
			Confidence:       r.Confidence,
			Evidence:         r.Evidence,
			DetectionMethod:  string(r.DetectionMethod),
			SourceGroupID:    r.SourceGroupID,
			TargetGroupID:    r.TargetGroupID,
			TemporalDistance: r.TemporalDistance,
		})
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal relationships: %w", err)
	}
	path := filepath.Join(p.cfg.OutputDir, fmt.Sprintf("relationships_%s.json", videoID))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write relationships file: %w", err)
	}
	return path, nil
}
