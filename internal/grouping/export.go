package grouping

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/yungbote/videograph/internal/domain"
)

// SegmentJSON is one segment inside a serialized group.
type SegmentJSON struct {
	ID        string  `json:"id"`
	Index     int     `json:"index"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Text      string  `json:"text"`
	WordCount int     `json:"word_count"`
}

// GroupJSON is one group in the exported artifact.
type GroupJSON struct {
	GroupID     int           `json:"group_id"`
	StartTime   float64       `json:"start_time"`
	EndTime     float64       `json:"end_time"`
	Duration    float64       `json:"duration"`
	NumSegments int           `json:"num_segments"`
	TotalWords  int           `json:"total_words"`
	Text        string        `json:"text"`
	AvgCohesion float64       `json:"avg_cohesion"`
	Segments    []SegmentJSON `json:"segments"`
}

// GroupsDocument is the on-disk grouping artifact for one video.
type GroupsDocument struct {
	VideoID   string      `json:"video_id"`
	NumGroups int         `json:"num_groups"`
	Groups    []GroupJSON `json:"groups"`
}

// BuildDocument renders groups into their serializable form.
func BuildDocument(videoID string, groups []domain.SegmentGroup) GroupsDocument {
	doc := GroupsDocument{
		VideoID:   videoID,
		NumGroups: len(groups),
		Groups:    make([]GroupJSON, 0, len(groups)),
	}
	for i := range groups {
		g := &groups[i]
		gj := GroupJSON{
			GroupID:     g.GroupID,
			StartTime:   g.StartTime(),
			EndTime:     g.EndTime(),
			Duration:    g.Duration(),
			NumSegments: len(g.Segments),
			TotalWords:  g.TotalWords(),
			Text:        g.Text(),
			AvgCohesion: g.AvgInternalSimilarity(),
			Segments:    make([]SegmentJSON, 0, len(g.Segments)),
		}
		for _, s := range g.Segments {
			gj.Segments = append(gj.Segments, SegmentJSON{
				ID:        s.ID,
				Index:     s.Index,
				StartTime: s.StartTime,
				EndTime:   s.EndTime,
				Text:      s.Text,
				WordCount: s.WordCount,
			})
		}
		doc.Groups = append(doc.Groups, gj)
	}
	return doc
}

// ToGroups reconstructs domain groups from a loaded document. Embeddings and
// neighborhoods are not part of the artifact and come back empty.
func (d GroupsDocument) ToGroups() []domain.SegmentGroup {
	out := make([]domain.SegmentGroup, 0, len(d.Groups))
	for _, gj := range d.Groups {
		g := domain.SegmentGroup{
			GroupID: gj.GroupID,
			VideoID: d.VideoID,
		}
		for _, sj := range gj.Segments {
			g.Segments = append(g.Segments, &domain.SegmentNode{
				ID:        sj.ID,
				VideoID:   d.VideoID,
				Index:     sj.Index,
				Text:      sj.Text,
				StartTime: sj.StartTime,
				EndTime:   sj.EndTime,
				WordCount: sj.WordCount,
				GroupID:   gj.GroupID,
			})
		}
		out = append(out, g)
	}
	return out
}

// ExportJSON writes the grouping artifact for a video to path.
func ExportJSON(videoID string, groups []domain.SegmentGroup, path string) error {
	doc := BuildDocument(videoID, groups)
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal groups: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write groups file: %w", err)
	}
	return nil
}

// LoadGroupsFile reads a grouping artifact back from disk.
func LoadGroupsFile(path string) (GroupsDocument, error) {
	var doc GroupsDocument
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read groups file: %w", err)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse groups file: %w", err)
	}
	return doc, nil
}
