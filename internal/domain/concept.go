package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ConceptType is the closed enumeration of concept categories.
type ConceptType string

const (
	ConceptTypePerson       ConceptType = "Person"
	ConceptTypeOrganization ConceptType = "Organization"
	ConceptTypeTechnology   ConceptType = "Technology"
	ConceptTypeMethod       ConceptType = "Method"
	ConceptTypeProblem      ConceptType = "Problem"
	ConceptTypeSolution     ConceptType = "Solution"
	ConceptTypeConcept      ConceptType = "Concept"
	ConceptTypeMetric       ConceptType = "Metric"
	ConceptTypeDataset      ConceptType = "Dataset"
	ConceptTypeEvent        ConceptType = "Event"
	ConceptTypePlace        ConceptType = "Place"
)

var conceptTypes = map[string]ConceptType{
	"person":       ConceptTypePerson,
	"organization": ConceptTypeOrganization,
	"technology":   ConceptTypeTechnology,
	"method":       ConceptTypeMethod,
	"problem":      ConceptTypeProblem,
	"solution":     ConceptTypeSolution,
	"concept":      ConceptTypeConcept,
	"metric":       ConceptTypeMetric,
	"dataset":      ConceptTypeDataset,
	"event":        ConceptTypeEvent,
	"place":        ConceptTypePlace,
}

// ConceptTypeFromString coerces arbitrary model output into the closed
// enumeration. Unknown values map to Concept.
func ConceptTypeFromString(s string) ConceptType {
	if t, ok := conceptTypes[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t
	}
	return ConceptTypeConcept
}

const (
	conceptNameMinLen = 2
	conceptNameMaxLen = 100
	conceptDefMinLen  = 10
	conceptDefMaxLen  = 500
)

// Concept is a named idea extracted from a group. Candidates carry a
// deterministic id derived from (video_id, group_id, lowercased name);
// consolidated concepts get a freshly minted random id.
type Concept struct {
	ID               uuid.UUID
	Name             string
	Definition       string
	Type             ConceptType
	Importance       float64
	Confidence       float64
	VideoID          string
	GroupID          int
	FirstMentionTime float64
	LastMentionTime  float64
	MentionCount     int
	Aliases          []string
	ExtractedAt      time.Time
}

// CandidateConceptID derives the stable id for a Pass-1 candidate concept.
func CandidateConceptID(videoID string, groupID int, name string) uuid.UUID {
	key := fmt.Sprintf("%s:%d:%s", videoID, groupID, strings.ToLower(name))
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key))
}

// Validate enforces the concept invariants in place: over-long name and
// definition are truncated, under-length ones are rejected, scores clamped
// to [0,1], mention count floored at 1. Lengths count runes so non-ASCII
// transcripts never get cut mid-character.
func (c *Concept) Validate() error {
	c.Name = TruncateRunes(strings.TrimSpace(c.Name), conceptNameMaxLen)
	c.Definition = TruncateRunes(strings.TrimSpace(c.Definition), conceptDefMaxLen)
	if utf8.RuneCountInString(c.Name) < conceptNameMinLen {
		return fmt.Errorf("concept name too short: %q", c.Name)
	}
	if utf8.RuneCountInString(c.Definition) < conceptDefMinLen {
		return fmt.Errorf("concept %q definition too short", c.Name)
	}
	c.Importance = Clamp01(c.Importance)
	c.Confidence = Clamp01(c.Confidence)
	if c.MentionCount < 1 {
		c.MentionCount = 1
	}
	return nil
}

// EmbeddingText is the string embedded for similarity-based relationship
// detection.
func (c *Concept) EmbeddingText() string {
	return c.Name + ". " + c.Definition
}

// GraphProperties renders the concept as graph-store node properties.
func (c *Concept) GraphProperties() map[string]any {
	return map[string]any{
		"id":               c.ID.String(),
		"name":             c.Name,
		"definition":       c.Definition,
		"type":             string(c.Type),
		"importance":       c.Importance,
		"confidence":       c.Confidence,
		"aliases":          c.Aliases,
		"videoId":          c.VideoID,
		"groupId":          c.GroupID,
		"firstMentionTime": c.FirstMentionTime,
		"lastMentionTime":  c.LastMentionTime,
		"mentionCount":     c.MentionCount,
		"extractedAt":      c.ExtractedAt.UTC().Format(time.RFC3339),
	}
}

// ConceptMention is a timestamped surface occurrence of a concept in the
// transcript, linked to its concept via a MENTIONS edge.
type ConceptMention struct {
	ID          uuid.UUID
	ConceptID   uuid.UUID
	Surface     string
	Timestamp   float64
	Salience    float64
	VideoID     string
	GroupID     int
	OffsetStart int
	OffsetEnd   int
}

// MentionID derives the stable id for a mention.
func MentionID(conceptID uuid.UUID, videoID string, timestamp float64) uuid.UUID {
	key := fmt.Sprintf("%s:%s:%.6f", conceptID.String(), videoID, timestamp)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key))
}

// GraphProperties renders the mention as graph-store node properties.
func (m *ConceptMention) GraphProperties() map[string]any {
	return map[string]any{
		"id":          m.ID.String(),
		"conceptId":   m.ConceptID.String(),
		"surface":     m.Surface,
		"timestamp":   m.Timestamp,
		"salience":    Clamp01(m.Salience),
		"videoId":     m.VideoID,
		"groupId":     m.GroupID,
		"offsetStart": m.OffsetStart,
		"offsetEnd":   m.OffsetEnd,
	}
}

// ExtractedConcepts is the Pass-1 output for one group.
type ExtractedConcepts struct {
	VideoID        string
	GroupID        int
	GroupText      string
	StartTime      float64
	EndTime        float64
	Concepts       []Concept
	ModelUsed      string
	ExtractionTime time.Time
}

// TruncateRunes cuts s to at most max runes, never splitting a multi-byte
// character.
func TruncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

// Clamp01 clamps v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
