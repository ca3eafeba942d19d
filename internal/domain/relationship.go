package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// RelationshipType is the closed enumeration of directed edge types.
type RelationshipType string

const (
	// Intra-group: both endpoints in the same group.
	RelDefines      RelationshipType = "defines"
	RelCauses       RelationshipType = "causes"
	RelRequires     RelationshipType = "requires"
	RelContradicts  RelationshipType = "contradicts"
	RelExemplifies  RelationshipType = "exemplifies"
	RelImplements   RelationshipType = "implements"
	RelUses         RelationshipType = "uses"
	// Inter-group: same video, later group refers back to an earlier one.
	RelBuildsOn   RelationshipType = "builds_on"
	RelElaborates RelationshipType = "elaborates"
	RelReferences RelationshipType = "references"
	RelRefines    RelationshipType = "refines"
	// Cross-video: enumerated for the graph schema, not produced here.
	RelComplements       RelationshipType = "complements"
	RelContradictsAcross RelationshipType = "contradicts_across"
	RelExtends           RelationshipType = "extends"
	RelSimilarTo         RelationshipType = "similar_to"
)

// IntraGroupTypes lists the intra-group types in detector priority order.
var IntraGroupTypes = []RelationshipType{
	RelDefines, RelCauses, RelRequires, RelContradicts,
	RelExemplifies, RelImplements, RelUses,
}

// InterGroupTypes lists the inter-group types in detector priority order.
var InterGroupTypes = []RelationshipType{
	RelBuildsOn, RelElaborates, RelReferences, RelRefines,
}

func (t RelationshipType) IsIntraGroup() bool {
	switch t {
	case RelDefines, RelCauses, RelRequires, RelContradicts,
		RelExemplifies, RelImplements, RelUses:
		return true
	}
	return false
}

func (t RelationshipType) IsInterGroup() bool {
	switch t {
	case RelBuildsOn, RelElaborates, RelReferences, RelRefines:
		return true
	}
	return false
}

// DetectionMethod records which detector produced a relationship.
type DetectionMethod string

const (
	MethodPatternMatching   DetectionMethod = "pattern_matching"
	MethodCuePhrase         DetectionMethod = "cue_phrase"
	MethodVectorSimilarity  DetectionMethod = "vector_similarity"
	MethodTemporalProximity DetectionMethod = "temporal_proximity"
	MethodLLMExtraction     DetectionMethod = "llm_extraction"
	MethodCrossReference    DetectionMethod = "cross_reference"
)

const (
	evidenceMinLen = 10
	evidenceMaxLen = 1000
)

// Relationship is a directed typed edge between two concept ids.
type Relationship struct {
	ID               uuid.UUID
	SourceConceptID  uuid.UUID
	TargetConceptID  uuid.UUID
	Type             RelationshipType
	Confidence       float64
	Evidence         string
	DetectionMethod  DetectionMethod
	SourceVideoID    string
	SourceGroupID    int
	TargetVideoID    string
	TargetGroupID    int
	TemporalDistance float64
	ExtractedAt      time.Time
}

// RelationshipID derives the stable edge id from (source, target, type).
func RelationshipID(sourceID, targetID uuid.UUID, relType RelationshipType) uuid.UUID {
	key := fmt.Sprintf("%s:%s:%s", sourceID.String(), targetID.String(), relType)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key))
}

// Validate enforces the relationship invariants in place: over-long evidence
// is truncated on a rune boundary, under-length evidence rejected, confidence
// clamped, temporal distance floored at zero.
func (r *Relationship) Validate() error {
	r.Evidence = TruncateRunes(strings.TrimSpace(r.Evidence), evidenceMaxLen)
	if utf8.RuneCountInString(r.Evidence) < evidenceMinLen {
		return fmt.Errorf("relationship %s evidence too short", r.Type)
	}
	r.Confidence = Clamp01(r.Confidence)
	if r.TemporalDistance < 0 {
		r.TemporalDistance = 0
	}
	return nil
}

// GraphProperties renders the relationship as graph-store edge properties.
// The edge label carries a relType property with the uppercased type so
// Cypher can index on one edge type while preserving the semantic kind.
func (r *Relationship) GraphProperties() map[string]any {
	return map[string]any{
		"id":               r.ID.String(),
		"sourceConceptId":  r.SourceConceptID.String(),
		"targetConceptId":  r.TargetConceptID.String(),
		"type":             string(r.Type),
		"relType":          strings.ToUpper(string(r.Type)),
		"confidence":       r.Confidence,
		"evidence":         r.Evidence,
		"detectionMethod":  string(r.DetectionMethod),
		"sourceVideoId":    r.SourceVideoID,
		"sourceGroupId":    r.SourceGroupID,
		"targetVideoId":    r.TargetVideoID,
		"targetGroupId":    r.TargetGroupID,
		"temporalDistance": r.TemporalDistance,
		"extractedAt":      r.ExtractedAt.UTC().Format(time.RFC3339),
	}
}

// ExtractedRelationships is the combined detector output for one video.
type ExtractedRelationships struct {
	VideoID        string
	Relationships  []Relationship
	ExtractionTime time.Time
}

// AvgConfidence over all relationships; 0 when empty.
func (e *ExtractedRelationships) AvgConfidence() float64 {
	if len(e.Relationships) == 0 {
		return 0
	}
	var total float64
	for _, r := range e.Relationships {
		total += r.Confidence
	}
	return total / float64(len(e.Relationships))
}

// TypeDistribution counts relationships per type.
func (e *ExtractedRelationships) TypeDistribution() map[string]int {
	out := make(map[string]int)
	for _, r := range e.Relationships {
		out[string(r.Type)]++
	}
	return out
}

// MethodDistribution counts relationships per detection method.
func (e *ExtractedRelationships) MethodDistribution() map[string]int {
	out := make(map[string]int)
	for _, r := range e.Relationships {
		out[string(r.DetectionMethod)]++
	}
	return out
}

// ValidationWarnings reports duplicate (source, target, type) tuples and
// confidence-diversity smells without failing the extraction.
func (e *ExtractedRelationships) ValidationWarnings() []string {
	var warnings []string
	seen := make(map[string]bool, len(e.Relationships))
	for _, r := range e.Relationships {
		key := r.SourceConceptID.String() + ":" + r.TargetConceptID.String() + ":" + string(r.Type)
		if seen[key] {
			warnings = append(warnings, fmt.Sprintf("duplicate relationship tuple %s", key))
		}
		seen[key] = true
	}
	if n := len(e.Relationships); n > 0 {
		low := 0
		for _, r := range e.Relationships {
			if r.Confidence < 0.65 {
				low++
			}
		}
		if low*2 > n {
			warnings = append(warnings, fmt.Sprintf("over half of relationships are low confidence (%d/%d)", low, n))
		}
		if len(e.TypeDistribution()) == 1 && n >= 10 {
			warnings = append(warnings, "all relationships share a single type")
		}
	}
	return warnings
}
