package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// TranscriptSegment is a sentence-chunked, timestamped fragment of one
// video's transcript, as produced by the segment assembler. Embeddings are
// owned by the vector store and never set here.
type TranscriptSegment struct {
	VideoID string
	Text    string
	StartS  float64
	EndS    float64
	Tokens  int
}

// SegmentID derives the stable segment id from (video_id, start_s). The
// float rendering is fixed at six decimals so the id is reproducible across
// runs and processes.
func SegmentID(videoID string, startS float64) uuid.UUID {
	key := fmt.Sprintf("%s:%.6f", videoID, startS)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key))
}

// ID returns the deterministic id for the segment.
func (s TranscriptSegment) ID() uuid.UUID {
	return SegmentID(s.VideoID, s.StartS)
}

// StoreProperties renders the segment as vector-store object properties.
func (s TranscriptSegment) StoreProperties() map[string]any {
	return map[string]any{
		"videoId": s.VideoID,
		"text":    s.Text,
		"start_s": s.StartS,
		"end_s":   s.EndS,
		"tokens":  s.Tokens,
	}
}

// Neighbor is one k-NN result relative to a query segment. Index is filled
// in by the caller once the neighbor is resolved against the video's segment
// sequence; -1 means unresolved.
type Neighbor struct {
	SegmentID  string
	Index      int
	Similarity float64
	StartTime  float64
	EndTime    float64
	Text       string
	Embedding  []float32
}

// EffectiveSimilarity applies exponential temporal decay to the raw cosine
// similarity: similarity * exp(-|start - refTime| / tau). Distant segments
// that merely sound alike are down-weighted.
func (n Neighbor) EffectiveSimilarity(refTime, tau float64) float64 {
	if tau <= 0 {
		return n.Similarity
	}
	dt := math.Abs(n.StartTime - refTime)
	return n.Similarity * math.Exp(-dt/tau)
}

// SegmentNode is a segment hydrated from the vector store for grouping:
// position in the video's sequence, embedding, and its retained neighborhood.
type SegmentNode struct {
	ID        string
	VideoID   string
	Index     int
	Text      string
	StartTime float64
	EndTime   float64
	WordCount int
	Embedding []float32
	Neighbors []Neighbor
	GroupID   int
}

// NeighborByID returns the retained neighbor entry for the given segment id,
// or nil when that segment was not kept in the neighborhood.
func (s *SegmentNode) NeighborByID(segmentID string) *Neighbor {
	for i := range s.Neighbors {
		if s.Neighbors[i].SegmentID == segmentID {
			return &s.Neighbors[i]
		}
	}
	return nil
}

// CosineSimilarity computes cosine similarity between two dense vectors.
// Returns 0 for empty, mismatched, or zero-norm inputs.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// NormalizeText lowercases and collapses runs of whitespace. Pattern and cue
// detectors match against text normalized this way.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
