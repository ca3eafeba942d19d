package relationships

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/yungbote/videograph/internal/config"
	"github.com/yungbote/videograph/internal/domain"
	"github.com/yungbote/videograph/internal/pkg/ctxutil"
	"github.com/yungbote/videograph/internal/platform/logger"
)

const (
	proximityMaxDistance = 100
	interCueLookback     = 100
	interCueLookahead    = 200
)

// Extractor detects typed relationships between a video's concepts, first
// within each group, then across group pairs.
type Extractor struct {
	cfg           config.Detectors
	minConfidence float64
	provider      EmbeddingProvider
	log           *logger.Logger
}

// NewExtractor builds a relationship extractor. provider may be nil; it is
// also ignored unless cfg.UseEmbeddings is set.
func NewExtractor(log *logger.Logger, cfg config.Detectors, minConfidence float64, provider EmbeddingProvider) *Extractor {
	if !cfg.UseEmbeddings {
		provider = nil
	}
	return &Extractor{
		cfg:           cfg,
		minConfidence: minConfidence,
		provider:      provider,
		log:           log.With("service", "RelationshipExtractor"),
	}
}

// Extract runs both detectors over the video, then filters to the confidence
// floor and deduplicates (source, target, type) tuples.
func (x *Extractor) Extract(ctx context.Context, videoID string, groups []domain.SegmentGroup, conceptsByGroup map[int][]domain.Concept) *domain.ExtractedRelationships {
	ctx = ctxutil.Default(ctx)
	start := time.Now()
	cache := newEmbeddingCache(x.provider, x.log)

	var found []domain.Relationship
	for i := range groups {
		found = append(found, x.detectIntra(ctx, &groups[i], conceptsByGroup[groups[i].GroupID], cache)...)
	}
	found = append(found, x.detectInter(ctx, groups, conceptsByGroup, cache)...)

	out := &domain.ExtractedRelationships{
		VideoID:        videoID,
		ExtractionTime: start,
	}
	seen := make(map[string]bool, len(found))
	for i := range found {
		r := found[i]
		if r.Confidence < x.minConfidence {
			continue
		}
		if err := r.Validate(); err != nil {
			x.log.Warn("Dropping invalid relationship", "type", r.Type, "error", err)
			continue
		}
		key := r.SourceConceptID.String() + ":" + r.TargetConceptID.String() + ":" + string(r.Type)
		if seen[key] {
			continue
		}
		seen[key] = true
		out.Relationships = append(out.Relationships, r)
	}

	x.log.Info("Relationship extraction complete",
		"video_id", videoID,
		"relationships", len(out.Relationships),
		"elapsed", time.Since(start).String(),
	)
	return out
}

// detectIntra finds relationships between concept pairs of one group by
// pattern match, then mention proximity, then embedding similarity.
func (x *Extractor) detectIntra(ctx context.Context, group *domain.SegmentGroup, concepts []domain.Concept, cache *embeddingCache) []domain.Relationship {
	if len(concepts) < 2 {
		return nil
	}
	text := domain.NormalizeText(group.Text())
	var out []domain.Relationship
	for i := range concepts {
		for j := range concepts {
			if i == j {
				continue
			}
			s, t := &concepts[i], &concepts[j]
			candidate := x.patternRel(text, s, t)
			if candidate == nil {
				candidate = x.proximityRel(text, s, t)
			}
			if candidate != nil && candidate.Confidence >= x.minConfidence {
				out = append(out, *candidate)
				continue
			}
			if fallback := x.intraSimilarityRel(ctx, s, t, cache); fallback != nil {
				out = append(out, *fallback)
			}
		}
	}
	return out
}

// patternRel tries every intra-group type in priority order; the first
// template that matches decides the type.
func (x *Extractor) patternRel(text string, s, t *domain.Concept) *domain.Relationship {
	sPat, tPat := namePattern(s.Name), namePattern(t.Name)
	for _, rtype := range domain.IntraGroupTypes {
		for _, tpl := range intraPatterns[rtype] {
			re, err := regexp.Compile(fmt.Sprintf(tpl, sPat, tPat))
			if err != nil {
				continue
			}
			loc := re.FindStringIndex(text)
			if loc == nil {
				continue
			}
			conf := math.Min(0.95, 0.7+(s.Importance+t.Importance)/4)
			rel := newRelationship(s, t, rtype, conf, snippet(text, loc[0], loc[1], 50), domain.MethodPatternMatching)
			return &rel
		}
	}
	return nil
}

// proximityRel emits a weak "uses" edge when the two names are mentioned
// within proximityMaxDistance characters of each other.
func (x *Extractor) proximityRel(text string, s, t *domain.Concept) *domain.Relationship {
	sRe, err := regexp.Compile(namePattern(s.Name))
	if err != nil {
		return nil
	}
	tRe, err := regexp.Compile(namePattern(t.Name))
	if err != nil {
		return nil
	}
	sLocs := sRe.FindAllStringIndex(text, -1)
	tLocs := tRe.FindAllStringIndex(text, -1)
	if len(sLocs) == 0 || len(tLocs) == 0 {
		return nil
	}

	best := -1
	var span [2]int
	for _, a := range sLocs {
		for _, b := range tLocs {
			d := mentionGap(a, b)
			if best < 0 || d < best {
				best = d
				span = [2]int{min(a[0], b[0]), max(a[1], b[1])}
			}
		}
	}
	if best < 0 || best >= proximityMaxDistance {
		return nil
	}
	conf := 0.5 + (1-float64(best)/proximityMaxDistance)*0.2
	rel := newRelationship(s, t, domain.RelUses, conf, snippet(text, span[0], span[1], 30), domain.MethodPatternMatching)
	return &rel
}

// intraSimilarityRel is the embedding fallback: semantically close
// definitions imply a weak "uses" edge.
func (x *Extractor) intraSimilarityRel(ctx context.Context, s, t *domain.Concept, cache *embeddingCache) *domain.Relationship {
	vs := cache.vector(ctx, s)
	vt := cache.vector(ctx, t)
	if vs == nil || vt == nil {
		return nil
	}
	sim := domain.CosineSimilarity(vs, vt)
	if sim < x.cfg.VectorSimilarityThreshold {
		return nil
	}
	conf := math.Max(x.minConfidence, sim*0.6+(s.Confidence+t.Confidence)/4)
	evidence := fmt.Sprintf("definitions of %q and %q are semantically close (cosine %.2f)", s.Name, t.Name, sim)
	rel := newRelationship(s, t, domain.RelUses, conf, evidence, domain.MethodVectorSimilarity)
	return &rel
}

// detectInter scans later groups for back-references to concepts introduced
// in earlier groups. The source concept lives in the later group, the target
// in the earlier one.
func (x *Extractor) detectInter(ctx context.Context, groups []domain.SegmentGroup, conceptsByGroup map[int][]domain.Concept, cache *embeddingCache) []domain.Relationship {
	var out []domain.Relationship
	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			earlier, later := &groups[i], &groups[j]
			laterText := domain.NormalizeText(later.Text())
			sources := conceptsByGroup[later.GroupID]
			targets := conceptsByGroup[earlier.GroupID]
			for si := range sources {
				for ti := range targets {
					s, t := &sources[si], &targets[ti]
					if s.ID == t.ID {
						continue
					}
					rel := x.cueRel(laterText, s, t)
					if rel == nil {
						rel = x.interSimilarityRel(ctx, s, t, cache)
					}
					if rel != nil {
						out = append(out, *rel)
					}
				}
			}
		}
	}
	return out
}

// cueRel looks for a back-reference phrase in the later group's text with the
// target concept named near it.
func (x *Extractor) cueRel(laterText string, s, t *domain.Concept) *domain.Relationship {
	tRe, err := regexp.Compile(namePattern(t.Name))
	if err != nil {
		return nil
	}
	for _, rtype := range domain.InterGroupTypes {
		for _, cue := range interCues[rtype] {
			idx := strings.Index(laterText, cue)
			if idx < 0 {
				continue
			}
			lo := idx - interCueLookback
			if lo < 0 {
				lo = 0
			}
			hi := idx + interCueLookahead
			if hi > len(laterText) {
				hi = len(laterText)
			}
			if !tRe.MatchString(laterText[lo:hi]) {
				continue
			}
			conf := 0.75 + s.Importance*0.15
			evidence := snippet(laterText, idx, idx+100, 50)
			rel := newRelationship(s, t, rtype, conf, evidence, domain.MethodCuePhrase)
			return &rel
		}
	}
	return nil
}

// interSimilarityRel links temporally close, semantically similar concepts
// across groups as builds_on.
func (x *Extractor) interSimilarityRel(ctx context.Context, s, t *domain.Concept, cache *embeddingCache) *domain.Relationship {
	vs := cache.vector(ctx, s)
	vt := cache.vector(ctx, t)
	if vs == nil || vt == nil {
		return nil
	}
	sim := domain.CosineSimilarity(vs, vt)
	if sim < x.cfg.InterSimilarityThreshold {
		return nil
	}
	dt := math.Abs(s.FirstMentionTime - t.FirstMentionTime)
	if dt > x.cfg.TemporalWindowSeconds {
		return nil
	}
	conf := sim*0.7 + (1-dt/x.cfg.TemporalWindowSeconds)*0.2
	evidence := fmt.Sprintf("%q continues %q within %.0fs (cosine %.2f)", s.Name, t.Name, dt, sim)
	rel := newRelationship(s, t, domain.RelBuildsOn, conf, evidence, domain.MethodVectorSimilarity)
	return &rel
}

func newRelationship(s, t *domain.Concept, rtype domain.RelationshipType, confidence float64, evidence string, method domain.DetectionMethod) domain.Relationship {
	return domain.Relationship{
		ID:               domain.RelationshipID(s.ID, t.ID, rtype),
		SourceConceptID:  s.ID,
		TargetConceptID:  t.ID,
		Type:             rtype,
		Confidence:       domain.Clamp01(confidence),
		Evidence:         evidence,
		DetectionMethod:  method,
		SourceVideoID:    s.VideoID,
		SourceGroupID:    s.GroupID,
		TargetVideoID:    t.VideoID,
		TargetGroupID:    t.GroupID,
		TemporalDistance: math.Abs(s.FirstMentionTime - t.FirstMentionTime),
		ExtractedAt:      time.Now().UTC(),
	}
}

// mentionGap is the character distance between two mention spans, zero when
// they overlap.
func mentionGap(a, b []int) int {
	if a[1] <= b[0] {
		return b[0] - a[1]
	}
	if b[1] <= a[0] {
		return a[0] - b[1]
	}
	return 0
}
