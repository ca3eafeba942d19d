package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yungbote/videograph/internal/config"
	"github.com/yungbote/videograph/internal/data/graph"
	"github.com/yungbote/videograph/internal/domain"
	"github.com/yungbote/videograph/internal/grouping"
	"github.com/yungbote/videograph/internal/pkg/ctxutil"
	"github.com/yungbote/videograph/internal/platform/logger"
)

// SegmentWriter persists assembled segments into the vector store.
type SegmentWriter interface {
	UpsertSegments(ctx context.Context, segs []domain.TranscriptSegment) (int, error)
}

// Grouper produces a video's segment groups.
type Grouper interface {
	GroupVideo(ctx context.Context, videoID string) ([]domain.SegmentGroup, error)
}

// ConceptExtractor runs Pass-1 extraction over one group.
type ConceptExtractor interface {
	ExtractFromGroup(ctx context.Context, group *domain.SegmentGroup) (*domain.ExtractedConcepts, error)
}

// ConceptConsolidator runs Pass-2 consolidation over a video's candidates.
type ConceptConsolidator interface {
	Consolidate(ctx context.Context, videoID string, candidates []domain.Concept) ([]domain.Concept, error)
}

// RelationshipDetector extracts typed edges between a video's concepts.
type RelationshipDetector interface {
	Extract(ctx context.Context, videoID string, groups []domain.SegmentGroup, conceptsByGroup map[int][]domain.Concept) *domain.ExtractedRelationships
}

// GraphStore is the slice of the concept graph the pipeline writes to.
type GraphStore interface {
	UpsertConcepts(ctx context.Context, concepts []domain.Concept) (int, error)
	UpsertMentions(ctx context.Context, mentions []domain.ConceptMention) (int, error)
	UpsertRelationships(ctx context.Context, rels []domain.Relationship, batchSize int) (graph.RelationshipUpsertStats, error)
	DeleteConceptsForVideo(ctx context.Context, videoID string) (int, error)
	DeleteRelationshipsForVideo(ctx context.Context, videoID string) (int, error)
	GetConceptsForVideo(ctx context.Context, videoID string) ([]domain.Concept, error)
}

// Result is the per-video outcome. A failed stage stops the video; earlier
// stage writes are left in place.
type Result struct {
	VideoID              string
	Success              bool
	Cancelled            bool
	Err                  error
	Segments             int
	Groups               int
	Concepts             int
	Relationships        int
	RelationshipsSkipped int
	Artifacts            []string
	Warnings             []string
	Elapsed              time.Duration
}

// Pipeline drives grouping, two-pass concept extraction, and relationship
// detection for one video at a time.
type Pipeline struct {
	cfg          config.Pipeline
	segments     SegmentWriter
	grouper      Grouper
	extractor    ConceptExtractor
	consolidator ConceptConsolidator
	detector     RelationshipDetector
	graph        GraphStore
	log          *logger.Logger
}

func New(log *logger.Logger, cfg config.Pipeline, segWriter SegmentWriter, grouper Grouper, extractor ConceptExtractor, consolidator ConceptConsolidator, detector RelationshipDetector, graphStore GraphStore) *Pipeline {
	if cfg.RelationshipBatchSize <= 0 {
		cfg.RelationshipBatchSize = 100
	}
	return &Pipeline{
		cfg:          cfg,
		segments:     segWriter,
		grouper:      grouper,
		extractor:    extractor,
		consolidator: consolidator,
		detector:     detector,
		graph:        graphStore,
		log:          log.With("service", "Pipeline"),
	}
}

// ProcessTranscript upserts freshly assembled segments, then runs the
// remaining stages for the video.
func (p *Pipeline) ProcessTranscript(ctx context.Context, videoID string, segs []domain.TranscriptSegment) Result {
	ctx = ctxutil.Default(ctx)
	start := time.Now()

	uploaded, err := p.segments.UpsertSegments(ctx, segs)
	if err != nil {
		res := Result{VideoID: videoID, Err: fmt.Errorf("upsert segments: %w", err)}
		res.Cancelled = errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		res.Elapsed = time.Since(start)
		p.log.Error("Segment upsert failed", "video_id", videoID, "error", err)
		return res
	}
	p.log.Info("Segments uploaded", "video_id", videoID, "segments", uploaded)

	res := p.ProcessVideo(ctx, videoID)
	res.Segments = uploaded
	res.Elapsed = time.Since(start)
	return res
}

// ProcessAll runs videos serially, stopping early when the context ends.
func (p *Pipeline) ProcessAll(ctx context.Context, videoIDs []string) []Result {
	results := make([]Result, 0, len(videoIDs))
	for _, id := range videoIDs {
		res := p.ProcessVideo(ctx, id)
		results = append(results, res)
		if res.Cancelled {
			break
		}
	}
	return results
}

// ProcessVideo runs every enabled stage for one video. A disabled stage
// short-circuits everything after it.
func (p *Pipeline) ProcessVideo(ctx context.Context, videoID string) Result {
	ctx = ctxutil.Default(ctx)
	start := time.Now()
	res := Result{VideoID: videoID}
	finish := func() Result {
		res.Elapsed = time.Since(start)
		return res
	}
	fail := func(err error) Result {
		res.Err = err
		res.Cancelled = errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		p.log.Error("Video processing failed", "video_id", videoID, "error", err)
		return finish()
	}

	if !p.cfg.EnableGrouping {
		p.log.Info("Grouping disabled; nothing to do", "video_id", videoID)
		res.Success = true
		return finish()
	}

	groups, err := p.grouper.GroupVideo(ctx, videoID)
	if err != nil {
		return fail(fmt.Errorf("grouping: %w", err))
	}
	res.Groups = len(groups)
	if len(groups) == 0 {
		p.log.Warn("No groups produced; skipping remaining stages", "video_id", videoID)
		res.Success = true
		return finish()
	}
	if path, err := p.writeGroupsArtifact(videoID, groups); err != nil {
		p.log.Warn("Failed to write groups artifact", "video_id", videoID, "error", err)
	} else {
		res.Artifacts = append(res.Artifacts, path)
	}

	if !p.cfg.EnableConcepts {
		res.Success = true
		return finish()
	}

	finals, err := p.extractConcepts(ctx, videoID, groups)
	if err != nil {
		return fail(err)
	}
	res.Concepts = len(finals)

	if !p.cfg.EnableRelationships {
		res.Success = true
		return finish()
	}
	if len(finals) == 0 {
		p.log.Warn("No concepts; skipping relationship detection", "video_id", videoID)
		res.Success = true
		return finish()
	}

	byGroup := make(map[int][]domain.Concept)
	for _, c := range finals {
		byGroup[c.GroupID] = append(byGroup[c.GroupID], c)
	}
	extracted := p.detector.Extract(ctx, videoID, groups, byGroup)
	for _, w := range extracted.ValidationWarnings() {
		p.log.Warn("Relationship validation", "video_id", videoID, "warning", w)
		res.Warnings = append(res.Warnings, w)
	}

	if p.cfg.OverwriteRelationships {
		deleted, err := p.graph.DeleteRelationshipsForVideo(ctx, videoID)
		if err != nil {
			return fail(fmt.Errorf("delete relationships: %w", err))
		}
		p.log.Info("Cleared existing relationships", "video_id", videoID, "deleted", deleted)
	}
	stats, err := p.graph.UpsertRelationships(ctx, extracted.Relationships, p.cfg.RelationshipBatchSize)
	if err != nil {
		return fail(fmt.Errorf("upsert relationships: %w", err))
	}
	res.Relationships = stats.Uploaded
	res.RelationshipsSkipped = stats.Skipped

	if path, err := p.writeRelationshipsArtifact(videoID, extracted); err != nil {
		p.log.Warn("Failed to write relationships artifact", "video_id", videoID, "error", err)
	} else {
		res.Artifacts = append(res.Artifacts, path)
	}

	res.Success = true
	p.log.Info("Video processed",
		"video_id", videoID,
		"groups", res.Groups,
		"concepts", res.Concepts,
		"relationships", res.Relationships,
		"elapsed", time.Since(start).String(),
	)
	return finish()
}

// extractConcepts runs both passes and writes the results to the graph. With
// SkipExisting set and concepts already stored, the stored concepts are
// reused and both passes are skipped.
func (p *Pipeline) extractConcepts(ctx context.Context, videoID string, groups []domain.SegmentGroup) ([]domain.Concept, error) {
	if p.cfg.SkipExisting {
		existing, err := p.graph.GetConceptsForVideo(ctx, videoID)
		if err != nil {
			return nil, fmt.Errorf("load existing concepts: %w", err)
		}
		if len(existing) > 0 {
			p.log.Info("Reusing stored concepts", "video_id", videoID, "concepts", len(existing))
			return existing, nil
		}
	}

	var candidates []domain.Concept
	for i := range groups {
		if i > 0 {
			if err := p.rateGate(ctx); err != nil {
				return nil, err
			}
		}
		ec, err := p.extractor.ExtractFromGroup(ctx, &groups[i])
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.log.Warn("Group extraction failed; continuing",
				"video_id", videoID,
				"group_id", groups[i].GroupID,
				"error", err,
			)
			continue
		}
		candidates = append(candidates, ec.Concepts...)
	}
	if len(candidates) == 0 {
		p.log.Warn("No candidate concepts extracted", "video_id", videoID)
		return nil, nil
	}

	if err := p.rateGate(ctx); err != nil {
		return nil, err
	}
	finals, err := p.consolidator.Consolidate(ctx, videoID, candidates)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.log.Warn("Consolidation failed; keeping un-merged candidates",
			"video_id", videoID,
			"error", err,
		)
		finals = candidates
	}

	// Consolidated concepts carry fresh ids, so a re-run would otherwise pile
	// a second generation of nodes next to the stale one. Clear the video's
	// concepts (and, via detach, their edges) before writing the new set.
	deleted, err := p.graph.DeleteConceptsForVideo(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("delete stale concepts: %w", err)
	}
	if deleted > 0 {
		p.log.Info("Cleared previous concepts", "video_id", videoID, "deleted", deleted)
	}
	if _, err := p.graph.UpsertConcepts(ctx, finals); err != nil {
		return nil, fmt.Errorf("upsert concepts: %w", err)
	}
	mentions := buildMentions(finals)
	if _, err := p.graph.UpsertMentions(ctx, mentions); err != nil {
		p.log.Warn("Failed to upsert mentions", "video_id", videoID, "error", err)
	}
	return finals, nil
}

// buildMentions derives one mention node per concept at its first mention.
func buildMentions(concepts []domain.Concept) []domain.ConceptMention {
	mentions := make([]domain.ConceptMention, 0, len(concepts))
	for i := range concepts {
		c := &concepts[i]
		mentions = append(mentions, domain.ConceptMention{
			ID:        domain.MentionID(c.ID, c.VideoID, c.FirstMentionTime),
			ConceptID: c.ID,
			Surface:   c.Name,
			Timestamp: c.FirstMentionTime,
			Salience:  c.Importance,
			VideoID:   c.VideoID,
			GroupID:   c.GroupID,
		})
	}
	return mentions
}

// rateGate spaces out LLM calls. It returns early when the context ends.
func (p *Pipeline) rateGate(ctx context.Context) error {
	d := time.Duration(p.cfg.ConceptDelaySeconds * float64(time.Second))
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (p *Pipeline) writeGroupsArtifact(videoID string, groups []domain.SegmentGroup) (string, error) {
	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(p.cfg.OutputDir, fmt.Sprintf("groups_%s.json", videoID))
	if err := grouping.ExportJSON(videoID, groups, path); err != nil {
		return "", err
	}
	return path, nil
}
