package grouping

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/videograph/internal/config"
	"github.com/yungbote/videograph/internal/domain"
	"github.com/yungbote/videograph/internal/pkg/ctxutil"
	"github.com/yungbote/videograph/internal/platform/logger"
)

// SegmentSource is the slice of the segment repository the engine needs.
type SegmentSource interface {
	FetchByVideo(ctx context.Context, videoID string, includeVectors bool) ([]*domain.SegmentNode, error)
	SearchNeighbors(ctx context.Context, embedding []float32, videoID string, k int) ([]domain.Neighbor, error)
}

// Engine partitions a video's segments into temporally contiguous,
// semantically cohesive groups.
type Engine struct {
	source SegmentSource
	cfg    config.Grouping
	log    *logger.Logger
}

func NewEngine(log *logger.Logger, source SegmentSource, cfg config.Grouping) *Engine {
	if cfg.KNeighbors <= 0 {
		cfg.KNeighbors = 8
	}
	if cfg.MaxGroupWords <= 0 {
		cfg.MaxGroupWords = 700
	}
	if cfg.MinGroupSegments <= 0 {
		cfg.MinGroupSegments = 2
	}
	if cfg.MaxConcurrentQueries <= 0 {
		cfg.MaxConcurrentQueries = 4
	}
	return &Engine{
		source: source,
		cfg:    cfg,
		log:    log.With("service", "GroupingEngine"),
	}
}

// GroupVideo runs the full grouping pipeline: fetch, neighborhoods,
// boundary detection, group formation, small-group merge, centroid merge.
func (e *Engine) GroupVideo(ctx context.Context, videoID string) ([]domain.SegmentGroup, error) {
	ctx = ctxutil.Default(ctx)

	nodes, err := e.source.FetchByVideo(ctx, videoID, true)
	if err != nil {
		return nil, fmt.Errorf("grouping fetch: %w", err)
	}
	if len(nodes) == 0 {
		e.log.Warn("No segments for video", "video_id", videoID)
		return nil, nil
	}

	embedded := 0
	for _, n := range nodes {
		if len(n.Embedding) > 0 {
			embedded++
		}
	}
	if embedded == 0 {
		e.log.Warn("No segment embeddings; emitting a single group",
			"video_id", videoID,
			"segments", len(nodes),
		)
		single := domain.SegmentGroup{GroupID: 0, VideoID: videoID, Segments: nodes}
		propagateGroupIDs([]domain.SegmentGroup{single})
		return []domain.SegmentGroup{single}, nil
	}

	if err := e.buildNeighborhoods(ctx, videoID, nodes); err != nil {
		return nil, err
	}

	boundaries := e.detectBoundaries(nodes)
	groups := formGroups(videoID, nodes, boundaries)
	groups = e.mergeSmallGroups(groups)
	groups = e.mergeByCentroid(groups)
	renumber(groups)
	propagateGroupIDs(groups)

	stats := ComputeStats(groups)
	e.log.Info("Grouping complete",
		"video_id", videoID,
		"segments", len(nodes),
		"groups", stats.NumGroups,
		"words_min", stats.WordsMin,
		"words_max", stats.WordsMax,
		"words_mean", fmt.Sprintf("%.1f", stats.WordsMean),
		"words_median", fmt.Sprintf("%.1f", stats.WordsMedian),
		"cohesion_min", fmt.Sprintf("%.3f", stats.CohesionMin),
		"cohesion_max", fmt.Sprintf("%.3f", stats.CohesionMax),
		"cohesion_mean", fmt.Sprintf("%.3f", stats.CohesionMean),
	)
	return groups, nil
}

// buildNeighborhoods runs one bounded-concurrency k-NN query per embedded
// segment and retains neighbors above the raw similarity floor.
func (e *Engine) buildNeighborhoods(ctx context.Context, videoID string, nodes []*domain.SegmentNode) error {
	indexByID := make(map[string]int, len(nodes))
	for _, n := range nodes {
		indexByID[n.ID] = n.Index
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrentQueries)
	var mu sync.Mutex

	for _, node := range nodes {
		if len(node.Embedding) == 0 {
			continue
		}
		node := node
		g.Go(func() error {
			raw, err := e.source.SearchNeighbors(gctx, node.Embedding, videoID, e.cfg.KNeighbors+1)
			if err != nil {
				return fmt.Errorf("knn for segment %s: %w", node.ID, err)
			}
			kept := make([]domain.Neighbor, 0, len(raw))
			for _, n := range raw {
				if n.SegmentID == node.ID {
					continue
				}
				if n.Similarity < e.cfg.NeighborThreshold {
					continue
				}
				if idx, ok := indexByID[n.SegmentID]; ok {
					n.Index = idx
				}
				kept = append(kept, n)
			}
			mu.Lock()
			node.Neighbors = kept
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// detectBoundaries walks segments in temporal order and returns the indexes
// i after which a new group starts. A boundary falls between s_i and s_i+1
// when their effective similarity drops below the adjacency floor, or when
// the accumulated word count crosses the hard cap.
func (e *Engine) detectBoundaries(nodes []*domain.SegmentNode) []int {
	var boundaries []int
	wordCount := 0
	for i := 0; i < len(nodes)-1; i++ {
		wordCount += nodes[i].WordCount
		cohesion := adjacentCohesion(nodes[i], nodes[i+1], e.cfg.TemporalTau)
		if cohesion < e.cfg.AdjacentThreshold || wordCount >= e.cfg.MaxGroupWords {
			boundaries = append(boundaries, i)
			wordCount = 0
		}
	}
	return boundaries
}

// adjacentCohesion is the effective similarity between consecutive segments,
// read from the left segment's retained neighborhood. Absent entries (missing
// embeddings, below-threshold similarity) count as zero cohesion.
func adjacentCohesion(left, right *domain.SegmentNode, tau float64) float64 {
	n := left.NeighborByID(right.ID)
	if n == nil {
		return 0
	}
	return n.EffectiveSimilarity(left.StartTime, tau)
}

func formGroups(videoID string, nodes []*domain.SegmentNode, boundaries []int) []domain.SegmentGroup {
	boundarySet := make(map[int]bool, len(boundaries))
	for _, b := range boundaries {
		boundarySet[b] = true
	}

	var groups []domain.SegmentGroup
	var current []*domain.SegmentNode
	for i, n := range nodes {
		current = append(current, n)
		if boundarySet[i] || i == len(nodes)-1 {
			groups = append(groups, domain.SegmentGroup{
				GroupID:  len(groups),
				VideoID:  videoID,
				Segments: current,
			})
			current = nil
		}
	}
	return groups
}

// mergeSmallGroups folds groups below the minimum size into their
// predecessor when the combined word count stays within 1.2x the cap. The
// final group is exempt and stands as-is whatever its size.
func (e *Engine) mergeSmallGroups(groups []domain.SegmentGroup) []domain.SegmentGroup {
	limit := int(1.2 * float64(e.cfg.MaxGroupWords))
	var out []domain.SegmentGroup
	for i, g := range groups {
		if len(out) > 0 && i < len(groups)-1 && len(g.Segments) < e.cfg.MinGroupSegments {
			prev := &out[len(out)-1]
			if prev.TotalWords()+g.TotalWords() <= limit {
				prev.Segments = append(prev.Segments, g.Segments...)
				continue
			}
		}
		out = append(out, g)
	}
	return out
}

// mergeByCentroid is a single sweep over adjacent pairs: merge when the
// combined words stay within 1.25x the cap and the centroids are close. A
// merged group is not reconsidered against its new neighbor.
func (e *Engine) mergeByCentroid(groups []domain.SegmentGroup) []domain.SegmentGroup {
	limit := int(1.25 * float64(e.cfg.MaxGroupWords))
	var out []domain.SegmentGroup
	i := 0
	for i < len(groups) {
		g := groups[i]
		if i+1 < len(groups) {
			next := groups[i+1]
			if g.TotalWords()+next.TotalWords() <= limit {
				sim := domain.CosineSimilarity(g.CentroidEmbedding(), next.CentroidEmbedding())
				if sim >= e.cfg.MergeCentroidThreshold {
					g.Segments = append(g.Segments, next.Segments...)
					out = append(out, g)
					i += 2
					continue
				}
			}
		}
		out = append(out, g)
		i++
	}
	return out
}

func renumber(groups []domain.SegmentGroup) {
	for i := range groups {
		groups[i].GroupID = i
	}
}

func propagateGroupIDs(groups []domain.SegmentGroup) {
	for i := range groups {
		for _, s := range groups[i].Segments {
			s.GroupID = groups[i].GroupID
		}
	}
}
