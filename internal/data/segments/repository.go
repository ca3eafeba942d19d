package segments

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/yungbote/videograph/internal/domain"
	"github.com/yungbote/videograph/internal/platform/logger"
	"github.com/yungbote/videograph/internal/platform/weaviatedb"
)

const fetchLimit = 10000

// vectorStore is the slice of the Weaviate client the repository needs.
type vectorStore interface {
	BatchUpsert(ctx context.Context, objects []weaviatedb.Object) (int, error)
	GraphQL(ctx context.Context, query string, out any) error
	DeleteByProperty(ctx context.Context, property, value string) (int, error)
	Class() string
}

// Repository manages segment storage and retrieval in the vector store.
type Repository struct {
	store vectorStore
	log   *logger.Logger
}

func NewRepository(log *logger.Logger, store vectorStore) *Repository {
	return &Repository{
		store: store,
		log:   log.With("service", "SegmentRepository"),
	}
}

// UpsertSegments batch-inserts segments with their deterministic ids. The
// store embeds the text server-side, so re-running is idempotent.
func (r *Repository) UpsertSegments(ctx context.Context, segs []domain.TranscriptSegment) (int, error) {
	if len(segs) == 0 {
		return 0, nil
	}
	objects := make([]weaviatedb.Object, 0, len(segs))
	for _, s := range segs {
		objects = append(objects, weaviatedb.Object{
			ID:         s.ID().String(),
			Properties: s.StoreProperties(),
		})
	}
	r.log.Info("Uploading segments", "count", len(objects))
	uploaded, err := r.store.BatchUpsert(ctx, objects)
	if err != nil {
		return 0, fmt.Errorf("upsert segments: %w", err)
	}
	r.log.Info("Uploaded segments", "uploaded", uploaded, "requested", len(objects))
	return uploaded, nil
}

// graphql row shape shared by fetch and knn queries. Vector is kept raw so
// a malformed vector degrades to a missing one instead of failing the batch.
type gqlSegment struct {
	VideoID    string  `json:"videoId"`
	Text       string  `json:"text"`
	StartS     float64 `json:"start_s"`
	EndS       float64 `json:"end_s"`
	Tokens     int     `json:"tokens"`
	Additional struct {
		ID       string          `json:"id"`
		Distance float64         `json:"distance"`
		Vector   json.RawMessage `json:"vector"`
	} `json:"_additional"`
}

type gqlGetData struct {
	Get map[string][]gqlSegment `json:"Get"`
}

// FetchByVideo returns all of a video's segments sorted by start time with
// dense indexes reassigned in that order.
func (r *Repository) FetchByVideo(ctx context.Context, videoID string, includeVectors bool) ([]*domain.SegmentNode, error) {
	fields := "videoId text start_s end_s tokens _additional { id }"
	if includeVectors {
		fields = "videoId text start_s end_s tokens _additional { id vector }"
	}
	query := fmt.Sprintf(
		"{ Get { %s(where: {path: [\"videoId\"], operator: Equal, valueText: %s}, limit: %d) { %s } } }",
		r.store.Class(), strconv.Quote(videoID), fetchLimit, fields,
	)

	var data gqlGetData
	if err := r.store.GraphQL(ctx, query, &data); err != nil {
		return nil, fmt.Errorf("fetch segments for %s: %w", videoID, err)
	}

	rows := data.Get[r.store.Class()]
	nodes := make([]*domain.SegmentNode, 0, len(rows))
	for _, row := range rows {
		wordCount := row.Tokens
		if wordCount == 0 {
			wordCount = len(strings.Fields(row.Text))
		}
		nodes = append(nodes, &domain.SegmentNode{
			ID:        row.Additional.ID,
			VideoID:   row.VideoID,
			Text:      row.Text,
			StartTime: row.StartS,
			EndTime:   row.EndS,
			WordCount: wordCount,
			Embedding: r.decodeVector(row.Additional.ID, row.Additional.Vector),
			GroupID:   -1,
		})
	}

	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].StartTime < nodes[j].StartTime
	})
	for i, n := range nodes {
		n.Index = i
	}

	r.log.Info("Fetched segments", "video_id", videoID, "count", len(nodes))
	return nodes, nil
}

// SearchNeighbors runs a vector k-NN restricted to one video. Similarity is
// 1 - cosine distance. Self-matches are not filtered; callers drop them.
func (r *Repository) SearchNeighbors(ctx context.Context, embedding []float32, videoID string, k int) ([]domain.Neighbor, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}
	query := fmt.Sprintf(
		"{ Get { %s(nearVector: {vector: %s}, where: {path: [\"videoId\"], operator: Equal, valueText: %s}, limit: %d) { videoId text start_s end_s tokens _additional { id distance vector } } } }",
		r.store.Class(), vectorLiteral(embedding), strconv.Quote(videoID), k,
	)

	var data gqlGetData
	if err := r.store.GraphQL(ctx, query, &data); err != nil {
		return nil, fmt.Errorf("knn for %s: %w", videoID, err)
	}

	rows := data.Get[r.store.Class()]
	neighbors := make([]domain.Neighbor, 0, len(rows))
	for _, row := range rows {
		neighbors = append(neighbors, domain.Neighbor{
			SegmentID:  row.Additional.ID,
			Index:      -1,
			Similarity: 1.0 - row.Additional.Distance,
			StartTime:  row.StartS,
			EndTime:    row.EndS,
			Text:       row.Text,
			Embedding:  r.decodeVector(row.Additional.ID, row.Additional.Vector),
		})
	}
	return neighbors, nil
}

// DeleteByVideo removes all of a video's segments. Idempotent.
func (r *Repository) DeleteByVideo(ctx context.Context, videoID string) (int, error) {
	deleted, err := r.store.DeleteByProperty(ctx, "videoId", videoID)
	if err != nil {
		return 0, fmt.Errorf("delete segments for %s: %w", videoID, err)
	}
	r.log.Info("Deleted segments", "video_id", videoID, "count", deleted)
	return deleted, nil
}

func (r *Repository) decodeVector(segmentID string, raw json.RawMessage) []float32 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		r.log.Warn("Malformed segment vector; treating as missing", "segment_id", segmentID, "error", err)
		return nil
	}
	return vec
}

func vectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
