package grouping

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/yungbote/videograph/internal/config"
	"github.com/yungbote/videograph/internal/domain"
	"github.com/yungbote/videograph/internal/platform/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// fakeSource serves stored nodes and answers k-NN queries by brute-force
// cosine similarity over the stored embeddings.
type fakeSource struct {
	nodes    []*domain.SegmentNode
	fetchErr error
	knnErr   error

	mu      sync.Mutex
	queries int
}

func (f *fakeSource) FetchByVideo(ctx context.Context, videoID string, includeVectors bool) ([]*domain.SegmentNode, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.nodes, nil
}

func (f *fakeSource) SearchNeighbors(ctx context.Context, embedding []float32, videoID string, k int) ([]domain.Neighbor, error) {
	f.mu.Lock()
	f.queries++
	f.mu.Unlock()
	if f.knnErr != nil {
		return nil, f.knnErr
	}
	var out []domain.Neighbor
	for _, n := range f.nodes {
		if len(n.Embedding) == 0 {
			continue
		}
		out = append(out, domain.Neighbor{
			SegmentID:  n.ID,
			Index:      -1,
			Similarity: domain.CosineSimilarity(embedding, n.Embedding),
			StartTime:  n.StartTime,
			EndTime:    n.EndTime,
			Text:       n.Text,
			Embedding:  n.Embedding,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func makeNode(idx int, start float64, words int, emb []float32) *domain.SegmentNode {
	return &domain.SegmentNode{
		ID:        fmt.Sprintf("seg-%03d", idx),
		VideoID:   "vid1",
		Index:     idx,
		Text:      fmt.Sprintf("segment %d text", idx),
		StartTime: start,
		EndTime:   start + 4,
		WordCount: words,
		Embedding: emb,
		GroupID:   -1,
	}
}

func testGroupingConfig() config.Grouping {
	return config.Grouping{
		KNeighbors:             8,
		NeighborThreshold:      0.80,
		AdjacentThreshold:      0.70,
		TemporalTau:            150.0,
		MaxGroupWords:          700,
		MinGroupSegments:       2,
		MergeCentroidThreshold: 0.85,
		MaxConcurrentQueries:   4,
	}
}

func TestGroupVideoTopicShift(t *testing.T) {
	topicA := []float32{1, 0}
	topicB := []float32{0, 1}
	src := &fakeSource{}
	for i := 0; i < 10; i++ {
		emb := topicA
		if i >= 5 {
			emb = topicB
		}
		src.nodes = append(src.nodes, makeNode(i, float64(i)*5, 30, emb))
	}

	eng := NewEngine(newTestLogger(t), src, testGroupingConfig())
	groups, err := eng.GroupVideo(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("GroupVideo: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if len(groups[0].Segments) != 5 || len(groups[1].Segments) != 5 {
		t.Fatalf("group sizes: %d/%d", len(groups[0].Segments), len(groups[1].Segments))
	}
	for i, g := range groups {
		if g.GroupID != i {
			t.Fatalf("group ids not dense: %d at position %d", g.GroupID, i)
		}
		for _, s := range g.Segments {
			if s.GroupID != i {
				t.Fatalf("segment %s not tagged with group %d", s.ID, i)
			}
		}
	}
	if src.queries != 10 {
		t.Fatalf("expected one knn query per segment, got %d", src.queries)
	}
}

func TestGroupVideoForcedSplitOnWordCap(t *testing.T) {
	emb := []float32{1, 0}
	src := &fakeSource{}
	for i := 0; i < 6; i++ {
		src.nodes = append(src.nodes, makeNode(i, float64(i)*5, 20, emb))
	}

	cfg := testGroupingConfig()
	cfg.MaxGroupWords = 50
	eng := NewEngine(newTestLogger(t), src, cfg)
	groups, err := eng.GroupVideo(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("GroupVideo: %v", err)
	}
	// All segments are mutually cohesive, so every boundary comes from the
	// word cap: 20+20+20 crosses 50 after the third segment.
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	for _, g := range groups {
		if len(g.Segments) != 3 {
			t.Fatalf("group size: got %d", len(g.Segments))
		}
	}
}

func TestGroupVideoTemporalDecayBoundary(t *testing.T) {
	emb := []float32{1, 0}
	src := &fakeSource{}
	for i := 0; i < 4; i++ {
		src.nodes = append(src.nodes, makeNode(i, float64(i)*5, 30, emb))
	}
	// Same topic but far in the future: effective similarity decays to ~0.
	for i := 4; i < 8; i++ {
		src.nodes = append(src.nodes, makeNode(i, 2000+float64(i)*5, 30, emb))
	}

	cfg := testGroupingConfig()
	// Identical embeddings give centroid cosine 1.0, which would re-merge the
	// split; disable that path to observe the decay boundary itself.
	cfg.MergeCentroidThreshold = 1.01
	eng := NewEngine(newTestLogger(t), src, cfg)
	groups, err := eng.GroupVideo(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("GroupVideo: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected decay to split groups, got %d", len(groups))
	}
}

func TestGroupVideoMissingEmbeddingBreaksCohesion(t *testing.T) {
	emb := []float32{1, 0}
	src := &fakeSource{
		nodes: []*domain.SegmentNode{
			makeNode(0, 0, 30, emb),
			makeNode(1, 5, 30, nil),
			makeNode(2, 10, 30, emb),
		},
	}

	cfg := testGroupingConfig()
	cfg.MinGroupSegments = 1
	cfg.MergeCentroidThreshold = 1.01
	eng := NewEngine(newTestLogger(t), src, cfg)
	groups, err := eng.GroupVideo(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("GroupVideo: %v", err)
	}
	// Zero cohesion on both sides of the unembedded segment.
	if len(groups) != 3 {
		t.Fatalf("expected 3 singleton groups, got %d", len(groups))
	}
	if src.queries != 2 {
		t.Fatalf("unembedded segment should not be queried, got %d queries", src.queries)
	}
}

func TestGroupVideoEmpty(t *testing.T) {
	eng := NewEngine(newTestLogger(t), &fakeSource{}, testGroupingConfig())
	groups, err := eng.GroupVideo(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("GroupVideo: %v", err)
	}
	if groups != nil {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}

func TestGroupVideoNoEmbeddingsSingleGroup(t *testing.T) {
	src := &fakeSource{
		nodes: []*domain.SegmentNode{
			makeNode(0, 0, 30, nil),
			makeNode(1, 5, 30, nil),
			makeNode(2, 10, 30, nil),
		},
	}
	eng := NewEngine(newTestLogger(t), src, testGroupingConfig())
	groups, err := eng.GroupVideo(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("GroupVideo: %v", err)
	}
	if len(groups) != 1 || len(groups[0].Segments) != 3 {
		t.Fatalf("expected one group of 3, got %+v", groups)
	}
	for _, s := range groups[0].Segments {
		if s.GroupID != 0 {
			t.Fatalf("segment %s group id: %d", s.ID, s.GroupID)
		}
	}
	if src.queries != 0 {
		t.Fatalf("no knn queries expected, got %d", src.queries)
	}
}

func TestGroupVideoFetchError(t *testing.T) {
	src := &fakeSource{fetchErr: fmt.Errorf("store down")}
	eng := NewEngine(newTestLogger(t), src, testGroupingConfig())
	if _, err := eng.GroupVideo(context.Background(), "vid1"); err == nil {
		t.Fatalf("expected fetch error")
	}
}

func TestMergeSmallGroups(t *testing.T) {
	emb := []float32{1, 0}
	cfg := testGroupingConfig()
	cfg.MaxGroupWords = 100
	eng := NewEngine(newTestLogger(t), &fakeSource{}, cfg)

	big := domain.SegmentGroup{VideoID: "vid1", Segments: []*domain.SegmentNode{
		makeNode(0, 0, 40, emb),
		makeNode(1, 5, 40, emb),
	}}
	small := domain.SegmentGroup{VideoID: "vid1", Segments: []*domain.SegmentNode{
		makeNode(2, 10, 30, emb),
	}}
	tail := domain.SegmentGroup{VideoID: "vid1", Segments: []*domain.SegmentNode{
		makeNode(3, 15, 40, emb),
		makeNode(4, 20, 40, emb),
	}}

	merged := eng.mergeSmallGroups([]domain.SegmentGroup{big, small, tail})
	if len(merged) != 2 || len(merged[0].Segments) != 3 {
		t.Fatalf("small group should fold into predecessor: %+v", merged)
	}

	// Past the 1.2x word limit the small group stands alone.
	heavy := domain.SegmentGroup{VideoID: "vid1", Segments: []*domain.SegmentNode{
		makeNode(5, 25, 100, emb),
	}}
	kept := eng.mergeSmallGroups([]domain.SegmentGroup{big, heavy, tail})
	if len(kept) != 3 {
		t.Fatalf("oversized merge should be refused: %+v", kept)
	}
}

func TestMergeSmallGroupsFinalGroupStandsAlone(t *testing.T) {
	emb := []float32{1, 0}
	cfg := testGroupingConfig()
	cfg.MaxGroupWords = 100
	eng := NewEngine(newTestLogger(t), &fakeSource{}, cfg)

	big := domain.SegmentGroup{VideoID: "vid1", Segments: []*domain.SegmentNode{
		makeNode(0, 0, 40, emb),
		makeNode(1, 5, 40, emb),
	}}
	small := domain.SegmentGroup{VideoID: "vid1", Segments: []*domain.SegmentNode{
		makeNode(2, 10, 30, emb),
	}}

	out := eng.mergeSmallGroups([]domain.SegmentGroup{big, small})
	if len(out) != 2 || len(out[1].Segments) != 1 {
		t.Fatalf("final group must not fold into predecessor: %+v", out)
	}
}

func TestGroupVideoTrailingTopicStandsAlone(t *testing.T) {
	// Topic shift right before the end: the lone closing segment forms its
	// own final group instead of folding into the preceding topic.
	a := []float32{1, 0}
	b := []float32{0, 1}
	src := &fakeSource{
		nodes: []*domain.SegmentNode{
			makeNode(0, 0, 30, a),
			makeNode(1, 5, 30, a),
			makeNode(2, 10, 30, b),
		},
	}
	eng := NewEngine(newTestLogger(t), src, testGroupingConfig())
	groups, err := eng.GroupVideo(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("GroupVideo: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if len(groups[0].Segments) != 2 || len(groups[1].Segments) != 1 {
		t.Fatalf("group shape: %d/%d", len(groups[0].Segments), len(groups[1].Segments))
	}
	if groups[1].Segments[0].GroupID != 1 {
		t.Fatalf("trailing segment group id: %d", groups[1].Segments[0].GroupID)
	}
}

func TestMergeByCentroidSingleSweep(t *testing.T) {
	a := []float32{1, 0}
	cfg := testGroupingConfig()
	cfg.MaxGroupWords = 1000
	eng := NewEngine(newTestLogger(t), &fakeSource{}, cfg)

	g0 := domain.SegmentGroup{Segments: []*domain.SegmentNode{makeNode(0, 0, 100, a)}}
	g1 := domain.SegmentGroup{Segments: []*domain.SegmentNode{makeNode(1, 5, 100, a)}}
	g2 := domain.SegmentGroup{Segments: []*domain.SegmentNode{makeNode(2, 10, 100, a)}}

	out := eng.mergeByCentroid([]domain.SegmentGroup{g0, g1, g2})
	// g0+g1 merge; the merged group is not reconsidered against g2.
	if len(out) != 2 {
		t.Fatalf("expected 2 groups after single sweep, got %d", len(out))
	}
	if len(out[0].Segments) != 2 || len(out[1].Segments) != 1 {
		t.Fatalf("sweep shape: %d/%d", len(out[0].Segments), len(out[1].Segments))
	}
}

func TestExportRoundTrip(t *testing.T) {
	emb := []float32{1, 0}
	groups := []domain.SegmentGroup{
		{GroupID: 0, VideoID: "vid1", Segments: []*domain.SegmentNode{
			makeNode(0, 0, 30, emb),
			makeNode(1, 5, 30, emb),
		}},
		{GroupID: 1, VideoID: "vid1", Segments: []*domain.SegmentNode{
			makeNode(2, 10, 30, emb),
		}},
	}
	for i := range groups {
		for _, s := range groups[i].Segments {
			s.GroupID = groups[i].GroupID
		}
	}

	path := filepath.Join(t.TempDir(), "groups_vid1.json")
	if err := ExportJSON("vid1", groups, path); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	loaded, err := LoadGroupsFile(path)
	if err != nil {
		t.Fatalf("LoadGroupsFile: %v", err)
	}
	want := BuildDocument("vid1", groups)
	if !reflect.DeepEqual(loaded, want) {
		t.Fatalf("round trip mismatch:\nwant=%+v\ngot=%+v", want, loaded)
	}

	back := loaded.ToGroups()
	if len(back) != 2 || len(back[0].Segments) != 2 || back[1].Segments[0].ID != "seg-002" {
		t.Fatalf("reconstructed groups mismatch: %+v", back)
	}
	if back[0].Text() != groups[0].Text() {
		t.Fatalf("text mismatch: %q vs %q", back[0].Text(), groups[0].Text())
	}
}

func TestComputeStats(t *testing.T) {
	emb := []float32{1, 0}
	groups := []domain.SegmentGroup{
		{Segments: []*domain.SegmentNode{makeNode(0, 0, 10, emb), makeNode(1, 5, 30, emb)}},
		{Segments: []*domain.SegmentNode{makeNode(2, 10, 60, emb)}},
	}
	s := ComputeStats(groups)
	if s.NumGroups != 2 || s.NumSegments != 3 {
		t.Fatalf("counts: %+v", s)
	}
	if s.WordsMin != 40 || s.WordsMax != 60 || s.WordsMean != 50 || s.WordsMedian != 50 {
		t.Fatalf("word stats: %+v", s)
	}
	// Identical embeddings give cohesion 1.0 everywhere.
	if s.CohesionMin != 1.0 || s.CohesionMax != 1.0 || s.CohesionMean != 1.0 {
		t.Fatalf("cohesion stats: %+v", s)
	}
	if ComputeStats(nil).NumGroups != 0 {
		t.Fatalf("empty stats should be zero")
	}
}
