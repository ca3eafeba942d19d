package domain

import "strings"

// SegmentGroup is a temporally contiguous run of one video's segments that
// share a topic. GroupID is assigned densely in temporal order per video.
type SegmentGroup struct {
	GroupID  int
	VideoID  string
	Segments []*SegmentNode
}

func (g *SegmentGroup) StartTime() float64 {
	if len(g.Segments) == 0 {
		return 0
	}
	min := g.Segments[0].StartTime
	for _, s := range g.Segments[1:] {
		if s.StartTime < min {
			min = s.StartTime
		}
	}
	return min
}

func (g *SegmentGroup) EndTime() float64 {
	if len(g.Segments) == 0 {
		return 0
	}
	max := g.Segments[0].EndTime
	for _, s := range g.Segments[1:] {
		if s.EndTime > max {
			max = s.EndTime
		}
	}
	return max
}

func (g *SegmentGroup) Duration() float64 {
	return g.EndTime() - g.StartTime()
}

func (g *SegmentGroup) TotalWords() int {
	total := 0
	for _, s := range g.Segments {
		total += s.WordCount
	}
	return total
}

// Text concatenates member texts in order, space separated.
func (g *SegmentGroup) Text() string {
	parts := make([]string, 0, len(g.Segments))
	for _, s := range g.Segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

// CentroidEmbedding is the element-wise mean of member embeddings. Members
// without embeddings are skipped; nil when no member has one.
func (g *SegmentGroup) CentroidEmbedding() []float32 {
	var sum []float64
	count := 0
	for _, s := range g.Segments {
		if len(s.Embedding) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(s.Embedding))
		}
		if len(s.Embedding) != len(sum) {
			continue
		}
		for i, v := range s.Embedding {
			sum[i] += float64(v)
		}
		count++
	}
	if count == 0 {
		return nil
	}
	out := make([]float32, len(sum))
	for i, v := range sum {
		out[i] = float32(v / float64(count))
	}
	return out
}

// AvgInternalSimilarity is the mean pairwise cosine similarity between all
// member embeddings (the group's cohesion). 1.0 for groups with fewer than
// two embedded members.
func (g *SegmentGroup) AvgInternalSimilarity() float64 {
	embedded := make([][]float32, 0, len(g.Segments))
	for _, s := range g.Segments {
		if len(s.Embedding) > 0 {
			embedded = append(embedded, s.Embedding)
		}
	}
	if len(embedded) < 2 {
		return 1.0
	}
	var total float64
	pairs := 0
	for i := 0; i < len(embedded); i++ {
		for j := i + 1; j < len(embedded); j++ {
			total += CosineSimilarity(embedded[i], embedded[j])
			pairs++
		}
	}
	return total / float64(pairs)
}
