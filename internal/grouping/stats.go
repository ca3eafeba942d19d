package grouping

import (
	"sort"

	"github.com/yungbote/videograph/internal/domain"
)

// Stats summarizes a grouping result for reporting.
type Stats struct {
	NumGroups     int
	NumSegments   int
	WordsMin      int
	WordsMax      int
	WordsMean     float64
	WordsMedian   float64
	CohesionMin   float64
	CohesionMax   float64
	CohesionMean  float64
	TotalDuration float64
}

// ComputeStats derives word-count and cohesion distributions over groups.
func ComputeStats(groups []domain.SegmentGroup) Stats {
	var s Stats
	if len(groups) == 0 {
		return s
	}
	s.NumGroups = len(groups)

	words := make([]int, 0, len(groups))
	var wordSum int
	var cohSum float64
	for i := range groups {
		g := &groups[i]
		s.NumSegments += len(g.Segments)
		s.TotalDuration += g.Duration()

		w := g.TotalWords()
		words = append(words, w)
		wordSum += w

		c := g.AvgInternalSimilarity()
		cohSum += c
		if i == 0 || c < s.CohesionMin {
			s.CohesionMin = c
		}
		if i == 0 || c > s.CohesionMax {
			s.CohesionMax = c
		}
	}

	sort.Ints(words)
	s.WordsMin = words[0]
	s.WordsMax = words[len(words)-1]
	s.WordsMean = float64(wordSum) / float64(len(words))
	mid := len(words) / 2
	if len(words)%2 == 1 {
		s.WordsMedian = float64(words[mid])
	} else {
		s.WordsMedian = float64(words[mid-1]+words[mid]) / 2
	}
	s.CohesionMean = cohSum / float64(len(groups))
	return s
}
